// Package profile owns the profile data model and its conversion.
//
// A profile bundle is three co-indexed rasters (Z depth, X position and a
// validity mask) covering profileSize x nbProfiles samples. Raw bundles come
// from the sensor as 16-bit fixed point; the conversion Chain turns them into
// calibrated float32 world coordinates, and a Process renders the result
// either as a single scatter-plotted profile or as an accumulated depth map.
//
// Responsibilities: rasters, bundle extents, calibration tuples, conversion
// stages and the two processing variants. Rendering surfaces live in
// internal/render and point-cloud storage in internal/pointcloud.
package profile
