// Package pointcloud stores calibrated 3D points in labelled clouds and
// extracts uniformly calibrated 16-bit depth maps from them.
//
// Coordinates are millimetres in the sensor world frame: X along the laser
// line, Y along the conveyor and Z the measured distance.
package pointcloud
