// Package render draws acquisition results into published images and
// HTML charts: a calibrated scatter plot for single profiles and a
// jet-coloured rendering of corrected depth maps.
package render
