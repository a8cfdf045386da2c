// Package acquisition connects a gige.Digitizer to a profile.Process.
//
// An Interface owns the digitizer-side conversion chain (validity mask and
// the sensor flips) and is used as the digitizer's frame hook: each frame
// is split into its Z and X bands, converted and handed to the process.
// Run drives the digitizer until the context is cancelled or the
// transport fails.
package acquisition
