// Package gige is the boundary to a GigE Vision 3D camera: its named
// feature set, the frames it streams and the digitizers that deliver them
// (live GVSP over UDP, pcap replay, or a synthetic scanner).
package gige
