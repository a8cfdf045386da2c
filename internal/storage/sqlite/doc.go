// Package sqlite persists per-frame summaries and depth map snapshots of
// an acquisition session in a SQLite database.
//
// The schema is created by embedded golang-migrate migrations when the
// database is opened.
package sqlite
