// Package stores provides the SQLite option store used as the settings
// source for dependency checks. Options are plain name/value pairs; every
// write and delete is recorded in a change log.
package stores
