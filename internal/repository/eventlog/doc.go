// Package eventlog stores the hub users and its event log in SQLite.
//
// Users carry a bcrypt hash of their PIN and a role. Log rows are appended
// with the time they happened and read back newest first.
package eventlog
