// Package auth supplies bearer tokens to the monitor.
//
// Consumers read the current token through Source at the start of each
// operation and never keep it afterwards. Watcher adds change notification,
// which the monitor uses to refetch the event log whenever the token value
// changes. Memory is a settable source; File follows a token file on disk
// with fsnotify.
package auth
