// Package login implements alarm-monitor login: it exchanges a user name and
// PIN for an access token and stores the token in the token file, where a
// running watcher picks it up.
package login
