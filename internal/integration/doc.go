// Package integration runs the monitor commands against a live alarm-hub.
package integration
