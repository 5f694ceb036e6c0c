// Package checker implements alarm-monitor check: it probes the hub health
// endpoint and verifies that the stored token is accepted by the log API.
package checker
