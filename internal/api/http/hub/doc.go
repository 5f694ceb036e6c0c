// Package hub is the HTTP transport of the development hub.
//
// It serves the contracts the monitor consumes: token issuance on /login, the
// event log on /api/logs, the arm and disarm commands, alert intake on /alert
// and the live alert feed as a WebSocket on /ws.
package hub
