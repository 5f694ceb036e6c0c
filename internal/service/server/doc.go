// Package server runs alarm-hub, the development backend the monitor talks to.
//
// It keeps the armed state in a JSON file, users and the event log in SQLite,
// and serves the HTTP API, the WebSocket feed and a gRPC health endpoint.
package server
