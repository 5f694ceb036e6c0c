// Package monitor holds the data model of the live-state reconciliation
// engine: alert events from the feed, log entries from the backend, and the
// connection and command states the presentation renders.
//
// Values are immutable once built; View carries deep copies so readers never
// share slices with the store.
package monitor
