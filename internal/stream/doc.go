// Package stream owns the live connection to the alert feed.
//
// A Client dials the feed over WebSocket, parses every text message into an
// AlertEvent and hands events to its callback in receipt order. Transport
// failures never reach the caller: they become ConnectionState transitions
// and the client reconnects with exponential backoff until Disconnect.
package stream
