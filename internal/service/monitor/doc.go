// Package monitor wires the live-state reconciliation engine together.
//
// A Session connects the alert feed, fetches the event log on start and on
// every token change, sends commands and feeds everything into one store.
// Run is the alarm-monitor watch process built around a Session.
package monitor
