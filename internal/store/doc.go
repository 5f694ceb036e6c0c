// Package store is the reconciliation store: the single source of truth the
// presentation reads. It merges feed alerts, the latest log snapshot and the
// connection state under one lock so View never observes a half-applied
// mutation, and it never performs I/O.
package store
