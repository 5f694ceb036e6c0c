// Package command sends the state-changing commands (arm, disarm) to the
// backend.
//
// A Dispatcher allows one command in flight at a time: a second invocation
// while one is Sending is rejected with ErrAlreadyInFlight instead of
// producing a duplicate request. Commands are never retried automatically.
package command
