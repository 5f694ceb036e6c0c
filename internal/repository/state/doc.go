// Package state implements persistence for the hub armed State.
//
// The FileRepository stores and loads the state as JSON on disk and exposes a
// Repository interface that the hub service depends on.
package state
