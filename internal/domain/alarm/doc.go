// Package alarm contains the armed-state model kept by the development hub.
//
// It defines Actor (who armed or disarmed the system) and State (whether the
// system is armed, and since when) with Clone helpers to avoid leaking
// internal references.
package alarm
