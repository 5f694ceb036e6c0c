// Package logger wraps zap to give every binary the same logging surface:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level parsing and runtime level changes,
//   - leveled helpers (Infof, WarnKV, ErrorKV, ...).
//
// Components receive a context and pull the logger out of it, so a name or
// key-value pair attached once (for example the feed URL) follows every line
// the component writes.
package logger
