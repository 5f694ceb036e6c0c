// Package client sends a single arm or disarm command for the alarm-monitor
// arm subcommand.
//
// The command reads the bearer token from the token file, posts the command
// once and reports the outcome. It never retries on its own.
package client
