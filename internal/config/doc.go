// Package config defines the settings shared by alarm-monitor and alarm-hub
// and provides helpers to load, validate and save them in YAML format.
//
// Validate fills defaults for everything optional, so a file holding only
// the feed URL is a valid configuration. Environment variables override the
// endpoint and token file settings per deployment.
package config
