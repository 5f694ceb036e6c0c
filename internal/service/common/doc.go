// Package common holds helpers shared by several services.
//
// It provides a gRPC health client with timeouts, used to probe the hub, and
// a helper detecting the local user name used as the default login.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
