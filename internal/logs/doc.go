// Package logs fetches the backend event log.
//
// Every Fetch issues exactly one GET /api/logs with the caller's token and
// returns the full snapshot or a *FetchError. It never retries and never
// turns a failure into an empty result.
package logs
