// Package model defines domain data structures shared across the service:
// output formats, artifact records, conversion jobs, playlist listings, and
// the typed error taxonomy surfaced to HTTP clients.
package model
