// Package metrics defines the Prometheus collectors for capture sessions,
// pipeline runs, remote stage calls and the HTTP API.
package metrics
