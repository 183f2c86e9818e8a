// Package server implements the ingest transports and the HTTP API.
// Capture packets arrive over UDP or a WebSocket and are applied to the
// session manager in per-session arrival order; the HTTP API starts, feeds,
// finishes and cancels runs, serves synthesized audio for playback and
// exposes monitoring endpoints.
package server
