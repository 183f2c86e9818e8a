// Package protocol implements the binary ingest packet format used by the UDP
// and WebSocket transports. Every packet starts with an 8-byte big-endian
// header naming the session; start packets carry the run languages, audio
// packets carry one interleaved PCM-16 frame, and stop and cancel packets
// have no payload.
package protocol
