// Package session tracks per-user translation sessions. Each session owns at
// most one in-flight pipeline run, guarded by a single-slot semaphore, and
// remembers the outcome of its last finished run for playback. Idle sessions
// are cancelled and removed by a background cleanup routine.
package session
