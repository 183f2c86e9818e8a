// Package audio handles microphone capture buffering and format conversion.
// It accumulates streamed PCM frames into a single mono buffer, reduces
// multi-channel input to one channel, and encodes finalized buffers to WAV
// for the transcription stage.
package audio
