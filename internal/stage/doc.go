// Package stage defines the capability interface for the three remote calls of
// a translation run (transcription, translation, synthesis), their typed
// results, and the error values the pipeline branches on.
package stage
