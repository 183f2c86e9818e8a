// Package pipeline drives one speech translation run from microphone capture
// to synthesized speech.
//
// An Orchestrator owns a single Run and moves it through a strictly linear
// state machine:
//
//	Idle → Capturing → Encoding → Transcribing → Translating → Synthesizing → Complete
//
// Failed is reachable from every non-terminal state. The first error ends the
// run; later stages are never invoked. Staged audio is released exactly once
// on every exit path.
package pipeline
