package pipeline

import "fmt"

// State is the position of a run in the pipeline state machine.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateEncoding
	StateTranscribing
	StateTranslating
	StateSynthesizing
	StateComplete
	StateFailed
)

// successor is the only non-failure transition allowed from each state.
var successor = map[State]State{
	StateIdle:         StateCapturing,
	StateCapturing:    StateEncoding,
	StateEncoding:     StateTranscribing,
	StateTranscribing: StateTranslating,
	StateTranslating:  StateSynthesizing,
	StateSynthesizing: StateComplete,
}

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateEncoding:
		return "encoding"
	case StateTranscribing:
		return "transcribing"
	case StateTranslating:
		return "translating"
	case StateSynthesizing:
		return "synthesizing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown pipeline state %q", text)
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	next, ok := successor[from]
	return ok && next == to
}
