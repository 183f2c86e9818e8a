package pipeline

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateCapturing, true},
		{StateCapturing, StateEncoding, true},
		{StateEncoding, StateTranscribing, true},
		{StateTranscribing, StateTranslating, true},
		{StateTranslating, StateSynthesizing, true},
		{StateSynthesizing, StateComplete, true},
		{StateIdle, StateFailed, true},
		{StateTranslating, StateFailed, true},

		// skips and re-entry
		{StateIdle, StateEncoding, false},
		{StateCapturing, StateTranscribing, false},
		{StateTranscribing, StateSynthesizing, false},
		{StateTranslating, StateTranscribing, false},
		{StateCapturing, StateCapturing, false},
		{StateIdle, StateComplete, false},

		// terminal states
		{StateComplete, StateFailed, false},
		{StateFailed, StateCapturing, false},
		{StateFailed, StateFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"_to_"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if StateSynthesizing.String() != "synthesizing" {
		t.Errorf("Expected synthesizing, got %s", StateSynthesizing)
	}

	text, err := StateComplete.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	if string(text) != "complete" {
		t.Errorf("Expected complete, got %s", text)
	}

	var decoded State
	if err := decoded.UnmarshalText([]byte("translating")); err != nil || decoded != StateTranslating {
		t.Errorf("Expected translating, got %s (%v)", decoded, err)
	}
	if err := decoded.UnmarshalText([]byte("paused")); err == nil {
		t.Error("Expected error for unknown state name")
	}

	if State(42).String() != "unknown(42)" {
		t.Errorf("Expected unknown(42), got %s", State(42))
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateCapturing, StateEncoding, StateTranscribing, StateTranslating, StateSynthesizing} {
		if s.Terminal() {
			t.Errorf("Expected %s to be non-terminal", s)
		}
	}

	if !StateComplete.Terminal() || !StateFailed.Terminal() {
		t.Error("Expected complete and failed to be terminal")
	}
}
