package stage

import "context"

// Stage identifies one remote step of the pipeline.
type Stage string

const (
	STT       Stage = "stt"
	Translate Stage = "translate"
	TTS       Stage = "tts"
)

// Language is a language code understood by the remote services, e.g. "hi-IN".
type Language string

// Transcript is the speech-to-text result.
type Transcript struct {
	Text           string   `json:"text"`
	SourceLanguage Language `json:"source_language"`
}

// Translation is the text translation result.
type Translation struct {
	Text           string   `json:"text"`
	SourceLanguage Language `json:"source_language"`
	TargetLanguage Language `json:"target_language"`
}

// SynthesizedAudio is decoded speech returned by the synthesis stage.
type SynthesizedAudio struct {
	Data   []byte `json:"-"`
	Format string `json:"format"` // container tag, e.g. "wav"
}

// Client abstracts the three remote calls the pipeline makes.
//
// Expected failures are returned as *StageError or *EmptyResultError.
// Implementations must honour ctx cancellation.
type Client interface {
	// Transcribe converts an encoded audio container into text.
	Transcribe(ctx context.Context, audio []byte, source Language) (Transcript, error)

	// Translate converts text from source to target language.
	Translate(ctx context.Context, text string, source, target Language) (Translation, error)

	// Synthesize converts text into speech in the target language.
	Synthesize(ctx context.Context, text string, target Language) (SynthesizedAudio, error)
}
