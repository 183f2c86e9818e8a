// Command fakesarvam serves canned Sarvam speech-to-text, translate and
// text-to-speech responses for running the service without an API key.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/skypro1111/voice-translate-service/internal/audio"
)

const (
	toneSampleRate = 22050
	toneFrequency  = 440.0
)

type transcribeResponse struct {
	Transcript   string `json:"transcript"`
	LanguageCode string `json:"language_code"`
}

type translateRequest struct {
	Input              string `json:"input"`
	SourceLanguageCode string `json:"source_language_code"`
	TargetLanguageCode string `json:"target_language_code"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

type speechRequest struct {
	Text               string `json:"text"`
	TargetLanguageCode string `json:"target_language_code"`
}

type speechResponse struct {
	Audios []string `json:"audios"`
}

type fakeServer struct {
	logger *slog.Logger
	delay  time.Duration
	tone   string // base64 WAV
}

func newHandler(logger *slog.Logger, delay time.Duration) (http.Handler, error) {
	tone, err := toneWAV(500 * time.Millisecond)
	if err != nil {
		return nil, err
	}

	s := &fakeServer{
		logger: logger,
		delay:  delay,
		tone:   base64.StdEncoding.EncodeToString(tone),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /speech-to-text", s.handleTranscribe)
	mux.HandleFunc("POST /translate", s.handleTranslate)
	mux.HandleFunc("POST /text-to-speech", s.handleSpeech)
	return mux, nil
}

// toneWAV renders a sine tone as the synthesized speech payload
func toneWAV(d time.Duration) ([]byte, error) {
	n := int(d.Seconds() * toneSampleRate)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*toneFrequency*float64(i)/toneSampleRate))
	}
	return audio.EncodeWAV(audio.NewBuffer(samples, toneSampleRate))
}

func (s *fakeServer) simulate() {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
}

func (s *fakeServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	decoded, err := audio.DecodeWAV(data)
	if err != nil {
		http.Error(w, "Invalid WAV payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	stats := decoded.GetStats()
	duration := stats.Duration

	language := r.FormValue("language_code")

	s.logger.Info("Transcription request received",
		slog.String("filename", header.Filename),
		slog.String("content_type", header.Header.Get("Content-Type")),
		slog.Int("audio_bytes", len(data)),
		slog.Int("samples", stats.Samples),
		slog.Int("sample_rate", stats.SampleRate),
		slog.Float64("duration_seconds", duration),
		slog.String("language_code", language))

	s.simulate()

	writeJSON(w, transcribeResponse{
		Transcript:   fmt.Sprintf("test transcript of %.1f seconds of audio", duration),
		LanguageCode: language,
	})
}

func (s *fakeServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input == "" {
		http.Error(w, "Invalid translate request", http.StatusBadRequest)
		return
	}

	s.logger.Info("Translate request received",
		slog.String("source", req.SourceLanguageCode),
		slog.String("target", req.TargetLanguageCode),
		slog.Int("chars", len(req.Input)))

	s.simulate()

	writeJSON(w, translateResponse{
		TranslatedText: fmt.Sprintf("[%s] %s", req.TargetLanguageCode, req.Input),
	})
}

func (s *fakeServer) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "Invalid speech request", http.StatusBadRequest)
		return
	}

	s.logger.Info("Speech request received",
		slog.String("target", req.TargetLanguageCode),
		slog.Int("chars", len(req.Text)))

	s.simulate()

	writeJSON(w, speechResponse{Audios: []string{s.tone}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time per request")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	handler, err := newHandler(logger, *delay)
	if err != nil {
		logger.Error("Failed to build handler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Fake Sarvam server starting",
		slog.String("address", *addr),
		slog.String("hint", "set sarvam.base_url to http://localhost"+*addr))

	if err := http.ListenAndServe(*addr, handler); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
