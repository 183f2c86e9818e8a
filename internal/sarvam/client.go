package sarvam

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/skypro1111/voice-translate-service/internal/stage"
)

// DefaultBaseURL is the production API root
const DefaultBaseURL = "https://api.sarvam.ai"

const (
	sttPath       = "/speech-to-text"
	translatePath = "/translate"
	ttsPath       = "/text-to-speech"

	apiKeyHeader = "api-subscription-key"

	// maxErrorBody caps how much of a failed response is kept in StageError.Body
	maxErrorBody = 512
)

// Config contains Sarvam client configuration
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxConcurrent int
}

// Client calls the Sarvam speech-to-text, translate and text-to-speech endpoints
type Client struct {
	config     Config
	httpClient *http.Client
	sem        *semaphore.Weighted
	logger     *slog.Logger

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	activeRequests  int
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

type translateRequest struct {
	Input              string `json:"input"`
	SourceLanguageCode string `json:"source_language_code"`
	TargetLanguageCode string `json:"target_language_code"`
}

type speechRequest struct {
	Text               string `json:"text"`
	TargetLanguageCode string `json:"target_language_code"`
}

type transcribeResponse struct {
	Transcript   string `json:"transcript"`
	LanguageCode string `json:"language_code,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

type speechResponse struct {
	Audios []string `json:"audios"`
}

// NewClient creates a new Sarvam HTTP client
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		sem:        semaphore.NewWeighted(int64(config.MaxConcurrent)),
		logger:     logger,
	}, nil
}

// Transcribe uploads WAV audio and returns the recognized text
func (c *Client) Transcribe(ctx context.Context, audio []byte, source stage.Language) (stage.Transcript, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	header.Set("Content-Type", "audio/wav")

	part, err := writer.CreatePart(header)
	if err != nil {
		return stage.Transcript{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return stage.Transcript{}, fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.WriteField("language_code", string(source)); err != nil {
		return stage.Transcript{}, fmt.Errorf("failed to write field language_code: %w", err)
	}

	if err := writer.Close(); err != nil {
		return stage.Transcript{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var resp transcribeResponse
	if err := c.do(ctx, stage.STT, sttPath, writer.FormDataContentType(), &buf, &resp); err != nil {
		return stage.Transcript{}, err
	}

	text := strings.TrimSpace(resp.Transcript)
	if text == "" {
		return stage.Transcript{}, &stage.EmptyResultError{Stage: stage.STT}
	}

	return stage.Transcript{Text: text, SourceLanguage: source}, nil
}

// Translate converts text from source to target language
func (c *Client) Translate(ctx context.Context, text string, source, target stage.Language) (stage.Translation, error) {
	body, err := json.Marshal(translateRequest{
		Input:              text,
		SourceLanguageCode: string(source),
		TargetLanguageCode: string(target),
	})
	if err != nil {
		return stage.Translation{}, fmt.Errorf("failed to encode translate request: %w", err)
	}

	var resp translateResponse
	if err := c.do(ctx, stage.Translate, translatePath, "application/json", bytes.NewReader(body), &resp); err != nil {
		return stage.Translation{}, err
	}

	translated := strings.TrimSpace(resp.TranslatedText)
	if translated == "" {
		return stage.Translation{}, &stage.EmptyResultError{Stage: stage.Translate}
	}

	return stage.Translation{Text: translated, SourceLanguage: source, TargetLanguage: target}, nil
}

// Synthesize speaks text in the target language. The first audio payload of
// the response is returned.
func (c *Client) Synthesize(ctx context.Context, text string, target stage.Language) (stage.SynthesizedAudio, error) {
	body, err := json.Marshal(speechRequest{
		Text:               text,
		TargetLanguageCode: string(target),
	})
	if err != nil {
		return stage.SynthesizedAudio{}, fmt.Errorf("failed to encode speech request: %w", err)
	}

	var resp speechResponse
	if err := c.do(ctx, stage.TTS, ttsPath, "application/json", bytes.NewReader(body), &resp); err != nil {
		return stage.SynthesizedAudio{}, err
	}

	if len(resp.Audios) == 0 || resp.Audios[0] == "" {
		return stage.SynthesizedAudio{}, &stage.EmptyResultError{Stage: stage.TTS}
	}

	data, err := base64.StdEncoding.DecodeString(resp.Audios[0])
	if err != nil {
		return stage.SynthesizedAudio{}, &stage.StageError{Stage: stage.TTS, Status: stage.StatusDecode, Err: err}
	}

	if len(data) == 0 {
		return stage.SynthesizedAudio{}, &stage.EmptyResultError{Stage: stage.TTS}
	}

	return stage.SynthesizedAudio{Data: data, Format: "wav"}, nil
}

// do performs a single POST and decodes the JSON response into out
func (c *Client) do(ctx context.Context, s stage.Stage, path, contentType string, body io.Reader, out any) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return &stage.StageError{Stage: s, Status: stage.StatusTransport, Err: err}
	}
	defer c.sem.Release(1)

	c.beginRequest()
	startTime := time.Now()

	err := c.roundTrip(ctx, s, path, contentType, body, out)
	elapsed := time.Since(startTime)
	c.endRequest(err == nil, elapsed)

	if err != nil {
		c.logger.Debug("Sarvam request failed",
			slog.String("stage", string(s)),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()))
		return err
	}

	c.logger.Debug("Sarvam request completed",
		slog.String("stage", string(s)),
		slog.Duration("duration", elapsed))

	return nil
}

func (c *Client) roundTrip(ctx context.Context, s stage.Stage, path, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set(apiKeyHeader, c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Voice-Translate-Service/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) && ctx.Err() == nil {
			return stage.NewTimeoutError(s)
		}
		return &stage.StageError{Stage: s, Status: stage.StatusTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &stage.StageError{Stage: s, Status: stage.StatusTransport, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &stage.StageError{
			Stage:  s,
			Status: strconv.Itoa(resp.StatusCode),
			Body:   truncate(strings.TrimSpace(string(respBody)), maxErrorBody),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &stage.StageError{Stage: s, Status: stage.StatusDecode, Err: fmt.Errorf("failed to parse response JSON: %w", err)}
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Statistics methods
func (c *Client) beginRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.activeRequests++
}

func (c *Client) endRequest(success bool, responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeRequests--
	if !success {
		c.failedRequests++
		return
	}

	c.successRequests++

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  c.activeRequests,
	}
}

// Close waits for in-flight requests to finish or ctx to expire
func (c *Client) Close(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, int64(c.config.MaxConcurrent)); err != nil {
		return fmt.Errorf("waiting for in-flight requests: %w", err)
	}
	c.sem.Release(int64(c.config.MaxConcurrent))
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure Client implements stage.Client at compile time.
var _ stage.Client = (*Client)(nil)
