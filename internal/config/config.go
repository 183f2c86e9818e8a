package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/skypro1111/voice-translate-service/internal/stage"
)

// APIKeyEnv names the environment variable holding the Sarvam subscription key
const APIKeyEnv = "SARVAM_API_KEY"

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Audio     AudioConfig     `yaml:"audio"`
	Languages LanguagesConfig `yaml:"languages"`
	Sarvam    SarvamConfig    `yaml:"sarvam"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains UDP ingest server configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	Workers     int    `yaml:"workers"`
	Enabled     bool   `yaml:"enabled"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	MaxCaptureDuration float64 `yaml:"max_capture_duration"` // seconds, 0 = unlimited
	SpoolDir           string  `yaml:"spool_dir"`            // empty = system temp dir
	InMemorySpool      bool    `yaml:"in_memory_spool"`
}

// Language is one entry of the language catalogue
type Language struct {
	Name string `yaml:"name" json:"name"`
	Code string `yaml:"code" json:"code"`
}

// LanguagesConfig contains the language catalogue and run defaults
type LanguagesConfig struct {
	Supported     []Language `yaml:"supported"`
	DefaultInput  string     `yaml:"default_input"`  // display name
	DefaultOutput string     `yaml:"default_output"` // display name
}

// SarvamConfig contains Sarvam API configuration
type SarvamConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// PipelineConfig contains run and session lifetime settings
type PipelineConfig struct {
	StageTimeout    int `yaml:"stage_timeout"`    // seconds
	SessionTimeout  int `yaml:"session_timeout"`  // seconds
	CleanupInterval int `yaml:"cleanup_interval"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultLanguages is the catalogue used when the config file names none
var DefaultLanguages = []Language{
	{Name: "English", Code: "en-IN"},
	{Name: "Hindi", Code: "hi-IN"},
	{Name: "Tamil", Code: "ta-IN"},
	{Name: "Telugu", Code: "te-IN"},
	{Name: "Kannada", Code: "kn-IN"},
	{Name: "Gujarati", Code: "gu-IN"},
	{Name: "Bengali", Code: "bn-IN"},
	{Name: "Malayalam", Code: "ml-IN"},
	{Name: "Marathi", Code: "mr-IN"},
}

// Default returns a configuration with every field set to its default
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:     4444,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
			Workers:     4,
			Enabled:     true,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Audio: AudioConfig{
			MaxCaptureDuration: 60,
		},
		Languages: LanguagesConfig{
			Supported:     append([]Language(nil), DefaultLanguages...),
			DefaultInput:  "English",
			DefaultOutput: "Hindi",
		},
		Sarvam: SarvamConfig{
			BaseURL:       "https://api.sarvam.ai",
			Timeout:       30,
			MaxConcurrent: 10,
		},
		Pipeline: PipelineConfig{
			StageTimeout:    30,
			SessionTimeout:  300,
			CleanupInterval: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadEnv loads environment variables from .env files. Missing files are
// ignored; with no arguments ./.env is tried.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	return nil
}

// Load reads and parses the configuration file. Fields absent from the file
// keep their defaults, and SARVAM_API_KEY fills an empty sarvam.api_key.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return config, nil
}

// Parse decodes YAML configuration, applies the environment and validates it
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv copies secrets from the environment into empty fields
func (c *Config) ApplyEnv() {
	if c.Sarvam.APIKey == "" {
		c.Sarvam.APIKey = os.Getenv(APIKeyEnv)
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Languages.Validate(); err != nil {
		return fmt.Errorf("languages config: %w", err)
	}

	if err := c.Sarvam.Validate(); err != nil {
		return fmt.Errorf("sarvam config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.MaxCaptureDuration < 0 {
		return fmt.Errorf("max_capture_duration cannot be negative, got %f", a.MaxCaptureDuration)
	}

	if a.SpoolDir != "" {
		info, err := os.Stat(a.SpoolDir)
		if err != nil {
			return fmt.Errorf("spool_dir %s: %w", a.SpoolDir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("spool_dir %s is not a directory", a.SpoolDir)
		}
	}

	return nil
}

// Validate validates the language catalogue
func (l *LanguagesConfig) Validate() error {
	if len(l.Supported) == 0 {
		return fmt.Errorf("supported languages cannot be empty")
	}

	names := make(map[string]bool, len(l.Supported))
	codes := make(map[string]bool, len(l.Supported))
	for _, lang := range l.Supported {
		if lang.Name == "" || lang.Code == "" {
			return fmt.Errorf("language entries need a name and a code, got %+v", lang)
		}
		if names[lang.Name] {
			return fmt.Errorf("duplicate language name %q", lang.Name)
		}
		if codes[lang.Code] {
			return fmt.Errorf("duplicate language code %q", lang.Code)
		}
		names[lang.Name] = true
		codes[lang.Code] = true
	}

	if _, ok := l.Lookup(l.DefaultInput); !ok {
		return fmt.Errorf("default_input %q is not a supported language", l.DefaultInput)
	}

	if _, ok := l.Lookup(l.DefaultOutput); !ok {
		return fmt.Errorf("default_output %q is not a supported language", l.DefaultOutput)
	}

	return nil
}

// Validate validates Sarvam configuration
func (s *SarvamConfig) Validate() error {
	if s.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if s.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it in the file or via %s)", APIKeyEnv)
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", s.MaxConcurrent)
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.StageTimeout < 1 {
		return fmt.Errorf("stage_timeout must be at least 1 second, got %d", p.StageTimeout)
	}

	if p.SessionTimeout < 1 {
		return fmt.Errorf("session_timeout must be at least 1 second, got %d", p.SessionTimeout)
	}

	if p.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", p.CleanupInterval)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path
	return nil
}

// Lookup resolves a display name or a language code to its catalogue code
func (l *LanguagesConfig) Lookup(nameOrCode string) (stage.Language, bool) {
	for _, lang := range l.Supported {
		if lang.Name == nameOrCode || lang.Code == nameOrCode {
			return stage.Language(lang.Code), true
		}
	}
	return "", false
}

// Codes returns the catalogue codes in declaration order
func (l *LanguagesConfig) Codes() []stage.Language {
	codes := make([]stage.Language, 0, len(l.Supported))
	for _, lang := range l.Supported {
		codes = append(codes, stage.Language(lang.Code))
	}
	return codes
}

// DefaultInputCode returns the code of the default input language
func (l *LanguagesConfig) DefaultInputCode() stage.Language {
	code, _ := l.Lookup(l.DefaultInput)
	return code
}

// DefaultOutputCode returns the code of the default output language
func (l *LanguagesConfig) DefaultOutputCode() stage.Language {
	code, _ := l.Lookup(l.DefaultOutput)
	return code
}

// GetMaxCaptureDuration returns the recording limit as a time.Duration
func (a *AudioConfig) GetMaxCaptureDuration() time.Duration {
	return time.Duration(a.MaxCaptureDuration * float64(time.Second))
}

// GetTimeoutDuration returns the Sarvam HTTP timeout as a time.Duration
func (s *SarvamConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetStageTimeoutDuration returns the per-stage timeout as a time.Duration
func (p *PipelineConfig) GetStageTimeoutDuration() time.Duration {
	return time.Duration(p.StageTimeout) * time.Second
}

// GetSessionTimeoutDuration returns the session idle timeout as a time.Duration
func (p *PipelineConfig) GetSessionTimeoutDuration() time.Duration {
	return time.Duration(p.SessionTimeout) * time.Second
}

// GetCleanupIntervalDuration returns the session cleanup interval as a time.Duration
func (p *PipelineConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(p.CleanupInterval) * time.Second
}

// Sanitized returns a copy safe to expose over the API
func (c *Config) Sanitized() Config {
	sanitized := *c
	if sanitized.Sarvam.APIKey != "" {
		sanitized.Sarvam.APIKey = "***"
	}
	return sanitized
}
