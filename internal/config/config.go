package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skypro1111/live-translator/internal/queue"
	"github.com/skypro1111/live-translator/internal/translation"
)

// Config represents the complete service configuration
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Source      SourceConfig      `yaml:"source"`
	Queue       QueueConfig       `yaml:"queue"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Translation TranslationConfig `yaml:"translation"`
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AudioConfig contains chunking parameters
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds
}

// SourceConfig selects the live audio input
type SourceConfig struct {
	Type string    `yaml:"type"` // stdin, file or udp
	Path string    `yaml:"path"` // WAV file for type file
	Pace bool      `yaml:"pace"` // release file audio in real time
	UDP  UDPConfig `yaml:"udp"`
}

// UDPConfig contains UDP ingest configuration
type UDPConfig struct {
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	IdleTimeout int    `yaml:"idle_timeout"` // seconds, 0 waits forever
	MaxBuffered int    `yaml:"max_buffered"` // seconds of audio kept before the oldest is dropped
}

// QueueConfig contains the chunk queue bound and overflow policy
type QueueConfig struct {
	Capacity int    `yaml:"capacity"` // 0 is unbounded
	Policy   string `yaml:"policy"`   // block or drop_oldest
}

// RecognitionConfig contains speech recognition API configuration
type RecognitionConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	Model         string  `yaml:"model"`
	Language      string  `yaml:"language"`
	BeamSize      int     `yaml:"beam_size"`
	Temperature   float32 `yaml:"temperature"`
	Timeout       int     `yaml:"timeout"` // seconds, 0 disables
	MaxRetries    int     `yaml:"max_retries"`
	BackoffBase   float64 `yaml:"backoff_base"` // seconds
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// TranslationConfig contains translation API configuration
type TranslationConfig struct {
	Endpoint        string  `yaml:"endpoint"`
	APIKey          string  `yaml:"api_key"`
	SourceLanguage  string  `yaml:"source_language"`
	DefaultLanguage string  `yaml:"default_language"`
	Timeout         int     `yaml:"timeout"` // seconds, 0 disables
	MaxRetries      int     `yaml:"max_retries"`
	BackoffBase     float64 `yaml:"backoff_base"` // seconds
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`

	// AllowedOrigins lists browser origins that may open /ws besides the
	// server's own; "*" allows any
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json or console
	Output string `yaml:"output"`
}

// Default returns a configuration that runs without a config file:
// stdin audio, local recognition and translation backends
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			ChunkDuration: 5,
		},
		Source: SourceConfig{
			Type: "stdin",
			UDP: UDPConfig{
				Port:        4444,
				BindAddress: "0.0.0.0",
				BufferSize:  65536,
				IdleTimeout: 30,
				MaxBuffered: 60,
			},
		},
		Queue: QueueConfig{
			Capacity: 0,
			Policy:   "block",
		},
		Recognition: RecognitionConfig{
			Endpoint:      "http://127.0.0.1:9000/v1/audio/transcriptions",
			Model:         "whisper-1",
			BeamSize:      5,
			Timeout:       60,
			MaxRetries:    2,
			BackoffBase:   1,
			MaxConcurrent: 4,
		},
		Translation: TranslationConfig{
			Endpoint:        "http://127.0.0.1:5000/translate",
			SourceLanguage:  "auto",
			DefaultLanguage: "pt",
			Timeout:         15,
			MaxRetries:      1,
			BackoffBase:     1,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	if a.ChunkDuration*float64(a.SampleRate) < 1 {
		return fmt.Errorf("chunk_duration must cover at least one sample, got %f", a.ChunkDuration)
	}

	if a.ChunkDuration > 60 {
		return fmt.Errorf("chunk_duration must be at most 60 seconds, got %f", a.ChunkDuration)
	}

	return nil
}

// Validate validates source configuration
func (s *SourceConfig) Validate() error {
	switch s.Type {
	case "stdin":
	case "file":
		if s.Path == "" {
			return fmt.Errorf("path cannot be empty for file source")
		}
	case "udp":
		if err := s.UDP.Validate(); err != nil {
			return fmt.Errorf("udp: %w", err)
		}
	default:
		return fmt.Errorf("type must be one of [stdin, file, udp], got '%s'", s.Type)
	}

	return nil
}

// Validate validates UDP ingest configuration
func (u *UDPConfig) Validate() error {
	if u.Port < 1 || u.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", u.Port)
	}

	if u.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if u.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", u.BufferSize)
	}

	if u.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", u.IdleTimeout)
	}

	if u.MaxBuffered < 1 {
		return fmt.Errorf("max_buffered must be at least 1 second, got %d", u.MaxBuffered)
	}

	return nil
}

// Validate validates queue configuration
func (q *QueueConfig) Validate() error {
	if q.Capacity < 0 {
		return fmt.Errorf("capacity cannot be negative, got %d", q.Capacity)
	}

	if _, err := queue.ParsePolicy(q.Policy); err != nil {
		return err
	}

	return nil
}

// Validate validates recognition configuration
func (r *RecognitionConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if r.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", r.Timeout)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries)
	}

	if r.BeamSize < 1 {
		return fmt.Errorf("beam_size must be at least 1, got %d", r.BeamSize)
	}

	if r.Temperature < 0 || r.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", r.Temperature)
	}

	if r.BackoffBase < 0 {
		return fmt.Errorf("backoff_base cannot be negative, got %f", r.BackoffBase)
	}

	if r.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", r.MaxConcurrent)
	}

	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if _, err := translation.ParseLanguage(t.DefaultLanguage); err != nil {
		return fmt.Errorf("default_language: %w", err)
	}

	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.BackoffBase < 0 {
		return fmt.Errorf("backoff_base cannot be negative, got %f", t.BackoffBase)
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

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be one of [json, text, console], got '%s'", l.Format)
	}

	// Anything other than stdout or stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// GetChunkDuration returns the chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetIdleTimeoutDuration returns the UDP idle timeout as a time.Duration
func (u *UDPConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(u.IdleTimeout) * time.Second
}

// GetMaxBufferedDuration returns the UDP buffer limit as a time.Duration
func (u *UDPConfig) GetMaxBufferedDuration() time.Duration {
	return time.Duration(u.MaxBuffered) * time.Second
}

// GetQueuePolicy returns the parsed overflow policy
func (q *QueueConfig) GetQueuePolicy() queue.Policy {
	policy, _ := queue.ParsePolicy(q.Policy)
	return policy
}

// GetTimeoutDuration returns the recognition timeout as a time.Duration
func (r *RecognitionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetBackoffBaseDuration returns the first retry delay as a time.Duration
func (r *RecognitionConfig) GetBackoffBaseDuration() time.Duration {
	return time.Duration(r.BackoffBase * float64(time.Second))
}

// GetTimeoutDuration returns the translation timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetBackoffBaseDuration returns the first retry delay as a time.Duration
func (t *TranslationConfig) GetBackoffBaseDuration() time.Duration {
	return time.Duration(t.BackoffBase * float64(time.Second))
}

// Redacted returns a copy of the configuration with secrets removed
func (c *Config) Redacted() *Config {
	redacted := *c
	if redacted.Recognition.APIKey != "" {
		redacted.Recognition.APIKey = "***"
	}
	if redacted.Translation.APIKey != "" {
		redacted.Translation.APIKey = "***"
	}
	return &redacted
}
