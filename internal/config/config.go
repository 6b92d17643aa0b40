// Package config provides the configuration structure for the voice worker.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Defaults for the fixed inference constants. They are tunable
// configuration, not derived values.
const (
	DefaultNFESteps          = 32
	DefaultTargetRMS         = 0.1
	DefaultCrossFadeDuration = 0.15
	DefaultMP3Quality        = 2
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	JobsSubject            string `toml:"jobs_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	PublicURLBase          string `toml:"public_url_base"`
}

// SynthesisConfig holds the configuration for the F5 synthesis engine.
type SynthesisConfig struct {
	BinaryPath        string  `toml:"binary_path"`
	CheckpointDir     string  `toml:"checkpoint_dir"`
	NFESteps          int     `toml:"nfe_steps"`
	TargetRMS         float64 `toml:"target_rms"`
	CrossFadeDuration float64 `toml:"cross_fade_duration"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// VoiceColorConfig holds the configuration for the OpenVoice tone converter.
type VoiceColorConfig struct {
	BinaryPath     string `toml:"binary_path"`
	CheckpointDir  string `toml:"checkpoint_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TranscodeConfig holds the configuration for format transcoding.
type TranscodeConfig struct {
	FFmpegPath     string `toml:"ffmpeg_path"`
	MP3Quality     int    `toml:"mp3_quality"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// FetchConfig holds the configuration for reference sample downloads.
type FetchConfig struct {
	TimeoutSeconds   int   `toml:"timeout_seconds"`
	MaxDownloadBytes int64 `toml:"max_download_bytes"`
}

// PipelineConfig holds job orchestration settings.
type PipelineConfig struct {
	WorkDir           string `toml:"work_dir"`
	JobTimeoutSeconds int    `toml:"job_timeout_seconds"`

	// LocalFallbackDir, when set, enables the explicit lower-tier publish
	// fallback: failed uploads land here and the result carries a file://
	// URL plus a warning.
	LocalFallbackDir string `toml:"local_fallback_dir"`
}

// VoicesConfig holds the voice profile registry settings.
type VoicesConfig struct {
	StorageDir string `toml:"storage_dir"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS       NATSConfig       `toml:"nats"`
	Synthesis  SynthesisConfig  `toml:"synthesis"`
	VoiceColor VoiceColorConfig `toml:"voice_color"`
	Transcode  TranscodeConfig  `toml:"transcode"`
	Fetch      FetchConfig      `toml:"fetch"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Voices     VoicesConfig     `toml:"voices"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration for the voice worker.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset tunables with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Synthesis.NFESteps == 0 {
		c.Synthesis.NFESteps = DefaultNFESteps
	}

	if c.Synthesis.TargetRMS == 0 {
		c.Synthesis.TargetRMS = DefaultTargetRMS
	}

	if c.Synthesis.CrossFadeDuration == 0 {
		c.Synthesis.CrossFadeDuration = DefaultCrossFadeDuration
	}

	if c.Transcode.MP3Quality == 0 {
		c.Transcode.MP3Quality = DefaultMP3Quality
	}

	if c.Transcode.FFmpegPath == "" {
		c.Transcode.FFmpegPath = "ffmpeg"
	}
}
