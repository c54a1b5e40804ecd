package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yeti47/screenrec/resolution"
)

// Config holds the application configuration
type Config struct {
	RecordingsFolder   string `json:"recordings_folder"`
	MaxDurationMinutes int    `json:"max_duration_minutes"` // 0 disables the recording deadline
	Resolution         string `json:"resolution"`           // empty keeps the source resolution
	FrameRate          int    `json:"frame_rate"`
	VideoBitRateKbps   int    `json:"video_bitrate_kbps"`
	VideoEncoder       string `json:"video_encoder"` // preferred GStreamer H.264 encoder element
	RecordAudio        bool   `json:"record_audio"`
	AudioBitRateKbps   int    `json:"audio_bitrate_kbps"`
	StopOnScreenOff    bool   `json:"stop_on_screen_off"`
	StopOnShake        bool   `json:"stop_on_shake"`
	Notifications      bool   `json:"notifications"`
	ListenAddr         string `json:"listen_addr"`
	ControlToken       string `json:"control_token"` // empty leaves the control API open on ListenAddr
	DatabasePath       string `json:"database_path"`
	LogPath            string `json:"log_path"`
	LogLevel           string `json:"log_level"`
	TrimWorkers        int    `json:"trim_workers"`
	TrimQueueSize      int    `json:"trim_queue_size"`
}

const (
	defaultFrameRate        = 30
	defaultVideoBitRateKbps = 8000
	defaultAudioBitRateKbps = 128
	defaultVideoEncoder     = "x264enc"
	defaultListenAddr       = "127.0.0.1:8765"
	defaultLogLevel         = "info"
	defaultTrimWorkers      = 2
	defaultTrimQueueSize    = 16
)

// DefaultConfigPath returns $XDG_CONFIG_HOME/screenrec/config.json.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(dir, "screenrec", "config.json")
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "screenrec")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "screenrec-data"
	}
	return filepath.Join(home, ".local", "share", "screenrec")
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	recordings := "recordings"
	if home, err := os.UserHomeDir(); err == nil {
		recordings = filepath.Join(home, "Videos", "screenrec")
	}

	data := dataDir()
	return &Config{
		RecordingsFolder: recordings,
		FrameRate:        defaultFrameRate,
		VideoBitRateKbps: defaultVideoBitRateKbps,
		VideoEncoder:     defaultVideoEncoder,
		RecordAudio:      false,
		AudioBitRateKbps: defaultAudioBitRateKbps,
		Notifications:    true,
		ListenAddr:       defaultListenAddr,
		DatabasePath:     filepath.Join(data, "recordings.db"),
		LogPath:          filepath.Join(data, "logs"),
		LogLevel:         defaultLogLevel,
		TrimWorkers:      defaultTrimWorkers,
		TrimQueueSize:    defaultTrimQueueSize,
	}
}

// LoadConfig loads configuration from a JSON file.
// A missing file is created with default values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			defaultConfig := DefaultConfig()
			if err := SaveConfig(filename, defaultConfig); err != nil {
				return nil, fmt.Errorf("failed to create default config file: %w", err)
			}
			return defaultConfig, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills in zero values that have a sensible default.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.RecordingsFolder == "" {
		c.RecordingsFolder = defaults.RecordingsFolder
	}
	if c.FrameRate == 0 {
		c.FrameRate = defaultFrameRate
	}
	if c.VideoBitRateKbps == 0 {
		c.VideoBitRateKbps = defaultVideoBitRateKbps
	}
	if c.VideoEncoder == "" {
		c.VideoEncoder = defaultVideoEncoder
	}
	if c.AudioBitRateKbps == 0 {
		c.AudioBitRateKbps = defaultAudioBitRateKbps
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaults.DatabasePath
	}
	if c.LogPath == "" {
		c.LogPath = defaults.LogPath
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.TrimWorkers == 0 {
		c.TrimWorkers = defaultTrimWorkers
	}
	if c.TrimQueueSize == 0 {
		c.TrimQueueSize = defaultTrimQueueSize
	}
}

// Validate checks the configuration for values that cannot be used.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.RecordingsFolder) == "" {
		errs = append(errs, errors.New("recordings_folder is required"))
	}
	if c.MaxDurationMinutes < 0 {
		errs = append(errs, fmt.Errorf("max_duration_minutes must not be negative, got %d", c.MaxDurationMinutes))
	}
	if c.FrameRate <= 0 || c.FrameRate > 240 {
		errs = append(errs, fmt.Errorf("frame_rate must be between 1 and 240, got %d", c.FrameRate))
	}
	if c.VideoBitRateKbps <= 0 {
		errs = append(errs, fmt.Errorf("video_bitrate_kbps must be positive, got %d", c.VideoBitRateKbps))
	}
	if c.RecordAudio && c.AudioBitRateKbps <= 0 {
		errs = append(errs, fmt.Errorf("audio_bitrate_kbps must be positive, got %d", c.AudioBitRateKbps))
	}
	if c.Resolution != "" {
		if _, err := resolution.Parse(c.Resolution); err != nil {
			errs = append(errs, fmt.Errorf("invalid resolution: %w", err))
		}
	}
	if c.TrimWorkers < 1 {
		errs = append(errs, fmt.Errorf("trim_workers must be at least 1, got %d", c.TrimWorkers))
	}
	if c.TrimQueueSize < 1 {
		errs = append(errs, fmt.Errorf("trim_queue_size must be at least 1, got %d", c.TrimQueueSize))
	}

	return errors.Join(errs...)
}

// ConfigOverrides holds potential override values for configuration
type ConfigOverrides struct {
	RecordingsFolder   *string
	MaxDurationMinutes *int
	Resolution         *string
	FrameRate          *int
	VideoEncoder       *string
	RecordAudio        *bool
	ListenAddr         *string
	LogLevel           *string
}

// Override allows overriding specific configuration values using ConfigOverrides struct
func (c *Config) Override(overrides ConfigOverrides) {
	if overrides.RecordingsFolder != nil && *overrides.RecordingsFolder != "" {
		c.RecordingsFolder = *overrides.RecordingsFolder
	}
	if overrides.MaxDurationMinutes != nil && *overrides.MaxDurationMinutes >= 0 {
		c.MaxDurationMinutes = *overrides.MaxDurationMinutes
	}
	if overrides.Resolution != nil && *overrides.Resolution != "" {
		c.Resolution = *overrides.Resolution
	}
	if overrides.FrameRate != nil && *overrides.FrameRate > 0 {
		c.FrameRate = *overrides.FrameRate
	}
	if overrides.VideoEncoder != nil && *overrides.VideoEncoder != "" {
		c.VideoEncoder = *overrides.VideoEncoder
	}
	if overrides.RecordAudio != nil {
		c.RecordAudio = *overrides.RecordAudio
	}
	if overrides.ListenAddr != nil && *overrides.ListenAddr != "" {
		c.ListenAddr = *overrides.ListenAddr
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		c.LogLevel = *overrides.LogLevel
	}
}

// SaveConfig saves a configuration to a JSON file
func SaveConfig(filename string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
