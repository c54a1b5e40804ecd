package capture

import (
	"time"

	"github.com/yeti47/screenrec/config"
	"github.com/yeti47/screenrec/resolution"
)

// Settings are read once per recording, when the output file is created.
type Settings struct {
	RecordingsFolder string
	// MaxDuration stops a recording automatically; zero disables the deadline.
	MaxDuration      time.Duration
	Resolution       resolution.Resolution
	FrameRate        int
	VideoBitRateKbps int
	VideoEncoder     string
	RecordAudio      bool
	AudioBitRateKbps int
}

// SettingsFromConfig maps the application configuration onto capture settings.
// The config is expected to be validated already, so a bad resolution falls back to the source size.
func SettingsFromConfig(cfg config.Config) Settings {
	res, _ := resolution.Parse(cfg.Resolution)
	return Settings{
		RecordingsFolder: cfg.RecordingsFolder,
		MaxDuration:      time.Duration(cfg.MaxDurationMinutes) * time.Minute,
		Resolution:       res,
		FrameRate:        cfg.FrameRate,
		VideoBitRateKbps: cfg.VideoBitRateKbps,
		VideoEncoder:     cfg.VideoEncoder,
		RecordAudio:      cfg.RecordAudio,
		AudioBitRateKbps: cfg.AudioBitRateKbps,
	}
}

// NewSettingsProvider derives capture settings from a config provider.
func NewSettingsProvider(source config.SettingsProvider[config.Config]) config.SettingsProvider[Settings] {
	return config.Map(source, SettingsFromConfig)
}
