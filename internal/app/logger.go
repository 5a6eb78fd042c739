package app

import (
	"analogpad/internal/config"
	"analogpad/internal/logging"
)

// NewLogger builds the daemon logger from the logging section.
func NewLogger(c config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = c.Output
	cfg.FilePath = c.FilePath
	cfg.MaxSizeMB = c.MaxSizeMB
	cfg.MaxAgeDays = c.MaxAgeDays
	cfg.MaxBackups = c.MaxBackups
	cfg.Compress = c.Compress
	cfg.AddSource = level == logging.LevelDebug
	return logging.New(cfg)
}
