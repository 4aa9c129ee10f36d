package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// MatrixPath points at a single .hcl document or a directory of them.
	MatrixPath string

	// CachePath overrides the result store location. Empty falls back to the
	// environment, then the default file name.
	CachePath string

	Plan      bool
	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.MatrixPath == "" {
		return nil, errors.New("MatrixPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
