// Package config loads binderkit settings from YAML or TOML files and the
// environment.
//
//	cfg, err := config.Load("binderkit.yaml")
//	if err != nil {
//	    return err
//	}
//	log, err := cfg.Logger()
//
// The file format follows the extension. Missing keys keep their defaults
// and unknown keys are rejected. BINDERKIT_LOG_LEVEL and
// BINDERKIT_TRACK_LEAKS override the file.
package config
