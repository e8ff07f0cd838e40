package config

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Validate checks structural constraints on cfg (required fields, ranges,
// enum membership) via struct tags, including each entry of Origins. It does
// not touch the filesystem or network; Load calls it after ApplyDefaults.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
