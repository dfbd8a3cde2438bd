// Package config loads engine settings from config.yaml and CURATOR_*
// environment variables through viper, applies defaults and validates the
// result with struct tags.
package config
