// Package config loads the arena configuration from defaults, a YAML file,
// ARENA_* environment variables and command-line overrides.
package config
