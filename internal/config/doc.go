// Package config loads the taskboard runtime configuration from a JSON or
// YAML file, fills defaults for every omitted field and applies a small set
// of environment overrides.
package config
