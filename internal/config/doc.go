// Package config loads application configuration from environment variables
// (LICENSE_ prefix) with optional YAML file overrides. Environment variables
// always take precedence over file values.
package config
