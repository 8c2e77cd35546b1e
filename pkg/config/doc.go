// Package config loads application configuration from GATEHOUSE_*
// environment variables with sensible defaults and fail-fast validation.
package config
