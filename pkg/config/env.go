// Package config provides helpers for reading typed configuration values
// from environment variables. Invalid values fall back to the default and
// log a warning instead of failing, so a typo never prevents the client from starting.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvString returns the value of an environment variable or defaultValue
// when it is unset or empty. Surrounding whitespace is trimmed.
//
// Example:
//
//	baseURL := GetEnvString("GALLERY_API_BASE_URL", "http://localhost:3000")
func GetEnvString(key, defaultValue string) string {
	if v := lookup(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvInt returns the value of an environment variable as an integer.
//
// Example:
//
//	burst := GetEnvInt("GALLERY_RATE_LIMIT_BURST", 5)
func GetEnvInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

// GetEnvFloat returns the value of an environment variable as a float64.
func GetEnvFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvDuration returns the value of an environment variable as a time.Duration.
// The value must be accepted by time.ParseDuration (e.g. "500ms", "30s").
//
// Example:
//
//	timeout := GetEnvDuration("GALLERY_API_TIMEOUT", 10*time.Second)
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, time.ParseDuration)
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// parseEnv returns defaultValue when key is unset or empty, and also when
// parse rejects the value, logging a warning in that case.
func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := lookup(key)
	if raw == "" {
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		slog.Warn("invalid environment variable, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Any("default", defaultValue),
			slog.String("error", err.Error()))
		return defaultValue
	}
	return v
}
