// Package config provides configuration helpers for go-voiceform commands.
package config

import "os"

// Default client configuration.
const (
	DefaultServerHost = "localhost:8000"
	DefaultAIRole     = "co-worker"
)

// ServerURL returns the voice server base URL from VOICEFORM_SERVER env var.
// Falls back to the provided default if not set.
func ServerURL(defaultURL string) string {
	if u := os.Getenv("VOICEFORM_SERVER"); u != "" {
		return u
	}
	return defaultURL
}

// AIRole returns the assistant role from VOICEFORM_ROLE env var or default.
func AIRole() string {
	if r := os.Getenv("VOICEFORM_ROLE"); r != "" {
		return r
	}
	return DefaultAIRole
}
