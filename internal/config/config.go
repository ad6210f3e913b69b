// Package config provides configuration loading for assetvault.
package config

import "time"

// Config is flat and YAML/env friendly. Precedence: defaults, then the
// optional YAML file, then ASSETVAULT_* environment variables, then flags
// (applied in cmd).
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `koanf:"addr"`

	// ProjectsDir is the store root; each first-level directory is a project.
	ProjectsDir string `koanf:"projects_dir"`

	// StateDir holds thumbnails and other derived state.
	// Default: <projects_dir>/.assetvault
	StateDir string `koanf:"state_dir"`

	// AllowLegacyPlaintext accepts pre-hash plaintext credential records.
	// Off by default; every legacy verification is logged.
	AllowLegacyPlaintext bool `koanf:"allow_legacy_plaintext"`

	// SessionTTL is the idle timeout for session tokens. Zero keeps tokens
	// valid for the process lifetime.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// ThumbMax is the longest edge of generated thumbnails, in pixels.
	ThumbMax int `koanf:"thumb_max"`

	// WebDAV enables the per-project /dav/ mount.
	WebDAV bool `koanf:"webdav"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
}

func Default() Config {
	return Config{
		Addr:     "0.0.0.0:8420",
		ThumbMax: 256,
		WebDAV:   true,
		LogLevel: "info",
	}
}
