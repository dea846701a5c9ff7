package server

import (
	"time"

	"github.com/koustreak/stagegen/internal/errs"
)

// Config holds the HTTP listener settings.
type Config struct {
	Addr              string        `koanf:"addr"`
	MaxUploadBytes    int64         `koanf:"max_upload_bytes"` // per request, all parts together
	RequestTimeout    time.Duration `koanf:"request_timeout"`  // 0 disables the per-request deadline
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DefaultConfig returns a listener on :8080 accepting 32 MiB uploads.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		MaxUploadBytes:    32 << 20,
		RequestTimeout:    60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
	}
}

// Validate rejects settings the listener cannot run with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errs.New(errs.ErrKindInvalidInput, "server addr is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "server max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.RequestTimeout < 0 || c.ReadHeaderTimeout < 0 || c.ShutdownTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "server timeouts must not be negative")
	}
	return nil
}
