package internal

import (
	"log/slog"
	"time"
)

// Option is a functional option for configuring the pipeline.
type Option func(*Pipeline)

// WithConfig sets the pipeline configuration.
func WithConfig(cfg *Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithNow fixes the pipeline clock; tests use it for deterministic
// timestamps and archive names.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}
