package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	output  io.Writer
	strict  bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported to MCP clients.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithOutput sets where Check writes its report.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.output = w
	}
}

// WithStrict makes Check fail on diagnostics as well as load errors.
func WithStrict(strict bool) Option {
	return func(a *application) {
		a.strict = strict
	}
}
