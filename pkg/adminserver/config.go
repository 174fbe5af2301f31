package adminserver

import "time"

// Config holds the admin server's settings. It is deliberately small: this
// surface is observability-only (spec §1 excludes a query/CLI layer), so
// there is no document cache, CORS, or TLS knob to carry over from the
// teacher's server.Config.
type Config struct {
	Host         string        // listen host
	Port         int           // listen port
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
	IdleTimeout  time.Duration // HTTP idle timeout
}

// DefaultConfig returns sensible defaults for the admin server.
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         8090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
