// Package config holds the server configuration and the readers that
// load it from a file.
package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 8000
	DefaultDir               = "."
	DefaultReadHeaderTimeout = 10 * time.Second
)

// ServerConfig is everything the server needs at startup.
// It is built once in main and is not changed afterwards, except for
// Dir which may be re-read from the config file on SIGHUP.
type ServerConfig struct {
	Host string
	Port int    `validate:"min=0,max=65535"`
	Dir  string `validate:"required"`

	// MaxConns limits simultaneously accepted connections, 0 means no limit.
	MaxConns          int           `validate:"min=0"`
	ReadHeaderTimeout time.Duration `validate:"min=0"`
	IdleTimeout       time.Duration `validate:"min=0"`

	// MetricsAddr is the host:port of the Prometheus endpoint.
	// Metrics are off when it is empty.
	MetricsAddr string `validate:"omitempty,listen_addr"`
	Verbose     bool
}

// Default returns the configuration used when nothing is specified.
func Default() ServerConfig {
	return ServerConfig{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Dir:               DefaultDir,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("listen_addr", validListenAddr)
	return v
}

// validListenAddr accepts host:port with a numeric port. The host may be
// empty, a name or an IP, bracketed when it is IPv6.
func validListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p >= 0 && p <= 65535
}

// Validate checks the value ranges of the configuration. The host is left
// to the socket bind.
func (c ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// AbsDir returns the served directory as an absolute path with symlinks
// resolved. A directory that does not exist yet is only made absolute.
func (c ServerConfig) AbsDir() (string, error) {
	abs, err := filepath.Abs(c.Dir)
	if err != nil {
		return "", fmt.Errorf("resolve directory %q: %w", c.Dir, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
