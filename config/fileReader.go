package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for a config file whose extension is not
// .json, .toml, .yaml or .yml.
var ErrUnknownFormat = errors.New("unknown config file format")

// fileConfig mirrors ServerConfig as it appears in a file. Pointers tell
// an absent key from a zero value.
type fileConfig struct {
	Host              *string `json:"host" toml:"host" yaml:"host"`
	Port              *int    `json:"port" toml:"port" yaml:"port"`
	Dir               *string `json:"dir" toml:"dir" yaml:"dir"`
	MaxConns          *int    `json:"max_conns" toml:"max_conns" yaml:"max_conns"`
	ReadHeaderTimeout string  `json:"read_header_timeout" toml:"read_header_timeout" yaml:"read_header_timeout"`
	IdleTimeout       string  `json:"idle_timeout" toml:"idle_timeout" yaml:"idle_timeout"`
	Metrics           *string `json:"metrics" toml:"metrics" yaml:"metrics"`
	Verbose           *bool   `json:"verbose" toml:"verbose" yaml:"verbose"`
}

// FileReader reads a ServerConfig from a JSON, TOML or YAML file.
type FileReader struct {
	file *os.File
	ext  string
}

// NewFileReader opens the config file at path.
func NewFileReader(path string) (*FileReader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".toml", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileReader{file: file, ext: ext}, nil
}

// Close closes the config file.
func (r *FileReader) Close() error {
	return r.file.Close()
}

// ReadServerConfig applies the keys present in the file on top of base
// and returns the result. Keys missing from the file keep base's values.
func (r *FileReader) ReadServerConfig(base ServerConfig) (ServerConfig, error) {
	data, err := io.ReadAll(r.file)
	if err != nil {
		return base, err
	}

	var fc fileConfig
	switch r.ext {
	case ".json":
		err = json.Unmarshal(data, &fc)
	case ".toml":
		_, err = toml.Decode(string(data), &fc)
	default:
		err = yaml.Unmarshal(data, &fc)
	}
	if err != nil {
		return base, fmt.Errorf("parse %s: %w", r.file.Name(), err)
	}

	return fc.apply(base)
}

func (fc *fileConfig) apply(c ServerConfig) (ServerConfig, error) {
	if fc.Host != nil {
		c.Host = *fc.Host
	}
	if fc.Port != nil {
		c.Port = *fc.Port
	}
	if fc.Dir != nil {
		c.Dir = *fc.Dir
	}
	if fc.MaxConns != nil {
		c.MaxConns = *fc.MaxConns
	}
	if fc.Metrics != nil {
		c.MetricsAddr = *fc.Metrics
	}
	if fc.Verbose != nil {
		c.Verbose = *fc.Verbose
	}

	var err error
	if fc.ReadHeaderTimeout != "" {
		if c.ReadHeaderTimeout, err = time.ParseDuration(fc.ReadHeaderTimeout); err != nil {
			return c, fmt.Errorf("read_header_timeout: %w", err)
		}
	}
	if fc.IdleTimeout != "" {
		if c.IdleTimeout, err = time.ParseDuration(fc.IdleTimeout); err != nil {
			return c, fmt.Errorf("idle_timeout: %w", err)
		}
	}
	return c, nil
}

// ReadFile is a shortcut for NewFileReader, ReadServerConfig and Close.
func ReadFile(path string, base ServerConfig) (ServerConfig, error) {
	r, err := NewFileReader(path)
	if err != nil {
		return base, err
	}
	defer r.Close()

	return r.ReadServerConfig(base)
}
