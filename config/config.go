// Package config loads the process configuration of the veloxdb command.
//
// The configuration is a YAML document:
//
//	storage:
//	  driver: sqlite            # memory, bolt, sqlite, postgres or mysql
//	  dsn: file:veloxdb.db      # sql drivers
//	  path: veloxdb.bolt        # bolt
//	schema: schema.yaml
//	log:
//	  level: info               # zerolog level
//	  format: console           # console or json
//	  slowQuery: 200ms          # sql drivers; 0 disables slow query logs
//	concurrency: 8
//
// Missing keys take the values of Default.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/syssam/veloxdb/dialect"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverBolt   = "bolt"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Drivers lists the storage drivers a Config may name.
var Drivers = []string{DriverMemory, DriverBolt, dialect.SQLite, dialect.Postgres, dialect.MySQL}

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid configuration")

type (
	// Config is the process configuration.
	Config struct {
		Storage     Storage `yaml:"storage"`
		Schema      string  `yaml:"schema"`
		Log         Log     `yaml:"log"`
		Concurrency int     `yaml:"concurrency"`
	}

	// Storage selects and configures the storage adapter.
	Storage struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
		Path   string `yaml:"path"`
	}

	// Log configures the process logger.
	Log struct {
		Level     string        `yaml:"level"`
		Format    string        `yaml:"format"`
		SlowQuery time.Duration `yaml:"slowQuery"`
	}
)

// Default returns the configuration used for missing keys.
func Default() *Config {
	return &Config{
		Storage: Storage{Driver: DriverMemory},
		Log: Log{
			Level:     zerolog.LevelInfoValue,
			Format:    FormatConsole,
			SlowQuery: 200 * time.Millisecond,
		},
	}
}

// Load reads a configuration document from r on top of Default and
// validates it. Unknown keys are rejected.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the configuration file at path. A relative schema path is
// resolved against the directory of the file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	cfg, err := Load(f)
	if err != nil {
		return nil, err
	}
	if cfg.Schema != "" && !filepath.IsAbs(cfg.Schema) {
		cfg.Schema = filepath.Join(filepath.Dir(path), cfg.Schema)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case !slices.Contains(Drivers, c.Storage.Driver):
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	case c.Storage.Driver == DriverBolt && c.Storage.Path == "":
		return fmt.Errorf("%w: storage.path is required by the bolt driver", ErrInvalid)
	case c.IsSQL() && c.Storage.DSN == "":
		return fmt.Errorf("%w: storage.dsn is required by the %s driver", ErrInvalid, c.Storage.Driver)
	case c.Log.Format != FormatConsole && c.Log.Format != FormatJSON:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalid, c.Log.Format)
	case c.Log.SlowQuery < 0:
		return fmt.Errorf("%w: negative log.slowQuery", ErrInvalid)
	case c.Concurrency < 0:
		return fmt.Errorf("%w: negative concurrency", ErrInvalid)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// IsSQL reports whether the storage driver is a SQL database.
func (c *Config) IsSQL() bool {
	switch c.Storage.Driver {
	case dialect.SQLite, dialect.Postgres, dialect.MySQL:
		return true
	}
	return false
}

// Logger returns the logger described by the log settings, writing to w.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.Log.Format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
