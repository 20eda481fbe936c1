// Package config loads the application configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// TANAGRAPH_* variables from a .env file, then TANAGRAPH_* variables from
// the process environment. Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TANAGRAPH_"

// Config is the application configuration.
type Config struct {
	// FilesDir is where relative source paths are resolved.
	FilesDir string `yaml:"files_dir"`
	// SourcePath is the export used when a request names none.
	SourcePath  string `yaml:"source"`
	MetadataDir string `yaml:"metadata_dir" validate:"required"`
	BackupsDir  string `yaml:"backups_dir" validate:"required"`
	DataDir     string `yaml:"data_dir" validate:"required"`

	CacheTTL        time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	CacheMaxSources int           `yaml:"cache_max_sources" validate:"min=1"`
	IncludeSystem   bool          `yaml:"include_system"`

	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`

	Watch          bool   `yaml:"watch"`
	HistoryEnabled bool   `yaml:"history"`
	HistoryKeep    int    `yaml:"history_keep" validate:"gte=0"`
	MetricsAddr    string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when nothing overrides it. All
// state lives under ~/.tanagraph.
func Default() Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".tanagraph")
	return Config{
		FilesDir:        filepath.Join(base, "files"),
		MetadataDir:     filepath.Join(base, "metadata"),
		BackupsDir:      filepath.Join(base, "backups"),
		DataDir:         base,
		CacheTTL:        30 * time.Second,
		CacheMaxSources: 16,
		LogLevel:        "info",
		HistoryEnabled:  true,
		HistoryKeep:     20,
	}
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// File is the YAML config path. Empty falls back to TANAGRAPH_CONFIG;
	// when that is unset too no file is read. A named file must exist.
	File string
	// EnvFile is the dotenv path. Empty means ".env"; a missing dotenv
	// file is ignored.
	EnvFile string
	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}

	dotenv, err := godotenv.Read(opts.EnvFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading %s: %w", opts.EnvFile, err)
	}
	lookup := func(key string) (string, bool) {
		if v, ok := opts.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	cfg := Default()

	file := opts.File
	if file == "" {
		file, _ = lookup(EnvPrefix + "CONFIG")
	}
	if file != "" {
		if err := cfg.readFile(file); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"FILES_DIR":    &c.FilesDir,
		"SOURCE":       &c.SourcePath,
		"METADATA_DIR": &c.MetadataDir,
		"BACKUPS_DIR":  &c.BackupsDir,
		"DATA_DIR":     &c.DataDir,
		"LOG_LEVEL":    &c.LogLevel,
		"METRICS_ADDR": &c.MetricsAddr,
	}
	for name, dst := range str {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	flags := map[string]*bool{
		"DEV":            &c.Development,
		"WATCH":          &c.Watch,
		"HISTORY":        &c.HistoryEnabled,
		"INCLUDE_SYSTEM": &c.IncludeSystem,
	}
	for name, dst := range flags {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
	}

	ints := map[string]*int{
		"CACHE_MAX_SOURCES": &c.CacheMaxSources,
		"HISTORY_KEEP":      &c.HistoryKeep,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	if v, ok := lookup(EnvPrefix + "CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sCACHE_TTL: %w", EnvPrefix, err)
		}
		c.CacheTTL = d
	}
	return nil
}

// expand replaces a leading ~ in directory settings.
func (c *Config) expand() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, p := range []*string{&c.FilesDir, &c.SourcePath, &c.MetadataDir, &c.BackupsDir, &c.DataDir} {
		if *p == "~" {
			*p = home
		} else if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ResolveSource turns a source argument into a path: empty selects
// SourcePath, relative paths are taken from FilesDir.
func (c *Config) ResolveSource(p string) string {
	if p == "" {
		p = c.SourcePath
	}
	if p == "" || filepath.IsAbs(p) || c.FilesDir == "" {
		return p
	}
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return filepath.Join(c.FilesDir, p)
}
