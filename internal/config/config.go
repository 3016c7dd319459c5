// Package config loads fibdrv settings from YAML, JSONC or CUE files and
// FIBDRV_* environment variables.
//
// Every source is checked against the embedded schema.cue, which also
// supplies defaults for anything a file leaves out.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fibdrv/internal/stats"
)

//go:embed schema.cue
var schemaSource string

// Config holds the settings the CLI and service read.
type Config struct {
	// Name is used for the device identity, node and control group.
	Name string `yaml:"name" json:"name"`

	// RenderLimit bounds the statistics listing in bytes.
	RenderLimit int `yaml:"render_limit" json:"render_limit"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DB is an optional SQLite path for snapshot history.
	DB string `yaml:"db,omitempty" json:"db,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Name:        "fibonacci",
		RenderLimit: stats.DefaultRenderLimit,
		LogLevel:    "info",
	}
}

// Level maps LogLevel onto slog.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks c against the schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return err
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads a config file. Files ending in .cue are evaluated as CUE,
// .json and .jsonc are parsed as JSON with comments, and anything else is
// parsed as YAML. Unknown keys are rejected in every format. An empty path
// returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	switch filepath.Ext(path) {
	case ".cue":
		return ParseCUE(data, path)
	case ".json", ".jsonc":
		return ParseJSON(data)
	default:
		return ParseYAML(data)
	}
}

// ParseYAML decodes YAML over Default() and validates the result.
func ParseYAML(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseJSON decodes JSON with comments and trailing commas over Default()
// and validates the result.
func ParseJSON(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing JSON config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseCUE evaluates data as a CUE struct, closes it with the schema so
// unknown fields are errors, and decodes the result.
func ParseCUE(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return Config{}, err
	}
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, fmt.Errorf("parsing CUE config: %w", err)
	}
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding CUE config: %w", err)
	}
	return cfg, nil
}

func compileSchema(ctx *cue.Context) (cue.Value, error) {
	root := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compiling config schema: %w", err)
	}
	def := root.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("config schema: %w", err)
	}
	return def, nil
}

// Environment variables that override file settings.
const (
	EnvName        = "FIBDRV_NAME"
	EnvRenderLimit = "FIBDRV_RENDER_LIMIT"
	EnvLogLevel    = "FIBDRV_LOG_LEVEL"
	EnvDB          = "FIBDRV_DB"
)

// ApplyEnv overlays FIBDRV_* variables found by lookup onto c and
// validates the result. Pass os.LookupEnv in production.
func ApplyEnv(c Config, lookup func(string) (string, bool)) (Config, error) {
	if v, ok := lookup(EnvName); ok {
		c.Name = v
	}
	if v, ok := lookup(EnvRenderLimit); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvRenderLimit, err)
		}
		c.RenderLimit = n
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvDB); ok {
		c.DB = v
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadDotEnv loads environment variables from path without overriding
// ones already set. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
