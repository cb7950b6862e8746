// Package config loads and validates the pipeline configuration. The file is
// YAML; its shape is checked against an embedded CUE schema before decoding,
// so a typo'd key or mistyped value fails with a schema error instead of
// being silently dropped.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the fully resolved pipeline configuration.
type Config struct {
	Source      Source      `yaml:"source"`
	Diagnostics Diagnostics `yaml:"diagnostics"`
	RunLog      RunLog      `yaml:"runlog"`
	Resources   Resources   `yaml:"resources"`
	Quota       int         `yaml:"quota"`
	Build       Build       `yaml:"build"`
}

// Source names the input tree to translate.
type Source struct {
	Path string `yaml:"path"`
}

// Diagnostics configures the diagnostics directory. An empty Dir means a
// temporary directory that is discarded when the run ends.
type Diagnostics struct {
	Dir string `yaml:"dir"`
}

// RunLog configures the run-log database.
type RunLog struct {
	Path string `yaml:"path"`
}

// Resources is the scheduler's resource pool capacity, in slots.
type Resources struct {
	CPU int64 `yaml:"cpu"`
	GPU int64 `yaml:"gpu"`
}

// Build configures the build probe.
type Build struct {
	Compiler string   `yaml:"compiler"`
	Flags    []string `yaml:"flags"`
}

// Default returns the configuration used when a field is absent from the
// file.
func Default() *Config {
	return &Config{
		RunLog:    RunLog{Path: "harvest-run.db"},
		Resources: Resources{CPU: int64(runtime.NumCPU())},
		Quota:     1000,
		Build:     Build{Compiler: "cc"},
	}
}

// Load reads, schema-checks, and decodes the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse schema-checks and decodes a config document.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateSchema unifies the document with the embedded CUE schema. The
// schema is closed, so this catches unknown keys as well as type and range
// errors.
func validateSchema(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	unified := schema.Unify(ctx.Encode(raw))
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// validate checks the constraints the schema cannot express, such as required
// fields that have no usable default.
func (c *Config) validate() error {
	if c.Source.Path == "" {
		return errors.New("invalid config: source.path is required")
	}
	if c.Resources.CPU <= 0 {
		return fmt.Errorf("invalid config: resources.cpu must be positive, got %d", c.Resources.CPU)
	}
	if c.Resources.GPU < 0 {
		return fmt.Errorf("invalid config: resources.gpu must not be negative, got %d", c.Resources.GPU)
	}
	if c.Quota < 0 {
		return fmt.Errorf("invalid config: quota must not be negative, got %d", c.Quota)
	}
	if c.RunLog.Path == "" {
		return errors.New("invalid config: runlog.path is required")
	}
	if c.Build.Compiler == "" {
		return errors.New("invalid config: build.compiler is required")
	}
	return nil
}
