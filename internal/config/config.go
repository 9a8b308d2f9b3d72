// Package config loads seqctl settings from YAML or CUE files.
//
// Both formats are checked against the same embedded CUE schema, which also
// supplies the defaults. Command-line flags are applied on top by the CLI.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Error codes carried by LoadError.
const (
	ErrCodeRead      = "C001" // file unreadable
	ErrCodeFormat    = "C002" // unknown extension
	ErrCodeParse     = "C003" // syntax error
	ErrCodeSchema    = "C004" // schema violation
	ErrCodeDecode    = "C005" // value does not fit Config
	ErrCodeUnsetPath = "C006" // required path missing
)

// LoadError reports why a config file was rejected.
type LoadError struct {
	Code    string
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLoadError reports whether err carries a LoadError with the given code.
// An empty code matches any LoadError.
func IsLoadError(err error, code string) bool {
	var le *LoadError
	if !errors.As(err, &le) {
		return false
	}
	return code == "" || le.Code == code
}

// Config holds the engine and CLI settings.
type Config struct {
	DBPath           string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	RemotePath       string `json:"remote_path,omitempty" yaml:"remote_path,omitempty"`
	PageSize         int    `json:"page_size" yaml:"page_size"`
	Stride           int64  `json:"stride" yaml:"stride"`
	MaxWriteAttempts int    `json:"max_write_attempts" yaml:"max_write_attempts"`
	LazyRemote       bool   `json:"lazy_remote" yaml:"lazy_remote"`
	Offline          bool   `json:"offline" yaml:"offline"`
	DataType         string `json:"data_type" yaml:"data_type"`
	LogFormat        string `json:"log_format" yaml:"log_format"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		DBPath:           "hybridseq.db",
		PageSize:         50,
		Stride:           1000,
		MaxWriteAttempts: 3,
		DataType:         "items",
		LogFormat:        "text",
	}
}

// Validate checks a Config assembled in code, for example after flag
// overrides.
func (c Config) Validate() error {
	switch {
	case c.DBPath == "":
		return &LoadError{Code: ErrCodeUnsetPath, Message: "db_path is required"}
	case c.PageSize <= 0:
		return &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("page_size must be positive, got %d", c.PageSize)}
	case c.Stride < 2:
		return &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("stride must be at least 2, got %d", c.Stride)}
	case c.MaxWriteAttempts <= 0:
		return &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("max_write_attempts must be positive, got %d", c.MaxWriteAttempts)}
	case c.DataType == "":
		return &LoadError{Code: ErrCodeSchema, Message: "data_type must not be empty"}
	case c.LogFormat != "text" && c.LogFormat != "json":
		return &LoadError{Code: ErrCodeSchema, Message: fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat)}
	}
	return nil
}

// Load reads path and returns the validated Config. The decoder is chosen
// by extension: .yaml/.yml or .cue. Fields the file omits keep their
// defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{Code: ErrCodeRead, Path: path, Message: err.Error()}
	}

	ctx := cuecontext.New()
	var file cue.Value

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw := map[string]any{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, &LoadError{Code: ErrCodeParse, Path: path, Message: err.Error()}
		}
		file = ctx.Encode(raw)
	case ".cue":
		file = ctx.CompileBytes(data, cue.Filename(path))
	default:
		return Config{}, &LoadError{Code: ErrCodeFormat, Path: path, Message: fmt.Sprintf("unsupported config extension %q", filepath.Ext(path))}
	}
	if err := file.Err(); err != nil {
		return Config{}, &LoadError{Code: ErrCodeParse, Path: path, Message: err.Error()}
	}

	cfg, err := decode(ctx, file)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Path = path
		}
		return Config{}, err
	}
	return cfg, nil
}

// decode unifies file with the schema and decodes the concrete result.
func decode(ctx *cue.Context, file cue.Value) (Config, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(file)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, &LoadError{Code: ErrCodeSchema, Message: err.Error()}
	}

	cfg := Default()
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, &LoadError{Code: ErrCodeDecode, Message: err.Error()}
	}
	return cfg, nil
}
