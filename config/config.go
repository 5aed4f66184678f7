// Package config handles tutor.toml configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
)

// FileName is the name FindAndLoad looks for.
const FileName = "tutor.toml"

//go:embed schema.cue
var schemaSource string

// Config represents a tutor.toml file.
type Config struct {
	Interpreter Interpreter `toml:"interpreter" json:"interpreter"`
	Log         Log         `toml:"log" json:"log"`
	Cache       Cache       `toml:"cache" json:"cache"`

	// Dir is the directory containing the tutor.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Interpreter configures program execution.
type Interpreter struct {
	MaxFrames    int    `toml:"max-frames" json:"max-frames"`
	StepsPerTick int    `toml:"steps-per-tick" json:"steps-per-tick"`
	StepDelay    string `toml:"step-delay" json:"step-delay"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	Path      string `toml:"path" json:"path"`
}

// Cache configures the compiled-unit cache.
type Cache struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// Default returns the configuration used when no tutor.toml is found.
func Default() *Config {
	dir, _ := os.Getwd()
	return &Config{
		Interpreter: Interpreter{
			MaxFrames:    1024,
			StepsPerTick: 100,
			StepDelay:    "0s",
		},
		Cache: Cache{
			Enabled: true,
			Path:    filepath.Join(".tutor", "cache.db"),
		},
		Dir: dir,
	}
}

// Load parses a tutor.toml file from the given directory. Keys missing
// from the file keep their default value.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(data, dir)
}

// Parse decodes and validates TOML data as if it were loaded from dir.
func Parse(data []byte, dir string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", FileName, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", FileName, undecoded[0])
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a tutor.toml file, then loads
// and returns it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil), err: err}
	}
	return nil
}

// ValidationError reports values that do not satisfy the schema.
type ValidationError struct {
	Details string
	err     error
}

func (e *ValidationError) Error() string {
	return "invalid " + FileName + ": " + e.Details
}

func (e *ValidationError) Unwrap() error { return e.err }

// IsValidationError reports whether err comes from schema validation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Delay returns the step delay as a duration.
func (i Interpreter) Delay() time.Duration {
	d, err := time.ParseDuration(i.StepDelay)
	if err != nil {
		return 0
	}
	return d
}

// CachePath returns the absolute path of the cache database.
func (c *Config) CachePath() string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(c.Dir, c.Cache.Path)
}

// LogPath returns the log file path, or nil to log to stderr.
func (c *Config) LogPath() *string {
	if c.Log.Path == "" {
		return nil
	}
	p := c.Log.Path
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.Dir, p)
	}
	return &p
}
