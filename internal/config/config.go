package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no config file exists at the searched locations.
var ErrNotFound = errors.New("no config file")

// FileConfig is the on-disk YAML configuration shape for cloakscan.
type FileConfig struct {
	Include         *string        `yaml:"include"`
	Exclude         *string        `yaml:"exclude"`
	MaxBytes        *int64         `yaml:"max_bytes" validate:"omitempty,gt=0"`
	Threads         *int           `yaml:"threads" validate:"omitempty,gte=0,lte=1024"`
	MinConfidence   *float64       `yaml:"min_confidence" validate:"omitempty,gte=0,lte=1"`
	FailOn          *string        `yaml:"fail_on" validate:"omitempty,oneof=info low medium med high critical"`
	Timeout         *string        `yaml:"timeout" validate:"omitempty,duration"`
	Rules           *string        `yaml:"rules"`
	Baseline        *string        `yaml:"baseline"`
	NoColor         *bool          `yaml:"no_color"`
	DefaultExcludes *bool          `yaml:"default_excludes"`
	Gitignore       *bool          `yaml:"gitignore"`
	Audit           *bool          `yaml:"audit"`
	NoCache         *bool          `yaml:"no_cache"`
	Entropy         *EntropyConfig `yaml:"entropy"`
	Log             *LogConfig     `yaml:"log"`
}

// EntropyConfig overrides the defaults of entropy rules that leave them unset.
type EntropyConfig struct {
	Threshold *float64 `yaml:"threshold" validate:"omitempty,gt=0,lte=8"`
	MinLength *int     `yaml:"min_length" validate:"omitempty,gte=1"`
}

// LogConfig mirrors the --log-* flags.
type LogConfig struct {
	Level  *string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format *string `yaml:"format" validate:"omitempty,oneof=console json"`
	File   *string `yaml:"file"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
	})
	return v
}

// Validate checks value ranges and enumerations.
func (fc FileConfig) Validate() error {
	err := validate.Struct(fc)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: invalid value %v (%s)", fieldPath(fe.Namespace()), fe.Value(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// TimeoutDuration returns the parsed timeout, or zero when unset.
func (fc FileConfig) TimeoutDuration() time.Duration {
	if fc.Timeout == nil {
		return 0
	}
	d, _ := time.ParseDuration(*fc.Timeout)
	return d
}

// LoadFile reads and validates a YAML config file from the provided path.
func LoadFile(path string) (FileConfig, error) {
	var cfg FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return FileConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LocalNames lists the repo-local config names in search order.
var LocalNames = []string{".cloakscan.yml", ".cloakscan.yaml", "cloakscan.yml", "cloakscan.yaml"}

// LoadLocal searches for a repo-local config file in the given root.
func LoadLocal(repoRoot string) (FileConfig, error) {
	for _, name := range LocalNames {
		p := filepath.Join(repoRoot, name)
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return FileConfig{}, ErrNotFound
}

// GlobalPath returns the global config location under XDG_CONFIG_HOME or
// ~/.config, or "" when neither can be determined.
func GlobalPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return ""
	}
	return filepath.Join(base, "cloakscan", "config.yml")
}

// LoadGlobal loads the global config file.
func LoadGlobal() (FileConfig, error) {
	p := GlobalPath()
	if p == "" {
		return FileConfig{}, ErrNotFound
	}
	if _, err := os.Stat(p); err != nil {
		return FileConfig{}, ErrNotFound
	}
	return LoadFile(p)
}

// Load returns the local and global configs for root. Missing files yield
// zero values; a present but invalid file is an error.
func Load(root string) (local, global FileConfig, err error) {
	global, err = LoadGlobal()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return local, global, err
	}
	local, err = LoadLocal(root)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return local, global, err
	}
	return local, global, nil
}
