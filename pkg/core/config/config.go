package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are neither TOML nor YAML
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// D is a shorthand for building a Duration
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = parseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts "1.8s" style strings as well as plain numbers of seconds
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// parseDuration parses Go duration strings; a bare number is taken as seconds
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Format identifies a config file encoding
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf returns the format implied by a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load decodes the file at path into out. Fields absent from the file keep
// whatever value out already holds, so callers pass a struct pre-filled with defaults.
func Load(path string, out interface{}) error {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := Decode(data, format, out); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Decode decodes raw config bytes of the given format into out.
// Unknown keys are rejected.
func Decode(data []byte, format Format, out interface{}) error {
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), out)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Find returns the first existing file among the candidates, or "" if none exists
func Find(candidates ...string) string {
	for _, p := range candidates {
		if p == "" {
			continue
		}
		p = os.ExpandEnv(p)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultSearchPaths returns the usual locations for a named application's config file
func DefaultSearchPaths(app string) []string {
	home, _ := os.UserHomeDir()
	paths := []string{
		"./configs/" + app + ".toml",
		"./configs/" + app + ".yaml",
		"./" + app + ".toml",
		"./" + app + ".yaml",
	}
	if home != "" {
		paths = append(paths,
			filepath.Join(home, ".config", app, "config.toml"),
			filepath.Join(home, ".config", app, "config.yaml"),
		)
	}
	return paths
}

// EnvString overrides dst with the environment variable name when it is set
func EnvString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

// EnvInt overrides dst with the integer environment variable name when it is set
func EnvInt(name string, dst *int) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

// EnvFloat overrides dst with the float environment variable name when it is set
func EnvFloat(name string, dst *float32) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = float32(f)
	return nil
}

// EnvDuration overrides dst with the duration environment variable name when it is set
func EnvDuration(name string, dst *Duration) error {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil
	}
	if err := dst.UnmarshalText([]byte(v)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
