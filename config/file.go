package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format selects the decoder used by Parse.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// File is the on-disk layout:
//
//	[[map]]
//	name = "com.acme.*"
//	eviction_policy = "LRU"
//	eviction_size = 10000
//	time_to_live_seconds = 300
type File struct {
	Maps []MapConfig `toml:"map" yaml:"map"`
}

// Load reads a TOML (.toml) or YAML (.yaml, .yml) file into a Static provider.
func Load(path string) (*Static, error) {
	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, platformerrors.WithContext(
			platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "config: read file"),
			"path", path)
	}
	s, err := Parse(data, format)
	if err != nil {
		return nil, platformerrors.WithContext(err, "path", path)
	}
	return s, nil
}

// Parse decodes data in the given format. Unknown keys are rejected so a
// misspelled setting does not silently fall back to unbounded defaults.
func Parse(data []byte, format Format) (*Static, error) {
	var f File
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "config: decode toml")
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "config: decode yaml")
		}
	default:
		return nil, platformerrors.Newf(platformerrors.CodeInvalidConfig, "config: unsupported format %q", format)
	}
	return NewStatic(f.Maps...)
}

func formatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", platformerrors.Newf(platformerrors.CodeInvalidConfig, "config: cannot infer format of %q", path)
	}
}
