package teamconfig

import (
	"bytes"
	"encoding/json"
	"mime"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/teamrun/internal/errors"
)

// Format is a supported document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var extensions = map[string]Format{
	".json": FormatJSON,
	".yaml": FormatYAML,
	".yml":  FormatYAML,
}

var contentTypes = map[string]Format{
	"application/json":   FormatJSON,
	"application/yaml":   FormatYAML,
	"application/x-yaml": FormatYAML,
	"text/yaml":          FormatYAML,
	"text/x-yaml":        FormatYAML,
}

// FormatForPath returns the format implied by path's extension
// (case-insensitive).
func FormatForPath(path string) (Format, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// FormatForContentType returns the format for a MIME type. Parameters such
// as charset are ignored.
func FormatForContentType(contentType string) (Format, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	f, ok := contentTypes[mediaType]
	return f, ok
}

// sniff guesses the format of an untyped document.
func sniff(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

// decodeDocument parses data into a normalized mapping.
func decodeDocument(data []byte, format Format) (map[string]any, error) {
	var doc any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.NewConfigFormatError("invalid JSON document", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.NewConfigFormatError("invalid YAML document", err)
		}
	default:
		return nil, errors.NewConfigFormatError("unsupported file format", errors.ErrUnsupportedFormat)
	}

	m, ok := normalize(doc).(map[string]any)
	if !ok {
		return nil, errors.NewConfigFormatError("top-level value must be a mapping", errors.ErrNotMapping)
	}
	return m, nil
}

// fromMap builds and validates a TeamConfig from a decoded mapping.
func fromMap(m map[string]any, source string) (TeamConfig, error) {
	if raw, ok := m["config"]; ok && raw != nil {
		if _, isMap := raw.(map[string]any); !isMap {
			return TeamConfig{}, errors.NewConfigValidationError("component payload must be a mapping").
				WithSource(source).
				WithField("config").
				WithValue(raw)
		}
	}

	var cfg TeamConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return TeamConfig{}, err
	}
	if err := dec.Decode(m); err != nil {
		return TeamConfig{}, errors.NewConfigValidationError("malformed component header").
			WithSource(source).
			WithCause(err)
	}
	cfg.Source = source
	if err := cfg.Validate(); err != nil {
		return TeamConfig{}, err
	}
	return cfg, nil
}
