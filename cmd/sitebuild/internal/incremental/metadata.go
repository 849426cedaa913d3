package incremental

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// Metadata holds per-asset settings from a source's sidecar file, keyed by
// the asset path within the source (or its bare file name).
type Metadata map[string]any

// LoadMetadata reads a JSON or YAML sidecar file. A missing file yields
// empty metadata.
func LoadMetadata(file string) (Metadata, error) {
	if file == "" {
		return Metadata{}, nil
	}
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	// YAML is a superset of JSON, one decoder covers both.
	md := Metadata{}
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file %s: %w", file, err)
	}
	return md, nil
}

// Fingerprint returns a canonical encoding of the settings for the asset at
// rel, or nil when the sidecar has none.
func (m Metadata) Fingerprint(rel string) []byte {
	v, ok := m[rel]
	if !ok {
		v, ok = m[path.Base(rel)]
	}
	if !ok || v == nil {
		return nil
	}
	// encoding/json sorts map keys.
	data, err := json.Marshal(normalize(v))
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return data
}

// normalize converts the map[any]any values yaml may produce for
// non-string keys into something encoding/json can marshal.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
