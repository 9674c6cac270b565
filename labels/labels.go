// Package labels - Normalization of raw model class names into canonical labels.
package labels

import (
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Unknown is the canonical label for any raw class name missing from a Map.
const Unknown = "unknown"

// ErrInvalidMap is returned when a label map file cannot be used.
var ErrInvalidMap = errors.New("invalid label map")

// Map translates lowercase raw class names into canonical labels.
//
// A Map is never mutated after construction, so a single value can be shared
// by every request.
type Map struct {
	entries map[string]string
}

// New builds a Map from raw -> canonical entries. Raw keys are lower-cased and
// trimmed; canonical values are kept as given.
func New(entries map[string]string) Map {
	m := Map{entries: make(map[string]string, len(entries))}
	for raw, canonical := range entries {
		m.entries[strings.ToLower(strings.TrimSpace(raw))] = canonical
	}
	return m
}

// Default returns the built-in map for the dog and pothole detector.
func Default() Map {
	return New(map[string]string{
		"dog":         "dog",
		"dogs":        "dog",
		"dogss":       "dog",
		"stray dog":   "dog",
		"pothole":     "potholes",
		"potholes":    "potholes",
		"road damage": "potholes",
	})
}

// Load reads a YAML (or JSON) object of raw -> canonical labels from path.
//
// Arguments:
//   - path: The label map file.
//
// Returns:
//   - Map: The loaded map.
//   - error: ErrInvalidMap wrapped with details if the file is unusable.
func Load(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Map{}, errors.Wrapf(err, "reading label map %s", path)
	}
	return Parse(data)
}

// Parse decodes a raw -> canonical object from YAML or JSON bytes.
func Parse(data []byte) (Map, error) {
	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return Map{}, errors.Wrapf(ErrInvalidMap, "%v", err)
	}
	if len(entries) == 0 {
		return Map{}, errors.Wrap(ErrInvalidMap, "no entries")
	}
	for raw, canonical := range entries {
		if strings.TrimSpace(raw) == "" || strings.TrimSpace(canonical) == "" {
			return Map{}, errors.Wrapf(ErrInvalidMap, "empty label in entry %q: %q", raw, canonical)
		}
	}
	return New(entries), nil
}

// Normalize lower-cases raw and returns its canonical label, or Unknown.
func (m Map) Normalize(raw string) string {
	if canonical, ok := m.entries[strings.ToLower(raw)]; ok {
		return canonical
	}
	return Unknown
}

// Len returns the number of raw labels in the map.
func (m Map) Len() int {
	return len(m.entries)
}

// Missing returns the raw names (in input order) that have no entry and will
// therefore normalize to Unknown.
func (m Map) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := m.entries[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Canonical returns the sorted set of canonical labels.
func (m Map) Canonical() []string {
	seen := make(map[string]struct{}, len(m.entries))
	out := make([]string, 0, len(m.entries))
	for _, canonical := range m.entries {
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out
}
