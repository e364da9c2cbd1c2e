// Package devseed loads fixture trees for the in-memory backend used by the
// sandbox and by runtime mock mode.
package devseed

import (
	"encoding/base64"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Entry is one seeded file or directory. Directories are written with a
// trailing separator or with Dir set. File contents come from Content, or
// from Base64 when binary.
type Entry struct {
	Path    string    `mapstructure:"path"`
	Dir     bool      `mapstructure:"dir"`
	Content string    `mapstructure:"content"`
	Base64  string    `mapstructure:"base64"`
	CTime   time.Time `mapstructure:"ctime"`
}

// IsDir reports whether the entry describes a directory.
func (e Entry) IsDir() bool {
	return e.Dir || strings.HasSuffix(e.Path, "/")
}

// Data returns the decoded file contents.
func (e Entry) Data() ([]byte, error) {
	if e.Base64 != "" {
		data, err := base64.StdEncoding.DecodeString(e.Base64)
		if err != nil {
			return nil, fmt.Errorf("devseed: decode base64 for %s: %w", e.Path, err)
		}
		return data, nil
	}
	return []byte(e.Content), nil
}

// Load reads a YAML (or JSON) seed file: a list of entries, or a mapping
// with an "entries" list.
func Load(path string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes seed entries from YAML or JSON bytes.
func Parse(raw []byte) ([]Entry, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("devseed: parse: %w", err)
	}
	if m, ok := doc.(map[string]any); ok {
		doc = m["entries"]
	}
	if doc == nil {
		return nil, nil
	}

	var entries []Entry
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			unixTimeHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		Result:           &entries,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("devseed: create decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, fmt.Errorf("devseed: decode entries: %w", err)
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Path) == "" {
			return nil, fmt.Errorf("devseed: entry %d missing path", i)
		}
	}
	return entries, nil
}

// unixTimeHook accepts ctime given as Unix seconds.
func unixTimeHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	}
	return data, nil
}
