// Package webfmapi decodes payloads returned by the file-management service.
package webfmapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Entry is a single listing row as delivered on the wire.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	CTime       Time   `json:"ctime"`
	IsDirectory *bool  `json:"isDirectory,omitempty"`
}

// Directory reports whether the entry is a directory. Servers that omit the
// isDirectory flag mark directories with a trailing separator on the path.
func (e Entry) Directory() bool {
	if e.IsDirectory != nil {
		return *e.IsDirectory
	}
	return strings.HasSuffix(e.Path, "/")
}

// Time accepts Unix seconds as a JSON number, a numeric string, or RFC 3339.
type Time struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			t.Time = fromUnix(secs)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("webfmapi: invalid ctime %q", s)
		}
		t.Time = parsed
		return nil
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("webfmapi: invalid ctime %s", string(data))
	}
	t.Time = fromUnix(secs)
	return nil
}

func fromUnix(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// ExtractResult unwraps responses that carry their payload under a "result"
// field. Bodies without such an envelope are returned as-is. When "result" is
// a JSON-encoded string, the inner document is decoded.
func ExtractResult(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &envelope) != nil || envelope.Result == nil {
		return append([]byte(nil), trimmed...), nil
	}

	var asString string
	if err := json.Unmarshal(envelope.Result, &asString); err == nil {
		decoded := asString
		for i := 0; i < 4; i++ {
			unquoted, err := strconv.Unquote(decoded)
			if err != nil {
				break
			}
			decoded = unquoted
		}
		var inner json.RawMessage
		if err := json.Unmarshal([]byte(decoded), &inner); err == nil {
			return append([]byte(nil), inner...), nil
		}
	}

	return append([]byte(nil), envelope.Result...), nil
}

// DecodeEntries parses a list response. An empty body or JSON null yields an
// empty listing.
func DecodeEntries(body []byte) ([]Entry, error) {
	payload, err := ExtractResult(body)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("webfmapi: decode listing: %w", err)
	}
	return entries, nil
}
