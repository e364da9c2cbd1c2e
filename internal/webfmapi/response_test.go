package webfmapi

import (
	"testing"
	"time"
)

func TestExtractResult(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "double-encoded array",
			body:     `{"result":"[{\"name\":\"a\"}]"}`,
			expected: `[{"name":"a"}]`,
		},
		{
			name:     "direct array",
			body:     `[{"name":"a"}]`,
			expected: `[{"name":"a"}]`,
		},
		{
			name:     "envelope object",
			body:     `{"result":[]}`,
			expected: `[]`,
		},
		{
			name:     "object without envelope",
			body:     `{"name":"a"}`,
			expected: `{"name":"a"}`,
		},
		{
			name:     "empty body",
			body:     ``,
			expected: ``,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractResult([]byte(tc.body))
			if err != nil {
				t.Fatalf("ExtractResult returned error: %v", err)
			}
			if string(got) != tc.expected {
				t.Fatalf("ExtractResult mismatch: expected %q, got %q", tc.expected, string(got))
			}
		})
	}
}

func TestDecodeEntries(t *testing.T) {
	body := []byte(`[
		{"path":"/data/mnt/sd_0/songs/","name":"songs","ctime":1700000000},
		{"path":"/data/mnt/sd_0/a.mp3","name":"a.mp3","size":2048,"ctime":"1700000001.5"},
		{"path":"/data/mnt/sd_0/odd","name":"odd","isDirectory":true,"ctime":"2024-01-02T03:04:05Z"}
	]`)
	entries, err := DecodeEntries(body)
	if err != nil {
		t.Fatalf("DecodeEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].Directory() || entries[1].Directory() || !entries[2].Directory() {
		t.Fatalf("unexpected directory flags: %#v", entries)
	}
	if entries[1].Size != 2048 {
		t.Fatalf("unexpected size %d", entries[1].Size)
	}
	if !entries[0].CTime.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected ctime %v", entries[0].CTime)
	}
	if !entries[1].CTime.Equal(time.Unix(1700000001, 5e8)) {
		t.Fatalf("unexpected fractional ctime %v", entries[1].CTime)
	}
	if entries[2].CTime.Year() != 2024 {
		t.Fatalf("unexpected RFC 3339 ctime %v", entries[2].CTime)
	}
}

func TestDecodeEntriesEmptyAndInvalid(t *testing.T) {
	for _, body := range []string{"", "null", " [] "} {
		entries, err := DecodeEntries([]byte(body))
		if err != nil {
			t.Fatalf("DecodeEntries(%q): %v", body, err)
		}
		if len(entries) != 0 {
			t.Fatalf("DecodeEntries(%q): expected empty listing", body)
		}
	}
	if _, err := DecodeEntries([]byte(`{"oops":1}`)); err == nil {
		t.Fatalf("expected error for non-array payload")
	}
	if _, err := DecodeEntries([]byte(`[{"ctime":"yesterday"}]`)); err == nil {
		t.Fatalf("expected error for invalid ctime")
	}
}
