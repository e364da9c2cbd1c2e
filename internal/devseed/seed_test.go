package devseed

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseYAML(t *testing.T) {
	raw := []byte(`
entries:
  - path: /data/mnt/sd_0/
  - path: /data/mnt/sd_0/music
    dir: true
    ctime: 1700000000
  - path: /data/mnt/sd_0/readme.txt
    content: hello
    ctime: 2024-01-02T03:04:05Z
  - path: /data/mnt/sd_0/blob.bin
    base64: AAEC
`)
	entries, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if !entries[0].IsDir() || !entries[1].IsDir() || entries[2].IsDir() {
		t.Fatalf("unexpected dir flags: %#v", entries)
	}
	if !entries[1].CTime.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected unix ctime %v", entries[1].CTime)
	}
	if entries[2].CTime.Year() != 2024 {
		t.Fatalf("unexpected RFC 3339 ctime %v", entries[2].CTime)
	}
	data, err := entries[2].Data()
	if err != nil || string(data) != "hello" {
		t.Fatalf("unexpected content %q: %v", data, err)
	}
	blob, err := entries[3].Data()
	if err != nil || len(blob) != 3 || blob[2] != 2 {
		t.Fatalf("unexpected base64 content %v: %v", blob, err)
	}
}

func TestParseJSONList(t *testing.T) {
	entries, err := Parse([]byte(`[{"path":"/a/"},{"path":"/a/b.txt","content":"x"}]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 2 || entries[1].Content != "x" {
		t.Fatalf("unexpected entries %#v", entries)
	}
}

func TestParseRejectsBadEntries(t *testing.T) {
	if _, err := Parse([]byte(`[{"content":"x"}]`)); err == nil {
		t.Fatalf("expected error for missing path")
	}
	if _, err := Parse([]byte(`[{"path":"/a","colour":"blue"}]`)); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(path, []byte("- path: /x/\n"), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	entries, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/x/" {
		t.Fatalf("unexpected entries %#v", entries)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
