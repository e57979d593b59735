package docstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsDocument(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"example.com.yml", true},
		{"example.com.yaml", true},
		{"example.com.toml", true},
		{"EXAMPLE.COM.YML", true},
		{"readme.md", false},
		{"zones.json", false},
		{"noextension", false},
	}
	for _, tt := range tests {
		if got := IsDocument(tt.name); got != tt.want {
			t.Errorf("IsDocument(%q): expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestLocal_List(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.example.yml":  "zone_name: b.example\n",
		"a.example.toml": "zone_name = \"a.example\"\n",
		"notes.txt":      "not a zone document",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing fixture: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir.yml"), 0o755); err != nil {
		t.Fatalf("creating directory fixture: %v", err)
	}

	store, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a.example.toml", "b.example.yml"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
			break
		}
	}
}

func TestLocal_Read(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "example.com.yml"), []byte("zone_name: example.com\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	store, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := store.Read(context.Background(), "example.com.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "zone_name: example.com\n" {
		t.Errorf("unexpected content: %q", data)
	}

	// Path traversal is neutralized by basename resolution.
	if _, err := store.Read(context.Background(), "../example.com.yml"); err != nil {
		t.Errorf("basename read failed: %v", err)
	}

	if _, err := store.Read(context.Background(), "missing.yml"); err == nil {
		t.Error("expected error for missing document")
	}
}

func TestNewLocal_MissingDir(t *testing.T) {
	if _, err := NewLocal(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSFTPConfig_Validate(t *testing.T) {
	valid := &SFTPConfig{Host: "sftp.example.com", User: "zones", Dir: "/srv/zones", KeyFile: "/etc/key"}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	invalid := &SFTPConfig{}
	err := invalid.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"host is required", "user is required", "dir is required", "key_file or password"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error containing %q, got: %v", want, err)
		}
	}
}

func TestSFTPStore_NotConnected(t *testing.T) {
	store, err := NewSFTPStore(&SFTPConfig{Host: "h", User: "u", Dir: "/d", Password: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.List(context.Background()); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got: %v", err)
	}
	if _, err := store.Read(context.Background(), "x.yml"); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got: %v", err)
	}
	// Close before Connect is a no-op.
	if err := store.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}
