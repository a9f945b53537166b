package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

func TestRead_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.txt")
	want := "Employees get 20 days of paid leave annually.\nÜbertrag: ok"
	if err := os.WriteFile(path, []byte(want), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := NewLoader().Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("Read = %q, want %q", got, want)
	}
}

func TestRead_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.md")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := NewLoader().Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("Read = %q, want empty", got)
	}
}

func TestRead_NotFound(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(dir, "nope.txt")},
		{"missing pdf", filepath.Join(dir, "nope.pdf")},
		{"directory", dir},
		{"empty path", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLoader().Read(tc.path)
			if !errors.Is(err, domain.ErrDocumentNotFound) {
				t.Errorf("expected ErrDocumentNotFound, got %v", err)
			}
		})
	}
}

func TestRead_InvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin.txt")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00}, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewLoader().Read(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, domain.ErrDocumentNotFound) {
		t.Error("invalid content is not a missing document")
	}
}

func TestRead_CorruptPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.PDF")
	if err := os.WriteFile(path, []byte("this file is plain text, not a portable document"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader().Read(path); err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
}
