package db

import (
	"slices"
	"testing"
)

func TestEncodeDecodeVector(t *testing.T) {
	in := []float32{1, -0.5, 3.25, 0}
	b := EncodeVector(in)
	if len(b) != 16 {
		t.Fatalf("len = %d, want 16", len(b))
	}
	if string(b[:4]) != "\x00\x00\x80\x3f" {
		t.Errorf("1.0 encoded as %q, want little-endian float32", b[:4])
	}

	out, err := DecodeVector(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(in, out) {
		t.Errorf("decoded %v, want %v", out, in)
	}
}

func TestDecodeVector_BadLength(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error")
	}
}
