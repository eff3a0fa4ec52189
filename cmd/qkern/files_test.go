package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/qkern/pkg/quant"
)

func TestF32FileRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "x.f32")
	want := []float32{1, -2.5, 3e-7, 0}
	if err := writeF32File(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := readF32File(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("idx %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestReadF32FileRejectsRaggedSize(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.f32")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readF32File(path); err == nil {
		t.Fatal("expected error for 3-byte file")
	}
}

func TestParseLayout(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want quant.DType
		ok   bool
	}{
		{"4x4", quant.DTypeQ4_0x4x4, true},
		{" 4X8 ", quant.DTypeQ4_0x4x8, true},
		{"8x8", quant.DTypeQ4_0x8x8, true},
		{"8x4", quant.DTypeUnknown, false},
		{"8", quant.DTypeUnknown, false},
		{"ax8", quant.DTypeUnknown, false},
	}
	for _, tc := range tests {
		got, err := parseLayout(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("parseLayout(%q): err = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseLayout(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestInferRows(t *testing.T) {
	t.Parallel()
	if rows, err := inferRows(96, 32); err != nil || rows != 3 {
		t.Fatalf("inferRows(96, 32) = %d, %v", rows, err)
	}
	if _, err := inferRows(100, 32); err == nil {
		t.Fatal("expected error for ragged rows")
	}
	if _, err := inferRows(32, 0); err == nil {
		t.Fatal("expected error for zero cols")
	}
}
