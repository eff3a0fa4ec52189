package backend

import (
	"errors"
	"strings"
	"testing"

	"github.com/samcharles93/qkern/internal/backend/tile"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", Auto},
		{"  CPU ", CPU},
		{"Tile", Tile},
		{"cuda", CUDA},
		{"webgpu", WebGPU},
		{"auto", Auto},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := Normalize("metal"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestAvailableListsCompiledBackends(t *testing.T) {
	avail := strings.Split(Available(), ",")
	if avail[0] != CPU || avail[1] != Tile {
		t.Fatalf("available: %v", avail)
	}
	for _, name := range avail {
		if !Has(name) {
			t.Fatalf("%s listed but Has reports false", name)
		}
	}
	if Has("metal") {
		t.Fatalf("Has accepted an unknown backend")
	}
}

func TestNewInProcessBackends(t *testing.T) {
	for _, name := range []string{CPU, Tile} {
		b, err := New(name, Options{Threads: 2})
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if b.Name() != name {
			t.Fatalf("New(%s) built %s", name, b.Name())
		}
		if err := Close(b); err != nil {
			t.Fatalf("Close(%s): %v", name, err)
		}
	}
	b, err := New(Auto, Options{})
	if err != nil {
		t.Fatalf("New(auto): %v", err)
	}
	defer Close(b)
	if !cudaEnabled && b.Name() != CPU {
		t.Fatalf("auto without cuda resolved to %s", b.Name())
	}
}

func TestDescribeInProcessBackends(t *testing.T) {
	opts := Options{Threads: 3, Tile: tile.Config{Lanes: 2, StagingBytes: 4096}}
	cpu, err := New(CPU, opts)
	if err != nil {
		t.Fatalf("New(cpu): %v", err)
	}
	defer Close(cpu)
	if got := Describe(cpu); got != "3 threads" {
		t.Fatalf("Describe(cpu) = %q", got)
	}
	tb, err := New(Tile, opts)
	if err != nil {
		t.Fatalf("New(tile): %v", err)
	}
	if got := Describe(tb); got != "2 lanes, 4096 B staging" {
		t.Fatalf("Describe(tile) = %q", got)
	}
}

func TestNewUnavailableBackend(t *testing.T) {
	if webgpuEnabled {
		t.Skip("webgpu compiled in")
	}
	if _, err := New(WebGPU, Options{}); err == nil {
		t.Fatalf("expected an error for webgpu in this build")
	}
}
