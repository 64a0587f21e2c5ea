package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreStartsWithDefaults(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))
	if s.Current() != Defaults() {
		t.Fatalf("expected defaults, got %+v", s.Current())
	}
}

func TestLoadMissingFileIsNoop(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))
	if err := s.Load(); err != nil {
		t.Fatalf("unexpected error loading missing file: %v", err)
	}
	if s.Current() != Defaults() {
		t.Fatalf("expected defaults preserved, got %+v", s.Current())
	}
}

func TestLoadValidFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := "retention_ms: 9000\nstarve_ms: 1500\ndrain_max: 32\ndefault_warm_hold_ms: 10000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := s.Current()
	if got.RetentionMS != 9000 || got.StarveMS != 1500 || got.DrainMax != 32 || got.DefaultWarmHoldMS != 10000 {
		t.Fatalf("unexpected loaded constants: %+v", got)
	}
}

func TestLoadInvalidNegativeValueRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := "retention_ms: -1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	s := NewStore(path)
	if err := s.Load(); err == nil {
		t.Fatal("expected validation error for negative retention_ms")
	}
	if s.Current() != Defaults() {
		t.Fatalf("current constants should be unchanged after rejected load, got %+v", s.Current())
	}
}
