package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	yaml := "variant: HE\nint_bits: 32\nbatch_size: 2\nbatch_count: 3\ndata_handling: SINGLE_COMPONENT\n"
	if err := writeFile(path, yaml); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Variant != HE || p.IntBits != 32 || p.BatchSize != 2 || p.BatchCount != 3 {
		t.Fatalf("unexpected parameters: %+v", p)
	}
	if p.StorageRoot == "" {
		t.Fatalf("expected default storage_root to be applied")
	}
	if p.IntBytes() != 4 {
		t.Fatalf("IntBytes() = %d, want 4", p.IntBytes())
	}
}

func TestLoadRejectsInvalidVariant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	if err := writeFile(path, "variant: BOGUS\nint_bits: 8\nbatch_size: 1\nbatch_count: 1\ndata_handling: ALL_AT_ONCE\n"); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for bogus variant")
	}
}

func TestLoadRejectsIncompatibleDataHandling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	if err := writeFile(path, "variant: HE\nint_bits: 8\nbatch_size: 1\nbatch_count: 1\ndata_handling: TRANSMIT_KREYVIUM\n"); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for HE + TRANSMIT_KREYVIUM")
	}
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")

	original := Default()
	if err := Write(original, path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Variant != original.Variant || loaded.IntBits != original.IntBits {
		t.Fatalf("round trip mismatch: got %+v, want %+v", loaded, original)
	}
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
