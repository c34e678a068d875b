package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfroyo/featurekit/pkg/dependencies"
)

func loadTestManifest(t *testing.T) *Manifest {
	t.Helper()
	loaded, err := NewManifestLoader().Load(context.Background(), filepath.Join("testdata", "shop.yaml"))
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}
	return loaded.Manifest
}

func TestLoadYAMLManifest(t *testing.T) {
	m := loadTestManifest(t)

	if m.Root != "shop" || len(m.Nodes) != 5 || len(m.Windows) != 1 {
		t.Fatalf("unexpected manifest: root=%s nodes=%d windows=%d", m.Root, len(m.Nodes), len(m.Windows))
	}

	quotes, ok := m.Node("quotes")
	if !ok {
		t.Fatal("quotes node not found")
	}
	if !quotes.IsActive() {
		t.Error("nodes without an active flag should be active")
	}
	// Descriptor kinds are filled from the checker.
	if got := quotes.Dependencies[0].Requires[0].Kind; got != dependencies.KindExtension {
		t.Errorf("descriptor kind = %q, want extension", got)
	}

	legacy, _ := m.Node("legacy")
	if !legacy.Disabled {
		t.Error("legacy should be disabled")
	}
}

func TestParseYAMLRejectsUnknownFields(t *testing.T) {
	_, err := ParseYAML([]byte("version: v1\nroot: a\nnodes: [{id: a, colour: red}]\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadCUEManifest(t *testing.T) {
	loaded, err := NewManifestLoader().Load(context.Background(), filepath.Join("testdata", "shop.cue"))
	if err != nil {
		t.Fatalf("failed to load CUE manifest: %v", err)
	}

	m := loaded.Manifest
	if m.Root != "shop" || len(m.Nodes) != 2 {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if m.Nodes[0].Rules[0].Role != "admin" {
		t.Errorf("rules not decoded: %+v", m.Nodes[0].Rules)
	}
}

func TestLoadCUEDirectory(t *testing.T) {
	loaded, err := NewManifestLoader().Load(context.Background(), filepath.Join("testdata", "cuepkg"))
	if err != nil {
		t.Fatalf("failed to load CUE package: %v", err)
	}
	if len(loaded.SourceFiles) != 2 {
		t.Errorf("expected 2 source files, got %v", loaded.SourceFiles)
	}
	if len(loaded.Manifest.Nodes) != 2 || loaded.Manifest.Nodes[1].ID != "quotes" {
		t.Errorf("unexpected nodes: %+v", loaded.Manifest.Nodes)
	}
}

func TestParseCUEInline(t *testing.T) {
	ml := NewManifestLoader()

	m, err := ml.ParseCUE(`version: "v1", root: "a", nodes: [{id: "a"}]`)
	if err != nil {
		t.Fatalf("ParseCUE failed: %v", err)
	}
	if m.Root != "a" {
		t.Errorf("unexpected root %q", m.Root)
	}

	_, err = ml.ParseCUE(`version: "v1", root: "a" & "b"`)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if errs := ValidationErrors(err); len(errs) == 0 || errs[0].Message == "" {
		t.Errorf("expected located validation errors, got %v", errs)
	}
}

func TestLoadMissingManifest(t *testing.T) {
	if _, err := NewManifestLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestLoadEmptyCUEDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("none"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewManifestLoader().Load(context.Background(), dir); err == nil {
		t.Error("expected error for directory without CUE files")
	}
}
