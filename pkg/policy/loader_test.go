package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const sampleRego = `package featurekit.audit.sample

# Sample audit policy

import rego.v1

deny contains "sample" if {
	false
}
`

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := newTestLoader()
	policyFile := filepath.Join(t.TempDir(), "sample.rego")
	writeFile(t, policyFile, sampleRego)

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "sample" {
		t.Errorf("Expected name 'sample', got '%s'", policy.Name)
	}
	if policy.Rego != sampleRego {
		t.Error("Rego content doesn't match")
	}
	if policy.Description != "Sample audit policy" {
		t.Errorf("Unexpected description: %q", policy.Description)
	}
	if !policy.Enabled || policy.Severity != SeverityWarning {
		t.Errorf("Unexpected defaults: enabled=%v severity=%s", policy.Enabled, policy.Severity)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := newTestLoader()
	policyFile := filepath.Join(t.TempDir(), "sample.json")

	data, err := json.Marshal(Policy{
		Name:        "json-policy",
		Description: "From JSON",
		Rego:        sampleRego,
		Severity:    SeverityError,
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, policyFile, string(data))

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "json-policy" || policy.Severity != SeverityError {
		t.Errorf("Unexpected policy: %+v", policy)
	}
	if policy.LoadedAt.IsZero() {
		t.Error("LoadedAt should be set")
	}
}

func TestLoadFromFile_JSONErrors(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	invalid := filepath.Join(dir, "invalid.json")
	writeFile(t, invalid, "{not json")
	if _, err := loader.loadFromFile(invalid); err == nil {
		t.Error("Expected error for invalid JSON")
	}

	unnamed := filepath.Join(dir, "unnamed.json")
	writeFile(t, unnamed, `{"rego": "package x"}`)
	if _, err := loader.loadFromFile(unnamed); err == nil {
		t.Error("Expected error for JSON policy without a name")
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "a.rego"), sampleRego)
	writeFile(t, filepath.Join(dir, "nested", "b.rego"), sampleRego)
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoadFromDirectory_Cancelled(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), sampleRego)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := loader.LoadFromPaths(ctx, []string{dir}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestLoadFromPaths_Mixed(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	single := filepath.Join(dir, "single.rego")
	writeFile(t, single, sampleRego)
	writeFile(t, filepath.Join(dir, "more", "other.rego"), sampleRego)

	policies, err := loader.LoadFromPaths(context.Background(), []string{single, filepath.Join(dir, "more")})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoadFromPath_NonExistent(t *testing.T) {
	loader := newTestLoader()

	if _, err := loader.LoadFromPaths(context.Background(), []string{"/non/existent/path"}); err == nil {
		t.Error("Expected error for non-existent path")
	}
}

func TestHeaderComments(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "single line", content: "# One line\npackage x", want: "One line"},
		{name: "multi line", content: "# First\n# Second\n\npackage x", want: "First Second"},
		{name: "after package", content: "package x\n\n# Late\nallow := true", want: "Late"},
		{name: "none", content: "package x", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(headerComments(tt.content), " "); got != tt.want {
				t.Errorf("headerComments() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadFromFile_SeverityDirective(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()

	strict := filepath.Join(dir, "strict.rego")
	writeFile(t, strict, "# Strict checks\n# severity: error\npackage featurekit.audit.strict\n\nimport rego.v1\n\ndeny contains \"strict\" if {\n\tfalse\n}\n")
	policy, err := loader.loadFromFile(strict)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Severity != SeverityError || policy.Description != "Strict checks" {
		t.Errorf("Unexpected policy: severity=%s description=%q", policy.Severity, policy.Description)
	}

	bogus := filepath.Join(dir, "bogus.rego")
	writeFile(t, bogus, "# severity: fatal\npackage x\n")
	if _, err := loader.loadFromFile(bogus); err == nil {
		t.Error("Expected error for unknown severity")
	}
}

func TestLoadFromFile_RegoSyntaxError(t *testing.T) {
	loader := newTestLoader()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.rego"), sampleRego)
	broken := filepath.Join(dir, "broken.rego")
	writeFile(t, broken, "package x\n\ndeny contains msg if {\n")

	if _, err := loader.loadFromFile(broken); err == nil {
		t.Fatal("Expected parse error")
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Directory load should skip broken files: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "good" {
		t.Errorf("Expected only the good policy, got %+v", policies)
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{broken}); err == nil {
		t.Error("Expected error when a single broken file is named")
	}
}
