package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/openfroyo/featurekit/pkg/dependencies"
	"github.com/openfroyo/featurekit/pkg/node"
	"github.com/openfroyo/featurekit/pkg/permissions"
)

const (
	testManifest = "testdata/manifest.yaml"
	testEnv      = "testdata/env.yaml"
)

// run executes the root command with args and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FEATUREKIT_LOG_LEVEL", "")

	var buf bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func decode(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to decode output %q: %v", out, err)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "validate", testManifest)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "valid") || !strings.Contains(out, "(5 nodes)") {
		t.Errorf("unexpected output: %q", out)
	}

	var result validateResult
	out, err = run(t, "validate", "--json", testManifest)
	if err != nil {
		t.Fatalf("validate --json failed: %v", err)
	}
	decode(t, out, &result)
	if !result.Valid || result.Nodes != 5 || len(result.Files) != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestValidateCommandReportsProblems(t *testing.T) {
	path := writeFile(t, "broken.yaml", `
version: v1
root: a
nodes:
  - id: a
    children: [missing]
`)

	out, err := run(t, "validate", path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, `unknown child node "missing"`) {
		t.Errorf("output does not name the problem: %q", out)
	}
}

func TestInspectCommand(t *testing.T) {
	out, err := run(t, "inspect", "--json", "--events", "--env", testEnv, testManifest)
	if err != nil {
		t.Fatalf("inspect failed: %v\n%s", err, out)
	}

	var result inspectResult
	decode(t, out, &result)

	states := map[string]node.State{}
	for _, st := range result.Nodes {
		states[st.ID] = st.State
	}
	want := map[string]node.State{
		"shop":       node.StateReady,
		"quotes":     node.StateReady,
		"quotes.pdf": node.StateInitialized,
		"reports":    node.StateReady,
		"legacy":     node.StateConstructed,
	}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
	if result.Error != "" {
		t.Errorf("unexpected boot error %q", result.Error)
	}
	if len(result.Events) == 0 {
		t.Error("expected lifecycle events")
	}
}

func TestInspectCommandFiltersEvents(t *testing.T) {
	out, err := run(t, "inspect", "--json", "--events", "--node", "quotes.pdf", "--env", testEnv, testManifest)
	if err != nil {
		t.Fatalf("inspect failed: %v\n%s", err, out)
	}

	var result inspectResult
	decode(t, out, &result)
	if len(result.Events) == 0 {
		t.Fatal("expected events for quotes.pdf")
	}
	deferred := false
	for _, e := range result.Events {
		if e.NodeID != "quotes.pdf" {
			t.Errorf("unexpected event for %q", e.NodeID)
		}
		if e.Type == "node.setup_deferred" {
			deferred = true
		}
	}
	if !deferred {
		t.Error("expected a setup deferred event")
	}
}

func TestInspectCommandShowsUnmetDependencies(t *testing.T) {
	env := writeFile(t, "env.yaml", "extensions:\n  woocommerce: \"7.9\"\n")

	out, err := run(t, "inspect", "--env", env, "--metrics", testManifest)
	if err != nil {
		t.Fatalf("inspect failed: %v\n%s", err, out)
	}
	for _, want := range []string{
		"quotes",
		"plugins/woocommerce: want >= 8.0, have 7.9",
		"modules/quotes: want >= 2.0",
		"featurekit_",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDepsCommand(t *testing.T) {
	tests := []struct {
		name            string
		includeOptional bool
		wantQuotes      bool
	}{
		{name: "required only", wantQuotes: true},
		{name: "with optional", includeOptional: true, wantQuotes: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{"deps", "--json", "--env", testEnv, testManifest}
			if tt.includeOptional {
				args = append(args, "--include-optional")
			}
			out, err := run(t, args...)
			if err != nil {
				t.Fatalf("deps failed: %v\n%s", err, out)
			}

			var reports []dependencies.Report
			decode(t, out, &reports)
			if len(reports) != 2 {
				t.Fatalf("expected 2 reports, got %d", len(reports))
			}
			if reports[0].Handler != "active_quotes" || reports[0].Fulfilled != tt.wantQuotes {
				t.Errorf("unexpected quotes report: %+v", reports[0])
			}
			if reports[1].Handler != "active_reports" || !reports[1].Fulfilled {
				t.Errorf("unexpected reports report: %+v", reports[1])
			}
		})
	}
}

func TestDepsCommandReadsOptionStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "options.db")

	if out, err := run(t, "options", "set", "blog_public=1", "--options-db", db); err != nil {
		t.Fatalf("options set failed: %v\n%s", err, out)
	}

	out, err := run(t, "deps", "--json", "--include-optional", "--env", testEnv, "--options-db", db, testManifest)
	if err != nil {
		t.Fatalf("deps failed: %v\n%s", err, out)
	}
	var reports []dependencies.Report
	decode(t, out, &reports)
	if len(reports) == 0 || !reports[0].Fulfilled {
		t.Errorf("optional setting from the store should be met: %+v", reports)
	}
}

func TestPermissionsCommand(t *testing.T) {
	out, err := run(t, "permissions", "--json", "--env", testEnv, testManifest)
	if err != nil {
		t.Fatalf("permissions failed: %v\n%s", err, out)
	}

	var result permissionsResult
	decode(t, out, &result)

	want := permissions.Matrix{
		"manage shop":   {"admin"},
		"edit quotes":   {"admin", "editor"},
		"delete quotes": {"admin"},
		"export quotes": {"customer"},
		"view reports":  {},
	}
	if !reflect.DeepEqual(result.Matrix, want) {
		t.Errorf("matrix = %v, want %v", result.Matrix, want)
	}
	if len(result.Permissions) != 5 {
		t.Errorf("permissions = %v", result.Permissions)
	}
	if got := result.ByRole["editor"]; len(got) != 1 || got[0] != "edit quotes" {
		t.Errorf("editor permissions = %v", got)
	}
}

func TestPermissionsCheck(t *testing.T) {
	tests := []struct {
		role    string
		perm    string
		allowed bool
	}{
		{role: "editor", perm: "edit quotes", allowed: true},
		{role: "editor", perm: "delete quotes", allowed: false},
		{role: "customer", perm: "export quotes", allowed: true},
		{role: "admin", perm: "legacy export", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.perm, func(t *testing.T) {
			out, err := run(t, "permissions", "--json", "--env", testEnv,
				"--role", tt.role, "--check", tt.perm, testManifest)
			if (err == nil) != tt.allowed {
				t.Fatalf("error = %v, want allowed=%v", err, tt.allowed)
			}

			var result permissionsResult
			decode(t, out, &result)
			if result.Check == nil || result.Check.Allowed != tt.allowed {
				t.Errorf("unexpected check result: %+v", result.Check)
			}
		})
	}
}

func TestPermissionsCheckRequiresRole(t *testing.T) {
	if _, err := run(t, "permissions", "--check", "edit quotes", testManifest); err == nil {
		t.Fatal("expected error when --check is given without --role")
	}
}

func TestPermissionsAudit(t *testing.T) {
	out, err := run(t, "permissions", "--json", "--env", testEnv,
		"--audit", "--policy", "testdata/policies", testManifest)
	if err != nil {
		t.Fatalf("audit failed: %v\n%s", err, out)
	}

	var result permissionsResult
	decode(t, out, &result)
	if result.Audit == nil || !result.Audit.Passed {
		t.Fatalf("expected passing audit, got %+v", result.Audit)
	}

	policies := map[string]int{}
	for _, f := range result.Audit.Findings {
		policies[f.Policy]++
	}
	if policies["ungranted-permissions"] != 1 {
		t.Errorf("expected one ungranted permission finding, got %v", policies)
	}
	if policies["customer_exports"] != 1 {
		t.Errorf("expected one custom policy finding, got %v", policies)
	}
}

func TestOptionsCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "options.db")

	steps := [][]string{
		{"options", "set", "memory_limit=512M", "upload_max=64M"},
		{"options", "set", "memory_limit=1G", "--actor", "ops"},
		{"options", "set", "cron_hint=daily", "--no-autoload"},
	}
	for _, args := range steps {
		if out, err := run(t, append(args, "--options-db", db)...); err != nil {
			t.Fatalf("%v failed: %v\n%s", args, err, out)
		}
	}

	out, err := run(t, "options", "get", "memory_limit", "--options-db", db)
	if err != nil || strings.TrimSpace(out) != "1G" {
		t.Errorf("get = %q, %v", out, err)
	}

	out, err = run(t, "options", "list", "--json", "--autoload", "--options-db", db)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var autoload map[string]string
	decode(t, out, &autoload)
	if len(autoload) != 2 || autoload["upload_max"] != "64M" {
		t.Errorf("autoload set = %v", autoload)
	}

	out, err = run(t, "options", "history", "memory_limit", "--options-db", db)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "ops memory_limit") || !strings.Contains(lines[0], "512M -> 1G") {
		t.Errorf("unexpected history:\n%s", out)
	}

	if out, err := run(t, "options", "delete", "upload_max", "--options-db", db); err != nil {
		t.Fatalf("delete failed: %v\n%s", err, out)
	}
	if _, err := run(t, "options", "get", "upload_max", "--options-db", db); err == nil {
		t.Error("expected error for deleted option")
	}
}

func TestOptionsRequireStore(t *testing.T) {
	if _, err := run(t, "options", "list"); err == nil {
		t.Fatal("expected error without an option store")
	}
}

func TestInvalidOptionArgument(t *testing.T) {
	db := filepath.Join(t.TempDir(), "options.db")
	if _, err := run(t, "options", "set", "novalue", "--options-db", db); err == nil {
		t.Fatal("expected error for argument without '='")
	}
}
