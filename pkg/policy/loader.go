package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/rs/zerolog"
)

// Loader reads audit policies from .rego and .json files. Rego sources are
// parsed at load time so syntax errors name the file they came from.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger.With().Str("component", "policy-loader").Logger()}
}

// LoadFromPaths loads every policy found under paths. A path may be a single
// file, which must load, or a directory, which is walked recursively and
// whose unloadable files are skipped with a warning.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var out []Policy
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}

		if !info.IsDir() {
			p, err := l.loadFromFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
			}
			out = append(out, *p)
			continue
		}

		found, err := l.walk(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		out = append(out, found...)
	}

	l.logger.Info().Int("total", len(out)).Int("sources", len(paths)).Msg("Policies loaded from paths")
	return out, nil
}

func (l *Loader) walk(ctx context.Context, root string) ([]Policy, error) {
	var out []Policy
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case d.IsDir() || !isPolicyFile(path):
			return nil
		}

		p, err := l.loadFromFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
			return nil
		}
		out = append(out, *p)
		return nil
	})
	return out, err
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	}
	return false
}

func (l *Loader) loadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p *Policy
	if filepath.Ext(path) == ".json" {
		p, err = decodeJSONPolicy(data)
	} else {
		p, err = l.regoPolicy(path, string(data))
	}
	if err != nil {
		return nil, err
	}
	p.LoadedAt = time.Now()

	l.logger.Debug().Str("path", path).Str("policy", p.Name).Msg("Policy loaded from file")
	return p, nil
}

// regoPolicy names the policy after its file and takes the description from
// the first comment block. A "severity: <level>" line in that block sets the
// default severity.
func (l *Loader) regoPolicy(path, src string) (*Policy, error) {
	if _, err := ast.ParseModule(path, src); err != nil {
		return nil, fmt.Errorf("failed to parse rego: %w", err)
	}

	p := &Policy{
		Name:     strings.TrimSuffix(filepath.Base(path), ".rego"),
		Rego:     src,
		Severity: SeverityWarning,
		Enabled:  true,
		Metadata: map[string]interface{}{"source": path},
	}

	var desc []string
	for _, line := range headerComments(src) {
		if level, ok := strings.CutPrefix(line, "severity:"); ok {
			p.Severity = Severity(strings.TrimSpace(level))
			continue
		}
		desc = append(desc, line)
	}
	p.Description = strings.Join(desc, " ")

	switch p.Severity {
	case SeverityInfo, SeverityWarning, SeverityError:
	default:
		return nil, fmt.Errorf("unknown severity %q", p.Severity)
	}
	return p, nil
}

func decodeJSONPolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("JSON policy has no name")
	}
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	return &p, nil
}

// headerComments returns the non-empty lines of the first comment block in
// src, stripped of their leading '#'.
func headerComments(src string) []string {
	var lines []string
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed != "" && len(lines) > 0 {
				break
			}
			continue
		}
		if c := strings.TrimSpace(strings.TrimPrefix(trimmed, "#")); c != "" {
			lines = append(lines, c)
		}
	}
	return lines
}
