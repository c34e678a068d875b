package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"
)

// ManifestLoader reads manifests written in YAML, JSON or CUE. A CUE source
// may be a single file or a directory holding one CUE package; the manifest
// is its "manifest" field when present, the whole value otherwise.
type ManifestLoader struct {
	ctx *cue.Context
}

// NewManifestLoader creates a new manifest loader.
func NewManifestLoader() *ManifestLoader {
	return &ManifestLoader{ctx: cuecontext.New()}
}

// Load reads and normalizes the manifest at path. Parse errors are returned
// as a *multierror.Error of ValidationError values where locations are known.
func (ml *ManifestLoader) Load(_ context.Context, path string) (*LoadedManifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest %s: %w", path, err)
	}

	var (
		m     *Manifest
		files []string
	)
	switch {
	case info.IsDir():
		m, files, err = ml.loadDirectory(path)
	case strings.HasSuffix(path, ".cue"):
		m, err = ml.loadCUEFile(path)
		files = []string{path}
	default:
		m, err = ml.loadYAMLFile(path)
		files = []string{path}
	}
	if err != nil {
		return nil, err
	}

	m.Normalize()
	return &LoadedManifest{
		Manifest:    m,
		SourceFiles: files,
		ParsedAt:    time.Now(),
	}, nil
}

// ParseYAML parses a YAML or JSON manifest. Unknown fields are rejected.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	m.Normalize()
	return &m, nil
}

// ParseCUE parses inline CUE content.
func (ml *ManifestLoader) ParseCUE(content string) (*Manifest, error) {
	val := ml.ctx.CompileString(content, cue.Filename("inline.cue"))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	m, err := ml.extractManifest(val)
	if err != nil {
		return nil, err
	}
	m.Normalize()
	return m, nil
}

func (ml *ManifestLoader) loadYAMLFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseYAML(data)
	if err != nil {
		return nil, ValidationError{File: path, Message: err.Error(), Severity: "error"}
	}
	return m, nil
}

// loadCUEFile loads a single CUE file.
func (ml *ManifestLoader) loadCUEFile(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	val := ml.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	return ml.extractManifest(val)
}

// loadDirectory loads a directory as a CUE package.
func (ml *ManifestLoader) loadDirectory(dir string) (*Manifest, []string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	cueFiles, err := filepath.Glob(filepath.Join(abs, "*.cue"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(cueFiles) == 0 {
		return nil, nil, ValidationError{File: dir, Message: "no CUE files found", Severity: "error"}
	}

	// Files are loaded as one command-line package so no CUE module is needed.
	buildInstances := load.Instances(cueFiles, &load.Config{Dir: abs})
	if len(buildInstances) == 0 {
		return nil, nil, ValidationError{File: dir, Message: "no CUE files found", Severity: "error"}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return nil, nil, convertCUEErrors(inst.Err)
	}

	val := ml.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return nil, nil, convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	m, err := ml.extractManifest(val)
	if err != nil {
		return nil, nil, err
	}
	return m, files, nil
}

// extractManifest decodes the manifest from a CUE value.
func (ml *ManifestLoader) extractManifest(val cue.Value) (*Manifest, error) {
	if v := val.LookupPath(cue.ParsePath("manifest")); v.Exists() {
		val = v
	}

	var m Manifest
	if err := val.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", convertCUEErrors(err))
	}
	return &m, nil
}

// convertCUEErrors converts CUE errors into an aggregated error of
// ValidationError values.
func convertCUEErrors(err error) error {
	var result validationErrors
	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			Message:  errors.Details(e, nil),
			Severity: "error",
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		if path := e.Path(); len(path) > 0 {
			ve.Path = strings.Join(path, ".")
		}
		result = append(result, ve)
	}
	if len(result) == 0 {
		return err
	}
	return result.ErrorOrNil()
}
