package hcl

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/trustgo/internal/ctxlog"
	"github.com/vk/trustgo/internal/fsutil"
	"github.com/vk/trustgo/internal/program"
)

// Extension is the suffix of program files.
const Extension = ".hcl"

// Loader is the HCL implementation of program.Loader.
type Loader struct {
	converter *Converter
}

var _ program.Loader = (*Loader)(nil)

// NewLoader creates a new HCL program loader.
func NewLoader() *Loader {
	return &Loader{converter: NewConverter()}
}

// Load parses every .hcl file under the given paths and merges their blocks
// into one validated program.
func (l *Loader) Load(ctx context.Context, paths ...string) (*program.Program, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %v", Extension, paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	prog := &program.Program{
		Vars:    make(map[string]*program.Var),
		Threads: make(map[string]*program.Thread),
	}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, c := range root.Checkers {
			if prog.Settings != nil {
				return nil, fmt.Errorf("%s: duplicate checker block", file)
			}
			if prog.Settings, err = l.translateChecker(ctx, c); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		for _, p := range root.Programs {
			if err := l.mergeProgram(ctx, prog, p); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
	}

	if err := prog.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.", "program", prog.Name, "vars", len(prog.Vars), "threads", len(prog.Threads))
	return prog, nil
}

// findAllHCLFiles expands directories and returns each .hcl file once.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, Extension)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}
	return allFiles, nil
}
