// Package extract resolves a recipe file and every include/require it
// names into a single variable ledger, classifies inherited classes, and
// pulls out task shell/python function bodies — the bridge between
// pkg/metadata's parse tree and pkg/recipe's dependency graph.
package extract

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bbforge/bbforge/pkg/bberrors"
	"github.com/bbforge/bbforge/pkg/metadata"
	"github.com/bbforge/bbforge/pkg/resolver"
)

type directiveKind int

const (
	directiveAssignment directiveKind = iota
	directiveInherit
	directivePath
	directiveShellFunction
)

type directive struct {
	kind       directiveKind
	assignment metadata.AssignmentStmt
	classes    []string
	path       string
	required   bool
	fn         metadata.ShellFunctionStmt
}

// Document is the fully merged result of extracting one recipe file: its
// variable ledger with every include/require inlined in document order,
// the union of inherited classes, and every brace-delimited function body
// encountered (task implementations and helpers alike — pkg/extract's
// caller classifies which is which via task name conventions).
type Document struct {
	Ledger         *resolver.Ledger
	Inherits       []string
	ShellFunctions []metadata.ShellFunctionStmt
	SourceFile     string
	RawContent     string
}

// Extractor resolves include/require directives against a search path,
// caching parsed directive lists per file so recipes sharing a common
// .inc are not reparsed.
type Extractor struct {
	searchPaths []string
	cache       map[string][]directive
}

// NewExtractor returns an Extractor that additionally searches searchPaths
// (in order, after the including file's own directory) for include targets.
func NewExtractor(searchPaths ...string) *Extractor {
	return &Extractor{searchPaths: searchPaths, cache: make(map[string][]directive)}
}

// ExtractFile parses path and every include/require it (transitively)
// names, folding every assignment into one ledger in document order.
func (e *Extractor) ExtractFile(path string) (*Document, error) {
	doc := &Document{Ledger: resolver.NewLedger(), SourceFile: path}
	stack := make(map[string]struct{})
	if err := e.fold(path, doc, stack); err != nil {
		return nil, err
	}
	if raw, err := os.ReadFile(path); err == nil {
		doc.RawContent = string(raw)
	}
	return doc, nil
}

func (e *Extractor) fold(path string, doc *Document, stack map[string]struct{}) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, ok := stack[abs]; ok {
		return bberrors.New(bberrors.CodeParseError, fmt.Sprintf("circular include detected: %s", abs))
	}
	stack[abs] = struct{}{}
	defer delete(stack, abs)

	directives, err := e.parse(abs)
	if err != nil {
		return err
	}

	baseDir := filepath.Dir(abs)

	for _, d := range directives {
		switch d.kind {
		case directiveAssignment:
			doc.Ledger.Add(d.assignment.Name, d.assignment.Value, d.assignment.Operator)

		case directiveInherit:
			for _, c := range d.classes {
				if !containsString(doc.Inherits, c) {
					doc.Inherits = append(doc.Inherits, c)
				}
			}

		case directiveShellFunction:
			doc.ShellFunctions = append(doc.ShellFunctions, d.fn)

		case directivePath:
			expanded := resolver.Expand(d.path, func(name string) (string, bool) {
				return doc.Ledger.Resolve(name, resolver.ActiveOverrides{})
			})
			found, ok := e.findInclude(expanded, baseDir)
			if !ok {
				if d.required {
					return bberrors.New(bberrors.CodeParseError, fmt.Sprintf("required file not found: %s", expanded))
				}
				slog.Debug("include file not found, skipping", "path", expanded)
				continue
			}
			if err := e.fold(found, doc, stack); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Extractor) parse(path string) ([]directive, error) {
	if cached, ok := e.cache[path]; ok {
		return cached, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, bberrors.Wrap(bberrors.CodeParseError, fmt.Sprintf("reading %s", path), err)
	}

	p := metadata.Parse(string(raw))
	var out []directive
	for _, child := range p.Root.Children {
		switch child.Kind {
		case metadata.NodeVariableAssignment:
			for _, a := range metadata.ExtractAssignments(child) {
				out = append(out, directive{kind: directiveAssignment, assignment: a})
			}
		case metadata.NodeInheritStmt:
			if classes := metadata.ExtractInherits(child); len(classes) > 0 {
				out = append(out, directive{kind: directiveInherit, classes: classes})
			}
		case metadata.NodeIncludeStmt:
			for _, pth := range metadata.ExtractIncludes(child) {
				out = append(out, directive{kind: directivePath, path: pth, required: false})
			}
		case metadata.NodeRequireStmt:
			for _, pth := range metadata.ExtractRequires(child) {
				out = append(out, directive{kind: directivePath, path: pth, required: true})
			}
		case metadata.NodeShellFunction:
			for _, fn := range metadata.ExtractShellFunctions(child) {
				out = append(out, directive{kind: directiveShellFunction, fn: fn})
			}
		}
	}

	e.cache[path] = out
	return out, nil
}

func (e *Extractor) findInclude(includePath, baseDir string) (string, bool) {
	candidate := filepath.Join(baseDir, includePath)
	if fileExists(candidate) {
		return candidate, true
	}
	for _, sp := range e.searchPaths {
		candidate := filepath.Join(sp, includePath)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// ClearCache drops every cached parsed file, forcing the next ExtractFile
// call to reread and reparse from disk.
func (e *Extractor) ClearCache() {
	e.cache = make(map[string][]directive)
}

// CacheStats returns (number of cached files, number of search paths),
// mirroring include_resolver.rs's cache_stats for observability/tests.
func (e *Extractor) CacheStats() (int, int) {
	return len(e.cache), len(e.searchPaths)
}
