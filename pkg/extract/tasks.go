package extract

import (
	"regexp"
	"strings"
)

// ImplKind classifies how a task body should be executed.
type ImplKind int

const (
	ImplShell ImplKind = iota
	ImplPython
	ImplFakerootShell
)

// TaskImplementation is one brace-delimited function body pulled directly
// from raw recipe text: a shell task (do_compile), a python task
// (python do_compile), a fakeroot-wrapped task, or a plain helper function.
type TaskImplementation struct {
	Name           string
	Kind           ImplKind
	Code           string
	LineNumber     int
	OverrideSuffix string
}

var (
	shellFuncRe    = regexp.MustCompile(`^(do_\w+)(:[a-zA-Z_]+)?\s*\(\s*\)\s*\{`)
	pythonFuncRe   = regexp.MustCompile(`^python\s+(do_\w+)(:[a-zA-Z_]+)?\s*\(\s*\)\s*\{`)
	fakerootFuncRe = regexp.MustCompile(`^fakeroot\s+(do_\w+)(:[a-zA-Z_]+)?\s*\(\s*\)\s*\{`)
	helperFuncRe   = regexp.MustCompile(`^([a-z_][a-z0-9_]*)\s*\(\s*\)\s*\{`)
)

// ExtractImplementations scans raw recipe text line by line for task and
// helper function bodies, keyed by task name (plus any ":override" suffix
// so e.g. do_compile and do_compile:class-target coexist).
func ExtractImplementations(content string) (tasks, helpers map[string]TaskImplementation) {
	tasks = make(map[string]TaskImplementation)
	helpers = make(map[string]TaskImplementation)
	lines := strings.Split(content, "\n")

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])

		if m := shellFuncRe.FindStringSubmatch(line); m != nil {
			name := normalizeTaskName(m[1])
			code, end := extractFunctionBody(lines, i)
			tasks[taskKey(name, m[2])] = TaskImplementation{Name: name, Kind: ImplShell, Code: code, LineNumber: i + 1, OverrideSuffix: m[2]}
			i = end + 1
			continue
		}

		if m := pythonFuncRe.FindStringSubmatch(line); m != nil {
			name := normalizeTaskName(m[1])
			code, end := extractFunctionBody(lines, i)
			tasks[taskKey(name, m[2])] = TaskImplementation{Name: name, Kind: ImplPython, Code: code, LineNumber: i + 1, OverrideSuffix: m[2]}
			i = end + 1
			continue
		}

		if m := fakerootFuncRe.FindStringSubmatch(line); m != nil {
			name := normalizeTaskName(m[1])
			code, end := extractFunctionBody(lines, i)
			tasks[taskKey(name, m[2])] = TaskImplementation{Name: name, Kind: ImplFakerootShell, Code: code, LineNumber: i + 1, OverrideSuffix: m[2]}
			i = end + 1
			continue
		}

		if !strings.HasPrefix(line, "do_") && !strings.HasPrefix(line, "python ") && !strings.HasPrefix(line, "fakeroot ") {
			if m := helperFuncRe.FindStringSubmatch(line); m != nil {
				name := m[1]
				code, end := extractFunctionBody(lines, i)
				helpers[name] = TaskImplementation{Name: name, Kind: ImplShell, Code: code, LineNumber: i + 1}
				i = end + 1
				continue
			}
		}

		i++
	}

	return tasks, helpers
}

func normalizeTaskName(name string) string {
	return strings.TrimPrefix(name, "do_")
}

func taskKey(name, overrideSuffix string) string {
	if overrideSuffix == "" {
		return name
	}
	return name + overrideSuffix
}

// extractFunctionBody scans forward from startLine (the declaration line)
// counting brace depth, returning the body text (excluding the declaration
// and closing-brace lines) and the index of the closing-brace line.
func extractFunctionBody(lines []string, startLine int) (string, int) {
	var body []string
	braceCount := 0
	started := false

	i := startLine
	for i < len(lines) {
		line := lines[i]

		closed := false
		for _, ch := range line {
			switch ch {
			case '{':
				braceCount++
				started = true
			case '}':
				braceCount--
				if started && braceCount == 0 {
					closed = true
				}
			}
			if closed {
				break
			}
		}

		if closed {
			return strings.Join(body, "\n"), i
		}

		if i > startLine && braceCount > 0 {
			body = append(body, line)
		}
		i++
	}

	return strings.Join(body, "\n"), i
}
