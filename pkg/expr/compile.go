package expr

import (
	"strings"
)

// Compile parses an embedded-expression snippet (the text inside a
// `${@...}` marker, with or without the marker itself) into a flat IR,
// per spec.md §4.3's compilation pipeline. Per the spec's explicit
// Non-goal ("reimplementing the full embedded expression language ...
// with dynamic-typing fidelity"), Compile recognizes the documented
// built-in domain functions and a small set of variable-read and
// concatenation forms directly (no variable-write form is compiled);
// anything else is preserved verbatim as an
// Opaque-fallback operation rather than guessed at.
func Compile(snippet string) *IR {
	src := strings.TrimSpace(snippet)
	src = strings.TrimPrefix(src, "${@")
	src = strings.TrimSuffix(src, "}")
	src = strings.TrimSpace(src)

	b := &builder{}

	if op, ok := compileBuiltinCall(src); ok {
		result := b.emit(op)
		return finish(b, result, snippet)
	}
	if result, ok := compileExpr(b, src); ok {
		return finish(b, result, snippet)
	}

	result := b.emit(Op{Kind: OpOpaqueFallback, Text: src})
	return finish(b, result, snippet)
}

func finish(b *builder, result ValueHandle, source string) *IR {
	return &IR{
		Ops:        b.ops,
		Result:     result,
		Complexity: scoreOps(b.ops),
		Source:     source,
	}
}

// compileBuiltinCall recognizes `name(arg, arg, ...)` where name is one of
// builtinNames, and emits the corresponding single IR op. Arguments are
// parsed as quoted string literals or bare identifiers (the latter pass
// through as literal text — e.g. a trailing "ctx"/"d" parameter that this
// IR doesn't need to model as a distinct value).
func compileBuiltinCall(src string) (Op, bool) {
	name, args, ok := parseCall(src)
	if !ok || !builtinNames[name] {
		return Op{}, false
	}

	switch name {
	case "contains":
		if len(args) < 4 {
			return Op{}, false
		}
		return Op{Kind: OpContainsCapability, Text: args[0], Args: []string{args[1], args[2], args[3]}}, true
	case "contains_any":
		if len(args) < 4 {
			return Op{}, false
		}
		items := strings.Fields(args[1])
		return Op{Kind: OpContainsCapability, Text: args[0], Args: append(items, args[2], args[3])}, true
	case "filter":
		if len(args) < 2 {
			return Op{}, false
		}
		return Op{Kind: OpStringMethod, Text: "filter", Args: append([]string{args[0]}, strings.Fields(args[1])...)}, true
	case "conditional":
		if len(args) < 4 {
			return Op{}, false
		}
		return Op{Kind: OpConditional, Text: args[0], Args: []string{args[1], args[2], args[3]}}, true
	case "to_boolean":
		if len(args) < 1 {
			return Op{}, false
		}
		return Op{Kind: OpStringMethod, Text: "to_boolean", Args: []string{args[0]}}, true
	case "which":
		if len(args) < 2 {
			return Op{}, false
		}
		return Op{Kind: OpStringMethod, Text: "which", Args: []string{args[0], args[1]}}, true
	case "vercmp":
		if len(args) < 2 {
			return Op{}, false
		}
		return Op{Kind: OpCompare, Text: "vercmp", Args: []string{args[0], args[1]}}, true
	case "any_distro_features":
		return Op{Kind: OpContainsCapability, Text: "DISTRO_FEATURES", Args: append([]string{"any"}, strings.Fields(joinArgs(args))...)}, true
	case "all_distro_features":
		return Op{Kind: OpContainsCapability, Text: "DISTRO_FEATURES", Args: append([]string{"all"}, strings.Fields(joinArgs(args))...)}, true
	}
	return Op{}, false
}

func joinArgs(args []string) string { return strings.Join(args, " ") }

// parseCall splits `name(a, b, c)` into name and unquoted/trimmed
// argument strings. Arguments may be single- or double-quoted literals or
// bare tokens (identifiers, numbers); nested parens/brackets are not
// supported and cause parseCall to report failure, falling through to
// opaque-fallback.
func parseCall(src string) (string, []string, bool) {
	open := strings.IndexByte(src, '(')
	if open < 0 || !strings.HasSuffix(src, ")") {
		return "", nil, false
	}
	name := strings.TrimSpace(src[:open])
	if name == "" || strings.ContainsAny(name, " \t.") {
		return "", nil, false
	}
	inner := src[open+1 : len(src)-1]

	var args []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == ',' && depth == 0:
			args = append(args, unquoteArg(strings.TrimSpace(inner[start:i])))
			start = i + 1
		}
	}
	if strings.TrimSpace(inner) != "" {
		args = append(args, unquoteArg(strings.TrimSpace(inner[start:])))
	}
	return name, args, true
}

func unquoteArg(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// compileValueExpr handles the remaining grammar Compile supports
// directly: a string literal, a `d.getVar('NAME')` / `d.getVar('NAME',
// True)` read, or a chain of such terms joined by `+` (string
// concatenation). Anything else returns ok=false so the caller falls back
// to Opaque-fallback.
func compileValueExpr(b *builder, src string) (ValueHandle, bool) {
	terms := splitTopLevel(src, '+')
	if len(terms) == 0 {
		return 0, false
	}

	var handles []ValueHandle
	for _, term := range terms {
		term = strings.TrimSpace(term)
		h, ok := compileTerm(b, term)
		if !ok {
			return 0, false
		}
		handles = append(handles, h)
	}
	if len(handles) == 1 {
		return handles[0], true
	}

	cur := handles[0]
	for _, next := range handles[1:] {
		cur = b.emit(Op{Kind: OpConcatenate, Inputs: []ValueHandle{cur, next}})
	}
	return cur, true
}

// stringMethods is the spec.md §4.3 String-method set: value.method(args)
// applied to whatever term precedes it, e.g. `d.getVar('PN').upper()`.
var stringMethods = map[string]bool{
	"starts_with": true, "ends_with": true, "find": true, "rfind": true,
	"upper": true, "lower": true, "strip": true, "lstrip": true,
	"rstrip": true, "replace": true, "split": true, "join": true,
}

func compileTerm(b *builder, term string) (ValueHandle, bool) {
	if recv, method, args, ok := splitMethodCall(term); ok {
		recvHandle, ok := compileTerm(b, recv)
		if !ok {
			return 0, false
		}
		return b.emit(Op{Kind: OpStringMethod, Text: method, Inputs: []ValueHandle{recvHandle}, Args: args}), true
	}

	if len(term) >= 2 && (term[0] == '\'' || term[0] == '"') && term[len(term)-1] == term[0] {
		return b.emit(Op{Kind: OpLiteral, Text: term[1 : len(term)-1]}), true
	}

	if strings.HasPrefix(term, "d.getVar(") && strings.HasSuffix(term, ")") {
		inner := term[len("d.getVar(") : len(term)-1]
		parts := strings.SplitN(inner, ",", 2)
		name := unquoteArg(strings.TrimSpace(parts[0]))
		expandFlag := ""
		if len(parts) > 1 && strings.Contains(parts[1], "True") {
			expandFlag = readVariableExpandFlag
		}
		return b.emit(Op{Kind: OpReadVariable, Text: expandFlag, Args: []string{name}}), true
	}

	return 0, false
}

// splitMethodCall recognizes a trailing `.method(args)` suffix naming one
// of stringMethods, splitting term into its receiver expression, the
// method name, and its unquoted literal arguments. The receiver's own
// closing paren (as in `d.getVar('PN')`) is matched by depth so the split
// point lands after it, not at its first ')'.
func splitMethodCall(term string) (recv, method string, args []string, ok bool) {
	if !strings.HasSuffix(term, ")") {
		return "", "", nil, false
	}
	depth := 0
	var quote byte
	for i := len(term) - 1; i >= 0; i-- {
		c := term[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ')':
			depth++
		case c == '(':
			depth--
			if depth == 0 {
				dot := strings.LastIndexByte(term[:i], '.')
				if dot < 0 {
					return "", "", nil, false
				}
				name := term[dot+1 : i]
				if !stringMethods[name] {
					return "", "", nil, false
				}
				_, parsedArgs, ok := parseCall(name + term[i:])
				if !ok {
					return "", "", nil, false
				}
				return term[:dot], name, parsedArgs, true
			}
		}
	}
	return "", "", nil, false
}

// splitTopLevel splits s on sep outside of quotes, parens, and brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
