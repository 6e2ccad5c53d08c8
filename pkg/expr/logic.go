package expr

import "strings"

// compileExpr is compileValueExpr's superset: it additionally recognizes
// BitBake's Python-ish ternary (`t if cond else f`), the `and`/`or`/`not`
// logical operators, general comparisons (`==`, `!=`, `<`, `<=`, `>`, `>=`,
// `in`, `contains`), and list literals (`['a', 'b']`), each by precedence
// level, before falling through to compileValueExpr's literal/read/
// method-call/concatenation grammar. Any level that doesn't match its own
// syntax defers to the next lower one, so a plain literal or getVar read
// still resolves the same way it did before these were added.
func compileExpr(b *builder, src string) (ValueHandle, bool) {
	src = strings.TrimSpace(src)
	if h, ok := compileTernary(b, src); ok {
		return h, true
	}
	return compileOr(b, src)
}

// compileTernary splits "T if COND else F" at the first top-level " if "
// and the first top-level " else " following it, per spec.md §4.3's
// Conditional(cond, t, f) op.
func compileTernary(b *builder, src string) (ValueHandle, bool) {
	ifIdx, ok := findTopLevel(src, " if ")
	if !ok {
		return 0, false
	}
	rest := src[ifIdx+len(" if "):]
	elseIdx, ok := findTopLevel(rest, " else ")
	if !ok {
		return 0, false
	}

	truePart := src[:ifIdx]
	condPart := rest[:elseIdx]
	falsePart := rest[elseIdx+len(" else "):]

	trueH, ok := compileExpr(b, truePart)
	if !ok {
		return 0, false
	}
	condH, ok := compileExpr(b, condPart)
	if !ok {
		return 0, false
	}
	falseH, ok := compileExpr(b, falsePart)
	if !ok {
		return 0, false
	}
	return b.emit(Op{Kind: OpConditional, Inputs: []ValueHandle{condH, trueH, falseH}}), true
}

func compileOr(b *builder, src string) (ValueHandle, bool) {
	parts := splitAllTopLevel(src, " or ")
	if len(parts) == 1 {
		return compileAnd(b, src)
	}
	return foldLogical(b, parts, "or", compileAnd)
}

func compileAnd(b *builder, src string) (ValueHandle, bool) {
	parts := splitAllTopLevel(src, " and ")
	if len(parts) == 1 {
		return compileNot(b, src)
	}
	return foldLogical(b, parts, "and", compileNot)
}

func foldLogical(b *builder, parts []string, op string, next func(*builder, string) (ValueHandle, bool)) (ValueHandle, bool) {
	first, ok := next(b, strings.TrimSpace(parts[0]))
	if !ok {
		return 0, false
	}
	for _, part := range parts[1:] {
		h, ok := next(b, strings.TrimSpace(part))
		if !ok {
			return 0, false
		}
		first = b.emit(Op{Kind: OpLogical, Text: op, Inputs: []ValueHandle{first, h}})
	}
	return first, true
}

func compileNot(b *builder, src string) (ValueHandle, bool) {
	if strings.HasPrefix(src, "not ") {
		h, ok := compileNot(b, strings.TrimSpace(src[len("not "):]))
		if !ok {
			return 0, false
		}
		return b.emit(Op{Kind: OpLogical, Text: "not", Inputs: []ValueHandle{h}}), true
	}
	return compileCompare(b, src)
}

// compareSymbols is tried longest-first so "<=" is recognized before its
// "<" prefix would otherwise match.
var compareSymbols = []struct{ sym, op string }{
	{"==", "eq"}, {"!=", "ne"}, {"<=", "le"}, {">=", "ge"}, {"<", "lt"}, {">", "gt"},
}

func compileCompare(b *builder, src string) (ValueHandle, bool) {
	for _, cs := range compareSymbols {
		idx, ok := findTopLevel(src, cs.sym)
		if !ok {
			continue
		}
		lhsH, ok := compileListOrValue(b, strings.TrimSpace(src[:idx]))
		if !ok {
			return 0, false
		}
		rhsH, ok := compileListOrValue(b, strings.TrimSpace(src[idx+len(cs.sym):]))
		if !ok {
			return 0, false
		}
		return b.emit(Op{Kind: OpCompare, Text: cs.op, Inputs: []ValueHandle{lhsH, rhsH}}), true
	}

	if idx, ok := findTopLevel(src, " contains "); ok {
		lhsH, ok := compileListOrValue(b, strings.TrimSpace(src[:idx]))
		if !ok {
			return 0, false
		}
		rhsH, ok := compileListOrValue(b, strings.TrimSpace(src[idx+len(" contains "):]))
		if !ok {
			return 0, false
		}
		return b.emit(Op{Kind: OpCompare, Text: "contains", Inputs: []ValueHandle{lhsH, rhsH}}), true
	}
	if idx, ok := findTopLevel(src, " in "); ok {
		// "item in var" is contains with the operands swapped.
		itemH, ok := compileListOrValue(b, strings.TrimSpace(src[:idx]))
		if !ok {
			return 0, false
		}
		varH, ok := compileListOrValue(b, strings.TrimSpace(src[idx+len(" in "):]))
		if !ok {
			return 0, false
		}
		return b.emit(Op{Kind: OpCompare, Text: "contains", Inputs: []ValueHandle{varH, itemH}}), true
	}

	return compileListOrValue(b, src)
}

// compileListOrValue recognizes a `['a', 'b']` list literal (whose elements
// become a single whitespace-joined value, matching every other
// space-separated list convention in this package), falling through to
// compileValueExpr for everything else.
func compileListOrValue(b *builder, src string) (ValueHandle, bool) {
	if len(src) >= 2 && src[0] == '[' && src[len(src)-1] == ']' {
		inner := strings.TrimSpace(src[1 : len(src)-1])
		if inner == "" {
			return b.emit(Op{Kind: OpListLiteral}), true
		}
		var inputs []ValueHandle
		for _, item := range splitTopLevel(inner, ',') {
			h, ok := compileExpr(b, strings.TrimSpace(item))
			if !ok {
				return 0, false
			}
			inputs = append(inputs, h)
		}
		return b.emit(Op{Kind: OpListLiteral, Inputs: inputs}), true
	}
	return compileValueExpr(b, src)
}

// findTopLevel returns the index of sep's first occurrence in s that falls
// outside any quoted string and at zero paren/bracket depth, or -1 if none.
func findTopLevel(s, sep string) (int, bool) {
	depth := 0
	var quote byte
	for i := 0; i+len(sep) <= len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		}
		if depth == 0 && s[i:i+len(sep)] == sep {
			return i, true
		}
	}
	return -1, false
}

// splitAllTopLevel splits s on every non-overlapping top-level occurrence
// of sep, left to right.
func splitAllTopLevel(s, sep string) []string {
	var parts []string
	rest := s
	for {
		idx, ok := findTopLevel(rest, sep)
		if !ok {
			parts = append(parts, rest)
			return parts
		}
		parts = append(parts, rest[:idx])
		rest = rest[idx+len(sep):]
	}
}
