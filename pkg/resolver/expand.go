package resolver

import "strings"

// maxExpansionIterations caps the fixpoint loop so a pathological or
// accidentally self-referential variable (VAR = "${VAR}") cannot hang
// expansion; spec.md §4.2 requires a cap against non-terminating cycles
// without mandating a specific bound.
const maxExpansionIterations = 64

// Expand repeatedly substitutes "${NAME}" references in value using
// lookup until no further substitution changes the string, or the
// iteration cap is reached. References to unknown variables expand to the
// empty string, matching BitBake's "unset variable expands to empty"
// behavior.
func Expand(value string, lookup func(name string) (string, bool)) string {
	cur := value
	for i := 0; i < maxExpansionIterations; i++ {
		next, changed := expandOnce(cur, lookup)
		if !changed {
			return next
		}
		cur = next
	}
	return cur
}

func expandOnce(s string, lookup func(name string) (string, bool)) (string, bool) {
	var b strings.Builder
	changed := false
	i := 0
	for i < len(s) {
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			end := strings.IndexByte(s[i+2:], '}')
			if end >= 0 {
				name := s[i+2 : i+2+end]
				// Opaque embedded-expression markers ("@...") are left
				// for the expression evaluator, not variable expansion.
				if strings.HasPrefix(name, "@") {
					b.WriteString(s[i : i+2+end+1])
					i += 2 + end + 1
					continue
				}
				val, ok := lookup(name)
				if ok {
					b.WriteString(val)
				}
				changed = true
				i += 2 + end + 1
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String(), changed
}
