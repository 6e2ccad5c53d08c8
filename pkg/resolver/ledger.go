package resolver

import "strings"

// Ledger accumulates every assignment observed for a recipe (including
// its includes and inherited classes) and, given an active-overrides
// sequence, folds them into final variable values on demand. Keeping the
// ledger instead of eagerly binding values means the same ledger can be
// re-resolved against a different ActiveOverrides (e.g. when analyzing
// multiple machines) without re-parsing, per spec.md §9's "assignment
// ledger instead of immediate binding" design note.
type Ledger struct {
	assignments map[string][]Assignment
	order       []string
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{assignments: make(map[string][]Assignment)}
}

// Add records rawName/value/op as a new Assignment, preserving source
// order both within a variable's own assignment list and across distinct
// variable names (the latter exposed via Variables for ResolveAll).
func (l *Ledger) Add(rawName, value string, op Operator) {
	a := ParseAssignment(rawName, value, op)
	if _, seen := l.assignments[a.VarName]; !seen {
		l.order = append(l.order, a.VarName)
	}
	l.assignments[a.VarName] = append(l.assignments[a.VarName], a)
}

// Variables returns every base variable name with at least one recorded
// assignment, in first-seen order.
func (l *Ledger) Variables() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Resolve folds the assignments recorded for name that are applicable
// under active, in source order, per the operator semantics table in
// spec.md §4.2, then expands "${OTHER}" references against the ledger
// itself (re-resolving each referenced variable under the same active
// overrides). It returns ok=false if name has no recorded assignments at
// all (as distinct from having assignments that all resolve to a value —
// "zero applicable assignments" still returns ok=true with an empty
// string, per spec.md §8's boundary-behavior requirement).
func (l *Ledger) Resolve(name string, active ActiveOverrides) (string, bool) {
	return l.resolve(name, active, map[string]bool{})
}

// resolve is Resolve's recursive worker. inProgress carries every variable
// name currently being expanded along this call's own resolution path, so
// a reference cycle of any length (not just a direct A="${A}"
// self-reference, but also A="${B}"/B="${A}" and longer chains) is caught
// the moment a name reappears, rather than recursing until the Go stack
// overflows.
func (l *Ledger) resolve(name string, active ActiveOverrides, inProgress map[string]bool) (string, bool) {
	result, ok := l.fold(name, active)
	if !ok {
		return "", false
	}

	inProgress[name] = true
	expanded := Expand(result, func(ref string) (string, bool) {
		if inProgress[ref] {
			// ref is already being expanded somewhere up this call's own
			// path (a direct self-reference, or a longer A->B->A cycle).
			// Substituting ref's own folded value back in would just
			// reintroduce the same "${ref}" marker for the next fixpoint
			// iteration to expand again, regrowing the surrounding text
			// on every pass; returning the marker itself unexpanded keeps
			// the result stable instead.
			return "${" + ref + "}", true
		}
		return l.resolve(ref, active, inProgress)
	})
	delete(inProgress, name)
	return expanded, true
}

// fold applies the operator-semantics table in spec.md §4.2 to name's
// recorded assignments under active, without expanding any "${OTHER}"
// references the folded result may still contain.
func (l *Ledger) fold(name string, active ActiveOverrides) (string, bool) {
	assignments, ok := l.assignments[name]
	if !ok {
		return "", false
	}

	var result string
	hasValue := false

	for _, a := range assignments {
		if !a.AppliesTo(active.Tokens) {
			continue
		}
		switch a.Operator {
		case OpAssign:
			result = a.Value
			hasValue = true
		case OpWeakDefault, OpImmediateWeakDefault:
			if !hasValue {
				result = a.Value
				hasValue = true
			}
		case OpAppend:
			if hasValue {
				result = result + " " + a.Value
			} else {
				result = a.Value
				hasValue = true
			}
		case OpPrepend:
			if hasValue {
				result = a.Value + " " + result
			} else {
				result = a.Value
				hasValue = true
			}
		case OpRemove:
			if hasValue {
				result = removeToken(result, a.Value)
			}
		}
	}

	if hasValue {
		// Whitespace renormalization: append/prepend operands commonly
		// carry their own separating space (e.g. `VAR:append = " d"`),
		// so a naive join can leave doubled spaces. Collapsing to
		// single-space-separated tokens here keeps the ledger's output
		// independent of whether a given assignment's author included a
		// leading/trailing space.
		result = strings.Join(strings.Fields(result), " ")
	}

	return result, true
}

// ResolveAll resolves every variable with at least one recorded
// assignment under active, returning a name→value map.
func (l *Ledger) ResolveAll(active ActiveOverrides) map[string]string {
	out := make(map[string]string, len(l.order))
	for _, name := range l.order {
		if v, ok := l.Resolve(name, active); ok {
			out[name] = v
		}
	}
	return out
}

func removeToken(current, token string) string {
	trimmedToken := strings.TrimSpace(token)
	var kept []string
	for _, tok := range strings.Fields(current) {
		if tok != trimmedToken {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}
