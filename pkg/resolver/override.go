// Package resolver implements the assignment ledger and override-qualifier
// semantics of spec.md §4.2: given all assignments observed for a recipe
// (including its includes and inherited classes) and an active-overrides
// sequence, it folds the applicable assignments in source order to
// produce each variable's final expanded string value.
package resolver

import "strings"

// Operator identifies how an Assignment combines with the value already
// accumulated for its variable.
type Operator int

const (
	OpAssign Operator = iota
	OpWeakDefault
	OpImmediateWeakDefault
	OpAppend
	OpPrepend
	OpRemove
)

// Assignment is one observed assignment to a base variable, decomposed
// from its raw qualified form (e.g. "DEPENDS:append:x86") into a base
// name, the operator it actually performs, and the override qualifiers
// that gate it.
type Assignment struct {
	VarName   string
	Value     string
	Operator  Operator
	Overrides []string
}

// ParseAssignment decomposes a raw, possibly qualifier-chained variable
// name into an Assignment. Tokens "append", "prepend", and "remove"
// anywhere in the colon-separated chain are recognized as operators (and
// override the syntactic operator passed in, mirroring BitBake's
// ":append"/":prepend"/":remove" suffix forms); every other token is an
// override qualifier. This matches spec.md §4.2's override-qualifier
// parsing paragraph exactly.
func ParseAssignment(rawName, value string, op Operator) Assignment {
	parts := strings.Split(rawName, ":")
	if len(parts) == 0 {
		return Assignment{VarName: rawName, Value: value, Operator: op}
	}

	baseName := parts[0]
	actualOp := op
	var overrides []string

	for _, part := range parts[1:] {
		switch part {
		case "append":
			actualOp = OpAppend
		case "prepend":
			actualOp = OpPrepend
		case "remove":
			actualOp = OpRemove
		default:
			overrides = append(overrides, part)
		}
	}

	return Assignment{
		VarName:   baseName,
		Value:     value,
		Operator:  actualOp,
		Overrides: overrides,
	}
}

// AppliesTo reports whether every qualifier of a is present in
// activeOverrides. An assignment with no qualifiers always applies.
func (a Assignment) AppliesTo(activeOverrides []string) bool {
	if len(a.Overrides) == 0 {
		return true
	}
	for _, want := range a.Overrides {
		if !contains(activeOverrides, want) {
			return false
		}
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
