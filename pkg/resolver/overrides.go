package resolver

import "strings"

// ActiveOverrides is the ordered sequence of tokens an assignment's
// qualifiers are checked against: machine name, distro name, automatic
// arch/bit-width splits derived from the machine name, and fixed policy
// defaults. Order is insignificant for AppliesTo but is preserved here so
// callers that need tie-breaking across equally-specific override chains
// have something to index into.
type ActiveOverrides struct {
	Tokens []string
}

// BuildActiveOverrides derives the active-overrides sequence from a
// machine name, a distro name, and caller-supplied additional tokens
// (e.g. a named build class), per spec.md §3's ActiveOverrides
// description and its worked automatic-split example ("arm", "64").
// Ordering matches the source convention of
// MACHINEOVERRIDES:DISTROOVERRIDES:OVERRIDES.
func BuildActiveOverrides(machine, distro string, additional []string) ActiveOverrides {
	var tokens []string

	if machine != "" {
		tokens = append(tokens, machine)
		if strings.Contains(machine, "arm") {
			tokens = append(tokens, "arm")
		}
		if strings.Contains(machine, "x86") {
			tokens = append(tokens, "x86")
		}
		if strings.Contains(machine, "64") {
			tokens = append(tokens, "64")
		}
	}

	if distro != "" {
		tokens = append(tokens, distro)
	}

	tokens = append(tokens, additional...)
	tokens = append(tokens, "class-target", "forcevariable")

	return ActiveOverrides{Tokens: tokens}
}

// ParseOverridesVariable splits a colon-separated OVERRIDES variable value
// (as a recipe might set it directly) into tokens, trimming whitespace and
// dropping empty entries.
func ParseOverridesVariable(value string) ActiveOverrides {
	var tokens []string
	for _, tok := range strings.Split(value, ":") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return ActiveOverrides{Tokens: tokens}
}

// Contains reports whether token is present in the active-overrides sequence.
func (a ActiveOverrides) Contains(token string) bool {
	return contains(a.Tokens, token)
}
