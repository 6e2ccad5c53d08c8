package expr

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// caseFold normalizes a string for case-insensitive comparison. Unlike
// strings.ToLower, it case-folds rather than lowercases, so comparisons
// stay correct for the rare non-ASCII spelling a recipe's metadata might
// carry through a variable.
var caseFold = cases.Fold()

// upperCaser/lowerCaser back the upper/lower String-method built-ins with
// language.Und (no specific locale tailoring, matching an embedded
// expression's untagged strings) rather than strings.ToUpper/ToLower.
var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// applyStringMethod implements the spec's value.method(args) String-method
// set against an already-computed value, as opposed to the ctx-driven
// builtins (filter/to_boolean/which) that look a variable up by name.
func applyStringMethod(value, method string, args []string) string {
	switch method {
	case "upper":
		return upperCaser.String(value)
	case "lower":
		return lowerCaser.String(value)
	case "strip":
		return strings.TrimSpace(value)
	case "lstrip":
		return strings.TrimLeft(value, " \t\n\r")
	case "rstrip":
		return strings.TrimRight(value, " \t\n\r")
	case "starts_with":
		if len(args) < 1 {
			return ""
		}
		return boolStr(strings.HasPrefix(value, args[0]))
	case "ends_with":
		if len(args) < 1 {
			return ""
		}
		return boolStr(strings.HasSuffix(value, args[0]))
	case "find":
		if len(args) < 1 {
			return "-1"
		}
		return strconv.Itoa(strings.Index(value, args[0]))
	case "rfind":
		if len(args) < 1 {
			return "-1"
		}
		return strconv.Itoa(strings.LastIndex(value, args[0]))
	case "replace":
		if len(args) < 2 {
			return value
		}
		return strings.ReplaceAll(value, args[0], args[1])
	case "split":
		return strings.Join(strings.Fields(value), " ")
	case "join":
		if len(args) < 1 {
			return ""
		}
		return strings.Join(strings.Fields(args[0]), value)
	default:
		return ""
	}
}

// builtinNames lists the domain functions recognized during compilation
// and lowered directly to IR operations rather than opaque-fallback text,
// per spec.md §4.3's "Built-in domain functions" paragraph.
var builtinNames = map[string]bool{
	"contains":             true,
	"contains_any":         true,
	"filter":               true,
	"conditional":          true,
	"to_boolean":           true,
	"which":                true,
	"vercmp":               true,
	"any_distro_features":  true,
	"all_distro_features":  true,
}

// Contains reports whether item appears as a whitespace-split token of
// the value of var in ctx, returning t or f accordingly.
func Contains(ctx Context, varName, item, t, f string) string {
	val, _ := ctx.GetVar(varName)
	for _, tok := range strings.Fields(val) {
		if tok == item {
			return t
		}
	}
	return f
}

// ContainsAny reports whether any of items appears as a whitespace-split
// token of the value of var in ctx.
func ContainsAny(ctx Context, varName string, items []string, t, f string) string {
	val, _ := ctx.GetVar(varName)
	tokens := strings.Fields(val)
	for _, item := range items {
		for _, tok := range tokens {
			if tok == item {
				return t
			}
		}
	}
	return f
}

// Filter returns the whitespace-joined subset of items that appear as a
// token of var's value in ctx, preserving items' order.
func Filter(ctx Context, varName string, items []string) string {
	val, _ := ctx.GetVar(varName)
	tokenSet := make(map[string]struct{})
	for _, tok := range strings.Fields(val) {
		tokenSet[tok] = struct{}{}
	}
	var kept []string
	for _, item := range items {
		if _, ok := tokenSet[item]; ok {
			kept = append(kept, item)
		}
	}
	return strings.Join(kept, " ")
}

// Conditional returns t if var's value equals value exactly, else f.
func Conditional(ctx Context, varName, value, t, f string) string {
	val, _ := ctx.GetVar(varName)
	if val == value {
		return t
	}
	return f
}

// trueStrings is the case-insensitive set ToBoolean maps to true.
var trueStrings = map[string]bool{
	"yes": true, "true": true, "1": true, "y": true,
	"t": true, "on": true, "enable": true, "enabled": true,
}

// ToBoolean maps common truthy spellings to true, everything else to false.
func ToBoolean(value string) bool {
	return trueStrings[caseFold.String(strings.TrimSpace(value))]
}

// Which returns item if any colon/whitespace-split component of pathVar's
// value equals item or ends in "/item", else "".
func Which(ctx Context, pathVar, item string) string {
	val, _ := ctx.GetVar(pathVar)
	fields := strings.FieldsFunc(val, func(r rune) bool {
		return r == ':' || r == ' ' || r == '\t'
	})
	for _, component := range fields {
		if component == item || strings.HasSuffix(component, "/"+item) {
			return item
		}
	}
	return ""
}

// Vercmp compares two dotted-numeric version strings, returning -1, 0, or
// 1. Missing components are treated as zero, per spec.md §4.3.
func Vercmp(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(digitsOnly(as[i]))
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(digitsOnly(bs[i]))
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			break
		}
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()
}

// AnyDistroFeatures reports whether any of features is present in the
// whitespace-split value of DISTRO_FEATURES.
func AnyDistroFeatures(ctx Context, features []string) bool {
	val, _ := ctx.GetVar("DISTRO_FEATURES")
	tokens := strings.Fields(val)
	for _, want := range features {
		for _, tok := range tokens {
			if tok == want {
				return true
			}
		}
	}
	return false
}

// AllDistroFeatures reports whether every one of features is present in
// the whitespace-split value of DISTRO_FEATURES.
func AllDistroFeatures(ctx Context, features []string) bool {
	val, _ := ctx.GetVar("DISTRO_FEATURES")
	tokenSet := make(map[string]struct{})
	for _, tok := range strings.Fields(val) {
		tokenSet[tok] = struct{}{}
	}
	for _, want := range features {
		if _, ok := tokenSet[want]; !ok {
			return false
		}
	}
	return true
}
