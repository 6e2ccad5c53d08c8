package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Fallback is the external general-purpose embedded-language collaborator
// spec.md §4.3 describes: "execute text in a variable context and return
// mutations". The evaluator never requires one to be configured; when nil,
// fallback-class snippets simply yield no mutations and an "unevaluated"
// diagnostic, per the spec's explicit resilience requirement.
type Fallback interface {
	Execute(source string, ctx Context) (value string, mutations []Mutation, err error)
}

// Result is the outcome of evaluating an IR: the string value it produced
// (meaningful for inline expressions), any variable mutations it recorded
// (meaningful for block-form expressions), the strategy actually used,
// and whether the snippet could not be evaluated (fallback-class with no
// Fallback collaborator configured).
type Result struct {
	Value       string
	Mutations   []Mutation
	Strategy    Strategy
	Unevaluated bool
}

// Evaluate runs ir under ctx using the strategy implied by its complexity
// score. fallback may be nil.
func Evaluate(ir *IR, ctx Context, fallback Fallback) (Result, error) {
	strategy := strategyFor(ir.Complexity)
	switch strategy {
	case StrategyStatic:
		return evalStatic(ir, ctx), nil
	case StrategyHybrid:
		return evalHybrid(ir, ctx, fallback)
	default:
		return evalFallback(ir, ctx, fallback)
	}
}

// evalStatic evaluates by pattern match only. Variable reads return ctx's
// actual value; no symbolic placeholder is produced, and no separate
// dependency set is returned. Because this IR's op set is
// small, static evaluation is implemented as hybrid evaluation restricted
// to ops that score ≤3 (literal, write, read-without-expand); any op
// above that threshold cannot appear in an IR whose total score is ≤3, so
// in practice evalStatic and evalHybrid agree on low-complexity IRs — the
// invariant spec.md §8 requires.
func evalStatic(ir *IR, ctx Context) Result {
	res, err := evalHybrid(ir, ctx, nil)
	if err != nil {
		return Result{Strategy: StrategyStatic, Unevaluated: true}
	}
	res.Strategy = StrategyStatic
	return res
}

func evalHybrid(ir *IR, ctx Context, fallback Fallback) (Result, error) {
	values := make(map[ValueHandle]string, len(ir.Ops))
	var mutations []Mutation

	for _, op := range ir.Ops {
		switch op.Kind {
		case OpLiteral:
			values[op.Result] = op.Text

		case OpReadVariable:
			name := op.Args[0]
			v, _ := ctx.GetVar(name)
			values[op.Result] = v

		case OpWriteVariable:
			mutations = append(mutations, Mutation{VarName: op.Text, Kind: OpWriteVariable, Value: op.Args[0]})
			values[op.Result] = op.Args[0]

		case OpAppendVariable:
			mutations = append(mutations, Mutation{VarName: op.Text, Kind: OpAppendVariable, Value: op.Args[0]})

		case OpPrependVariable:
			mutations = append(mutations, Mutation{VarName: op.Text, Kind: OpPrependVariable, Value: op.Args[0]})

		case OpDeleteVariable:
			mutations = append(mutations, Mutation{VarName: op.Text, Kind: OpDeleteVariable})

		case OpConcatenate:
			var s string
			for _, in := range op.Inputs {
				s += values[in]
			}
			values[op.Result] = s

		case OpContainsCapability:
			values[op.Result] = evalContainsCapability(op, ctx)

		case OpStringMethod:
			if len(op.Inputs) > 0 {
				values[op.Result] = applyStringMethod(values[op.Inputs[0]], op.Text, op.Args)
			} else {
				values[op.Result] = evalStringMethod(op, ctx)
			}

		case OpCompare:
			if len(op.Inputs) == 2 {
				values[op.Result] = compareValues(values[op.Inputs[0]], values[op.Inputs[1]], op.Text)
			} else {
				values[op.Result] = evalCompare(op)
			}

		case OpLogical:
			values[op.Result] = evalLogical(op, values)

		case OpConditional:
			if len(op.Inputs) == 3 {
				if isTruthy(values[op.Inputs[0]]) {
					values[op.Result] = values[op.Inputs[1]]
				} else {
					values[op.Result] = values[op.Inputs[2]]
				}
			} else {
				values[op.Result] = Conditional(ctx, op.Text, op.Args[0], op.Args[1], op.Args[2])
			}

		case OpListLiteral:
			items := make([]string, len(op.Inputs))
			for i, in := range op.Inputs {
				items[i] = values[in]
			}
			values[op.Result] = strings.Join(items, " ")

		case OpOpaqueFallback:
			return evalFallback(ir, ctx, fallback)

		default:
			return Result{}, fmt.Errorf("expr: unsupported op kind %v in hybrid evaluator", op.Kind)
		}
	}

	return Result{Value: values[ir.Result], Mutations: mutations, Strategy: StrategyHybrid}, nil
}

func evalContainsCapability(op Op, ctx Context) string {
	if op.Text == "DISTRO_FEATURES" && len(op.Args) > 0 && (op.Args[0] == "any" || op.Args[0] == "all") {
		features := op.Args[1:]
		if op.Args[0] == "any" {
			return boolStr(AnyDistroFeatures(ctx, features))
		}
		return boolStr(AllDistroFeatures(ctx, features))
	}
	if len(op.Args) < 3 {
		return ""
	}
	items := op.Args[:len(op.Args)-2]
	t, f := op.Args[len(op.Args)-2], op.Args[len(op.Args)-1]
	if len(items) == 1 {
		return Contains(ctx, op.Text, items[0], t, f)
	}
	return ContainsAny(ctx, op.Text, items, t, f)
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return ""
}

func evalStringMethod(op Op, ctx Context) string {
	switch op.Text {
	case "filter":
		if len(op.Args) < 1 {
			return ""
		}
		return Filter(ctx, op.Args[0], op.Args[1:])
	case "to_boolean":
		if len(op.Args) < 1 {
			return ""
		}
		return boolStr(ToBoolean(op.Args[0]))
	case "which":
		if len(op.Args) < 2 {
			return ""
		}
		return Which(ctx, op.Args[0], op.Args[1])
	}
	return ""
}

// isTruthy mirrors common scripting-language truthiness for a Logical or
// Conditional operand's already-evaluated string value: empty and the
// literal "0" are false, everything else is true (so to_boolean's "1" is
// true and its "" is false).
func isTruthy(s string) bool {
	return s != "" && s != "0"
}

func evalLogical(op Op, values map[ValueHandle]string) string {
	switch op.Text {
	case "not":
		if len(op.Inputs) < 1 {
			return ""
		}
		return boolStr(!isTruthy(values[op.Inputs[0]]))
	case "and":
		if len(op.Inputs) < 2 {
			return ""
		}
		return boolStr(isTruthy(values[op.Inputs[0]]) && isTruthy(values[op.Inputs[1]]))
	case "or":
		if len(op.Inputs) < 2 {
			return ""
		}
		return boolStr(isTruthy(values[op.Inputs[0]]) || isTruthy(values[op.Inputs[1]]))
	}
	return ""
}

// compareValues implements the general Compare(a, b, op) spec.md §4.3
// describes, as distinct from the vercmp builtin's own dedicated handling
// in evalCompare. "contains" is true when b equals one of a's
// whitespace-split tokens or, failing that, occurs in a as a substring;
// lt/le/gt/ge
// compare numerically when both sides parse as numbers, else lexically.
func compareValues(a, b, op string) string {
	switch op {
	case "eq":
		return boolStr(a == b)
	case "ne":
		return boolStr(a != b)
	case "contains":
		for _, tok := range strings.Fields(a) {
			if tok == b {
				return boolStr(true)
			}
		}
		return boolStr(strings.Contains(a, b))
	case "lt":
		return boolStr(compareOrdered(a, b) < 0)
	case "le":
		return boolStr(compareOrdered(a, b) <= 0)
	case "gt":
		return boolStr(compareOrdered(a, b) > 0)
	case "ge":
		return boolStr(compareOrdered(a, b) >= 0)
	}
	return ""
}

func compareOrdered(a, b string) int {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func evalCompare(op Op) string {
	if op.Text == "vercmp" && len(op.Args) == 2 {
		switch Vercmp(op.Args[0], op.Args[1]) {
		case -1:
			return "-1"
		case 1:
			return "1"
		default:
			return "0"
		}
	}
	return ""
}

func evalFallback(ir *IR, ctx Context, fallback Fallback) (Result, error) {
	if fallback == nil {
		return Result{Strategy: StrategyFallback, Unevaluated: true}, nil
	}
	value, mutations, err := fallback.Execute(ir.Source, ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value, Mutations: mutations, Strategy: StrategyFallback}, nil
}
