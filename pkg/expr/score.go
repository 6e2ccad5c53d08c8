package expr

// Strategy is the execution strategy selected from an IR's complexity
// score, per spec.md §4.3.
type Strategy int

const (
	StrategyStatic Strategy = iota
	StrategyHybrid
	StrategyFallback
)

func (s Strategy) String() string {
	switch s {
	case StrategyStatic:
		return "static"
	case StrategyHybrid:
		return "hybrid"
	case StrategyFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// opScore gives the fixed complexity contribution of one Op, per the
// scoring table in spec.md §4.3.
func opScore(kind OpKind) int {
	switch kind {
	case OpLiteral:
		return 0
	case OpWriteVariable:
		return 1
	case OpReadVariable:
		// expand-flag distinguishes read-without-expand (1) from
		// read-with-expand (4); callers set Text to "expand" to request
		// expansion, scored separately in scoreOps.
		return 1
	case OpAppendVariable, OpPrependVariable:
		return 2
	case OpConcatenate:
		return 2
	case OpCompare:
		return 3
	case OpStringMethod:
		return 4
	case OpLogical:
		return 4
	case OpContainsCapability:
		return 5
	case OpConditional:
		return 5
	case OpDeleteVariable:
		return 5
	case OpListLiteral:
		return 3
	case OpListComprehension:
		return 8
	case OpForLoop:
		return 10
	case OpIfStatement:
		return 8
	case OpOpaqueFallback:
		return 50
	default:
		return 0
	}
}

// readVariableExpandFlag is the sentinel Op.Text value marking a
// Read-variable op that performs fixpoint expansion (score 4) rather than
// a bare read (score 1).
const readVariableExpandFlag = "expand"

func scoreOps(ops []Op) int {
	total := 0
	for _, op := range ops {
		if op.Kind == OpReadVariable && op.Text == readVariableExpandFlag {
			total += 4
		} else {
			total += opScore(op.Kind)
		}
	}
	if total > 100 {
		total = 100
	}
	return total
}

// strategyFor maps a complexity score to its execution Strategy per the
// thresholds in spec.md §4.3 (static ≤3, hybrid 4-50, fallback >50). See
// DESIGN.md Open Question #3: these thresholds are carried unchanged from
// the source and are not semantically load-bearing beyond static ⊆ hybrid
// ⊆ fallback in expressive power.
func strategyFor(score int) Strategy {
	switch {
	case score <= 3:
		return StrategyStatic
	case score <= 50:
		return StrategyHybrid
	default:
		return StrategyFallback
	}
}
