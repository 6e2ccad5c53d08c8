package expr

// Context resolves variable reads during expression evaluation. The
// pipeline typically backs this with a resolver.Ledger resolved under the
// recipe's active overrides; tests back it with a plain map.
type Context interface {
	GetVar(name string) (string, bool)
}

// MapContext is a Context backed by a plain map, used by tests and by
// callers that have already materialized a recipe's resolved variables.
type MapContext map[string]string

func (m MapContext) GetVar(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Mutation is a variable write/append/prepend/delete produced by
// evaluating a block-form embedded expression.
type Mutation struct {
	VarName string
	Kind    OpKind // OpWriteVariable, OpAppendVariable, OpPrependVariable, OpDeleteVariable
	Value   string
}
