package metadata

import (
	"strings"

	"github.com/bbforge/bbforge/pkg/resolver"
)

// AssignmentStmt is one assignment statement extracted from a parsed
// tree, ready to feed resolver.Ledger.Add (which itself strips any
// remaining override-qualifier suffix from Name).
type AssignmentStmt struct {
	Name     string // base name plus any ":qualifier" suffix, flag excluded
	Flag     string // non-empty if the assignment targeted NAME[flag]
	Operator resolver.Operator
	Value    string
}

// InheritStmt lists the classes named by one `inherit` statement.
type InheritStmt struct {
	Classes []string
}

// PathStmt is an `include` or `require` statement's target path text
// (possibly itself containing `${VAR}` references to be expanded before
// resolution against the search path).
type PathStmt struct {
	Path string
}

// ShellFunctionStmt is one brace-delimited function body (shell, python,
// or def-style), stored verbatim per spec.md §4.1.
type ShellFunctionStmt struct {
	Name string
	Body string
}

// ExtractAssignments walks root for every VariableAssignment node and
// decomposes it into an AssignmentStmt.
func ExtractAssignments(root *Node) []AssignmentStmt {
	var out []AssignmentStmt
	for _, n := range root.Descendants(NodeVariableAssignment) {
		stmt, ok := extractAssignment(n)
		if ok {
			out = append(out, stmt)
		}
	}
	return out
}

func extractAssignment(n *Node) (AssignmentStmt, bool) {
	var nameNode, valueNode *Node
	var opTok *Token
	for _, c := range n.Children {
		switch {
		case c.Kind == NodeVariableName:
			nameNode = c
		case c.Kind == NodeVariableValue:
			valueNode = c
		case c.Token != nil && c.Token.Kind.IsAssignmentOp():
			t := *c.Token
			opTok = &t
		}
	}
	if nameNode == nil || opTok == nil {
		return AssignmentStmt{}, false
	}

	name, flag := splitNameAndFlag(nameNode)
	if name == "" {
		return AssignmentStmt{}, false
	}

	return AssignmentStmt{
		Name:     name,
		Flag:     flag,
		Operator: operatorFor(opTok.Kind),
		Value:    extractValue(valueNode),
	}, true
}

func splitNameAndFlag(nameNode *Node) (name, flag string) {
	var b strings.Builder
	inBracket := false
	for _, tok := range nameNode.Tokens() {
		switch tok.Kind {
		case TokLBracket:
			inBracket = true
		case TokRBracket:
			inBracket = false
		case TokIdent, TokColon, TokColonAppend, TokColonPrepend, TokColonRemove:
			if inBracket {
				flag += tok.Text
			} else {
				b.WriteString(tok.Text)
			}
		case TokString:
			if inBracket {
				flag += unquote(tok.Text)
			}
		}
	}
	return b.String(), flag
}

func operatorFor(k TokenKind) resolver.Operator {
	switch k {
	case TokOpAppend:
		return resolver.OpAppend
	case TokOpPrepend:
		return resolver.OpPrepend
	case TokOpWeakDefault:
		return resolver.OpWeakDefault
	case TokOpImmediateWeak:
		return resolver.OpImmediateWeakDefault
	default: // TokOpAssign, TokOpImmediate
		return resolver.OpAssign
	}
}

func extractValue(valueNode *Node) string {
	if valueNode == nil {
		return ""
	}
	var b strings.Builder
	for _, tok := range valueNode.Tokens() {
		switch tok.Kind {
		case TokString:
			b.WriteString(unquote(tok.Text))
		case TokIdent, TokVarExpansion:
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

func unquote(s string) string {
	if len(s) >= 2 {
		q := s[0]
		if (q == '"' || q == '\'') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ExtractInherits returns every class name named across all `inherit`
// statements in root, in document order (duplicates preserved; callers
// dedupe if needed).
func ExtractInherits(root *Node) []string {
	var out []string
	for _, n := range root.Descendants(NodeInheritStmt) {
		for _, tok := range n.Tokens() {
			if tok.Kind == TokIdent {
				out = append(out, tok.Text)
			}
		}
	}
	return out
}

// ExtractIncludes returns the target path text of every `include` statement.
func ExtractIncludes(root *Node) []string {
	return extractPaths(root, NodeIncludeStmt)
}

// ExtractRequires returns the target path text of every `require` statement.
func ExtractRequires(root *Node) []string {
	return extractPaths(root, NodeRequireStmt)
}

func extractPaths(root *Node, kind NodeKind) []string {
	var out []string
	for _, n := range root.Descendants(kind) {
		for _, tok := range n.Tokens() {
			switch tok.Kind {
			case TokString:
				out = append(out, unquote(tok.Text))
			case TokIdent, TokVarExpansion:
				out = append(out, tok.Text)
			}
		}
	}
	return out
}

// ExtractShellFunctions returns every brace-delimited function body in
// root, keyed by the function name token that preceded its parameter list.
func ExtractShellFunctions(root *Node) []ShellFunctionStmt {
	var out []ShellFunctionStmt
	for _, n := range root.Descendants(NodeShellFunction) {
		var name string
		var body strings.Builder
		inBody := false
		depth := 0
		sawName := false
		for _, tok := range n.Tokens() {
			switch tok.Kind {
			case TokKwPython, TokKwDef:
				// skip
			case TokLBrace:
				depth++
				inBody = true
				if depth == 1 {
					continue
				}
				body.WriteString(tok.Text)
			case TokRBrace:
				depth--
				if depth == 0 {
					inBody = false
					continue
				}
				body.WriteString(tok.Text)
			case TokIdent:
				if !inBody && !sawName {
					name = tok.Text
					sawName = true
				} else if inBody {
					body.WriteString(tok.Text)
				}
			default:
				if inBody {
					body.WriteString(tok.Text)
				}
			}
		}
		out = append(out, ShellFunctionStmt{Name: name, Body: body.String()})
	}
	return out
}
