package metadata

import "fmt"

// ParseError is one recoverable parse failure: a message and the byte
// span of the token where it was detected.
type ParseError struct {
	Message string
	Start   int
	End     int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s at [%d,%d)", e.Message, e.Start, e.End)
}

// ParseResult is the result of parsing one metadata file: its root CST node
// (always produced, even on error, per spec.md §4.1's resilience
// requirement) and any recoverable parse errors encountered along the way.
type ParseResult struct {
	Root   *Node
	Errors []ParseError
}

// builder mirrors a lossless green-tree builder (the Go ecosystem has no
// direct analog of rust-analyzer's `rowan`): a stack of in-progress
// composite nodes that tokens and finished sub-nodes are appended to.
type builder struct {
	stack []*Node
}

func (b *builder) startNode(kind NodeKind) {
	b.stack = append(b.stack, &Node{Kind: kind})
}

func (b *builder) finishNode() {
	n := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.append(n)
}

func (b *builder) append(n *Node) {
	if len(b.stack) == 0 {
		return
	}
	top := b.stack[len(b.stack)-1]
	top.Children = append(top.Children, n)
}

func (b *builder) token(t Token) {
	b.append(leaf(t))
}

// Parser drives token-at-a-time construction of the CST, with
// error-recovery matching spec.md §4.1: on an unexpected token at
// statement level, wrap the skipped span in an ERROR node and resume at
// the next newline or known statement-start keyword.
type Parser struct {
	tokens []Token
	pos    int
	b      builder
	errors []ParseError
}

// Parse tokenizes and parses input in one call.
func Parse(input string) *ParseResult {
	tokens := Lex(input)
	p := &Parser{tokens: tokens}
	p.parseRoot()
	root := p.b.stack[0]
	return &ParseResult{Root: root, Errors: p.errors}
}

func (p *Parser) parseRoot() {
	p.b.startNode(NodeRoot)

	for !p.atEOF() {
		p.skipTrivia()
		if p.atEOF() {
			break
		}
		if !p.statement() {
			p.errorAt(fmt.Sprintf("unexpected token: %v", p.current().Text))
			p.advanceWithError()
		}
	}

	// The root node stays on the builder's stack; Parse takes it from there.
}

func (p *Parser) statement() bool {
	switch p.currentKind() {
	case TokKwInherit:
		return p.inheritStmt()
	case TokKwInclude:
		return p.includeStmt()
	case TokKwRequire:
		return p.requireStmt()
	case TokKwExport:
		return p.exportStmt()
	case TokKwPython, TokKwDef:
		return p.functionDef()
	case TokIdent:
		if p.isAssignmentAhead() {
			return p.assignment()
		}
		i := p.pos + 1
		for i < len(p.tokens) && p.tokens[i].Kind == TokWhitespace {
			i++
		}
		if i < len(p.tokens) && p.tokens[i].Kind == TokLParen {
			return p.functionDef()
		}
		return false
	case TokComment, TokNewline:
		p.bump()
		return true
	default:
		return false
	}
}

func (p *Parser) assignment() bool {
	p.b.startNode(NodeVariableAssignment)
	p.b.startNode(NodeVariableName)

	if !p.at(TokIdent) {
		p.errorAt("expected identifier")
		p.b.finishNode()
		p.b.finishNode()
		return false
	}
	p.bump()

	for p.at(TokColon) || p.at(TokColonAppend) || p.at(TokColonPrepend) || p.at(TokColonRemove) {
		p.bump()
		if p.at(TokIdent) {
			p.bump()
		}
	}

	if p.at(TokLBracket) {
		p.bump()
		if p.at(TokIdent) || p.at(TokString) {
			p.bump()
		}
		p.expect(TokRBracket)
	}

	p.b.finishNode() // VariableName

	p.skipWhitespaceInline()

	if !p.currentKind().IsAssignmentOp() {
		p.errorAt(fmt.Sprintf("expected assignment operator, found %v", p.currentKind()))
		p.b.finishNode()
		return false
	}
	p.bump()
	p.skipWhitespaceInline()

	p.b.startNode(NodeVariableValue)
	p.value()
	p.b.finishNode()

	p.b.finishNode() // VariableAssignment
	return true
}

func (p *Parser) value() {
	for {
		switch p.currentKind() {
		case TokString, TokVarExpansion, TokIdent, TokWhitespace:
			p.bump()
		case TokBackslashNewline:
			p.bump()
			if p.at(TokNewline) {
				p.bump()
			}
			continue
		case TokNewline, TokEOF:
			return
		default:
			p.bump()
		}
		if p.at(TokNewline) {
			return
		}
	}
}

func (p *Parser) inheritStmt() bool {
	p.b.startNode(NodeInheritStmt)
	p.bump() // inherit
	p.skipWhitespaceInline()
	for p.at(TokIdent) {
		p.bump()
		p.skipWhitespaceInline()
	}
	p.b.finishNode()
	return true
}

func (p *Parser) includeStmt() bool {
	p.b.startNode(NodeIncludeStmt)
	p.bump() // include
	p.skipWhitespaceInline()
	if p.at(TokString) || p.at(TokIdent) || p.at(TokVarExpansion) {
		p.bump()
	}
	p.b.finishNode()
	return true
}

func (p *Parser) requireStmt() bool {
	p.b.startNode(NodeRequireStmt)
	p.bump() // require
	p.skipWhitespaceInline()
	if p.at(TokString) || p.at(TokIdent) || p.at(TokVarExpansion) {
		p.bump()
	}
	p.b.finishNode()
	return true
}

func (p *Parser) exportStmt() bool {
	p.b.startNode(NodeExportStmt)
	p.bump() // export
	p.skipWhitespaceInline()
	if p.at(TokIdent) {
		p.bump()
	}
	p.b.finishNode()
	return true
}

// functionDef stores shell functions, Python functions (`python NAME()
// {...}`), and inline-def functions (`def NAME(args): ...`) uniformly as
// brace-delimited ShellFunction nodes, matching spec.md §4.1's "treated
// as shell-style brace-delimited for storage" instruction for embedded
// functions.
func (p *Parser) functionDef() bool {
	p.b.startNode(NodeShellFunction)

	if p.at(TokKwPython) || p.at(TokKwDef) {
		p.bump()
	}
	p.skipWhitespaceInline()

	if p.at(TokIdent) {
		p.bump()
	}
	p.skipWhitespaceInline()

	if p.at(TokLParen) {
		p.bump()
		for !p.at(TokRParen) && !p.atEOF() {
			p.bump()
		}
		if p.at(TokRParen) {
			p.bump()
		}
	}
	p.skipWhitespaceInline()

	if p.at(TokLBrace) {
		p.bump()
		depth := 1
		for depth > 0 && !p.atEOF() {
			switch p.currentKind() {
			case TokLBrace:
				depth++
			case TokRBrace:
				depth--
			}
			p.bump()
		}
	}

	p.b.finishNode()
	return true
}

// === Helper methods, ported from parser.rs ===

func (p *Parser) current() Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return Token{Kind: TokEOF}
}

func (p *Parser) currentKind() TokenKind { return p.current().Kind }

func (p *Parser) at(k TokenKind) bool { return p.currentKind() == k }

func (p *Parser) atEOF() bool { return p.pos >= len(p.tokens) || p.at(TokEOF) }

func (p *Parser) bump() {
	if p.pos < len(p.tokens) {
		p.b.token(p.tokens[p.pos])
		p.pos++
	}
}

func (p *Parser) expect(k TokenKind) bool {
	if p.at(k) {
		p.bump()
		return true
	}
	p.errorAt(fmt.Sprintf("expected %v, found %v", k, p.currentKind()))
	return false
}

func (p *Parser) errorAt(message string) {
	t := p.current()
	p.errors = append(p.errors, ParseError{Message: message, Start: t.Start, End: t.End})
}

func (p *Parser) skipTrivia() {
	for p.currentKind().IsTrivia() {
		p.bump()
	}
}

func (p *Parser) skipWhitespaceInline() {
	for p.at(TokWhitespace) {
		p.bump()
	}
}

// isAssignmentAhead looks ahead from an identifier to decide whether it
// begins an assignment (as opposed to a shell function definition, or an
// unrecognized bareword statement, which parseRoot records as a parse
// error and wraps in an ERROR node).
func (p *Parser) isAssignmentAhead() bool {
	i := p.pos + 1
	for i < len(p.tokens) {
		switch p.tokens[i].Kind {
		case TokWhitespace, TokColon, TokColonAppend, TokColonPrepend, TokColonRemove, TokIdent:
			i++
		case TokLBracket:
			i++
			for i < len(p.tokens) && p.tokens[i].Kind != TokRBracket {
				i++
			}
			if i < len(p.tokens) {
				i++
			}
		default:
			if p.tokens[i].Kind.IsAssignmentOp() {
				return true
			}
			return false
		}
	}
	return false
}

func (p *Parser) advanceWithError() {
	p.b.startNode(NodeError)
	for !p.atEOF() {
		if p.at(TokNewline) {
			p.bump()
			break
		}
		switch p.currentKind() {
		case TokKwInherit, TokKwInclude, TokKwRequire, TokKwExport:
			p.b.finishNode()
			return
		}
		p.bump()
	}
	p.b.finishNode()
}
