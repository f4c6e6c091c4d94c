// Package parser reads the S-expression notation of a SysY AST into ast.Node
// trees. It never sees SysY source text.
package parser

import (
	"strconv"
	"unicode"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
}

// bailout carries the first syntax error up to Parse.
type bailout struct{ err error }

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token) *Parser {
	p := &Parser{tokens: tokens, pos: 0}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	} else {
		p.current = token.Token{Type: token.EOF, FileIndex: -1}
	}
	return p
}

// Parse reads one (unit ...) form followed by EOF.
func (p *Parser) Parse() (root *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			root, err = nil, b.err
		}
	}()
	root = p.parseUnit()
	if !p.check(token.EOF) {
		p.errorf(p.current, "Unexpected '%s' after the compilation unit.", p.describe(p.current))
	}
	return root, nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.current
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	p.errorf(p.current, "%s", message)
	return token.Token{}
}

func (p *Parser) errorf(tok token.Token, format string, args ...interface{}) {
	panic(bailout{util.Errorf(tok, format, args...)})
}

func (p *Parser) describe(tok token.Token) string {
	if tok.Value != "" {
		return tok.Value
	}
	return tok.Type.String()
}

// isForm reports whether the current token opens a form headed by head.
func (p *Parser) isForm(head token.Type) bool {
	return p.check(token.LParen) && p.peek().Type == head
}

// openForm consumes '(' and the head keyword and returns the head token.
func (p *Parser) openForm(head token.Type) token.Token {
	p.expect(token.LParen, "Expected '('.")
	return p.expect(head, "Expected '"+head.String()+"'.")
}

func (p *Parser) closeForm(head token.Token) {
	if !p.match(token.RParen) {
		p.errorf(p.current, "Expected ')' to close '%s' opened at line %d, got '%s'.", head.Value, head.Line, p.describe(p.current))
	}
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return s != ""
}

// name accepts any identifier-shaped atom, including ones that spell a form
// head: `list` or `index` are valid SysY identifiers.
func (p *Parser) name(what string) token.Token {
	tok := p.current
	if tok.Type == token.LParen || tok.Type == token.RParen || tok.Type == token.EOF || !isIdentifier(tok.Value) {
		p.errorf(tok, "Expected %s name, got '%s'.", what, p.describe(tok))
	}
	p.advance()
	return tok
}

func parseInt32(text string) (int32, bool) {
	v, err := strconv.ParseInt(text, 0, 64)
	if err != nil || v < -(1<<31) || v > (1<<32)-1 {
		return 0, false
	}
	return int32(v), true
}

// Declarations

func (p *Parser) parseUnit() *ast.Node {
	head := p.openForm(token.Unit)
	var items []*ast.Node
	for !p.check(token.RParen) && !p.check(token.EOF) {
		switch {
		case p.isForm(token.Const), p.isForm(token.Var):
			items = append(items, p.parseDecl())
		case p.isForm(token.Func):
			items = append(items, p.parseFunc())
		default:
			p.errorf(p.current, "Expected a 'const', 'var' or 'func' form at the top level.")
		}
	}
	p.closeForm(head)
	return ast.NewCompUnit(head, items)
}

func (p *Parser) parseDims() []*ast.Node {
	head := p.openForm(token.Dims)
	var dims []*ast.Node
	for !p.check(token.RParen) {
		dims = append(dims, p.parseExpr())
	}
	if len(dims) == 0 {
		p.errorf(head, "A 'dims' form needs at least one dimension.")
	}
	p.closeForm(head)
	return dims
}

func (p *Parser) parseDecl() *ast.Node {
	p.expect(token.LParen, "Expected '('.")
	head := p.current
	isConst := p.match(token.Const)
	if !isConst {
		p.expect(token.Var, "Expected 'const' or 'var'.")
	}
	nameTok := p.name("variable")

	var dims []*ast.Node
	if p.isForm(token.Dims) {
		dims = p.parseDims()
	}

	var init *ast.Node
	if !p.check(token.RParen) {
		init = p.parseInit()
	} else if isConst {
		p.errorf(nameTok, "Constant '%s' needs an initializer.", nameTok.Value)
	}
	p.closeForm(head)
	return ast.NewVarDecl(nameTok, nameTok.Value, isConst, dims, init)
}

func (p *Parser) parseInit() *ast.Node {
	if !p.isForm(token.List) {
		return p.parseExpr()
	}
	head := p.openForm(token.List)
	var items []*ast.Node
	for !p.check(token.RParen) {
		items = append(items, p.parseInit())
	}
	p.closeForm(head)
	return ast.NewInitList(head, items)
}

func (p *Parser) parseFunc() *ast.Node {
	head := p.openForm(token.Func)
	isVoid := p.match(token.Void)
	if !isVoid {
		p.expect(token.Int, "Expected return type 'int' or 'void'.")
	}
	nameTok := p.name("function")

	var params []ast.ParamNode
	for p.isForm(token.Param) {
		params = append(params, p.parseParam())
	}
	if !p.isForm(token.Block) {
		p.errorf(p.current, "Expected the body of '%s' as a 'block' form.", nameTok.Value)
	}
	body := p.parseBlock()
	p.closeForm(head)
	return ast.NewFuncDecl(nameTok, nameTok.Value, params, body, isVoid)
}

func (p *Parser) parseParam() ast.ParamNode {
	head := p.openForm(token.Param)
	nameTok := p.name("parameter")
	param := ast.ParamNode{Name: nameTok.Value, Tok: nameTok}
	if p.isForm(token.Ptr) {
		ptr := p.openForm(token.Ptr)
		param.IsArray = true
		for !p.check(token.RParen) {
			param.Dims = append(param.Dims, p.parseExpr())
		}
		p.closeForm(ptr)
	}
	p.closeForm(head)
	return param
}

// Statements

func (p *Parser) parseBlock() *ast.Node {
	head := p.openForm(token.Block)
	var stmts []*ast.Node
	for !p.check(token.RParen) && !p.check(token.EOF) {
		stmts = append(stmts, p.parseStmt())
	}
	p.closeForm(head)
	return ast.NewBlock(head, stmts)
}

func (p *Parser) parseStmt() *ast.Node {
	if !p.check(token.LParen) {
		p.errorf(p.current, "Expected a statement form, got '%s'.", p.describe(p.current))
	}
	switch p.peek().Type {
	case token.Const, token.Var:
		return p.parseDecl()
	case token.Block:
		return p.parseBlock()
	}

	p.advance()
	head := p.current
	p.advance()

	var stmt *ast.Node
	switch head.Type {
	case token.Eq:
		lhs := p.parseLValue()
		stmt = ast.NewAssign(head, lhs, p.parseExpr())
	case token.ExprStmt:
		var expr *ast.Node
		if !p.check(token.RParen) {
			expr = p.parseExpr()
		}
		stmt = ast.NewExprStmt(head, expr)
	case token.If:
		cond := p.parseExpr()
		thenBody := p.parseStmt()
		var elseBody *ast.Node
		if !p.check(token.RParen) {
			elseBody = p.parseStmt()
		}
		stmt = ast.NewIf(head, cond, thenBody, elseBody)
	case token.While:
		cond := p.parseExpr()
		stmt = ast.NewWhile(head, cond, p.parseStmt())
	case token.Break:
		stmt = ast.NewBreak(head)
	case token.Continue:
		stmt = ast.NewContinue(head)
	case token.Return:
		var expr *ast.Node
		if !p.check(token.RParen) {
			expr = p.parseExpr()
		}
		stmt = ast.NewReturn(head, expr)
	default:
		p.errorf(head, "Unknown statement form '%s'.", p.describe(head))
	}
	p.closeForm(head)
	return stmt
}

func (p *Parser) parseLValue() *ast.Node {
	if p.check(token.LParen) && p.peek().Type != token.Index {
		p.errorf(p.peek(), "The left side of '=' must be a name or an 'index' form.")
	}
	return p.parseExpr()
}

// Expressions

func (p *Parser) parseExpr() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Number:
		p.advance()
		v, ok := parseInt32(tok.Value)
		if !ok {
			p.errorf(tok, "Integer literal '%s' is out of range.", tok.Value)
		}
		return ast.NewNumber(tok, v)
	case token.LParen:
		return p.parseExprForm()
	case token.RParen, token.EOF:
		p.errorf(tok, "Expected an expression, got '%s'.", p.describe(tok))
	}
	nameTok := p.name("variable")
	return ast.NewIdent(nameTok, nameTok.Value)
}

func (p *Parser) parseExprForm() *ast.Node {
	p.advance()
	head := p.current
	p.advance()

	if head.Type == token.RParen || head.Type == token.EOF {
		p.errorf(head, "Expected an expression form, got '()'.")
	}

	var args []*ast.Node
	var name token.Token
	switch head.Type {
	case token.Index:
		name = p.name("array")
	case token.Call:
		name = p.name("function")
	}
	for !p.check(token.RParen) && !p.check(token.EOF) {
		args = append(args, p.parseExpr())
	}
	p.closeForm(head)

	switch head.Type {
	case token.Index:
		if len(args) == 0 {
			p.errorf(head, "An 'index' form needs at least one subscript.")
		}
		return ast.NewIndex(name, name.Value, args)
	case token.Call:
		return ast.NewFuncCall(name, name.Value, args)
	case token.Plus, token.Minus:
		if len(args) == 1 {
			return ast.NewUnaryOp(head, head.Type, args[0])
		}
		fallthrough
	case token.Star, token.Slash, token.Rem, token.Lt, token.Gt, token.Lte, token.Gte,
		token.EqEq, token.Neq, token.AndAnd, token.OrOr:
		if len(args) != 2 {
			p.errorf(head, "Operator '%s' takes two operands, got %d.", head.Value, len(args))
		}
		return ast.NewBinaryOp(head, head.Type, args[0], args[1])
	case token.Not:
		if len(args) != 1 {
			p.errorf(head, "Operator '!' takes one operand, got %d.", len(args))
		}
		return ast.NewUnaryOp(head, head.Type, args[0])
	}
	p.errorf(head, "Unknown expression form '%s'.", p.describe(head))
	return nil
}

// Parse reads a unit from an already tokenized stream.
func Parse(tokens []token.Token) (*ast.Node, error) {
	return NewParser(tokens).Parse()
}
