package typeChecker

import (
	"strings"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/util"
)

type symKind int

const (
	symVar symKind = iota
	symConst
	symArray
	symFunc
)

// Symbol is one entry of a scope's singly linked symbol list.
type Symbol struct {
	Name string
	kind symKind
	// dims counts the array dimensions, the elided one of a pointer included
	dims    int
	isConst bool
	isVoid  bool
	params  []int // dims per parameter, 0 for scalars
	Node    *ast.Node
	Next    *Symbol
}

type Scope struct {
	Symbols *Symbol
	Parent  *Scope
}

// Info is what the emitter needs from the check.
type Info struct {
	// Reassigned holds the global scalar declarations that are assigned
	// after their declaration.
	Reassigned map[*ast.Node]bool
}

type TypeChecker struct {
	currentScope *Scope
	globalScope  *Scope
	currentFunc  *ast.FuncDeclNode
	loopDepth    int
	cfg          *config.Config
	info         *Info
}

func NewTypeChecker(cfg *config.Config) *TypeChecker {
	globalScope := newScope(nil)
	tc := &TypeChecker{
		currentScope: globalScope,
		globalScope:  globalScope,
		cfg:          cfg,
		info:         &Info{Reassigned: make(map[*ast.Node]bool)},
	}
	for _, lf := range ir.Library {
		sym := &Symbol{Name: lf.Name, kind: symFunc, isVoid: lf.Ret.IsUnit()}
		for _, p := range lf.Params {
			if p.IsPointer() {
				sym.params = append(sym.params, 1)
			} else {
				sym.params = append(sym.params, 0)
			}
		}
		tc.addSymbol(sym)
	}
	return tc
}

func newScope(parent *Scope) *Scope { return &Scope{Parent: parent} }
func (tc *TypeChecker) enterScope() { tc.currentScope = newScope(tc.currentScope) }
func (tc *TypeChecker) exitScope() {
	if tc.currentScope.Parent != nil {
		tc.currentScope = tc.currentScope.Parent
	}
}

func (tc *TypeChecker) addSymbol(sym *Symbol) {
	sym.Next = tc.currentScope.Symbols
	tc.currentScope.Symbols = sym
}

func (tc *TypeChecker) findSymbol(name string) *Symbol {
	for s := tc.currentScope; s != nil; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if sym.Name == name {
				return sym
			}
		}
	}
	return nil
}

func (tc *TypeChecker) findSymbolInCurrentScope(name string) *Symbol {
	for sym := tc.currentScope.Symbols; sym != nil; sym = sym.Next {
		if sym.Name == name {
			return sym
		}
	}
	return nil
}

func (tc *TypeChecker) isGlobalSymbol(target *Symbol) bool {
	for sym := tc.globalScope.Symbols; sym != nil; sym = sym.Next {
		if sym == target {
			return true
		}
	}
	return false
}

// Check validates root and collects the facts the emitter relies on.
func (tc *TypeChecker) Check(root *ast.Node) (*Info, error) {
	if root == nil || root.Type != ast.CompUnit {
		return nil, util.Errorf(token.Token{FileIndex: -1}, "expected a compilation unit")
	}
	for _, item := range root.Data.(ast.CompUnitNode).Items {
		var err error
		switch item.Type {
		case ast.VarDecl:
			err = tc.checkVarDecl(item)
		case ast.FuncDecl:
			err = tc.checkFuncDecl(item)
		}
		if err != nil {
			return nil, err
		}
	}
	return tc.info, nil
}

func (tc *TypeChecker) declare(node *ast.Node, sym *Symbol) error {
	if existing := tc.findSymbolInCurrentScope(sym.Name); existing != nil {
		if existing.kind == symFunc && existing.Node == nil {
			return util.Errorf(node.Tok, "'%s' redefines a runtime library function", sym.Name)
		}
		if existing.kind == symFunc && sym.kind == symFunc {
			return util.Errorf(node.Tok, "Redefinition of function '%s'", sym.Name)
		}
		if tc.cfg.IsFeatureEnabled(config.FeatStrictRedecl) {
			return util.Errorf(node.Tok, "Redefinition of '%s'", sym.Name)
		}
	} else if tc.currentScope != tc.globalScope {
		if outer := tc.findSymbol(sym.Name); outer != nil && !tc.isGlobalSymbol(outer) {
			util.Warn(tc.cfg, config.WarnShadow, node.Tok, "Declaration of '%s' shadows an outer declaration", sym.Name)
		}
	}
	sym.Node = node
	tc.addSymbol(sym)
	return nil
}

func (tc *TypeChecker) checkVarDecl(node *ast.Node) error {
	d := node.Data.(ast.VarDeclNode)
	for _, dim := range d.Dims {
		if err := tc.checkScalar(dim); err != nil {
			return err
		}
	}
	if d.Init != nil {
		if err := tc.checkInit(d.Init, len(d.Dims)); err != nil {
			return err
		}
	}
	sym := &Symbol{Name: d.Name, kind: symVar, isConst: d.IsConst}
	switch {
	case len(d.Dims) > 0:
		sym.kind, sym.dims = symArray, len(d.Dims)
	case d.IsConst:
		sym.kind = symConst
	}
	return tc.declare(node, sym)
}

func (tc *TypeChecker) checkInit(init *ast.Node, dims int) error {
	if init.Type != ast.InitList {
		if dims > 0 && init.Parent != nil && init.Parent.Type == ast.VarDecl {
			return util.Errorf(init.Tok, "An array must be initialized with a 'list' form")
		}
		return tc.checkScalar(init)
	}
	if dims == 0 {
		return util.Errorf(init.Tok, "A scalar cannot be initialized with a 'list' form")
	}
	for _, item := range init.Data.(ast.InitListNode).Items {
		if err := tc.checkInit(item, dims-1); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TypeChecker) checkFuncDecl(node *ast.Node) error {
	d := node.Data.(ast.FuncDeclNode)
	sym := &Symbol{Name: d.Name, kind: symFunc, isVoid: d.IsVoid}
	for _, p := range d.Params {
		if p.IsArray {
			sym.params = append(sym.params, 1+len(p.Dims))
		} else {
			sym.params = append(sym.params, 0)
		}
	}
	if err := tc.declare(node, sym); err != nil {
		return err
	}

	prevFunc := tc.currentFunc
	tc.currentFunc = &d
	defer func() { tc.currentFunc = prevFunc }()

	tc.enterScope()
	defer tc.exitScope()
	for _, p := range d.Params {
		for _, dim := range p.Dims {
			if err := tc.checkScalar(dim); err != nil {
				return err
			}
		}
		psym := &Symbol{Name: p.Name, kind: symVar}
		if p.IsArray {
			psym.kind, psym.dims = symArray, 1+len(p.Dims)
		}
		pnode := ast.NewIdent(p.Tok, p.Name)
		if err := tc.declare(pnode, psym); err != nil {
			return err
		}
	}
	// The body shares the parameters' scope.
	for _, stmt := range d.Body.Data.(ast.BlockNode).Stmts {
		if err := tc.checkStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TypeChecker) checkStmt(node *ast.Node) error {
	if node == nil {
		return nil
	}
	switch node.Type {
	case ast.VarDecl:
		return tc.checkVarDecl(node)
	case ast.Block:
		tc.enterScope()
		defer tc.exitScope()
		for _, stmt := range node.Data.(ast.BlockNode).Stmts {
			if err := tc.checkStmt(stmt); err != nil {
				return err
			}
		}
	case ast.Assign:
		return tc.checkAssign(node)
	case ast.ExprStmt:
		d := node.Data.(ast.ExprStmtNode)
		if d.Expr == nil {
			return nil
		}
		if d.Expr.Type != ast.FuncCall {
			util.Warn(tc.cfg, config.WarnUnusedResult, node.Tok, "Expression result unused")
		}
		_, _, err := tc.checkExpr(d.Expr)
		return err
	case ast.If:
		d := node.Data.(ast.IfNode)
		if err := tc.checkScalar(d.Cond); err != nil {
			return err
		}
		if err := tc.checkBody(d.ThenBody); err != nil {
			return err
		}
		return tc.checkBody(d.ElseBody)
	case ast.While:
		d := node.Data.(ast.WhileNode)
		if err := tc.checkScalar(d.Cond); err != nil {
			return err
		}
		tc.loopDepth++
		defer func() { tc.loopDepth-- }()
		return tc.checkBody(d.Body)
	case ast.Break, ast.Continue:
		if tc.loopDepth == 0 {
			return util.Errorf(node.Tok, "'%s' statement not in a loop", strings.ToLower(node.Type.String()))
		}
	case ast.Return:
		d := node.Data.(ast.ReturnNode)
		if tc.currentFunc.IsVoid && d.Expr != nil {
			return util.Errorf(node.Tok, "Void function '%s' cannot return a value", tc.currentFunc.Name)
		}
		if !tc.currentFunc.IsVoid && d.Expr == nil {
			return util.Errorf(node.Tok, "Function '%s' must return a value", tc.currentFunc.Name)
		}
		if d.Expr != nil {
			return tc.checkScalar(d.Expr)
		}
	}
	return nil
}

// checkBody checks the branch of an if or the body of a while. A bare
// declaration there gets a scope of its own.
func (tc *TypeChecker) checkBody(node *ast.Node) error {
	if node != nil && node.Type == ast.VarDecl {
		tc.enterScope()
		defer tc.exitScope()
	}
	return tc.checkStmt(node)
}

func (tc *TypeChecker) checkAssign(node *ast.Node) error {
	d := node.Data.(ast.AssignNode)
	var name string
	switch d.Lhs.Type {
	case ast.Ident:
		name = d.Lhs.Data.(ast.IdentNode).Name
	case ast.Index:
		name = d.Lhs.Data.(ast.IndexNode).Name
	}
	sym := tc.findSymbol(name)
	if sym == nil {
		return util.Errorf(d.Lhs.Tok, "Undefined identifier '%s'", name)
	}
	if sym.isConst || sym.kind == symConst {
		return util.Errorf(d.Lhs.Tok, "Cannot assign to constant '%s'", name)
	}
	if sym.kind == symFunc {
		return util.Errorf(d.Lhs.Tok, "Cannot assign to function '%s'", name)
	}
	dims, _, err := tc.checkExpr(d.Lhs)
	if err != nil {
		return err
	}
	if dims != 0 {
		return util.Errorf(d.Lhs.Tok, "Cannot assign to array '%s' as a whole", name)
	}
	if sym.kind == symVar && tc.isGlobalSymbol(sym) {
		tc.info.Reassigned[sym.Node] = true
	}
	return tc.checkScalar(d.Rhs)
}

// checkScalar checks an expression used where an int value is required.
func (tc *TypeChecker) checkScalar(node *ast.Node) error {
	dims, isVoid, err := tc.checkExpr(node)
	if err != nil {
		return err
	}
	if isVoid {
		return util.Errorf(node.Tok, "Void value used in an expression")
	}
	if dims != 0 {
		return util.Errorf(node.Tok, "Array used where an integer is required")
	}
	return nil
}

// checkExpr returns the number of dimensions left on the expression's value
// (0 for an int) and whether it is a void call.
func (tc *TypeChecker) checkExpr(node *ast.Node) (dims int, isVoid bool, err error) {
	switch node.Type {
	case ast.Number:
		return 0, false, nil
	case ast.Ident:
		name := node.Data.(ast.IdentNode).Name
		sym := tc.findSymbol(name)
		if sym == nil {
			return 0, false, util.Errorf(node.Tok, "Undefined identifier '%s'", name)
		}
		if sym.kind == symFunc {
			return 0, false, util.Errorf(node.Tok, "Function '%s' used as a value", name)
		}
		return sym.dims, false, nil
	case ast.Index:
		d := node.Data.(ast.IndexNode)
		sym := tc.findSymbol(d.Name)
		if sym == nil {
			return 0, false, util.Errorf(node.Tok, "Undefined identifier '%s'", d.Name)
		}
		if sym.kind != symArray {
			return 0, false, util.Errorf(node.Tok, "'%s' is not an array", d.Name)
		}
		if len(d.Indices) > sym.dims {
			return 0, false, util.Errorf(node.Tok, "Too many subscripts for '%s' (%d, at most %d)", d.Name, len(d.Indices), sym.dims)
		}
		for _, idx := range d.Indices {
			if err := tc.checkScalar(idx); err != nil {
				return 0, false, err
			}
		}
		return sym.dims - len(d.Indices), false, nil
	case ast.FuncCall:
		return tc.checkCall(node)
	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		if err := tc.checkScalar(d.Left); err != nil {
			return 0, false, err
		}
		return 0, false, tc.checkScalar(d.Right)
	case ast.UnaryOp:
		return 0, false, tc.checkScalar(node.Data.(ast.UnaryOpNode).Expr)
	}
	return 0, false, util.Errorf(node.Tok, "Unexpected %s in an expression", node.Type)
}

func (tc *TypeChecker) checkCall(node *ast.Node) (int, bool, error) {
	d := node.Data.(ast.FuncCallNode)
	sym := tc.findSymbol(d.Name)
	if sym == nil {
		return 0, false, util.Errorf(node.Tok, "Call to undefined function '%s'", d.Name)
	}
	if sym.kind != symFunc {
		return 0, false, util.Errorf(node.Tok, "'%s' is not a function", d.Name)
	}
	if len(d.Args) != len(sym.params) {
		return 0, false, util.Errorf(node.Tok, "Function '%s' expects %d arguments, got %d", d.Name, len(sym.params), len(d.Args))
	}
	for i, arg := range d.Args {
		dims, isVoid, err := tc.checkExpr(arg)
		if err != nil {
			return 0, false, err
		}
		if isVoid {
			return 0, false, util.Errorf(arg.Tok, "Void value passed as argument %d of '%s'", i+1, d.Name)
		}
		if dims != sym.params[i] {
			if sym.params[i] == 0 {
				return 0, false, util.Errorf(arg.Tok, "Argument %d of '%s' must be an integer", i+1, d.Name)
			}
			return 0, false, util.Errorf(arg.Tok, "Argument %d of '%s' must be an array of %d dimensions, got %d", i+1, d.Name, sym.params[i], dims)
		}
	}
	return 0, sym.isVoid, nil
}
