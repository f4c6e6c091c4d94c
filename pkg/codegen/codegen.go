package codegen

import (
	"errors"
	"fmt"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/consteval"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/typeChecker"
	"github.com/xplshn/gsc/pkg/util"
)

var ErrShape = errors.New("array shape error")

type loop struct {
	entry, end *ir.BasicBlock
}

// Context owns all state of one emission: the SSA value and branch counters,
// the scope table and the function being built. It is not safe for
// concurrent use; the counters are monotonic over the whole unit.
type Context struct {
	prog         *ir.Program
	cfg          *config.Config
	scopes       *scope.Table
	eval         *consteval.Evaluator
	info         *typeChecker.Info
	regCount     int
	branchCount  int
	currentFunc  *ir.Func
	currentBlock *ir.BasicBlock
	funcName     string
	resultSlot   *ir.Instruction
	endBlock     *ir.BasicBlock
	loops        []loop
	storage      map[*scope.Binding]ir.Value
	funcs        map[*scope.Binding]*ir.Func
}

// bailout carries the first fatal error up to GenerateIR.
type bailout struct{ err error }

func NewContext(cfg *config.Config) *Context {
	ctx := &Context{
		prog:    ir.NewProgram(),
		cfg:     cfg,
		scopes:  scope.NewTable(),
		storage: make(map[*scope.Binding]ir.Value),
		funcs:   make(map[*scope.Binding]*ir.Func),
	}
	ctx.scopes.Strict = cfg.IsFeatureEnabled(config.FeatStrictRedecl)
	ctx.eval = &consteval.Evaluator{Resolver: ctx, DeferDivByZero: cfg.IsFeatureEnabled(config.FeatConstDivTrap)}
	return ctx
}

// Scopes exposes the scope table, which outlives emission so the back end
// can attach placement hints to bindings.
func (ctx *Context) Scopes() *scope.Table { return ctx.scopes }

// Counters reports how many SSA values and branch ids have been used.
func (ctx *Context) Counters() (regs, branches int) { return ctx.regCount, ctx.branchCount }

func (ctx *Context) fail(err error) { panic(bailout{err}) }

func (ctx *Context) errorf(tok token.Token, format string, args ...interface{}) {
	ctx.fail(util.Errorf(tok, format, args...))
}

func (ctx *Context) newReg() string {
	name := fmt.Sprintf("%%%d", ctx.regCount)
	ctx.regCount++
	return name
}

func (ctx *Context) newBranchID() int {
	id := ctx.branchCount
	ctx.branchCount++
	return id
}

func (ctx *Context) newBlock(format string, args ...interface{}) *ir.BasicBlock {
	return ctx.currentFunc.NewBlock(fmt.Sprintf(format, args...))
}

func (ctx *Context) startBlock(b *ir.BasicBlock) {
	ctx.currentFunc.Place(b)
	ctx.currentBlock = b
}

func (ctx *Context) terminated() bool {
	return ctx.currentBlock == nil || ctx.currentBlock.Terminated()
}

// addInstr appends instr to the current block, naming it when it yields a value.
func (ctx *Context) addInstr(instr *ir.Instruction) *ir.Instruction {
	if !instr.Typ.IsUnit() && instr.Name == "" {
		instr.Name = ctx.newReg()
	}
	return ctx.currentBlock.Append(instr)
}

func (ctx *Context) jumpTo(target *ir.BasicBlock) {
	if !ctx.terminated() {
		ctx.addInstr(ir.Jump(target))
	}
}

// Value implements consteval.Resolver.
func (ctx *Context) Value(name string) (int32, bool, error) {
	b, err := ctx.scopes.Resolve(name)
	if err != nil {
		return 0, false, err
	}
	switch b.Kind {
	case scope.Constant:
		return b.Value, true, nil
	case scope.Variable:
		return b.Value, b.Known, nil
	}
	return 0, false, nil
}

// Element implements consteval.Resolver for const arrays.
func (ctx *Context) Element(name string, indices []int32) (int32, bool, error) {
	b, err := ctx.scopes.Resolve(name)
	if err != nil {
		return 0, false, err
	}
	if b.Kind != scope.Array || !b.IsConst || len(indices) != len(b.Dims) {
		return 0, false, nil
	}
	flat := 0
	for i, idx := range indices {
		if idx < 0 || idx >= b.Dims[i] {
			return 0, false, nil
		}
		flat = flat*int(b.Dims[i]) + int(idx)
	}
	return b.Elems[flat], true, nil
}

func (ctx *Context) evalConst(node *ast.Node) (int32, bool) {
	v, ok, err := ctx.eval.Eval(node)
	if err != nil {
		ctx.fail(err)
	}
	return v, ok
}

func (ctx *Context) mustConst(node *ast.Node, what string) int32 {
	v, ok := ctx.evalConst(node)
	if !ok {
		ctx.errorf(node.Tok, "%s is not a compile-time constant", what)
	}
	return v
}

func (ctx *Context) resolve(tok token.Token, name string) *scope.Binding {
	b, err := ctx.scopes.Resolve(name)
	if err != nil {
		ctx.fail(util.Errorf(tok, "%w", err))
	}
	return b
}

func (ctx *Context) declared(tok token.Token, b *scope.Binding, err error) *scope.Binding {
	if err != nil {
		ctx.fail(util.Errorf(tok, "%w", err))
	}
	if b.Replaced != nil {
		util.Warn(ctx.cfg, config.WarnRedecl, tok, "'%s' redeclared in the same scope; the previous %s is hidden", b.Name, b.Replaced.Kind)
	}
	return b
}

// GenerateIR lowers a checked compilation unit. info may be nil, in which
// case no global is treated as constant.
func (ctx *Context) GenerateIR(root *ast.Node, info *typeChecker.Info) (prog *ir.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			prog, err = nil, b.err
		}
	}()
	ctx.info = info

	ir.DeclareLibrary(ctx.prog)
	for _, fn := range ctx.prog.Funcs {
		b, err := ctx.scopes.DeclareFunction(fn.Name)
		b = ctx.declared(token.Token{FileIndex: -1}, b, err)
		ctx.funcs[b] = fn
	}

	for _, item := range root.Data.(ast.CompUnitNode).Items {
		switch item.Type {
		case ast.VarDecl:
			ctx.codegenGlobalVarDecl(item)
		case ast.FuncDecl:
			ctx.codegenFuncDecl(item)
		}
	}
	return ctx.prog, nil
}

func (ctx *Context) evalDims(dims []*ast.Node) []int32 {
	out := make([]int32, len(dims))
	for i, d := range dims {
		v := ctx.mustConst(d, "array dimension")
		if v <= 0 {
			ctx.fail(util.Errorf(d.Tok, "%w: dimension %d must be positive, got %d", ErrShape, i+1, v))
		}
		out[i] = v
	}
	return out
}

func dimsType(dims []int32) *ir.Type {
	ints := make([]int, len(dims))
	for i, d := range dims {
		ints[i] = int(d)
	}
	return ir.ArrayType(ir.I32, ints)
}

func (ctx *Context) codegenGlobalVarDecl(node *ast.Node) {
	d := node.Data.(ast.VarDeclNode)

	if len(d.Dims) == 0 {
		var v int32
		if d.Init != nil {
			v = ctx.mustConst(d.Init, fmt.Sprintf("initializer of global '%s'", d.Name))
		}
		if d.IsConst {
			b, err := ctx.scopes.DeclareConstant(d.Name, v)
			ctx.declared(node.Tok, b, err)
			return
		}
		known := d.Init != nil && ctx.info != nil && !ctx.info.Reassigned[node] && ctx.cfg.IsFeatureEnabled(config.FeatFoldGlobals)
		b, err := ctx.scopes.DeclareVariable(d.Name, v, known)
		b = ctx.declared(node.Tok, b, err)
		var init ir.Value = &ir.ZeroInit{Typ: ir.I32}
		if d.Init != nil {
			init = &ir.Const{Value: v}
		}
		ctx.storage[b] = ctx.prog.NewGlobal(b.Unique, ir.I32, init)
		return
	}

	dims := ctx.evalDims(d.Dims)
	flat := make([]int32, product(dims))
	if d.Init != nil {
		for i, item := range ctx.flattenInit(d.Init, dims) {
			if item != nil {
				flat[i] = ctx.mustConst(item, fmt.Sprintf("initializer of global '%s'", d.Name))
			}
		}
	}
	var b *scope.Binding
	var err error
	if d.IsConst {
		b, err = ctx.scopes.DeclareConstArray(d.Name, dims, flat)
		b = ctx.declared(node.Tok, b, err)
	} else {
		b, err = ctx.scopes.DeclareArray(d.Name, dims, false)
		b = ctx.declared(node.Tok, b, err)
	}
	typ := dimsType(dims)
	ctx.storage[b] = ctx.prog.NewGlobal(b.Unique, typ, ir.FlatAggregate(typ, flat))
}

func (ctx *Context) codegenLocalVarDecl(node *ast.Node) {
	d := node.Data.(ast.VarDeclNode)

	if len(d.Dims) == 0 {
		if d.IsConst {
			v := ctx.mustConst(d.Init, fmt.Sprintf("initializer of constant '%s'", d.Name))
			b, err := ctx.scopes.DeclareConstant(d.Name, v)
			ctx.declared(node.Tok, b, err)
			return
		}
		var init ir.Value
		if d.Init != nil {
			init = ctx.codegenExpr(d.Init)
		}
		b, err := ctx.scopes.DeclareVariable(d.Name, 0, false)
		b = ctx.declared(node.Tok, b, err)
		slot := ctx.currentFunc.InsertAlloc(b.Unique, ir.I32)
		ctx.storage[b] = slot
		if init != nil {
			ctx.addInstr(ir.Store(init, slot))
		}
		return
	}

	dims := ctx.evalDims(d.Dims)
	var items []*ast.Node
	if d.Init != nil {
		items = ctx.flattenInit(d.Init, dims)
	}

	var b *scope.Binding
	var err error
	var values []ir.Value
	if d.IsConst {
		flat := make([]int32, product(dims))
		for i, item := range items {
			if item != nil {
				flat[i] = ctx.mustConst(item, fmt.Sprintf("initializer of constant '%s'", d.Name))
			}
		}
		for _, v := range flat {
			values = append(values, &ir.Const{Value: v})
		}
		b, err = ctx.scopes.DeclareConstArray(d.Name, dims, flat)
		b = ctx.declared(node.Tok, b, err)
	} else {
		for _, item := range items {
			if item == nil {
				values = append(values, &ir.Const{Value: 0})
			} else {
				values = append(values, ctx.codegenExpr(item))
			}
		}
		b, err = ctx.scopes.DeclareArray(d.Name, dims, false)
		b = ctx.declared(node.Tok, b, err)
	}

	slot := ctx.currentFunc.InsertAlloc(b.Unique, dimsType(dims))
	ctx.storage[b] = slot
	for i, v := range values {
		ptr := ir.Value(slot)
		for _, idx := range flatIndexPath(i, dims) {
			ptr = ctx.addInstr(ir.GetElemPtr(ptr, &ir.Const{Value: idx}))
		}
		ctx.addInstr(ir.Store(v, ptr))
	}
}

// flatIndexPath turns a row-major offset into one index per dimension.
func flatIndexPath(flat int, dims []int32) []int32 {
	path := make([]int32, len(dims))
	for i := len(dims) - 1; i >= 0; i-- {
		path[i] = int32(flat % int(dims[i]))
		flat /= int(dims[i])
	}
	return path
}

func (ctx *Context) codegenFuncDecl(node *ast.Node) {
	d := node.Data.(ast.FuncDeclNode)

	if prev, err := ctx.scopes.Resolve(d.Name); err == nil && prev.Kind == scope.Function && prev.IsGlobal() {
		ctx.errorf(node.Tok, "Redefinition of function '%s'", d.Name)
	}

	var paramTypes []*ir.Type
	var paramDims [][]int32
	for _, p := range d.Params {
		if !p.IsArray {
			paramTypes = append(paramTypes, ir.I32)
			paramDims = append(paramDims, nil)
			continue
		}
		dims := ctx.evalDims(p.Dims)
		paramDims = append(paramDims, dims)
		paramTypes = append(paramTypes, ir.PtrTo(dimsType(dims)))
	}
	ret := ir.I32
	if d.IsVoid {
		ret = ir.Unit
	}

	fb, err := ctx.scopes.DeclareFunction(d.Name)
	fb = ctx.declared(node.Tok, fb, err)
	fn := ctx.prog.NewFunc(d.Name, paramTypes, ret)
	ctx.funcs[fb] = fn

	ctx.currentFunc, ctx.funcName = fn, d.Name
	ctx.loops = nil
	ctx.resultSlot = nil
	ctx.startBlock(fn.NewBlock("entry"))
	ctx.endBlock = fn.NewBlock("end_" + d.Name)
	if !d.IsVoid {
		ctx.resultSlot = fn.InsertAlloc("result", ir.I32)
		if d.Name == "main" {
			ctx.addInstr(ir.Store(&ir.Const{Value: 0}, ctx.resultSlot))
		}
	}

	ctx.scopes.Enter()
	for i, p := range d.Params {
		var b *scope.Binding
		if p.IsArray {
			b, err = ctx.scopes.DeclareArray(p.Name, paramDims[i], true)
			b = ctx.declared(p.Tok, b, err)
		} else {
			b, err = ctx.scopes.DeclareVariable(p.Name, 0, false)
			b = ctx.declared(p.Tok, b, err)
		}
		slot := fn.InsertAlloc(b.Unique, paramTypes[i])
		ctx.storage[b] = slot
		ctx.addInstr(ir.Store(fn.Params[i], slot))
	}
	ctx.codegenStmts(d.Body.Data.(ast.BlockNode).Stmts)
	ctx.scopes.Leave()

	ctx.jumpTo(ctx.endBlock)
	ctx.startBlock(ctx.endBlock)
	if d.IsVoid {
		ctx.addInstr(ir.Return(nil))
	} else {
		ctx.addInstr(ir.Return(ctx.addInstr(ir.Load(ctx.resultSlot))))
	}
	ctx.currentFunc, ctx.currentBlock = nil, nil
}

// codegenStmts emits stmts in order and reports whether control cannot fall
// through the last one. Statements after a terminator are dropped.
func (ctx *Context) codegenStmts(stmts []*ast.Node) bool {
	for _, stmt := range stmts {
		if ctx.terminated() {
			util.Warn(ctx.cfg, config.WarnUnreachableCode, stmt.Tok, "Unreachable code")
			return true
		}
		ctx.codegenStmt(stmt)
	}
	return ctx.terminated()
}

func (ctx *Context) codegenStmt(node *ast.Node) (terminates bool) {
	if node == nil {
		return false
	}
	switch node.Type {
	case ast.VarDecl:
		ctx.codegenLocalVarDecl(node)
	case ast.Block:
		ctx.scopes.Enter()
		defer ctx.scopes.Leave()
		return ctx.codegenStmts(node.Data.(ast.BlockNode).Stmts)
	case ast.Assign:
		ctx.codegenAssign(node)
	case ast.ExprStmt:
		e := node.Data.(ast.ExprStmtNode).Expr
		switch {
		case e == nil:
		case e.Type == ast.FuncCall:
			ctx.codegenFuncCall(e)
		default:
			ctx.codegenExpr(e)
		}
	case ast.If:
		return ctx.codegenIf(node)
	case ast.While:
		ctx.codegenWhile(node)
	case ast.Break, ast.Continue:
		if len(ctx.loops) == 0 {
			ctx.errorf(node.Tok, "'%s' outside of a loop", node.Type)
		}
		l := ctx.loops[len(ctx.loops)-1]
		if node.Type == ast.Break {
			ctx.addInstr(ir.Jump(l.end))
		} else {
			ctx.addInstr(ir.Jump(l.entry))
		}
		return true
	case ast.Return:
		return ctx.codegenReturn(node)
	default:
		ctx.errorf(node.Tok, "Unexpected %s in statement position", node.Type)
	}
	return ctx.terminated()
}

// codegenBody emits an if branch or loop body; a lone declaration gets its own scope.
func (ctx *Context) codegenBody(node *ast.Node) bool {
	if node != nil && node.Type == ast.VarDecl {
		ctx.scopes.Enter()
		defer ctx.scopes.Leave()
	}
	return ctx.codegenStmt(node)
}
