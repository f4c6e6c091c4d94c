package codegen

import (
	"strconv"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/token"
)

var zero = &ir.Const{Value: 0}

// codegenExpr lowers an expression to a constant or the instruction holding
// its value. Array-valued expressions decay to an element pointer.
func (ctx *Context) codegenExpr(node *ast.Node) ir.Value {
	if v, ok := ctx.evalConst(node); ok {
		return &ir.Const{Value: v}
	}
	switch node.Type {
	case ast.Ident:
		return ctx.codegenIdent(node)
	case ast.Index:
		return ctx.codegenIndex(node)
	case ast.FuncCall:
		v := ctx.codegenFuncCall(node)
		if v == nil {
			ctx.errorf(node.Tok, "Void function '%s' used as a value", node.Data.(ast.FuncCallNode).Name)
		}
		return v
	case ast.BinaryOp:
		return ctx.codegenBinaryOp(node)
	case ast.UnaryOp:
		return ctx.codegenUnaryOp(node)
	case ast.Number:
		return &ir.Const{Value: node.Data.(ast.NumberNode).Value}
	}
	ctx.errorf(node.Tok, "Unexpected %s in an expression", node.Type)
	return nil
}

func (ctx *Context) codegenIdent(node *ast.Node) ir.Value {
	name := node.Data.(ast.IdentNode).Name
	b := ctx.resolve(node.Tok, name)
	switch b.Kind {
	case scope.Constant:
		return &ir.Const{Value: b.Value}
	case scope.Variable:
		return ctx.addInstr(ir.Load(ctx.storage[b]))
	case scope.Array:
		return ctx.arrayValue(node.Tok, b, nil)
	}
	ctx.errorf(node.Tok, "Function '%s' used as a value", name)
	return nil
}

func (ctx *Context) codegenIndex(node *ast.Node) ir.Value {
	d := node.Data.(ast.IndexNode)
	b := ctx.resolve(node.Tok, d.Name)
	if b.Kind != scope.Array {
		ctx.errorf(node.Tok, "'%s' is not an array", d.Name)
	}
	return ctx.arrayValue(node.Tok, b, d.Indices)
}

// arrayValue loads a fully indexed element, or decays a partially indexed
// array to a pointer to its first element.
func (ctx *Context) arrayValue(tok token.Token, b *scope.Binding, indices []*ast.Node) ir.Value {
	ptr := ctx.codegenIndexAddr(tok, b, indices)
	if len(indices) == rank(b) {
		return ctx.addInstr(ir.Load(ptr))
	}
	if b.IsPointer && len(indices) == 0 {
		return ptr
	}
	return ctx.addInstr(ir.GetElemPtr(ptr, zero))
}

// rank counts the subscripts that select a single element of b.
func rank(b *scope.Binding) int {
	if b.IsPointer {
		return len(b.Dims) + 1
	}
	return len(b.Dims)
}

// codegenIndexAddr computes the address named by b[indices...]. A pointer
// parameter is first loaded from its slot and offset with getptr; a declared
// array is indexed in place with getelemptr.
func (ctx *Context) codegenIndexAddr(tok token.Token, b *scope.Binding, indices []*ast.Node) ir.Value {
	if len(indices) > rank(b) {
		ctx.errorf(tok, "Too many subscripts for '%s'", b.Name)
	}

	storage := ctx.storage[b]
	var ptr ir.Value = storage
	rest := indices
	if b.IsPointer {
		ptr = ctx.addInstr(ir.Load(storage))
		if len(indices) > 0 {
			ptr = ctx.addInstr(ir.GetPtr(ptr, ctx.codegenExpr(indices[0])))
			rest = indices[1:]
		}
	}
	for _, idx := range rest {
		ptr = ctx.addInstr(ir.GetElemPtr(ptr, ctx.codegenExpr(idx)))
	}
	return ptr
}

func (ctx *Context) codegenLvalue(node *ast.Node) ir.Value {
	switch node.Type {
	case ast.Ident:
		name := node.Data.(ast.IdentNode).Name
		b := ctx.resolve(node.Tok, name)
		if b.Kind != scope.Variable {
			ctx.errorf(node.Tok, "Cannot assign to %s '%s'", b.Kind, name)
		}
		return ctx.storage[b]
	case ast.Index:
		d := node.Data.(ast.IndexNode)
		b := ctx.resolve(node.Tok, d.Name)
		if b.Kind != scope.Array || b.IsConst {
			ctx.errorf(node.Tok, "Cannot assign to an element of '%s'", d.Name)
		}
		if len(d.Indices) != rank(b) {
			ctx.errorf(node.Tok, "Cannot assign to array '%s' as a whole", d.Name)
		}
		return ctx.codegenIndexAddr(node.Tok, b, d.Indices)
	}
	ctx.errorf(node.Tok, "Invalid assignment target")
	return nil
}

func (ctx *Context) codegenAssign(node *ast.Node) {
	d := node.Data.(ast.AssignNode)
	val := ctx.codegenExpr(d.Rhs)
	addr := ctx.codegenLvalue(d.Lhs)
	ctx.addInstr(ir.Store(val, addr))
}

func binaryOp(op token.Type) ir.Op {
	switch op {
	case token.Plus:
		return ir.OpAdd
	case token.Minus:
		return ir.OpSub
	case token.Star:
		return ir.OpMul
	case token.Slash:
		return ir.OpDiv
	case token.Rem:
		return ir.OpMod
	case token.EqEq:
		return ir.OpEq
	case token.Neq:
		return ir.OpNe
	case token.Lt:
		return ir.OpLt
	case token.Gt:
		return ir.OpGt
	case token.Lte:
		return ir.OpLe
	case token.Gte:
		return ir.OpGe
	}
	return -1
}

func (ctx *Context) codegenBinaryOp(node *ast.Node) ir.Value {
	d := node.Data.(ast.BinaryOpNode)
	if d.Op == token.AndAnd || d.Op == token.OrOr {
		return ctx.codegenLogical(node)
	}
	op := binaryOp(d.Op)
	if op < 0 {
		ctx.errorf(node.Tok, "Unsupported binary operator '%s'", d.Op)
	}
	lhs := ctx.codegenExpr(d.Left)
	rhs := ctx.codegenExpr(d.Right)
	return ctx.addInstr(ir.Binary(op, lhs, rhs))
}

func (ctx *Context) codegenUnaryOp(node *ast.Node) ir.Value {
	d := node.Data.(ast.UnaryOpNode)
	v := ctx.codegenExpr(d.Expr)
	switch d.Op {
	case token.Plus:
		return v
	case token.Minus:
		return ctx.addInstr(ir.Binary(ir.OpSub, zero, v))
	case token.Not:
		return ctx.addInstr(ir.Binary(ir.OpEq, v, zero))
	}
	ctx.errorf(node.Tok, "Unsupported unary operator '%s'", d.Op)
	return nil
}

// codegenLogical lowers && and || through a stack slot so the right operand
// only runs when the left one does not decide the result.
func (ctx *Context) codegenLogical(node *ast.Node) ir.Value {
	d := node.Data.(ast.BinaryOpNode)
	isOr := d.Op == token.OrOr

	if l, ok := ctx.evalConst(d.Left); ok {
		if (l != 0) == isOr {
			return &ir.Const{Value: boolInt(isOr)}
		}
		return ctx.addInstr(ir.Binary(ir.OpNe, ctx.codegenExpr(d.Right), zero))
	}

	id := ctx.newBranchID()
	thenBlock := ctx.newBlock("then_%d", id)
	elseBlock := ctx.newBlock("else_%d", id)
	endBlock := ctx.newBlock("end_%d", id)
	slot := ctx.currentFunc.InsertAlloc(shortCircuitSlot(id), ir.I32)

	left := ctx.addInstr(ir.Binary(ir.OpNe, ctx.codegenExpr(d.Left), zero))
	ctx.addInstr(ir.Store(&ir.Const{Value: boolInt(isOr)}, slot))
	ctx.addInstr(ir.Branch(left, thenBlock, elseBlock))

	evalRight := func() {
		right := ctx.addInstr(ir.Binary(ir.OpNe, ctx.codegenExpr(d.Right), zero))
		ctx.addInstr(ir.Store(right, slot))
	}

	ctx.startBlock(thenBlock)
	if !isOr {
		evalRight()
	}
	ctx.jumpTo(endBlock)

	ctx.startBlock(elseBlock)
	if isOr {
		evalRight()
	}
	ctx.jumpTo(endBlock)

	ctx.startBlock(endBlock)
	return ctx.addInstr(ir.Load(slot))
}

// shortCircuitSlot names the result slot of one && or || occurrence. Scoped
// variables always end in _<digits> or _r<digits>, so this cannot collide.
func shortCircuitSlot(id int) string {
	return "sc" + strconv.Itoa(id)
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (ctx *Context) codegenFuncCall(node *ast.Node) ir.Value {
	d := node.Data.(ast.FuncCallNode)
	b := ctx.resolve(node.Tok, d.Name)
	fn, ok := ctx.funcs[b]
	if b.Kind != scope.Function || !ok {
		ctx.errorf(node.Tok, "'%s' is not a function", d.Name)
	}
	if len(d.Args) != len(fn.Params) {
		ctx.errorf(node.Tok, "Function '%s' expects %d arguments, got %d", d.Name, len(fn.Params), len(d.Args))
	}
	args := make([]ir.Value, len(d.Args))
	for i, arg := range d.Args {
		args[i] = ctx.codegenExpr(arg)
		if !args[i].Type().Equal(fn.Params[i].Typ) {
			ctx.errorf(arg.Tok, "Argument %d of '%s' has type %s, expected %s", i+1, d.Name, args[i].Type(), fn.Params[i].Typ)
		}
	}
	call := ctx.addInstr(ir.Call(fn, args))
	if call.Typ.IsUnit() {
		return nil
	}
	return call
}

func (ctx *Context) codegenReturn(node *ast.Node) bool {
	d := node.Data.(ast.ReturnNode)
	if d.Expr != nil {
		if ctx.resultSlot == nil {
			ctx.errorf(node.Tok, "Void function '%s' cannot return a value", ctx.funcName)
		}
		ctx.addInstr(ir.Store(ctx.codegenExpr(d.Expr), ctx.resultSlot))
	}
	ctx.addInstr(ir.Jump(ctx.endBlock))
	return true
}

// codegenIf emits `br cond, then_k, else_k|end_k`. The end block is only
// placed when some path reaches it.
func (ctx *Context) codegenIf(node *ast.Node) bool {
	d := node.Data.(ast.IfNode)
	cond := ctx.codegenExpr(d.Cond)

	id := ctx.newBranchID()
	thenBlock := ctx.newBlock("then_%d", id)
	endBlock := ctx.newBlock("end_%d", id)
	elseBlock := endBlock
	if d.ElseBody != nil {
		elseBlock = ctx.newBlock("else_%d", id)
	}
	ctx.addInstr(ir.Branch(cond, thenBlock, elseBlock))

	ctx.startBlock(thenBlock)
	thenTerminates := ctx.codegenBody(d.ThenBody)
	ctx.jumpTo(endBlock)

	elseTerminates := false
	if d.ElseBody != nil {
		ctx.startBlock(elseBlock)
		elseTerminates = ctx.codegenBody(d.ElseBody)
		ctx.jumpTo(endBlock)
	}

	if d.ElseBody != nil && thenTerminates && elseTerminates {
		ctx.currentBlock = nil
		return true
	}
	ctx.startBlock(endBlock)
	return false
}

func (ctx *Context) codegenWhile(node *ast.Node) {
	d := node.Data.(ast.WhileNode)
	id := ctx.newBranchID()
	entry := ctx.newBlock("while_entry_%d", id)
	body := ctx.newBlock("while_body_%d", id)
	end := ctx.newBlock("end_%d", id)

	ctx.addInstr(ir.Jump(entry))
	ctx.startBlock(entry)
	cond := ctx.codegenExpr(d.Cond)
	ctx.addInstr(ir.Branch(cond, body, end))

	ctx.startBlock(body)
	ctx.loops = append(ctx.loops, loop{entry: entry, end: end})
	ctx.codegenBody(d.Body)
	ctx.loops = ctx.loops[:len(ctx.loops)-1]
	ctx.jumpTo(entry)

	ctx.startBlock(end)
}
