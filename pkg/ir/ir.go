// Package ir is the SSA substrate shared by the emitter and the back end: a
// Koopa-style program of globals and functions made of basic blocks, whose
// values track the instructions that use them.
package ir

import "fmt"

type Op int

const (
	OpAlloc Op = iota
	OpLoad
	OpStore
	OpGetPtr
	OpGetElemPtr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpBranch
	OpJump
	OpCall
	OpReturn
)

var opNames = [...]string{
	OpAlloc: "alloc", OpLoad: "load", OpStore: "store", OpGetPtr: "getptr", OpGetElemPtr: "getelemptr",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpEq: "eq", OpNe: "ne", OpLt: "lt", OpGt: "gt", OpLe: "le", OpGe: "ge",
	OpBranch: "br", OpJump: "jump", OpCall: "call", OpReturn: "ret",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

func (op Op) IsBinary() bool     { return op >= OpAdd && op <= OpGe }
func (op Op) IsTerminator() bool { return op == OpBranch || op == OpJump || op == OpReturn }

type Value interface {
	isValue()
	Type() *Type
	String() string
}

// users is the authoritative used-by set of a value, in insertion order.
type users struct{ list []*Instruction }

func (u *users) UsedBy() []*Instruction { return u.list }

func (u *users) addUser(i *Instruction) { u.list = append(u.list, i) }

func (u *users) removeUser(i *Instruction) {
	for k, x := range u.list {
		if x == i {
			u.list = append(u.list[:k], u.list[k+1:]...)
			return
		}
	}
}

type userTracker interface {
	addUser(*Instruction)
	removeUser(*Instruction)
	UsedBy() []*Instruction
}

type Const struct{ Value int32 }

// ZeroInit zero-fills an aggregate of type Typ.
type ZeroInit struct{ Typ *Type }

// Aggregate is a constant array initializer.
type Aggregate struct {
	Typ   *Type
	Elems []Value
}

// FuncArg is the i-th incoming argument, printed %p<i>.
type FuncArg struct {
	users
	Index int
	Typ   *Type
}

// Global is a `global @name = alloc T, init`; its value is a pointer to T.
type Global struct {
	users
	Name  string
	Alloc *Type
	Init  Value
}

type Instruction struct {
	users
	Op    Op
	Name  string
	Typ   *Type
	Args  []Value
	Block *BasicBlock

	Targets []*BasicBlock // br then/else, jump target
	Callee  *Func
	Alloc   *Type // allocated type for OpAlloc
}

func (*Const) isValue()       {}
func (*ZeroInit) isValue()    {}
func (*Aggregate) isValue()   {}
func (*FuncArg) isValue()     {}
func (*Global) isValue()      {}
func (*Instruction) isValue() {}

func (*Const) Type() *Type         { return I32 }
func (z *ZeroInit) Type() *Type    { return z.Typ }
func (a *Aggregate) Type() *Type   { return a.Typ }
func (a *FuncArg) Type() *Type     { return a.Typ }
func (g *Global) Type() *Type      { return PtrTo(g.Alloc) }
func (i *Instruction) Type() *Type { return i.Typ }

func (c *Const) String() string       { return fmt.Sprint(c.Value) }
func (*ZeroInit) String() string      { return "zeroinit" }
func (a *FuncArg) String() string     { return fmt.Sprintf("%%p%d", a.Index) }
func (g *Global) String() string      { return "@" + g.Name }
func (i *Instruction) String() string { return i.Name }

func (a *Aggregate) String() string {
	s := "{"
	for k, e := range a.Elems {
		if k > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s + "}"
}

type BasicBlock struct {
	Name   string
	Instrs []*Instruction
	Func   *Func
}

// Terminated reports whether the block already ends in br, jump or ret.
func (b *BasicBlock) Terminated() bool {
	return len(b.Instrs) > 0 && b.Instrs[len(b.Instrs)-1].Op.IsTerminator()
}

type Func struct {
	Name   string
	Params []*FuncArg
	Ret    *Type
	Blocks []*BasicBlock
	IsDecl bool

	allocs int
}

func (f *Func) Type() *Type {
	params := make([]*Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Typ
	}
	return &Type{Kind: KindFunc, Params: params, Ret: f.Ret}
}

func (f *Func) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock creates a block of f without placing it in the layout, so that
// branches can target it before it is emitted.
func (f *Func) NewBlock(name string) *BasicBlock {
	return &BasicBlock{Name: name, Func: f}
}

// Place appends b to the layout of f.
func (f *Func) Place(b *BasicBlock) {
	f.Blocks = append(f.Blocks, b)
}

// InsertAlloc places `@name = alloc typ` after the allocs already at the top
// of the entry block.
func (f *Func) InsertAlloc(name string, typ *Type) *Instruction {
	entry := f.Entry()
	inst := &Instruction{Op: OpAlloc, Name: "@" + name, Typ: PtrTo(typ), Alloc: typ, Block: entry}
	entry.Instrs = append(entry.Instrs, nil)
	copy(entry.Instrs[f.allocs+1:], entry.Instrs[f.allocs:])
	entry.Instrs[f.allocs] = inst
	f.allocs++
	return inst
}

// MaxCallArgs is the largest argument count of any call in f.
func (f *Func) MaxCallArgs() (n int, hasCall bool) {
	for _, b := range f.Blocks {
		for _, inst := range b.Instrs {
			if inst.Op == OpCall {
				hasCall = true
				if len(inst.Args) > n {
					n = len(inst.Args)
				}
			}
		}
	}
	return n, hasCall
}

type Program struct {
	Globals []*Global
	Funcs   []*Func
}

func NewProgram() *Program { return &Program{} }

func (p *Program) NewFunc(name string, params []*Type, ret *Type) *Func {
	f := &Func{Name: name, Ret: ret}
	for i, t := range params {
		f.Params = append(f.Params, &FuncArg{Index: i, Typ: t})
	}
	p.Funcs = append(p.Funcs, f)
	return f
}

// NewDecl declares an external function provided by the runtime library.
func (p *Program) NewDecl(name string, params []*Type, ret *Type) *Func {
	f := p.NewFunc(name, params, ret)
	f.IsDecl = true
	return f
}

func (p *Program) NewGlobal(name string, typ *Type, init Value) *Global {
	g := &Global{Name: name, Alloc: typ, Init: init}
	p.Globals = append(p.Globals, g)
	return g
}

func (p *Program) FindFunc(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Append adds inst to the end of b and registers it with its operands.
func (b *BasicBlock) Append(inst *Instruction) *Instruction {
	inst.Block = b
	for _, a := range inst.Args {
		if t, ok := a.(userTracker); ok {
			t.addUser(inst)
		}
	}
	b.Instrs = append(b.Instrs, inst)
	return inst
}

// Remove unlinks inst from its block and from its operands' used-by sets.
func (inst *Instruction) Remove() {
	for _, a := range inst.Args {
		if t, ok := a.(userTracker); ok {
			t.removeUser(inst)
		}
	}
	b := inst.Block
	for k, x := range b.Instrs {
		if x == inst {
			b.Instrs = append(b.Instrs[:k], b.Instrs[k+1:]...)
			break
		}
	}
	if inst.Op == OpAlloc && b == b.Func.Entry() {
		b.Func.allocs--
	}
	inst.Block = nil
}

func Binary(op Op, lhs, rhs Value) *Instruction {
	return &Instruction{Op: op, Typ: I32, Args: []Value{lhs, rhs}}
}

func Load(src Value) *Instruction {
	return &Instruction{Op: OpLoad, Typ: src.Type().Elem, Args: []Value{src}}
}

func Store(val, dst Value) *Instruction {
	return &Instruction{Op: OpStore, Typ: Unit, Args: []Value{val, dst}}
}

// GetElemPtr indexes a pointer to an array: *[T, n] -> *T.
func GetElemPtr(base, idx Value) *Instruction {
	return &Instruction{Op: OpGetElemPtr, Typ: PtrTo(base.Type().Elem.Elem), Args: []Value{base, idx}}
}

// GetPtr offsets a pointer by whole elements: *T -> *T.
func GetPtr(base, idx Value) *Instruction {
	return &Instruction{Op: OpGetPtr, Typ: base.Type(), Args: []Value{base, idx}}
}

func Branch(cond Value, then, els *BasicBlock) *Instruction {
	return &Instruction{Op: OpBranch, Typ: Unit, Args: []Value{cond}, Targets: []*BasicBlock{then, els}}
}

func Jump(target *BasicBlock) *Instruction {
	return &Instruction{Op: OpJump, Typ: Unit, Targets: []*BasicBlock{target}}
}

func Call(callee *Func, args []Value) *Instruction {
	ret := callee.Ret
	if ret == nil {
		ret = Unit
	}
	return &Instruction{Op: OpCall, Typ: ret, Args: args, Callee: callee}
}

// Return with a nil value returns from a void function.
func Return(v Value) *Instruction {
	inst := &Instruction{Op: OpReturn, Typ: Unit}
	if v != nil {
		inst.Args = []Value{v}
	}
	return inst
}

// FlatAggregate builds the initializer of typ from row-major values; an
// all-zero array becomes zeroinit.
func FlatAggregate(typ *Type, flat []int32) Value {
	allZero := true
	for _, v := range flat {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return &ZeroInit{Typ: typ}
	}
	return buildAggregate(typ, flat)
}

func buildAggregate(typ *Type, flat []int32) Value {
	if !typ.IsArray() {
		return &Const{Value: flat[0]}
	}
	stride := typ.Elem.Size() / 4
	agg := &Aggregate{Typ: typ}
	for i := 0; i < typ.Len; i++ {
		agg.Elems = append(agg.Elems, buildAggregate(typ.Elem, flat[i*stride:(i+1)*stride]))
	}
	return agg
}
