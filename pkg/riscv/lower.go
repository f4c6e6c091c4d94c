package riscv

import (
	"github.com/xplshn/gsc/pkg/ir"
)

// use returns a register holding the value of v. The guard is nil when v
// already lives in a register.
func (g *funcGen) use(v ir.Value) (string, *Guard) {
	if reg, ok := g.current(v); ok {
		return reg, nil
	}
	switch x := v.(type) {
	case *ir.Const:
		if x.Value == 0 {
			return "zero", nil
		}
		gd := g.borrow(v, -1)
		g.emit("li %s, %d", gd.Reg, x.Value)
		return gd.Reg, gd
	case *ir.FuncArg:
		if x.Index < len(g.target.ArgRegs) {
			return g.target.ArgRegs[x.Index], nil
		}
		gd := g.borrow(v, -1)
		g.spMem("lw", gd.Reg, g.argOffset(x.Index))
		return gd.Reg, gd
	case *ir.Global:
		gd := g.borrow(v, -1)
		g.emit("la %s, %s", gd.Reg, x.Name)
		return gd.Reg, gd
	case *ir.Instruction:
		if off, ok := g.frame.Allocs[x]; ok {
			gd := g.borrow(v, -1)
			g.addImm(gd.Reg, g.target.StackPointer, off)
			return gd.Reg, gd
		}
		if reg, ok := g.alloc.Reg(x); ok {
			return reg, nil
		}
		off, ok := g.frame.Spills[x]
		if !ok {
			g.fail("value %s has no storage", x.Name)
		}
		gd := g.borrow(v, -1)
		g.spMem("lw", gd.Reg, off)
		return gd.Reg, gd
	}
	g.fail("cannot materialise %T", v)
	return "", nil
}

// def returns the register that receives the result of inst. A spilled
// result is computed in a borrowed register written back on release.
func (g *funcGen) def(inst *ir.Instruction) (string, *Guard) {
	if reg, ok := g.alloc.Reg(inst); ok {
		return reg, nil
	}
	off, ok := g.frame.Spills[inst]
	if !ok {
		g.fail("value %s has no storage", inst.Name)
	}
	gd := g.borrow(nil, off)
	return gd.Reg, gd
}

// argOffset locates incoming argument i >= 8 in the caller's outgoing area.
func (g *funcGen) argOffset(i int) int {
	return g.frame.Size + (i-len(g.target.ArgRegs))*g.target.WordSize
}

func (g *funcGen) genInstr(inst *ir.Instruction) {
	switch inst.Op {
	case ir.OpAlloc:
	case ir.OpLoad:
		g.genLoad(inst)
	case ir.OpStore:
		g.genStore(inst)
	case ir.OpGetElemPtr:
		g.genPtrArith(inst, inst.Args[0].Type().Elem.Elem.Size())
	case ir.OpGetPtr:
		g.genPtrArith(inst, inst.Args[0].Type().Elem.Size())
	case ir.OpBranch:
		cond, gd := g.use(inst.Args[0])
		g.emit("bnez %s, %s", cond, inst.Targets[0].Name)
		gd.Release()
		g.emit("j %s", inst.Targets[1].Name)
	case ir.OpJump:
		g.emit("j %s", inst.Targets[0].Name)
	case ir.OpCall:
		g.genCall(inst)
	case ir.OpReturn:
		if len(inst.Args) > 0 {
			g.moveInto(g.target.ReturnReg, inst.Args[0])
		}
		g.genEpilogue()
	default:
		if !inst.Op.IsBinary() {
			g.fail("unsupported instruction %s", inst.Op)
		}
		g.genBinary(inst)
	}
}

var arith = map[ir.Op]string{
	ir.OpAdd: "add",
	ir.OpSub: "sub",
	ir.OpMul: "mul",
	ir.OpDiv: "div",
	ir.OpMod: "rem",
}

func (g *funcGen) genBinary(inst *ir.Instruction) {
	if c, ok := inst.Args[1].(*ir.Const); ok && inst.Op == ir.OpAdd && fitsImm12(int(c.Value)) {
		l, gl := g.use(inst.Args[0])
		defer gl.Release()
		d, gd := g.def(inst)
		defer gd.Release()
		g.emit("addi %s, %s, %d", d, l, c.Value)
		return
	}

	l, gl := g.use(inst.Args[0])
	defer gl.Release()
	r, gr := g.use(inst.Args[1])
	defer gr.Release()
	d, gd := g.def(inst)
	defer gd.Release()

	if mn, ok := arith[inst.Op]; ok {
		g.emit("%s %s, %s, %s", mn, d, l, r)
		return
	}
	switch inst.Op {
	case ir.OpEq:
		g.emit("xor %s, %s, %s", d, l, r)
		g.emit("seqz %s, %s", d, d)
	case ir.OpNe:
		g.emit("xor %s, %s, %s", d, l, r)
		g.emit("snez %s, %s", d, d)
	case ir.OpLt:
		g.emit("slt %s, %s, %s", d, l, r)
	case ir.OpGt:
		g.emit("slt %s, %s, %s", d, r, l)
	case ir.OpLe, ir.OpGe:
		lt, eq := g.scratch(), g.scratch()
		defer lt.Release()
		defer eq.Release()
		if inst.Op == ir.OpLe {
			g.emit("slt %s, %s, %s", lt.Reg, l, r)
		} else {
			g.emit("slt %s, %s, %s", lt.Reg, r, l)
		}
		g.emit("xor %s, %s, %s", eq.Reg, l, r)
		g.emit("seqz %s, %s", eq.Reg, eq.Reg)
		g.emit("or %s, %s, %s", d, lt.Reg, eq.Reg)
	}
}

func (g *funcGen) genLoad(inst *ir.Instruction) {
	d, gd := g.def(inst)
	defer gd.Release()
	switch src := inst.Args[0].(type) {
	case *ir.Global:
		g.emit("la %s, %s", d, src.Name)
		g.emit("lw %s, 0(%s)", d, d)
		return
	case *ir.Instruction:
		if off, ok := g.frame.Allocs[src]; ok {
			g.spMem("lw", d, off)
			return
		}
	}
	p, gp := g.use(inst.Args[0])
	defer gp.Release()
	g.emit("lw %s, 0(%s)", d, p)
}

func (g *funcGen) genStore(inst *ir.Instruction) {
	v, gv := g.use(inst.Args[0])
	defer gv.Release()
	if dst, ok := inst.Args[1].(*ir.Instruction); ok {
		if off, ok := g.frame.Allocs[dst]; ok {
			g.spMem("sw", v, off)
			return
		}
	}
	p, gp := g.use(inst.Args[1])
	defer gp.Release()
	g.emit("sw %s, 0(%s)", v, p)
}

// genPtrArith lowers getelemptr and getptr: base + idx*stride.
func (g *funcGen) genPtrArith(inst *ir.Instruction, stride int) {
	base, gb := g.use(inst.Args[0])
	defer gb.Release()
	d, gd := g.def(inst)
	defer gd.Release()

	if c, ok := inst.Args[1].(*ir.Const); ok {
		g.addImm(d, base, int(c.Value)*stride)
		return
	}
	idx, gi := g.use(inst.Args[1])
	defer gi.Release()
	t := g.scratch()
	defer t.Release()
	g.emit("li %s, %d", t.Reg, stride)
	g.emit("mul %s, %s, %s", t.Reg, idx, t.Reg)
	g.emit("add %s, %s, %s", d, base, t.Reg)
}

// moveInto copies the value of v into reg without borrowing for it.
func (g *funcGen) moveInto(reg string, v ir.Value) {
	switch x := v.(type) {
	case *ir.Const:
		g.emit("li %s, %d", reg, x.Value)
		return
	case *ir.Global:
		g.emit("la %s, %s", reg, x.Name)
		return
	case *ir.Instruction:
		if off, ok := g.frame.Allocs[x]; ok {
			g.addImm(reg, g.target.StackPointer, off)
			return
		}
		if off, ok := g.frame.Spills[x]; ok {
			g.spMem("lw", reg, off)
			return
		}
	case *ir.FuncArg:
		if x.Index >= len(g.target.ArgRegs) {
			g.spMem("lw", reg, g.argOffset(x.Index))
			return
		}
	}
	src, gs := g.use(v)
	defer gs.Release()
	if src != reg {
		g.emit("mv %s, %s", reg, src)
	}
}

// genCall writes the stack arguments first, then fills a0..a7, calls, and
// moves a0 into the result's storage when the result is used.
func (g *funcGen) genCall(inst *ir.Instruction) {
	nregs := len(g.target.ArgRegs)
	for i := nregs; i < len(inst.Args); i++ {
		v, gv := g.use(inst.Args[i])
		g.spMem("sw", v, (i-nregs)*g.target.WordSize)
		gv.Release()
	}
	for i := 0; i < len(inst.Args) && i < nregs; i++ {
		g.moveInto(g.target.ArgRegs[i], inst.Args[i])
	}
	g.emit("call %s", inst.Callee.Name)

	if inst.Typ.IsUnit() || len(inst.UsedBy()) == 0 {
		return
	}
	d, gd := g.def(inst)
	g.emit("mv %s, %s", d, g.target.ReturnReg)
	gd.Release()
}
