// Package riscv lowers the IR to RV32IM assembly. Each function is
// register-allocated on its own and emitted with a fresh generator, so the
// functions of a program can be generated in parallel and concatenated in
// program order.
package riscv

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/regalloc"
)

var ErrBorrowExhausted = errors.New("no free temporary register")

// Backend emits assembly. After Generate, Frames holds the layout of every
// defined function by name.
type Backend struct {
	Frames map[string]*Frame
}

func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	var defined []*ir.Func
	for _, fn := range prog.Funcs {
		if !fn.IsDecl && !ir.IsLibrary(fn.Name) {
			defined = append(defined, fn)
		}
	}

	texts := make([]string, len(defined))
	frames := make([]*Frame, len(defined))
	var g errgroup.Group
	if cfg.Jobs > 0 {
		g.SetLimit(cfg.Jobs)
	}
	for i, fn := range defined {
		g.Go(func() error {
			text, frame, err := GenerateFunc(fn, &cfg.Target)
			if err != nil {
				return err
			}
			texts[i], frames[i] = text, frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.Frames = make(map[string]*Frame, len(defined))
	for i, fn := range defined {
		b.Frames[fn.Name] = frames[i]
	}

	var out bytes.Buffer
	genData(&out, prog)
	for _, t := range texts {
		out.WriteString(t)
	}
	return &out, nil
}

func genData(out *bytes.Buffer, prog *ir.Program) {
	if len(prog.Globals) > 0 {
		out.WriteString("  .data\n")
	}
	for _, g := range prog.Globals {
		fmt.Fprintf(out, "  .globl %s\n", g.Name)
		fmt.Fprintf(out, "%s:\n", g.Name)
		genInit(out, g.Alloc, g.Init)
		out.WriteString("\n")
	}
}

func genInit(out *bytes.Buffer, typ *ir.Type, init ir.Value) {
	switch v := init.(type) {
	case *ir.Const:
		fmt.Fprintf(out, "  .word %d\n", v.Value)
	case *ir.Aggregate:
		for _, e := range v.Elems {
			genInit(out, e.Type(), e)
		}
	default:
		fmt.Fprintf(out, "  .zero %d\n", typ.Size())
	}
}

// genError is the panic payload that carries an internal error out of the
// lowering of one function.
type genError struct{ err error }

// GenerateFunc allocates registers for fn and emits its text section.
func GenerateFunc(fn *ir.Func, target *config.Target) (text string, frame *Frame, err error) {
	ivs := regalloc.Analyze(fn)
	alloc := regalloc.Allocate(ivs, target.Allocatable)
	frame = Layout(fn, alloc, target.WordSize, target.StackAlignment, len(target.ArgRegs))

	g := newFuncGen(fn, target, alloc, frame)
	defer func() {
		if r := recover(); r != nil {
			ge, ok := r.(genError)
			if !ok {
				panic(r)
			}
			text, frame, err = "", nil, ge.err
		}
	}()
	g.gen()
	return g.out.String(), frame, nil
}

type funcGen struct {
	fn     *ir.Func
	target *config.Target
	alloc  *regalloc.Allocation
	frame  *Frame
	out    strings.Builder

	free       []string
	borrowed   []*Guard
	queues     map[ir.Value][]borrowEntry
	generation int
}

func newFuncGen(fn *ir.Func, target *config.Target, alloc *regalloc.Allocation, frame *Frame) *funcGen {
	g := &funcGen{
		fn:     fn,
		target: target,
		alloc:  alloc,
		frame:  frame,
		queues: make(map[ir.Value][]borrowEntry),
	}
	for i := len(target.Scratch) - 1; i >= 0; i-- {
		g.free = append(g.free, target.Scratch[i])
	}
	return g
}

func (g *funcGen) fail(format string, args ...interface{}) {
	panic(genError{fmt.Errorf("function '%s': "+format, append([]interface{}{g.fn.Name}, args...)...)})
}

func (g *funcGen) emit(format string, args ...interface{}) {
	g.out.WriteString("  ")
	fmt.Fprintf(&g.out, format, args...)
	g.out.WriteString("\n")
}

func (g *funcGen) gen() {
	g.out.WriteString("  .text\n")
	fmt.Fprintf(&g.out, "  .globl %s\n", g.fn.Name)
	fmt.Fprintf(&g.out, "%s:\n", g.fn.Name)
	g.genPrologue()

	for i, b := range g.fn.Blocks {
		if i > 0 {
			fmt.Fprintf(&g.out, "%s:\n", b.Name)
		}
		for _, inst := range b.Instrs {
			g.genInstr(inst)
			if len(g.borrowed) != 0 {
				g.fail("%d temporaries still borrowed after %s", len(g.borrowed), inst.Op)
			}
		}
	}
	g.out.WriteString("\n")
}

func (g *funcGen) genPrologue() {
	sp := g.target.StackPointer
	if g.frame.Size > 0 {
		g.addImm(sp, sp, -g.frame.Size)
	}
	if g.frame.RA >= 0 {
		g.spMem("sw", g.target.ReturnAddr, g.frame.RA)
	}
	for _, r := range g.frame.SaveSeq {
		g.spMem("sw", r, g.frame.Saved[r])
	}
}

func (g *funcGen) genEpilogue() {
	sp := g.target.StackPointer
	for _, r := range g.frame.SaveSeq {
		g.spMem("lw", r, g.frame.Saved[r])
	}
	if g.frame.RA >= 0 {
		g.spMem("lw", g.target.ReturnAddr, g.frame.RA)
	}
	if g.frame.Size > 0 {
		g.addImm(sp, sp, g.frame.Size)
	}
	g.emit("ret")
}

func fitsImm12(n int) bool { return n >= -2048 && n <= 2047 }

// addImm emits rd = rs + n, going through a temporary when n does not fit in
// a 12-bit immediate.
func (g *funcGen) addImm(rd, rs string, n int) {
	if fitsImm12(n) {
		g.emit("addi %s, %s, %d", rd, rs, n)
		return
	}
	t := g.scratch()
	defer t.Release()
	g.emit("li %s, %d", t.Reg, n)
	g.emit("add %s, %s, %s", rd, rs, t.Reg)
}

// spMem emits a load or store of reg at sp+off.
func (g *funcGen) spMem(op, reg string, off int) {
	g.mem(op, reg, g.target.StackPointer, off)
}

func (g *funcGen) mem(op, reg, base string, off int) {
	if fitsImm12(off) {
		g.emit("%s %s, %d(%s)", op, reg, off, base)
		return
	}
	t := g.scratch()
	defer t.Release()
	g.emit("li %s, %d", t.Reg, off)
	g.emit("add %s, %s, %s", t.Reg, base, t.Reg)
	g.emit("%s %s, 0(%s)", op, reg, t.Reg)
}
