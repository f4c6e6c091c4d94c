package regalloc

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"

	"github.com/xplshn/gsc/pkg/codegen"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/lexer"
	"github.com/xplshn/gsc/pkg/parser"
)

// chain builds
//
//	%0 = add 1, 2
//	%1 = add %0, 3
//	%2 = add %1, %0
//	ret %2
func chain() (*ir.Func, []*ir.Instruction) {
	prog := ir.NewProgram()
	fn := prog.NewFunc("f", nil, ir.I32)
	entry := fn.NewBlock("entry")
	fn.Place(entry)

	named := func(i int, inst *ir.Instruction) *ir.Instruction {
		inst.Name = fmt.Sprintf("%%%d", i)
		return entry.Append(inst)
	}
	v0 := named(0, ir.Binary(ir.OpAdd, &ir.Const{Value: 1}, &ir.Const{Value: 2}))
	v1 := named(1, ir.Binary(ir.OpAdd, v0, &ir.Const{Value: 3}))
	v2 := named(2, ir.Binary(ir.OpAdd, v1, v0))
	entry.Append(ir.Return(v2))
	return fn, []*ir.Instruction{v0, v1, v2}
}

func TestAnalyze(t *testing.T) {
	fn, v := chain()
	ivs := Analyze(fn)

	var got []string
	for _, iv := range ivs.Order {
		got = append(got, iv.String())
	}
	if diff := cmp.Diff([]string{"%0[0,2]", "%1[1,2]", "%2[2,3]"}, got); diff != "" {
		t.Errorf("intervals mismatch (-want +got):\n%s", diff)
	}
	be.Equal(t, ivs.Positions[v[2]], 2)
}

func TestAnalyzeSkipsAllocsAndUnitValues(t *testing.T) {
	prog := ir.NewProgram()
	fn := prog.NewFunc("g", nil, ir.Unit)
	entry := fn.NewBlock("entry")
	fn.Place(entry)
	slot := fn.InsertAlloc("x_1", ir.I32)
	entry.Append(ir.Store(&ir.Const{Value: 1}, slot))
	ld := entry.Append(ir.Load(slot))
	ld.Name = "%0"
	entry.Append(ir.Return(nil))

	ivs := Analyze(fn)
	be.Equal(t, len(ivs.Order), 1)
	be.Equal(t, ivs.Order[0].Value, ld)
	// An unused value dies where it is born.
	be.Equal(t, ivs.Order[0].End, ivs.Order[0].Start)
}

func TestOverlaps(t *testing.T) {
	a := LiveInterval{Start: 0, End: 2}
	be.True(t, a.Overlaps(LiveInterval{Start: 1, End: 3}))
	be.True(t, !a.Overlaps(LiveInterval{Start: 2, End: 4}))
	be.True(t, !a.Overlaps(LiveInterval{Start: 5, End: 6}))
}

func TestAllocateReusesOnTie(t *testing.T) {
	fn, v := chain()
	a := Allocate(Analyze(fn), []string{"s1", "s2"})

	be.Equal(t, len(a.Spilled), 0)
	be.Equal(t, a.Regs[v[0]], "s1")
	be.Equal(t, a.Regs[v[1]], "s2")
	// Both operands die at %2, so it takes one of their registers.
	r, ok := a.Reg(v[2])
	be.True(t, ok)
	be.True(t, r == "s1" || r == "s2")
	be.Equal(t, a.Used, []string{"s1", "s2"})
}

func TestAllocateSpills(t *testing.T) {
	fn, v := chain()
	a := Allocate(Analyze(fn), []string{"s1"})

	be.Equal(t, a.Spilled, []*ir.Instruction{v[1]})
	be.Equal(t, a.Regs[v[0]], "s1")
	be.Equal(t, a.Regs[v[2]], "s1")
	_, ok := a.Reg(v[1])
	be.True(t, !ok)
	be.Equal(t, a.String(), "%0 -> s1\n%2 -> s1\n%1 -> spill\n")
}

func TestAllocateEmptyPool(t *testing.T) {
	fn, _ := chain()
	a := Allocate(Analyze(fn), nil)
	be.Equal(t, len(a.Spilled), 3)
	be.Equal(t, len(a.Used), 0)
}

const busy = `
(unit
  (func int f (param a) (param b) (block
    (var x (+ a b))
    (var y (* (- a b) (+ x 1)))
    (while (< x 100)
      (block
        (= x (+ (* x 2) (% y 7)))
        (if (&& (> x 10) (!= y 0)) (= y (- y 1)))))
    (return (+ (+ (* x y) (- x y)) (+ (* a b) (call getint))))))
  (func int main (block (return (call f 3 4)))))`

// No two values that are live at the same time share a register.
func TestAllocateNoSharedLiveRegisters(t *testing.T) {
	toks, err := lexer.NewLexer([]rune(busy), -1).Tokenize()
	be.Err(t, err, nil)
	root, err := parser.Parse(toks)
	be.Err(t, err, nil)
	prog, err := codegen.NewContext(config.NewConfig()).GenerateIR(root, nil)
	be.Err(t, err, nil)

	for _, pool := range [][]string{{"s1", "s2"}, {"s1", "s2", "s3", "s4", "s5", "s6", "s7"}} {
		fn := prog.FindFunc("f")
		ivs := Analyze(fn)
		a := Allocate(ivs, pool)
		be.Equal(t, len(a.Regs)+len(a.Spilled), len(ivs.Order))

		for i, x := range ivs.Order {
			for _, y := range ivs.Order[i+1:] {
				rx, okx := a.Reg(x.Value)
				ry, oky := a.Reg(y.Value)
				if okx && oky && rx == ry && x.Overlaps(y) {
					t.Errorf("%s and %s share %s", x, y, rx)
				}
			}
		}
	}
}
