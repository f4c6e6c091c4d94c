package ir

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

// sumTo builds a function that adds 1..n with a loop over a stack slot.
func sumTo(prog *Program) *Func {
	fn := prog.NewFunc("sum", []*Type{I32}, I32)
	entry := fn.NewBlock("entry")
	cond := fn.NewBlock("while_entry_0")
	body := fn.NewBlock("while_body_0")
	end := fn.NewBlock("end_0")

	fn.Place(entry)
	acc := fn.InsertAlloc("acc_1", I32)
	i := fn.InsertAlloc("i_1", I32)
	entry.Append(Store(fn.Params[0], i))
	entry.Append(Store(&Const{Value: 0}, acc))
	entry.Append(Jump(cond))

	fn.Place(cond)
	iv := cond.Append(named("%0", Load(i)))
	gt := cond.Append(named("%1", Binary(OpGt, iv, &Const{Value: 0})))
	cond.Append(Branch(gt, body, end))

	fn.Place(body)
	a := body.Append(named("%2", Load(acc)))
	iv2 := body.Append(named("%3", Load(i)))
	body.Append(Store(body.Append(named("%4", Binary(OpAdd, a, iv2))), acc))
	body.Append(Store(body.Append(named("%5", Binary(OpSub, iv2, &Const{Value: 1}))), i))
	body.Append(Jump(cond))

	fn.Place(end)
	end.Append(Return(end.Append(named("%6", Load(acc)))))
	return fn
}

func named(name string, inst *Instruction) *Instruction {
	inst.Name = name
	return inst
}

func TestPrint(t *testing.T) {
	prog := NewProgram()
	prog.NewDecl("putint", []*Type{I32}, Unit)
	prog.NewGlobal("g_0", ArrayType(I32, []int{2, 2}), FlatAggregate(ArrayType(I32, []int{2, 2}), []int32{1, 0, 0, 4}))
	prog.NewGlobal("z_0", I32, &ZeroInit{Typ: I32})
	sumTo(prog)

	want := `decl @putint(i32)

global @g_0 = alloc [[i32, 2], 2], {{1, 0}, {0, 4}}
global @z_0 = alloc i32, zeroinit

fun @sum(%p0: i32): i32 {
%entry:
  @acc_1 = alloc i32
  @i_1 = alloc i32
  store %p0, @i_1
  store 0, @acc_1
  jump %while_entry_0
%while_entry_0:
  %0 = load @i_1
  %1 = gt %0, 0
  br %1, %while_body_0, %end_0
%while_body_0:
  %2 = load @acc_1
  %3 = load @i_1
  %4 = add %2, %3
  store %4, @acc_1
  %5 = sub %3, 1
  store %5, @i_1
  jump %while_entry_0
%end_0:
  %6 = load @acc_1
  ret %6
}
`
	be.Equal(t, Print(prog), want)
}

func TestInsertAllocKeepsAllocsFirst(t *testing.T) {
	prog := NewProgram()
	fn := sumTo(prog)
	fn.InsertAlloc("late_2", ArrayOf(I32, 3))

	entry := fn.Entry()
	be.Equal(t, entry.Instrs[2].Name, "@late_2")
	be.Equal(t, entry.Instrs[3].Op, OpStore)
	be.Equal(t, entry.Instrs[2].Typ.String(), "*[i32, 3]")
}

func TestFlatAggregate(t *testing.T) {
	typ := ArrayType(I32, []int{2, 3})
	be.Equal(t, FlatAggregate(typ, make([]int32, 6)).String(), "zeroinit")
	be.Equal(t, FlatAggregate(typ, []int32{1, 2, 3, 4, 5, 6}).String(), "{{1, 2, 3}, {4, 5, 6}}")
}

func TestTypes(t *testing.T) {
	typ := ArrayType(I32, []int{2, 3})
	be.Equal(t, typ.String(), "[[i32, 3], 2]")
	be.Equal(t, typ.Size(), 24)
	be.Equal(t, typ.Dims(), []int{2, 3})
	be.True(t, PtrTo(typ.Elem).Equal(PtrTo(ArrayOf(I32, 3))))
	be.True(t, !PtrTo(typ.Elem).Equal(PtrTo(ArrayOf(I32, 4))))
	be.True(t, Unit.Equal(nil))
	be.Equal(t, (&Type{Kind: KindFunc, Params: []*Type{I32, PtrTo(I32)}, Ret: I32}).String(), "(i32, *i32): i32")
}

func TestUsersTrackInstructions(t *testing.T) {
	prog := NewProgram()
	fn := sumTo(prog)
	acc := fn.Entry().Instrs[0]
	be.Equal(t, len(acc.UsedBy()), 4)

	st := acc.UsedBy()[0]
	st.Remove()
	be.Equal(t, len(acc.UsedBy()), 3)
	be.True(t, st.Block == nil)
}

func TestRemoveDeadSlots(t *testing.T) {
	prog := NewProgram()
	fn := prog.NewFunc("main", nil, I32)
	entry := fn.NewBlock("entry")
	fn.Place(entry)
	dead := fn.InsertAlloc("unused_1", I32)
	live := fn.InsertAlloc("x_1", I32)
	entry.Append(Store(&Const{Value: 1}, dead))
	v := entry.Append(named("%0", Binary(OpAdd, &Const{Value: 2}, &Const{Value: 3})))
	entry.Append(Store(v, dead))
	entry.Append(Store(v, live))
	entry.Append(Return(entry.Append(named("%1", Load(live)))))

	be.Equal(t, RemoveDeadSlots(fn), 1)
	text := PrintFunc(fn)
	be.True(t, !strings.Contains(text, "unused_1"))
	be.True(t, strings.Contains(text, "%0 = add 2, 3"))
	be.True(t, strings.Contains(text, "store %0, @x_1"))

	// The pass keeps its alloc bookkeeping straight.
	fn.InsertAlloc("y_1", I32)
	be.Equal(t, entry.Instrs[1].Name, "@y_1")
	be.Equal(t, RemoveDeadSlots(fn), 1)
}

func TestRemoveDeadSlotsKeepsEscapingSlots(t *testing.T) {
	prog := NewProgram()
	putarray := prog.NewDecl("putarray", []*Type{I32, PtrTo(I32)}, Unit)
	fn := prog.NewFunc("main", nil, I32)
	entry := fn.NewBlock("entry")
	fn.Place(entry)
	arr := fn.InsertAlloc("a_1", ArrayOf(I32, 2))
	p := entry.Append(named("%0", GetElemPtr(arr, &Const{Value: 0})))
	entry.Append(Store(&Const{Value: 5}, p))
	entry.Append(Call(putarray, []Value{&Const{Value: 1}, p}))
	entry.Append(Return(&Const{Value: 0}))

	be.Equal(t, RemoveDeadSlots(fn), 0)
}

func TestRun(t *testing.T) {
	prog := NewProgram()
	putint := prog.NewDecl("putint", []*Type{I32}, Unit)
	getint := prog.NewDecl("getint", nil, I32)
	sum := sumTo(prog)

	fn := prog.NewFunc("main", nil, I32)
	entry := fn.NewBlock("entry")
	fn.Place(entry)
	n := entry.Append(named("%7", Call(getint, nil)))
	r := entry.Append(named("%8", Call(sum, []Value{n})))
	entry.Append(Call(putint, []Value{r}))
	entry.Append(Return(r))

	var out bytes.Buffer
	v, err := Run(prog, RunOptions{Stdin: strings.NewReader("10"), Stdout: &out})
	be.Err(t, err, nil)
	be.Equal(t, v, int32(55))
	be.Equal(t, out.String(), "55")
}

func TestRunGlobalsAndPointers(t *testing.T) {
	prog := NewProgram()
	typ := ArrayType(I32, []int{2, 2})
	g := prog.NewGlobal("g_0", typ, FlatAggregate(typ, []int32{1, 2, 3, 4}))

	fn := prog.NewFunc("main", nil, I32)
	entry := fn.NewBlock("entry")
	fn.Place(entry)
	row := entry.Append(named("%0", GetElemPtr(g, &Const{Value: 1})))
	first := entry.Append(named("%1", GetElemPtr(row, &Const{Value: 0})))
	next := entry.Append(named("%2", GetPtr(first, &Const{Value: 1})))
	entry.Append(Return(entry.Append(named("%3", Load(next)))))

	v, err := Run(prog, RunOptions{})
	be.Err(t, err, nil)
	be.Equal(t, v, int32(4))
}

func TestRunTraps(t *testing.T) {
	build := func(op Op, r int32) *Program {
		prog := NewProgram()
		fn := prog.NewFunc("main", nil, I32)
		entry := fn.NewBlock("entry")
		fn.Place(entry)
		entry.Append(Return(entry.Append(named("%0", Binary(op, &Const{Value: 7}, &Const{Value: r})))))
		return prog
	}
	_, err := Run(build(OpMod, 0), RunOptions{})
	be.True(t, errors.Is(err, ErrTrap))
	_, err = Run(build(OpDiv, 0), RunOptions{})
	be.True(t, errors.Is(err, ErrTrap))
	v, err := Run(build(OpDiv, 2), RunOptions{})
	be.Err(t, err, nil)
	be.Equal(t, v, int32(3))

	_, err = Run(NewProgram(), RunOptions{})
	be.True(t, err != nil)
}

func TestRunStepLimit(t *testing.T) {
	prog := NewProgram()
	fn := prog.NewFunc("main", nil, I32)
	entry := fn.NewBlock("entry")
	fn.Place(entry)
	entry.Append(Jump(entry))

	_, err := Run(prog, RunOptions{MaxSteps: 1000})
	be.True(t, errors.Is(err, ErrStepLimit))
}

func TestLibrary(t *testing.T) {
	be.True(t, IsLibrary("getarray"))
	be.True(t, !IsLibrary("main"))

	prog := NewProgram()
	DeclareLibrary(prog)
	be.Equal(t, len(prog.Funcs), len(Library))
	for _, fn := range prog.Funcs {
		be.True(t, fn.IsDecl)
	}
	be.True(t, strings.HasPrefix(Print(prog), "decl @getint(): i32\n"))
}
