package ir

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrStepLimit = errors.New("step limit exceeded")
	ErrTrap      = errors.New("runtime trap")
)

const dataBase = 0x1000

type RunOptions struct {
	Stdin    io.Reader
	Stdout   io.Writer
	MaxSteps int
	MemWords int
}

type machine struct {
	prog     *Program
	mem      []int32
	sp       int32
	heapEnd  int32
	globals  map[*Global]int32
	in       *bufio.Reader
	out      io.Writer
	steps    int
	maxSteps int
}

// Run interprets prog starting at main and returns main's result. Pointers
// are byte addresses into one flat word-addressed memory; the stack grows
// down from its top.
func Run(prog *Program, opts RunOptions) (int32, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.MemWords == 0 {
		opts.MemWords = 1 << 22
	}
	m := &machine{
		prog:     prog,
		mem:      make([]int32, opts.MemWords),
		globals:  make(map[*Global]int32),
		in:       bufio.NewReader(opts.Stdin),
		out:      opts.Stdout,
		maxSteps: opts.MaxSteps,
	}
	m.sp = int32(opts.MemWords * 4)

	addr := int32(dataBase)
	for _, g := range prog.Globals {
		m.globals[g] = addr
		m.writeInit(addr, g.Init)
		addr += int32(g.Alloc.Size())
	}
	m.heapEnd = addr
	if m.heapEnd >= m.sp {
		return 0, fmt.Errorf("%w: globals do not fit in memory", ErrTrap)
	}

	main := prog.FindFunc("main")
	if main == nil || main.IsDecl {
		return 0, errors.New("no function 'main' to run")
	}
	return m.call(main, nil)
}

func (m *machine) writeInit(addr int32, init Value) {
	switch v := init.(type) {
	case *Const:
		m.mem[addr/4] = v.Value
	case *Aggregate:
		for _, e := range v.Elems {
			m.writeInit(addr, e)
			addr += int32(e.Type().Size())
		}
	}
}

func (m *machine) load(addr int32) (int32, error) {
	if addr%4 != 0 || addr < dataBase || int(addr/4) >= len(m.mem) {
		return 0, fmt.Errorf("%w: bad load address %#x", ErrTrap, addr)
	}
	return m.mem[addr/4], nil
}

func (m *machine) store(addr, v int32) error {
	if addr%4 != 0 || addr < dataBase || int(addr/4) >= len(m.mem) {
		return fmt.Errorf("%w: bad store address %#x", ErrTrap, addr)
	}
	m.mem[addr/4] = v
	return nil
}

type frame struct {
	args []int32
	vals map[*Instruction]int32
}

func (m *machine) value(f *frame, v Value) int32 {
	switch x := v.(type) {
	case *Const:
		return x.Value
	case *FuncArg:
		return f.args[x.Index]
	case *Global:
		return m.globals[x]
	case *Instruction:
		return f.vals[x]
	}
	return 0
}

func (m *machine) call(fn *Func, args []int32) (int32, error) {
	if fn.IsDecl {
		return m.library(fn.Name, args)
	}
	savedSP := m.sp
	defer func() { m.sp = savedSP }()

	f := &frame{args: args, vals: make(map[*Instruction]int32)}
	bb := fn.Entry()
	for {
		var next *BasicBlock
		for _, inst := range bb.Instrs {
			m.steps++
			if m.maxSteps > 0 && m.steps > m.maxSteps {
				return 0, ErrStepLimit
			}
			switch inst.Op {
			case OpAlloc:
				m.sp -= int32(inst.Alloc.Size())
				if m.sp <= m.heapEnd {
					return 0, fmt.Errorf("%w: stack overflow in '%s'", ErrTrap, fn.Name)
				}
				for a := m.sp; a < m.sp+int32(inst.Alloc.Size()); a += 4 {
					m.mem[a/4] = 0
				}
				f.vals[inst] = m.sp
			case OpLoad:
				v, err := m.load(m.value(f, inst.Args[0]))
				if err != nil {
					return 0, err
				}
				f.vals[inst] = v
			case OpStore:
				if err := m.store(m.value(f, inst.Args[1]), m.value(f, inst.Args[0])); err != nil {
					return 0, err
				}
			case OpGetElemPtr:
				stride := int32(inst.Args[0].Type().Elem.Elem.Size())
				f.vals[inst] = m.value(f, inst.Args[0]) + m.value(f, inst.Args[1])*stride
			case OpGetPtr:
				stride := int32(inst.Args[0].Type().Elem.Size())
				f.vals[inst] = m.value(f, inst.Args[0]) + m.value(f, inst.Args[1])*stride
			case OpBranch:
				if m.value(f, inst.Args[0]) != 0 {
					next = inst.Targets[0]
				} else {
					next = inst.Targets[1]
				}
			case OpJump:
				next = inst.Targets[0]
			case OpCall:
				callArgs := make([]int32, len(inst.Args))
				for i, a := range inst.Args {
					callArgs[i] = m.value(f, a)
				}
				v, err := m.call(inst.Callee, callArgs)
				if err != nil {
					return 0, err
				}
				f.vals[inst] = v
			case OpReturn:
				if len(inst.Args) == 0 {
					return 0, nil
				}
				return m.value(f, inst.Args[0]), nil
			default:
				v, err := evalBinary(inst.Op, m.value(f, inst.Args[0]), m.value(f, inst.Args[1]))
				if err != nil {
					return 0, fmt.Errorf("%w in '%s'", err, fn.Name)
				}
				f.vals[inst] = v
			}
			if next != nil {
				break
			}
		}
		if next == nil {
			return 0, fmt.Errorf("%w: block '%s' of '%s' falls off its end", ErrTrap, bb.Name, fn.Name)
		}
		bb = next
	}
}

func evalBinary(op Op, l, r int32) (int32, error) {
	b := func(c bool) int32 {
		if c {
			return 1
		}
		return 0
	}
	switch op {
	case OpAdd:
		return l + r, nil
	case OpSub:
		return l - r, nil
	case OpMul:
		return l * r, nil
	case OpDiv, OpMod:
		if r == 0 {
			return 0, fmt.Errorf("%w: division by zero", ErrTrap)
		}
		if op == OpDiv {
			return l / r, nil
		}
		return l % r, nil
	case OpEq:
		return b(l == r), nil
	case OpNe:
		return b(l != r), nil
	case OpLt:
		return b(l < r), nil
	case OpGt:
		return b(l > r), nil
	case OpLe:
		return b(l <= r), nil
	case OpGe:
		return b(l >= r), nil
	}
	return 0, fmt.Errorf("%w: unknown operator %s", ErrTrap, op)
}

func (m *machine) readInt() int32 {
	var n int32
	if _, err := fmt.Fscan(m.in, &n); err != nil {
		return 0
	}
	return n
}

func (m *machine) library(name string, args []int32) (int32, error) {
	switch name {
	case "getint":
		return m.readInt(), nil
	case "getch":
		c, err := m.in.ReadByte()
		if err != nil {
			return -1, nil
		}
		return int32(c), nil
	case "getarray":
		n := m.readInt()
		for i := int32(0); i < n; i++ {
			if err := m.store(args[0]+4*i, m.readInt()); err != nil {
				return 0, err
			}
		}
		return n, nil
	case "putint":
		fmt.Fprintf(m.out, "%d", args[0])
	case "putch":
		m.out.Write([]byte{byte(args[0])})
	case "putarray":
		fmt.Fprintf(m.out, "%d:", args[0])
		for i := int32(0); i < args[0]; i++ {
			v, err := m.load(args[1] + 4*i)
			if err != nil {
				return 0, err
			}
			fmt.Fprintf(m.out, " %d", v)
		}
		fmt.Fprintln(m.out)
	case "starttime", "stoptime":
	default:
		return 0, fmt.Errorf("%w: call to undefined function '%s'", ErrTrap, name)
	}
	return 0, nil
}
