package riscv

import (
	"fmt"

	"github.com/xplshn/gsc/pkg/ir"
)

type borrowEntry struct {
	reg        string
	generation int
}

// Guard is a temporary register lent out for the lowering of one
// instruction. Release must be called in the reverse order of borrowing;
// deferring it right after the borrow gives that order for free. A guard
// standing in for a spilled result writes the register back to the value's
// slot on release.
type Guard struct {
	g          *funcGen
	Reg        string
	generation int
	value      ir.Value
	writeBack  int
	released   bool
}

func (g *funcGen) borrow(v ir.Value, writeBack int) *Guard {
	if len(g.free) == 0 {
		panic(genError{fmt.Errorf("function '%s': %w", g.fn.Name, ErrBorrowExhausted)})
	}
	reg := g.free[len(g.free)-1]
	g.free = g.free[:len(g.free)-1]
	g.generation++

	gd := &Guard{g: g, Reg: reg, generation: g.generation, value: v, writeBack: writeBack}
	g.borrowed = append(g.borrowed, gd)
	if v != nil {
		g.queues[v] = append(g.queues[v], borrowEntry{reg: reg, generation: g.generation})
	}
	return gd
}

// scratch borrows a register that mirrors no value.
func (g *funcGen) scratch() *Guard { return g.borrow(nil, -1) }

// Release returns the register. It is a no-op on a nil guard, which stands
// for an operand that already lived in a register.
func (gd *Guard) Release() {
	if gd == nil || gd.released {
		return
	}
	g := gd.g
	if top := g.borrowed[len(g.borrowed)-1]; top != gd {
		g.fail("%s (generation %d) released while %s (generation %d) is still borrowed", gd.Reg, gd.generation, top.Reg, top.generation)
	}
	gd.released = true
	g.borrowed = g.borrowed[:len(g.borrowed)-1]

	if gd.writeBack >= 0 {
		g.spMem("sw", gd.Reg, gd.writeBack)
	}
	if gd.value != nil {
		q := g.queues[gd.value]
		if len(q) == 1 {
			delete(g.queues, gd.value)
		} else {
			g.queues[gd.value] = q[:len(q)-1]
		}
	}
	g.free = append(g.free, gd.Reg)
}

// current returns the register already borrowed for v by the instruction
// being lowered, if any.
func (g *funcGen) current(v ir.Value) (string, bool) {
	q := g.queues[v]
	if len(q) == 0 {
		return "", false
	}
	return q[len(q)-1].reg, true
}
