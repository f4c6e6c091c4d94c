// Package regalloc computes live intervals over the layout order of a
// function and assigns physical registers to them with a greedy linear scan.
package regalloc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xplshn/gsc/pkg/ir"
)

// LiveInterval is the span of instruction positions over which a value must
// stay in its storage. End == Start means the value is never used.
type LiveInterval struct {
	Value *ir.Instruction
	Start int
	End   int
}

func (iv LiveInterval) String() string {
	return fmt.Sprintf("%s[%d,%d]", iv.Value.Name, iv.Start, iv.End)
}

// Overlaps reports whether the two intervals are live at a common point
// other than a shared boundary.
func (iv LiveInterval) Overlaps(o LiveInterval) bool {
	return iv.Start < o.End && o.Start < iv.End
}

// Intervals maps every value-producing instruction of a function to its
// interval. Order lists them by increasing start.
type Intervals struct {
	ByValue map[*ir.Instruction]LiveInterval
	Order   []LiveInterval
	// Positions numbers every instruction in layout order.
	Positions map[*ir.Instruction]int
}

// needsStorage reports whether inst yields a value the back end keeps in a
// register or spill slot. Allocs are frame addresses and never need one.
func needsStorage(inst *ir.Instruction) bool {
	return inst.Op != ir.OpAlloc && !inst.Typ.IsUnit()
}

// Analyze numbers the instructions of fn in one pass over its blocks in
// layout order. An interval ends at the furthest user.
func Analyze(fn *ir.Func) *Intervals {
	ivs := &Intervals{
		ByValue:   make(map[*ir.Instruction]LiveInterval),
		Positions: make(map[*ir.Instruction]int),
	}
	pos := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Instrs {
			ivs.Positions[inst] = pos
			pos++
		}
	}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instrs {
			if !needsStorage(inst) {
				continue
			}
			start := ivs.Positions[inst]
			iv := LiveInterval{Value: inst, Start: start, End: start}
			for _, u := range inst.UsedBy() {
				if p, ok := ivs.Positions[u]; ok && p > iv.End {
					iv.End = p
				}
			}
			ivs.ByValue[inst] = iv
			ivs.Order = append(ivs.Order, iv)
		}
	}
	sort.SliceStable(ivs.Order, func(i, j int) bool { return ivs.Order[i].Start < ivs.Order[j].Start })
	return ivs
}

// Allocation is the outcome of a linear scan. A value absent from Regs is
// spilled and lives in a stack slot.
type Allocation struct {
	Regs    map[*ir.Instruction]string
	Spilled []*ir.Instruction
	// Used lists each register that holds at least one value, in pool order.
	Used []string
}

// Reg returns the register assigned to v, if any.
func (a *Allocation) Reg(v *ir.Instruction) (string, bool) {
	r, ok := a.Regs[v]
	return r, ok
}

func (a *Allocation) String() string {
	var sb strings.Builder
	keys := make([]*ir.Instruction, 0, len(a.Regs))
	for v := range a.Regs {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	for _, v := range keys {
		fmt.Fprintf(&sb, "%s -> %s\n", v.Name, a.Regs[v])
	}
	for _, v := range a.Spilled {
		fmt.Fprintf(&sb, "%s -> spill\n", v.Name)
	}
	return sb.String()
}

// Allocate walks the intervals by increasing start. Before each value it
// returns to the pool every register whose interval ends at or before the
// value's start, so a register freed by the last use of an operand is
// available for the result of the same instruction. When the pool is empty
// the value is spilled.
func Allocate(ivs *Intervals, pool []string) *Allocation {
	a := &Allocation{Regs: make(map[*ir.Instruction]string)}

	free := make([]string, len(pool))
	for i, r := range pool {
		free[len(pool)-1-i] = r
	}
	used := make(map[string]bool)
	var active []LiveInterval

	for _, iv := range ivs.Order {
		expired := 0
		for _, act := range active {
			if act.End > iv.Start {
				break
			}
			free = append(free, a.Regs[act.Value])
			expired++
		}
		active = active[expired:]

		if len(free) == 0 {
			a.Spilled = append(a.Spilled, iv.Value)
			continue
		}
		reg := free[len(free)-1]
		free = free[:len(free)-1]
		a.Regs[iv.Value] = reg
		used[reg] = true

		active = append(active, iv)
		sort.SliceStable(active, func(i, j int) bool { return active[i].End < active[j].End })
	}

	for _, r := range pool {
		if used[r] {
			a.Used = append(a.Used, r)
		}
	}
	return a
}
