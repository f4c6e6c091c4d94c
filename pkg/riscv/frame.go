package riscv

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/regalloc"
	"github.com/xplshn/gsc/pkg/util"
)

// Frame is the stack layout of one function, offsets relative to sp after
// the prologue. From low to high addresses it holds the outgoing argument
// area, spill slots, stack allocations, the callee-saved registers and ra.
type Frame struct {
	Size    int
	OutArgs int
	Spills  map[*ir.Instruction]int
	Allocs  map[*ir.Instruction]int
	Saved   map[string]int
	SaveSeq []string
	HasCall bool
	RA      int
	Alloc   *regalloc.Allocation
}

// Layout sizes the frame of fn for the given allocation.
func Layout(fn *ir.Func, alloc *regalloc.Allocation, wordSize, stackAlign, argRegs int) *Frame {
	f := &Frame{
		Spills: make(map[*ir.Instruction]int),
		Allocs: make(map[*ir.Instruction]int),
		Saved:  make(map[string]int),
		RA:     -1,
		Alloc:  alloc,
	}

	maxArgs, hasCall := fn.MaxCallArgs()
	f.HasCall = hasCall
	if maxArgs > argRegs {
		f.OutArgs = (maxArgs - argRegs) * wordSize
	}

	off := f.OutArgs
	for _, v := range alloc.Spilled {
		if v.Typ.IsUnit() {
			continue
		}
		f.Spills[v] = off
		off += wordSize
	}
	if entry := fn.Entry(); entry != nil {
		for _, inst := range entry.Instrs {
			if inst.Op == ir.OpAlloc {
				f.Allocs[inst] = off
				off += inst.Alloc.Size()
			}
		}
	}
	for _, r := range alloc.Used {
		f.Saved[r] = off
		f.SaveSeq = append(f.SaveSeq, r)
		off += wordSize
	}
	if hasCall {
		off += wordSize
	}

	f.Size = int(util.AlignUp(int64(off), int64(stackAlign)))
	if hasCall {
		f.RA = f.Size - wordSize
	}
	return f
}

// Slots names the stack allocation of every alloc in the frame, keyed by the
// alloc's name without its sigil.
func (f *Frame) Slots() map[string]string {
	out := make(map[string]string, len(f.Allocs))
	for inst, off := range f.Allocs {
		out[strings.TrimPrefix(inst.Name, "@")] = fmt.Sprintf("%d(sp)", off)
	}
	return out
}

func (f *Frame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "frame %d bytes, out-args %d", f.Size, f.OutArgs)
	if f.RA >= 0 {
		fmt.Fprintf(&sb, ", ra at %d", f.RA)
	}
	slots := f.Slots()
	names := make([]string, 0, len(slots))
	for n := range slots {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&sb, "\n  %s: %s", n, slots[n])
	}
	if f.Alloc != nil {
		for _, line := range strings.Split(strings.TrimSuffix(f.Alloc.String(), "\n"), "\n") {
			if line != "" {
				fmt.Fprintf(&sb, "\n  %s", line)
			}
		}
	}
	return sb.String()
}
