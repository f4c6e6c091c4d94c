package ir

import (
	"fmt"
	"strings"
)

type printer struct {
	out *strings.Builder
}

// Print renders prog in the Koopa text form.
func Print(prog *Program) string {
	var sb strings.Builder
	p := &printer{out: &sb}
	p.gen(prog)
	return sb.String()
}

// PrintFunc renders a single function; handy in tests and diagnostics.
func PrintFunc(fn *Func) string {
	var sb strings.Builder
	p := &printer{out: &sb}
	p.genFunc(fn)
	return sb.String()
}

func (p *printer) gen(prog *Program) {
	hasDecl := false
	for _, fn := range prog.Funcs {
		if fn.IsDecl {
			p.genDecl(fn)
			hasDecl = true
		}
	}
	if hasDecl {
		p.out.WriteString("\n")
	}

	for _, g := range prog.Globals {
		fmt.Fprintf(p.out, "global %s = alloc %s, %s\n", g, g.Alloc, g.Init)
	}
	if len(prog.Globals) > 0 {
		p.out.WriteString("\n")
	}

	first := true
	for _, fn := range prog.Funcs {
		if fn.IsDecl {
			continue
		}
		if !first {
			p.out.WriteString("\n")
		}
		first = false
		p.genFunc(fn)
	}
}

func (p *printer) genDecl(fn *Func) {
	params := make([]string, len(fn.Params))
	for i, a := range fn.Params {
		params[i] = a.Typ.String()
	}
	fmt.Fprintf(p.out, "decl @%s(%s)", fn.Name, strings.Join(params, ", "))
	if !fn.Ret.IsUnit() {
		fmt.Fprintf(p.out, ": %s", fn.Ret)
	}
	p.out.WriteString("\n")
}

func (p *printer) genFunc(fn *Func) {
	params := make([]string, len(fn.Params))
	for i, a := range fn.Params {
		params[i] = fmt.Sprintf("%s: %s", a, a.Typ)
	}
	fmt.Fprintf(p.out, "fun @%s(%s)", fn.Name, strings.Join(params, ", "))
	if !fn.Ret.IsUnit() {
		fmt.Fprintf(p.out, ": %s", fn.Ret)
	}
	p.out.WriteString(" {\n")
	for _, b := range fn.Blocks {
		fmt.Fprintf(p.out, "%%%s:\n", b.Name)
		for _, inst := range b.Instrs {
			p.out.WriteString("  ")
			p.genInstr(inst)
			p.out.WriteString("\n")
		}
	}
	p.out.WriteString("}\n")
}

func (p *printer) genInstr(inst *Instruction) {
	if !inst.Typ.IsUnit() {
		fmt.Fprintf(p.out, "%s = ", inst.Name)
	}
	switch inst.Op {
	case OpAlloc:
		fmt.Fprintf(p.out, "alloc %s", inst.Alloc)
	case OpLoad:
		fmt.Fprintf(p.out, "load %s", inst.Args[0])
	case OpStore:
		fmt.Fprintf(p.out, "store %s, %s", inst.Args[0], inst.Args[1])
	case OpBranch:
		fmt.Fprintf(p.out, "br %s, %%%s, %%%s", inst.Args[0], inst.Targets[0].Name, inst.Targets[1].Name)
	case OpJump:
		fmt.Fprintf(p.out, "jump %%%s", inst.Targets[0].Name)
	case OpCall:
		args := make([]string, len(inst.Args))
		for i, a := range inst.Args {
			args[i] = a.String()
		}
		fmt.Fprintf(p.out, "call @%s(%s)", inst.Callee.Name, strings.Join(args, ", "))
	case OpReturn:
		p.out.WriteString("ret")
		if len(inst.Args) > 0 {
			fmt.Fprintf(p.out, " %s", inst.Args[0])
		}
	default:
		fmt.Fprintf(p.out, "%s %s, %s", inst.Op, inst.Args[0], inst.Args[1])
	}
}
