package rvsim

import (
	"fmt"
)

func (m *machine) run(pc int) (int32, error) {
	for {
		if pc == retSentinel {
			return m.regs[10], nil
		}
		if pc < 0 || pc >= len(m.prog.text) {
			return 0, fmt.Errorf("%w: pc %d outside the text section", ErrTrap, pc)
		}
		m.steps++
		if m.opts.MaxSteps > 0 && m.steps > m.opts.MaxSteps {
			return 0, ErrStepLimit
		}
		next, err := m.step(pc, m.prog.text[pc])
		if err != nil {
			return 0, err
		}
		pc = next
	}
}

func (m *machine) regs3(in instr) (rd, rs1, rs2 int, err error) {
	if len(in.args) != 3 {
		return 0, 0, 0, m.trap(in, "want 3 operands, got %d", len(in.args))
	}
	if rd, err = m.reg(in, in.args[0]); err != nil {
		return
	}
	if rs1, err = m.reg(in, in.args[1]); err != nil {
		return
	}
	rs2, err = m.reg(in, in.args[2])
	return
}

func (m *machine) regs2(in instr) (rd, rs int, err error) {
	if len(in.args) != 2 {
		return 0, 0, m.trap(in, "want 2 operands, got %d", len(in.args))
	}
	if rd, err = m.reg(in, in.args[0]); err != nil {
		return
	}
	rs, err = m.reg(in, in.args[1])
	return
}

func (m *machine) target(in instr, label string) (int, error) {
	pc, ok := m.prog.labels[label]
	if !ok {
		return 0, m.trap(in, "undefined label '%s'", label)
	}
	return pc, nil
}

func b2i(c bool) int32 {
	if c {
		return 1
	}
	return 0
}

// step executes one instruction and returns the next pc.
func (m *machine) step(pc int, in instr) (int, error) {
	next := pc + 1
	switch in.op {
	case "add", "sub", "mul", "div", "rem", "xor", "or", "and", "slt", "sltu":
		rd, rs1, rs2, err := m.regs3(in)
		if err != nil {
			return 0, err
		}
		a, b := m.regs[rs1], m.regs[rs2]
		var v int32
		switch in.op {
		case "add":
			v = a + b
		case "sub":
			v = a - b
		case "mul":
			v = a * b
		case "div":
			switch {
			case b == 0:
				v = -1
			default:
				v = a / b
			}
		case "rem":
			switch {
			case b == 0:
				v = a
			default:
				v = a % b
			}
		case "xor":
			v = a ^ b
		case "or":
			v = a | b
		case "and":
			v = a & b
		case "slt":
			v = b2i(a < b)
		case "sltu":
			v = b2i(uint32(a) < uint32(b))
		}
		m.set(rd, v)

	case "addi", "xori", "andi", "ori", "slti":
		if len(in.args) != 3 {
			return 0, m.trap(in, "want 3 operands")
		}
		rd, err := m.reg(in, in.args[0])
		if err != nil {
			return 0, err
		}
		rs, err := m.reg(in, in.args[1])
		if err != nil {
			return 0, err
		}
		imm, err := parseImm(in.args[2])
		if err != nil || imm < -2048 || imm > 2047 {
			return 0, m.trap(in, "immediate %q out of 12-bit range", in.args[2])
		}
		a := m.regs[rs]
		switch in.op {
		case "addi":
			m.set(rd, a+imm)
		case "xori":
			m.set(rd, a^imm)
		case "andi":
			m.set(rd, a&imm)
		case "ori":
			m.set(rd, a|imm)
		case "slti":
			m.set(rd, b2i(a < imm))
		}

	case "seqz", "snez", "mv", "neg":
		rd, rs, err := m.regs2(in)
		if err != nil {
			return 0, err
		}
		a := m.regs[rs]
		switch in.op {
		case "seqz":
			m.set(rd, b2i(a == 0))
		case "snez":
			m.set(rd, b2i(a != 0))
		case "mv":
			m.set(rd, a)
		case "neg":
			m.set(rd, -a)
		}

	case "li":
		if len(in.args) != 2 {
			return 0, m.trap(in, "want 2 operands")
		}
		rd, err := m.reg(in, in.args[0])
		if err != nil {
			return 0, err
		}
		imm, err := parseImm(in.args[1])
		if err != nil {
			return 0, m.trap(in, "%v", err)
		}
		m.set(rd, imm)

	case "la":
		if len(in.args) != 2 {
			return 0, m.trap(in, "want 2 operands")
		}
		rd, err := m.reg(in, in.args[0])
		if err != nil {
			return 0, err
		}
		addr, ok := m.prog.data[in.args[1]]
		if !ok {
			return 0, m.trap(in, "undefined data label '%s'", in.args[1])
		}
		m.set(rd, addr)

	case "lw", "sw":
		if len(in.args) != 2 {
			return 0, m.trap(in, "want 2 operands")
		}
		r, err := m.reg(in, in.args[0])
		if err != nil {
			return 0, err
		}
		addr, err := m.memOperand(in, in.args[1])
		if err != nil {
			return 0, err
		}
		if in.op == "lw" {
			v, err := m.load(in, addr)
			if err != nil {
				return 0, err
			}
			m.set(r, v)
		} else if err := m.store(in, addr, m.regs[r]); err != nil {
			return 0, err
		}

	case "beqz", "bnez":
		if len(in.args) != 2 {
			return 0, m.trap(in, "want 2 operands")
		}
		r, err := m.reg(in, in.args[0])
		if err != nil {
			return 0, err
		}
		if (m.regs[r] == 0) == (in.op == "beqz") {
			return m.target(in, in.args[1])
		}

	case "j":
		if len(in.args) != 1 {
			return 0, m.trap(in, "want 1 operand")
		}
		return m.target(in, in.args[0])

	case "call":
		if len(in.args) != 1 {
			return 0, m.trap(in, "want 1 operand")
		}
		callee := in.args[0]
		if pc, ok := m.prog.labels[callee]; ok {
			m.regs[1] = int32(next)
			if m.opts.CheckCalleeSaved {
				m.pushSaved()
			}
			return pc, nil
		}
		if err := m.library(in, callee); err != nil {
			return 0, err
		}

	case "ret":
		if m.opts.CheckCalleeSaved && len(m.calls) > 0 {
			if err := m.popSaved(in); err != nil {
				return 0, err
			}
		}
		if m.regs[2] <= m.heapLo {
			return 0, m.trap(in, "stack overflow")
		}
		return int(m.regs[1]), nil

	default:
		return 0, m.trap(in, "unsupported instruction")
	}

	if m.regs[2] <= m.heapLo {
		return 0, m.trap(in, "stack overflow")
	}
	return next, nil
}

func (m *machine) pushSaved() {
	var s savedRegs
	s.ret = m.regs[1]
	for i, r := range calleeSaved {
		s.regs[i] = m.regs[r]
	}
	m.calls = append(m.calls, s)
}

func (m *machine) popSaved(in instr) error {
	s := m.calls[len(m.calls)-1]
	m.calls = m.calls[:len(m.calls)-1]
	for i, r := range calleeSaved {
		if m.regs[r] != s.regs[i] {
			return fmt.Errorf("%w: %s was %d at the call and %d at line %d", ErrClobbered, regNames[r], s.regs[i], m.regs[r], in.line)
		}
	}
	return nil
}

func (m *machine) readInt() int32 {
	var n int32
	if _, err := fmt.Fscan(m.in, &n); err != nil {
		return 0
	}
	return n
}

// library implements the runtime functions with the ilp32 convention.
func (m *machine) library(in instr, name string) error {
	a0, a1 := m.regs[10], m.regs[11]
	switch name {
	case "getint":
		m.regs[10] = m.readInt()
	case "getch":
		c, err := m.in.ReadByte()
		if err != nil {
			m.regs[10] = -1
		} else {
			m.regs[10] = int32(c)
		}
	case "getarray":
		n := m.readInt()
		for i := int32(0); i < n; i++ {
			if err := m.store(in, a0+4*i, m.readInt()); err != nil {
				return err
			}
		}
		m.regs[10] = n
	case "putint":
		fmt.Fprintf(m.out, "%d", a0)
	case "putch":
		m.out.Write([]byte{byte(a0)})
	case "putarray":
		fmt.Fprintf(m.out, "%d:", a0)
		for i := int32(0); i < a0; i++ {
			v, err := m.load(in, a1+4*i)
			if err != nil {
				return err
			}
			fmt.Fprintf(m.out, " %d", v)
		}
		fmt.Fprintln(m.out)
	case "starttime", "stoptime":
	default:
		return m.trap(in, "call to undefined function '%s'", name)
	}
	// Caller-saved temporaries are garbage after a library call.
	for _, r := range []int{5, 6, 7, 28, 29, 30, 31} {
		m.regs[r] = 0x5a5a5a5a
	}
	return nil
}
