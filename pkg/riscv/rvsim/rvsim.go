// Package rvsim executes the subset of RV32IM assembly text that the riscv
// package emits. Runtime library calls are served natively; everything else
// runs instruction by instruction over a flat little memory.
package rvsim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrStepLimit = errors.New("step limit exceeded")
	ErrTrap      = errors.New("machine trap")
	// ErrClobbered reports a callee that returned with a callee-saved
	// register or sp different from its value at the call.
	ErrClobbered = errors.New("callee-saved register clobbered")
)

const (
	dataBase    = 0x1000
	retSentinel = -1
)

var regNames = []string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var regIndex = func() map[string]int {
	m := map[string]int{"fp": 8}
	for i, n := range regNames {
		m[n] = i
		m["x"+strconv.Itoa(i)] = i
	}
	return m
}()

// calleeSaved are the registers a callee must restore, sp included.
var calleeSaved = [...]int{2, 8, 9, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27}

type Options struct {
	Stdin    io.Reader
	Stdout   io.Writer
	MaxSteps int
	MemBytes int
	// CheckCalleeSaved verifies on every return that the callee restored sp
	// and s0..s11.
	CheckCalleeSaved bool
}

type instr struct {
	op   string
	args []string
	line int
}

type program struct {
	text   []instr
	labels map[string]int
	data   map[string]int32
	image  []byte
}

// Run assembles src, calls main and returns the value it leaves in a0.
func Run(src string, opts Options) (int32, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.MemBytes == 0 {
		opts.MemBytes = 16 << 20
	}
	prog, err := assemble(src)
	if err != nil {
		return 0, err
	}
	entry, ok := prog.labels["main"]
	if !ok {
		return 0, errors.New("no label 'main' in the text section")
	}
	if dataBase+len(prog.image) >= opts.MemBytes {
		return 0, fmt.Errorf("%w: data section does not fit in memory", ErrTrap)
	}

	m := &machine{
		prog:   prog,
		mem:    make([]byte, opts.MemBytes),
		in:     bufio.NewReader(opts.Stdin),
		out:    opts.Stdout,
		opts:   opts,
		heapLo: int32(dataBase + len(prog.image)),
	}
	copy(m.mem[dataBase:], prog.image)
	m.regs[2] = int32(opts.MemBytes)
	m.regs[1] = retSentinel
	return m.run(entry)
}

func assemble(src string) (*program, error) {
	p := &program{labels: make(map[string]int), data: make(map[string]int32)}
	inData := false

	for n, raw := range strings.Split(src, "\n") {
		line := raw
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			name := strings.TrimSuffix(line, ":")
			if inData {
				if _, dup := p.data[name]; dup {
					return nil, fmt.Errorf("line %d: duplicate label '%s'", n+1, name)
				}
				p.data[name] = int32(dataBase + len(p.image))
			} else {
				if _, dup := p.labels[name]; dup {
					return nil, fmt.Errorf("line %d: duplicate label '%s'", n+1, name)
				}
				p.labels[name] = len(p.text)
			}
			continue
		}

		op, rest, _ := strings.Cut(line, " ")
		var args []string
		if rest = strings.TrimSpace(rest); rest != "" {
			for _, a := range strings.Split(rest, ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		switch op {
		case ".data":
			inData = true
		case ".text":
			inData = false
		case ".globl", ".align", ".p2align", ".section":
		case ".word":
			for _, a := range args {
				v, err := parseImm(a)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", n+1, err)
				}
				p.image = append(p.image, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			}
		case ".zero":
			v, err := parseImm(args[0])
			if err != nil || v < 0 {
				return nil, fmt.Errorf("line %d: bad .zero size %q", n+1, args[0])
			}
			p.image = append(p.image, make([]byte, v)...)
		default:
			if inData {
				return nil, fmt.Errorf("line %d: instruction '%s' in the data section", n+1, op)
			}
			p.text = append(p.text, instr{op: op, args: args, line: n + 1})
		}
	}
	return p, nil
}

func parseImm(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil || v < -1<<31 || v > 1<<32-1 {
		return 0, fmt.Errorf("bad immediate %q", s)
	}
	return int32(v), nil
}

type savedRegs struct {
	ret  int32
	regs [len(calleeSaved)]int32
}

type machine struct {
	prog   *program
	regs   [32]int32
	mem    []byte
	in     *bufio.Reader
	out    io.Writer
	opts   Options
	heapLo int32
	calls  []savedRegs
	steps  int
}

func (m *machine) trap(in instr, format string, args ...interface{}) error {
	return fmt.Errorf("%w at line %d (%s): %s", ErrTrap, in.line, in.op, fmt.Sprintf(format, args...))
}

func (m *machine) reg(in instr, name string) (int, error) {
	r, ok := regIndex[name]
	if !ok {
		return 0, m.trap(in, "unknown register '%s'", name)
	}
	return r, nil
}

func (m *machine) set(r int, v int32) {
	if r != 0 {
		m.regs[r] = v
	}
}

func (m *machine) load(in instr, addr int32) (int32, error) {
	if addr%4 != 0 || addr < dataBase || int(addr)+4 > len(m.mem) {
		return 0, m.trap(in, "bad load address %#x", addr)
	}
	b := m.mem[addr:]
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24), nil
}

func (m *machine) store(in instr, addr, v int32) error {
	if addr%4 != 0 || addr < dataBase || int(addr)+4 > len(m.mem) {
		return m.trap(in, "bad store address %#x", addr)
	}
	b := m.mem[addr:]
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	return nil
}

// memOperand splits "off(base)".
func (m *machine) memOperand(in instr, s string) (int32, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, m.trap(in, "bad memory operand %q", s)
	}
	off := int32(0)
	if open > 0 {
		v, err := parseImm(s[:open])
		if err != nil {
			return 0, m.trap(in, "%v", err)
		}
		if v < -2048 || v > 2047 {
			return 0, m.trap(in, "offset %d out of 12-bit range", v)
		}
		off = v
	}
	base, err := m.reg(in, s[open+1:len(s)-1])
	if err != nil {
		return 0, err
	}
	return m.regs[base] + off, nil
}
