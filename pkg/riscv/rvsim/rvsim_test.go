package rvsim

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func run(t *testing.T, src, stdin string, check bool) (int32, string, error) {
	t.Helper()
	var out bytes.Buffer
	v, err := Run(src, Options{
		Stdin:            strings.NewReader(stdin),
		Stdout:           &out,
		MaxSteps:         100_000,
		CheckCalleeSaved: check,
	})
	return v, out.String(), err
}

func TestArithmetic(t *testing.T) {
	src := `
  .text
  .globl main
main:
  li t0, 17
  li t1, 5
  div t2, t0, t1
  rem t3, t0, t1
  mul t2, t2, t1
  add a0, t2, t3
  addi a0, a0, -2047
  addi a0, a0, 2047
  ret
`
	v, _, err := run(t, src, "", false)
	be.Err(t, err, nil)
	be.Equal(t, v, int32(17))
}

func TestComparisons(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int32
	}{
		{"slt", "li t0, -1\n li t1, 1\n slt a0, t0, t1", 1},
		{"sltu", "li t0, -1\n li t1, 1\n sltu a0, t0, t1", 0},
		{"seqz", "li t0, 0\n seqz a0, t0", 1},
		{"snez", "li t0, 9\n snez a0, t0", 1},
		{"xor", "li t0, 6\n li t1, 3\n xor a0, t0, t1", 5},
		{"or", "li t0, 6\n li t1, 3\n or a0, t0, t1", 7},
		{"neg", "li t0, 6\n neg a0, t0", -6},
		{"div by zero", "li t0, 6\n div a0, t0, zero", -1},
		{"rem by zero", "li t0, 6\n rem a0, t0, zero", 6},
		{"zero is hardwired", "li zero, 4\n mv a0, zero", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, err := run(t, "main:\n "+tt.body+"\n ret\n", "", false)
			be.Err(t, err, nil)
			be.Equal(t, v, tt.want)
		})
	}
}

func TestDataAndBranches(t *testing.T) {
	src := `
  .data
  .globl tbl
tbl:
  .word 3
  .word 4
  .zero 8

  .text
  .globl main
main:
  la t0, tbl
  lw t1, 0(t0)
  lw t2, 4(t0)
  li a0, 0
loop:
  bnez t1, body
  j done
body:
  add a0, a0, t2
  addi t1, t1, -1
  j loop
done:
  sw a0, 12(t0)
  lw a0, 12(t0)
  ret
`
	v, _, err := run(t, src, "", false)
	be.Err(t, err, nil)
	be.Equal(t, v, int32(12))
}

func TestCallsAndLibrary(t *testing.T) {
	src := `
  .text
  .globl twice
twice:
  add a0, a0, a0
  ret

  .globl main
main:
  addi sp, sp, -16
  sw ra, 12(sp)
  sw s1, 8(sp)
  call getint
  call twice
  mv s1, a0
  call putint
  li a0, 10
  call putch
  mv a0, s1
  lw s1, 8(sp)
  lw ra, 12(sp)
  addi sp, sp, 16
  ret
`
	v, out, err := run(t, src, "21", true)
	be.Err(t, err, nil)
	be.Equal(t, v, int32(42))
	be.Equal(t, out, "42\n")
}

func TestArrayLibrary(t *testing.T) {
	src := `
main:
  addi sp, sp, -32
  sw ra, 28(sp)
  mv a0, sp
  call getarray
  mv a1, sp
  call putarray
  lw a0, 8(sp)
  lw ra, 28(sp)
  addi sp, sp, 32
  ret
`
	v, out, err := run(t, src, "3\n5 6 7\n", false)
	be.Err(t, err, nil)
	be.Equal(t, v, int32(7))
	be.Equal(t, out, "3: 5 6 7\n")
}

func TestLibraryPoisonsTemporaries(t *testing.T) {
	src := `
main:
  addi sp, sp, -16
  sw ra, 12(sp)
  li t0, 5
  call starttime
  mv a0, t0
  lw ra, 12(sp)
  addi sp, sp, 16
  ret
`
	v, _, err := run(t, src, "", false)
	be.Err(t, err, nil)
	be.True(t, v != 5)
}

func TestClobberedCalleeSaved(t *testing.T) {
	src := `
bad:
  li s3, 99
  ret
main:
  addi sp, sp, -16
  sw ra, 12(sp)
  call bad
  lw ra, 12(sp)
  addi sp, sp, 16
  ret
`
	_, _, err := run(t, src, "", true)
	be.True(t, errors.Is(err, ErrClobbered))

	_, _, err = run(t, src, "", false)
	be.Err(t, err, nil)
}

func TestTraps(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"offset out of range", "main:\n lw a0, 4096(sp)\n ret\n"},
		{"immediate out of range", "main:\n addi a0, a0, 4096\n ret\n"},
		{"misaligned load", "main:\n li t0, 4098\n lw a0, 0(t0)\n ret\n"},
		{"null store", "main:\n sw a0, 0(zero)\n ret\n"},
		{"unknown register", "main:\n mv a0, q9\n ret\n"},
		{"undefined label", "main:\n j nowhere\n"},
		{"undefined function", "main:\n call nothing\n ret\n"},
		{"unsupported", "main:\n ecall\n"},
		{"falls off the end", "main:\n li a0, 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.src, "", false)
			be.True(t, errors.Is(err, ErrTrap))
		})
	}
}

func TestStepLimit(t *testing.T) {
	_, _, err := run(t, "main:\nspin:\n j spin\n", "", false)
	be.True(t, errors.Is(err, ErrStepLimit))
}

func TestAssembleErrors(t *testing.T) {
	for _, src := range []string{
		"main:\nmain:\n ret\n",
		" .data\nx:\n .word nope\n",
		" .data\nx:\n add a0, a0, a0\n",
		"f:\n ret\n",
	} {
		_, _, err := run(t, src, "", false)
		be.True(t, err != nil)
	}
}
