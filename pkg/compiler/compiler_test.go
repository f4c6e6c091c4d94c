package compiler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/riscv/rvsim"
)

const program = `
(unit
  (const N 5)
  (var table (dims N) (list 1 1 2 3 5))
  (func int total (param a (ptr)) (param n) (block
    (var i 0)
    (var s 0)
    (var unused 9)
    (while (< i n)
      (block
        (= s (+ s (index a i)))
        (= i (+ i 1))))
    (return s)))
  (func int main (block
    (var local (dims 3) (list 4 5 6))
    (return (+ (call total table N) (call total local 3))))))`

func TestCompileRuns(t *testing.T) {
	res, err := CompileSource([]rune(program), -1, config.NewConfig(), Options{Emit: EmitRISCV})
	be.Err(t, err, nil)

	v, err := ir.Run(res.Program, ir.RunOptions{})
	be.Err(t, err, nil)
	be.Equal(t, v, int32(27))

	v, err = rvsim.Run(res.Output, rvsim.Options{CheckCalleeSaved: true})
	be.Err(t, err, nil)
	be.Equal(t, v, int32(27))
}

func TestDeadSlots(t *testing.T) {
	res, err := CompileSource([]rune(program), -1, config.NewConfig(), Options{})
	be.Err(t, err, nil)
	be.Equal(t, res.DeadSlots, 1)
	be.True(t, !strings.Contains(res.Koopa, "@unused"))

	cfg := config.NewConfig()
	cfg.ProcessDirectiveFlags("-Fno-dead-store-elim")
	res, err = CompileSource([]rune(program), -1, cfg, Options{})
	be.Err(t, err, nil)
	be.Equal(t, res.DeadSlots, 0)
	be.True(t, strings.Contains(res.Koopa, "@unused_1 = alloc i32"))
}

func TestEmitKoopa(t *testing.T) {
	res, err := CompileSource([]rune(program), -1, config.NewConfig(), Options{Emit: EmitKoopa})
	be.Err(t, err, nil)
	be.Equal(t, res.Output, res.Koopa)
	be.True(t, res.Frames == nil)
}

func TestFingerprintStable(t *testing.T) {
	var prints []uint64
	for _, jobs := range []int{1, 2, 8, 1} {
		cfg := config.NewConfig()
		cfg.Jobs = jobs
		res, err := CompileSource([]rune(program), -1, cfg, Options{Emit: EmitRISCV})
		be.Err(t, err, nil)
		prints = append(prints, res.Fingerprint)
	}
	for _, p := range prints[1:] {
		be.Equal(t, p, prints[0])
	}
}

func TestPlacementHints(t *testing.T) {
	res, err := CompileSource([]rune(program), -1, config.NewConfig(), Options{Emit: EmitRISCV})
	be.Err(t, err, nil)

	local, ok := res.Scopes.ByUnique("local_3")
	be.True(t, ok)
	be.Equal(t, local.Hint, res.Frames["main"].Slots()["local_3"])
	be.True(t, strings.HasSuffix(local.Hint, "(sp)"))

	table, ok := res.Scopes.ByUnique("table_0")
	be.True(t, ok)
	be.Equal(t, table.Hint, "")
}

func TestCounters(t *testing.T) {
	res, err := CompileSource([]rune(program), -1, config.NewConfig(), Options{})
	be.Err(t, err, nil)
	be.Equal(t, res.Branches, 1)
	be.True(t, res.Regs > 0)
}

func TestProgress(t *testing.T) {
	var stages bytes.Buffer
	_, err := CompileSource([]rune(program), -1, config.NewConfig(), Options{
		Emit:     EmitRISCV,
		Progress: func(s string) { stages.WriteString(s + "\n") },
	})
	be.Err(t, err, nil)
	be.Equal(t, stages.String(), "Reading AST...\nType checking...\nCreating intermediate representation...\nGenerating riscv...\n")
}

func TestCompileErrorsAbortTheUnit(t *testing.T) {
	for _, src := range []string{
		`(unit (func int main (block (return x))))`,
		`(unit (func int main (block (return (/ 1 0)))))`,
		`(unit (func int main (block (return 0)))`,
	} {
		res, err := CompileSource([]rune(src), -1, config.NewConfig(), Options{})
		be.True(t, err != nil)
		be.True(t, res == nil)
	}
}

func TestParseEmit(t *testing.T) {
	for in, want := range map[string]Emit{"koopa": EmitKoopa, "ir": EmitKoopa, "riscv": EmitRISCV, "asm": EmitRISCV, "": EmitRISCV} {
		got, err := ParseEmit(in)
		be.Err(t, err, nil)
		be.Equal(t, got, want)
	}
	_, err := ParseEmit("x86")
	be.True(t, err != nil)
	be.Equal(t, EmitKoopa.String(), "koopa")
}
