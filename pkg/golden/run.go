package golden

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/gsc/pkg/compiler"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/riscv/rvsim"
)

// Execution is the observable behaviour of one run of main.
type Execution struct {
	Exit   int32  `json:"exit"`
	Stdout string `json:"stdout"`
	Err    string `json:"error,omitempty"`
}

// Outcome collects what a test case produced.
type Outcome struct {
	CompileErr  error     `json:"-"`
	Koopa       string    `json:"-"`
	Asm         string    `json:"-"`
	Interp      Execution `json:"interp"`
	Sim         Execution `json:"sim"`
	Fingerprint uint64    `json:"fingerprint"`
}

// MaxSteps bounds both executions so a looping case fails instead of hanging.
var MaxSteps = 50_000_000

// NewConfig builds a configuration with the case's -F/-W flags applied.
func NewConfig(tc *TestCase) *config.Config {
	cfg := config.NewConfig()
	cfg.ProcessDirectiveFlags(strings.Join(tc.Flags, " "))
	return cfg
}

// Run compiles the case and, when it compiles, executes it with both the IR
// interpreter and the RV32 simulator.
func Run(tc *TestCase) *Outcome {
	cfg := NewConfig(tc)
	out := &Outcome{}
	res, err := compiler.CompileSource([]rune(tc.Input), -1, cfg, compiler.Options{Emit: compiler.EmitRISCV})
	if err != nil {
		out.CompileErr = err
		return out
	}
	out.Koopa, out.Asm, out.Fingerprint = res.Koopa, res.Output, res.Fingerprint
	if _, ok := tc.Find(AssertExit); !ok {
		if _, ok := tc.Find(AssertStdout); !ok {
			return out
		}
	}

	var stdout bytes.Buffer
	v, err := ir.Run(res.Program, ir.RunOptions{Stdin: strings.NewReader(tc.Stdin), Stdout: &stdout, MaxSteps: MaxSteps})
	out.Interp = execution(v, stdout.String(), err)

	stdout.Reset()
	v, err = rvsim.Run(res.Output, rvsim.Options{
		Stdin:            strings.NewReader(tc.Stdin),
		Stdout:           &stdout,
		MaxSteps:         MaxSteps,
		CheckCalleeSaved: true,
	})
	out.Sim = execution(v, stdout.String(), err)
	return out
}

func execution(v int32, stdout string, err error) Execution {
	e := Execution{Exit: v, Stdout: stdout}
	if err != nil {
		e.Err = err.Error()
	}
	return e
}

// Check compares an outcome against the case's assertions and returns one
// message per failed assertion.
func Check(tc *TestCase, out *Outcome) []string {
	var fails []string
	if out.CompileErr != nil {
		a, ok := tc.Find(AssertError)
		if !ok {
			return []string{fmt.Sprintf("unexpected compile error: %v", out.CompileErr)}
		}
		if !strings.Contains(out.CompileErr.Error(), a.Content) {
			fails = append(fails, fmt.Sprintf("compile error %q does not mention %q", out.CompileErr, a.Content))
		}
		return fails
	}

	for _, a := range tc.Assertions {
		switch a.Type {
		case AssertError:
			fails = append(fails, fmt.Sprintf("expected a compile error mentioning %q, compiled fine", a.Content))
		case AssertIR:
			if line, ok := ContainsInOrder(out.Koopa, a.Content); !ok {
				fails = append(fails, fmt.Sprintf("IR lacks %q (in order):\n%s", line, out.Koopa))
			}
		case AssertAsm:
			if line, ok := ContainsInOrder(out.Asm, a.Content); !ok {
				fails = append(fails, fmt.Sprintf("assembly lacks %q (in order):\n%s", line, out.Asm))
			}
		case AssertExit:
			want, _, err := tc.ExitCode()
			if err != nil {
				fails = append(fails, err.Error())
				continue
			}
			fails = append(fails, checkRun("interpreter", out.Interp, func(e Execution) string {
				if e.Exit != want {
					return fmt.Sprintf("exit %d, want %d", e.Exit, want)
				}
				return ""
			})...)
			fails = append(fails, checkRun("simulator", out.Sim, func(e Execution) string {
				if e.Exit != want {
					return fmt.Sprintf("exit %d, want %d", e.Exit, want)
				}
				return ""
			})...)
		case AssertStdout:
			want := a.Content
			for _, r := range []struct {
				name string
				e    Execution
			}{{"interpreter", out.Interp}, {"simulator", out.Sim}} {
				fails = append(fails, checkRun(r.name, r.e, func(e Execution) string {
					if got := strings.TrimRight(e.Stdout, "\n"); got != want {
						return "stdout mismatch (-want +got):\n" + cmp.Diff(want, got)
					}
					return ""
				})...)
			}
		}
	}
	if len(fails) == 0 && (out.Interp != Execution{} || out.Sim != Execution{}) {
		if d := cmp.Diff(out.Interp, out.Sim); d != "" {
			fails = append(fails, "interpreter and simulator disagree (-interp +sim):\n"+d)
		}
	}
	return fails
}

func checkRun(name string, e Execution, check func(Execution) string) []string {
	if e.Err != "" {
		return []string{fmt.Sprintf("%s: %s", name, e.Err)}
	}
	if msg := check(e); msg != "" {
		return []string{fmt.Sprintf("%s: %s", name, msg)}
	}
	return nil
}
