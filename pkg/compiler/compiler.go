// Package compiler wires the stages together: AST reader, semantic checks,
// IR emission, the dead slot pass and a code generation backend.
package compiler

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/codegen"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/lexer"
	"github.com/xplshn/gsc/pkg/parser"
	"github.com/xplshn/gsc/pkg/riscv"
	"github.com/xplshn/gsc/pkg/scope"
	"github.com/xplshn/gsc/pkg/typeChecker"
)

type Emit int

const (
	EmitKoopa Emit = iota
	EmitRISCV
)

func (e Emit) String() string {
	if e == EmitKoopa {
		return "koopa"
	}
	return "riscv"
}

// ParseEmit maps the --emit flag value to an Emit.
func ParseEmit(s string) (Emit, error) {
	switch s {
	case "koopa", "ir":
		return EmitKoopa, nil
	case "riscv", "asm", "":
		return EmitRISCV, nil
	}
	return 0, fmt.Errorf("unknown output kind '%s'. Supported: koopa, riscv", s)
}

// Result holds every artefact of one compilation.
type Result struct {
	AST     *ast.Node
	Program *ir.Program
	Koopa   string
	// Output is the text produced by the selected backend.
	Output string
	Frames map[string]*riscv.Frame
	Scopes *scope.Table
	// DeadSlots counts the allocs removed by the dead slot pass.
	DeadSlots      int
	Fingerprint    uint64
	Regs, Branches int
}

// Options select the output. Progress, when set, is called before each stage.
type Options struct {
	Emit     Emit
	Progress func(stage string)
}

func (o Options) progress(stage string) {
	if o.Progress != nil {
		o.Progress(stage)
	}
}

// CompileSource reads an AST in its text notation and compiles it. fileIndex
// refers to the file table registered with util.SetSourceFiles.
func CompileSource(src []rune, fileIndex int, cfg *config.Config, opts Options) (*Result, error) {
	opts.progress("Reading AST...")
	tokens, err := lexer.NewLexer(src, fileIndex).Tokenize()
	if err != nil {
		return nil, err
	}
	root, err := parser.Parse(tokens)
	if err != nil {
		return nil, err
	}
	return Compile(root, cfg, opts)
}

// Compile lowers a parsed compilation unit. The first fatal error aborts the
// whole unit and no partial result is returned.
func Compile(root *ast.Node, cfg *config.Config, opts Options) (*Result, error) {
	opts.progress("Type checking...")
	info, err := typeChecker.NewTypeChecker(cfg).Check(root)
	if err != nil {
		return nil, err
	}

	opts.progress("Creating intermediate representation...")
	ctx := codegen.NewContext(cfg)
	prog, err := ctx.GenerateIR(root, info)
	if err != nil {
		return nil, err
	}

	res := &Result{AST: root, Program: prog, Scopes: ctx.Scopes()}
	res.Regs, res.Branches = ctx.Counters()
	if cfg.IsFeatureEnabled(config.FeatDeadStoreElim) {
		for _, fn := range prog.Funcs {
			if !fn.IsDecl {
				res.DeadSlots += ir.RemoveDeadSlots(fn)
			}
		}
	}
	res.Koopa = ir.Print(prog)

	var backend codegen.Backend
	var rv *riscv.Backend
	switch opts.Emit {
	case EmitKoopa:
		backend = codegen.NewKoopaBackend()
	default:
		rv = riscv.NewBackend()
		backend = rv
	}

	opts.progress(fmt.Sprintf("Generating %s...", opts.Emit))
	buf, err := backend.Generate(prog, cfg)
	if err != nil {
		return nil, err
	}
	res.Output = buf.String()
	res.Fingerprint = xxhash.Sum64String(res.Output)

	if rv != nil {
		res.Frames = rv.Frames
		for _, frame := range rv.Frames {
			for unique, hint := range frame.Slots() {
				res.Scopes.SetHint(unique, hint)
			}
		}
	}
	return res, nil
}
