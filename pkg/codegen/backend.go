package codegen

import (
	"bytes"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes an IR program and a configuration, and produces the target
	// assembly or intermediate language as a byte buffer.
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
}

type koopaBackend struct{}

// NewKoopaBackend returns a backend that prints the IR text itself.
func NewKoopaBackend() Backend { return koopaBackend{} }

func (koopaBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	return bytes.NewBufferString(ir.Print(prog)), nil
}
