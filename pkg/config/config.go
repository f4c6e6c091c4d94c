package config

import (
	"fmt"
	"runtime"
	"strings"
)

type Feature int

const (
	FeatStrictRedecl Feature = iota
	FeatConstDivTrap
	FeatFoldGlobals
	FeatDeadStoreElim
	FeatCount
)

type Warning int

const (
	WarnRedecl Warning = iota
	WarnShadow
	WarnUnreachableCode
	WarnUnusedResult
	WarnPedantic
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Target describes the register file and frame rules of the one supported
// instruction set (RV32IM, ilp32).
type Target struct {
	Name           string
	WordSize       int
	StackAlignment int
	ArgRegs        []string
	Allocatable    []string
	Scratch        []string
	ReturnReg      string
	ReturnAddr     string
	StackPointer   string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	Target     Target
	Jobs       int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		Jobs:       runtime.GOMAXPROCS(0),
	}

	features := map[Feature]Info{
		FeatStrictRedecl:  {"strict-redecl", false, "Reject a redeclaration in the same scope instead of letting the last one win."},
		FeatConstDivTrap:  {"const-div-trap", false, "Leave constant division or modulo by zero to run time instead of failing."},
		FeatFoldGlobals:   {"fold-globals", true, "Treat initialised, never reassigned global scalars as constants."},
		FeatDeadStoreElim: {"dead-store-elim", true, "Remove stack slots that are only ever stored to."},
	}

	warnings := map[Warning]Info{
		WarnRedecl:          {"redecl", true, "Warn when a declaration replaces one in the same scope."},
		WarnShadow:          {"shadow", false, "Warn when a declaration hides one from an enclosing scope."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements that can never execute."},
		WarnUnusedResult:    {"unused-result", false, "Warn when an expression statement computes a discarded value."},
		WarnPedantic:        {"pedantic", false, "Issue all warnings demanded by strict SysY."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	cfg.SetTarget("rv32")
	return cfg
}

// SetTarget configures the register file. Only rv32 is supported; the name is
// kept so the driver can reject anything else with a clear message.
func (c *Config) SetTarget(name string) error {
	switch name {
	case "rv32", "riscv32", "":
		c.Target = Target{
			Name:           "rv32",
			WordSize:       4,
			StackAlignment: 16,
			ArgRegs:        []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7"},
			Allocatable:    []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"},
			Scratch:        []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6"},
			ReturnReg:      "a0",
			ReturnAddr:     "ra",
			StackPointer:   "sp",
		}
		return nil
	}
	return fmt.Errorf("unsupported target '%s'. Supported: 'rv32'", name)
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return
	}

	if name == "pedantic" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, true)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" || name == "pedantic" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" && name != "pedantic" {
			c.applyFlag("-" + name)
		}
	})
}

func (c *Config) ProcessDirectiveFlags(flagStr string) {
	for _, flag := range strings.Fields(flagStr) {
		c.applyFlag(flag)
	}
}
