package cli

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

type parsed struct {
	out, emit, jobs string
	verbose         bool
}

func newTestFlagSet(p *parsed) *FlagSet {
	fs := NewFlagSet("gsc")
	fs.String(&p.out, "output", "o", "", "output file", "file")
	fs.String(&p.emit, "emit", "e", "riscv", "output kind", "kind")
	fs.Bool(&p.verbose, "verbose", "v", false, "report stages")
	fs.String(&p.jobs, "jobs", "j", "", "parallel functions", "n")
	return fs
}

func TestParse(t *testing.T) {
	var p parsed
	fs := newTestFlagSet(&p)
	err := fs.Parse([]string{"-o", "out.s", "--emit=koopa", "-v", "-j4", "in.sexp", "--", "-x"})
	be.Err(t, err, nil)
	be.Equal(t, p.out, "out.s")
	be.Equal(t, p.emit, "koopa")
	be.True(t, p.verbose)
	be.Equal(t, p.jobs, "4")
	if diff := cmp.Diff([]string{"in.sexp", "-x"}, fs.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLongForms(t *testing.T) {
	var p parsed
	fs := newTestFlagSet(&p)
	be.Err(t, fs.Parse([]string{"--output", "a.s", "--verbose", "-emit=koopa"}), nil)
	be.Equal(t, p.out, "a.s")
	be.Equal(t, p.emit, "koopa")
	be.True(t, p.verbose)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--nope"}, "unknown flag: --nope"},
		{[]string{"-z"}, "unknown shorthand flag: -z"},
		{[]string{"-Wbogus"}, "unknown shorthand flag: -W"},
		{[]string{"-o"}, "flag needs an argument: -o"},
		{[]string{"--output"}, "flag needs an argument: --output"},
		{[]string{"--verbose=maybe"}, "invalid boolean value"},
	}
	for _, tt := range tests {
		var p parsed
		be.Err(t, newTestFlagSet(&p).Parse(tt.args), tt.want)
	}
}

func TestLookup(t *testing.T) {
	var p parsed
	fs := newTestFlagSet(&p)
	f := fs.Lookup("emit")
	be.True(t, f != nil)
	be.Equal(t, f.DefValue, "riscv")
	be.Equal(t, f.Shorthand, "e")
	be.True(t, fs.Lookup("missing") == nil)
}

func TestFlagGroupEntries(t *testing.T) {
	fs := NewFlagSet("gsc")
	on, off := new(bool), new(bool)
	fs.AddFlagGroup("Warning Flags", "", "warning flag", "Available:", []FlagGroupEntry{
		{Name: "shadow", Prefix: "W", Usage: "shadowing", Enabled: on, Disabled: off},
	})
	be.Err(t, fs.Parse([]string{"-Wno-shadow"}), nil)
	be.True(t, !*on)
	be.True(t, *off)
}

func TestIndentState(t *testing.T) {
	is := NewIndentState()
	be.Equal(t, is.AtLevel(0), "")
	be.Equal(t, is.AtLevel(2), "        ")
}
