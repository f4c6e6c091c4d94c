package util

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/token"
)

var errSentinel = errors.New("sentinel")

func withSource(t *testing.T, name, src string) {
	t.Helper()
	SetSourceFiles([]SourceFileRecord{{Name: name, Content: []rune(src)}})
	t.Cleanup(func() { SetSourceFiles(nil) })
}

func TestErrorfKeepsSentinel(t *testing.T) {
	withSource(t, "t.sexp", "(unit)")
	err := Errorf(token.Token{Line: 1, Column: 2}, "%w '%s'", errSentinel, "x")
	be.True(t, errors.Is(err, errSentinel))
	be.Equal(t, err.Error(), "t.sexp:1:2: sentinel 'x'")

	var d *Diagnostic
	be.True(t, errors.As(err, &d))
	be.Equal(t, d.Msg, "sentinel 'x'")
}

func TestErrorfWithoutPosition(t *testing.T) {
	err := Errorf(token.Token{FileIndex: -1}, "plain %d", 7)
	be.Equal(t, err.Error(), "plain 7")
	be.Equal(t, errors.Unwrap(err), nil)
}

func TestReportQuotesSourceLine(t *testing.T) {
	withSource(t, "t.sexp", "(unit\n  (var xyz))")
	var buf bytes.Buffer
	Report(&buf, Errorf(token.Token{Line: 2, Column: 3, Len: 3}, "bad"))
	want := "t.sexp:2:3: error: bad\n" +
		"    (var xyz))\n" +
		"    ^~~\n"
	be.Equal(t, buf.String(), want)

	buf.Reset()
	Report(&buf, errors.New("no position"))
	be.Equal(t, buf.String(), "error: no position\n")
}

func TestWarnHonoursConfig(t *testing.T) {
	withSource(t, "t.sexp", "(unit)")
	var buf bytes.Buffer
	prev := WarnOutput
	WarnOutput = &buf
	t.Cleanup(func() { WarnOutput = prev })

	cfg := config.NewConfig()
	tok := token.Token{Line: 1, Column: 1, Len: 1}
	Warn(cfg, config.WarnShadow, tok, "hidden")
	be.Equal(t, buf.String(), "")

	Warn(cfg, config.WarnRedecl, tok, "'%s' again", "a")
	be.Equal(t, buf.String(), "t.sexp:1:1: warning: 'a' again [-Wredecl]\n  (unit)\n  ^\n")

	buf.Reset()
	Warn(nil, config.WarnRedecl, tok, "ignored")
	be.Equal(t, buf.String(), "")
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ n, align, want int64 }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{5, 4, 8},
		{7, 0, 7},
	}
	for _, tt := range tests {
		be.Equal(t, AlignUp(tt.n, tt.align), tt.want)
	}
}
