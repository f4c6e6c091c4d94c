package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/token"
	"golang.org/x/term"
)

// SourceFileRecord tracks the name and content of a single input file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var (
	sourceMu    sync.RWMutex
	sourceFiles []SourceFileRecord
)

// SetSourceFiles stores the inputs so diagnostics can quote the offending line
func SetSourceFiles(files []SourceFileRecord) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	sourceFiles = files
}

func findFileAndLine(tok token.Token) (filename string, line, col int) {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "<ast>", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

func colorize(w io.Writer, code, s string) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return code + s + "\033[0m"
	}
	return s
}

// printErrorLine prints the source line and a caret under the error position
func printErrorLine(w io.Writer, tok token.Token) {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	col := tok.Column - 1
	if col < 0 {
		col = 0
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", col), colorize(w, "\033[32m", caret))
}

// Diagnostic is a fatal, positioned compile error.
type Diagnostic struct {
	Tok token.Token
	Msg string
	Err error
}

func (d *Diagnostic) Error() string {
	filename, line, col := findFileAndLine(d.Tok)
	if line == 0 {
		return d.Msg
	}
	return fmt.Sprintf("%s:%d:%d: %s", filename, line, col, d.Msg)
}

func (d *Diagnostic) Unwrap() error { return d.Err }

// Errorf builds a Diagnostic at tok. A %w verb in format is honoured so
// callers can keep sentinel errors reachable through errors.Is.
func Errorf(tok token.Token, format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	return &Diagnostic{Tok: tok, Msg: err.Error(), Err: errors.Unwrap(err)}
}

// Report prints err, quoting the source line when err carries a position.
func Report(w io.Writer, err error) {
	var d *Diagnostic
	if !errors.As(err, &d) {
		fmt.Fprintf(w, "%s %v\n", colorize(w, "\033[31m", "error:"), err)
		return
	}
	filename, line, col := findFileAndLine(d.Tok)
	fmt.Fprintf(w, "%s:%d:%d: %s %s\n", filename, line, col, colorize(w, "\033[31m", "error:"), d.Msg)
	printErrorLine(w, d.Tok)
}

// WarnOutput receives warnings; tests swap it for a buffer.
var WarnOutput io.Writer = os.Stderr

var warnMu sync.Mutex

// Warn prints a formatted warning if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return
	}
	warnMu.Lock()
	defer warnMu.Unlock()
	filename, line, col := findFileAndLine(tok)
	warningName := cfg.Warnings[wt].Name
	fmt.Fprintf(WarnOutput, "%s:%d:%d: %s ", filename, line, col, colorize(WarnOutput, "\033[33m", "warning:"))
	fmt.Fprintf(WarnOutput, format, args...)
	fmt.Fprintf(WarnOutput, " [-W%s]\n", warningName)
	printErrorLine(WarnOutput, tok)
}

func AlignUp(n, align int64) int64 {
	if align <= 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
