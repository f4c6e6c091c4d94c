// Package golden extracts compiler test cases from Markdown documents. Each
// case starts at a heading "Test: <name>" and is made of fenced code blocks:
// one `sexp` fence holding the AST, an optional `stdin` and `flags` fence, and
// at least one assertion fence.
package golden

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// AssertionType is the language tag of an assertion fence.
type AssertionType string

const (
	// AssertExit holds the expected return value of main.
	AssertExit AssertionType = "exit"
	// AssertStdout holds the exact expected output.
	AssertStdout AssertionType = "stdout"
	// AssertIR holds lines that must appear, in order, in the IR text.
	AssertIR AssertionType = "ir"
	// AssertAsm holds lines that must appear, in order, in the assembly.
	AssertAsm AssertionType = "asm"
	// AssertError holds a substring of the expected compile error.
	AssertError AssertionType = "error"
)

const (
	fenceInput = "sexp"
	fenceStdin = "stdin"
	fenceFlags = "flags"
)

type Assertion struct {
	Type    AssertionType
	Content string
	Line    int
}

type TestCase struct {
	Name       string
	Input      string
	Stdin      string
	Flags      []string
	Assertions []Assertion
	Line       int
}

// ExitCode returns the value of the case's exit assertion, if it has one.
func (tc *TestCase) ExitCode() (int32, bool, error) {
	for _, a := range tc.Assertions {
		if a.Type != AssertExit {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(a.Content), 0, 32)
		if err != nil {
			return 0, false, fmt.Errorf("line %d: bad exit value %q", a.Line, a.Content)
		}
		return int32(v), true, nil
	}
	return 0, false, nil
}

// Find returns the first assertion of type t.
func (tc *TestCase) Find(t AssertionType) (Assertion, bool) {
	for _, a := range tc.Assertions {
		if a.Type == t {
			return a, true
		}
	}
	return Assertion{}, false
}

// ExtractTestCases parses a Markdown document and extracts all test cases.
func ExtractTestCases(markdown string) ([]TestCase, error) {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var cases []TestCase
	var current *TestCase

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			heading := extractText(n, source)
			if !strings.HasPrefix(heading, "Test: ") {
				return ast.WalkContinue, nil
			}
			if current != nil {
				if err := validate(current); err != nil {
					return ast.WalkStop, err
				}
				cases = append(cases, *current)
			}
			current = &TestCase{Name: strings.TrimPrefix(heading, "Test: "), Line: lineOf(n, source)}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(source))
			content := codeBlockContent(n, source)
			line := lineOf(n, source)

			if current == nil {
				if lang != "" {
					return ast.WalkStop, fmt.Errorf("line %d: '%s' fence outside of a test case", line, lang)
				}
				return ast.WalkContinue, nil
			}
			switch {
			case lang == fenceInput:
				if current.Input != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple sexp fences in test '%s'", line, current.Name)
				}
				current.Input = strings.TrimRight(content, "\n")
			case lang == fenceStdin:
				current.Stdin = content
			case lang == fenceFlags:
				current.Flags = append(current.Flags, strings.Fields(content)...)
			case isAssertion(lang):
				current.Assertions = append(current.Assertions, Assertion{
					Type:    AssertionType(lang),
					Content: strings.TrimRight(content, "\n"),
					Line:    line,
				})
			case lang != "":
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, lang, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking markdown AST: %w", err)
	}

	if current != nil {
		if err := validate(current); err != nil {
			return nil, err
		}
		cases = append(cases, *current)
	}
	return cases, nil
}

func isAssertion(lang string) bool {
	switch AssertionType(lang) {
	case AssertExit, AssertStdout, AssertIR, AssertAsm, AssertError:
		return true
	}
	return false
}

func validate(tc *TestCase) error {
	if tc.Input == "" {
		return fmt.Errorf("test '%s' has no sexp fence", tc.Name)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", tc.Name)
	}
	return nil
}

func extractText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func codeBlockContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	start := node.Lines().At(0).Start
	return bytes.Count(source[:start], []byte("\n")) + 1
}

// ContainsInOrder reports whether every non-blank line of want occurs in got,
// trimmed, in the same relative order. It returns the first line not found.
func ContainsInOrder(got, want string) (string, bool) {
	lines := strings.Split(got, "\n")
	i := 0
	for _, w := range strings.Split(want, "\n") {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		for i < len(lines) && strings.TrimSpace(lines[i]) != w {
			i++
		}
		if i == len(lines) {
			return w, false
		}
		i++
	}
	return "", true
}
