package typeChecker

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/lexer"
	"github.com/xplshn/gsc/pkg/parser"
	"github.com/xplshn/gsc/pkg/util"
)

func check(t *testing.T, src string, flags ...string) (*ast.Node, *Info, error) {
	t.Helper()
	toks, err := lexer.NewLexer([]rune(src), -1).Tokenize()
	be.Err(t, err, nil)
	root, err := parser.Parse(toks)
	be.Err(t, err, nil)
	cfg := config.NewConfig()
	cfg.ProcessDirectiveFlags(strings.Join(flags, " "))
	info, err := NewTypeChecker(cfg).Check(root)
	return root, info, err
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		flags []string
		want  string
	}{
		{"undefined", `(unit (func int main (block (return x))))`, nil, "Undefined identifier 'x'"},
		{"undefined call", `(unit (func int main (block (return (call nope)))))`, nil, "Call to undefined function 'nope'"},
		{"break outside loop", `(unit (func int main (block (break) (return 0))))`, nil, "'break' statement not in a loop"},
		{"continue outside loop", `(unit (func int main (block (continue) (return 0))))`, nil, "'continue' statement not in a loop"},
		{"arity", `(unit (func int f (param a) (block (return a))) (func int main (block (return (call f)))))`, nil, "expects 1 arguments, got 0"},
		{"void value", `(unit (func void f (block)) (func int main (block (return (call f)))))`, nil, "Void value used in an expression"},
		{"void returns value", `(unit (func void f (block (return 1))))`, nil, "cannot return a value"},
		{"missing return value", `(unit (func int f (block (return))))`, nil, "must return a value"},
		{"assign to constant", `(unit (const k 1) (func int main (block (= k 2) (return 0))))`, nil, "Cannot assign to constant 'k'"},
		{"assign to const array", `(unit (const k (dims 2) (list 1 2)) (func int main (block (= (index k 0) 2) (return 0))))`, nil, "Cannot assign to constant 'k'"},
		{"assign whole array", `(unit (func int main (block (var a (dims 2 2)) (= (index a 0) 1) (return 0))))`, nil, "as a whole"},
		{"array as int", `(unit (func int main (block (var a (dims 2)) (return a))))`, nil, "Array used where an integer is required"},
		{"index a scalar", `(unit (func int main (block (var a 1) (return (index a 0)))))`, nil, "'a' is not an array"},
		{"too many subscripts", `(unit (func int main (block (var a (dims 2)) (return (index a 0 1)))))`, nil, "Too many subscripts"},
		{"wrong array rank", `(unit (func int f (param p (ptr 3)) (block (return 0))) (func int main (block (var a (dims 4)) (return (call f a)))))`, nil, "must be an array of 2 dimensions, got 1"},
		{"scalar list init", `(unit (var a (list 1)))`, nil, "cannot be initialized with a 'list' form"},
		{"array scalar init", `(unit (var a (dims 2) 1))`, nil, "must be initialized with a 'list' form"},
		{"library redefinition", `(unit (func int getint (block (return 0))))`, nil, "redefines a runtime library function"},
		{"function redefinition", `(unit (func void f (block)) (func void f (block)))`, nil, "Redefinition of function 'f'"},
		{"strict function redefinition", `(unit (func int f (block (return 0))) (func void f (block)))`, []string{"-Fstrict-redecl"}, "Redefinition of function 'f'"},
		{"strict redeclaration", `(unit (var a 1) (var a 2))`, []string{"-Fstrict-redecl"}, "Redefinition of 'a'"},
		{"function as value", `(unit (func int f (block (return 0))) (func int main (block (return f))))`, nil, "Function 'f' used as a value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := check(t, tt.src, tt.flags...)
			be.True(t, err != nil)
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestCheckAccepts(t *testing.T) {
	srcs := []string{
		`(unit (var a 1) (var a 2) (func int main (block (return a))))`,
		`(unit (func int main (block (var x 1) (block (var x (+ x 1)) (return x)))))`,
		`(unit (func int main (block (while 1 (if 1 (break) (continue))) (return 0))))`,
		`(unit (func int f (param p (ptr 3)) (block (return (index p 1 2))))
		       (func int main (block (var a (dims 2 3)) (return (call f a)))))`,
		`(unit (func int main (block (var a (dims 4)) (expr (call putarray 4 a)) (return (call getarray a)))))`,
		`(unit (func int main (block (if 1 (var x 2)) (return 0))))`,
	}
	for _, src := range srcs {
		_, _, err := check(t, src)
		be.Err(t, err, nil)
	}
}

func TestReassignedGlobals(t *testing.T) {
	root, info, err := check(t, `
(unit
  (var a 1)
  (var b 2)
  (func int main (block
    (var b 0)
    (= a 5)
    (= b 6)
    (return (+ a b)))))`)
	be.Err(t, err, nil)
	items := root.Data.(ast.CompUnitNode).Items
	be.True(t, info.Reassigned[items[0]])
	be.True(t, !info.Reassigned[items[1]])
}

func TestShadowWarning(t *testing.T) {
	var buf bytes.Buffer
	prev := util.WarnOutput
	util.WarnOutput = &buf
	t.Cleanup(func() { util.WarnOutput = prev })

	src := `(unit (func int main (block (var x 1) (block (var x 2)) (return x))))`
	_, _, err := check(t, src)
	be.Err(t, err, nil)
	be.Equal(t, buf.String(), "")

	_, _, err = check(t, src, "-Wshadow")
	be.Err(t, err, nil)
	be.True(t, strings.Contains(buf.String(), "shadows an outer declaration [-Wshadow]"))
}
