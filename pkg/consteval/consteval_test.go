package consteval

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/lexer"
	"github.com/xplshn/gsc/pkg/parser"
	"github.com/xplshn/gsc/pkg/token"
)

// expr parses src as the initializer of a global constant.
func expr(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks, err := lexer.NewLexer([]rune("(unit (const c "+src+"))"), -1).Tokenize()
	be.Err(t, err, nil)
	root, err := parser.Parse(toks)
	be.Err(t, err, nil)
	return root.Data.(ast.CompUnitNode).Items[0].Data.(ast.VarDeclNode).Init
}

type names struct {
	values map[string]int32
	arrays map[string][]int32
}

func (n names) Value(name string) (int32, bool, error) {
	v, ok := n.values[name]
	return v, ok, nil
}

func (n names) Element(name string, indices []int32) (int32, bool, error) {
	elems, ok := n.arrays[name]
	if !ok || len(indices) != 1 || indices[0] < 0 || int(indices[0]) >= len(elems) {
		return 0, false, nil
	}
	return elems[indices[0]], true, nil
}

func TestEval(t *testing.T) {
	res := names{
		values: map[string]int32{"N": 10, "M": -3},
		arrays: map[string][]int32{"tbl": {4, 5, 6}},
	}
	tests := []struct {
		src  string
		want int32
		ok   bool
	}{
		{"42", 42, true},
		{"(+ 3 (* 4 2))", 11, true},
		{"(- 7)", -7, true},
		{"(+ 7)", 7, true},
		{"(! 0)", 1, true},
		{"(! 5)", 0, true},
		{"(/ -7 2)", -3, true},
		{"(% -7 2)", -1, true},
		{"(+ 2147483647 1)", -2147483648, true},
		{"(* 65536 65536)", 0, true},
		{"(< 1 2)", 1, true},
		{"(>= 1 2)", 0, true},
		{"(== N 10)", 1, true},
		{"(!= N 10)", 0, true},
		{"(&& 3 4)", 1, true},
		{"(|| 0 0)", 0, true},
		{"(* N M)", -30, true},
		{"(index tbl 2)", 6, true},
		{"(index tbl (- N 9))", 5, true},
		{"x", 0, false},
		{"(+ N x)", 0, false},
		{"(index tbl x)", 0, false},
		{"(call f)", 0, false},
		// The right operand is never looked at once the left decides.
		{"(&& 0 x)", 0, true},
		{"(|| N x)", 1, true},
		{"(&& 0 (/ 1 0))", 0, true},
		{"(&& x 0)", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e := &Evaluator{Resolver: res}
			got, ok, err := e.Eval(expr(t, tt.src))
			be.Err(t, err, nil)
			be.Equal(t, ok, tt.ok)
			if tt.ok {
				be.Equal(t, got, tt.want)
			}
		})
	}
}

func TestEvalDivByZero(t *testing.T) {
	for _, src := range []string{"(/ 1 0)", "(% 5 (- 2 2))"} {
		e := &Evaluator{}
		_, ok, err := e.Eval(expr(t, src))
		be.True(t, !ok)
		be.True(t, errors.Is(err, ErrDivByZero))

		e.DeferDivByZero = true
		_, ok, err = e.Eval(expr(t, src))
		be.Err(t, err, nil)
		be.True(t, !ok)
	}
}

func TestEvalWithoutResolver(t *testing.T) {
	e := &Evaluator{}
	_, ok, err := e.Eval(expr(t, "(+ N 1)"))
	be.Err(t, err, nil)
	be.True(t, !ok)

	_, ok, err = e.Eval(nil)
	be.Err(t, err, nil)
	be.True(t, !ok)
}

type failing struct{}

var errBroken = errors.New("broken")

func (failing) Value(string) (int32, bool, error)            { return 0, false, errBroken }
func (failing) Element(string, []int32) (int32, bool, error) { return 0, false, errBroken }

func TestEvalResolverErrorKeepsCause(t *testing.T) {
	e := &Evaluator{Resolver: failing{}}
	_, _, err := e.Eval(expr(t, "(+ 1 y)"))
	be.True(t, errors.Is(err, errBroken))
}

func TestFold(t *testing.T) {
	tests := []struct {
		op   token.Type
		l, r int32
		want int32
		ok   bool
	}{
		{token.Plus, 1, 2, 3, true},
		{token.Minus, 1, 2, -1, true},
		{token.Star, -4, 5, -20, true},
		{token.Slash, 9, 2, 4, true},
		{token.Slash, 9, 0, 0, false},
		{token.Rem, 9, 0, 0, false},
		{token.Rem, 9, 4, 1, true},
		{token.Lte, 3, 3, 1, true},
		{token.Gt, 3, 3, 0, true},
		{token.OrOr, 0, 7, 1, true},
		{token.Not, 0, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := Fold(tt.op, tt.l, tt.r)
		be.Equal(t, ok, tt.ok)
		be.Equal(t, got, tt.want)
	}
}
