package parser

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/lexer"
	"github.com/xplshn/gsc/pkg/token"
)

func parse(src string) (*ast.Node, error) {
	toks, err := lexer.NewLexer([]rune(src), -1).Tokenize()
	if err != nil {
		return nil, err
	}
	return Parse(toks)
}

func TestParseUnit(t *testing.T) {
	root, err := parse(`
(unit
  (const N 4)
  (var grid (dims N 2) (list (list 1 2) 3))
  (func void fill (param a (ptr 2)) (param n)
    (block
      (= (index a 0 1) (- n))
      (expr (call putint n))
      (expr)))
  (func int main (block
    (if (! 0) (return 1) (block))
    (while (|| 0 1) (break))
    (return (+ 1 2)))))`)
	be.Err(t, err, nil)
	items := root.Data.(ast.CompUnitNode).Items
	be.Equal(t, len(items), 4)

	n := items[0].Data.(ast.VarDeclNode)
	be.True(t, n.IsConst)
	be.Equal(t, n.Init.Data.(ast.NumberNode).Value, int32(4))

	grid := items[1].Data.(ast.VarDeclNode)
	be.Equal(t, len(grid.Dims), 2)
	be.Equal(t, grid.Init.Type, ast.InitList)
	be.Equal(t, len(grid.Init.Data.(ast.InitListNode).Items), 2)

	fill := items[2].Data.(ast.FuncDeclNode)
	be.True(t, fill.IsVoid)
	be.Equal(t, len(fill.Params), 2)
	be.True(t, fill.Params[0].IsArray)
	be.Equal(t, len(fill.Params[0].Dims), 1)
	be.True(t, !fill.Params[1].IsArray)
	stmts := fill.Body.Data.(ast.BlockNode).Stmts
	be.Equal(t, stmts[0].Type, ast.Assign)
	rhs := stmts[0].Data.(ast.AssignNode).Rhs
	be.Equal(t, rhs.Type, ast.UnaryOp)
	be.Equal(t, rhs.Data.(ast.UnaryOpNode).Op, token.Minus)
	be.True(t, stmts[2].Data.(ast.ExprStmtNode).Expr == nil)

	main := items[3].Data.(ast.FuncDeclNode)
	body := main.Body.Data.(ast.BlockNode).Stmts
	ifn := body[0].Data.(ast.IfNode)
	be.Equal(t, ifn.ElseBody.Type, ast.Block)
	be.Equal(t, body[1].Data.(ast.WhileNode).Body.Type, ast.Break)
	be.Equal(t, body[2].Data.(ast.ReturnNode).Expr.Data.(ast.BinaryOpNode).Op, token.Plus)
}

func TestFormHeadsAsNames(t *testing.T) {
	root, err := parse(`(unit (var list 1) (func int index (param call) (block (return (+ list call)))))`)
	be.Err(t, err, nil)
	items := root.Data.(ast.CompUnitNode).Items
	be.Equal(t, items[0].Data.(ast.VarDeclNode).Name, "list")
	be.Equal(t, items[1].Data.(ast.FuncDeclNode).Name, "index")
}

func TestLiterals(t *testing.T) {
	root, err := parse(`(unit (var a 0x7fffffff) (var b -2147483648) (var c 4294967295) (var d 010))`)
	be.Err(t, err, nil)
	var got []int32
	for _, it := range root.Data.(ast.CompUnitNode).Items {
		got = append(got, it.Data.(ast.VarDeclNode).Init.Data.(ast.NumberNode).Value)
	}
	be.Equal(t, got, []int32{2147483647, -2147483648, -1, 8})
}

func TestParentLinks(t *testing.T) {
	root, err := parse(`(unit (var a (dims 2) (list 1 2)))`)
	be.Err(t, err, nil)
	decl := root.Data.(ast.CompUnitNode).Items[0]
	d := decl.Data.(ast.VarDeclNode)
	be.True(t, d.Init.Parent == decl)
	be.True(t, d.Dims[0].Parent == decl)
	be.True(t, decl.Parent == root)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`(unit (var))`, "Expected variable name"},
		{`(unit (const k))`, "needs an initializer"},
		{`(unit (func int main (return 0)))`, "as a 'block' form"},
		{`(unit (func int main (block (return 0)))`, "Expected ')' to close 'unit'"},
		{`(unit) (unit)`, "after the compilation unit"},
		{`(unit (func int main (block (frob 1))))`, "Unknown statement form 'frob'"},
		{`(unit (func int main (block (return (* 1)))))`, "takes two operands, got 1"},
		{`(unit (func int main (block (return (! 1 2)))))`, "takes one operand"},
		{`(unit (func int main (block (return (index a)))))`, "needs at least one subscript"},
		{`(unit (func int main (block (= (+ a 1) 2))))`, "must be a name or an 'index' form"},
		{`(unit (var a 4294967296))`, "out of range"},
		{`(unit (var a (dims)))`, "at least one dimension"},
		{`(unit (block))`, "at the top level"},
		{`(unit (func int main (block (return ()))))`, "Expected an expression form"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := parse(tt.src)
			be.True(t, err != nil)
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
