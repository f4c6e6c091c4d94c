// Package consteval folds SysY expressions whose operands are all known at
// compile time. Arithmetic wraps at 32 bits; relational and logical operators
// yield exactly 0 or 1.
package consteval

import (
	"errors"

	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/token"
	"github.com/xplshn/gsc/pkg/util"
)

var ErrDivByZero = errors.New("division by constant zero")

// Resolver supplies the values of names. ok is false for names that are
// declared but not compile-time constant.
type Resolver interface {
	Value(name string) (v int32, ok bool, err error)
	Element(name string, indices []int32) (v int32, ok bool, err error)
}

type Evaluator struct {
	Resolver Resolver
	// DeferDivByZero makes a constant division by zero non-constant instead
	// of an error, leaving the trap to run time.
	DeferDivByZero bool
}

// Eval returns the value of node if every operand is constant.
func (e *Evaluator) Eval(node *ast.Node) (int32, bool, error) {
	if node == nil {
		return 0, false, nil
	}
	switch node.Type {
	case ast.Number:
		return node.Data.(ast.NumberNode).Value, true, nil

	case ast.Ident:
		if e.Resolver == nil {
			return 0, false, nil
		}
		v, ok, err := e.Resolver.Value(node.Data.(ast.IdentNode).Name)
		if err != nil {
			return 0, false, util.Errorf(node.Tok, "%w", err)
		}
		return v, ok, nil

	case ast.Index:
		if e.Resolver == nil {
			return 0, false, nil
		}
		d := node.Data.(ast.IndexNode)
		indices := make([]int32, len(d.Indices))
		for i, idx := range d.Indices {
			v, ok, err := e.Eval(idx)
			if err != nil || !ok {
				return 0, false, err
			}
			indices[i] = v
		}
		v, ok, err := e.Resolver.Element(d.Name, indices)
		if err != nil {
			return 0, false, util.Errorf(node.Tok, "%w", err)
		}
		return v, ok, nil

	case ast.UnaryOp:
		d := node.Data.(ast.UnaryOpNode)
		v, ok, err := e.Eval(d.Expr)
		if err != nil || !ok {
			return 0, false, err
		}
		switch d.Op {
		case token.Minus:
			return -v, true, nil
		case token.Plus:
			return v, true, nil
		case token.Not:
			return boolInt(v == 0), true, nil
		}

	case ast.BinaryOp:
		d := node.Data.(ast.BinaryOpNode)
		l, lok, err := e.Eval(d.Left)
		if err != nil {
			return 0, false, err
		}
		if lok && (d.Op == token.AndAnd && l == 0 || d.Op == token.OrOr && l != 0) {
			return boolInt(l != 0), true, nil
		}
		r, rok, err := e.Eval(d.Right)
		if err != nil || !lok || !rok {
			return 0, false, err
		}
		if (d.Op == token.Slash || d.Op == token.Rem) && r == 0 {
			if e.DeferDivByZero {
				return 0, false, nil
			}
			return 0, false, util.Errorf(node.Tok, "%w in '%s'", ErrDivByZero, d.Op)
		}
		v, ok := Fold(d.Op, l, r)
		return v, ok, nil
	}
	return 0, false, nil
}

// Fold applies a binary operator to two constants. Division by zero is
// reported as not foldable.
func Fold(op token.Type, l, r int32) (int32, bool) {
	switch op {
	case token.Plus:
		return l + r, true
	case token.Minus:
		return l - r, true
	case token.Star:
		return l * r, true
	case token.Slash:
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case token.Rem:
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case token.Lt:
		return boolInt(l < r), true
	case token.Gt:
		return boolInt(l > r), true
	case token.Lte:
		return boolInt(l <= r), true
	case token.Gte:
		return boolInt(l >= r), true
	case token.EqEq:
		return boolInt(l == r), true
	case token.Neq:
		return boolInt(l != r), true
	case token.AndAnd:
		return boolInt(l != 0 && r != 0), true
	case token.OrOr:
		return boolInt(l != 0 || r != 0), true
	}
	return 0, false
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
