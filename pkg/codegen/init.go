package codegen

import (
	"github.com/xplshn/gsc/pkg/ast"
	"github.com/xplshn/gsc/pkg/util"
)

func product(dims []int32) int {
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	return n
}

// flattenInit lays an initializer out in row-major order against dims. The
// result has one entry per element; nil entries are implicit zeros.
func (ctx *Context) flattenInit(init *ast.Node, dims []int32) []*ast.Node {
	out, err := FlattenInit(init, dims)
	if err != nil {
		ctx.fail(err)
	}
	return out
}

// FlattenInit applies the brace elision rules. A nested list covers the
// longest suffix of dims[1:] whose element count divides the number of
// entries emitted so far, and is zero-padded to that count: {{1},{4,5}}
// against [2][3] yields 1 0 0 4 5 0.
func FlattenInit(init *ast.Node, dims []int32) ([]*ast.Node, error) {
	if init.Type != ast.InitList {
		return nil, util.Errorf(init.Tok, "%w: array initializer must be a list", ErrShape)
	}
	return flatten(init, dims)
}

func flatten(list *ast.Node, dims []int32) ([]*ast.Node, error) {
	total := product(dims)
	out := make([]*ast.Node, 0, total)
	for _, item := range list.Data.(ast.InitListNode).Items {
		if len(out) >= total {
			return nil, util.Errorf(item.Tok, "%w: too many initializers for an array of %d elements", ErrShape, total)
		}
		if item.Type != ast.InitList {
			out = append(out, item)
			continue
		}
		sub := dims[1:]
		for len(sub) > 0 && len(out)%product(sub) != 0 {
			sub = sub[1:]
		}
		if len(sub) == 0 {
			return nil, util.Errorf(item.Tok, "%w: nested initializer list does not start at a sub-array boundary", ErrShape)
		}
		inner, err := flatten(item, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, inner...)
	}
	for len(out) < total {
		out = append(out, nil)
	}
	return out, nil
}
