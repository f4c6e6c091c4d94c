package ir

import (
	"fmt"
	"strings"
)

type TypeKind int

const (
	KindUnit TypeKind = iota
	KindInt32
	KindPointer
	KindArray
	KindFunc
)

// Type is immutable once built; compare with Equal, not ==.
type Type struct {
	Kind   TypeKind
	Elem   *Type // Pointer, Array
	Len    int   // Array
	Params []*Type
	Ret    *Type
}

var (
	Unit = &Type{Kind: KindUnit}
	I32  = &Type{Kind: KindInt32}
)

func PtrTo(t *Type) *Type          { return &Type{Kind: KindPointer, Elem: t} }
func ArrayOf(t *Type, n int) *Type { return &Type{Kind: KindArray, Elem: t, Len: n} }

// ArrayType nests dims outermost first: [2,3] is [[i32, 3], 2].
func ArrayType(elem *Type, dims []int) *Type {
	t := elem
	for i := len(dims) - 1; i >= 0; i-- {
		t = ArrayOf(t, dims[i])
	}
	return t
}

func (t *Type) IsUnit() bool    { return t == nil || t.Kind == KindUnit }
func (t *Type) IsPointer() bool { return t != nil && t.Kind == KindPointer }
func (t *Type) IsArray() bool   { return t != nil && t.Kind == KindArray }

// Size is the storage size in bytes on a 32-bit target.
func (t *Type) Size() int {
	switch t.Kind {
	case KindInt32, KindPointer:
		return 4
	case KindArray:
		return t.Len * t.Elem.Size()
	}
	return 0
}

// Dims lists the extents of nested array types, outermost first.
func (t *Type) Dims() []int {
	var dims []int
	for ; t.IsArray(); t = t.Elem {
		dims = append(dims, t.Len)
	}
	return dims
}

func (t *Type) Equal(u *Type) bool {
	if t.IsUnit() || u.IsUnit() {
		return t.IsUnit() && u.IsUnit()
	}
	if t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case KindPointer:
		return t.Elem.Equal(u.Elem)
	case KindArray:
		return t.Len == u.Len && t.Elem.Equal(u.Elem)
	case KindFunc:
		if len(t.Params) != len(u.Params) || !t.Ret.Equal(u.Ret) {
			return false
		}
		for i := range t.Params {
			if !t.Params[i].Equal(u.Params[i]) {
				return false
			}
		}
	}
	return true
}

func (t *Type) String() string {
	if t.IsUnit() {
		return "unit"
	}
	switch t.Kind {
	case KindInt32:
		return "i32"
	case KindPointer:
		return "*" + t.Elem.String()
	case KindArray:
		return fmt.Sprintf("[%s, %d]", t.Elem, t.Len)
	case KindFunc:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.String()
		}
		s := "(" + strings.Join(params, ", ") + ")"
		if !t.Ret.IsUnit() {
			s += ": " + t.Ret.String()
		}
		return s
	}
	return "?"
}
