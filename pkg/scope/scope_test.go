package scope

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func TestResolveWalksOutward(t *testing.T) {
	tab := NewTable()
	g, err := tab.DeclareVariable("x", 0, false)
	be.Err(t, err, nil)
	be.Equal(t, g.Unique, "x_0")
	be.True(t, g.IsGlobal())

	id := tab.Enter()
	be.Equal(t, id, 1)
	inner, err := tab.DeclareVariable("x", 0, false)
	be.Err(t, err, nil)
	be.Equal(t, inner.Unique, "x_1")

	b, err := tab.Resolve("x")
	be.Err(t, err, nil)
	be.Equal(t, b, inner)

	tab.Leave()
	b, err = tab.Resolve("x")
	be.Err(t, err, nil)
	be.Equal(t, b, g)
}

func TestShadowedNamesStayDistinct(t *testing.T) {
	tab := NewTable()
	tab.Enter()
	outer, _ := tab.DeclareVariable("v", 0, false)
	tab.Enter()
	inner, _ := tab.DeclareVariable("v", 0, false)
	be.True(t, outer.Unique != inner.Unique)

	// Bindings of a scope that has been left stay reachable by unique name.
	tab.Leave()
	tab.Leave()
	got, ok := tab.ByUnique(inner.Unique)
	be.True(t, ok)
	be.Equal(t, got, inner)
}

func TestUndeclared(t *testing.T) {
	tab := NewTable()
	_, err := tab.Resolve("nope")
	be.True(t, errors.Is(err, ErrUndeclared))
}

func TestRedeclarationLastWins(t *testing.T) {
	tab := NewTable()
	tab.Enter()
	first, err := tab.DeclareVariable("a", 0, false)
	be.Err(t, err, nil)
	second, err := tab.DeclareConstant("a", 7)
	be.Err(t, err, nil)

	be.Equal(t, second.Replaced, first)
	be.Equal(t, first.Unique, "a_1")
	be.Equal(t, second.Unique, "a_1_r1")

	third, _ := tab.DeclareVariable("a", 0, false)
	be.Equal(t, third.Unique, "a_1_r2")

	b, err := tab.Resolve("a")
	be.Err(t, err, nil)
	be.Equal(t, b, third)
}

func TestRedeclarationStrict(t *testing.T) {
	tab := NewTable()
	tab.Strict = true
	_, err := tab.DeclareVariable("a", 0, false)
	be.Err(t, err, nil)
	_, err = tab.DeclareArray("a", []int32{2}, false)
	be.True(t, errors.Is(err, ErrRedeclared))
}

func TestFunctionsKeepTheirName(t *testing.T) {
	tab := NewTable()
	f, err := tab.DeclareFunction("main")
	be.Err(t, err, nil)
	be.Equal(t, f.Unique, "main")
	be.Equal(t, f.Kind, Function)
}

func TestSetHint(t *testing.T) {
	tab := NewTable()
	tab.Enter()
	b, _ := tab.DeclareArray("buf", []int32{4, 4}, false)
	be.True(t, tab.SetHint(b.Unique, "16(sp)"))
	be.Equal(t, b.Hint, "16(sp)")
	be.True(t, !tab.SetHint("result", "0(sp)"))
}

func TestScopeIDsAreUnitWide(t *testing.T) {
	tab := NewTable()
	be.Equal(t, tab.NumScopes(), 1)
	be.Equal(t, tab.Enter(), 1)
	tab.Leave()
	be.Equal(t, tab.Enter(), 2)
	be.Equal(t, tab.Current(), 2)
	be.Equal(t, tab.NumScopes(), 3)
	tab.Leave()
	be.Equal(t, tab.Current(), 0)
}

func TestLeaveGlobalPanics(t *testing.T) {
	defer func() {
		be.True(t, recover() != nil)
	}()
	NewTable().Leave()
}
