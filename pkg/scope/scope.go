// Package scope implements the lexical scope chain used while lowering a
// compilation unit. Scopes live in an arena and refer to their parent by
// index; the chain of active scopes is a stack of indices. Scopes are never
// freed during a compilation so bindings stay reachable by unique name after
// their block has been emitted.
package scope

import (
	"errors"
	"fmt"
)

var (
	ErrUndeclared = errors.New("undeclared identifier")
	ErrRedeclared = errors.New("redeclaration")
)

type Kind int

const (
	Function Kind = iota
	Constant
	Variable
	Array
)

func (k Kind) String() string {
	switch k {
	case Function:
		return "function"
	case Constant:
		return "constant"
	case Variable:
		return "variable"
	case Array:
		return "array"
	}
	return "unknown"
}

type Binding struct {
	Kind    Kind
	Name    string
	Unique  string
	ScopeID int

	// Constant, or Variable when Known is set
	Value int32
	Known bool

	// Array. For pointers (array parameters) Dims omits the elided first
	// dimension. Elems holds the flattened values of a const array.
	Dims      []int32
	IsPointer bool
	IsConst   bool
	Elems     []int32

	// Replaced is the binding this one overwrote in the same scope.
	Replaced *Binding
	Hint     string
}

// IsGlobal reports whether b was declared in the root scope.
func (b *Binding) IsGlobal() bool { return b.ScopeID == 0 }

type Scope struct {
	ID       int
	Parent   int
	bindings map[string]*Binding
}

type Table struct {
	scopes   []Scope
	stack    []int
	byUnique map[string]*Binding
	regen    map[string]int

	// Strict turns a redeclaration in the same scope into ErrRedeclared.
	Strict bool
}

// NewTable creates a table whose current scope is the global root scope.
func NewTable() *Table {
	t := &Table{byUnique: make(map[string]*Binding), regen: make(map[string]int)}
	t.scopes = append(t.scopes, Scope{ID: 0, Parent: -1, bindings: make(map[string]*Binding)})
	t.stack = []int{0}
	return t
}

// Enter creates a child of the current scope, makes it current and returns its id.
func (t *Table) Enter() int {
	id := len(t.scopes)
	t.scopes = append(t.scopes, Scope{ID: id, Parent: t.Current(), bindings: make(map[string]*Binding)})
	t.stack = append(t.stack, id)
	return id
}

// Leave makes the parent scope current. The root scope is never left.
func (t *Table) Leave() {
	if len(t.stack) == 1 {
		panic("scope: leaving the global scope")
	}
	t.stack = t.stack[:len(t.stack)-1]
}

func (t *Table) Current() int   { return t.stack[len(t.stack)-1] }
func (t *Table) NumScopes() int { return len(t.scopes) }

func (t *Table) declare(b *Binding) (*Binding, error) {
	cur := &t.scopes[t.Current()]
	b.ScopeID = cur.ID
	if b.Kind == Function {
		b.Unique = b.Name
	} else {
		b.Unique = fmt.Sprintf("%s_%d", b.Name, cur.ID)
	}
	if prev, ok := cur.bindings[b.Name]; ok {
		if t.Strict {
			return nil, fmt.Errorf("%w of '%s' (previously declared as %s)", ErrRedeclared, b.Name, prev.Kind)
		}
		b.Replaced = prev
		if b.Kind != Function {
			base := b.Unique
			t.regen[base]++
			b.Unique = fmt.Sprintf("%s_r%d", base, t.regen[base])
		}
	}
	cur.bindings[b.Name] = b
	t.byUnique[b.Unique] = b
	return b, nil
}

func (t *Table) DeclareConstant(name string, value int32) (*Binding, error) {
	return t.declare(&Binding{Kind: Constant, Name: name, Value: value, Known: true})
}

// DeclareVariable declares a scalar. known records a compile-time value that
// the constant evaluator may substitute for reads.
func (t *Table) DeclareVariable(name string, value int32, known bool) (*Binding, error) {
	return t.declare(&Binding{Kind: Variable, Name: name, Value: value, Known: known})
}

func (t *Table) DeclareArray(name string, dims []int32, isPointer bool) (*Binding, error) {
	return t.declare(&Binding{Kind: Array, Name: name, Dims: dims, IsPointer: isPointer})
}

// DeclareConstArray declares an array whose flattened contents are known.
func (t *Table) DeclareConstArray(name string, dims []int32, elems []int32) (*Binding, error) {
	return t.declare(&Binding{Kind: Array, Name: name, Dims: dims, IsConst: true, Elems: elems})
}

func (t *Table) DeclareFunction(name string) (*Binding, error) {
	return t.declare(&Binding{Kind: Function, Name: name})
}

// Resolve walks outward from the current scope.
func (t *Table) Resolve(name string) (*Binding, error) {
	for id := t.Current(); id >= 0; {
		s := &t.scopes[id]
		if b, ok := s.bindings[name]; ok {
			return b, nil
		}
		id = s.Parent
	}
	return nil, fmt.Errorf("%w '%s'", ErrUndeclared, name)
}

// ByUnique returns the binding registered under its flat IR name.
func (t *Table) ByUnique(unique string) (*Binding, bool) {
	b, ok := t.byUnique[unique]
	return b, ok
}

// SetHint records where the back end placed the storage named unique.
func (t *Table) SetHint(unique, hint string) bool {
	b, ok := t.byUnique[unique]
	if ok {
		b.Hint = hint
	}
	return ok
}
