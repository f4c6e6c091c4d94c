// Package token defines the atoms of the AST notation read by the driver.
package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	LParen
	RParen

	// Form heads recognised by the AST reader
	Unit
	Const
	Var
	Func
	Param
	Ptr
	Dims
	List
	Block
	If
	While
	Break
	Continue
	Return
	ExprStmt
	Index
	Call
	Int
	Void

	// Operators
	Eq
	Plus
	Minus
	Star
	Slash
	Rem
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
)

var KeywordMap = map[string]Type{
	"unit":     Unit,
	"const":    Const,
	"var":      Var,
	"func":     Func,
	"param":    Param,
	"ptr":      Ptr,
	"dims":     Dims,
	"list":     List,
	"block":    Block,
	"if":       If,
	"while":    While,
	"break":    Break,
	"continue": Continue,
	"return":   Return,
	"expr":     ExprStmt,
	"index":    Index,
	"call":     Call,
	"int":      Int,
	"void":     Void,
	"=":        Eq,
	"+":        Plus,
	"-":        Minus,
	"*":        Star,
	"/":        Slash,
	"%":        Rem,
	"==":       EqEq,
	"!=":       Neq,
	"<":        Lt,
	">":        Gt,
	">=":       Gte,
	"<=":       Lte,
	"&&":       AndAnd,
	"||":       OrOr,
	"!":        Not,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	switch t {
	case EOF:
		return "EOF"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case LParen:
		return "("
	case RParen:
		return ")"
	}
	return "?"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
