// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
// of a SysY compilation unit. The grammar is closed: every node carries a
// NodeType tag and exactly one matching *Node data struct.
package ast

import (
	"github.com/xplshn/gsc/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

const (
	// Expressions
	Number NodeType = iota
	Ident
	Index
	BinaryOp
	UnaryOp
	FuncCall
	InitList

	// Statements
	CompUnit
	FuncDecl
	VarDecl
	Assign
	ExprStmt
	If
	While
	Return
	Block
	Break
	Continue
)

var nodeTypeNames = [...]string{
	Number: "Number", Ident: "Ident", Index: "Index", BinaryOp: "BinaryOp", UnaryOp: "UnaryOp",
	FuncCall: "FuncCall", InitList: "InitList", CompUnit: "CompUnit", FuncDecl: "FuncDecl",
	VarDecl: "VarDecl", Assign: "Assign", ExprStmt: "ExprStmt", If: "If", While: "While",
	Return: "Return", Block: "Block", Break: "Break", Continue: "Continue",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "Unknown"
}

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
}

// --- Node Data Structs ---
type NumberNode struct{ Value int32 }
type IdentNode struct{ Name string }
type IndexNode struct {
	Name    string
	Indices []*Node
}
type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}
type UnaryOpNode struct {
	Op   token.Type
	Expr *Node
}
type FuncCallNode struct {
	Name string
	Args []*Node
}

// InitListNode is a braced initializer; Items are expressions or nested lists.
type InitListNode struct{ Items []*Node }

type CompUnitNode struct{ Items []*Node }

// ParamNode describes one formal parameter. IsArray marks `int a[]...`, whose
// trailing dimensions (everything after the first, elided one) are in Dims.
type ParamNode struct {
	Name    string
	IsArray bool
	Dims    []*Node
	Tok     token.Token
}

type FuncDeclNode struct {
	Name   string
	Params []ParamNode
	Body   *Node
	IsVoid bool
}

// VarDeclNode is one declarator of a `const int` or `int` declaration.
type VarDeclNode struct {
	Name    string
	IsConst bool
	Dims    []*Node
	Init    *Node
}

type AssignNode struct{ Lhs, Rhs *Node }
type ExprStmtNode struct{ Expr *Node }
type IfNode struct{ Cond, ThenBody, ElseBody *Node }
type WhileNode struct{ Cond, Body *Node }
type ReturnNode struct{ Expr *Node }
type BlockNode struct{ Stmts []*Node }
type BreakNode struct{}
type ContinueNode struct{}

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewNumber(tok token.Token, value int32) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewIndex(tok token.Token, name string, indices []*Node) *Node {
	return newNode(tok, Index, IndexNode{Name: name, Indices: indices}, indices...)
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args}, args...)
}
func NewInitList(tok token.Token, items []*Node) *Node {
	return newNode(tok, InitList, InitListNode{Items: items}, items...)
}
func NewCompUnit(tok token.Token, items []*Node) *Node {
	return newNode(tok, CompUnit, CompUnitNode{Items: items}, items...)
}
func NewFuncDecl(tok token.Token, name string, params []ParamNode, body *Node, isVoid bool) *Node {
	node := newNode(tok, FuncDecl, FuncDeclNode{Name: name, Params: params, Body: body, IsVoid: isVoid}, body)
	for _, p := range params {
		for _, d := range p.Dims {
			d.Parent = node
		}
	}
	return node
}
func NewVarDecl(tok token.Token, name string, isConst bool, dims []*Node, init *Node) *Node {
	node := newNode(tok, VarDecl, VarDeclNode{Name: name, IsConst: isConst, Dims: dims, Init: init}, init)
	for _, d := range dims {
		d.Parent = node
	}
	return node
}
func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Lhs: lhs, Rhs: rhs}, lhs, rhs)
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr}, expr)
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, ThenBody: thenBody, ElseBody: elseBody}, cond, thenBody, elseBody)
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body}, cond, body)
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr}, expr)
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts}, stmts...)
}
func NewBreak(tok token.Token) *Node {
	return newNode(tok, Break, BreakNode{})
}
func NewContinue(tok token.Token) *Node {
	return newNode(tok, Continue, ContinueNode{})
}
