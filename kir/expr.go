package kir

// Expr is a node of the expression tree. Every expression knows its
// resolved type and source position. Implementations are pointer
// structs; rewriting replaces nodes wholesale.
type Expr interface {
	Type() *Type
	Position() Pos
	exprNode()
}

// Block evaluates its expressions in order; its value is the value of
// the last expression, or unit when empty.
type Block struct {
	Pos   Pos
	Typ   *Type
	Exprs []Expr
}

// Call invokes a resolved function. Receiver is nil for top-level
// calls; Super is non-nil when dispatch is super-qualified.
type Call struct {
	Pos      Pos
	Callee   *Function
	Receiver Expr
	Super    *Class
	Args     []Expr
	TypeArgs []*Type
	Typ      *Type
}

// ConstructorCall instantiates a class through one of its constructors.
type ConstructorCall struct {
	Pos  Pos
	Ctor *Constructor
	Args []Expr
}

// DelegatingCall is a constructor's delegation to another constructor
// (same class or super class). Only valid inside constructor bodies.
type DelegatingCall struct {
	Pos  Pos
	Ctor *Constructor
	Args []Expr
}

// FunctionRef is a first-class reference to a resolved function.
type FunctionRef struct {
	Pos    Pos
	Target *Function
	Typ    *Type
}

// FunctionPtr is a raw C pointer to a statically-known function. It is
// produced by lowering; the code generator emits the function's address.
type FunctionPtr struct {
	Pos    Pos
	Target *Function
	Typ    *Type
}

// ValueRef reads a parameter or local variable.
type ValueRef struct {
	Pos  Pos
	Decl ValueDecl
}

// ObjectRef is a reference to a singleton or companion object instance.
type ObjectRef struct {
	Pos   Pos
	Class *Class
}

// VarDecl introduces a local variable with an initializer. Its value
// is unit.
type VarDecl struct {
	Pos  Pos
	V    *Variable
	Init Expr
}

// Return exits the enclosing function. Value is nil for unit returns.
type Return struct {
	Pos   Pos
	Value Expr
}

// IntConst is an integer or boolean constant. Value holds the bit
// pattern zero-extended to 64 bits.
type IntConst struct {
	Pos   Pos
	Value uint64
	Typ   *Type
}

// FloatConst is a floating-point constant.
type FloatConst struct {
	Pos   Pos
	Value float64
	Typ   *Type
}

// StringConst is a string constant.
type StringConst struct {
	Pos   Pos
	Value string
	Typ   *Type
}

// Null is the null reference constant.
type Null struct {
	Pos Pos
	Typ *Type
}

// CheckNotNull traps at runtime when its argument is null; its value
// is the argument with nullability stripped.
type CheckNotNull struct {
	Pos Pos
	Arg Expr
}

// Cleanup evaluates Body and runs Always on every exit path out of
// Body, whether Body completes, returns, or unwinds. Its value is the
// value of Body.
type Cleanup struct {
	Pos    Pos
	Body   Expr
	Always Expr
}

// Vararg packs positional arguments into a single variadic container.
type Vararg struct {
	Pos   Pos
	Elem  *Type
	Elems []Expr
}

func (e *Block) Type() *Type           { return e.Typ }
func (e *Call) Type() *Type            { return e.Typ }
func (e *ConstructorCall) Type() *Type { return ClassType(e.Ctor.Parent, false) }
func (e *DelegatingCall) Type() *Type  { return Prim(PrimUnit) }
func (e *FunctionRef) Type() *Type     { return e.Typ }
func (e *FunctionPtr) Type() *Type     { return e.Typ }
func (e *ValueRef) Type() *Type        { return e.Decl.DeclType() }
func (e *ObjectRef) Type() *Type       { return ClassType(e.Class, false) }
func (e *VarDecl) Type() *Type         { return Prim(PrimUnit) }
func (e *Return) Type() *Type          { return Prim(PrimUnit) }
func (e *IntConst) Type() *Type        { return e.Typ }
func (e *FloatConst) Type() *Type      { return e.Typ }
func (e *StringConst) Type() *Type     { return e.Typ }
func (e *Null) Type() *Type            { return e.Typ }
func (e *CheckNotNull) Type() *Type    { return e.Arg.Type().WithNullable(false) }
func (e *Cleanup) Type() *Type         { return e.Body.Type() }
func (e *Vararg) Type() *Type          { return &Type{Prim: PrimVararg, Args: []*Type{e.Elem}} }

func (e *Block) Position() Pos           { return e.Pos }
func (e *Call) Position() Pos            { return e.Pos }
func (e *ConstructorCall) Position() Pos { return e.Pos }
func (e *DelegatingCall) Position() Pos  { return e.Pos }
func (e *FunctionRef) Position() Pos     { return e.Pos }
func (e *FunctionPtr) Position() Pos     { return e.Pos }
func (e *ValueRef) Position() Pos        { return e.Pos }
func (e *ObjectRef) Position() Pos       { return e.Pos }
func (e *VarDecl) Position() Pos         { return e.Pos }
func (e *Return) Position() Pos          { return e.Pos }
func (e *IntConst) Position() Pos        { return e.Pos }
func (e *FloatConst) Position() Pos      { return e.Pos }
func (e *StringConst) Position() Pos     { return e.Pos }
func (e *Null) Position() Pos            { return e.Pos }
func (e *CheckNotNull) Position() Pos    { return e.Pos }
func (e *Cleanup) Position() Pos         { return e.Pos }
func (e *Vararg) Position() Pos          { return e.Pos }

func (*Block) exprNode()           {}
func (*Call) exprNode()            {}
func (*ConstructorCall) exprNode() {}
func (*DelegatingCall) exprNode()  {}
func (*FunctionRef) exprNode()     {}
func (*FunctionPtr) exprNode()     {}
func (*ValueRef) exprNode()        {}
func (*ObjectRef) exprNode()       {}
func (*VarDecl) exprNode()         {}
func (*Return) exprNode()          {}
func (*IntConst) exprNode()        {}
func (*FloatConst) exprNode()      {}
func (*StringConst) exprNode()     {}
func (*Null) exprNode()            {}
func (*CheckNotNull) exprNode()    {}
func (*Cleanup) exprNode()         {}
func (*Vararg) exprNode()          {}
