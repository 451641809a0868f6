package kir

import "strconv"

// Pos is a source position inside the unit's file.
type Pos struct {
	Line int
	Col  int
}

// Tag marks declarations for interop processing. Tags are set by the
// frontend from source annotations and read by the lowering passes.
type Tag uint16

const (
	// TagAction marks a method exposed as a foreign action handler.
	TagAction Tag = 1 << iota
	// TagOutlet marks a mutable property exposed as a foreign outlet.
	TagOutlet
	// TagOverrideInit marks a constructor overriding a foreign initializer.
	TagOverrideInit
	// TagExport marks a class registered with the foreign runtime at load.
	TagExport
	// TagCallbackEntry marks a function that is a callback entry point
	// from the foreign runtime into host code.
	TagCallbackEntry
	// TagFactory marks an imported factory method that allocates on its
	// class-pointer receiver.
	TagFactory
)

// Has reports whether all bits of q are set.
func (t Tag) Has(q Tag) bool { return t&q == q }

// ForeignInfo binds a function or constructor to the foreign runtime:
// the selector it answers to, its type encoding, the designated
// initializer flag for init-family methods, and the generated bridge.
// A nil ForeignInfo means the declaration is not foreign-bound.
type ForeignInfo struct {
	Selector       string
	Encoding       string
	Bridge         *Function
	DesignatedInit bool
}

// ClassKind distinguishes the declaration forms a Kiln class can take.
type ClassKind int

const (
	KindClass ClassKind = iota
	KindObject
	KindInterface
)

func (k ClassKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindObject:
		return "object"
	case KindInterface:
		return "interface"
	default:
		return "classkind?"
	}
}

// Class is a class, singleton object, or interface declaration.
type Class struct {
	Name        string
	Pos         Pos
	Kind        ClassKind
	Open        bool
	Foreign     bool // imported from the foreign runtime
	IsCompanion bool
	Tags        Tag
	Parent      *Class // lexically enclosing class, nil at top level
	Companion   *Class
	Supers      []*Type
	Ctors       []*Constructor
	Methods     []*Function
	Props       []*Property
	Nested      []*Class
}

// QualifiedName returns the dotted path of the class inside its unit.
func (c *Class) QualifiedName() string {
	if c.Parent != nil {
		return c.Parent.QualifiedName() + "." + c.Name
	}
	return c.Name
}

// SuperClass returns the class (non-interface) supertype, or nil.
func (c *Class) SuperClass() *Class {
	for _, s := range c.Supers {
		if s.IsClass() && s.Class.Kind != KindInterface {
			return s.Class
		}
	}
	return nil
}

// ForeignBound reports whether the class is imported from the foreign
// runtime or has an imported class anywhere on its superclass chain.
func (c *Class) ForeignBound() bool {
	for cur := c; cur != nil; cur = cur.SuperClass() {
		if cur.Foreign {
			return true
		}
	}
	return false
}

// Constructor is a class constructor. External constructors of imported
// classes have no body and link to their foreign init method.
type Constructor struct {
	Pos        Pos
	Parent     *Class
	Params     []*Param
	Tags       Tag
	External   bool
	InitMethod *Function // foreign init method this constructor maps to
	Body       *Block

	self *Param
}

// QualifiedName identifies the constructor by its class and arity.
func (c *Constructor) QualifiedName() string {
	return c.Parent.QualifiedName() + ".<init>/" + strconv.Itoa(len(c.Params))
}

// Self returns the constructor's implicit self parameter. The parameter
// is created on first use and stable thereafter, so references compare
// by identity.
func (c *Constructor) Self() *Param {
	if c.self == nil {
		c.self = &Param{Name: "this", Pos: c.Pos, Type: ClassType(c.Parent, false)}
	}
	return c.self
}

// Function is a method or top-level function declaration.
type Function struct {
	Name         string
	Pos          Pos
	Parent       *Class // nil for top-level functions
	Receiver     *Param // dispatch receiver, nil for top-level functions
	Extension    *Param // extension receiver, nil if none
	Params       []*Param
	Return       *Type
	Tags         Tag
	External     bool
	Exported     bool   // symbol visible to the foreign runtime
	Symbol       string // link symbol when external or exported
	Open         bool
	Variadic     bool
	FakeOverride bool // implicit override synthesized by the frontend
	Overrides    []*Function
	Foreign      *ForeignInfo
	Body         *Block
}

// QualifiedName returns the dotted path of the function.
func (f *Function) QualifiedName() string {
	if f.Parent != nil {
		return f.Parent.QualifiedName() + "." + f.Name
	}
	return f.Name
}

// OverridesOneOf reports whether f overrides any of the given functions,
// directly or transitively.
func (f *Function) OverridesOneOf(targets ...*Function) bool {
	for _, o := range f.Overrides {
		for _, t := range targets {
			if o == t {
				return true
			}
		}
		if o.OverridesOneOf(targets...) {
			return true
		}
	}
	return false
}

// Property is a class property. Accessor functions are synthesized by
// the frontend; external properties may have none.
type Property struct {
	Name    string
	Pos     Pos
	Parent  *Class
	Type    *Type
	Mutable bool
	Tags    Tag
	Getter  *Function
	Setter  *Function
}

// QualifiedName returns the dotted path of the property.
func (p *Property) QualifiedName() string {
	return p.Parent.QualifiedName() + "." + p.Name
}

// ValueDecl is implemented by declarations an expression can reference
// by value: parameters and local variables.
type ValueDecl interface {
	DeclName() string
	DeclType() *Type
	valueDecl()
}

// Param is a function, constructor, or receiver parameter.
type Param struct {
	Name string
	Pos  Pos
	Type *Type
}

func (p *Param) DeclName() string { return p.Name }
func (p *Param) DeclType() *Type  { return p.Type }
func (p *Param) valueDecl()       {}

// Variable is a local introduced by a VarDecl expression.
type Variable struct {
	Name string
	Pos  Pos
	Type *Type
}

func (v *Variable) DeclName() string { return v.Name }
func (v *Variable) DeclType() *Type  { return v.Type }
func (v *Variable) valueDecl()       {}

// Unit is one compilation unit: the declarations of a single source
// file, mutated in place by lowering.
type Unit struct {
	Path         string
	CallbackStub bool // file implements callback entry stubs; call rewriting defers
	Classes      []*Class
	Functions    []*Function
	LoadInit     *Function // module-load initializer, created on demand
}
