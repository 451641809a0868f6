package kir

// Builtins carries the host declarations every unit implicitly links
// against: the root class Any with its no-argument constructor and the
// three universal root methods.
type Builtins struct {
	Any        *Class
	AnyCtor    *Constructor
	ToString   *Function
	HashCode   *Function
	Equals     *Function
	StringType *Type
}

// NewBuiltins constructs the host builtin declarations.
func NewBuiltins() *Builtins {
	b := &Builtins{}
	b.Any = &Class{Name: "Any", Kind: KindClass, Open: true}
	b.AnyCtor = &Constructor{Parent: b.Any, External: true}
	b.Any.Ctors = []*Constructor{b.AnyCtor}
	b.StringType = Prim(PrimString)

	self := func() *Param {
		return &Param{Name: "this", Type: ClassType(b.Any, false)}
	}
	b.ToString = &Function{
		Name:     "toString",
		Parent:   b.Any,
		Receiver: self(),
		Return:   b.StringType,
		Open:     true,
		External: true,
	}
	b.HashCode = &Function{
		Name:     "hashCode",
		Parent:   b.Any,
		Receiver: self(),
		Return:   Prim(PrimInt32),
		Open:     true,
		External: true,
	}
	b.Equals = &Function{
		Name:     "equals",
		Parent:   b.Any,
		Receiver: self(),
		Params:   []*Param{{Name: "other", Type: ClassType(b.Any, true)}},
		Return:   Prim(PrimBool),
		Open:     true,
		External: true,
	}
	b.Any.Methods = []*Function{b.ToString, b.HashCode, b.Equals}
	return b
}
