package kir

// Context tracks the lexical position of a traversal inside a unit: the
// stack of enclosing classes and the enclosing callable. It is threaded
// through the walk explicitly; there is no ambient traversal state.
type Context struct {
	unit    *Unit
	classes []*Class
	fn      *Function
	ctor    *Constructor
}

// Unit returns the unit being traversed.
func (c *Context) Unit() *Unit { return c.unit }

// Class returns the innermost enclosing class, or nil at top level.
func (c *Context) Class() *Class {
	if len(c.classes) == 0 {
		return nil
	}
	return c.classes[len(c.classes)-1]
}

// Classes returns the enclosing class stack, outermost first.
func (c *Context) Classes() []*Class { return c.classes }

// Func returns the enclosing function, or nil inside a constructor or
// outside any callable.
func (c *Context) Func() *Function { return c.fn }

// Ctor returns the enclosing constructor, or nil.
func (c *Context) Ctor() *Constructor { return c.ctor }

// Receiver returns the dispatch receiver of the enclosing callable:
// the function's receiver parameter, or the implicit self of the
// enclosing constructor's class. Nil when there is none.
func (c *Context) Receiver() *Param {
	if c.fn != nil {
		return c.fn.Receiver
	}
	if c.ctor != nil {
		return c.ctor.Self()
	}
	return nil
}

func (c *Context) pushClass(cls *Class) { c.classes = append(c.classes, cls) }
func (c *Context) popClass()            { c.classes = c.classes[:len(c.classes)-1] }

// Transformer rewrites expressions bottom-up. Visit receives each
// expression after its children have been transformed; the returned
// expression replaces the node in its parent. Returning the received
// node leaves the tree unchanged.
type Transformer interface {
	Visit(e Expr, ctx *Context) Expr
}

// TransformUnit applies t to every expression in the unit: top-level
// function bodies, class members (recursively through nested classes
// and companions), and the load initializer if present.
func TransformUnit(u *Unit, t Transformer) {
	ctx := &Context{unit: u}
	for _, f := range u.Functions {
		transformFunc(f, t, ctx)
	}
	for _, cls := range u.Classes {
		transformClass(cls, t, ctx)
	}
	if u.LoadInit != nil {
		transformFunc(u.LoadInit, t, ctx)
	}
}

func transformClass(cls *Class, t Transformer, ctx *Context) {
	ctx.pushClass(cls)
	defer ctx.popClass()
	for _, ct := range cls.Ctors {
		if ct.Body == nil {
			continue
		}
		ctx.ctor = ct
		ct.Body = transformExpr(ct.Body, t, ctx).(*Block)
		ctx.ctor = nil
	}
	for _, m := range cls.Methods {
		transformFunc(m, t, ctx)
	}
	for _, p := range cls.Props {
		if p.Getter != nil {
			transformFunc(p.Getter, t, ctx)
		}
		if p.Setter != nil {
			transformFunc(p.Setter, t, ctx)
		}
	}
	for _, n := range cls.Nested {
		transformClass(n, t, ctx)
	}
	if cls.Companion != nil {
		transformClass(cls.Companion, t, ctx)
	}
}

func transformFunc(f *Function, t Transformer, ctx *Context) {
	if f.Body == nil {
		return
	}
	prev := ctx.fn
	ctx.fn = f
	f.Body = transformExpr(f.Body, t, ctx).(*Block)
	ctx.fn = prev
}

// transformExpr rewrites children in place, then visits the node.
func transformExpr(e Expr, t Transformer, ctx *Context) Expr {
	switch n := e.(type) {
	case *Block:
		for i, sub := range n.Exprs {
			n.Exprs[i] = transformExpr(sub, t, ctx)
		}
	case *Call:
		if n.Receiver != nil {
			n.Receiver = transformExpr(n.Receiver, t, ctx)
		}
		for i, a := range n.Args {
			n.Args[i] = transformExpr(a, t, ctx)
		}
	case *ConstructorCall:
		for i, a := range n.Args {
			n.Args[i] = transformExpr(a, t, ctx)
		}
	case *DelegatingCall:
		for i, a := range n.Args {
			n.Args[i] = transformExpr(a, t, ctx)
		}
	case *VarDecl:
		if n.Init != nil {
			n.Init = transformExpr(n.Init, t, ctx)
		}
	case *Return:
		if n.Value != nil {
			n.Value = transformExpr(n.Value, t, ctx)
		}
	case *CheckNotNull:
		n.Arg = transformExpr(n.Arg, t, ctx)
	case *Cleanup:
		n.Body = transformExpr(n.Body, t, ctx)
		n.Always = transformExpr(n.Always, t, ctx)
	case *Vararg:
		for i, el := range n.Elems {
			n.Elems[i] = transformExpr(el, t, ctx)
		}
	}
	return t.Visit(e, ctx)
}

// EachClass calls f for every class in the unit, including nested
// classes and companions, parents before children.
func EachClass(u *Unit, f func(*Class)) {
	var walk func(*Class)
	walk = func(c *Class) {
		f(c)
		for _, n := range c.Nested {
			walk(n)
		}
		if c.Companion != nil {
			walk(c.Companion)
		}
	}
	for _, c := range u.Classes {
		walk(c)
	}
}
