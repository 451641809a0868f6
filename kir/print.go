package kir

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes an indented dump of the unit's declarations and bodies.
// The format is for debugging and test output, not a stable interchange
// form.
func Fprint(w io.Writer, u *Unit) {
	p := &printer{w: w}
	fmt.Fprintf(w, "unit %s", u.Path)
	if u.CallbackStub {
		fmt.Fprint(w, " [callback-stub]")
	}
	fmt.Fprintln(w)
	for _, f := range u.Functions {
		p.function(f, 1)
	}
	for _, c := range u.Classes {
		p.class(c, 1)
	}
	if u.LoadInit != nil {
		fmt.Fprintln(w, "  loadinit:")
		p.function(u.LoadInit, 2)
	}
}

type printer struct {
	w io.Writer
}

func (p *printer) indent(n int) {
	io.WriteString(p.w, strings.Repeat("  ", n))
}

func (p *printer) class(c *Class, depth int) {
	p.indent(depth)
	fmt.Fprintf(p.w, "%s %s", c.Kind, c.Name)
	if c.Foreign {
		fmt.Fprint(p.w, " [foreign]")
	}
	if c.IsCompanion {
		fmt.Fprint(p.w, " [companion]")
	}
	if c.Tags.Has(TagExport) {
		fmt.Fprint(p.w, " [export]")
	}
	if len(c.Supers) > 0 {
		names := make([]string, len(c.Supers))
		for i, s := range c.Supers {
			names[i] = s.String()
		}
		fmt.Fprintf(p.w, " : %s", strings.Join(names, ", "))
	}
	fmt.Fprintln(p.w)
	for _, ct := range c.Ctors {
		p.ctor(ct, depth+1)
	}
	for _, m := range c.Methods {
		p.function(m, depth+1)
	}
	for _, pr := range c.Props {
		p.indent(depth + 1)
		kw := "val"
		if pr.Mutable {
			kw = "var"
		}
		fmt.Fprintf(p.w, "%s %s: %s", kw, pr.Name, pr.Type)
		if pr.Tags.Has(TagOutlet) {
			fmt.Fprint(p.w, " [outlet]")
		}
		fmt.Fprintln(p.w)
	}
	for _, n := range c.Nested {
		p.class(n, depth+1)
	}
	if c.Companion != nil {
		p.class(c.Companion, depth+1)
	}
}

func (p *printer) ctor(c *Constructor, depth int) {
	p.indent(depth)
	fmt.Fprintf(p.w, "init(%s)", paramList(c.Params))
	if c.Tags.Has(TagOverrideInit) {
		fmt.Fprint(p.w, " [override-init]")
	}
	if c.External {
		fmt.Fprint(p.w, " [external]")
	}
	fmt.Fprintln(p.w)
	if c.Body != nil {
		p.expr(c.Body, depth+1)
	}
}

func (p *printer) function(f *Function, depth int) {
	p.indent(depth)
	fmt.Fprintf(p.w, "fn %s(%s): %s", f.Name, paramList(f.Params), f.Return)
	if f.Tags.Has(TagAction) {
		fmt.Fprint(p.w, " [action]")
	}
	if f.Exported {
		fmt.Fprintf(p.w, " [exported %s]", f.Symbol)
	}
	if f.Foreign != nil {
		fmt.Fprintf(p.w, " [sel %q enc %q]", f.Foreign.Selector, f.Foreign.Encoding)
	}
	fmt.Fprintln(p.w)
	if f.Body != nil {
		p.expr(f.Body, depth+1)
	}
}

func (p *printer) expr(e Expr, depth int) {
	p.indent(depth)
	switch n := e.(type) {
	case *Block:
		fmt.Fprintln(p.w, "block")
		for _, sub := range n.Exprs {
			p.expr(sub, depth+1)
		}
	case *Call:
		fmt.Fprintf(p.w, "call %s", n.Callee.QualifiedName())
		if n.Super != nil {
			fmt.Fprintf(p.w, " super=%s", n.Super.Name)
		}
		fmt.Fprintln(p.w)
		if n.Receiver != nil {
			p.expr(n.Receiver, depth+1)
		}
		for _, a := range n.Args {
			p.expr(a, depth+1)
		}
	case *ConstructorCall:
		fmt.Fprintf(p.w, "new %s\n", n.Ctor.Parent.QualifiedName())
		for _, a := range n.Args {
			p.expr(a, depth+1)
		}
	case *DelegatingCall:
		fmt.Fprintf(p.w, "delegate %s\n", n.Ctor.QualifiedName())
		for _, a := range n.Args {
			p.expr(a, depth+1)
		}
	case *FunctionRef:
		fmt.Fprintf(p.w, "ref %s\n", n.Target.QualifiedName())
	case *FunctionPtr:
		fmt.Fprintf(p.w, "fnptr %s\n", n.Target.QualifiedName())
	case *ValueRef:
		fmt.Fprintf(p.w, "use %s\n", n.Decl.DeclName())
	case *ObjectRef:
		fmt.Fprintf(p.w, "object %s\n", n.Class.QualifiedName())
	case *VarDecl:
		fmt.Fprintf(p.w, "var %s: %s\n", n.V.Name, n.V.Type)
		if n.Init != nil {
			p.expr(n.Init, depth+1)
		}
	case *Return:
		fmt.Fprintln(p.w, "return")
		if n.Value != nil {
			p.expr(n.Value, depth+1)
		}
	case *IntConst:
		fmt.Fprintf(p.w, "const %d: %s\n", n.Value, n.Typ)
	case *FloatConst:
		fmt.Fprintf(p.w, "const %g: %s\n", n.Value, n.Typ)
	case *StringConst:
		fmt.Fprintf(p.w, "const %q\n", n.Value)
	case *Null:
		fmt.Fprintln(p.w, "null")
	case *CheckNotNull:
		fmt.Fprintln(p.w, "checknotnull")
		p.expr(n.Arg, depth+1)
	case *Cleanup:
		fmt.Fprintln(p.w, "cleanup")
		p.expr(n.Body, depth+1)
		p.indent(depth)
		fmt.Fprintln(p.w, "always")
		p.expr(n.Always, depth+1)
	case *Vararg:
		fmt.Fprintf(p.w, "vararg %s\n", n.Elem)
		for _, el := range n.Elems {
			p.expr(el, depth+1)
		}
	default:
		fmt.Fprintf(p.w, "?%T\n", e)
	}
}

func paramList(ps []*Param) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
	}
	return strings.Join(parts, ", ")
}
