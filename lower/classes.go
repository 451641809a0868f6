package lower

import (
	"fmt"

	"github.com/kilnlang/kobjc/kir"
	"github.com/kilnlang/kobjc/objc"
)

// standInKind identifies which stand-in a tagged member synthesizes.
// Resolved once per declaration; synthesis dispatches exhaustively.
type standInKind int

const (
	standInAction standInKind = iota
	standInOutlet
	standInOverrideInit
)

// standIn pairs a resolved kind with the tagged declaration.
type standIn struct {
	kind standInKind
	fn   *kir.Function
	prop *kir.Property
	ctor *kir.Constructor
}

// lowerClasses runs pass one's class stage: every host class touching
// a foreign supertype is validated, and valid classes get their
// stand-ins synthesized and their load-time registration queued.
// Validation failure aborts synthesis for that class only.
func (st *unitState) lowerClasses() {
	kir.EachClass(st.unit, func(c *kir.Class) {
		if c.Foreign || !touchesForeign(c) {
			return
		}
		st.stats.ClassesChecked++
		if !st.validateForeignSubclass(c) {
			return
		}
		for _, si := range standInsOf(c) {
			st.synthesize(c, si)
		}
		if c.Tags.Has(kir.TagExport) {
			st.enqueueRegistration(c)
		}
	})
}

// touchesForeign reports whether any direct supertype is bound to the
// foreign runtime, class or protocol alike.
func touchesForeign(c *kir.Class) bool {
	for _, s := range c.Supers {
		if s.IsClass() && s.Class.ForeignBound() {
			return true
		}
	}
	return false
}

// validateForeignSubclass checks the declaration against the foreign
// subclassing rules and reports every violation it finds.
func (st *unitState) validateForeignSubclass(c *kir.Class) bool {
	subject := c.QualifiedName()
	ok := true

	if c.Kind == kir.KindInterface {
		st.errorf(c.Pos, subject,
			"interface %s cannot inherit a foreign class; only classes and objects can", c.Name)
		ok = false
	}
	if c.Open {
		st.errorf(c.Pos, subject,
			"class %s inherits a foreign class and must be final", c.Name)
		ok = false
	}

	var foreignClasses, foreignProtos, hostSupers int
	for _, s := range c.Supers {
		if !s.IsClass() {
			continue
		}
		switch {
		case !s.Class.ForeignBound():
			hostSupers++
		case s.Class.Kind == kir.KindInterface:
			foreignProtos++
		default:
			foreignClasses++
		}
	}
	if hostSupers > 0 {
		st.errorf(c.Pos, subject,
			"class %s mixes foreign and host supertypes", c.Name)
		ok = false
	}
	switch {
	case foreignClasses == 0:
		st.errorf(c.Pos, subject,
			"class %s implements foreign protocols but inherits no foreign class", c.Name)
		ok = false
	case foreignClasses > 1:
		st.errorf(c.Pos, subject,
			"class %s inherits %d foreign classes; exactly one is required", c.Name, foreignClasses)
		ok = false
	}

	if !st.checkRootOverrides(c) {
		ok = false
	}
	return ok
}

// checkRootOverrides rejects overrides of the universal root methods,
// which the foreign runtime dispatches through its own equivalents.
func (st *unitState) checkRootOverrides(c *kir.Class) bool {
	host := st.rt().Host
	mappings := []struct {
		root    *kir.Function
		foreign string
	}{
		{host.ToString, "description"},
		{host.HashCode, "hash"},
		{host.Equals, "isEqual:"},
	}
	ok := true
	for _, m := range c.Methods {
		if m.FakeOverride {
			continue
		}
		for _, mp := range mappings {
			if !overridesRoot(m, mp.root) {
				continue
			}
			st.errorHint(m.Pos, m.QualifiedName(),
				fmt.Sprintf("method %s overrides '%s', which the foreign runtime does not dispatch", m.Name, mp.root.Name),
				fmt.Sprintf("override the foreign method '%s' instead", mp.foreign))
			ok = false
		}
	}
	return ok
}

// overridesRoot matches by the frontend's override links when present,
// falling back to name and shape.
func overridesRoot(m, root *kir.Function) bool {
	if m.OverridesOneOf(root) {
		return true
	}
	return m.Name == root.Name && len(m.Params) == len(root.Params) && m.Extension == nil
}

// standInsOf resolves the stand-in kind of every tagged member once.
func standInsOf(c *kir.Class) []standIn {
	var out []standIn
	for _, m := range c.Methods {
		if m.Tags.Has(kir.TagAction) {
			out = append(out, standIn{kind: standInAction, fn: m})
		}
	}
	for _, p := range c.Props {
		if p.Tags.Has(kir.TagOutlet) {
			out = append(out, standIn{kind: standInOutlet, prop: p})
		}
	}
	for _, ct := range c.Ctors {
		if ct.Tags.Has(kir.TagOverrideInit) {
			out = append(out, standIn{kind: standInOverrideInit, ctor: ct})
		}
	}
	return out
}

func (st *unitState) synthesize(c *kir.Class, si standIn) {
	switch si.kind {
	case standInAction:
		st.synthAction(c, si.fn)
	case standInOutlet:
		st.synthOutlet(c, si.prop)
	case standInOverrideInit:
		st.synthOverrideInit(c, si.ctor)
	default:
		panic(fmt.Sprintf("lower: unknown stand-in kind %d", si.kind))
	}
}

// hasStandIn reports whether the class already carries a foreign-bound
// member answering to the selector, which makes synthesis a no-op on
// re-runs over lowered output.
func hasStandIn(c *kir.Class, sel string) bool {
	for _, m := range c.Methods {
		if m.Foreign != nil && m.Foreign.Selector == sel {
			return true
		}
	}
	return false
}

// synthAction validates an action handler and synthesizes its exported
// trampoline.
func (st *unitState) synthAction(c *kir.Class, m *kir.Function) {
	subject := m.QualifiedName()
	ok := true
	if len(m.Params) > 1 {
		st.errorf(m.Pos, subject,
			"action handler %s takes %d parameters; at most one is supported", m.Name, len(m.Params))
		ok = false
	}
	for _, p := range m.Params {
		if !p.Type.IsForeignObject() {
			st.errorf(m.Pos, subject,
				"action handler parameter %s must have a foreign object type, found %s", p.Name, p.Type)
			ok = false
		}
	}
	if !m.Return.IsUnit() {
		st.errorf(m.Pos, subject,
			"action handler %s must return Unit, found %s", m.Name, m.Return)
		ok = false
	}
	if m.Extension != nil {
		st.errorf(m.Pos, subject,
			"action handler %s must not have an extension receiver", m.Name)
		ok = false
	}
	if !ok {
		return
	}

	sel := objc.ActionSelector(m.Name, len(m.Params))
	if hasStandIn(c, sel) {
		return
	}
	enc, err := objc.StandInEncoding(len(m.Params))
	if err != nil {
		st.errorf(m.Pos, subject, "action handler %s: %v", m.Name, err)
		return
	}

	var fwd []*kir.Type
	for _, p := range m.Params {
		fwd = append(fwd, p.Type)
	}
	tramp := st.buildTrampoline(c, sel, enc, fwd, func(recv kir.Expr, args []kir.Expr) kir.Expr {
		return &kir.Call{
			Pos:      m.Pos,
			Callee:   m,
			Receiver: recv,
			Args:     args,
			Typ:      m.Return,
		}
	})
	tramp.Pos = m.Pos
	c.Methods = append(c.Methods, tramp)
	st.rt().DeclareTrampoline(tramp)
	st.stats.StandIns++
	st.rewrites++
	st.l.log.Debug("synthesized action stand-in", "class", c.Name, "selector", sel)
}

// synthOutlet validates an outlet property and synthesizes the setter
// trampoline.
func (st *unitState) synthOutlet(c *kir.Class, prop *kir.Property) {
	subject := prop.QualifiedName()
	ok := true
	if !prop.Mutable {
		st.errorf(prop.Pos, subject,
			"outlet property %s must be mutable", prop.Name)
		ok = false
	}
	if !prop.Type.IsForeignObject() {
		st.errorf(prop.Pos, subject,
			"outlet property %s must have a foreign object type, found %s", prop.Name, prop.Type)
		ok = false
	}
	if prop.Setter == nil {
		st.errorf(prop.Pos, subject,
			"outlet property %s has no setter", prop.Name)
		ok = false
	}
	if !ok {
		return
	}

	sel := objc.SetterSelector(prop.Name)
	if hasStandIn(c, sel) {
		return
	}
	enc, err := objc.StandInEncoding(1)
	if err != nil {
		st.errorf(prop.Pos, subject, "outlet property %s: %v", prop.Name, err)
		return
	}

	setter := prop.Setter
	tramp := st.buildTrampoline(c, sel, enc, []*kir.Type{prop.Type}, func(recv kir.Expr, args []kir.Expr) kir.Expr {
		return &kir.Call{
			Pos:      prop.Pos,
			Callee:   setter,
			Receiver: recv,
			Args:     args,
			Typ:      setter.Return,
		}
	})
	tramp.Pos = prop.Pos
	c.Methods = append(c.Methods, tramp)
	st.rt().DeclareTrampoline(tramp)
	st.stats.StandIns++
	st.rewrites++
	st.l.log.Debug("synthesized outlet stand-in", "class", c.Name, "selector", sel)
}

// buildTrampoline assembles an exported stand-in: raw pointer
// parameters for self, the selector, and each forwarded argument, a
// body that reinterprets the pointers and forwards through call, and
// the selector/encoding pair the metadata phase emits.
func (st *unitState) buildTrampoline(c *kir.Class, sel, enc string, argTypes []*kir.Type, call func(recv kir.Expr, args []kir.Expr) kir.Expr) *kir.Function {
	rawPtr := kir.Prim(kir.PrimRawPtr)
	selfP := &kir.Param{Name: "self", Type: rawPtr}
	cmdP := &kir.Param{Name: "cmd", Type: rawPtr}
	params := []*kir.Param{selfP, cmdP}
	for i := range argTypes {
		params = append(params, &kir.Param{Name: fmt.Sprintf("a%d", i), Type: rawPtr})
	}

	recv := st.reinterpret(selfP, kir.ClassType(c, false))
	var args []kir.Expr
	for i, t := range argTypes {
		args = append(args, st.reinterpret(params[2+i], t))
	}

	return &kir.Function{
		Name:     "imp:" + sel,
		Parent:   c,
		Params:   params,
		Return:   kir.Prim(kir.PrimUnit),
		Exported: true,
		Symbol:   objc.Symbol("kobjc_tramp", c.Name, sel),
		Foreign:  &kir.ForeignInfo{Selector: sel, Encoding: enc},
		Body: &kir.Block{
			Typ:   kir.Prim(kir.PrimUnit),
			Exprs: []kir.Expr{call(recv, args)},
		},
	}
}

// reinterpret turns an incoming raw pointer parameter back into a
// wrapper value of the expected type, null-checked unless the type is
// nullable.
func (st *unitState) reinterpret(p *kir.Param, want *kir.Type) kir.Expr {
	interp := st.rt().Prims.InterpretPtr
	var e kir.Expr = &kir.Call{
		Callee: interp,
		Args:   []kir.Expr{&kir.ValueRef{Decl: p}},
		Typ:    interp.Return,
	}
	if !want.Nullable {
		e = &kir.CheckNotNull{Arg: e}
	}
	return e
}

// synthOverrideInit matches a tagged constructor against the foreign
// superclass's constructors and synthesizes the initializer override.
func (st *unitState) synthOverrideInit(c *kir.Class, ctor *kir.Constructor) {
	subject := ctor.QualifiedName()
	super := c.SuperClass()
	if super == nil {
		return
	}

	var matches []*kir.Constructor
	for _, sc := range super.Ctors {
		if sameCtorShape(sc, ctor) {
			matches = append(matches, sc)
		}
	}
	switch {
	case len(matches) == 0:
		st.errorf(ctor.Pos, subject,
			"constructor overrides no initializer: %s declares no constructor with matching parameters", super.Name)
		return
	case len(matches) > 1:
		st.errorf(ctor.Pos, subject,
			"initializer override is ambiguous: %d constructors of %s match", len(matches), super.Name)
		return
	}

	target := matches[0]
	initM := target.InitMethod
	if initM == nil || initM.Foreign == nil {
		panic(fmt.Sprintf("lower: constructor %s has no foreign init method", target.QualifiedName()))
	}
	sel := initM.Foreign.Selector
	if hasStandIn(c, sel) {
		return
	}

	// Drop the frontend's implicit override of the init method; an
	// explicit one conflicts with the synthesized override.
	kept := c.Methods[:0]
	conflict := false
	for _, m := range c.Methods {
		if m.OverridesOneOf(initM) {
			if m.FakeOverride {
				continue
			}
			st.errorf(m.Pos, subject,
				"method %s explicitly overrides initializer '%s', which conflicts with the constructor override", m.Name, sel)
			conflict = true
		}
		kept = append(kept, m)
	}
	c.Methods = kept
	if conflict {
		return
	}

	self := &kir.Param{Name: "this", Pos: ctor.Pos, Type: kir.ClassType(c, false)}
	params := make([]*kir.Param, len(ctor.Params))
	fwd := make([]kir.Expr, len(ctor.Params))
	for i, p := range ctor.Params {
		params[i] = &kir.Param{Name: p.Name, Pos: p.Pos, Type: p.Type}
		fwd[i] = &kir.ValueRef{Pos: p.Pos, Decl: params[i]}
	}

	initBy := st.rt().Prims.InitBy
	body := &kir.Block{
		Typ: initBy.Return,
		Exprs: []kir.Expr{
			&kir.Call{
				Pos:      ctor.Pos,
				Callee:   initBy,
				Receiver: &kir.ValueRef{Pos: ctor.Pos, Decl: self},
				Args: []kir.Expr{
					&kir.ConstructorCall{Pos: ctor.Pos, Ctor: ctor, Args: fwd},
				},
				Typ: initBy.Return,
			},
		},
	}

	ov := &kir.Function{
		Name:      initM.Name,
		Pos:       ctor.Pos,
		Parent:    c,
		Receiver:  self,
		Params:    params,
		Return:    initM.Return,
		Overrides: []*kir.Function{initM},
		Foreign: &kir.ForeignInfo{
			Selector:       sel,
			Encoding:       initM.Foreign.Encoding,
			DesignatedInit: initM.Foreign.DesignatedInit,
		},
		Body: body,
	}
	c.Methods = append(c.Methods, ov)
	st.stats.StandIns++
	st.rewrites++
	st.l.log.Debug("synthesized initializer override", "class", c.Name, "selector", sel)
}

// sameCtorShape matches constructors by exact arity, parameter names,
// and parameter types.
func sameCtorShape(a, b *kir.Constructor) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i].Name != b.Params[i].Name || !a.Params[i].Type.Equal(b.Params[i].Type) {
			return false
		}
	}
	return true
}

// enqueueRegistration queues the load-time class pointer fetch that
// registers an exported class with the foreign runtime. The tag is
// consumed so the registration is materialized exactly once.
func (st *unitState) enqueueRegistration(c *kir.Class) {
	st.pending = append(st.pending, st.classPointer(c.Name, c.Pos))
	c.Tags &^= kir.TagExport
	st.stats.Registrations++
	st.rewrites++
	st.l.log.Debug("queued class registration", "class", c.Name)
}
