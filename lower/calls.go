package lower

import (
	"fmt"

	"github.com/kilnlang/kobjc/kir"
	"github.com/kilnlang/kobjc/objc"
)

// callRewriter is the pass-one transformer for constructor delegation
// and boundary-crossing calls.
type callRewriter struct {
	st *unitState
}

func (cr *callRewriter) Visit(e kir.Expr, ctx *kir.Context) kir.Expr {
	switch n := e.(type) {
	case *kir.DelegatingCall:
		return cr.st.rewriteDelegating(n, ctx)
	case *kir.ConstructorCall:
		return cr.st.rewriteCtorCall(n, ctx)
	case *kir.Call:
		return cr.st.rewriteCall(n, ctx)
	}
	return e
}

// rewriteDelegating lowers a constructor's delegation to a foreign
// super constructor: a bridge call through the foreign super class,
// reconciled by the super-init-check primitive, with a no-op
// delegation to the root constructor keeping the tree well-formed.
func (st *unitState) rewriteDelegating(n *kir.DelegatingCall, ctx *kir.Context) kir.Expr {
	cls := ctx.Class()
	if cls == nil {
		return n
	}
	// Companions paired with a foreign class get their metaclass
	// wiring in the metadata phase, not here.
	if cls.IsCompanion && cls.Parent != nil && cls.Parent.ForeignBound() {
		return n
	}
	target := n.Ctor
	if !target.External || target.InitMethod == nil {
		return n
	}
	initM := target.InitMethod
	if initM.Foreign == nil {
		panic(fmt.Sprintf("lower: constructor %s has no foreign init method", target.QualifiedName()))
	}
	subject := subjectOf(ctx)
	if !initM.Foreign.DesignatedInit {
		st.errorf(n.Pos, subject,
			"cannot delegate to '%s': it is not a designated initializer of %s",
			initM.Foreign.Selector, target.Parent.Name)
		return n
	}

	self := ctx.Receiver()
	if self == nil {
		return n
	}
	bridge := st.rt().BridgeFor(initM)
	plan := objc.BridgeCallPlan{
		Super:    st.classPointer(target.Parent.Name, n.Pos),
		Receiver: st.rawPointer(&kir.ValueRef{Pos: n.Pos, Decl: self}, n.Pos),
		Args:     n.Args,
	}
	bridgeCall := &kir.Call{
		Pos:    n.Pos,
		Callee: bridge,
		Args:   plan.Flatten(bridge),
		Typ:    bridge.Return,
	}
	check := st.rt().Prims.SuperInitCheck
	st.stats.CallsBridged++
	st.rewrites++
	st.l.log.Debug("rewrote constructor delegation", "class", cls.Name, "selector", initM.Foreign.Selector)
	return &kir.Block{
		Pos: n.Pos,
		Typ: kir.Prim(kir.PrimUnit),
		Exprs: []kir.Expr{
			&kir.Call{
				Pos:    n.Pos,
				Callee: check,
				Args:   []kir.Expr{&kir.ValueRef{Pos: n.Pos, Decl: self}, bridgeCall},
				Typ:    check.Return,
			},
			&kir.DelegatingCall{Pos: n.Pos, Ctor: st.rt().Host.AnyCtor},
		},
	}
}

// rewriteCtorCall lowers instantiation of an imported foreign class:
// allocate, bridge the initializer, force the result non-null.
func (st *unitState) rewriteCtorCall(n *kir.ConstructorCall, ctx *kir.Context) kir.Expr {
	ctor := n.Ctor
	if !ctor.External || ctor.InitMethod == nil {
		return n
	}
	st.stats.CallsBridged++
	st.rewrites++
	return st.allocInitChain(ctor.InitMethod, st.classPointer(ctor.Parent.Name, n.Pos), n.Args, n.Pos)
}

// rewriteCall handles the remaining pass-one rewrites in priority
// order: factory calls, ordinary foreign method calls, and the type
// descriptor pattern. Anything else passes through unchanged.
func (st *unitState) rewriteCall(n *kir.Call, ctx *kir.Context) kir.Expr {
	callee := n.Callee
	switch {
	case callee.Tags.Has(kir.TagFactory) && callee.Foreign != nil && n.Receiver != nil:
		st.stats.CallsBridged++
		st.rewrites++
		return st.allocInitChain(callee, st.rawPointer(n.Receiver, n.Pos), n.Args, n.Pos)

	case callee.Foreign != nil && callee.Parent != nil && n.Receiver != nil:
		return st.rewriteForeignMethodCall(n, ctx)

	case callee == st.rt().Intrinsics.TypeDescriptorOf:
		return st.rewriteTypeDescriptor(n, ctx)
	}
	return n
}

// allocInitChain builds the alloc + bridge-init + force-non-null
// sequence. The allocation's retain is balanced by a release that runs
// on every exit path out of the init call.
func (st *unitState) allocInitChain(initM *kir.Function, clsPtr kir.Expr, args []kir.Expr, pos kir.Pos) kir.Expr {
	prims := &st.rt().Prims
	v := &kir.Variable{Name: "allocated", Pos: pos, Type: kir.Prim(kir.PrimRawPtr)}
	alloc := &kir.Call{Pos: pos, Callee: prims.Alloc, Args: []kir.Expr{clsPtr}, Typ: prims.Alloc.Return}

	bridge := st.rt().BridgeFor(initM)
	plan := objc.BridgeCallPlan{
		Super:    st.nullPtr(pos),
		Receiver: &kir.ValueRef{Pos: pos, Decl: v},
		Args:     args,
	}
	initCall := &kir.Call{Pos: pos, Callee: bridge, Args: plan.Flatten(bridge), Typ: bridge.Return}
	release := &kir.Call{
		Pos:    pos,
		Callee: prims.Release,
		Args:   []kir.Expr{&kir.ValueRef{Pos: pos, Decl: v}},
		Typ:    prims.Release.Return,
	}
	checked := &kir.CheckNotNull{Pos: pos, Arg: &kir.Cleanup{Pos: pos, Body: initCall, Always: release}}
	return &kir.Block{
		Pos: pos,
		Typ: checked.Type(),
		Exprs: []kir.Expr{
			&kir.VarDecl{Pos: pos, V: v, Init: alloc},
			checked,
		},
	}
}

// rewriteForeignMethodCall lowers an ordinary call to a foreign-bound
// method into a direct bridge call on the receiver's raw pointer.
// Inside callback entry stubs the call is left for the virtual
// dispatch phase.
func (st *unitState) rewriteForeignMethodCall(n *kir.Call, ctx *kir.Context) kir.Expr {
	if st.bypassRewrite(ctx) {
		return n
	}
	subject := subjectOf(ctx)
	superPtr := st.nullPtr(n.Pos)
	if n.Super != nil {
		if n.Super.Kind == kir.KindInterface {
			st.errorf(n.Pos, subject,
				"super call to protocol method '%s' is not supported", n.Callee.Foreign.Selector)
			return n
		}
		if n.Super.IsCompanion || n.Callee.Parent.IsCompanion {
			st.errorf(n.Pos, subject,
				"super call to metaclass method '%s' is not supported", n.Callee.Foreign.Selector)
			return n
		}
		superPtr = st.classPointer(n.Super.Name, n.Pos)
	}

	bridge := st.rt().BridgeFor(n.Callee)
	plan := objc.BridgeCallPlan{
		Super:    superPtr,
		Receiver: st.rawPointer(n.Receiver, n.Pos),
		Args:     n.Args,
	}
	st.stats.CallsBridged++
	st.rewrites++
	return &kir.Call{
		Pos:    n.Pos,
		Callee: bridge,
		Args:   plan.Flatten(bridge),
		Typ:    n.Callee.Return,
	}
}

// bypassRewrite reports whether the surrounding code defers method
// rewriting to the virtual dispatch phase: callback stub units, and
// functions marked as callback entries.
func (st *unitState) bypassRewrite(ctx *kir.Context) bool {
	if st.unit.CallbackStub {
		return true
	}
	f := ctx.Func()
	return f != nil && f.Tags.Has(kir.TagCallbackEntry)
}

// rewriteTypeDescriptor resolves the type-descriptor-of-T pattern to
// T's companion object. Every foreign-usable class is guaranteed a
// companion by the frontend.
func (st *unitState) rewriteTypeDescriptor(n *kir.Call, ctx *kir.Context) kir.Expr {
	if len(n.TypeArgs) != 1 {
		st.errorf(n.Pos, subjectOf(ctx),
			"type descriptor takes exactly one type argument, found %d", len(n.TypeArgs))
		return n
	}
	t := n.TypeArgs[0]
	if !t.IsForeignObject() {
		return n
	}
	comp := t.Class.Companion
	if comp == nil {
		panic(fmt.Sprintf("lower: foreign-usable class %s has no companion object", t.Class.Name))
	}
	st.stats.CallsBridged++
	st.rewrites++
	return &kir.ObjectRef{Pos: n.Pos, Class: comp}
}

// subjectOf names the declaration a diagnostic should attach to.
func subjectOf(ctx *kir.Context) string {
	if f := ctx.Func(); f != nil {
		return f.QualifiedName()
	}
	if c := ctx.Ctor(); c != nil {
		return c.QualifiedName()
	}
	if cls := ctx.Class(); cls != nil {
		return cls.QualifiedName()
	}
	return ctx.Unit().Path
}
