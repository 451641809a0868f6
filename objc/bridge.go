package objc

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"

	"github.com/kilnlang/kobjc/kir"
)

// BridgeFor returns the bridge function carrying calls to a
// foreign-bound method across the boundary, creating and declaring it
// on first use. The bridge signature is fixed: a super class pointer,
// the receiver pointer, then the method's own parameters.
func (rt *Runtime) BridgeFor(fn *kir.Function) *kir.Function {
	info := fn.Foreign
	if info == nil {
		panic(fmt.Sprintf("objc: bridge requested for non-foreign function %s", fn.QualifiedName()))
	}
	if info.Bridge != nil {
		return info.Bridge
	}

	owner := "_"
	if fn.Parent != nil {
		owner = fn.Parent.Name
	}
	params := make([]*kir.Param, 0, len(fn.Params)+2)
	params = append(params,
		param("super", rt.rawPtr()),
		param("receiver", rt.rawPtr()))
	for _, p := range fn.Params {
		params = append(params, param(p.Name, p.Type))
	}
	bridge := extFunc(
		"bridge:"+info.Selector,
		Symbol("kobjc_bridge", owner, info.Selector),
		params,
		fn.Return,
	)
	rt.declareLL(bridge)
	info.Bridge = bridge
	return bridge
}

// DeclareTrampoline pairs a synthesized stand-in with its exported C
// entry declaration: void @sym(i8* self, i8* cmd, i8* ...). The
// stand-in's own parameter list already begins with self and the
// selector slot; every parameter travels as an object pointer.
func (rt *Runtime) DeclareTrampoline(f *kir.Function) {
	ps := make([]*ir.Param, 0, len(f.Params))
	for _, p := range f.Params {
		ps = append(ps, ir.NewParam(p.Name, i8ptr))
	}
	rt.llFuncs[f] = rt.LL.NewFunc(f.Symbol, types.Void, ps...)
}

// BridgeCallPlan is the ordered argument plan of a lowered bridge call:
// the resolved super class pointer (or a null pointer for ordinary
// dispatch), the receiver pointer, then the positional user arguments.
type BridgeCallPlan struct {
	Super    kir.Expr
	Receiver kir.Expr
	Args     []kir.Expr
}

// Flatten lays the plan out as the bridge call's argument list. The
// total count must equal the bridge's declared parameter count; a
// mismatch is a bug in lowering, not a user error.
func (p *BridgeCallPlan) Flatten(bridge *kir.Function) []kir.Expr {
	if len(p.Args)+2 != len(bridge.Params) {
		panic(fmt.Sprintf("objc: bridge %s takes %d args, plan has %d",
			bridge.Symbol, len(bridge.Params), len(p.Args)+2))
	}
	out := make([]kir.Expr, 0, len(p.Args)+2)
	out = append(out, p.Super, p.Receiver)
	out = append(out, p.Args...)
	return out
}
