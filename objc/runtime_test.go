package objc

import (
	"strings"
	"testing"

	"github.com/llir/llvm/ir/types"

	"github.com/kilnlang/kobjc/kir"
)

func TestRuntimeClasses(t *testing.T) {
	rt := NewRuntime()

	if !rt.Object.Foreign || !rt.Base.Foreign || !rt.Ptr.Foreign {
		t.Error("wrapper classes must be foreign-bound")
	}
	if got := rt.Base.SuperClass(); got != rt.Object {
		t.Errorf("ObjectBase super = %v, want Object", got)
	}
	if !rt.Base.ForeignBound() {
		t.Error("ObjectBase should be foreign-bound through Object")
	}
	if rt.Host.Any == nil || rt.Host.AnyCtor == nil {
		t.Fatal("host builtins missing")
	}
	if rt.Host.AnyCtor.Parent != rt.Host.Any {
		t.Error("Any constructor not attached to Any")
	}
}

func TestPrimitiveDeclarations(t *testing.T) {
	rt := NewRuntime()

	tests := []struct {
		fn     *kir.Function
		symbol string
		params int
	}{
		{rt.Prims.Alloc, "kobjc_alloc", 1},
		{rt.Prims.Release, "kobjc_release", 1},
		{rt.Prims.GetClass, "kobjc_get_class", 1},
		{rt.Prims.RawPtr, "kobjc_raw_ptr", 1},
		{rt.Prims.InterpretPtr, "kobjc_interpret_ptr", 1},
		{rt.Prims.InitBy, "kobjc_init_by", 1},
		{rt.Prims.SuperInitCheck, "kobjc_super_init_check", 2},
		{rt.Prims.Schedule, "kobjc_schedule", 4},
	}
	for _, tt := range tests {
		if tt.fn.Symbol != tt.symbol {
			t.Errorf("symbol = %q, want %q", tt.fn.Symbol, tt.symbol)
		}
		if len(tt.fn.Params) != tt.params {
			t.Errorf("%s params = %d, want %d", tt.symbol, len(tt.fn.Params), tt.params)
		}
		ll := rt.LLFunc(tt.fn)
		if ll == nil {
			t.Errorf("%s has no LLVM declaration", tt.symbol)
			continue
		}
		if ll.Name() != tt.symbol {
			t.Errorf("LLVM name = %q, want %q", ll.Name(), tt.symbol)
		}
		if len(ll.Params) != tt.params {
			t.Errorf("%s LLVM params = %d, want %d", tt.symbol, len(ll.Params), tt.params)
		}
	}

	// Reinterpret is folded by codegen and has no C entry.
	if rt.LLFunc(rt.Prims.Reinterpret) != nil {
		t.Error("reinterpret should have no LLVM declaration")
	}
	// Intrinsics vanish during lowering and are never declared.
	for _, in := range []*kir.Function{
		rt.Intrinsics.SignExtend, rt.Intrinsics.Narrow, rt.Intrinsics.Convert,
		rt.Intrinsics.StaticCFunction, rt.Intrinsics.Invoke, rt.Intrinsics.TypeDescriptorOf,
	} {
		if rt.LLFunc(in) != nil {
			t.Errorf("intrinsic %s should have no LLVM declaration", in.Name)
		}
	}
}

func TestConversionTable(t *testing.T) {
	rt := NewRuntime()
	signed := []kir.PrimKind{kir.PrimInt8, kir.PrimInt16, kir.PrimInt32, kir.PrimInt64}

	for _, src := range signed {
		row := rt.Conversions[src]
		if len(row) != 4 {
			t.Fatalf("conversions from %s = %d entries, want 4", src, len(row))
		}
		for _, dst := range signed {
			f := row[dst]
			if f == nil {
				t.Fatalf("missing conversion %s -> %s", src, dst)
			}
			if want := "to" + dst.String(); f.Name != want {
				t.Errorf("conversion name = %q, want %q", f.Name, want)
			}
			if f.Extension == nil || !f.Extension.Type.IsPrim(src) {
				t.Errorf("conversion %s -> %s: extension receiver = %v, want %s", src, dst, f.Extension, src)
			}
			if !f.Return.IsPrim(dst) {
				t.Errorf("conversion %s -> %s returns %s", src, dst, f.Return)
			}
		}
	}
}

func TestInvokerTable(t *testing.T) {
	rt := NewRuntime()
	if len(rt.Invokers) != 13 {
		t.Errorf("invokers = %d, want 13", len(rt.Invokers))
	}
	for kind, f := range rt.Invokers {
		if !f.Return.IsPrim(kind) {
			t.Errorf("invoker for %s returns %s", kind, f.Return)
		}
		if !f.Variadic {
			t.Errorf("invoker %s not variadic", f.Symbol)
		}
		if !strings.HasPrefix(f.Symbol, "kobjc_invoke_") {
			t.Errorf("invoker symbol = %q", f.Symbol)
		}
		ll := rt.LLFunc(f)
		if ll == nil {
			t.Errorf("invoker %s has no LLVM declaration", f.Symbol)
			continue
		}
		if !ll.Sig.Variadic {
			t.Errorf("invoker %s LLVM declaration not variadic", f.Symbol)
		}
	}
	if _, ok := rt.Invokers[kir.PrimString]; ok {
		t.Error("string must not have an invoke trampoline")
	}
}

func TestLLType(t *testing.T) {
	obj := &kir.Class{Name: "NSView", Foreign: true}
	tests := []struct {
		t    *kir.Type
		want types.Type
	}{
		{nil, types.Void},
		{kir.Prim(kir.PrimUnit), types.Void},
		{kir.Prim(kir.PrimBool), types.I1},
		{kir.Prim(kir.PrimInt8), types.I8},
		{kir.Prim(kir.PrimUInt8), types.I8},
		{kir.Prim(kir.PrimInt16), types.I16},
		{kir.Prim(kir.PrimInt32), types.I32},
		{kir.Prim(kir.PrimUInt64), types.I64},
		{kir.Prim(kir.PrimFloat32), types.Float},
		{kir.Prim(kir.PrimFloat64), types.Double},
		{kir.Prim(kir.PrimString), i8ptr},
		{kir.Prim(kir.PrimRawPtr), i8ptr},
		{kir.ClassType(obj, true), i8ptr},
	}
	for _, tt := range tests {
		if got := LLType(tt.t); !got.Equal(tt.want) {
			t.Errorf("LLType(%s) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestBridgeFor(t *testing.T) {
	rt := NewRuntime()
	view := &kir.Class{Name: "NSView", Foreign: true}
	setFrame := &kir.Function{
		Name:     "setFrame",
		Parent:   view,
		Receiver: &kir.Param{Name: "this", Type: kir.ClassType(view, false)},
		Params:   []*kir.Param{{Name: "frame", Type: kir.Prim(kir.PrimInt64)}},
		Return:   kir.Prim(kir.PrimUnit),
		External: true,
		Foreign:  &kir.ForeignInfo{Selector: "setFrame:"},
	}

	b := rt.BridgeFor(setFrame)
	if got := len(b.Params); got != 3 {
		t.Fatalf("bridge params = %d, want super + receiver + 1", got)
	}
	if b.Params[0].Name != "super" || !b.Params[0].Type.IsPrim(kir.PrimRawPtr) {
		t.Errorf("param[0] = %s %s, want super RawPtr", b.Params[0].Name, b.Params[0].Type)
	}
	if b.Params[1].Name != "receiver" || !b.Params[1].Type.IsPrim(kir.PrimRawPtr) {
		t.Errorf("param[1] = %s %s, want receiver RawPtr", b.Params[1].Name, b.Params[1].Type)
	}
	if !b.Params[2].Type.IsPrim(kir.PrimInt64) {
		t.Errorf("param[2] = %s, want the method's own parameter", b.Params[2].Type)
	}
	if b.Symbol != "kobjc_bridge_NSView_setFrame_" {
		t.Errorf("symbol = %q", b.Symbol)
	}
	if !b.External {
		t.Error("bridge must be external")
	}
	if rt.LLFunc(b) == nil {
		t.Error("bridge has no LLVM declaration")
	}

	// The bridge is created once and cached on the foreign info.
	if again := rt.BridgeFor(setFrame); again != b {
		t.Error("second BridgeFor call built a new bridge")
	}
	if setFrame.Foreign.Bridge != b {
		t.Error("bridge not cached on the foreign info")
	}
}

func TestBridgeForNonForeignPanics(t *testing.T) {
	rt := NewRuntime()
	plain := &kir.Function{Name: "plain"}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for non-foreign function")
		}
	}()
	rt.BridgeFor(plain)
}

func TestDeclareTrampoline(t *testing.T) {
	rt := NewRuntime()
	f := &kir.Function{
		Name:   "imp:buttonClicked:",
		Symbol: "kobjc_tramp_Panel_buttonClicked_",
		Params: []*kir.Param{
			{Name: "self", Type: kir.Prim(kir.PrimRawPtr)},
			{Name: "cmd", Type: kir.Prim(kir.PrimRawPtr)},
			{Name: "a0", Type: kir.Prim(kir.PrimRawPtr)},
		},
		Return: kir.Prim(kir.PrimUnit),
	}
	rt.DeclareTrampoline(f)

	ll := rt.LLFunc(f)
	if ll == nil {
		t.Fatal("trampoline has no LLVM declaration")
	}
	if !ll.Sig.RetType.Equal(types.Void) {
		t.Errorf("return = %v, want void", ll.Sig.RetType)
	}
	if len(ll.Params) != 3 {
		t.Fatalf("LLVM params = %d, want 3", len(ll.Params))
	}
	for i, p := range ll.Params {
		if !p.Typ.Equal(i8ptr) {
			t.Errorf("param[%d] = %v, want i8*", i, p.Typ)
		}
	}
}

func TestBridgeCallPlanFlatten(t *testing.T) {
	rt := NewRuntime()
	view := &kir.Class{Name: "NSView", Foreign: true}
	m := &kir.Function{
		Name:    "addSubview",
		Parent:  view,
		Params:  []*kir.Param{{Name: "v", Type: kir.ClassType(view, false)}},
		Return:  kir.Prim(kir.PrimUnit),
		Foreign: &kir.ForeignInfo{Selector: "addSubview:"},
	}
	b := rt.BridgeFor(m)

	super := &kir.Null{Typ: kir.Prim(kir.PrimRawPtr)}
	recv := &kir.Null{Typ: kir.Prim(kir.PrimRawPtr)}
	arg := &kir.Null{Typ: kir.ClassType(view, true)}
	plan := &BridgeCallPlan{Super: super, Receiver: recv, Args: []kir.Expr{arg}}

	got := plan.Flatten(b)
	if len(got) != 3 {
		t.Fatalf("flattened args = %d, want 3", len(got))
	}
	if got[0] != kir.Expr(super) || got[1] != kir.Expr(recv) || got[2] != kir.Expr(arg) {
		t.Error("argument order must be super, receiver, then user args")
	}
}

func TestBridgeCallPlanMismatchPanics(t *testing.T) {
	rt := NewRuntime()
	view := &kir.Class{Name: "NSView", Foreign: true}
	m := &kir.Function{
		Name:    "display",
		Parent:  view,
		Return:  kir.Prim(kir.PrimUnit),
		Foreign: &kir.ForeignInfo{Selector: "display"},
	}
	b := rt.BridgeFor(m)

	plan := &BridgeCallPlan{
		Super:    &kir.Null{Typ: kir.Prim(kir.PrimRawPtr)},
		Receiver: &kir.Null{Typ: kir.Prim(kir.PrimRawPtr)},
		Args:     []kir.Expr{&kir.Null{Typ: kir.Prim(kir.PrimRawPtr)}},
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic on argument count mismatch")
		}
	}()
	plan.Flatten(b)
}

func TestExternals(t *testing.T) {
	rt := NewRuntime()
	ext := rt.Externals()

	if ext.Classes["objc.Object"] != rt.Object {
		t.Error("objc.Object missing")
	}
	if ext.Classes["kiln.Any"] != rt.Host.Any {
		t.Error("kiln.Any missing")
	}
	if ext.Ctors["kiln.Any.<init>"] != rt.Host.AnyCtor {
		t.Error("kiln.Any.<init> missing")
	}
	if ext.Funcs["objc.allocInstance"] != rt.Prims.Alloc {
		t.Error("objc.allocInstance missing")
	}
	if ext.Funcs["objc.superInitCheck"] != rt.Prims.SuperInitCheck {
		t.Error("objc.superInitCheck missing")
	}
	if ext.Funcs["objc.Object.objcPtr"] != rt.Intrinsics.RawPtrObject {
		t.Error("objc.Object.objcPtr missing")
	}
	if ext.Funcs["objc.ObjectBase.objcPtr"] != rt.Intrinsics.RawPtrBase {
		t.Error("objc.ObjectBase.objcPtr missing")
	}
	if ext.Funcs["objc.staticCFunction"] != rt.Intrinsics.StaticCFunction {
		t.Error("objc.staticCFunction missing")
	}
	if ext.Funcs["kiln.Int8.toInt32"] != rt.Conversions[kir.PrimInt8][kir.PrimInt32] {
		t.Error("kiln.Int8.toInt32 missing")
	}
	if ext.Funcs["objc.invoke_i32"] != rt.Invokers[kir.PrimInt32] {
		t.Error("objc.invoke_i32 missing")
	}
	if ext.Funcs["kiln.Any.toString"] != rt.Host.ToString {
		t.Error("kiln.Any.toString missing")
	}
}
