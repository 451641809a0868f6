package lower

import (
	"strings"
	"testing"

	"github.com/kilnlang/kobjc/kir"
	"github.com/kilnlang/kobjc/objc"
)

func newLowerer(t *testing.T) (*Lowerer, *objc.Runtime) {
	t.Helper()
	rt := objc.NewRuntime()
	l, err := New(rt, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, rt
}

// testForeign builds an imported class with an external constructor
// bound to an initializer answering sel.
func testForeign(name, sel string, designated bool, params ...*kir.Param) *kir.Class {
	c := &kir.Class{Name: name, Kind: kir.KindClass, Open: true, Foreign: true}
	initM := &kir.Function{
		Name:     "init",
		Parent:   c,
		Receiver: &kir.Param{Name: "this", Type: kir.ClassType(c, false)},
		Params:   params,
		Return:   kir.ClassType(c, true),
		External: true,
		Foreign:  &kir.ForeignInfo{Selector: sel, Encoding: "@16@0:8", DesignatedInit: designated},
	}
	ctor := &kir.Constructor{Parent: c, Params: params, External: true, InitMethod: initM}
	c.Methods = []*kir.Function{initM}
	c.Ctors = []*kir.Constructor{ctor}
	return c
}

// testMethod attaches an external foreign method to an imported class.
func testMethod(c *kir.Class, name, sel string, ret *kir.Type, params ...*kir.Param) *kir.Function {
	m := &kir.Function{
		Name:     name,
		Parent:   c,
		Receiver: &kir.Param{Name: "this", Type: kir.ClassType(c, false)},
		Params:   params,
		Return:   ret,
		External: true,
		Foreign:  &kir.ForeignInfo{Selector: sel},
	}
	c.Methods = append(c.Methods, m)
	return m
}

// testSubclass builds a final host subclass of an imported class.
func testSubclass(name string, super *kir.Class) *kir.Class {
	return &kir.Class{
		Name:   name,
		Kind:   kir.KindClass,
		Supers: []*kir.Type{kir.ClassType(super, false)},
	}
}

// fnUnit wraps expressions in a single top-level function body.
func fnUnit(exprs ...kir.Expr) (*kir.Unit, *kir.Function) {
	fn := &kir.Function{
		Name:   "run",
		Return: kir.Prim(kir.PrimUnit),
		Body:   &kir.Block{Typ: kir.Prim(kir.PrimUnit), Exprs: exprs},
	}
	return &kir.Unit{Path: "test.kiln", Functions: []*kir.Function{fn}}, fn
}

func TestNewTarget(t *testing.T) {
	rt := objc.NewRuntime()

	for _, target := range []string{"", TargetARM64, TargetX86_64} {
		if _, err := New(rt, Options{Target: target}); err != nil {
			t.Errorf("New(%q): %v", target, err)
		}
	}

	_, err := New(rt, Options{Target: "riscv64-linux"})
	if err == nil {
		t.Fatal("expected error for unsupported target")
	}
	if !strings.Contains(err.Error(), "unsupported target") {
		t.Errorf("error = %v", err)
	}
}

func TestRunCleanUnit(t *testing.T) {
	l, _ := newLowerer(t)
	host := &kir.Class{Name: "Plain", Kind: kir.KindClass}
	u := &kir.Unit{Path: "plain.kiln", Classes: []*kir.Class{host}}

	res := l.Run(u)
	if res.Invalid() {
		t.Fatalf("clean unit invalid: %s", res.Diags.Format())
	}
	if res.Rewrites != 0 {
		t.Errorf("rewrites = %d, want 0", res.Rewrites)
	}
	if res.Stats.ClassesChecked != 0 {
		t.Errorf("classes checked = %d, want 0", res.Stats.ClassesChecked)
	}
	if u.LoadInit != nil {
		t.Error("load initializer created for a unit with no registrations")
	}
}

// fullFixture builds a unit exercising every pass-one and pass-two
// rewrite at once: an exported subclass with an action, an outlet, and
// an initializer override, plus boundary-crossing calls and a numeric
// intrinsic in a top-level function.
func fullFixture(rt *objc.Runtime) *kir.Unit {
	view := testForeign("NSView", "init", true)
	display := testMethod(view, "display", "display", kir.Prim(kir.PrimUnit))

	panel := testSubclass("Panel", view)
	panel.Tags = kir.TagExport

	click := &kir.Function{
		Name:     "click",
		Parent:   panel,
		Receiver: &kir.Param{Name: "this", Type: kir.ClassType(panel, false)},
		Params:   []*kir.Param{{Name: "sender", Type: kir.ClassType(view, true)}},
		Return:   kir.Prim(kir.PrimUnit),
		Tags:     kir.TagAction,
		Body:     &kir.Block{Typ: kir.Prim(kir.PrimUnit)},
	}
	panel.Methods = append(panel.Methods, click)

	label := &kir.Property{
		Name:    "label",
		Parent:  panel,
		Type:    kir.ClassType(view, false),
		Mutable: true,
		Tags:    kir.TagOutlet,
		Setter: &kir.Function{
			Name:     "setLabel",
			Parent:   panel,
			Receiver: &kir.Param{Name: "this", Type: kir.ClassType(panel, false)},
			Params:   []*kir.Param{{Name: "value", Type: kir.ClassType(view, false)}},
			Return:   kir.Prim(kir.PrimUnit),
		},
	}
	panel.Props = append(panel.Props, label)

	ctor := &kir.Constructor{
		Parent: panel,
		Tags:   kir.TagOverrideInit,
		Body: &kir.Block{Typ: kir.Prim(kir.PrimUnit), Exprs: []kir.Expr{
			&kir.DelegatingCall{Ctor: view.Ctors[0]},
		}},
	}
	panel.Ctors = append(panel.Ctors, ctor)

	x := &kir.Param{Name: "x", Type: kir.Prim(kir.PrimInt8)}
	main := &kir.Function{
		Name:   "main",
		Params: []*kir.Param{x},
		Return: kir.Prim(kir.PrimUnit),
		Body: &kir.Block{Typ: kir.Prim(kir.PrimUnit), Exprs: []kir.Expr{
			&kir.VarDecl{
				V:    &kir.Variable{Name: "v", Type: kir.ClassType(view, false)},
				Init: &kir.ConstructorCall{Ctor: view.Ctors[0]},
			},
			&kir.Call{
				Callee:   display,
				Receiver: &kir.Null{Typ: kir.ClassType(view, true)},
				Typ:      display.Return,
			},
			&kir.Call{
				Callee:   rt.Intrinsics.Convert,
				Args:     []kir.Expr{&kir.ValueRef{Decl: x}},
				TypeArgs: []*kir.Type{kir.Prim(kir.PrimUInt32)},
				Typ:      kir.Prim(kir.PrimUInt32),
			},
		}},
	}

	return &kir.Unit{
		Path:      "full.kiln",
		Classes:   []*kir.Class{view, panel},
		Functions: []*kir.Function{main},
	}
}

func TestRunFullUnit(t *testing.T) {
	l, rt := newLowerer(t)
	u := fullFixture(rt)

	res := l.Run(u)
	if res.Invalid() {
		t.Fatalf("unexpected diagnostics:\n%s", res.Diags.Format())
	}
	if res.Stats.ClassesChecked != 1 {
		t.Errorf("classes checked = %d, want 1", res.Stats.ClassesChecked)
	}
	// Action, outlet, and initializer override.
	if res.Stats.StandIns != 3 {
		t.Errorf("stand-ins = %d, want 3", res.Stats.StandIns)
	}
	if res.Stats.Registrations != 1 {
		t.Errorf("registrations = %d, want 1", res.Stats.Registrations)
	}
	// Delegation, constructor call, and the display call.
	if res.Stats.CallsBridged != 3 {
		t.Errorf("calls bridged = %d, want 3", res.Stats.CallsBridged)
	}
	if res.Stats.IntrinsicsRewritten != 1 {
		t.Errorf("intrinsics rewritten = %d, want 1", res.Stats.IntrinsicsRewritten)
	}
	if res.Rewrites == 0 {
		t.Error("no rewrites counted")
	}
	if u.LoadInit == nil {
		t.Fatal("no load initializer emitted")
	}
	if len(u.LoadInit.Body.Exprs) != 1 {
		t.Errorf("load initializer exprs = %d, want 1", len(u.LoadInit.Body.Exprs))
	}
}

func TestRunIdempotent(t *testing.T) {
	l, rt := newLowerer(t)
	u := fullFixture(rt)

	first := l.Run(u)
	if first.Invalid() {
		t.Fatalf("first run:\n%s", first.Diags.Format())
	}
	if first.Rewrites == 0 {
		t.Fatal("first run rewrote nothing")
	}

	second := l.Run(u)
	if second.Diags.Count() != 0 {
		t.Errorf("second run diagnostics:\n%s", second.Diags.Format())
	}
	if second.Rewrites != 0 {
		t.Errorf("second run rewrites = %d, want 0", second.Rewrites)
	}
	if second.Stats.StandIns != 0 {
		t.Errorf("second run stand-ins = %d, want 0", second.Stats.StandIns)
	}
	if second.Stats.CallsBridged != 0 {
		t.Errorf("second run bridged = %d, want 0", second.Stats.CallsBridged)
	}
	// The load initializer is not extended on re-runs.
	if len(u.LoadInit.Body.Exprs) != 1 {
		t.Errorf("load initializer exprs after second run = %d, want 1", len(u.LoadInit.Body.Exprs))
	}
}
