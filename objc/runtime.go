package objc

import (
	"github.com/llir/llvm/ir"

	"github.com/kilnlang/kobjc/kir"
)

// Primitives are the low-level interop functions lowering emits calls
// to. They survive into code generation; all but Reinterpret carry an
// LLVM declaration with a fixed C signature.
type Primitives struct {
	Alloc          *kir.Function // kobjc_alloc(cls) -> raw instance, retained
	Release        *kir.Function // kobjc_release(obj)
	GetClass       *kir.Function // kobjc_get_class(name) -> class pointer
	RawPtr         *kir.Function // kobjc_raw_ptr(obj) -> raw pointer
	InterpretPtr   *kir.Function // kobjc_interpret_ptr(ptr) -> wrapper or null
	InitBy         *kir.Function // kobjc_init_by(this, ctorResult)
	SuperInitCheck *kir.Function // kobjc_super_init_check(self, returned)
	Schedule       *kir.Function // kobjc_schedule(worker, mode, producer, jobPtr)
	Reinterpret    *kir.Function // same-width bit reinterpretation, folded by codegen
}

// Intrinsics are the user-facing interop functions matched by identity
// during lowering. None of them survives lowering except InitBy, which
// lives in Primitives and is only validated.
type Intrinsics struct {
	RawPtrObject     *kir.Function // objcPtr getter on the imported-object wrapper
	RawPtrBase       *kir.Function // objcPtr getter on the subclass base wrapper
	BitsToFloat      *kir.Function
	BitsToDouble     *kir.Function
	SignExtend       *kir.Function
	Narrow           *kir.Function
	Convert          *kir.Function
	StaticCFunction  *kir.Function
	ScheduleImpl     *kir.Function
	Invoke           *kir.Function
	TypeDescriptorOf *kir.Function
}

// Runtime is the registry of everything the lowering passes resolve
// against: the foreign wrapper classes, the primitive and intrinsic
// declarations, the numeric conversion members, the per-return-type
// invoke trampolines, and the LLVM module holding the C declarations
// behind them.
type Runtime struct {
	LL   *ir.Module
	Host *kir.Builtins

	// Object is the root wrapper class for imported foreign objects.
	// Base is the wrapper all host subclasses of foreign classes root
	// at. Ptr wraps a foreign C pointer.
	Object *kir.Class
	Base   *kir.Class
	Ptr    *kir.Class

	Prims      Primitives
	Intrinsics Intrinsics

	// Conversions maps source to target signed integer kinds onto the
	// host's numeric conversion members (Int8.toInt32 and friends).
	Conversions map[kir.PrimKind]map[kir.PrimKind]*kir.Function

	// Invokers maps a C function's return kind onto the invoke
	// trampoline for that kind.
	Invokers map[kir.PrimKind]*kir.Function

	llFuncs map[*kir.Function]*ir.Func
}

// NewRuntime builds the full well-known registry and its LLVM module.
func NewRuntime() *Runtime {
	rt := &Runtime{
		LL:      ir.NewModule(),
		Host:    kir.NewBuiltins(),
		llFuncs: make(map[*kir.Function]*ir.Func),
	}
	rt.buildClasses()
	rt.buildPrims()
	rt.buildIntrinsics()
	rt.buildConversions()
	rt.buildInvokers()
	return rt
}

func (rt *Runtime) buildClasses() {
	rt.Object = &kir.Class{Name: "Object", Kind: kir.KindClass, Open: true, Foreign: true}
	rt.Base = &kir.Class{
		Name:    "ObjectBase",
		Kind:    kir.KindClass,
		Open:    true,
		Foreign: true,
		Supers:  []*kir.Type{kir.ClassType(rt.Object, false)},
	}
	rt.Ptr = &kir.Class{Name: "Ptr", Kind: kir.KindClass, Foreign: true}
}

// anyOpt is the unconstrained slot type used by generic registry
// declarations; actual types are read from call sites.
func (rt *Runtime) anyOpt() *kir.Type {
	return kir.ClassType(rt.Host.Any, true)
}

func (rt *Runtime) objOpt() *kir.Type { return kir.ClassType(rt.Object, true) }
func (rt *Runtime) obj() *kir.Type    { return kir.ClassType(rt.Object, false) }
func (rt *Runtime) rawPtr() *kir.Type { return kir.Prim(kir.PrimRawPtr) }
func (rt *Runtime) unit() *kir.Type   { return kir.Prim(kir.PrimUnit) }

func param(name string, t *kir.Type) *kir.Param {
	return &kir.Param{Name: name, Type: t}
}

// extFunc declares an external function in the registry.
func extFunc(name, symbol string, params []*kir.Param, ret *kir.Type) *kir.Function {
	return &kir.Function{
		Name:     name,
		Symbol:   symbol,
		Params:   params,
		Return:   ret,
		External: true,
	}
}

// declareLL adds the LLVM external declaration for f and remembers the
// pairing.
func (rt *Runtime) declareLL(f *kir.Function) {
	ps := make([]*ir.Param, 0, len(f.Params))
	for _, p := range f.Params {
		ps = append(ps, ir.NewParam(p.Name, LLType(p.Type)))
	}
	ll := rt.LL.NewFunc(f.Symbol, LLType(f.Return), ps...)
	if f.Variadic {
		ll.Sig.Variadic = true
	}
	rt.llFuncs[f] = ll
}

// LLFunc returns the LLVM declaration paired with a registry or bridge
// function, or nil when the function has none.
func (rt *Runtime) LLFunc(f *kir.Function) *ir.Func {
	return rt.llFuncs[f]
}

func (rt *Runtime) buildPrims() {
	p := &rt.Prims
	p.Alloc = extFunc("allocInstance", "kobjc_alloc",
		[]*kir.Param{param("cls", rt.rawPtr())}, rt.rawPtr())
	p.Release = extFunc("releaseInstance", "kobjc_release",
		[]*kir.Param{param("obj", rt.rawPtr())}, rt.unit())
	p.GetClass = extFunc("foreignClass", "kobjc_get_class",
		[]*kir.Param{param("name", kir.Prim(kir.PrimString))}, rt.rawPtr())
	p.RawPtr = extFunc("rawPtr", "kobjc_raw_ptr",
		[]*kir.Param{param("obj", rt.objOpt())}, rt.rawPtr())
	p.InterpretPtr = extFunc("interpretPtr", "kobjc_interpret_ptr",
		[]*kir.Param{param("ptr", rt.rawPtr())}, rt.objOpt())
	p.InitBy = extFunc("initBy", "kobjc_init_by",
		[]*kir.Param{param("call", rt.anyOpt())}, rt.anyOpt())
	p.InitBy.Extension = param("this", kir.ClassType(rt.Base, false))
	p.SuperInitCheck = extFunc("superInitCheck", "kobjc_super_init_check",
		[]*kir.Param{param("self", rt.obj()), param("returned", rt.objOpt())}, rt.obj())
	p.Schedule = extFunc("schedule", "kobjc_schedule",
		[]*kir.Param{
			param("worker", rt.anyOpt()),
			param("mode", rt.anyOpt()),
			param("producer", rt.anyOpt()),
			param("job", rt.rawPtr()),
		}, rt.anyOpt())
	p.Reinterpret = extFunc("reinterpret", "kobjc_reinterpret",
		[]*kir.Param{param("x", rt.anyOpt())}, rt.anyOpt())

	for _, f := range []*kir.Function{
		p.Alloc, p.Release, p.GetClass, p.RawPtr,
		p.InterpretPtr, p.InitBy, p.SuperInitCheck, p.Schedule,
	} {
		rt.declareLL(f)
	}
}

func (rt *Runtime) buildIntrinsics() {
	in := &rt.Intrinsics

	in.RawPtrObject = extFunc("objcPtr", "",
		nil, rt.rawPtr())
	in.RawPtrObject.Extension = param("this", rt.obj())
	in.RawPtrBase = extFunc("objcPtr", "",
		nil, rt.rawPtr())
	in.RawPtrBase.Extension = param("this", kir.ClassType(rt.Base, false))

	in.BitsToFloat = extFunc("bitsToFloat", "",
		[]*kir.Param{param("bits", kir.Prim(kir.PrimInt32))}, kir.Prim(kir.PrimFloat32))
	in.BitsToDouble = extFunc("bitsToDouble", "",
		[]*kir.Param{param("bits", kir.Prim(kir.PrimInt64))}, kir.Prim(kir.PrimFloat64))

	in.SignExtend = extFunc("signExtend", "",
		[]*kir.Param{param("x", rt.anyOpt())}, rt.anyOpt())
	in.Narrow = extFunc("narrow", "",
		[]*kir.Param{param("x", rt.anyOpt())}, rt.anyOpt())
	in.Convert = extFunc("convert", "",
		[]*kir.Param{param("x", rt.anyOpt())}, rt.anyOpt())

	in.StaticCFunction = extFunc("staticCFunction", "",
		[]*kir.Param{param("fn", rt.anyOpt())}, kir.ClassType(rt.Ptr, false))
	in.ScheduleImpl = extFunc("scheduleImpl", "",
		[]*kir.Param{
			param("worker", rt.anyOpt()),
			param("mode", rt.anyOpt()),
			param("producer", rt.anyOpt()),
			param("job", rt.anyOpt()),
		}, rt.anyOpt())
	in.Invoke = extFunc("invoke", "",
		[]*kir.Param{param("fn", rt.anyOpt())}, rt.anyOpt())
	in.Invoke.Variadic = true
	in.TypeDescriptorOf = extFunc("typeDescriptorOf", "", nil, rt.anyOpt())
}

var signedKinds = [4]kir.PrimKind{kir.PrimInt8, kir.PrimInt16, kir.PrimInt32, kir.PrimInt64}

func (rt *Runtime) buildConversions() {
	rt.Conversions = make(map[kir.PrimKind]map[kir.PrimKind]*kir.Function, len(signedKinds))
	for _, src := range signedKinds {
		row := make(map[kir.PrimKind]*kir.Function, len(signedKinds))
		for _, dst := range signedKinds {
			f := extFunc("to"+dst.String(), "", nil, kir.Prim(dst))
			f.Extension = param("this", kir.Prim(src))
			row[dst] = f
		}
		rt.Conversions[src] = row
	}
}

// invokeKinds are the C function return kinds with a dedicated invoke
// trampoline. Anything else is unsupported.
var invokeKinds = map[kir.PrimKind]string{
	kir.PrimUnit:    "unit",
	kir.PrimBool:    "bool",
	kir.PrimInt8:    "i8",
	kir.PrimInt16:   "i16",
	kir.PrimInt32:   "i32",
	kir.PrimInt64:   "i64",
	kir.PrimUInt8:   "u8",
	kir.PrimUInt16:  "u16",
	kir.PrimUInt32:  "u32",
	kir.PrimUInt64:  "u64",
	kir.PrimFloat32: "f32",
	kir.PrimFloat64: "f64",
	kir.PrimRawPtr:  "ptr",
}

func (rt *Runtime) buildInvokers() {
	rt.Invokers = make(map[kir.PrimKind]*kir.Function, len(invokeKinds))
	va := &kir.Type{Prim: kir.PrimVararg, Args: []*kir.Type{rt.anyOpt()}}
	for kind, suffix := range invokeKinds {
		f := extFunc("invoke_"+suffix, "kobjc_invoke_"+suffix,
			[]*kir.Param{param("fn", rt.rawPtr()), param("args", va)}, kir.Prim(kind))
		f.Variadic = true
		rt.Invokers[kind] = f
		ll := rt.LL.NewFunc(f.Symbol, LLType(f.Return), ir.NewParam("fn", i8ptr))
		ll.Sig.Variadic = true
		rt.llFuncs[f] = ll
	}
}

// Externals returns the well-known name table used when units are
// serialized. Every registry declaration a unit may reference across
// the interchange boundary appears under a stable dotted name.
func (rt *Runtime) Externals() *kir.Externals {
	ext := kir.NewExternals()

	ext.Classes["objc.Object"] = rt.Object
	ext.Classes["objc.ObjectBase"] = rt.Base
	ext.Classes["objc.Ptr"] = rt.Ptr
	ext.Classes["kiln.Any"] = rt.Host.Any

	ext.Ctors["kiln.Any.<init>"] = rt.Host.AnyCtor
	ext.Funcs["kiln.Any.toString"] = rt.Host.ToString
	ext.Funcs["kiln.Any.hashCode"] = rt.Host.HashCode
	ext.Funcs["kiln.Any.equals"] = rt.Host.Equals

	p := &rt.Prims
	for _, f := range []*kir.Function{
		p.Alloc, p.Release, p.GetClass, p.RawPtr, p.InterpretPtr,
		p.InitBy, p.SuperInitCheck, p.Schedule, p.Reinterpret,
	} {
		ext.Funcs["objc."+f.Name] = f
	}

	in := &rt.Intrinsics
	ext.Funcs["objc.Object.objcPtr"] = in.RawPtrObject
	ext.Funcs["objc.ObjectBase.objcPtr"] = in.RawPtrBase
	for _, f := range []*kir.Function{
		in.BitsToFloat, in.BitsToDouble, in.SignExtend, in.Narrow,
		in.Convert, in.StaticCFunction, in.ScheduleImpl, in.Invoke,
		in.TypeDescriptorOf,
	} {
		ext.Funcs["objc."+f.Name] = f
	}

	for src, row := range rt.Conversions {
		for _, f := range row {
			ext.Funcs["kiln."+src.String()+"."+f.Name] = f
		}
	}
	for _, f := range rt.Invokers {
		ext.Funcs["objc."+f.Name] = f
	}
	return ext
}
