package lower

import (
	"fmt"
	"math"

	"github.com/kilnlang/kobjc/kir"
)

// intrinsicLowerer rewrites one recognized intrinsic call. It returns
// the replacement expression and whether the tree changed; reporting a
// diagnostic and returning the call unchanged aborts that one rewrite.
type intrinsicLowerer func(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool)

// buildIntrinsicRegistry keys the lowerers by declaration identity.
// Calls whose callee is not in the registry pass through unchanged.
func (l *Lowerer) buildIntrinsicRegistry() map[*kir.Function]intrinsicLowerer {
	in := &l.rt.Intrinsics
	return map[*kir.Function]intrinsicLowerer{
		in.RawPtrObject:    lowerRawPtrGet,
		in.RawPtrBase:      lowerRawPtrGet,
		in.BitsToFloat:     lowerBitsToFloat,
		in.BitsToDouble:    lowerBitsToDouble,
		in.SignExtend:      lowerSignExtend,
		in.Narrow:          lowerNarrow,
		in.Convert:         lowerConvert,
		in.StaticCFunction: lowerStaticCFunction,
		in.ScheduleImpl:    lowerSchedule,
		in.Invoke:          lowerInvoke,
		l.rt.Prims.InitBy:  validateInitBy,
	}
}

// intrinsicPass is the pass-two transformer.
type intrinsicPass struct {
	st  *unitState
	reg map[*kir.Function]intrinsicLowerer
}

func (p *intrinsicPass) Visit(e kir.Expr, ctx *kir.Context) kir.Expr {
	call, ok := e.(*kir.Call)
	if !ok {
		return e
	}
	lowerFn, ok := p.reg[call.Callee]
	if !ok {
		return e
	}
	out, changed := lowerFn(p.st, call, ctx)
	if changed {
		p.st.stats.IntrinsicsRewritten++
		p.st.rewrites++
	}
	return out
}

// lowerRawPtrGet unifies the raw pointer getters of both wrapper kinds
// into the single low-level primitive.
func lowerRawPtrGet(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	recv := call.Receiver
	if recv == nil {
		return call, false
	}
	return st.rawPointer(recv, call.Pos), true
}

func lowerBitsToFloat(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	return st.lowerBitcast(call, 32)
}

func lowerBitsToDouble(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	return st.lowerBitcast(call, 64)
}

// lowerBitcast folds a constant argument of matching width to a float
// constant; anything else defers to the runtime reinterpretation
// primitive.
func (st *unitState) lowerBitcast(call *kir.Call, width int) (kir.Expr, bool) {
	if len(call.Args) != 1 {
		return call, false
	}
	arg := call.Args[0]
	to := kir.PrimFloat32
	if width == 64 {
		to = kir.PrimFloat64
	}
	if c, ok := arg.(*kir.IntConst); ok && c.Typ.Prim.Width() == width {
		var val float64
		if width == 32 {
			val = float64(math.Float32frombits(uint32(c.Value)))
		} else {
			val = math.Float64frombits(c.Value)
		}
		st.stats.ConstantsFolded++
		return &kir.FloatConst{Pos: call.Pos, Value: val, Typ: kir.Prim(to)}, true
	}
	return st.reinterpretBits(arg, arg.Type().Prim, to, call.Pos), true
}

// reinterpretBits builds the same-width bit reinterpretation call.
func (st *unitState) reinterpretBits(x kir.Expr, from, to kir.PrimKind, pos kir.Pos) kir.Expr {
	r := st.rt().Prims.Reinterpret
	return &kir.Call{
		Pos:      pos,
		Callee:   r,
		Args:     []kir.Expr{x},
		TypeArgs: []*kir.Type{kir.Prim(from), kir.Prim(to)},
		Typ:      kir.Prim(to),
	}
}

func lowerSignExtend(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	return st.lowerLadder(call, ctx, "sign-extend", func(srcW, dstW int) bool { return dstW >= srcW })
}

func lowerNarrow(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	return st.lowerLadder(call, ctx, "narrow", func(srcW, dstW int) bool { return dstW <= srcW })
}

// lowerLadder handles the directional conversions over the signed
// 8/16/32/64 ladder.
func (st *unitState) lowerLadder(call *kir.Call, ctx *kir.Context, what string, dirOK func(srcW, dstW int) bool) (kir.Expr, bool) {
	arg, src, dst, ok := st.conversionOperands(call, ctx, what)
	if !ok {
		return call, false
	}
	if !src.Signed() || !dst.Signed() {
		st.errorf(call.Pos, subjectOf(ctx),
			"%s operates on the signed integer ladder; cannot %s %s to %s", what, what, src, dst)
		return call, false
	}
	if !dirOK(src.Width(), dst.Width()) {
		st.errorf(call.Pos, subjectOf(ctx),
			"cannot %s %s to %s", what, src, dst)
		return call, false
	}
	return st.intConversion(arg, src, dst, call.Pos), true
}

// lowerConvert handles the generalized conversion between any two
// integer width/signedness pairs.
func lowerConvert(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	arg, src, dst, ok := st.conversionOperands(call, ctx, "convert")
	if !ok {
		return call, false
	}
	return st.intConversion(arg, src, dst, call.Pos), true
}

// conversionOperands pulls the argument, source kind, and target kind
// out of a conversion intrinsic call and checks both are integers.
func (st *unitState) conversionOperands(call *kir.Call, ctx *kir.Context, what string) (kir.Expr, kir.PrimKind, kir.PrimKind, bool) {
	if len(call.Args) != 1 || len(call.TypeArgs) != 1 {
		st.errorf(call.Pos, subjectOf(ctx), "%s takes one argument and one type argument", what)
		return nil, 0, 0, false
	}
	arg := call.Args[0]
	src := arg.Type().Prim
	dst := call.TypeArgs[0].Prim
	if !src.Integer() || !dst.Integer() {
		st.errorf(call.Pos, subjectOf(ctx),
			"%s requires integer types; cannot %s %s to %s", what, what, arg.Type(), call.TypeArgs[0])
		return nil, 0, 0, false
	}
	return arg, src, dst, true
}

// intConversion builds the lowered conversion from src to dst.
// Constants fold immediately. Otherwise the conversion goes through
// the signed conversion members; an unsigned side is bridged by a
// same-width bit reinterpretation, so a signed source converts to the
// signed counterpart of the target width first and keeps its exact
// two's-complement bit pattern.
func (st *unitState) intConversion(x kir.Expr, src, dst kir.PrimKind, pos kir.Pos) kir.Expr {
	if src == dst {
		return x
	}
	if c, ok := x.(*kir.IntConst); ok && c.Typ.Prim == src {
		st.stats.ConstantsFolded++
		return &kir.IntConst{Pos: pos, Value: foldIntConversion(c.Value, src, dst), Typ: kir.Prim(dst)}
	}

	switch {
	case src.Signed() && dst.Signed():
		return st.conversionCall(x, src, dst, pos)
	case src.Signed() && dst.Unsigned():
		mid := kir.SignedOfWidth(dst.Width())
		return st.reinterpretBits(st.conversionCall(x, src, mid, pos), mid, dst, pos)
	case src.Unsigned() && dst.Signed():
		mid := kir.SignedOfWidth(src.Width())
		return st.conversionCall(st.reinterpretBits(x, src, mid, pos), mid, dst, pos)
	default:
		smid := kir.SignedOfWidth(src.Width())
		dmid := kir.SignedOfWidth(dst.Width())
		conv := st.conversionCall(st.reinterpretBits(x, src, smid, pos), smid, dmid, pos)
		return st.reinterpretBits(conv, dmid, dst, pos)
	}
}

// conversionCall locates the concrete conversion member between two
// signed width classes.
func (st *unitState) conversionCall(x kir.Expr, src, dst kir.PrimKind, pos kir.Pos) kir.Expr {
	if src == dst {
		return x
	}
	conv := st.rt().Conversions[src][dst]
	if conv == nil {
		panic(fmt.Sprintf("lower: no conversion member %s to %s", src, dst))
	}
	return &kir.Call{Pos: pos, Callee: conv, Receiver: x, Typ: conv.Return}
}

// foldIntConversion converts a constant's bit pattern: the source
// value is read with its own signedness, then truncated or extended
// to the target width in two's complement.
func foldIntConversion(bits uint64, src, dst kir.PrimKind) uint64 {
	srcW := uint(src.Width())
	var v int64
	if src.Signed() {
		v = int64(bits<<(64-srcW)) >> (64 - srcW)
	} else {
		v = int64(bits & widthMask(srcW))
	}
	return uint64(v) & widthMask(uint(dst.Width()))
}

func widthMask(w uint) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << w) - 1
}

// unwrapStaticRef resolves an argument to a direct function
// reference, accepting the frontend's empty-scope-then-reference
// lowering of adapted references.
func unwrapStaticRef(e kir.Expr) *kir.FunctionRef {
	switch n := e.(type) {
	case *kir.FunctionRef:
		return n
	case *kir.Block:
		if len(n.Exprs) == 2 {
			if scope, ok := n.Exprs[0].(*kir.Block); ok && len(scope.Exprs) == 0 {
				if ref, ok := n.Exprs[1].(*kir.FunctionRef); ok {
					return ref
				}
			}
		}
	}
	return nil
}

// staticTarget checks that a reference names an unbound, non-capturing
// top-level function and reports otherwise.
func (st *unitState) staticTarget(e kir.Expr, ctx *kir.Context, what string, pos kir.Pos) *kir.Function {
	ref := unwrapStaticRef(e)
	if ref == nil {
		st.errorf(pos, subjectOf(ctx),
			"%s must be a direct reference to a top-level function", what)
		return nil
	}
	tgt := ref.Target
	if tgt.Parent != nil || tgt.Receiver != nil || tgt.Extension != nil {
		st.errorf(pos, subjectOf(ctx),
			"%s must reference an unbound top-level function; %s is bound", what, tgt.QualifiedName())
		return nil
	}
	return tgt
}

// exportCSymbol gives a statically-captured function the link symbol
// the foreign side will call.
func exportCSymbol(f *kir.Function) {
	if f.Symbol == "" {
		f.Symbol = "kobjc_cfn_" + f.Name
	}
	f.Exported = true
}

// lowerStaticCFunction validates a static callback capture and
// rewrites it to a function pointer value.
func lowerStaticCFunction(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	if len(call.Args) != 1 {
		return call, false
	}
	tgt := st.staticTarget(call.Args[0], ctx, "static C function argument", call.Pos)
	if tgt == nil {
		return call, false
	}
	subject := subjectOf(ctx)

	sig := make([]*kir.Type, 0, len(tgt.Params)+1)
	for _, p := range tgt.Params {
		sig = append(sig, p.Type)
	}
	sig = append(sig, tgt.Return)
	if len(call.TypeArgs) != len(sig) {
		st.errorf(call.Pos, subject,
			"static C function declares %d type arguments; %s has %d parameters plus a return type",
			len(call.TypeArgs), tgt.Name, len(tgt.Params))
		return call, false
	}
	ok := true
	for i, want := range call.TypeArgs {
		if !want.Equal(sig[i]) {
			st.errorf(call.Pos, subject,
				"static C function type argument %d is %s; %s declares %s", i+1, want, tgt.Name, sig[i])
			ok = false
		}
	}
	for i, p := range tgt.Params {
		if !st.checkCType(p.Type, call.Pos, subject,
			fmt.Sprintf("parameter %d of C callback %s", i+1, tgt.Name), false) {
			ok = false
		}
	}
	if !st.checkCType(tgt.Return, call.Pos, subject,
		fmt.Sprintf("return type of C callback %s", tgt.Name), true) {
		ok = false
	}
	if !ok {
		return call, false
	}

	exportCSymbol(tgt)
	return &kir.FunctionPtr{Pos: call.Pos, Target: tgt, Typ: call.Typ}, true
}

// checkCType enforces the C signature rules: primitives, including
// unsigned kinds, must be non-nullable; the foreign pointer wrapper
// must be nullable; void is allowed only as a return type.
func (st *unitState) checkCType(t *kir.Type, pos kir.Pos, subject, what string, isReturn bool) bool {
	switch {
	case t.IsUnit():
		if isReturn {
			return true
		}
		st.errorf(pos, subject, "%s: void is only allowed as a return type", what)
	case t.IsClass() && t.Class == st.rt().Ptr:
		if t.Nullable {
			return true
		}
		st.errorf(pos, subject, "%s: foreign pointer type %s must be nullable in a C signature", what, t)
	case t.Class == nil && (t.Prim.Integer() || t.Prim.Float() || t.Prim == kir.PrimBool || t.Prim == kir.PrimRawPtr):
		if !t.Nullable {
			return true
		}
		st.errorf(pos, subject, "%s: type %s must not be nullable in a C signature", what, t)
	default:
		st.errorf(pos, subject, "%s: type %s is not supported in a C signature", what, t)
	}
	return false
}

// lowerSchedule rewrites the background dispatch intrinsic to the
// low-level primitive, wrapping the job as a function pointer.
func lowerSchedule(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	if len(call.Args) != 4 {
		st.errorf(call.Pos, subjectOf(ctx), "background dispatch takes worker, mode, producer, and a job")
		return call, false
	}
	tgt := st.staticTarget(call.Args[3], ctx, "background dispatch job", call.Pos)
	if tgt == nil {
		return call, false
	}
	exportCSymbol(tgt)
	sched := st.rt().Prims.Schedule
	return &kir.Call{
		Pos:    call.Pos,
		Callee: sched,
		Args: []kir.Expr{
			call.Args[0],
			call.Args[1],
			call.Args[2],
			&kir.FunctionPtr{Pos: call.Pos, Target: tgt, Typ: kir.Prim(kir.PrimRawPtr)},
		},
		Typ: sched.Return,
	}, true
}

// lowerInvoke resolves a C function pointer invocation to the invoke
// trampoline for its return kind and packs the arguments into one
// variadic container.
func lowerInvoke(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	subject := subjectOf(ctx)
	if len(call.TypeArgs) != 1 || len(call.Args) < 1 {
		st.errorf(call.Pos, subject, "invoke takes a return type argument and a function pointer")
		return call, false
	}
	ret := call.TypeArgs[0]
	var inv *kir.Function
	if !ret.IsClass() {
		inv = st.rt().Invokers[ret.Prim]
	}
	if inv == nil {
		st.errorf(call.Pos, subject, "invoke does not support return type %s", ret)
		return call, false
	}
	ok := true
	for i, a := range call.Args[1:] {
		if !st.checkCType(a.Type(), call.Pos, subject,
			fmt.Sprintf("argument %d of C function invocation", i+1), false) {
			ok = false
		}
	}
	if !ok {
		return call, false
	}
	packed := &kir.Vararg{
		Pos:   call.Pos,
		Elem:  kir.ClassType(st.rt().Host.Any, true),
		Elems: call.Args[1:],
	}
	return &kir.Call{
		Pos:    call.Pos,
		Callee: inv,
		Args:   []kir.Expr{call.Args[0], packed},
		Typ:    ret,
	}, true
}

// validateInitBy checks the init-by shape: the argument must be a
// direct constructor call, and the receiver must be the implicit self
// of the class that constructor builds. The call itself survives for
// the code generator.
func validateInitBy(st *unitState, call *kir.Call, ctx *kir.Context) (kir.Expr, bool) {
	subject := subjectOf(ctx)
	if len(call.Args) != 1 {
		st.errorf(call.Pos, subject, "init-by takes exactly one constructor call argument")
		return call, false
	}
	cc, ok := call.Args[0].(*kir.ConstructorCall)
	if !ok {
		st.errorf(call.Pos, subject, "init-by argument must be a direct constructor call")
		return call, false
	}
	recv, ok := call.Receiver.(*kir.ValueRef)
	self := ctx.Receiver()
	if !ok || self == nil || recv.Decl != self || self.Type.Class != cc.Ctor.Parent {
		st.errorf(call.Pos, subject,
			"init-by receiver must be the instance under construction by %s", cc.Ctor.Parent.Name)
		return call, false
	}
	return call, false
}
