// Package lower implements the two-pass interop lowering over a Kiln
// compilation unit. Pass one validates classes that subclass foreign
// types, synthesizes their stand-ins, and rewrites constructor
// delegation and boundary-crossing calls into bridge calls. Pass two
// rewrites the well-known intrinsics into primitives the code
// generator consumes. The unit tree is mutated in place; source-level
// problems accumulate as diagnostics and never stop the run.
package lower

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/kilnlang/kobjc/diag"
	"github.com/kilnlang/kobjc/kir"
	"github.com/kilnlang/kobjc/objc"
)

// The stand-in encodings are only valid for the 64-bit Apple calling
// conventions, so those are the only targets accepted.
const (
	TargetARM64  = "arm64-apple"
	TargetX86_64 = "x86_64-apple"
)

// Options configures a Lowerer.
type Options struct {
	// Target selects the calling convention. Defaults to TargetARM64.
	Target string
	// Log receives per-rewrite debug traces and a summary per unit.
	// Defaults to a discarding logger.
	Log *slog.Logger
}

// Lowerer runs the two lowering passes. One Lowerer may process any
// number of units sequentially.
type Lowerer struct {
	rt         *objc.Runtime
	log        *slog.Logger
	target     string
	intrinsics map[*kir.Function]intrinsicLowerer
}

// New builds a Lowerer against the given well-known registry.
func New(rt *objc.Runtime, opts Options) (*Lowerer, error) {
	if opts.Target == "" {
		opts.Target = TargetARM64
	}
	switch opts.Target {
	case TargetARM64, TargetX86_64:
	default:
		return nil, fmt.Errorf("lower: unsupported target %q (supported: %s, %s)",
			opts.Target, TargetARM64, TargetX86_64)
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Lowerer{rt: rt, log: log, target: opts.Target}
	l.intrinsics = l.buildIntrinsicRegistry()
	return l, nil
}

// Stats counts the work both passes performed on one unit.
type Stats struct {
	ClassesChecked      int
	StandIns            int
	Registrations       int
	CallsBridged        int
	IntrinsicsRewritten int
	ConstantsFolded     int
}

// Result is the outcome of lowering one unit.
type Result struct {
	Diags *diag.Bag
	Stats Stats
	// Rewrites is the total number of tree mutations. Re-running the
	// passes on already-lowered output yields zero.
	Rewrites int
}

// Invalid reports whether the unit must not proceed to later phases.
func (r *Result) Invalid() bool { return r.Diags.HasErrors() }

// Run lowers one unit in place and returns its result. The passes
// always run to completion; callers must check Invalid before feeding
// the unit to later phases.
func (l *Lowerer) Run(u *kir.Unit) *Result {
	st := &unitState{l: l, unit: u, diags: diag.NewBag()}

	st.lowerClasses()
	kir.TransformUnit(u, &callRewriter{st: st})
	st.emitPending()
	kir.TransformUnit(u, &intrinsicPass{st: st, reg: l.intrinsics})

	l.log.Info("unit lowered",
		"path", u.Path,
		"classes", st.stats.ClassesChecked,
		"standins", st.stats.StandIns,
		"bridged", st.stats.CallsBridged,
		"intrinsics", st.stats.IntrinsicsRewritten,
		"rewrites", st.rewrites,
		"errors", st.diags.ErrorCount(),
	)
	return &Result{Diags: st.diags, Stats: st.stats, Rewrites: st.rewrites}
}

// unitState is the per-unit working state shared by both passes.
type unitState struct {
	l        *Lowerer
	unit     *kir.Unit
	diags    *diag.Bag
	stats    Stats
	rewrites int

	// pending queues the module-load registrations of exported
	// classes; drained into the unit's load initializer and cleared.
	pending []kir.Expr
}

func (st *unitState) rt() *objc.Runtime { return st.l.rt }

func (st *unitState) errorf(pos kir.Pos, subject, format string, args ...any) {
	st.diags.Errorf(st.unit.Path, pos.Line, pos.Col, subject, format, args...)
}

func (st *unitState) errorHint(pos kir.Pos, subject, msg, hint string) {
	st.diags.ErrorWithHint(st.unit.Path, pos.Line, pos.Col, subject, msg, hint)
}

// emitPending drains the registration queue into the unit's load
// initializer, creating it on demand.
func (st *unitState) emitPending() {
	if len(st.pending) == 0 {
		return
	}
	u := st.unit
	if u.LoadInit == nil {
		u.LoadInit = &kir.Function{
			Name:     "<loadinit>",
			Symbol:   "kobjc_load_init",
			Exported: true,
			Return:   kir.Prim(kir.PrimUnit),
			Body:     &kir.Block{Typ: kir.Prim(kir.PrimUnit)},
		}
	}
	u.LoadInit.Body.Exprs = append(u.LoadInit.Body.Exprs, st.pending...)
	st.pending = nil
}

// Expression builders shared by both passes.

func (st *unitState) nullPtr(pos kir.Pos) kir.Expr {
	return &kir.Null{Pos: pos, Typ: kir.Prim(kir.PrimRawPtr)}
}

// classPointer builds the load of a foreign class pointer by name.
func (st *unitState) classPointer(name string, pos kir.Pos) kir.Expr {
	p := st.rt().Prims.GetClass
	return &kir.Call{
		Pos:    pos,
		Callee: p,
		Args: []kir.Expr{
			&kir.StringConst{Pos: pos, Value: name, Typ: kir.Prim(kir.PrimString)},
		},
		Typ: p.Return,
	}
}

// rawPointer unwraps a wrapper expression to its raw foreign pointer.
func (st *unitState) rawPointer(obj kir.Expr, pos kir.Pos) kir.Expr {
	p := st.rt().Prims.RawPtr
	return &kir.Call{Pos: pos, Callee: p, Args: []kir.Expr{obj}, Typ: p.Return}
}
