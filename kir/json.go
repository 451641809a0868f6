package kir

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// WireVersion is the unit interchange format version.
const WireVersion = 1

// Externals resolves references that cross the unit boundary: the
// well-known registry functions, classes, and constructors the
// frontend links units against. Both codec directions need the same
// table.
type Externals struct {
	Funcs   map[string]*Function
	Classes map[string]*Class
	Ctors   map[string]*Constructor
}

// NewExternals returns an empty table.
func NewExternals() *Externals {
	return &Externals{
		Funcs:   make(map[string]*Function),
		Classes: make(map[string]*Class),
		Ctors:   make(map[string]*Constructor),
	}
}

// Wire structures. Declarations carry small integer ids; references
// are either an id or the name of an external declaration.

type jRef struct {
	ID  *int   `json:"id,omitempty"`
	Ext string `json:"ext,omitempty"`
}

type jType struct {
	Prim     string   `json:"prim,omitempty"`
	Class    *jRef    `json:"class,omitempty"`
	Args     []*jType `json:"args,omitempty"`
	Nullable bool     `json:"nullable,omitempty"`
}

type jPos [2]int

type jParam struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Pos  jPos   `json:"pos,omitempty"`
	Type *jType `json:"type"`
}

type jForeign struct {
	Selector       string `json:"selector"`
	Encoding       string `json:"encoding,omitempty"`
	DesignatedInit bool   `json:"designatedInit,omitempty"`
}

type jFunc struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Pos          jPos      `json:"pos,omitempty"`
	Receiver     *jParam   `json:"receiver,omitempty"`
	Extension    *jParam   `json:"extension,omitempty"`
	Params       []*jParam `json:"params,omitempty"`
	Return       *jType    `json:"return,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	External     bool      `json:"external,omitempty"`
	Exported     bool      `json:"exported,omitempty"`
	Symbol       string    `json:"symbol,omitempty"`
	Open         bool      `json:"open,omitempty"`
	Variadic     bool      `json:"variadic,omitempty"`
	FakeOverride bool      `json:"fakeOverride,omitempty"`
	Overrides    []*jRef   `json:"overrides,omitempty"`
	Foreign      *jForeign `json:"foreign,omitempty"`
	Body         *jExpr    `json:"body,omitempty"`
}

type jCtor struct {
	ID         int       `json:"id"`
	Pos        jPos      `json:"pos,omitempty"`
	Params     []*jParam `json:"params,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	External   bool      `json:"external,omitempty"`
	InitMethod *jRef     `json:"initMethod,omitempty"`
	Body       *jExpr    `json:"body,omitempty"`
}

type jProp struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Pos     jPos     `json:"pos,omitempty"`
	Type    *jType   `json:"type"`
	Mutable bool     `json:"mutable,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Getter  *jFunc   `json:"getter,omitempty"`
	Setter  *jFunc   `json:"setter,omitempty"`
}

type jClass struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Pos         jPos      `json:"pos,omitempty"`
	Kind        string    `json:"kind"`
	Open        bool      `json:"open,omitempty"`
	Foreign     bool      `json:"foreign,omitempty"`
	IsCompanion bool      `json:"isCompanion,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Supers      []*jType  `json:"supers,omitempty"`
	Ctors       []*jCtor  `json:"ctors,omitempty"`
	Methods     []*jFunc  `json:"methods,omitempty"`
	Props       []*jProp  `json:"props,omitempty"`
	Nested      []*jClass `json:"nested,omitempty"`
	Companion   *jClass   `json:"companion,omitempty"`
}

type jVar struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Pos  jPos   `json:"pos,omitempty"`
	Type *jType `json:"type"`
}

type jExpr struct {
	Kind     string   `json:"kind"`
	Pos      jPos     `json:"pos,omitempty"`
	Type     *jType   `json:"type,omitempty"`
	Exprs    []*jExpr `json:"exprs,omitempty"`
	Callee   *jRef    `json:"callee,omitempty"`
	Receiver *jExpr   `json:"receiver,omitempty"`
	Super    *jRef    `json:"super,omitempty"`
	Args     []*jExpr `json:"args,omitempty"`
	TypeArgs []*jType `json:"typeArgs,omitempty"`
	Ctor     *jRef    `json:"ctor,omitempty"`
	Target   *jRef    `json:"target,omitempty"`
	Decl     *jRef    `json:"decl,omitempty"`
	Class    *jRef    `json:"class,omitempty"`
	Var      *jVar    `json:"var,omitempty"`
	Init     *jExpr   `json:"init,omitempty"`
	Value    *jExpr   `json:"value,omitempty"`
	Int      string   `json:"int,omitempty"`
	Float    float64  `json:"float,omitempty"`
	Str      string   `json:"str,omitempty"`
	Arg      *jExpr   `json:"arg,omitempty"`
	Body     *jExpr   `json:"body,omitempty"`
	Always   *jExpr   `json:"always,omitempty"`
	Elem     *jType   `json:"elem,omitempty"`
}

type jUnit struct {
	Version      int       `json:"version"`
	Path         string    `json:"path"`
	CallbackStub bool      `json:"callbackStub,omitempty"`
	Classes      []*jClass `json:"classes,omitempty"`
	Functions    []*jFunc  `json:"functions,omitempty"`
	LoadInit     *jFunc    `json:"loadInit,omitempty"`
}

// tagOrder fixes the encoding order so re-encoding a unit is
// byte-stable.
var tagOrder = []Tag{TagAction, TagOutlet, TagOverrideInit, TagExport, TagCallbackEntry, TagFactory}

var tagNames = map[Tag]string{
	TagAction:        "action",
	TagOutlet:        "outlet",
	TagOverrideInit:  "overrideInit",
	TagExport:        "export",
	TagCallbackEntry: "callbackEntry",
	TagFactory:       "factory",
}

func encodeTags(t Tag) []string {
	var out []string
	for _, bit := range tagOrder {
		if t.Has(bit) {
			out = append(out, tagNames[bit])
		}
	}
	return out
}

func decodeTags(names []string) (Tag, error) {
	var t Tag
	for _, n := range names {
		found := false
		for bit, name := range tagNames {
			if name == n {
				t |= bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown tag %q", n)
		}
	}
	return t, nil
}

var kindNames = map[ClassKind]string{
	KindClass:     "class",
	KindObject:    "object",
	KindInterface: "interface",
}

var primByName = func() map[string]PrimKind {
	m := make(map[string]PrimKind, len(primNames))
	for k, n := range primNames {
		m[n] = k
	}
	return m
}()

// EncodeUnit writes the unit in the interchange form. References to
// declarations outside the unit must be present in ext.
func EncodeUnit(w io.Writer, u *Unit, ext *Externals) error {
	e := &encoder{ids: make(map[any]int), extNames: make(map[any]string)}
	for n, f := range ext.Funcs {
		e.extNames[f] = n
	}
	for n, c := range ext.Classes {
		e.extNames[c] = n
	}
	for n, c := range ext.Ctors {
		e.extNames[c] = n
	}

	e.declare(u)

	ju := &jUnit{Version: WireVersion, Path: u.Path, CallbackStub: u.CallbackStub}
	for _, c := range u.Classes {
		jc, err := e.class(c)
		if err != nil {
			return err
		}
		ju.Classes = append(ju.Classes, jc)
	}
	for _, f := range u.Functions {
		jf, err := e.fn(f)
		if err != nil {
			return err
		}
		ju.Functions = append(ju.Functions, jf)
	}
	if u.LoadInit != nil {
		jf, err := e.fn(u.LoadInit)
		if err != nil {
			return err
		}
		ju.LoadInit = jf
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ju)
}

type encoder struct {
	ids      map[any]int
	next     int
	extNames map[any]string
}

func (e *encoder) idOf(d any) int {
	if id, ok := e.ids[d]; ok {
		return id
	}
	e.next++
	e.ids[d] = e.next
	return e.next
}

// declare assigns ids to every declaration in the unit up front so
// bodies can reference siblings declared later in source order.
func (e *encoder) declare(u *Unit) {
	var declClass func(c *Class)
	declClass = func(c *Class) {
		e.idOf(c)
		for _, ct := range c.Ctors {
			e.idOf(ct)
		}
		for _, m := range c.Methods {
			e.idOf(m)
		}
		for _, p := range c.Props {
			e.idOf(p)
			if p.Getter != nil {
				e.idOf(p.Getter)
			}
			if p.Setter != nil {
				e.idOf(p.Setter)
			}
		}
		for _, n := range c.Nested {
			declClass(n)
		}
		if c.Companion != nil {
			declClass(c.Companion)
		}
	}
	for _, c := range u.Classes {
		declClass(c)
	}
	for _, f := range u.Functions {
		e.idOf(f)
	}
	if u.LoadInit != nil {
		e.idOf(u.LoadInit)
	}
}

func (e *encoder) ref(d any) (*jRef, error) {
	if name, ok := e.extNames[d]; ok {
		return &jRef{Ext: name}, nil
	}
	if id, ok := e.ids[d]; ok {
		return &jRef{ID: &id}, nil
	}
	return nil, fmt.Errorf("reference to undeclared %T", d)
}

func (e *encoder) typ(t *Type) (*jType, error) {
	if t == nil {
		return nil, nil
	}
	jt := &jType{Nullable: t.Nullable}
	if t.Class != nil {
		r, err := e.ref(t.Class)
		if err != nil {
			return nil, err
		}
		jt.Class = r
	} else {
		jt.Prim = t.Prim.String()
	}
	for _, a := range t.Args {
		ja, err := e.typ(a)
		if err != nil {
			return nil, err
		}
		jt.Args = append(jt.Args, ja)
	}
	return jt, nil
}

func (e *encoder) param(p *Param) (*jParam, error) {
	if p == nil {
		return nil, nil
	}
	jt, err := e.typ(p.Type)
	if err != nil {
		return nil, err
	}
	return &jParam{ID: e.idOf(p), Name: p.Name, Pos: jPos{p.Pos.Line, p.Pos.Col}, Type: jt}, nil
}

func (e *encoder) class(c *Class) (*jClass, error) {
	jc := &jClass{
		ID:          e.idOf(c),
		Name:        c.Name,
		Pos:         jPos{c.Pos.Line, c.Pos.Col},
		Kind:        kindNames[c.Kind],
		Open:        c.Open,
		Foreign:     c.Foreign,
		IsCompanion: c.IsCompanion,
		Tags:        encodeTags(c.Tags),
	}
	var err error
	for _, s := range c.Supers {
		jt, terr := e.typ(s)
		if terr != nil {
			return nil, terr
		}
		jc.Supers = append(jc.Supers, jt)
	}
	for _, ct := range c.Ctors {
		var jct *jCtor
		if jct, err = e.ctor(ct); err != nil {
			return nil, err
		}
		jc.Ctors = append(jc.Ctors, jct)
	}
	for _, m := range c.Methods {
		var jm *jFunc
		if jm, err = e.fn(m); err != nil {
			return nil, err
		}
		jc.Methods = append(jc.Methods, jm)
	}
	for _, p := range c.Props {
		var jp *jProp
		if jp, err = e.prop(p); err != nil {
			return nil, err
		}
		jc.Props = append(jc.Props, jp)
	}
	for _, n := range c.Nested {
		var jn *jClass
		if jn, err = e.class(n); err != nil {
			return nil, err
		}
		jc.Nested = append(jc.Nested, jn)
	}
	if c.Companion != nil {
		if jc.Companion, err = e.class(c.Companion); err != nil {
			return nil, err
		}
	}
	return jc, nil
}

func (e *encoder) ctor(c *Constructor) (*jCtor, error) {
	jc := &jCtor{
		ID:       e.idOf(c),
		Pos:      jPos{c.Pos.Line, c.Pos.Col},
		Tags:     encodeTags(c.Tags),
		External: c.External,
	}
	for _, p := range c.Params {
		jp, err := e.param(p)
		if err != nil {
			return nil, err
		}
		jc.Params = append(jc.Params, jp)
	}
	if c.InitMethod != nil {
		r, err := e.ref(c.InitMethod)
		if err != nil {
			return nil, err
		}
		jc.InitMethod = r
	}
	if c.Body != nil {
		jb, err := e.expr(c.Body)
		if err != nil {
			return nil, err
		}
		jc.Body = jb
	}
	return jc, nil
}

func (e *encoder) fn(f *Function) (*jFunc, error) {
	jf := &jFunc{
		ID:           e.idOf(f),
		Name:         f.Name,
		Pos:          jPos{f.Pos.Line, f.Pos.Col},
		Tags:         encodeTags(f.Tags),
		External:     f.External,
		Exported:     f.Exported,
		Symbol:       f.Symbol,
		Open:         f.Open,
		Variadic:     f.Variadic,
		FakeOverride: f.FakeOverride,
	}
	var err error
	if jf.Receiver, err = e.param(f.Receiver); err != nil {
		return nil, err
	}
	if jf.Extension, err = e.param(f.Extension); err != nil {
		return nil, err
	}
	for _, p := range f.Params {
		jp, perr := e.param(p)
		if perr != nil {
			return nil, perr
		}
		jf.Params = append(jf.Params, jp)
	}
	if jf.Return, err = e.typ(f.Return); err != nil {
		return nil, err
	}
	for _, o := range f.Overrides {
		r, rerr := e.ref(o)
		if rerr != nil {
			return nil, rerr
		}
		jf.Overrides = append(jf.Overrides, r)
	}
	if f.Foreign != nil {
		jf.Foreign = &jForeign{
			Selector:       f.Foreign.Selector,
			Encoding:       f.Foreign.Encoding,
			DesignatedInit: f.Foreign.DesignatedInit,
		}
	}
	if f.Body != nil {
		if jf.Body, err = e.expr(f.Body); err != nil {
			return nil, err
		}
	}
	return jf, nil
}

func (e *encoder) prop(p *Property) (*jProp, error) {
	jt, err := e.typ(p.Type)
	if err != nil {
		return nil, err
	}
	jp := &jProp{
		ID:      e.idOf(p),
		Name:    p.Name,
		Pos:     jPos{p.Pos.Line, p.Pos.Col},
		Type:    jt,
		Mutable: p.Mutable,
		Tags:    encodeTags(p.Tags),
	}
	if p.Getter != nil {
		if jp.Getter, err = e.fn(p.Getter); err != nil {
			return nil, err
		}
	}
	if p.Setter != nil {
		if jp.Setter, err = e.fn(p.Setter); err != nil {
			return nil, err
		}
	}
	return jp, nil
}

func (e *encoder) exprs(list []Expr) ([]*jExpr, error) {
	var out []*jExpr
	for _, x := range list {
		jx, err := e.expr(x)
		if err != nil {
			return nil, err
		}
		out = append(out, jx)
	}
	return out, nil
}

func (e *encoder) expr(x Expr) (*jExpr, error) {
	if x == nil {
		return nil, nil
	}
	pos := jPos{x.Position().Line, x.Position().Col}
	var err error
	switch n := x.(type) {
	case *Block:
		j := &jExpr{Kind: "block", Pos: pos}
		if j.Type, err = e.typ(n.Typ); err != nil {
			return nil, err
		}
		if j.Exprs, err = e.exprs(n.Exprs); err != nil {
			return nil, err
		}
		return j, nil
	case *Call:
		j := &jExpr{Kind: "call", Pos: pos}
		if j.Callee, err = e.ref(n.Callee); err != nil {
			return nil, err
		}
		if n.Receiver != nil {
			if j.Receiver, err = e.expr(n.Receiver); err != nil {
				return nil, err
			}
		}
		if n.Super != nil {
			if j.Super, err = e.ref(n.Super); err != nil {
				return nil, err
			}
		}
		if j.Args, err = e.exprs(n.Args); err != nil {
			return nil, err
		}
		for _, ta := range n.TypeArgs {
			jt, terr := e.typ(ta)
			if terr != nil {
				return nil, terr
			}
			j.TypeArgs = append(j.TypeArgs, jt)
		}
		if j.Type, err = e.typ(n.Typ); err != nil {
			return nil, err
		}
		return j, nil
	case *ConstructorCall:
		j := &jExpr{Kind: "new", Pos: pos}
		if j.Ctor, err = e.ref(n.Ctor); err != nil {
			return nil, err
		}
		if j.Args, err = e.exprs(n.Args); err != nil {
			return nil, err
		}
		return j, nil
	case *DelegatingCall:
		j := &jExpr{Kind: "delegate", Pos: pos}
		if j.Ctor, err = e.ref(n.Ctor); err != nil {
			return nil, err
		}
		if j.Args, err = e.exprs(n.Args); err != nil {
			return nil, err
		}
		return j, nil
	case *FunctionRef:
		j := &jExpr{Kind: "fnref", Pos: pos}
		if j.Target, err = e.ref(n.Target); err != nil {
			return nil, err
		}
		if j.Type, err = e.typ(n.Typ); err != nil {
			return nil, err
		}
		return j, nil
	case *FunctionPtr:
		j := &jExpr{Kind: "fnptr", Pos: pos}
		if j.Target, err = e.ref(n.Target); err != nil {
			return nil, err
		}
		if j.Type, err = e.typ(n.Typ); err != nil {
			return nil, err
		}
		return j, nil
	case *ValueRef:
		j := &jExpr{Kind: "use", Pos: pos}
		if j.Decl, err = e.ref(n.Decl); err != nil {
			return nil, err
		}
		return j, nil
	case *ObjectRef:
		j := &jExpr{Kind: "object", Pos: pos}
		if j.Class, err = e.ref(n.Class); err != nil {
			return nil, err
		}
		return j, nil
	case *VarDecl:
		jt, terr := e.typ(n.V.Type)
		if terr != nil {
			return nil, terr
		}
		j := &jExpr{Kind: "var", Pos: pos, Var: &jVar{
			ID:   e.idOf(n.V),
			Name: n.V.Name,
			Pos:  jPos{n.V.Pos.Line, n.V.Pos.Col},
			Type: jt,
		}}
		if n.Init != nil {
			if j.Init, err = e.expr(n.Init); err != nil {
				return nil, err
			}
		}
		return j, nil
	case *Return:
		j := &jExpr{Kind: "return", Pos: pos}
		if n.Value != nil {
			if j.Value, err = e.expr(n.Value); err != nil {
				return nil, err
			}
		}
		return j, nil
	case *IntConst:
		j := &jExpr{Kind: "int", Pos: pos, Int: strconv.FormatUint(n.Value, 10)}
		if j.Type, err = e.typ(n.Typ); err != nil {
			return nil, err
		}
		return j, nil
	case *FloatConst:
		j := &jExpr{Kind: "float", Pos: pos, Float: n.Value}
		if j.Type, err = e.typ(n.Typ); err != nil {
			return nil, err
		}
		return j, nil
	case *StringConst:
		j := &jExpr{Kind: "string", Pos: pos, Str: n.Value}
		if j.Type, err = e.typ(n.Typ); err != nil {
			return nil, err
		}
		return j, nil
	case *Null:
		j := &jExpr{Kind: "null", Pos: pos}
		if j.Type, err = e.typ(n.Typ); err != nil {
			return nil, err
		}
		return j, nil
	case *CheckNotNull:
		j := &jExpr{Kind: "checknotnull", Pos: pos}
		if j.Arg, err = e.expr(n.Arg); err != nil {
			return nil, err
		}
		return j, nil
	case *Cleanup:
		j := &jExpr{Kind: "cleanup", Pos: pos}
		if j.Body, err = e.expr(n.Body); err != nil {
			return nil, err
		}
		if j.Always, err = e.expr(n.Always); err != nil {
			return nil, err
		}
		return j, nil
	case *Vararg:
		j := &jExpr{Kind: "vararg", Pos: pos}
		if j.Elem, err = e.typ(n.Elem); err != nil {
			return nil, err
		}
		if j.Exprs, err = e.exprs(n.Elems); err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("cannot encode expression %T", x)
	}
}

// DecodeUnit reads a unit from the interchange form, resolving
// external references through ext.
func DecodeUnit(r io.Reader, ext *Externals) (*Unit, error) {
	var ju jUnit
	dec := json.NewDecoder(r)
	if err := dec.Decode(&ju); err != nil {
		return nil, fmt.Errorf("decode unit: %w", err)
	}
	if ju.Version != WireVersion {
		return nil, fmt.Errorf("decode unit %s: unsupported version %d (want %d)", ju.Path, ju.Version, WireVersion)
	}

	d := &decoder{
		path: ju.Path,
		byID: make(map[int]any),
		ext:  ext,
	}
	u := &Unit{Path: ju.Path, CallbackStub: ju.CallbackStub}

	// Declare every class and callable first so bodies and types can
	// reference forward declarations.
	for _, jc := range ju.Classes {
		u.Classes = append(u.Classes, d.declareClass(jc, nil))
	}
	for _, jf := range ju.Functions {
		u.Functions = append(u.Functions, d.declareFunc(jf, nil))
	}
	if ju.LoadInit != nil {
		u.LoadInit = d.declareFunc(ju.LoadInit, nil)
	}

	// Link references and decode bodies.
	for i, jc := range ju.Classes {
		if err := d.linkClass(jc, u.Classes[i]); err != nil {
			return nil, fmt.Errorf("decode unit %s: %w", ju.Path, err)
		}
	}
	for i, jf := range ju.Functions {
		if err := d.linkFunc(jf, u.Functions[i]); err != nil {
			return nil, fmt.Errorf("decode unit %s: %w", ju.Path, err)
		}
	}
	if ju.LoadInit != nil {
		if err := d.linkFunc(ju.LoadInit, u.LoadInit); err != nil {
			return nil, fmt.Errorf("decode unit %s: %w", ju.Path, err)
		}
	}
	return u, nil
}

type decoder struct {
	path string
	byID map[int]any
	ext  *Externals
}

func (d *decoder) register(id int, decl any) {
	d.byID[id] = decl
}

func (d *decoder) declareClass(jc *jClass, parent *Class) *Class {
	c := &Class{
		Name:        jc.Name,
		Pos:         Pos{jc.Pos[0], jc.Pos[1]},
		Open:        jc.Open,
		Foreign:     jc.Foreign,
		IsCompanion: jc.IsCompanion,
		Parent:      parent,
	}
	d.register(jc.ID, c)
	for _, jct := range jc.Ctors {
		ct := &Constructor{Pos: Pos{jct.Pos[0], jct.Pos[1]}, Parent: c, External: jct.External}
		d.register(jct.ID, ct)
		c.Ctors = append(c.Ctors, ct)
	}
	for _, jm := range jc.Methods {
		c.Methods = append(c.Methods, d.declareFunc(jm, c))
	}
	for _, jp := range jc.Props {
		p := &Property{
			Name:    jp.Name,
			Pos:     Pos{jp.Pos[0], jp.Pos[1]},
			Parent:  c,
			Mutable: jp.Mutable,
		}
		d.register(jp.ID, p)
		if jp.Getter != nil {
			p.Getter = d.declareFunc(jp.Getter, c)
		}
		if jp.Setter != nil {
			p.Setter = d.declareFunc(jp.Setter, c)
		}
		c.Props = append(c.Props, p)
	}
	for _, jn := range jc.Nested {
		c.Nested = append(c.Nested, d.declareClass(jn, c))
	}
	if jc.Companion != nil {
		c.Companion = d.declareClass(jc.Companion, c)
	}
	return c
}

func (d *decoder) declareFunc(jf *jFunc, parent *Class) *Function {
	f := &Function{
		Name:         jf.Name,
		Pos:          Pos{jf.Pos[0], jf.Pos[1]},
		Parent:       parent,
		External:     jf.External,
		Exported:     jf.Exported,
		Symbol:       jf.Symbol,
		Open:         jf.Open,
		Variadic:     jf.Variadic,
		FakeOverride: jf.FakeOverride,
	}
	d.register(jf.ID, f)
	return f
}

func (d *decoder) resolveClass(r *jRef) (*Class, error) {
	if r == nil {
		return nil, fmt.Errorf("missing class reference")
	}
	if r.Ext != "" {
		if c, ok := d.ext.Classes[r.Ext]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("unknown external class %q", r.Ext)
	}
	if r.ID != nil {
		if c, ok := d.byID[*r.ID].(*Class); ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("dangling class reference")
}

func (d *decoder) resolveFunc(r *jRef) (*Function, error) {
	if r == nil {
		return nil, fmt.Errorf("missing function reference")
	}
	if r.Ext != "" {
		if f, ok := d.ext.Funcs[r.Ext]; ok {
			return f, nil
		}
		return nil, fmt.Errorf("unknown external function %q", r.Ext)
	}
	if r.ID != nil {
		if f, ok := d.byID[*r.ID].(*Function); ok {
			return f, nil
		}
	}
	return nil, fmt.Errorf("dangling function reference")
}

func (d *decoder) resolveCtor(r *jRef) (*Constructor, error) {
	if r == nil {
		return nil, fmt.Errorf("missing constructor reference")
	}
	if r.Ext != "" {
		if c, ok := d.ext.Ctors[r.Ext]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("unknown external constructor %q", r.Ext)
	}
	if r.ID != nil {
		if c, ok := d.byID[*r.ID].(*Constructor); ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("dangling constructor reference")
}

func (d *decoder) resolveValue(r *jRef) (ValueDecl, error) {
	if r == nil || r.ID == nil {
		return nil, fmt.Errorf("missing value reference")
	}
	if v, ok := d.byID[*r.ID].(ValueDecl); ok {
		return v, nil
	}
	return nil, fmt.Errorf("dangling value reference")
}

func (d *decoder) typ(jt *jType) (*Type, error) {
	if jt == nil {
		return nil, nil
	}
	t := &Type{Nullable: jt.Nullable}
	if jt.Class != nil {
		c, err := d.resolveClass(jt.Class)
		if err != nil {
			return nil, err
		}
		t.Class = c
	} else {
		k, ok := primByName[jt.Prim]
		if !ok {
			return nil, fmt.Errorf("unknown primitive type %q", jt.Prim)
		}
		t.Prim = k
	}
	for _, ja := range jt.Args {
		a, err := d.typ(ja)
		if err != nil {
			return nil, err
		}
		t.Args = append(t.Args, a)
	}
	return t, nil
}

func (d *decoder) param(jp *jParam) (*Param, error) {
	if jp == nil {
		return nil, nil
	}
	t, err := d.typ(jp.Type)
	if err != nil {
		return nil, err
	}
	p := &Param{Name: jp.Name, Pos: Pos{jp.Pos[0], jp.Pos[1]}, Type: t}
	d.register(jp.ID, p)
	return p, nil
}

func (d *decoder) linkClass(jc *jClass, c *Class) error {
	kindOK := false
	for k, n := range kindNames {
		if n == jc.Kind {
			c.Kind = k
			kindOK = true
			break
		}
	}
	if !kindOK {
		return fmt.Errorf("class %s: unknown kind %q", jc.Name, jc.Kind)
	}
	tags, err := decodeTags(jc.Tags)
	if err != nil {
		return fmt.Errorf("class %s: %w", jc.Name, err)
	}
	c.Tags = tags
	for _, js := range jc.Supers {
		s, serr := d.typ(js)
		if serr != nil {
			return fmt.Errorf("class %s: %w", jc.Name, serr)
		}
		c.Supers = append(c.Supers, s)
	}
	for i, jct := range jc.Ctors {
		if err := d.linkCtor(jct, c.Ctors[i]); err != nil {
			return fmt.Errorf("class %s: %w", jc.Name, err)
		}
	}
	for i, jm := range jc.Methods {
		if err := d.linkFunc(jm, c.Methods[i]); err != nil {
			return fmt.Errorf("class %s: %w", jc.Name, err)
		}
	}
	for i, jp := range jc.Props {
		if err := d.linkProp(jp, c.Props[i]); err != nil {
			return fmt.Errorf("class %s: %w", jc.Name, err)
		}
	}
	for i, jn := range jc.Nested {
		if err := d.linkClass(jn, c.Nested[i]); err != nil {
			return err
		}
	}
	if jc.Companion != nil {
		if err := d.linkClass(jc.Companion, c.Companion); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) linkCtor(jc *jCtor, c *Constructor) error {
	tags, err := decodeTags(jc.Tags)
	if err != nil {
		return err
	}
	c.Tags = tags
	for _, jp := range jc.Params {
		p, perr := d.param(jp)
		if perr != nil {
			return perr
		}
		c.Params = append(c.Params, p)
	}
	if jc.InitMethod != nil {
		if c.InitMethod, err = d.resolveFunc(jc.InitMethod); err != nil {
			return err
		}
	}
	if jc.Body != nil {
		body, berr := d.expr(jc.Body)
		if berr != nil {
			return berr
		}
		blk, ok := body.(*Block)
		if !ok {
			return fmt.Errorf("constructor body must be a block")
		}
		c.Body = blk
	}
	return nil
}

func (d *decoder) linkFunc(jf *jFunc, f *Function) error {
	tags, err := decodeTags(jf.Tags)
	if err != nil {
		return fmt.Errorf("function %s: %w", jf.Name, err)
	}
	f.Tags = tags
	if f.Receiver, err = d.param(jf.Receiver); err != nil {
		return fmt.Errorf("function %s: %w", jf.Name, err)
	}
	if f.Extension, err = d.param(jf.Extension); err != nil {
		return fmt.Errorf("function %s: %w", jf.Name, err)
	}
	for _, jp := range jf.Params {
		p, perr := d.param(jp)
		if perr != nil {
			return fmt.Errorf("function %s: %w", jf.Name, perr)
		}
		f.Params = append(f.Params, p)
	}
	if f.Return, err = d.typ(jf.Return); err != nil {
		return fmt.Errorf("function %s: %w", jf.Name, err)
	}
	for _, jo := range jf.Overrides {
		o, oerr := d.resolveFunc(jo)
		if oerr != nil {
			return fmt.Errorf("function %s: %w", jf.Name, oerr)
		}
		f.Overrides = append(f.Overrides, o)
	}
	if jf.Foreign != nil {
		f.Foreign = &ForeignInfo{
			Selector:       jf.Foreign.Selector,
			Encoding:       jf.Foreign.Encoding,
			DesignatedInit: jf.Foreign.DesignatedInit,
		}
	}
	if jf.Body != nil {
		body, berr := d.expr(jf.Body)
		if berr != nil {
			return fmt.Errorf("function %s: %w", jf.Name, berr)
		}
		blk, ok := body.(*Block)
		if !ok {
			return fmt.Errorf("function %s: body must be a block", jf.Name)
		}
		f.Body = blk
	}
	return nil
}

func (d *decoder) linkProp(jp *jProp, p *Property) error {
	tags, err := decodeTags(jp.Tags)
	if err != nil {
		return fmt.Errorf("property %s: %w", jp.Name, err)
	}
	p.Tags = tags
	if p.Type, err = d.typ(jp.Type); err != nil {
		return fmt.Errorf("property %s: %w", jp.Name, err)
	}
	if jp.Getter != nil {
		if err := d.linkFunc(jp.Getter, p.Getter); err != nil {
			return err
		}
	}
	if jp.Setter != nil {
		if err := d.linkFunc(jp.Setter, p.Setter); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) exprs(list []*jExpr) ([]Expr, error) {
	var out []Expr
	for _, jx := range list {
		x, err := d.expr(jx)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func (d *decoder) expr(jx *jExpr) (Expr, error) {
	if jx == nil {
		return nil, nil
	}
	pos := Pos{jx.Pos[0], jx.Pos[1]}
	switch jx.Kind {
	case "block":
		typ, err := d.typ(jx.Type)
		if err != nil {
			return nil, err
		}
		exprs, err := d.exprs(jx.Exprs)
		if err != nil {
			return nil, err
		}
		if typ == nil {
			typ = Prim(PrimUnit)
		}
		return &Block{Pos: pos, Typ: typ, Exprs: exprs}, nil
	case "call":
		callee, err := d.resolveFunc(jx.Callee)
		if err != nil {
			return nil, err
		}
		n := &Call{Pos: pos, Callee: callee}
		if jx.Receiver != nil {
			if n.Receiver, err = d.expr(jx.Receiver); err != nil {
				return nil, err
			}
		}
		if jx.Super != nil {
			if n.Super, err = d.resolveClass(jx.Super); err != nil {
				return nil, err
			}
		}
		if n.Args, err = d.exprs(jx.Args); err != nil {
			return nil, err
		}
		for _, jt := range jx.TypeArgs {
			t, terr := d.typ(jt)
			if terr != nil {
				return nil, terr
			}
			n.TypeArgs = append(n.TypeArgs, t)
		}
		if n.Typ, err = d.typ(jx.Type); err != nil {
			return nil, err
		}
		if n.Typ == nil {
			n.Typ = callee.Return
		}
		return n, nil
	case "new":
		ctor, err := d.resolveCtor(jx.Ctor)
		if err != nil {
			return nil, err
		}
		args, err := d.exprs(jx.Args)
		if err != nil {
			return nil, err
		}
		return &ConstructorCall{Pos: pos, Ctor: ctor, Args: args}, nil
	case "delegate":
		ctor, err := d.resolveCtor(jx.Ctor)
		if err != nil {
			return nil, err
		}
		args, err := d.exprs(jx.Args)
		if err != nil {
			return nil, err
		}
		return &DelegatingCall{Pos: pos, Ctor: ctor, Args: args}, nil
	case "fnref":
		target, err := d.resolveFunc(jx.Target)
		if err != nil {
			return nil, err
		}
		typ, err := d.typ(jx.Type)
		if err != nil {
			return nil, err
		}
		return &FunctionRef{Pos: pos, Target: target, Typ: typ}, nil
	case "fnptr":
		target, err := d.resolveFunc(jx.Target)
		if err != nil {
			return nil, err
		}
		typ, err := d.typ(jx.Type)
		if err != nil {
			return nil, err
		}
		return &FunctionPtr{Pos: pos, Target: target, Typ: typ}, nil
	case "use":
		decl, err := d.resolveValue(jx.Decl)
		if err != nil {
			return nil, err
		}
		return &ValueRef{Pos: pos, Decl: decl}, nil
	case "object":
		cls, err := d.resolveClass(jx.Class)
		if err != nil {
			return nil, err
		}
		return &ObjectRef{Pos: pos, Class: cls}, nil
	case "var":
		if jx.Var == nil {
			return nil, fmt.Errorf("var expression without variable")
		}
		t, err := d.typ(jx.Var.Type)
		if err != nil {
			return nil, err
		}
		v := &Variable{Name: jx.Var.Name, Pos: Pos{jx.Var.Pos[0], jx.Var.Pos[1]}, Type: t}
		d.register(jx.Var.ID, v)
		n := &VarDecl{Pos: pos, V: v}
		if jx.Init != nil {
			if n.Init, err = d.expr(jx.Init); err != nil {
				return nil, err
			}
		}
		return n, nil
	case "return":
		n := &Return{Pos: pos}
		if jx.Value != nil {
			var err error
			if n.Value, err = d.expr(jx.Value); err != nil {
				return nil, err
			}
		}
		return n, nil
	case "int":
		v, err := strconv.ParseUint(jx.Int, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer constant %q", jx.Int)
		}
		typ, err := d.typ(jx.Type)
		if err != nil {
			return nil, err
		}
		return &IntConst{Pos: pos, Value: v, Typ: typ}, nil
	case "float":
		typ, err := d.typ(jx.Type)
		if err != nil {
			return nil, err
		}
		return &FloatConst{Pos: pos, Value: jx.Float, Typ: typ}, nil
	case "string":
		typ, err := d.typ(jx.Type)
		if err != nil {
			return nil, err
		}
		if typ == nil {
			typ = Prim(PrimString)
		}
		return &StringConst{Pos: pos, Value: jx.Str, Typ: typ}, nil
	case "null":
		typ, err := d.typ(jx.Type)
		if err != nil {
			return nil, err
		}
		return &Null{Pos: pos, Typ: typ}, nil
	case "checknotnull":
		arg, err := d.expr(jx.Arg)
		if err != nil {
			return nil, err
		}
		return &CheckNotNull{Pos: pos, Arg: arg}, nil
	case "cleanup":
		body, err := d.expr(jx.Body)
		if err != nil {
			return nil, err
		}
		always, err := d.expr(jx.Always)
		if err != nil {
			return nil, err
		}
		return &Cleanup{Pos: pos, Body: body, Always: always}, nil
	case "vararg":
		elem, err := d.typ(jx.Elem)
		if err != nil {
			return nil, err
		}
		elems, err := d.exprs(jx.Exprs)
		if err != nil {
			return nil, err
		}
		return &Vararg{Pos: pos, Elem: elem, Elems: elems}, nil
	default:
		return nil, fmt.Errorf("unknown expression kind %q", jx.Kind)
	}
}
