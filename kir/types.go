// Package kir defines the Kiln mid-level IR consumed by the interop
// lowering passes: a mutable declaration tree (classes, constructors,
// functions, properties), an expression tree, and the type model. The
// tree is produced fully resolved and type-checked by the frontend;
// declaration identity is pointer identity.
package kir

import (
	"fmt"
	"strings"
)

// PrimKind enumerates the primitive types of the Kiln type model.
type PrimKind int

const (
	PrimInvalid PrimKind = iota
	PrimUnit
	PrimBool
	PrimInt8
	PrimInt16
	PrimInt32
	PrimInt64
	PrimUInt8
	PrimUInt16
	PrimUInt32
	PrimUInt64
	PrimFloat32
	PrimFloat64
	PrimString
	PrimRawPtr
	PrimVararg
)

var primNames = map[PrimKind]string{
	PrimInvalid: "invalid",
	PrimUnit:    "Unit",
	PrimBool:    "Bool",
	PrimInt8:    "Int8",
	PrimInt16:   "Int16",
	PrimInt32:   "Int32",
	PrimInt64:   "Int64",
	PrimUInt8:   "UInt8",
	PrimUInt16:  "UInt16",
	PrimUInt32:  "UInt32",
	PrimUInt64:  "UInt64",
	PrimFloat32: "Float32",
	PrimFloat64: "Float64",
	PrimString:  "String",
	PrimRawPtr:  "RawPtr",
	PrimVararg:  "Vararg",
}

func (k PrimKind) String() string {
	if s, ok := primNames[k]; ok {
		return s
	}
	return fmt.Sprintf("prim(%d)", int(k))
}

// Width returns the bit width for integer kinds and 0 for everything else.
func (k PrimKind) Width() int {
	switch k {
	case PrimInt8, PrimUInt8:
		return 8
	case PrimInt16, PrimUInt16:
		return 16
	case PrimInt32, PrimUInt32:
		return 32
	case PrimInt64, PrimUInt64:
		return 64
	}
	return 0
}

// Signed reports whether k is a signed integer kind.
func (k PrimKind) Signed() bool {
	switch k {
	case PrimInt8, PrimInt16, PrimInt32, PrimInt64:
		return true
	}
	return false
}

// Unsigned reports whether k is an unsigned integer kind.
func (k PrimKind) Unsigned() bool {
	switch k {
	case PrimUInt8, PrimUInt16, PrimUInt32, PrimUInt64:
		return true
	}
	return false
}

// Integer reports whether k is any integer kind.
func (k PrimKind) Integer() bool {
	return k.Signed() || k.Unsigned()
}

// Float reports whether k is a floating-point kind.
func (k PrimKind) Float() bool {
	return k == PrimFloat32 || k == PrimFloat64
}

// SignedOfWidth returns the signed integer kind of the given bit width.
func SignedOfWidth(w int) PrimKind {
	switch w {
	case 8:
		return PrimInt8
	case 16:
		return PrimInt16
	case 32:
		return PrimInt32
	case 64:
		return PrimInt64
	}
	return PrimInvalid
}

// UnsignedOfWidth returns the unsigned integer kind of the given bit width.
func UnsignedOfWidth(w int) PrimKind {
	switch w {
	case 8:
		return PrimUInt8
	case 16:
		return PrimUInt16
	case 32:
		return PrimUInt32
	case 64:
		return PrimUInt64
	}
	return PrimInvalid
}

// Type is a resolved Kiln type: either a primitive kind or a class
// reference, optionally nullable, optionally carrying type arguments.
// Types are immutable once built; helpers return copies.
type Type struct {
	Prim     PrimKind
	Class    *Class
	Args     []*Type
	Nullable bool
}

// Prim returns the non-nullable type for a primitive kind.
func Prim(k PrimKind) *Type {
	return &Type{Prim: k}
}

// ClassType returns a class reference type.
func ClassType(c *Class, nullable bool, args ...*Type) *Type {
	return &Type{Class: c, Nullable: nullable, Args: args}
}

// WithNullable returns a copy of t with the given nullability.
func (t *Type) WithNullable(n bool) *Type {
	cp := *t
	cp.Nullable = n
	return &cp
}

// IsClass reports whether t references a class.
func (t *Type) IsClass() bool { return t != nil && t.Class != nil }

// IsPrim reports whether t is exactly the primitive kind k, non-class.
func (t *Type) IsPrim(k PrimKind) bool {
	return t != nil && t.Class == nil && t.Prim == k
}

// IsUnit reports whether t is the unit (void) type.
func (t *Type) IsUnit() bool { return t.IsPrim(PrimUnit) }

// Equal reports structural equality: same type constructor (primitive
// kind or identical class), same nullability, and pairwise-equal type
// arguments.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Prim != o.Prim || t.Class != o.Class || t.Nullable != o.Nullable {
		return false
	}
	if len(t.Args) != len(o.Args) {
		return false
	}
	for i := range t.Args {
		if !t.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	var sb strings.Builder
	if t.Class != nil {
		sb.WriteString(t.Class.Name)
	} else {
		sb.WriteString(t.Prim.String())
	}
	if len(t.Args) > 0 {
		sb.WriteString("<")
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String())
		}
		sb.WriteString(">")
	}
	if t.Nullable {
		sb.WriteString("?")
	}
	return sb.String()
}

// IsForeignObject reports whether t is a class type whose class is
// bound to the foreign runtime (imported, or a subclass of an imported
// class).
func (t *Type) IsForeignObject() bool {
	return t.IsClass() && t.Class.ForeignBound()
}
