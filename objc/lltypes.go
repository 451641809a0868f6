package objc

import (
	"fmt"

	"github.com/llir/llvm/ir/types"

	"github.com/kilnlang/kobjc/kir"
)

// i8ptr is the universal object and C pointer type at the boundary.
var i8ptr = types.NewPointer(types.I8)

// LLType maps a Kiln type to its C-ABI LLVM type at the interop
// boundary. Object references, strings, and raw pointers all travel as
// i8*; integer widths map directly; unsigned kinds share their width's
// integer type since LLVM integers carry no sign.
func LLType(t *kir.Type) types.Type {
	if t == nil {
		return types.Void
	}
	if t.Class != nil {
		return i8ptr
	}
	switch t.Prim {
	case kir.PrimUnit:
		return types.Void
	case kir.PrimBool:
		return types.I1
	case kir.PrimInt8, kir.PrimUInt8:
		return types.I8
	case kir.PrimInt16, kir.PrimUInt16:
		return types.I16
	case kir.PrimInt32, kir.PrimUInt32:
		return types.I32
	case kir.PrimInt64, kir.PrimUInt64:
		return types.I64
	case kir.PrimFloat32:
		return types.Float
	case kir.PrimFloat64:
		return types.Double
	case kir.PrimString, kir.PrimRawPtr:
		return i8ptr
	default:
		panic(fmt.Sprintf("objc: no LLVM mapping for type %s", t))
	}
}
