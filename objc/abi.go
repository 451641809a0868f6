// Package objc models the Objective-C side of the interop boundary:
// selectors and type encodings, the well-known interop primitives and
// intrinsics the lowering passes match by identity, the numeric
// conversion table, and the bridge functions that carry lowered calls
// across the boundary. Every generated bridge, trampoline, and
// primitive is paired with an LLVM external declaration.
package objc

import (
	"fmt"
	"strings"
	"unicode"
)

// Stand-in trampolines receive (self, _cmd) and up to two object
// parameters. The encodings are fixed per parameter count and valid
// for the arm64 and x86-64 Apple calling conventions, where pointers
// are 8 bytes and the frame begins at self.
var standInEncodings = [3]string{
	"v16@0:8",
	"v24@0:8@16",
	"v32@0:8@16@24",
}

// StandInEncoding returns the type encoding for a stand-in trampoline
// with the given object parameter count. Counts above two are not
// representable in the fixed table and are rejected.
func StandInEncoding(params int) (string, error) {
	if params < 0 || params >= len(standInEncodings) {
		return "", fmt.Errorf("unsupported stand-in parameter count %d (at most 2)", params)
	}
	return standInEncodings[params], nil
}

// ActionSelector derives the selector for an action handler method:
// the bare name for zero parameters, name plus a trailing colon for
// one.
func ActionSelector(name string, params int) string {
	if params == 0 {
		return name
	}
	return name + ":"
}

// SetterSelector derives the selector for a property outlet setter:
// "set" plus the capitalized property name plus a colon.
func SetterSelector(prop string) string {
	if prop == "" {
		return "set:"
	}
	r := []rune(prop)
	r[0] = unicode.ToUpper(r[0])
	return "set" + string(r) + ":"
}

// SelectorArity returns the number of arguments a selector carries,
// which is its colon count.
func SelectorArity(sel string) int {
	return strings.Count(sel, ":")
}

// Symbol builds an LLVM-safe link symbol from a prefix, class name,
// and selector. Colons become underscores; everything else in a
// selector is already a valid symbol character.
func Symbol(prefix, class, sel string) string {
	mangled := strings.ReplaceAll(sel, ":", "_")
	mangled = strings.ReplaceAll(mangled, ".", "_")
	return prefix + "_" + class + "_" + mangled
}
