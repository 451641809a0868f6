// kirdump decodes a serialized compilation unit and prints its tree
// without running any lowering.
package main

import (
	"fmt"
	"os"

	"github.com/kilnlang/kobjc/kir"
	"github.com/kilnlang/kobjc/objc"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: kirdump unit.json\n")
		os.Exit(1)
	}
	in, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "kirdump: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	rt := objc.NewRuntime()
	unit, err := kir.DecodeUnit(in, rt.Externals())
	if err != nil {
		fmt.Fprintf(os.Stderr, "kirdump: %v\n", err)
		os.Exit(1)
	}
	kir.Fprint(os.Stdout, unit)
}
