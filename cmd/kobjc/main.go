// kobjc runs the foreign-interop lowering passes over a serialized
// compilation unit and reports diagnostics.
//
// Usage:
//
//	kobjc [-target arm64-apple] [-dump] [-ll decls.ll] [-v] unit.json
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kilnlang/kobjc/kir"
	"github.com/kilnlang/kobjc/lower"
	"github.com/kilnlang/kobjc/objc"
)

func main() {
	target := flag.String("target", lower.TargetARM64, "target triple prefix (arm64-apple or x86_64-apple)")
	dump := flag.String("dump", "", "write the lowered unit tree to a file (- for stdout)")
	ll := flag.String("ll", "", "write the LLVM external declarations to a file (- for stdout)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: kobjc [-target triple] [-dump out] [-ll out] [-v] unit.json\n")
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	in, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kobjc: %v\n", err)
		os.Exit(1)
	}
	defer in.Close()

	rt := objc.NewRuntime()
	unit, err := kir.DecodeUnit(in, rt.Externals())
	if err != nil {
		fmt.Fprintf(os.Stderr, "kobjc: %v\n", err)
		os.Exit(1)
	}

	l, err := lower.New(rt, lower.Options{Target: *target, Log: log})
	if err != nil {
		fmt.Fprintf(os.Stderr, "kobjc: %v\n", err)
		os.Exit(1)
	}
	res := l.Run(unit)

	if res.Diags.Count() > 0 {
		fmt.Fprintln(os.Stderr, res.Diags.Format())
	}
	if res.Invalid() {
		fmt.Fprintf(os.Stderr, "kobjc: %d errors\n", res.Diags.ErrorCount())
		os.Exit(1)
	}

	if *dump != "" {
		if err := writeOut(*dump, func(f *os.File) error {
			kir.Fprint(f, unit)
			return nil
		}); err != nil {
			fmt.Fprintf(os.Stderr, "kobjc: dump: %v\n", err)
			os.Exit(1)
		}
	}
	if *ll != "" {
		if err := writeOut(*ll, func(f *os.File) error {
			_, werr := f.WriteString(rt.LL.String())
			return werr
		}); err != nil {
			fmt.Fprintf(os.Stderr, "kobjc: ll: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("kobjc: %s (%d classes checked, %d stand-ins, %d calls bridged, %d rewrites)\n",
		unit.Path, res.Stats.ClassesChecked, res.Stats.StandIns, res.Stats.CallsBridged, res.Rewrites)
}

func writeOut(path string, write func(*os.File) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
