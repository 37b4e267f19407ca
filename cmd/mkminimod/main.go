// Command mkminimod builds a program module file from a compiled ELF
// object, the host half of C5. It follows the original tool's exit
// conventions: a diagnostic to stderr and a non-zero exit on any
// failure, nothing but the output file on success.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/minilink/internal/builder"
	"github.com/xyproto/minilink/internal/config"
	"github.com/xyproto/minilink/internal/elfobj"
)

func main() {
	fs := flag.NewFlagSet("mkminimod", flag.ContinueOnError)
	applyVerbose := config.RegisterVerboseFlag(fs)
	strict := fs.Bool("strict", false, "reject absolute-section relocation values that collide with the escape byte")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: mkminimod [-v] [-strict] <input.elf> <output.mlk>\n")
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	applyVerbose()

	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(1)
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

	obj, err := elfobj.Load(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkminimod: %s: %v\n", inPath, err)
		os.Exit(1)
	}

	if config.Verbose {
		fmt.Fprintf(os.Stderr, "mkminimod: read %d sections, %d symbols from %s\n", len(obj.Sections), len(obj.Symbols), inPath)
	}

	out, err := builder.BuildModule(obj, builder.Options{RejectAbsoluteEscapeCollision: *strict})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkminimod: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, out, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "mkminimod: writing %s: %v\n", outPath, err)
		os.Exit(1)
	}

	if config.Verbose {
		fmt.Fprintf(os.Stderr, "mkminimod: wrote %d bytes to %s\n", len(out), outPath)
	}
}
