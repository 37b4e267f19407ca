// Command mksymtab builds a kernel symbol file from a linked kernel
// ELF image, the host half of C6. When a kernel image path is given
// its OS image info header is parsed and its image_crc embedded as
// the symbol file's kernel_crc (§4.3); otherwise kernel_crc is zero.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/minilink/internal/config"
	"github.com/xyproto/minilink/internal/elfobj"
	"github.com/xyproto/minilink/internal/symbuild"
)

func main() {
	fs := flag.NewFlagSet("mksymtab", flag.ContinueOnError)
	applyVerbose := config.RegisterVerboseFlag(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: mksymtab [-v] <input.elf> <output.mls> [kernel_image]\n")
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	applyVerbose()

	if fs.NArg() != 2 && fs.NArg() != 3 {
		fs.Usage()
		os.Exit(1)
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

	obj, err := elfobj.Load(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mksymtab: %s: %v\n", inPath, err)
		os.Exit(1)
	}

	var opts symbuild.Options
	if fs.NArg() == 3 {
		img, err := os.ReadFile(fs.Arg(2))
		if err != nil {
			fmt.Fprintf(os.Stderr, "mksymtab: %s: %v\n", fs.Arg(2), err)
			os.Exit(1)
		}
		opts.KernelImage = img
	}

	out, err := symbuild.BuildSymbolTable(obj, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mksymtab: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, out, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "mksymtab: writing %s: %v\n", outPath, err)
		os.Exit(1)
	}

	if config.Verbose {
		fmt.Fprintf(os.Stderr, "mksymtab: wrote %d bytes to %s\n", len(out), outPath)
	}
}
