// Command minilink-demo exercises the whole pipeline — build a
// program module and a kernel symbol table, load the module, then load
// it a second time and try to reclaim the flash space while its process
// is still live, both of which are refused — against the simulated flash/RAM/filesystem
// backend in internal/devsim, without any real microcontroller or
// cross-compiled ELF object. It stands in for the hardware those host
// tools normally target, the same role internal/devsim plays in the
// loader's own tests.
package main

import (
	"fmt"
	"os"

	"github.com/xyproto/minilink/internal/builder"
	"github.com/xyproto/minilink/internal/devsim"
	"github.com/xyproto/minilink/internal/elfobj"
	"github.com/xyproto/minilink/internal/loader"
	"github.com/xyproto/minilink/internal/symbuild"
)

const (
	flashSize   = 4096
	eraseUnit   = 64
	ramSize     = 1024
	freeROMBase = 1024 // past a simulated resident kernel image
	noinitEnd   = 128  // past simulated resident/static RAM
)

// demoModule models a tiny application: one process descriptor in
// .data, one pointer to it in .text's autostart list, and a single
// kernel import resolved against a clock driver the "kernel" exports.
func demoModule() *elfobj.Object {
	obj := &elfobj.Object{
		Sections: map[string]*elfobj.Section{
			".text": {Name: ".text", Content: []byte{0, 0, 0, 0}, Size: 4},
			".data": {
				Name: ".data", Content: []byte{0, 0}, Size: 2,
				Relocations: []elfobj.Relocation{{Offset: 0, Symbol: "clock_seconds"}},
			},
		},
		Symbols: map[string]*elfobj.Symbol{
			builder.AutostartSymbol: {Name: builder.AutostartSymbol, Value: 2, Section: ".text", Global: true},
			"clock_seconds":         {Name: "clock_seconds", Global: true},
		},
	}
	return obj
}

func demoKernel() *elfobj.Object {
	return &elfobj.Object{
		Sections: map[string]*elfobj.Section{},
		Symbols: map[string]*elfobj.Symbol{
			"clock_seconds": {Name: "clock_seconds", Value: 0x2000, Section: "kerneltext", Global: true},
		},
	}
}

func main() {
	progBytes, err := builder.BuildModule(demoModule(), builder.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "minilink-demo: building module: %v\n", err)
		os.Exit(1)
	}
	symBytes, err := symbuild.BuildSymbolTable(demoKernel(), symbuild.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "minilink-demo: building symbol table: %v\n", err)
		os.Exit(1)
	}

	fs := devsim.NewFileSystem()
	fs.Put("blink.mlk", progBytes)
	fs.Put("kernel.mls", symBytes)

	flash := devsim.NewFlash(flashSize, eraseUnit)
	ram := devsim.NewRAM(ramSize)
	ctx := loader.NewContext(flash, ram, fs, freeROMBase, flashSize, noinitEnd, loader.NewProcessList())
	if err := ctx.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "minilink-demo: init: %v\n", err)
		os.Exit(1)
	}

	proc, status := ctx.Load("blink.mlk", "kernel.mls")
	if status != loader.StatusOK {
		fmt.Fprintf(os.Stderr, "minilink-demo: load failed: %v\n", status)
		os.Exit(1)
	}
	fmt.Printf("loaded blink.mlk as process %d (loaded=%v)\n", proc, ctx.IsLoaded(proc))

	name, _ := ctx.FilenameFor(proc)
	fmt.Printf("process %d belongs to %s\n", proc, name)

	// Loading the identical module again finds the installed copy, but
	// its process is still live, so the load is refused with status busy
	// (process 0) and no flash is consumed.
	proc2, status2 := ctx.Load("blink.mlk", "kernel.mls")
	fmt.Printf("reload status=%v process=%d (same=%v)\n", status2, proc2, proc2 == proc)

	if busy, refused := ctx.CleanSpace(); refused {
		fmt.Printf("clean-space refused: process %d still live\n", busy)
	}
}
