// Command minilinkd watches a directory of compiled ELF objects and
// re-runs mkminimod (or mksymtab, for the kernel image) whenever one
// changes, then feeds the freshly rebuilt module through a simulated
// Load so a developer sees resolution failures immediately — the same
// recompile-on-save workflow the teacher's hot-reload tooling
// implements, retargeted from a JIT compiler's source files to linker
// input objects.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xyproto/minilink/internal/builder"
	"github.com/xyproto/minilink/internal/config"
	"github.com/xyproto/minilink/internal/devsim"
	"github.com/xyproto/minilink/internal/diag"
	"github.com/xyproto/minilink/internal/elfobj"
	"github.com/xyproto/minilink/internal/loader"
	"github.com/xyproto/minilink/internal/symbuild"
	"github.com/xyproto/minilink/internal/watch"
)

const (
	demoFlashSize = 1 << 16
	demoEraseUnit = 512
	demoRAMSize   = 1 << 13
	demoROMBase   = 4096
	demoNoinit    = 1024
)

func main() {
	fs := flag.NewFlagSet("minilinkd", flag.ContinueOnError)
	applyVerbose := config.RegisterVerboseFlag(fs)
	srcDir := fs.String("src", ".", "directory of .elf program objects to watch")
	kernelPath := fs.String("kernel", "", "kernel ELF image (rebuilds the symbol table on change)")
	outDir := fs.String("out", ".", "directory to write rebuilt .mlk/.mls files to")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: minilinkd [-v] -kernel <kernel.elf> [-src dir] [-out dir]\n")
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	applyVerbose()

	if *kernelPath == "" {
		fs.Usage()
		os.Exit(1)
	}

	d := &daemon{
		outDir:  *outDir,
		devFS:   devsim.NewFileSystem(),
		flash:   devsim.NewFlash(demoFlashSize, demoEraseUnit),
		ram:     devsim.NewRAM(demoRAMSize),
		symPath: filepath.Join(*outDir, "kernel.mls"),
	}
	d.ctx = loader.NewContext(d.flash, d.ram, d.devFS, demoROMBase, demoFlashSize, demoNoinit, loader.NewProcessList())
	if err := d.ctx.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "minilinkd: init: %v\n", err)
		os.Exit(1)
	}

	w, err := watch.New(d.onChange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minilinkd: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	if err := w.Add(*kernelPath); err != nil {
		fmt.Fprintf(os.Stderr, "minilinkd: %v\n", err)
		os.Exit(1)
	}
	d.kernelPath = *kernelPath

	// The startup batch rebuilds every watched object in one pass, so
	// failures are collected and reported together rather than
	// interleaved with each other on stderr.
	var startup diag.Collector
	d.rebuildKernel(*kernelPath, &startup)

	entries, err := os.ReadDir(*srcDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minilinkd: %s: %v\n", *srcDir, err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".elf") {
			continue
		}
		path := filepath.Join(*srcDir, e.Name())
		if err := w.Add(path); err != nil {
			startup.Errorf(diag.StageIO, "watching %s: %v", path, err)
			continue
		}
		d.rebuildModule(path, &startup)
	}
	if startup.Count() > 0 {
		startup.Report(os.Stderr)
	}
	if startup.HasErrors() {
		fmt.Fprintf(os.Stderr, "minilinkd: %d diagnostic(s) during startup rebuild\n", startup.Count())
	}

	fmt.Fprintf(os.Stderr, "minilinkd: watching %s (kernel %s)\n", *srcDir, *kernelPath)
	w.Run()
}

type daemon struct {
	outDir     string
	kernelPath string
	symPath    string

	devFS *devsim.FileSystem
	flash *devsim.Flash
	ram   *devsim.RAM
	ctx   *loader.Context
}

// onChange is the watch.Watcher callback driving the live reload loop;
// each change reports its own diagnostics immediately since there is
// no batch to group them with.
func (d *daemon) onChange(path string) {
	var c diag.Collector
	if path == d.kernelPath {
		d.rebuildKernel(path, &c)
	} else {
		d.rebuildModule(path, &c)
	}
	if c.Count() > 0 {
		c.Report(os.Stderr)
	}
}

func (d *daemon) rebuildKernel(path string, diags *diag.Collector) {
	obj, err := elfobj.Load(path)
	if err != nil {
		diags.Errorf(diag.StageReadELF, "%s: %v", path, err)
		return
	}
	out, err := symbuild.BuildSymbolTable(obj, symbuild.Options{})
	if err != nil {
		diags.Errorf(diag.StageSymbols, "building symbol table for %s: %v", path, err)
		return
	}
	d.devFS.Put("kernel.mls", out)
	if err := os.WriteFile(d.symPath, out, 0644); err != nil {
		diags.Errorf(diag.StageIO, "writing %s: %v", d.symPath, err)
		return
	}
	fmt.Fprintf(os.Stderr, "minilinkd: rebuilt kernel symbol table (%d bytes)\n", len(out))
}

func (d *daemon) rebuildModule(path string, diags *diag.Collector) {
	obj, err := elfobj.Load(path)
	if err != nil {
		diags.Errorf(diag.StageReadELF, "%s: %v", path, err)
		return
	}
	out, err := builder.BuildModule(obj, builder.Options{})
	if err != nil {
		diags.Errorf(diag.StageRelocation, "building %s: %v", path, err)
		return
	}

	base := strings.TrimSuffix(filepath.Base(path), ".elf")
	modPath := filepath.Join(d.outDir, base+".mlk")
	if err := os.WriteFile(modPath, out, 0644); err != nil {
		diags.Errorf(diag.StageIO, "writing %s: %v", modPath, err)
		return
	}

	devName := base + ".mlk"
	d.devFS.Put(devName, out)
	proc, status := d.ctx.Load(devName, "kernel.mls")
	if status != loader.StatusOK {
		diags.Errorf(diag.StageCRC, "%s: load failed: %v", path, status)
		return
	}
	fmt.Fprintf(os.Stderr, "minilinkd: rebuilt %s -> %s, loaded as process %d\n", path, modPath, proc)
}
