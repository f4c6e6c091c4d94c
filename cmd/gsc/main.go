package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/xplshn/gsc/pkg/cli"
	"github.com/xplshn/gsc/pkg/compiler"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"github.com/xplshn/gsc/pkg/riscv/rvsim"
	"github.com/xplshn/gsc/pkg/util"
)

func main() {
	app := cli.NewApp("gsc")
	app.Synopsis = "[options] <input.sexp>"
	app.Description = "A SysY compiler core. Reads an AST in S-expression form and produces Koopa IR or RV32IM assembly."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/gsc>"
	app.Since = 2025

	var (
		outFile   string
		emit      string
		target    string
		stdinFile string
		jobs      string
		run       bool
		watch     bool
		verbose   bool
		pedantic  bool
		wall      bool
		noWall    bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file> instead of stdout.", "file")
	fs.String(&emit, "emit", "e", "riscv", "Select the output: koopa or riscv.", "kind")
	fs.String(&target, "target", "t", "rv32", "Set the target instruction set.", "target")
	fs.Bool(&run, "run", "r", false, "Execute main after compiling and exit with its return value.")
	fs.String(&stdinFile, "stdin", "i", "", "Feed <file> to getint/getch/getarray when running.", "file")
	fs.Bool(&watch, "watch", "w", false, "Recompile whenever the input file changes.")
	fs.String(&jobs, "jobs", "j", "", "Generate up to <n> functions in parallel.", "n")
	fs.Bool(&verbose, "verbose", "v", false, "Report each compilation stage on stderr.")
	fs.Bool(&pedantic, "pedantic", "", false, "Issue all warnings.")
	fs.Bool(&wall, "Wall", "", false, "Enable every warning except pedantic.")
	fs.Bool(&noWall, "Wno-all", "", false, "Disable every warning.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		var umbrella []string
		for _, u := range []struct {
			name string
			set  bool
		}{{"Wall", wall}, {"Wno-all", noWall}, {"pedantic", pedantic}} {
			if u.set {
				umbrella = append(umbrella, u.name)
			}
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags, umbrella...)

		if err := cfg.SetTarget(target); err != nil {
			util.Report(os.Stderr, err)
			return err
		}
		if jobs != "" {
			n, err := strconv.Atoi(jobs)
			if err != nil || n < 1 {
				err = fmt.Errorf("invalid -j value '%s'", jobs)
				util.Report(os.Stderr, err)
				return err
			}
			cfg.Jobs = n
		}
		kind, err := compiler.ParseEmit(emit)
		if err != nil {
			util.Report(os.Stderr, err)
			return err
		}
		if len(inputFiles) != 1 {
			err := errors.New("exactly one input file is required")
			util.Report(os.Stderr, err)
			return err
		}

		d := &driver{
			cfg: cfg, path: inputFiles[0], outFile: outFile, stdinFile: stdinFile,
			opts: compiler.Options{Emit: kind},
		}
		if verbose {
			d.opts.Progress = func(stage string) { fmt.Fprintln(os.Stderr, stage) }
		}

		if watch {
			return d.watch()
		}
		res, err := d.compile()
		if err != nil {
			util.Report(os.Stderr, err)
			return err
		}
		if !run {
			return nil
		}
		code, err := d.execute(res)
		if err != nil {
			util.Report(os.Stderr, err)
			return err
		}
		os.Exit(int(uint8(code)))
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

type driver struct {
	cfg       *config.Config
	path      string
	outFile   string
	stdinFile string
	opts      compiler.Options
}

func (d *driver) compile() (*compiler.Result, error) {
	content, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("could not read file '%s': %w", d.path, err)
	}
	src := []rune(string(content))
	util.SetSourceFiles([]util.SourceFileRecord{{Name: d.path, Content: src}})

	res, err := compiler.CompileSource(src, 0, d.cfg, d.opts)
	if err != nil {
		return nil, err
	}
	if d.opts.Progress != nil {
		d.opts.Progress(fmt.Sprintf("Done: %d scopes, %d SSA values, %d branches, %d dead slots removed, fingerprint %016x",
			res.Scopes.NumScopes(), res.Regs, res.Branches, res.DeadSlots, res.Fingerprint))
		for _, fn := range res.Program.Funcs {
			if frame, ok := res.Frames[fn.Name]; ok {
				d.opts.Progress(fmt.Sprintf("%s: %s", fn.Name, frame))
			}
		}
	}

	if d.outFile == "" {
		fmt.Print(res.Output)
		return res, nil
	}
	if err := os.WriteFile(d.outFile, []byte(res.Output), 0o644); err != nil {
		return nil, fmt.Errorf("could not write '%s': %w", d.outFile, err)
	}
	return res, nil
}

// execute runs main with the interpreter matching the selected output.
func (d *driver) execute(res *compiler.Result) (int32, error) {
	var stdin io.Reader = strings.NewReader("")
	if d.stdinFile != "" {
		data, err := os.ReadFile(d.stdinFile)
		if err != nil {
			return 0, fmt.Errorf("could not read stdin file '%s': %w", d.stdinFile, err)
		}
		stdin = bytes.NewReader(data)
	}

	var code int32
	var err error
	if d.opts.Emit == compiler.EmitKoopa {
		code, err = ir.Run(res.Program, ir.RunOptions{Stdin: stdin, Stdout: os.Stdout})
	} else {
		code, err = rvsim.Run(res.Output, rvsim.Options{Stdin: stdin, Stdout: os.Stdout})
	}
	if d.opts.Progress != nil && err == nil {
		d.opts.Progress(fmt.Sprintf("main returned %d", code))
	}
	return code, err
}

// watch recompiles on every write to the input file. It watches the
// directory so editors that replace the file by renaming are noticed.
func (d *driver) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(d.path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	recompile := func() {
		if _, err := d.compile(); err != nil {
			util.Report(os.Stderr, err)
			return
		}
		fmt.Fprintf(os.Stderr, "%s: compiled\n", d.path)
	}
	recompile()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			recompile()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			util.Report(os.Stderr, err)
		}
	}
}
