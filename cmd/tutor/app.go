package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/tutor/compiler"
	"github.com/chazu/tutor/compiler/hash"
	"github.com/chazu/tutor/config"
	"github.com/chazu/tutor/stdlib"
	"github.com/chazu/tutor/store"
	"github.com/chazu/tutor/vm"
)

var log = commonlog.GetLogger("tutor.cli")

// app carries the settings shared by every command.
type app struct {
	cfg      *config.Config
	out      io.Writer
	errOut   io.Writer
	color    bool
	useCache bool
}

// compileError reports that diagnostics were already printed.
type compileError struct {
	n int
}

func (e *compileError) Error() string {
	return fmt.Sprintf("%d compile error(s)", e.n)
}

// loaded is a compiled tree file ready to run.
type loaded struct {
	types  *vm.TypeTable
	result *compiler.Result
	cached bool
}

// load compiles the tree file at path. When the cache is enabled, a unit
// whose tree hash is already stored is decoded instead of compiled, and a
// freshly compiled unit without errors is stored.
func (a *app) load(path string) (*loaded, error) {
	u, err := compiler.LoadTree(path)
	if err != nil {
		return nil, err
	}

	types, err := newTypes()
	if err != nil {
		return nil, err
	}

	var cache *store.Cache
	key := hash.Key(u)
	if a.useCache {
		cache, err = store.Open(a.cfg.CachePath())
		if err != nil {
			log.Warningf("cache unavailable: %v", err)
		} else {
			defer cache.Close()
			res, hit := a.fromCache(cache, key, types)
			if hit {
				return &loaded{types: types, result: res, cached: true}, nil
			}
			// a rejected image may have declared some of its types
			if types, err = newTypes(); err != nil {
				return nil, err
			}
		}
	}

	res := compiler.NewGenerator(types).Generate(u)
	a.printDiagnostics(path, res.Diagnostics)
	if errs := res.Diagnostics.Errors(); len(errs) > 0 {
		return nil, &compileError{n: len(errs)}
	}

	if cache != nil {
		if data, err := store.EncodeImage(res); err != nil {
			log.Warningf("not caching %s: %v", path, err)
		} else if err := cache.Put(key, data); err != nil {
			log.Warningf("not caching %s: %v", path, err)
		}
	}
	return &loaded{types: types, result: res}, nil
}

func (a *app) fromCache(cache *store.Cache, key string, types *vm.TypeTable) (*compiler.Result, bool) {
	data, err := cache.Get(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warningf("reading cache: %v", err)
		}
		return nil, false
	}
	res, err := store.DecodeImage(data, types)
	if err != nil {
		log.Warningf("discarding cached unit %s: %v", key, err)
		return nil, false
	}
	log.Debugf("cache hit %s", key)
	return res, true
}

func newTypes() (*vm.TypeTable, error) {
	types := vm.NewTypeTable()
	if _, err := stdlib.Install(types); err != nil {
		return nil, err
	}
	return types, nil
}

func (a *app) newInterpreter(types *vm.TypeTable) *vm.Interpreter {
	in := vm.NewInterpreter(types)
	in.Out = a.out
	in.MaxFrames = a.cfg.Interpreter.MaxFrames
	return in
}

func (a *app) run(ctx context.Context, path string) error {
	l, err := a.load(path)
	if err != nil {
		return err
	}
	if l.result.Main == nil {
		return fmt.Errorf("%s has no main program", path)
	}

	in := a.newInterpreter(l.types)
	r := vm.NewRunner(in, a.cfg.Interpreter.StepsPerTick, a.cfg.Interpreter.Delay())
	res, err := r.Run(ctx, l.result.Main, vm.Null, nil)
	if err != nil {
		return err
	}
	return res.Err()
}

func (a *app) check(path string) error {
	u, err := compiler.LoadTree(path)
	if err != nil {
		return err
	}
	types, err := newTypes()
	if err != nil {
		return err
	}
	res := compiler.NewGenerator(types).Generate(u)
	a.printDiagnostics(path, res.Diagnostics)
	if errs := res.Diagnostics.Errors(); len(errs) > 0 {
		return &compileError{n: len(errs)}
	}
	fmt.Fprintf(a.out, "%s: %d class(es), %d interface(s), ok\n", path, len(res.Classes), len(res.Interfaces))
	return nil
}

func (a *app) disasm(path string) error {
	l, err := a.load(path)
	if err != nil {
		return err
	}
	for _, c := range l.result.Classes {
		for _, m := range c.Methods() {
			if p := m.Program(); p != nil {
				fmt.Fprintf(a.out, "%s.%s:\n%s\n", c.Name(), m.Signature(), p.Disassemble())
			}
		}
	}
	if m := l.result.Main; m != nil {
		fmt.Fprintf(a.out, "main:\n%s", m.Program().Disassemble())
	}
	return nil
}

func (a *app) prune(age time.Duration) error {
	cache, err := store.Open(a.cfg.CachePath())
	if err != nil {
		return err
	}
	defer cache.Close()
	n, err := cache.Prune(time.Now().Add(-age))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "pruned %d unit(s)\n", n)
	return nil
}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

func (a *app) printDiagnostics(path string, diags compiler.Diagnostics) {
	for _, d := range diags {
		sev := d.Severity.String()
		if a.color {
			color := ansiCyan
			switch d.Severity {
			case compiler.SeverityError:
				color = ansiRed
			case compiler.SeverityWarning:
				color = ansiYellow
			}
			sev = color + sev + ansiReset
		}
		fmt.Fprintf(a.errOut, "%s:%s: %s: %s\n", path, d.Pos, sev, d.Message)
		if d.Fix != nil {
			fmt.Fprintf(a.errOut, "\tfix: %s\n", d.Fix.Title)
		}
	}
}
