package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/tutor/vm"
)

const (
	historyFile = ".tutor_history"
	stepPrompt  = "step> "
)

// prompter reads one command line. *liner.State implements it.
type prompter interface {
	Prompt(prompt string) (string, error)
}

func (a *app) step(path string) error {
	l, err := a.load(path)
	if err != nil {
		return err
	}
	if l.result.Main == nil {
		return fmt.Errorf("%s has no main program", path)
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if home, err := os.UserHomeDir(); err == nil {
		histPath := filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			ln.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(histPath); err == nil {
				ln.WriteHistory(f)
				f.Close()
			}
		}()
	}

	fmt.Fprintln(a.out, "s [n] step, c continue, l where, q quit")
	return a.stepLoop(a.newInterpreter(l.types), l.result.Main, ln, func(line string) {
		ln.AppendHistory(line)
	})
}

// stepLoop drives a stepped run of main from commands read from p.
func (a *app) stepLoop(in *vm.Interpreter, main *vm.Method, p prompter, remember func(string)) error {
	if err := in.Start(main, vm.Null, nil); err != nil {
		return err
	}
	last := "s"
	for !in.Done() {
		line, err := p.Prompt(stepPrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			line = last
		} else if remember != nil {
			remember(line)
		}
		last = line

		fields := strings.Fields(line)
		switch fields[0] {
		case "s", "step":
			n := 1
			if len(fields) > 1 {
				if n, err = strconv.Atoi(fields[1]); err != nil || n < 1 {
					fmt.Fprintf(a.errOut, "bad step count %q\n", fields[1])
					continue
				}
			}
			if !in.Step(n) {
				in.Collect()
				a.where(in)
			}
		case "c", "continue":
			in.Step(-1)
			in.Collect()
		case "l", "where":
			a.where(in)
		case "q", "quit":
			in.Abort(errors.New("quit"))
			return nil
		default:
			fmt.Fprintf(a.errOut, "unknown command %q\n", fields[0])
		}
	}
	return in.Outcome().Err()
}

// where prints the frame stack, innermost first, with the next
// instruction of each frame and the locals of the innermost one.
func (a *app) where(in *vm.Interpreter) {
	frames := in.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		fr := frames[i]
		ins, ok := fr.Instruction()
		next := "<end>"
		if ok {
			next = ins.String()
		}
		fmt.Fprintf(a.out, "#%d %s @%d: %s\n", len(frames)-1-i, fr.Method.QualifiedName(), fr.IP, next)
	}
	if len(frames) == 0 {
		return
	}
	top := frames[len(frames)-1]
	for i, name := range top.Program.Locals {
		if i < len(top.Locals) {
			fmt.Fprintf(a.out, "    %s = %s\n", name, top.Locals[i])
		}
	}
	fmt.Fprintf(a.out, "    stack depth %d\n", in.StackDepth())
}
