package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chazu/tutor/config"
)

const greeter = `classes:
  - name: Greeter
    attributes: [{name: who, type: String}]
    methods:
      - name: Greeter
        constructor: true
        params: [{name: n, type: String}]
        body: [{expr: {binary: {op: "=", left: {id: who}, right: {id: n}}}}]
      - name: greet
        returns: String
        body: [{return: {binary: {op: "+", left: {string: "hello "}, right: {id: who}}}}]
main:
  - local: {type: Greeter, name: g, init: {new: {type: Greeter, args: [{string: "world"}]}}}
  - println: {call: {name: greet, on: {id: g}}}
  - local: {type: List<String>, name: l, init: {new: {type: List<String>}}}
  - expr: {call: {name: append, on: {id: l}, args: [{string: x}]}}
  - println: {id: l}
`

const greeterOutput = "hello world\n[x]\n"

type testApp struct {
	*app
	out, errOut *bytes.Buffer
	dir         string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Dir = dir
	cfg.Cache.Path = filepath.Join(dir, "cache", "units.db")
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &testApp{
		app:    &app{cfg: cfg, out: out, errOut: errOut, useCache: true},
		out:    out,
		errOut: errOut,
		dir:    dir,
	}
}

func (ta *testApp) write(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(ta.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestRunUsesCache(t *testing.T) {
	ta := newTestApp(t)
	path := ta.write(t, "greeter.yaml", greeter)

	require.NoError(t, ta.dispatch(context.Background(), []string{"run", path}))
	require.Equal(t, greeterOutput, ta.out.String())

	l, err := ta.load(path)
	require.NoError(t, err)
	require.True(t, l.cached, "second load should come from the cache")

	ta.out.Reset()
	require.NoError(t, ta.run(context.Background(), path))
	require.Equal(t, greeterOutput, ta.out.String())
}

func TestRunWithoutCache(t *testing.T) {
	ta := newTestApp(t)
	ta.useCache = false
	path := ta.write(t, "greeter.yaml", greeter)

	require.NoError(t, ta.run(context.Background(), path))
	require.Equal(t, greeterOutput, ta.out.String())
	_, err := os.Stat(ta.cfg.CachePath())
	require.True(t, os.IsNotExist(err), "cache file should not be created")
}

func TestRunCancelled(t *testing.T) {
	ta := newTestApp(t)
	path := ta.write(t, "loop.yaml", `main:
  - while: {cond: {bool: true}, body: []}
`)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := ta.run(ctx, path)
	require.Error(t, err)
}

func TestCheckReportsDiagnostics(t *testing.T) {
	ta := newTestApp(t)
	path := ta.write(t, "bad.yaml", "main:\n  - println: {id: nope}\n")

	err := ta.dispatch(context.Background(), []string{"check", path})
	var cerr *compileError
	require.True(t, errors.As(err, &cerr), "error = %v", err)
	require.Equal(t, 1, cerr.n)
	require.Contains(t, ta.errOut.String(), "bad.yaml:2:")
	require.Contains(t, ta.errOut.String(), ": error: unknown variable nope")
}

func TestCheckColorsSeverity(t *testing.T) {
	ta := newTestApp(t)
	ta.color = true
	path := ta.write(t, "bad.yaml", "main:\n  - println: {id: nope}\n")

	require.Error(t, ta.check(path))
	require.Contains(t, ta.errOut.String(), ansiRed+"error"+ansiReset)
}

func TestCheckOK(t *testing.T) {
	ta := newTestApp(t)
	path := ta.write(t, "greeter.yaml", greeter)
	require.NoError(t, ta.check(path))
	require.Contains(t, ta.out.String(), "1 class(es), 0 interface(s), ok")
}

func TestDisasm(t *testing.T) {
	ta := newTestApp(t)
	path := ta.write(t, "greeter.yaml", greeter)
	require.NoError(t, ta.dispatch(context.Background(), []string{"disasm", path}))
	out := ta.out.String()
	require.Contains(t, out, "Greeter.greet():")
	require.Contains(t, out, "main:\n; main")
}

func TestDispatchErrors(t *testing.T) {
	ta := newTestApp(t)
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"run"}, "expects one tree file"},
		{[]string{"frobnicate"}, "unknown command"},
		{[]string{"prune"}, "expects an age"},
	}
	for _, tt := range tests {
		err := ta.dispatch(context.Background(), tt.args)
		require.ErrorContains(t, err, tt.want, "args %v", tt.args)
	}
}

func TestPrune(t *testing.T) {
	ta := newTestApp(t)
	path := ta.write(t, "greeter.yaml", greeter)
	_, err := ta.load(path)
	require.NoError(t, err)

	require.NoError(t, ta.prune(-time.Hour))
	require.Contains(t, ta.out.String(), "pruned 1 unit(s)")

	l, err := ta.load(path)
	require.NoError(t, err)
	require.False(t, l.cached)
}

// script feeds a fixed list of command lines, then reports EOF.
type script struct {
	lines []string
}

func (s *script) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func TestStepLoop(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		finished bool
	}{
		{"step then continue", []string{"s", "", "l", "c"}, true},
		{"step count", []string{"s 3", "continue"}, true},
		{"quit", []string{"s", "q"}, false},
		{"eof", []string{"s"}, false},
		{"bad input", []string{"s zero", "jump", "l", "c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			path := ta.write(t, "greeter.yaml", greeter)
			l, err := ta.load(path)
			require.NoError(t, err)

			var remembered []string
			in := ta.newInterpreter(l.types)
			err = ta.stepLoop(in, l.result.Main, &script{lines: tt.lines}, func(line string) {
				remembered = append(remembered, line)
			})
			require.NoError(t, err)
			require.Equal(t, tt.finished, strings.HasSuffix(ta.out.String(), greeterOutput))
			require.Contains(t, ta.out.String(), " main @")
			require.NotEmpty(t, remembered)
		})
	}
}
