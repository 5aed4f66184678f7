package server

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/chazu/tutor/compiler"
	"github.com/chazu/tutor/stdlib"
	"github.com/chazu/tutor/vm"
)

// Analysis is the outcome of checking one version of a document.
type Analysis struct {
	Text        string
	Diagnostics compiler.Diagnostics

	// Types holds the document's declarations on top of the native
	// library. It is carried over from the previous analysis when the
	// tree file does not decode, so hover and completion keep working
	// while the user types.
	Types  *vm.TypeTable
	Result *compiler.Result
	Stale  bool
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Analyze decodes text as a tree file and generates it against a fresh
// type table.
func Analyze(text string) *Analysis {
	a := &Analysis{Text: text}
	u, err := compiler.DecodeYAML([]byte(text))
	if err != nil {
		a.Diagnostics = compiler.Diagnostics{decodeDiagnostic(err)}
		return a
	}

	types := vm.NewTypeTable()
	if _, err := stdlib.Install(types); err != nil {
		a.Diagnostics = compiler.Diagnostics{{Severity: compiler.SeverityError, Message: err.Error()}}
		return a
	}
	a.Types = types
	a.Result = compiler.NewGenerator(types).Generate(u)
	a.Diagnostics = a.Result.Diagnostics
	return a
}

// decodeDiagnostic places a decode failure. Tree errors carry their node
// position; YAML syntax errors only name a line.
func decodeDiagnostic(err error) compiler.Diagnostic {
	d := compiler.Diagnostic{Severity: compiler.SeverityError, Message: err.Error()}
	var te *compiler.TreeError
	if errors.As(err, &te) {
		d.Pos = te.Pos
		d.Message = te.Msg
		return d
	}
	if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
		line, _ := strconv.Atoi(m[1])
		d.Pos = compiler.Position{Line: line, Column: 1}
	}
	return d
}

// Workspace tracks the latest analysis of every open document. It is only
// touched from the worker goroutine.
type Workspace struct {
	docs map[string]*Analysis
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{docs: make(map[string]*Analysis)}
}

// Update analyzes a new version of the document at uri.
func (ws *Workspace) Update(uri, text string) *Analysis {
	a := Analyze(text)
	if a.Types == nil {
		if prev, ok := ws.docs[uri]; ok && prev.Types != nil {
			a.Types = prev.Types
			a.Stale = true
		}
	}
	ws.docs[uri] = a
	log.Debugf("analyzed %s: %d diagnostic(s)", uri, len(a.Diagnostics))
	return a
}

// Get returns the latest analysis of uri, or nil.
func (ws *Workspace) Get(uri string) *Analysis {
	return ws.docs[uri]
}

// Close forgets uri.
func (ws *Workspace) Close(uri string) {
	delete(ws.docs, uri)
}
