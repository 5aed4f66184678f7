package server

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/tutor/compiler"
	"github.com/chazu/tutor/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "tutor-lsp"

var log = commonlog.GetLogger("tutor.server")

// treeKeywords are the node kinds of the tree file format.
var treeKeywords = []string{
	"interfaces", "classes", "main",
	"local", "if", "while", "for", "return", "print", "println", "expr", "block",
	"int", "float", "bool", "char", "string", "null", "id", "this",
	"binary", "ternary", "unary", "call", "new", "attr", "cast",
}

// LspServer checks tree files as the editor changes them and answers
// hover, completion and definition requests from the latest analysis.
type LspServer struct {
	worker *Worker

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server with an empty workspace.
func NewLSP() *LspServer {
	s := &LspServer{
		worker:  NewWorker(NewWorkspace()),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCodeAction: s.textDocumentCodeAction,
		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("tutor LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.CodeActionProvider = true
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.publishDiagnostics(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.publishDiagnostics(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.worker.Do(func(ws *Workspace) any {
		ws.Close(string(uri))
		return nil
	})

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCodeAction(ctx *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	uri := params.TextDocument.URI
	return query(s.worker, func(ws *Workspace) []protocol.CodeAction {
		return codeActions(uri, ws.Get(string(uri)), params.Range)
	})
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	return query(s.worker, func(ws *Workspace) []protocol.CompletionItem {
		a := ws.Get(string(uri))
		if a == nil {
			return nil
		}
		prefix := extractPrefix(a.Text, params.Position)
		if prefix == "" {
			return nil
		}
		return complete(a, prefix)
	})
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	h, err := query(s.worker, func(ws *Workspace) *protocol.Hover {
		a := ws.Get(string(uri))
		if a == nil {
			return nil
		}
		return hover(a, extractWord(a.Text, params.Position))
	})
	if err != nil {
		return nil, nil
	}
	return h, nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	return query(s.worker, func(ws *Workspace) []protocol.Location {
		a := ws.Get(string(uri))
		if a == nil {
			return nil
		}
		return definition(uri, a, extractWord(a.Text, params.Position))
	})
}

// --- Analysis-backed logic (called on worker goroutine) ---

func complete(a *Analysis, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if !strings.HasPrefix(strings.ToLower(label), lowerPrefix) {
			return
		}
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	for _, kw := range treeKeywords {
		add(kw, "node", protocol.CompletionItemKindKeyword)
	}
	if a.Types != nil {
		seen := map[string]bool{}
		for _, c := range a.Types.Classes() {
			detail := "class"
			if c.Base != nil && c.Base != vm.ObjectClass {
				detail = fmt.Sprintf("class (extends %s)", c.Base.Name())
			}
			add(c.Name(), detail, protocol.CompletionItemKindClass)
			for _, m := range c.Methods() {
				if !m.IsConstructor && !seen[m.Name] {
					seen[m.Name] = true
					add(m.Name, "method", protocol.CompletionItemKindMethod)
				}
			}
		}
		for _, i := range a.Types.Interfaces() {
			add(i.Name(), "interface", protocol.CompletionItemKindInterface)
			for _, m := range i.Methods() {
				if !seen[m.Name] {
					seen[m.Name] = true
					add(m.Name, "method", protocol.CompletionItemKindMethod)
				}
			}
		}
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func hover(a *Analysis, word string) *protocol.Hover {
	if a.Types == nil || word == "" {
		return nil
	}

	var b strings.Builder
	switch t := a.Types.Lookup(word).(type) {
	case *vm.Class:
		describeClass(&b, t)
	case *vm.Interface:
		describeInterface(&b, t)
	default:
		if !describeMethods(&b, a.Types, word) {
			return nil
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func typeVarList(vars []*vm.TypeVariable) string {
	if len(vars) == 0 {
		return ""
	}
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name()
	}
	return "<" + strings.Join(names, ", ") + ">"
}

func describeClass(b *strings.Builder, c *vm.Class) {
	if c.Abstract {
		b.WriteString("abstract ")
	}
	fmt.Fprintf(b, "class **%s%s**", c.Name(), typeVarList(c.TypeVars))
	if c.Base != nil && c.Base != vm.ObjectClass {
		fmt.Fprintf(b, " extends %s", c.Base.Name())
	}
	if len(c.Interfaces) > 0 {
		names := make([]string, len(c.Interfaces))
		for i, it := range c.Interfaces {
			names[i] = it.Name()
		}
		fmt.Fprintf(b, " implements %s", strings.Join(names, ", "))
	}
	b.WriteString("\n\n")

	if c.Doc != "" {
		b.WriteString("---\n\n")
		b.WriteString(c.Doc)
		b.WriteString("\n\n")
	}

	if attrs := c.DeclaredAttributes(); len(attrs) > 0 {
		b.WriteString("Attributes:\n")
		for _, attr := range attrs {
			fmt.Fprintf(b, "- `%s %s`\n", attr.Type.Name(), attr.Name)
		}
		b.WriteString("\n")
	}
	writeMethods(b, c.Methods())
}

func describeInterface(b *strings.Builder, i *vm.Interface) {
	fmt.Fprintf(b, "interface **%s%s**", i.Name(), typeVarList(i.TypeVars))
	if len(i.Extends) > 0 {
		names := make([]string, len(i.Extends))
		for j, it := range i.Extends {
			names[j] = it.Name()
		}
		fmt.Fprintf(b, " extends %s", strings.Join(names, ", "))
	}
	b.WriteString("\n\n")
	if i.Doc != "" {
		b.WriteString("---\n\n")
		b.WriteString(i.Doc)
		b.WriteString("\n\n")
	}
	writeMethods(b, i.Methods())
}

func writeMethods(b *strings.Builder, methods []*vm.Method) {
	if len(methods) == 0 {
		return
	}
	b.WriteString("Methods:\n")
	for _, m := range methods {
		fmt.Fprintf(b, "- `%s`\n", methodLine(m))
	}
}

func methodLine(m *vm.Method) string {
	var b strings.Builder
	if m.IsStatic {
		b.WriteString("static ")
	}
	if m.ReturnType != nil {
		b.WriteString(m.ReturnType.Name())
		b.WriteByte(' ')
	} else if !m.IsConstructor {
		b.WriteString("void ")
	}
	b.WriteString(m.Signature())
	return b.String()
}

// describeMethods lists every method named name, grouped by owner.
func describeMethods(b *strings.Builder, types *vm.TypeTable, name string) bool {
	var lines []string
	collect := func(methods []*vm.Method) {
		for _, m := range methods {
			if m.Name == name && !m.IsConstructor {
				lines = append(lines, fmt.Sprintf("- %s: `%s`", m.Owner.Name(), methodLine(m)))
			}
		}
	}
	for _, c := range types.Classes() {
		collect(c.Methods())
	}
	for _, i := range types.Interfaces() {
		collect(i.Methods())
	}
	if len(lines) == 0 {
		return false
	}
	fmt.Fprintf(b, "**%s**\n\n", name)
	fmt.Fprintf(b, "Declared by %d type(s):\n", len(lines))
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	return true
}

// definition finds the declaration of a class or interface in the
// document. Native types have no source and yield nothing.
func definition(uri protocol.DocumentUri, a *Analysis, word string) []protocol.Location {
	if a.Types == nil || word == "" || !unicode.IsUpper(rune(word[0])) {
		return nil
	}
	if a.Types.Lookup(word) == nil {
		return nil
	}
	re := regexp.MustCompile(`\bname:[ \t]*"?(` + regexp.QuoteMeta(word) + `)\b`)
	loc := re.FindStringSubmatchIndex(a.Text)
	if loc == nil {
		return nil
	}
	start := offsetPosition(a.Text, loc[2])
	end := start
	end.Character += protocol.UInteger(len(word))
	return []protocol.Location{{URI: uri, Range: protocol.Range{Start: start, End: end}}}
}

func codeActions(uri protocol.DocumentUri, a *Analysis, rng protocol.Range) []protocol.CodeAction {
	if a == nil {
		return nil
	}
	var actions []protocol.CodeAction
	for _, d := range a.Diagnostics {
		if d.Fix == nil {
			continue
		}
		r := fixRange(a.Text, *d.Fix)
		if r.Start.Line < rng.Start.Line || r.Start.Line > rng.End.Line {
			continue
		}
		kind := protocol.CodeActionKindQuickFix
		actions = append(actions, protocol.CodeAction{
			Title:       d.Fix.Title,
			Kind:        &kind,
			Diagnostics: []protocol.Diagnostic{toProtocol(a.Text, d)},
			IsPreferred: boolPtr(true),
			Edit: &protocol.WorkspaceEdit{
				Changes: map[protocol.DocumentUri][]protocol.TextEdit{
					uri: {{Range: r, NewText: d.Fix.New}},
				},
			},
		})
	}
	return actions
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	a, err := query(s.worker, func(ws *Workspace) *Analysis {
		return ws.Update(string(uri), text)
	})
	if err != nil {
		log.Warningf("not publishing diagnostics for %s: %v", uri, err)
		return
	}

	diagnostics := []protocol.Diagnostic{}
	for _, d := range a.Diagnostics {
		diagnostics = append(diagnostics, toProtocol(text, d))
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func toProtocol(text string, d compiler.Diagnostic) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	switch d.Severity {
	case compiler.SeverityWarning:
		severity = protocol.DiagnosticSeverityWarning
	case compiler.SeverityInfo:
		severity = protocol.DiagnosticSeverityInformation
	}
	source := lspName
	return protocol.Diagnostic{
		Range:    tokenRange(text, d.Pos),
		Severity: &severity,
		Source:   &source,
		Message:  d.Message,
	}
}

// --- Text extraction helpers ---

func lineAt(text string, line int) (string, bool) {
	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return "", false
	}
	return lines[line], true
}

func isIdent(ch byte) bool {
	r := rune(ch)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || ch == '_'
}

// tokenRange converts a 1-based source position into the range of the
// token starting there. Unknown positions map to the document start.
func tokenRange(text string, pos compiler.Position) protocol.Range {
	if pos.Line < 1 {
		return protocol.Range{}
	}
	start := protocol.Position{Line: protocol.UInteger(pos.Line - 1)}
	if pos.Column > 0 {
		start.Character = protocol.UInteger(pos.Column - 1)
	}
	end := start
	line, ok := lineAt(text, pos.Line-1)
	if !ok || int(start.Character) >= len(line) {
		return protocol.Range{Start: start, End: end}
	}
	col := int(start.Character)
	n := col
	for n < len(line) && !strings.ContainsRune(" \t,{}[]", rune(line[n])) {
		n++
	}
	if n == col {
		n++
	}
	end.Character = protocol.UInteger(n)
	return protocol.Range{Start: start, End: end}
}

// fixRange locates the text a quick fix replaces. The fix position may
// point at the opening quote of a YAML scalar.
func fixRange(text string, fix compiler.QuickFix) protocol.Range {
	r := tokenRange(text, fix.Pos)
	line, ok := lineAt(text, int(r.Start.Line))
	col := int(r.Start.Character)
	if ok && col <= len(line) {
		if i := strings.Index(line[col:], fix.Old); i == 0 || i == 1 {
			col += i
		}
	}
	r.Start.Character = protocol.UInteger(col)
	r.End = protocol.Position{Line: r.Start.Line, Character: protocol.UInteger(col + len(fix.Old))}
	return r
}

func offsetPosition(text string, offset int) protocol.Position {
	before := text[:offset]
	line := strings.Count(before, "\n")
	col := offset - (strings.LastIndexByte(before, '\n') + 1)
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, ok := lineAt(text, int(pos.Line))
	if !ok {
		return ""
	}
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdent(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, ok := lineAt(text, int(pos.Line))
	if !ok {
		return ""
	}
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && isIdent(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdent(line[end]) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
