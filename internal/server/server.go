// Package server is the Request Surface (§4.9): a glsp-based Language
// Server Protocol handler that wires the Parser Gateway, Cursor
// Locator, Scope & Declaration Resolver, Use Classifier, Concurrency
// Analyzer, optional Semantic Helper Bridge, and Decoration Composer
// into `textDocument/hover` and two custom commands,
// `goanalyzer/cursor` and `goanalyzer/ast`. The lifecycle bookkeeping
// (startTime, shutdownChan, wg, running) is adapted from the teacher's
// IndexServer; the transport itself is real LSP over stdio via
// tliron/glsp rather than the teacher's unix-socket JSON-RPC.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/goanalyzer/internal/bridge"
	"github.com/standardbeagle/goanalyzer/internal/bufcache"
	"github.com/standardbeagle/goanalyzer/internal/classify"
	"github.com/standardbeagle/goanalyzer/internal/config"
	"github.com/standardbeagle/goanalyzer/internal/decorate"
	"github.com/standardbeagle/goanalyzer/internal/errkit"
	"github.com/standardbeagle/goanalyzer/internal/locator"
	"github.com/standardbeagle/goanalyzer/internal/logx"
	"github.com/standardbeagle/goanalyzer/internal/model"
	"github.com/standardbeagle/goanalyzer/internal/parsegw"
	"github.com/standardbeagle/goanalyzer/internal/raceanalysis"
	"github.com/standardbeagle/goanalyzer/internal/resolve"
)

const component = "server"

const (
	CommandCursor = "goanalyzer/cursor"
	CommandAST    = "goanalyzer/ast"
)

// Analyzer is the Request Surface's long-lived state: one buffer
// cache, one parser gateway, and an optional bridge client shared
// across every request.
type Analyzer struct {
	cfg     config.Config
	cache   *bufcache.Cache
	gateway *parsegw.Gateway
	bridge  *bridge.Client

	buffers   map[model.BufferID][]byte
	versions  map[model.BufferID]int
	buffersMu sync.RWMutex

	startTime    time.Time
	shutdownChan chan struct{}
	wg           sync.WaitGroup
	mu           sync.RWMutex
	running      bool

	// notify, if set, receives every notification instead of the live
	// LSP connection; tests use it to observe emitted events without a
	// transport. Production wiring leaves it nil and relies on lspCtx.
	notify func(method string, params any)

	// lspCtx is the most recently seen glsp.Context, refreshed on every
	// inbound request. tliron/glsp hands each handler a Context tied to
	// the one active stdio connection, so stashing the latest one here
	// gives emit a live value to call Notify on between requests.
	lspCtx atomic.Pointer[glsp.Context]
}

// New constructs an Analyzer from cfg. notify is called for the
// server's three notifications (goanalyzer/progress,
// goanalyzer/indexingStatus, goanalyzer/parseInfo) instead of the real
// LSP connection; it exists for tests and may be nil in production,
// where notifications go out over the connection captured in lspCtx.
func New(cfg config.Config, notify func(method string, params any)) (*Analyzer, error) {
	cache := bufcache.New(cfg.CacheSize, cfg.CacheTTL, true, cfg.CacheTTL)

	a := &Analyzer{
		cfg:          cfg,
		cache:        cache,
		buffers:      make(map[model.BufferID][]byte),
		versions:     make(map[model.BufferID]int),
		startTime:    time.Now(),
		shutdownChan: make(chan struct{}),
		notify:       notify,
	}

	gw, err := parsegw.New(cache, a.onParseInfo)
	if err != nil {
		return nil, err
	}
	a.gateway = gw

	if cfg.SemanticEnabled {
		a.bridge = bridge.New(cfg.SemanticPath, cfg.SemanticTimeout)
	}

	a.running = true
	return a, nil
}

func (a *Analyzer) onParseInfo(info parsegw.ParseInfo) {
	a.emit("goanalyzer/parseInfo", info)
}

// emit delivers a notification to whichever sink is available: the
// test-injected callback if one was supplied to New, otherwise the live
// glsp connection captured by captureContext.
func (a *Analyzer) emit(method string, params any) {
	if a.notify != nil {
		a.notify(method, params)
		return
	}
	if ctx := a.lspCtx.Load(); ctx != nil {
		ctx.Notify(method, params)
	}
}

// captureContext stashes the live glsp.Context so emit can reach the
// connected client. Called at the top of every handler that receives
// one; glsp hands the same live Context to every handler for the
// current connection, so there is nothing stale to worry about between
// requests on a single stdio session.
func (a *Analyzer) captureContext(ctx *glsp.Context) {
	if ctx != nil {
		a.lspCtx.Store(ctx)
	}
}

// IndexingStatus is the payload of the goanalyzer/indexingStatus
// notification: a coarse census of one parsed buffer, computed from the
// same Scope & Declaration Resolver index and Concurrency Analyzer
// launch list AnalyzeCursor already builds.
type IndexingStatus struct {
	URI        string `json:"uri"`
	Variables  int    `json:"variables"`
	Functions  int    `json:"functions"`
	Channels   int    `json:"channels"`
	Goroutines int    `json:"goroutines"`
}

// ProgressNotification is the payload of the goanalyzer/progress
// notification: a short human-readable status line an editor can show
// while a buffer is being analyzed.
type ProgressNotification struct {
	URI     string `json:"uri"`
	Message string `json:"message"`
}

func computeIndexingStatus(id model.BufferID, idx *resolve.Index, tree *model.Tree, launches []*model.ConcurrentLaunch) IndexingStatus {
	status := IndexingStatus{
		URI:        id.String(),
		Variables:  len(idx.Symbols()),
		Goroutines: len(launches),
	}
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "function_declaration", "method_declaration", "func_literal":
			status.Functions++
		case "channel_type":
			status.Channels++
		}
		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.Root)
	return status
}

// Close stops background goroutines and releases cached trees.
func (a *Analyzer) Close() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.shutdownChan)
	a.mu.Unlock()

	a.cache.Stop()
	a.wg.Wait()
}

func (a *Analyzer) setBuffer(id model.BufferID, version int, content []byte) {
	a.buffersMu.Lock()
	defer a.buffersMu.Unlock()
	a.buffers[id] = content
	a.versions[id] = version
}

func (a *Analyzer) dropBuffer(id model.BufferID) {
	a.buffersMu.Lock()
	defer a.buffersMu.Unlock()
	delete(a.buffers, id)
	delete(a.versions, id)
	a.cache.InvalidateBuffer(id)
}

func (a *Analyzer) buffer(id model.BufferID) ([]byte, int, bool) {
	a.buffersMu.RLock()
	defer a.buffersMu.RUnlock()
	content, ok := a.buffers[id]
	return content, a.versions[id], ok
}

// CursorResult is the payload of the goanalyzer/cursor command and the
// data textDocument/hover renders from.
type CursorResult struct {
	Identifier  string                `json:"identifier,omitempty"`
	Decorations []decorate.Decoration `json:"decorations"`
	Note        string                `json:"note,omitempty"`
}

// AnalyzeCursor runs the full pipeline (§5): parse, locate, resolve,
// classify + race-analyze concurrently, compose. A panic in any stage
// is recovered and degrades to a partial/empty result rather than
// taking the request surface down (§5's fault boundary).
func (a *Analyzer) AnalyzeCursor(ctx context.Context, id model.BufferID, pos model.Position) (result CursorResult, err error) {
	reqID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf(component, "[%s] panic analyzing cursor in %s: %v", reqID, id, r)
			result = CursorResult{Note: "internal error recovering from panic"}
			err = nil
		}
	}()
	logx.Debugf(component, "[%s] analyzing cursor in %s at %v", reqID, id, pos)

	content, version, ok := a.buffer(id)
	if !ok {
		return CursorResult{Note: "buffer not open"}, nil
	}

	tree, perr := a.gateway.Parse(id, version, content, parsegw.SourceAuto)
	if perr != nil {
		return CursorResult{}, perr
	}
	a.emit("goanalyzer/progress", ProgressNotification{URI: id.String(), Message: "analyzing cursor"})

	ident, ok := locator.Locate(tree, pos)
	if !ok {
		return CursorResult{Note: "no identifier under cursor"}, nil
	}

	idx := resolve.BuildIndex(tree)
	var sym *model.Symbol
	var resolved bool
	if ident.Context == model.ContextDeclaration || ident.Context == model.ContextTypeSwitchGuard {
		sym, resolved = idx.DeclSymbol(ident.Node)
	}
	if !resolved && ident.Context == model.ContextSelectorField {
		sym, resolved = idx.ResolveField(ident.Name), true
	}
	if !resolved {
		sym, resolved = idx.ResolveExpression(ident.Node, ident.Name)
	}
	if !resolved {
		return CursorResult{Identifier: ident.Name, Note: "could not resolve a declaration"}, nil
	}

	if a.bridge != nil && a.bridge.Enabled() {
		a.reconcileWithBridge(ctx, reqID, id, pos, content, sym)
	}

	launches := raceanalysis.FindLaunches(idx, tree)
	a.emit("goanalyzer/indexingStatus", computeIndexingStatus(id, idx, tree, launches))

	var classifySites, raceSites []model.UseSite
	g, _ := errgroup.WithContext(ctx)
	// recover() in the deferred handler above only sees panics on this
	// goroutine, so each stage converts its own panic into an error that
	// is re-raised here once both stages have finished.
	stagePanic := func(stage string, err *error) {
		if r := recover(); r != nil {
			*err = &errkit.StagePanic{Stage: stage, Value: r}
		}
	}
	g.Go(func() (err error) {
		defer stagePanic("classify", &err)
		classifySites = classify.Classify(idx, tree, sym)
		return nil
	})
	g.Go(func() (err error) {
		defer stagePanic("raceanalysis", &err)
		raceSites = raceanalysis.Classify(idx, tree, sym, launches)
		return nil
	})
	if werr := g.Wait(); werr != nil {
		panic(werr)
	}

	decorations := decorate.Compose(sym, classifySites, raceSites)
	a.emit("goanalyzer/progress", ProgressNotification{URI: id.String(), Message: "analysis complete"})
	return CursorResult{Identifier: ident.Name, Decorations: decorations}, nil
}

// reconcileWithBridge best-effort-queries the Semantic Helper Bridge
// and discards its answer on any error or disagreement with the
// syntactic resolver (§4.7); it never affects AnalyzeCursor's error
// return.
func (a *Analyzer) reconcileWithBridge(ctx context.Context, reqID string, id model.BufferID, pos model.Position, content []byte, sym *model.Symbol) {
	resp, err := a.bridge.Query(ctx, id.String(), int(pos.Line)+1, int(pos.Column)+1, content)
	if err != nil {
		logx.Debugf(component, "[%s] semantic helper unavailable for %s: %v", reqID, id, err)
		return
	}
	if !bridge.Reconcile(resp, sym.DeclRange.Start) {
		logx.Debugf(component, "[%s] semantic helper disagreed with resolver for %s, discarding", reqID, id)
		return
	}
	sym.IsPointer = resp.IsPointer
}

// DumpAST renders the buffer's parsed CST as an S-expression, the
// payload of the goanalyzer/ast debug command.
func (a *Analyzer) DumpAST(id model.BufferID) (string, error) {
	content, version, ok := a.buffer(id)
	if !ok {
		return "", fmt.Errorf("buffer %s not open", id)
	}
	tree, err := a.gateway.Parse(id, version, content, parsegw.SourceManual)
	if err != nil {
		return "", err
	}
	return model.Sexp(tree.Root), nil
}

// Handler builds the glsp protocol.Handler wired to Analyzer;
// NewGLSPServer wraps it in a glspserver.Server.
func Handler(a *Analyzer) *protocol.Handler {
	h := &protocol.Handler{}
	h.Initialize = a.handleInitialize
	h.Initialized = a.handleInitialized
	h.Shutdown = a.handleShutdown
	h.TextDocumentDidOpen = a.handleDidOpen
	h.TextDocumentDidChange = a.handleDidChange
	h.TextDocumentDidClose = a.handleDidClose
	h.TextDocumentHover = a.handleHover
	h.WorkspaceExecuteCommand = a.handleExecuteCommand
	return h
}

// NewGLSPServer wraps Handler's protocol.Handler in a
// glspserver.Server ready for RunStdio.
func NewGLSPServer(a *Analyzer, debug bool) *glspserver.Server {
	return glspserver.NewServer(Handler(a), "go-analyzer", debug)
}

func (a *Analyzer) handleInitialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	a.captureContext(ctx)
	logx.Infof(component, "initialize from %v", params.ClientInfo)
	change := protocol.TextDocumentSyncKindFull
	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			HoverProvider: &protocol.HoverOptions{},
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: boolPtr(true),
				Change:    &change,
			},
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{CommandCursor, CommandAST},
			},
		},
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    "go-analyzer",
			Version: stringPtr("0.1.0"),
		},
	}, nil
}

func (a *Analyzer) handleInitialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	a.captureContext(ctx)
	return nil
}

func (a *Analyzer) handleShutdown(ctx *glsp.Context) error {
	a.captureContext(ctx)
	a.Close()
	return nil
}

func (a *Analyzer) handleDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	a.captureContext(ctx)
	id := model.BufferID(params.TextDocument.URI)
	a.setBuffer(id, int(params.TextDocument.Version), []byte(params.TextDocument.Text))
	return nil
}

func (a *Analyzer) handleDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	a.captureContext(ctx)
	id := model.BufferID(params.TextDocument.URI)
	for _, change := range params.ContentChanges {
		if whole, ok := change.(protocol.TextDocumentContentChangeEventWhole); ok {
			a.setBuffer(id, int(params.TextDocument.Version), []byte(whole.Text))
		}
	}
	return nil
}

func (a *Analyzer) handleDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	a.captureContext(ctx)
	a.dropBuffer(model.BufferID(params.TextDocument.URI))
	return nil
}

func (a *Analyzer) handleHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	a.captureContext(ctx)
	id := model.BufferID(params.TextDocument.URI)
	pos := fromLSPPosition(params.Position)

	result, err := a.AnalyzeCursor(context.Background(), id, pos)
	if err != nil {
		return nil, err
	}
	text := hoverAt(result, pos)
	if text == "" {
		return nil, nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: text},
	}, nil
}

func hoverAt(result CursorResult, pos model.Position) string {
	for _, d := range result.Decorations {
		if d.Span.Covers(pos) {
			return d.Hover
		}
	}
	return ""
}

func (a *Analyzer) handleExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	a.captureContext(ctx)
	switch params.Command {
	case CommandCursor:
		return a.runCursorCommand(params.Arguments)
	case CommandAST:
		return a.runASTCommand(params.Arguments)
	default:
		return nil, fmt.Errorf("unknown command %q", params.Command)
	}
}

// commandArgs is the shape both custom commands take: a document URI
// plus a 0-based (line, column) position.
type commandArgs struct {
	URI    string `json:"uri"`
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

func (a *Analyzer) runCursorCommand(rawArgs []any) (any, error) {
	args, err := parseCommandArgs(rawArgs)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeCursor(context.Background(), model.BufferID(args.URI), model.Position{Line: args.Line, Column: args.Column})
}

func (a *Analyzer) runASTCommand(rawArgs []any) (any, error) {
	args, err := parseCommandArgs(rawArgs)
	if err != nil {
		return nil, err
	}
	return a.DumpAST(model.BufferID(args.URI))
}

// parseCommandArgs decodes the first executeCommand argument into
// commandArgs. glsp hands arguments back as generic JSON values
// (map[string]interface{} once unmarshaled), so we round-trip through
// encoding/json rather than asserting concrete types.
func parseCommandArgs(rawArgs []any) (commandArgs, error) {
	if len(rawArgs) == 0 {
		return commandArgs{}, fmt.Errorf("command requires one argument")
	}
	encoded, err := json.Marshal(rawArgs[0])
	if err != nil {
		return commandArgs{}, fmt.Errorf("encoding command argument: %w", err)
	}
	var args commandArgs
	if err := json.Unmarshal(encoded, &args); err != nil {
		return commandArgs{}, fmt.Errorf("decoding command argument: %w", err)
	}
	return args, nil
}

func fromLSPPosition(p protocol.Position) model.Position {
	return model.Position{Line: p.Line, Column: p.Character}
}

func boolPtr(b bool) *bool       { return &b }
func stringPtr(s string) *string { return &s }
