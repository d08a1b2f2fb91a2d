// Package bridge is the Semantic Helper Bridge (§4.7): an optional
// subprocess that can supply a more precise, type-checked answer than
// the syntactic resolver for one cursor query. It talks a small JSON
// protocol over the subprocess's stdin/stdout and is bounded to one
// concurrent call and a hard timeout, since it is a nice-to-have, never
// a dependency the server blocks indefinitely on.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/goanalyzer/internal/errkit"
	"github.com/standardbeagle/goanalyzer/internal/model"
)

// Location is a 1-based (line, column) pair, the helper protocol's
// wire format — distinct from model.Position's 0-based LSP convention.
type Location struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// Request is sent to the helper's stdin as a single JSON line.
type Request struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Content string `json:"content"`
}

// Response is read back from the helper's stdout as a single JSON line.
type Response struct {
	Name      string     `json:"name"`
	Decl      Location   `json:"decl"`
	Uses      []Location `json:"uses"`
	IsPointer bool       `json:"is_pointer"`
}

// Client runs the configured helper binary, one request at a time.
type Client struct {
	path    string
	timeout time.Duration
	sem     *semaphore.Weighted
}

// New constructs a Client for the helper binary at path. path may be
// empty, in which case Query always returns an error — callers should
// check Enabled before calling Query.
func New(path string, timeout time.Duration) *Client {
	return &Client{path: path, timeout: timeout, sem: semaphore.NewWeighted(1)}
}

// Enabled reports whether a helper binary is configured.
func (c *Client) Enabled() bool { return c.path != "" }

// Query asks the helper to resolve the identifier at (line, col) in
// content, enforcing Client's timeout and the single-concurrent-call
// bound. Callers treat any error as "fall back to syntactic
// resolution" (§4.7), never as a request failure.
func (c *Client) Query(ctx context.Context, file string, line, col int, content []byte) (*Response, error) {
	if !c.Enabled() {
		return nil, errkit.NewBridgeError("query", errHelperDisabled)
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, errkit.NewBridgeError("acquire", err)
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(Request{File: file, Line: line, Col: col, Content: string(content)})
	if err != nil {
		return nil, errkit.NewBridgeError("marshal", err)
	}

	cmd := exec.CommandContext(ctx, c.path)
	cmd.Stdin = bytes.NewReader(reqBody)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, errkit.NewBridgeError("run", err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, errkit.NewBridgeError("decode", err)
	}
	return &resp, nil
}

// Reconcile reports whether the helper's answer agrees closely enough
// with the resolver's syntactic answer to be trusted. A helper that
// names a different declaration site than the resolver found is
// discarded outright (§4.7): contradicting the syntactic resolver is a
// stronger signal of a bridge bug or stale binary than of it knowing
// something the resolver doesn't.
func Reconcile(resp *Response, resolverDecl model.Position) bool {
	if resp == nil {
		return false
	}
	return resp.Decl.Line-1 == int(resolverDecl.Line) && resp.Decl.Col-1 == int(resolverDecl.Column)
}

var errHelperDisabled = bridgeDisabledErr{}

type bridgeDisabledErr struct{}

func (bridgeDisabledErr) Error() string { return "semantic helper is not configured" }
