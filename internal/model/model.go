// Package model holds the data types shared by every analysis stage:
// buffers, trees, positions, symbols, scopes and the decoration points
// the server eventually returns to the editor.
package model

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// BufferID is the opaque identity of an open document, matching the
// LSP notion of a document URI.
type BufferID string

func (b BufferID) String() string { return string(b) }

// SourceBuffer is the server's view of one open document.
type SourceBuffer struct {
	ID      BufferID
	Content []byte
	Version int
}

// Position is a zero-based (line, column) pair aligned to UTF-16 code
// units, matching the LSP wire format. Ranges are half-open [Start, End).
type Position struct {
	Line   uint32
	Column uint32
}

func (p Position) Less(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// Range is a half-open span between two Positions.
type Range struct {
	Start Position
	End   Position
}

// Contains reports whether r fully encloses other.
func (r Range) Contains(other Range) bool {
	return !other.Start.Less(r.Start) && !r.End.Less(other.End)
}

// Covers reports whether r covers position p ([Start, End)).
func (r Range) Covers(p Position) bool {
	return !p.Less(r.Start) && p.Less(r.End)
}

// Size returns the extent of r: the number of lines spanned for a
// multi-line range (with cols 0), otherwise 0 lines and the column width.
func (r Range) Size() (lines uint32, cols uint32) {
	if r.End.Line != r.Start.Line {
		return r.End.Line - r.Start.Line, 0
	}
	return 0, r.End.Column - r.Start.Column
}

// Tree is an immutable CST produced by the Parser Gateway for one
// (buffer, version) pair.
type Tree struct {
	BufferID    BufferID
	Version     int
	ContentHash uint64
	Content     []byte
	Root        *tree_sitter.Node
	raw         *tree_sitter.Tree
}

// NewTree wraps a raw tree-sitter tree with the metadata the rest of the
// analyzer needs. raw is released through Raw().Close() by whoever owns
// the Tree; once a Tree is put in a bufcache.Cache, the cache closes raw
// when it evicts, replaces, or invalidates the entry.
func NewTree(bufferID BufferID, version int, hash uint64, content []byte, raw *tree_sitter.Tree) *Tree {
	return &Tree{
		BufferID:    bufferID,
		Version:     version,
		ContentHash: hash,
		Content:     content,
		Root:        raw.RootNode(),
		raw:         raw,
	}
}

// Raw exposes the underlying tree-sitter tree for callers that need to
// release it explicitly (e.g. on cache eviction).
func (t *Tree) Raw() *tree_sitter.Tree { return t.raw }

// NodeRange converts a tree-sitter node span into a model.Range.
func NodeRange(n *tree_sitter.Node) Range {
	start := n.StartPosition()
	end := n.EndPosition()
	return Range{
		Start: Position{Line: uint32(start.Row), Column: uint32(start.Column)},
		End:   Position{Line: uint32(end.Row), Column: uint32(end.Column)},
	}
}

// NodeText returns the source slice a node spans.
func NodeText(n *tree_sitter.Node, content []byte) string {
	return string(content[n.StartByte():n.EndByte()])
}

// Sexp renders node as an S-expression, the format the
// goanalyzer/ast debug command dumps. Walked by hand via
// Kind()/Child()/ChildCount() rather than relying on a binding-specific
// dump method, so it works the same across tree-sitter binding versions.
func Sexp(n *tree_sitter.Node) string {
	var b []byte
	b = appendSexp(b, n)
	return string(b)
}

func appendSexp(b []byte, n *tree_sitter.Node) []byte {
	if n == nil {
		return append(b, "(nil)"...)
	}
	b = append(b, '(')
	b = append(b, n.Kind()...)
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		b = append(b, ' ')
		b = appendSexp(b, child)
	}
	b = append(b, ')')
	return b
}

// NodeRef pairs a tree-sitter node with the Tree it belongs to; nodes are
// only valid alongside their originating tree, so the two travel
// together once a tree could be evicted mid-request.
type NodeRef struct {
	Tree *Tree
	Node *tree_sitter.Node
}

func (r NodeRef) Range() Range { return NodeRange(r.Node) }
func (r NodeRef) Text() string { return NodeText(r.Node, r.Tree.Content) }

// StructuralContext classifies where an identifier sits syntactically,
// which the resolver uses to pick the right binding rule.
type StructuralContext int

const (
	ContextExpression StructuralContext = iota
	ContextDeclaration
	ContextSelectorField
	ContextTypeSwitchGuard
	ContextCaseBinding
	ContextOther
)

// Identifier is a CST node corresponding to a name token.
type Identifier struct {
	NodeRef
	Name    string
	Context StructuralContext
}

// Symbol is the logical entity a declaration introduces.
type Symbol struct {
	Name          string
	DeclRange     Range
	IsPointer     bool
	EnclosingFunc *tree_sitter.Node // nil for package-level symbols
	BindingSites  []NodeRef         // aliases: type-switch cases, redeclared names
	DeclSite      NodeRef

	// IsField marks a pseudo-Symbol standing in for a struct field
	// reached through a selector (§4.4's field rule). Fields have no
	// declaration site or scope of their own; resolution always falls
	// back to syntactic matching by field name across the file. A field
	// Symbol has no EnclosingFunc (so IsPackageLevel reports true for it)
	// and is never classified Captured.
	IsField bool
}

// IsPackageLevel reports whether the symbol has no enclosing function.
func (s *Symbol) IsPackageLevel() bool { return s.EnclosingFunc == nil }

// ScopeKind enumerates the block kinds that introduce a Scope.
type ScopeKind int

const (
	ScopePackage ScopeKind = iota
	ScopeFunctionBody
	ScopeBlock
	ScopeForInit
	ScopeForRange
	ScopeIfInit
	ScopeSwitchInit
	ScopeTypeSwitchGuard
	ScopeFuncLiteral
)

// Scope is a block within which declarations are visible.
type Scope struct {
	Kind     ScopeKind
	Node     *tree_sitter.Node
	Parent   *Scope
	Names    map[string]*Symbol
	FuncNode *tree_sitter.Node // enclosing function/func-literal for capture checks
}

// Lookup resolves name by walking from this scope outward.
func (s *Scope) Lookup(name string) (*Symbol, bool) {
	for scope := s; scope != nil; scope = scope.Parent {
		if sym, ok := scope.Names[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// Classification is the semantic kind of a UseSite.
type Classification string

const (
	ClassDeclaration  Classification = "Declaration"
	ClassUse          Classification = "Use"
	ClassPointer      Classification = "Pointer"
	ClassReassignment Classification = "Reassignment"
	ClassCaptured     Classification = "Captured"
	ClassRaceHigh     Classification = "RaceHigh"
	ClassRaceLow      Classification = "RaceLow"
)

// priority returns the §4.8 priority rank; higher wins.
var priority = map[Classification]int{
	ClassRaceHigh:     7,
	ClassRaceLow:      6,
	ClassReassignment: 5,
	ClassCaptured:     4,
	ClassPointer:      3,
	ClassUse:          2,
	ClassDeclaration:  1,
}

// Priority returns c's composer rank; higher values win ties on the
// same span.
func (c Classification) Priority() int { return priority[c] }

// RaceSeverity qualifies a RaceHigh/RaceLow classification.
type RaceSeverity string

const (
	SeverityNone RaceSeverity = ""
	SeverityHigh RaceSeverity = "high"
	SeverityLow  RaceSeverity = "low"
)

// UseSite is one occurrence of a declared Symbol.
type UseSite struct {
	Span           Range
	Classification Classification
	Hover          string
	Severity       RaceSeverity
	Note           string // e.g. "mixed atomic" annotation
}

// ConcurrentLaunch is a subtree rooted at a `go` statement.
type ConcurrentLaunch struct {
	Node          NodeRef
	EnclosingFunc *tree_sitter.Node
	FreeVars      map[string]bool // names referenced but not declared inside
}

// WitnessKind enumerates the synchronization primitives the Concurrency
// Analyzer recognizes syntactically.
type WitnessKind int

const (
	WitnessMutex WitnessKind = iota
	WitnessRWMutexRead
	WitnessAtomic
	WitnessChannel
	WitnessWaitGroup
)

// SynchronizationWitness is evidence that an access is protected.
type SynchronizationWitness struct {
	Kind     WitnessKind
	Receiver string // textual receiver expression, e.g. "a.mu"
	Covers   Range  // span within which the witness holds
}
