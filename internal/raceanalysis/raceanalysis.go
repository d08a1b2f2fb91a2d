// Package raceanalysis is the Concurrency Analyzer (§4.6). It finds
// `go` statements, computes the free variables their launched closures
// capture, and classifies each captured access as RaceHigh, RaceLow, or
// unflagged depending on the synchronization witnesses (mutexes,
// atomics, channels, WaitGroups) syntactically visible around it.
package raceanalysis

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/goanalyzer/internal/classify"
	"github.com/standardbeagle/goanalyzer/internal/model"
	"github.com/standardbeagle/goanalyzer/internal/resolve"
)

// FindLaunches walks tree for `go` statements and returns one
// ConcurrentLaunch per statement whose launched expression is a
// function literal — the form that can capture enclosing variables.
// `go namedFunc(args...)` copies its arguments and captures nothing, so
// it is not a launch site for this analysis.
func FindLaunches(idx *resolve.Index, tree *model.Tree) []*model.ConcurrentLaunch {
	var launches []*model.ConcurrentLaunch
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if n.Kind() == "go_statement" {
			if lit := launchedLiteral(n); lit != nil {
				launches = append(launches, &model.ConcurrentLaunch{
					Node:          model.NodeRef{Tree: tree, Node: n},
					EnclosingFunc: idx.FuncOf(n),
					FreeVars:      freeVariables(idx, tree, lit),
				})
			}
		}
		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.Root)
	return launches
}

func launchedLiteral(goStmt *tree_sitter.Node) *tree_sitter.Node {
	count := goStmt.ChildCount()
	for i := uint(0); i < count; i++ {
		child := goStmt.Child(i)
		if child.Kind() != "call_expression" {
			continue
		}
		fn := child.ChildByFieldName("function")
		if fn != nil && fn.Kind() == "func_literal" {
			return fn
		}
	}
	return nil
}

// freeVariables returns the names referenced inside lit that resolve to
// a Symbol declared outside lit, plus every struct-field name accessed
// through a selector inside lit. A field access has no declaration of
// its own to compare scopes against, so it is always free: the launch
// reaches it syntactically, and §4.4's fallback treats every occurrence
// of that field name in the file as the same Symbol.
func freeVariables(idx *resolve.Index, tree *model.Tree, lit *tree_sitter.Node) map[string]bool {
	free := make(map[string]bool)
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "identifier":
			name := model.NodeText(n, tree.Content)
			if sym, ok := idx.ResolveExpression(n, name); ok && !model.NodeRange(lit).Contains(sym.DeclRange) {
				free[name] = true
			}
		case "field_identifier":
			if parent := n.Parent(); parent != nil && parent.Kind() == "selector_expression" && parent.ChildByFieldName("field") == n {
				free[model.NodeText(n, tree.Content)] = true
			}
		}
		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			walk(n.Child(i))
		}
	}
	walk(lit)
	return free
}

// witness is syntactic evidence of synchronization found around a
// `go` statement's enclosing function. receiverRoot is the base
// identifier of the call's receiver chain (e.g. "a" for both
// `a.mu.Lock()` and a field access `a.hotCache`), used to correlate a
// lock with the aggregate it is declared alongside (§4.6's field-access
// "colocated mutex" variant) when there is no type information to
// confirm the mutex actually guards that field.
type witness struct {
	kind         model.WitnessKind
	node         *tree_sitter.Node
	receiverRoot string
}

// access is one occurrence of a Symbol reachable from a launch: either
// inside the launched closure itself, or in the enclosing function's
// statements that lexically follow the `go` statement.
type access struct {
	node    *tree_sitter.Node
	outside bool
}

// Classify computes the race-related UseSites for sym's occurrences
// that fall within any of launches. Occurrences outside every launch's
// reach are left to the Use Classifier and are not touched here.
func Classify(idx *resolve.Index, tree *model.Tree, sym *model.Symbol, launches []*model.ConcurrentLaunch) []model.UseSite {
	var sites []model.UseSite
	for _, launch := range launches {
		if !launch.FreeVars[sym.Name] {
			continue
		}
		sites = append(sites, classifyLaunch(idx, tree, sym, launch)...)
	}
	return sites
}

// classifyLaunch applies §4.6's three-part rule per access rather than
// once for the whole launch:
//
//   - an access consistently covered by a synchronization witness is
//     left alone (no override; the Use Classifier's own tag stands);
//   - covered by a mix of atomic and non-atomic witnesses across the
//     launch's accesses downgrades every witnessed access to RaceLow;
//   - an unwitnessed write or address-taking access is RaceHigh only
//     when at least one other, concurrently-reachable access to the
//     same Symbol exists outside the launch (another launch reachable
//     through a sibling access, the main goroutine after the `go`
//     statement, or the launch sitting inside a loop that can re-enter);
//   - everything else (a lone unwitnessed read with no outside access)
//     is a local-only capture: no race.
func classifyLaunch(idx *resolve.Index, tree *model.Tree, sym *model.Symbol, launch *model.ConcurrentLaunch) []model.UseSite {
	accesses := collectAccesses(idx, tree, sym, launch)
	if len(accesses) == 0 {
		return nil
	}

	witnesses := collectWitnesses(tree, launch.EnclosingFunc)
	reentrant := isWithinLoop(launch.Node.Node)

	outsideCount := 0
	for _, acc := range accesses {
		if acc.outside {
			outsideCount++
		}
	}

	sawAtomicWitness := false
	sawNonAtomicWitness := false
	for _, acc := range accesses {
		if w, ok := coveringWitness(tree, witnesses, acc.node, sym); ok {
			if w.kind == model.WitnessAtomic {
				sawAtomicWitness = true
			} else {
				sawNonAtomicWitness = true
			}
		}
	}
	mixed := sawAtomicWitness && sawNonAtomicWitness

	var sites []model.UseSite
	for _, acc := range accesses {
		_, witnessed := coveringWitness(tree, witnesses, acc.node, sym)
		switch {
		case witnessed && mixed:
			sites = append(sites, model.UseSite{
				Span:           model.NodeRange(acc.node),
				Classification: model.ClassRaceLow,
				Severity:       model.SeverityLow,
				Note:           "mixed atomic and non-atomic access",
			})
		case witnessed:
			continue
		case isWrite(sym, acc.node) && hasOtherAccess(acc, outsideCount, reentrant):
			sites = append(sites, model.UseSite{
				Span:           model.NodeRange(acc.node),
				Classification: model.ClassRaceHigh,
				Severity:       model.SeverityHigh,
			})
		default:
			continue
		}
	}
	return sites
}

// hasOtherAccess reports whether acc has a distinct, concurrent-reachable
// counterpart (§4.6's third RaceHigh condition). An inside access is
// itself the launch's one guaranteed access, so the launch needs either
// an outside access or to be able to re-run via an enclosing loop. An
// outside access always has the launch's own inside access as its
// counterpart (Classify only analyzes a launch whose FreeVars[name] is
// set, which requires at least one matching occurrence inside lit).
func hasOtherAccess(acc access, outsideCount int, reentrant bool) bool {
	if acc.outside {
		return true
	}
	return outsideCount > 0 || reentrant
}

// isWrite reports whether node is a write or address-taking occurrence
// of sym, reusing the Use Classifier's own shape-matching so the two
// packages never disagree about what counts as a write.
func isWrite(sym *model.Symbol, node *tree_sitter.Node) bool {
	if sym.IsField {
		return classify.IsFieldReassignmentTarget(node) || classify.IsFieldPointerOperation(node)
	}
	return classify.IsReassignmentTarget(node) || classify.IsPointerOperation(node)
}

// isWithinLoop reports whether goStmt sits inside a for_statement
// within its own enclosing function — a launch that can run again on
// the next iteration is concurrent-reachable with itself even with a
// single textual access.
func isWithinLoop(goStmt *tree_sitter.Node) bool {
	for p := goStmt.Parent(); p != nil; p = p.Parent() {
		switch p.Kind() {
		case "for_statement":
			return true
		case "func_literal", "function_declaration", "method_declaration":
			return false
		}
	}
	return false
}

// collectAccesses returns every occurrence of sym reachable from
// launch: inside the launched closure itself, and in the enclosing
// function's statements that lexically follow the `go` statement (the
// main goroutine can still race with the new one until it is joined).
func collectAccesses(idx *resolve.Index, tree *model.Tree, sym *model.Symbol, launch *model.ConcurrentLaunch) []access {
	var out []access
	lit := launchedLiteralOf(launch)

	var walkMatching func(n *tree_sitter.Node, outside bool)
	walkMatching = func(n *tree_sitter.Node, outside bool) {
		if n == nil {
			return
		}
		if matchesSymbolOccurrence(idx, tree, sym, n) {
			out = append(out, access{node: n, outside: outside})
		}
		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			walkMatching(n.Child(i), outside)
		}
	}

	if lit != nil {
		walkMatching(lit, false)
	}

	if launch.EnclosingFunc != nil {
		goStmt := launch.Node.Node
		goStart := goStmt.StartByte()
		var afterLaunch func(n *tree_sitter.Node)
		afterLaunch = func(n *tree_sitter.Node) {
			if n == nil || n.EndByte() <= goStart {
				return
			}
			if n == goStmt {
				// Already walked in full via walkMatching(lit, false)
				// above; descending into its children here would count
				// every occurrence inside the closure a second time.
				return
			}
			if n.StartByte() >= goStart {
				walkMatching(n, true)
				return
			}
			count := n.ChildCount()
			for i := uint(0); i < count; i++ {
				afterLaunch(n.Child(i))
			}
		}
		if body := bodyOf(launch.EnclosingFunc); body != nil {
			afterLaunch(body)
		}
	}

	return out
}

// matchesSymbolOccurrence reports whether n is an occurrence of sym: for
// a field pseudo-Symbol, any selector field_identifier with the matching
// name; otherwise an "identifier" node that resolves back to sym.
func matchesSymbolOccurrence(idx *resolve.Index, tree *model.Tree, sym *model.Symbol, n *tree_sitter.Node) bool {
	if sym.IsField {
		if n.Kind() != "field_identifier" {
			return false
		}
		parent := n.Parent()
		if parent == nil || parent.Kind() != "selector_expression" || parent.ChildByFieldName("field") != n {
			return false
		}
		return model.NodeText(n, tree.Content) == sym.Name
	}
	if n.Kind() != "identifier" || model.NodeText(n, tree.Content) != sym.Name {
		return false
	}
	resolved, ok := idx.ResolveExpression(n, sym.Name)
	return ok && resolved == sym
}

func launchedLiteralOf(launch *model.ConcurrentLaunch) *tree_sitter.Node {
	return launchedLiteral(launch.Node.Node)
}

func bodyOf(funcNode *tree_sitter.Node) *tree_sitter.Node {
	if b := funcNode.ChildByFieldName("body"); b != nil {
		return b
	}
	return nil
}

// collectWitnesses scans scope (typically the enclosing function body)
// for syntactic synchronization evidence, recording the statement span
// each witness is understood to cover and, where the call has a
// receiver (`a.mu.Lock()`), the receiver chain's base identifier for
// the field-access colocated-mutex correlation in coveringWitness.
func collectWitnesses(tree *model.Tree, scope *tree_sitter.Node) []witness {
	if scope == nil {
		return nil
	}
	var out []witness
	var walk func(n *tree_sitter.Node)
	walk = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		switch n.Kind() {
		case "call_expression":
			if fn := n.ChildByFieldName("function"); fn != nil && fn.Kind() == "selector_expression" {
				field := fn.ChildByFieldName("field")
				operand := fn.ChildByFieldName("operand")
				if field != nil {
					switch model.NodeText(field, tree.Content) {
					case "Lock", "Unlock":
						out = append(out, witness{kind: model.WitnessMutex, node: n, receiverRoot: rootText(tree, operand)})
					case "RLock", "RUnlock":
						out = append(out, witness{kind: model.WitnessRWMutexRead, node: n, receiverRoot: rootText(tree, operand)})
					case "Add", "Done", "Wait":
						out = append(out, witness{kind: model.WitnessWaitGroup, node: n, receiverRoot: rootText(tree, operand)})
					}
				}
				if operand != nil && model.NodeText(operand, tree.Content) == "atomic" {
					out = append(out, witness{kind: model.WitnessAtomic, node: n})
				}
			}
		case "send_statement":
			out = append(out, witness{kind: model.WitnessChannel, node: n})
		case "unary_expression":
			if op := n.ChildByFieldName("operator"); op != nil && op.Kind() == "<-" {
				out = append(out, witness{kind: model.WitnessChannel, node: n})
			}
		}
		count := n.ChildCount()
		for i := uint(0); i < count; i++ {
			walk(n.Child(i))
		}
	}
	walk(scope)
	return out
}

// rootText walks a chain of selector_expression.operand fields down to
// its base identifier's text, e.g. "a" for both `a.mu` and `a.mu.Lock`'s
// receiver `a.mu`. Returns "" for anything else (a package-qualified
// call, a parenthesized expression, etc.) — those simply never
// correlate with a field access's root.
func rootText(tree *model.Tree, n *tree_sitter.Node) string {
	for n != nil {
		switch n.Kind() {
		case "identifier":
			return model.NodeText(n, tree.Content)
		case "selector_expression":
			n = n.ChildByFieldName("operand")
		default:
			return ""
		}
	}
	return ""
}

// fieldAccessRoot returns the base identifier of the selector a field
// occurrence hangs off of, e.g. "a" for `a.hotCache`.
func fieldAccessRoot(tree *model.Tree, fieldNode *tree_sitter.Node) string {
	parent := fieldNode.Parent()
	if parent == nil || parent.Kind() != "selector_expression" {
		return ""
	}
	return rootText(tree, parent.ChildByFieldName("operand"))
}

// coveringWitness reports whether access is protected.
//
// For a plain-identifier Symbol this is the original coarse-but-stable
// proxy: some witness's enclosing statement shares a parent block with
// access, or access is itself an argument of an atomic.* call.
//
// For a field Symbol there is no scope to anchor on (every occurrence
// anywhere in the file is the same pseudo-Symbol), so §4.6's field-access
// variant applies instead: the covering mutex is the one whose receiver
// shares a root with the field access's own selector (the "mutex guards
// these fields" idiom, matched syntactically since there is no type
// information to confirm the two are actually the same struct value). If
// no witness shares that root, the field access is unwitnessed.
func coveringWitness(tree *model.Tree, witnesses []witness, access *tree_sitter.Node, sym *model.Symbol) (witness, bool) {
	if sym.IsField {
		root := fieldAccessRoot(tree, access)
		if root == "" {
			return witness{}, false
		}
		for _, w := range witnesses {
			if w.receiverRoot == "" || w.receiverRoot != root {
				continue
			}
			switch w.kind {
			case model.WitnessMutex, model.WitnessRWMutexRead:
				return w, true
			}
		}
		return witness{}, false
	}

	accessBlock := enclosingBlock(access)
	for _, w := range witnesses {
		if enclosingBlock(w.node) == accessBlock {
			return w, true
		}
		if w.kind == model.WitnessAtomic && isAtomicOperand(w.node, access) {
			return w, true
		}
	}
	return witness{}, false
}

func enclosingBlock(n *tree_sitter.Node) *tree_sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == "block" || p.Kind() == "func_literal" || p.Kind() == "function_declaration" || p.Kind() == "method_declaration" {
			return p
		}
	}
	return nil
}

// isAtomicOperand reports whether access appears as an argument of an
// atomic.* call, the common `atomic.AddInt64(&counter, 1)` shape.
func isAtomicOperand(atomicCall *tree_sitter.Node, access *tree_sitter.Node) bool {
	args := atomicCall.ChildByFieldName("arguments")
	if args == nil {
		return false
	}
	for n := access; n != nil; n = n.Parent() {
		if n == args {
			return true
		}
	}
	return false
}
