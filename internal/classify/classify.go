// Package classify is the Use Classifier (§4.5). Given a Symbol
// resolved by the Scope & Declaration Resolver, it walks the CST once
// and emits one UseSite per occurrence, applying the ordered
// classification rules (Declaration, Reassignment, Captured, Pointer,
// Use) and the short-declaration partial-redeclaration special case.
package classify

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/goanalyzer/internal/model"
	"github.com/standardbeagle/goanalyzer/internal/resolve"
)

// Classify returns every UseSite belonging to sym in tree. The result is
// unordered; the Decoration Composer sorts and merges by span.
func Classify(idx *resolve.Index, tree *model.Tree, sym *model.Symbol) []model.UseSite {
	if sym.IsField {
		return classifyFieldSites(tree, sym)
	}
	var sites []model.UseSite
	walkIdentifiers(tree.Root, sym.Name, tree.Content, func(node *tree_sitter.Node) {
		sites = append(sites, classifyOccurrence(idx, tree, sym, node)...)
	})
	return sites
}

// classifyFieldSites handles a field pseudo-Symbol (§4.4's syntactic
// fallback): every selector field_identifier matching sym.Name is an
// occurrence. There is no declaration site and no enclosing function to
// compare against, so Declaration and Captured never apply to a field.
func classifyFieldSites(tree *model.Tree, sym *model.Symbol) []model.UseSite {
	var sites []model.UseSite
	walkFieldIdentifiers(tree.Root, sym.Name, tree.Content, func(node *tree_sitter.Node) {
		sites = append(sites, model.UseSite{Span: model.NodeRange(node), Classification: bestFieldClassification(node)})
	})
	return sites
}

// walkFieldIdentifiers visits every field_identifier that is the "field"
// child of a selector_expression (i.e. an actual field access such as
// `a.hotCache`, not a composite-literal key) whose text equals name.
func walkFieldIdentifiers(n *tree_sitter.Node, name string, content []byte, visit func(*tree_sitter.Node)) {
	if n == nil {
		return
	}
	if n.Kind() == "field_identifier" {
		if parent := n.Parent(); parent != nil && parent.Kind() == "selector_expression" && parent.ChildByFieldName("field") == n {
			if model.NodeText(n, content) == name {
				visit(n)
			}
		}
	}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		walkFieldIdentifiers(n.Child(i), name, content, visit)
	}
}

// bestFieldClassification applies the same priority rule as
// bestClassification, restricted to the two cases that make sense
// without a declaration site: Reassignment and Pointer.
func bestFieldClassification(node *tree_sitter.Node) model.Classification {
	best := model.ClassUse
	consider := func(c model.Classification) {
		if c.Priority() > best.Priority() {
			best = c
		}
	}
	if isFieldReassignmentTarget(node) {
		consider(model.ClassReassignment)
	}
	if isFieldPointerOperation(node) {
		consider(model.ClassPointer)
	}
	return best
}

// isFieldReassignmentTarget and isFieldPointerOperation inspect the
// selector_expression enclosing a field_identifier rather than the
// field node itself, since it is the selector as a whole that is
// assigned to, addressed, or dereferenced (`a.total = x`, `&a.total`).
func isFieldReassignmentTarget(fieldNode *tree_sitter.Node) bool {
	if selector := fieldNode.Parent(); selector != nil {
		return isReassignmentTarget(selector)
	}
	return false
}

func isFieldPointerOperation(fieldNode *tree_sitter.Node) bool {
	if selector := fieldNode.Parent(); selector != nil {
		return isPointerOperation(selector)
	}
	return false
}

// IsReassignmentTarget, IsPointerOperation, IsFieldReassignmentTarget and
// IsFieldPointerOperation expose the write/address-taking detection used
// above so the Concurrency Analyzer can classify an access as a write
// without duplicating the CST shape-matching.
func IsReassignmentTarget(node *tree_sitter.Node) bool { return isReassignmentTarget(node) }
func IsPointerOperation(node *tree_sitter.Node) bool   { return isPointerOperation(node) }

func IsFieldReassignmentTarget(fieldNode *tree_sitter.Node) bool {
	return isFieldReassignmentTarget(fieldNode)
}
func IsFieldPointerOperation(fieldNode *tree_sitter.Node) bool {
	return isFieldPointerOperation(fieldNode)
}

// walkIdentifiers visits every "identifier"-kind node whose text equals
// name. package_identifier nodes are excluded: they live in a separate
// namespace from declared variables. field_identifier occurrences are
// handled separately by classifyFieldSites, since a field pseudo-Symbol
// has no declaration site to compare occurrences against.
func walkIdentifiers(n *tree_sitter.Node, name string, content []byte, visit func(*tree_sitter.Node)) {
	if n == nil {
		return
	}
	if n.Kind() == "identifier" && model.NodeText(n, content) == name {
		visit(n)
	}
	count := n.ChildCount()
	for i := uint(0); i < count; i++ {
		walkIdentifiers(n.Child(i), name, content, visit)
	}
}

func classifyOccurrence(idx *resolve.Index, tree *model.Tree, sym *model.Symbol, node *tree_sitter.Node) []model.UseSite {
	span := model.NodeRange(node)

	if node == sym.DeclSite.Node {
		return []model.UseSite{{Span: span, Classification: model.ClassDeclaration}}
	}

	if idx.IsRedeclaredLHS(node) {
		if resolved, ok := idx.ResolveExpression(node, sym.Name); !ok || resolved != sym {
			return nil
		}
		return []model.UseSite{
			{Span: span, Classification: model.ClassUse},
			{Span: span, Classification: model.ClassReassignment},
		}
	}

	text := model.NodeText(node, tree.Content)
	if text != sym.Name {
		return nil
	}
	resolved, ok := idx.ResolveExpression(node, sym.Name)
	if !ok || resolved != sym {
		return nil // shadowed by a different declaration of the same name
	}

	return []model.UseSite{{Span: span, Classification: bestClassification(idx, sym, node)}}
}

// bestClassification evaluates every rule that applies to node and
// picks the highest-priority one (§4.8's priority order also governs
// a single occurrence with more than one applicable rule, e.g. a
// captured variable whose address is also taken).
func bestClassification(idx *resolve.Index, sym *model.Symbol, node *tree_sitter.Node) model.Classification {
	best := model.ClassUse
	consider := func(c model.Classification) {
		if c.Priority() > best.Priority() {
			best = c
		}
	}

	if isReassignmentTarget(node) {
		consider(model.ClassReassignment)
	}
	if !sym.IsPackageLevel() {
		if encFunc := idx.FuncOf(node); encFunc != sym.EnclosingFunc {
			consider(model.ClassCaptured)
		}
	}
	if isPointerOperation(node) {
		consider(model.ClassPointer)
	}
	return best
}

// isReassignmentTarget reports whether node is the LHS of a plain or
// compound assignment, an inc/dec operand, or a range-clause variable
// rebound with "=" rather than ":=".
func isReassignmentTarget(node *tree_sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	if parent.Kind() == "expression_list" {
		// assignment and range-clause "left" fields are expression_lists;
		// judge the target by the statement that owns the list.
		if owner := parent.Parent(); owner != nil {
			parent = owner
		}
	}
	switch parent.Kind() {
	case "assignment_statement":
		return withinField(parent, "left", node)
	case "inc_statement", "dec_statement":
		return true
	case "range_clause":
		return withinField(parent, "left", node) && !hasShortDeclOperator(parent)
	}
	return false
}

func hasShortDeclOperator(rangeClause *tree_sitter.Node) bool {
	count := rangeClause.ChildCount()
	for i := uint(0); i < count; i++ {
		if rangeClause.Child(i).Kind() == ":=" {
			return true
		}
	}
	return false
}

func withinField(parent *tree_sitter.Node, field string, node *tree_sitter.Node) bool {
	target := parent.ChildByFieldName(field)
	if target == nil {
		return false
	}
	if target == node {
		return true
	}
	count := target.ChildCount()
	for i := uint(0); i < count; i++ {
		if target.Child(i) == node {
			return true
		}
	}
	return false
}

// isPointerOperation reports whether node is the operand of an
// address-of (&) or dereference (*) unary expression (§4.5 rule 3: "the
// classifier marks a site Pointer when it is an address-of/deref
// operation at that site").
func isPointerOperation(node *tree_sitter.Node) bool {
	parent := node.Parent()
	if parent == nil || parent.Kind() != "unary_expression" {
		return false
	}
	op := parent.ChildByFieldName("operator")
	operand := parent.ChildByFieldName("operand")
	if op == nil || operand != node {
		return false
	}
	switch op.Kind() {
	case "&", "*":
		return true
	default:
		return false
	}
}
