// Package locator is the Cursor Locator (§4.3): given a parsed Tree and
// an editor position, it finds the smallest identifier node covering
// that position and classifies the syntactic context the resolver needs
// to pick the right binding rule.
package locator

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/goanalyzer/internal/model"
)

var identifierKinds = map[string]bool{
	"identifier":         true,
	"field_identifier":   true,
	"type_identifier":    true,
	"package_identifier": true,
}

// Locate returns the identifier node covering pos, or ok=false if the
// cursor does not sit on a name (§4.3 edge case: empty decoration set).
func Locate(tree *model.Tree, pos model.Position) (*model.Identifier, bool) {
	node := smallestCovering(tree.Root, pos)
	if node == nil || !identifierKinds[node.Kind()] {
		return nil, false
	}
	return &model.Identifier{
		NodeRef: model.NodeRef{Tree: tree, Node: node},
		Name:    model.NodeText(node, tree.Content),
		Context: classify(node, tree.Content),
	}, true
}

// smallestCovering descends from node to the deepest child whose range
// still covers pos, breaking ties (a child exactly as wide as its
// parent) by preferring the deeper node.
func smallestCovering(node *tree_sitter.Node, pos model.Position) *tree_sitter.Node {
	if node == nil || !model.NodeRange(node).Covers(pos) {
		return nil
	}
	count := node.ChildCount()
	for i := uint(0); i < count; i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if found := smallestCovering(child, pos); found != nil {
			return found
		}
	}
	return node
}

// classify inspects node's immediate syntactic surroundings to decide
// its StructuralContext. It does not attempt full resolution — that is
// the Scope & Declaration Resolver's job — only enough to tell the
// resolver which binding rule applies to the cursor position itself.
func classify(node *tree_sitter.Node, content []byte) model.StructuralContext {
	parent := node.Parent()
	if parent == nil {
		return model.ContextOther
	}
	if parent.Kind() == "expression_list" {
		// short-declaration and range-clause "left" fields are
		// expression_lists; the declaring statement is one level up.
		if owner := parent.Parent(); owner != nil {
			parent = owner
		}
	}

	switch parent.Kind() {
	case "selector_expression":
		if field := parent.ChildByFieldName("field"); field == node {
			return model.ContextSelectorField
		}
	case "short_var_declaration":
		if isWithinField(parent, "left", node) {
			return model.ContextDeclaration
		}
	case "parameter_declaration", "variadic_parameter_declaration":
		if name := parent.ChildByFieldName("name"); name == node {
			return model.ContextDeclaration
		}
	case "var_spec", "const_spec":
		if isLeadingIdentifier(parent, node) {
			return model.ContextDeclaration
		}
	case "function_declaration", "method_declaration":
		if name := parent.ChildByFieldName("name"); name == node {
			return model.ContextDeclaration
		}
	case "type_switch_guard":
		if binding := parent.ChildByFieldName("binding"); binding == node {
			return model.ContextTypeSwitchGuard
		}
	case "range_clause":
		if isWithinField(parent, "left", node) {
			return model.ContextDeclaration
		}
	}

	if isTypeSwitchCaseBinding(node, content) {
		return model.ContextCaseBinding
	}

	return model.ContextExpression
}

// isWithinField reports whether node is node or a descendant of the
// named field of parent (used for expression_list fields like "left").
func isWithinField(parent *tree_sitter.Node, field string, node *tree_sitter.Node) bool {
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

func isLeadingIdentifier(spec *tree_sitter.Node, node *tree_sitter.Node) bool {
	count := spec.ChildCount()
	for i := uint(0); i < count; i++ {
		c := spec.Child(i)
		if c.Kind() != "identifier" {
			return false
		}
		if c == node {
			return true
		}
	}
	return false
}

// isTypeSwitchCaseBinding reports whether node is a reference, inside a
// type_case/default_case body, to the name its enclosing
// type_switch_statement's guard bound — the "implicit per-case binding"
// the resolver treats as a plain alias of the guard's Symbol.
func isTypeSwitchCaseBinding(node *tree_sitter.Node, content []byte) bool {
	name := model.NodeText(node, content)
	inCase := false
	for n := node.Parent(); n != nil; n = n.Parent() {
		switch n.Kind() {
		case "type_case", "default_case":
			inCase = true
		case "type_switch_statement":
			if !inCase {
				return false
			}
			return guardBindingName(n, content) == name
		}
	}
	return false
}

func guardBindingName(stmt *tree_sitter.Node, content []byte) string {
	count := stmt.ChildCount()
	for i := uint(0); i < count; i++ {
		child := stmt.Child(i)
		if child.Kind() != "type_switch_guard" {
			continue
		}
		if binding := child.ChildByFieldName("binding"); binding != nil {
			return model.NodeText(binding, content)
		}
	}
	return ""
}
