// Package resolve is the Scope & Declaration Resolver (§4.4). It builds
// a scope tree for one CST in a single walk and maps each identifier occurrence to
// the Symbol its declaration introduced. The traversal follows the
// teacher's VisitContext push/pop pattern (internal/parser.VisitContext)
// generalized from a flat parent-type stack to a real nested Scope tree.
package resolve

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/goanalyzer/internal/model"
)

// Index is the resolver's output for one Tree: a scope tree plus the
// lookup tables the Use Classifier and Concurrency Analyzer need to
// avoid re-walking the CST from scratch.
type Index struct {
	tree *model.Tree

	root *model.Scope

	// nodeScopes maps a scope-introducing node (function body, block,
	// func literal, for/if/switch header) to the Scope it owns.
	nodeScopes map[*tree_sitter.Node]*model.Scope

	// funcNodes maps a function/method-declaration or func_literal node
	// to itself, so FuncOf can find the nearest ancestor boundary.
	funcNodes map[*tree_sitter.Node]bool

	// declSites maps the exact declaring identifier node to the Symbol
	// it introduces (§4.5 rule 1: Declaration is the declaring
	// identifier's own span).
	declSites map[*tree_sitter.Node]*model.Symbol

	// redeclaredOnLHS marks identifier nodes that are short-declaration
	// LHS occurrences of an ALREADY-bound name: these are Use, not
	// Declaration (§4.4's short-declaration partial-redeclaration rule).
	redeclaredOnLHS map[*tree_sitter.Node]bool

	// allSymbols is every Symbol introduced in this file, for callers
	// that want to enumerate them (e.g. indexingStatus counts).
	allSymbols []*model.Symbol

	// fieldSymbols memoizes the pseudo-Symbols ResolveField hands out,
	// keyed by field name, so repeated selector occurrences of the same
	// field resolve to the identical Symbol pointer within this Index.
	fieldSymbols map[string]*model.Symbol
}

// BuildIndex walks tree once and returns the scope/declaration index.
// Scopes and symbols are rebuilt on every call — per the data model's
// lifecycle, they are not cached beyond the Tree itself.
func BuildIndex(tree *model.Tree) *Index {
	idx := &Index{
		tree:            tree,
		nodeScopes:      make(map[*tree_sitter.Node]*model.Scope),
		funcNodes:       make(map[*tree_sitter.Node]bool),
		declSites:       make(map[*tree_sitter.Node]*model.Symbol),
		redeclaredOnLHS: make(map[*tree_sitter.Node]bool),
	}
	pkgScope := &model.Scope{Kind: model.ScopePackage, Node: tree.Root, Names: make(map[string]*model.Symbol)}
	idx.root = pkgScope
	idx.nodeScopes[tree.Root] = pkgScope

	w := &walker{idx: idx, content: tree.Content}
	w.walk(tree.Root, pkgScope, nil)
	return idx
}

// ScopeAt returns the innermost Scope enclosing node, walking up the
// parent chain to the nearest scope-introducing ancestor.
func (idx *Index) ScopeAt(node *tree_sitter.Node) *model.Scope {
	for n := node; n != nil; n = n.Parent() {
		if s, ok := idx.nodeScopes[n]; ok {
			return s
		}
	}
	return idx.root
}

// FuncOf returns the smallest function-literal or function-declaration
// node containing node, or nil for package-level code.
func (idx *Index) FuncOf(node *tree_sitter.Node) *tree_sitter.Node {
	for n := node.Parent(); n != nil; n = n.Parent() {
		if idx.funcNodes[n] {
			return n
		}
	}
	return nil
}

// DeclSymbol returns the Symbol a node declares, if node is itself a
// declaring identifier.
func (idx *Index) DeclSymbol(node *tree_sitter.Node) (*model.Symbol, bool) {
	sym, ok := idx.declSites[node]
	return sym, ok
}

// IsRedeclaredLHS reports whether node is a short-declaration LHS
// occurrence of a name that already existed in its scope.
func (idx *Index) IsRedeclaredLHS(node *tree_sitter.Node) bool {
	return idx.redeclaredOnLHS[node]
}

// Symbols returns every Symbol declared in the file.
func (idx *Index) Symbols() []*model.Symbol { return idx.allSymbols }

// ResolveExpression resolves an identifier occurring in
// expression/selector position: walk scopes from innermost outward,
// first binding wins (§4.4).
func (idx *Index) ResolveExpression(node *tree_sitter.Node, name string) (*model.Symbol, bool) {
	return idx.ScopeAt(node).Lookup(name)
}

// ResolveField resolves a selector's field identifier (§4.4: "for a
// selector's field identifier: resolution targets the field's
// declaration inside the struct type (best-effort; if the struct's type
// is not locally determinable, fall back to syntactic matching by field
// name within the file)"). This analyzer has no type checker, so the
// fallback is the only path: every occurrence of `.name` anywhere in the
// file is treated as the same field pseudo-Symbol.
func (idx *Index) ResolveField(name string) *model.Symbol {
	if sym, ok := idx.fieldSymbols[name]; ok {
		return sym
	}
	sym := &model.Symbol{Name: name, IsField: true}
	if idx.fieldSymbols == nil {
		idx.fieldSymbols = make(map[string]*model.Symbol)
	}
	idx.fieldSymbols[name] = sym
	return sym
}

type walker struct {
	idx     *Index
	content []byte
}

func (w *walker) text(n *tree_sitter.Node) string { return model.NodeText(n, w.content) }

func (w *walker) newSymbol(name string, decl *tree_sitter.Node, funcNode *tree_sitter.Node, pointer bool) *model.Symbol {
	sym := &model.Symbol{
		Name:          name,
		DeclRange:     model.NodeRange(decl),
		IsPointer:     pointer,
		EnclosingFunc: funcNode,
		DeclSite:      model.NodeRef{Tree: w.idx.tree, Node: decl},
	}
	w.idx.declSites[decl] = sym
	w.idx.allSymbols = append(w.idx.allSymbols, sym)
	return sym
}

// declareInScope registers name at decl in scope, honoring the
// short-declaration partial-redeclaration rule: a name already bound in
// THIS scope (not an outer one) is a reassignment of the existing
// Symbol, not a fresh declaration.
func (w *walker) declareInScope(scope *model.Scope, name string, decl *tree_sitter.Node, funcNode *tree_sitter.Node, pointer bool, allowRedeclare bool) {
	if allowRedeclare {
		if existing, ok := scope.Names[name]; ok {
			w.idx.redeclaredOnLHS[decl] = true
			existing.BindingSites = append(existing.BindingSites, model.NodeRef{Tree: w.idx.tree, Node: decl})
			return
		}
	}
	scope.Names[name] = w.newSymbol(name, decl, funcNode, pointer)
}

func (w *walker) walk(node *tree_sitter.Node, scope *model.Scope, funcNode *tree_sitter.Node) {
	if node == nil {
		return
	}

	switch node.Kind() {
	case "function_declaration":
		w.walkFunctionLike(node, scope, nil)
	case "method_declaration":
		w.walkFunctionLike(node, scope, node.ChildByFieldName("receiver"))
	case "func_literal":
		w.walkFunctionLike(node, scope, nil)
	case "block":
		w.walkBlock(node, scope, funcNode)
	case "if_statement":
		w.walkIf(node, scope, funcNode)
	case "for_statement":
		w.walkFor(node, scope, funcNode)
	case "type_switch_statement":
		w.walkTypeSwitch(node, scope, funcNode)
	case "short_var_declaration":
		w.walkShortVarDecl(node, scope, funcNode)
	case "var_declaration":
		w.walkGroupedSpec(node, scope, funcNode, false)
	case "const_declaration":
		w.walkGroupedSpec(node, scope, funcNode, true)
	default:
		w.descendChildren(node, scope, funcNode)
	}
}

func (w *walker) descendChildren(node *tree_sitter.Node, scope *model.Scope, funcNode *tree_sitter.Node) {
	count := node.ChildCount()
	for i := uint(0); i < count; i++ {
		w.walk(node.Child(i), scope, funcNode)
	}
}

func (w *walker) walkFunctionLike(node *tree_sitter.Node, outer *model.Scope, receiver *tree_sitter.Node) {
	bodyKind := model.ScopeFunctionBody
	if node.Kind() == "func_literal" {
		bodyKind = model.ScopeFuncLiteral
	}
	bodyScope := &model.Scope{Kind: bodyKind, Node: node, Parent: outer, Names: make(map[string]*model.Symbol), FuncNode: node}
	w.idx.nodeScopes[node] = bodyScope
	w.idx.funcNodes[node] = true

	if receiver != nil {
		w.registerParamList(receiver, bodyScope, node)
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		w.registerParamList(params, bodyScope, node)
	}
	if result := node.ChildByFieldName("result"); result != nil && result.Kind() == "parameter_list" {
		w.registerParamList(result, bodyScope, node)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		w.walk(body, bodyScope, node)
	}
}

// registerParamList registers every named parameter in list as a Symbol
// in scope. Unnamed parameters/results (bare types) are skipped.
func (w *walker) registerParamList(list *tree_sitter.Node, scope *model.Scope, funcNode *tree_sitter.Node) {
	count := list.ChildCount()
	for i := uint(0); i < count; i++ {
		decl := list.Child(i)
		if decl.Kind() != "parameter_declaration" && decl.Kind() != "variadic_parameter_declaration" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		typeNode := decl.ChildByFieldName("type")
		pointer := isReferenceType(typeNode)
		w.declareInScope(scope, w.text(nameNode), nameNode, funcNode, pointer, false)
	}
}

func (w *walker) walkBlock(node *tree_sitter.Node, outer *model.Scope, funcNode *tree_sitter.Node) {
	scope := &model.Scope{Kind: model.ScopeBlock, Node: node, Parent: outer, Names: make(map[string]*model.Symbol), FuncNode: outer.FuncNode}
	w.idx.nodeScopes[node] = scope
	w.descendChildren(node, scope, funcNode)
}

func (w *walker) walkIf(node *tree_sitter.Node, outer *model.Scope, funcNode *tree_sitter.Node) {
	scope := &model.Scope{Kind: model.ScopeIfInit, Node: node, Parent: outer, Names: make(map[string]*model.Symbol), FuncNode: outer.FuncNode}
	w.idx.nodeScopes[node] = scope

	if init := node.ChildByFieldName("initializer"); init != nil {
		w.walk(init, scope, funcNode)
	}
	if cond := node.ChildByFieldName("condition"); cond != nil {
		w.walk(cond, scope, funcNode)
	}
	if cons := node.ChildByFieldName("consequence"); cons != nil {
		w.walk(cons, scope, funcNode)
	}
	if alt := node.ChildByFieldName("alternative"); alt != nil {
		w.walk(alt, scope, funcNode)
	}
}

func (w *walker) walkFor(node *tree_sitter.Node, outer *model.Scope, funcNode *tree_sitter.Node) {
	scope := &model.Scope{Kind: model.ScopeForInit, Node: node, Parent: outer, Names: make(map[string]*model.Symbol), FuncNode: outer.FuncNode}
	w.idx.nodeScopes[node] = scope

	count := node.ChildCount()
	for i := uint(0); i < count; i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "range_clause":
			w.walkRangeClause(child, scope, funcNode)
		case "for_clause":
			w.walkForClause(child, scope, funcNode)
		case "block":
			w.walk(child, scope, funcNode)
		default:
			w.walk(child, scope, funcNode)
		}
	}
}

func (w *walker) walkRangeClause(node *tree_sitter.Node, scope *model.Scope, funcNode *tree_sitter.Node) {
	left := node.ChildByFieldName("left")
	isDecl := false
	count := node.ChildCount()
	for i := uint(0); i < count; i++ {
		if node.Child(i).Kind() == ":=" {
			isDecl = true
		}
	}
	if left != nil {
		for _, ident := range identifierChildren(left) {
			if isDecl {
				w.declareInScope(scope, w.text(ident), ident, funcNode, false, true)
			}
			// operator "=" reassigns an existing variable; the Use
			// Classifier's reassignment rule (§4.5 #2) picks that up
			// directly from the range_clause's left span.
		}
	}
	if right := node.ChildByFieldName("right"); right != nil {
		w.walk(right, scope, funcNode)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		w.walk(body, scope, funcNode)
	}
}

func (w *walker) walkForClause(node *tree_sitter.Node, scope *model.Scope, funcNode *tree_sitter.Node) {
	if init := node.ChildByFieldName("initializer"); init != nil {
		w.walk(init, scope, funcNode)
	}
	if cond := node.ChildByFieldName("condition"); cond != nil {
		w.walk(cond, scope, funcNode)
	}
	if upd := node.ChildByFieldName("update"); upd != nil {
		w.walk(upd, scope, funcNode)
	}
}

func (w *walker) walkTypeSwitch(node *tree_sitter.Node, outer *model.Scope, funcNode *tree_sitter.Node) {
	scope := &model.Scope{Kind: model.ScopeTypeSwitchGuard, Node: node, Parent: outer, Names: make(map[string]*model.Symbol), FuncNode: outer.FuncNode}
	w.idx.nodeScopes[node] = scope

	count := node.ChildCount()
	for i := uint(0); i < count; i++ {
		child := node.Child(i)
		if child.Kind() == "type_switch_guard" {
			if binding := child.ChildByFieldName("binding"); binding != nil {
				w.declareInScope(scope, w.text(binding), binding, funcNode, false, false)
			}
			if value := child.ChildByFieldName("value"); value != nil {
				w.walk(value, scope, funcNode)
			}
			continue
		}
		w.walk(child, scope, funcNode)
	}
}

func (w *walker) walkShortVarDecl(node *tree_sitter.Node, scope *model.Scope, funcNode *tree_sitter.Node) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")

	var rhsExprs []*tree_sitter.Node
	if right != nil {
		rhsExprs = identifierListElements(right)
	}

	if left != nil {
		idents := identifierChildren(left)
		for i, ident := range idents {
			pointer := false
			if i < len(rhsExprs) {
				pointer = exprLooksReferenceTyped(rhsExprs[i], w.content)
			}
			w.declareInScope(scope, w.text(ident), ident, funcNode, pointer, true)
		}
	}
	if right != nil {
		w.walk(right, scope, funcNode)
	}
}

func (w *walker) walkGroupedSpec(node *tree_sitter.Node, scope *model.Scope, funcNode *tree_sitter.Node, isConst bool) {
	count := node.ChildCount()
	for i := uint(0); i < count; i++ {
		spec := node.Child(i)
		specKind := "var_spec"
		if isConst {
			specKind = "const_spec"
		}
		if spec.Kind() != specKind {
			w.walk(spec, scope, funcNode)
			continue
		}
		typeNode := spec.ChildByFieldName("type")
		pointer := isReferenceType(typeNode)

		names := collectLeadingIdentifiers(spec)
		for _, nameNode := range names {
			w.declareInScope(scope, w.text(nameNode), nameNode, funcNode, pointer, false)
		}
		if value := spec.ChildByFieldName("value"); value != nil {
			w.walk(value, scope, funcNode)
		}
	}
}

// identifierChildren returns the direct "identifier" children of an
// expression_list (or a bare identifier node treated as a one-element
// list).
func identifierChildren(list *tree_sitter.Node) []*tree_sitter.Node {
	if list.Kind() == "identifier" {
		return []*tree_sitter.Node{list}
	}
	var out []*tree_sitter.Node
	count := list.ChildCount()
	for i := uint(0); i < count; i++ {
		c := list.Child(i)
		if c.Kind() == "identifier" {
			out = append(out, c)
		}
	}
	return out
}

// identifierListElements returns every top-level expression in an
// expression_list, used to line RHS positions up with LHS names in a
// short declaration.
func identifierListElements(list *tree_sitter.Node) []*tree_sitter.Node {
	if list.Kind() != "expression_list" {
		return []*tree_sitter.Node{list}
	}
	var out []*tree_sitter.Node
	count := list.ChildCount()
	for i := uint(0); i < count; i++ {
		c := list.Child(i)
		if c.Kind() == "," {
			continue
		}
		out = append(out, c)
	}
	return out
}

// collectLeadingIdentifiers returns the leading run of identifier
// children in a var_spec/const_spec, i.e. the declared names, stopping
// at the first non-identifier child (the type, "=", or values).
func collectLeadingIdentifiers(spec *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	count := spec.ChildCount()
	for i := uint(0); i < count; i++ {
		c := spec.Child(i)
		if c.Kind() == "," {
			continue
		}
		if c.Kind() != "identifier" {
			if len(out) > 0 {
				break
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

// isReferenceType reports whether a type node denotes one of the
// spec's reference-semantics kinds: pointer, slice, map, channel,
// function, or interface.
func isReferenceType(typeNode *tree_sitter.Node) bool {
	if typeNode == nil {
		return false
	}
	switch typeNode.Kind() {
	case "pointer_type", "slice_type", "map_type", "channel_type", "function_type", "interface_type":
		return true
	default:
		return false
	}
}

// exprLooksReferenceTyped heuristically infers pointer-ness from a
// short-declaration RHS expression when there is no explicit type
// annotation to consult: address-of, make() of a reference type,
// reference-type composite literals, and function literals.
func exprLooksReferenceTyped(expr *tree_sitter.Node, content []byte) bool {
	if expr == nil {
		return false
	}
	switch expr.Kind() {
	case "unary_expression":
		if op := expr.ChildByFieldName("operator"); op != nil {
			return model.NodeText(op, content) == "&"
		}
	case "func_literal":
		return true
	case "composite_literal":
		if t := expr.ChildByFieldName("type"); t != nil {
			return isReferenceType(t)
		}
	case "call_expression":
		if fn := expr.ChildByFieldName("function"); fn != nil && model.NodeText(fn, content) == "make" {
			return true
		}
	}
	return false
}
