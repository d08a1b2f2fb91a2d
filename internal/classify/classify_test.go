package classify

import (
	"sort"
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/goanalyzer/internal/model"
	"github.com/standardbeagle/goanalyzer/internal/resolve"
)

func parse(t *testing.T, src string) *model.Tree {
	t.Helper()
	parser := tree_sitter.NewParser()
	lang := tree_sitter.NewLanguage(tree_sitter_go.Language())
	require.NoError(t, parser.SetLanguage(lang))
	raw := parser.Parse([]byte(src), nil)
	return model.NewTree("buf", 1, 0, []byte(src), raw)
}

func classifications(sites []model.UseSite) []model.Classification {
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Span.Start != sites[j].Span.Start {
			return sites[i].Span.Start.Less(sites[j].Span.Start)
		}
		return sites[i].Classification < sites[j].Classification
	})
	var out []model.Classification
	for _, s := range sites {
		out = append(out, s.Classification)
	}
	return out
}

// S1: simple declaration then a single use.
func TestDeclarationThenUse(t *testing.T) {
	src := "package p\n\nfunc f() {\n\tx := 42\n\t_ = x\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	sym, ok := idx.Symbols()[0], true
	require.True(t, ok)

	sites := Classify(idx, tree, sym)
	require.Equal(t, []model.Classification{model.ClassDeclaration, model.ClassUse}, classifications(sites))
}

// S2: declare, reassign, use.
func TestDeclarationReassignmentUse(t *testing.T) {
	src := "package p\n\nfunc f() {\n\tx := 1\n\tx = 2\n\t_ = x\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	sym := idx.Symbols()[0]

	sites := Classify(idx, tree, sym)
	require.Equal(t, []model.Classification{model.ClassDeclaration, model.ClassReassignment, model.ClassUse}, classifications(sites))
}

// S3: a variable captured by a goroutine closure.
func TestCapturedByClosure(t *testing.T) {
	src := "package p\n\nfunc f() {\n\touter := 0\n\tgo func() {\n\t\t_ = outer\n\t}()\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	sym := idx.Symbols()[0]

	sites := Classify(idx, tree, sym)
	require.Equal(t, []model.Classification{model.ClassDeclaration, model.ClassCaptured}, classifications(sites))
}

// Partial redeclaration: an already-bound short-declaration LHS name is
// Use and Reassignment at the same span, not a fresh Declaration.
func TestPartialRedeclarationEmitsUseAndReassignment(t *testing.T) {
	src := "package p\n\nfunc f() {\n\tx, y := 1, 2\n\tx, z := 3, 4\n\t_, _, _ = x, y, z\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)

	var xSym *model.Symbol
	for _, sym := range idx.Symbols() {
		if sym.Name == "x" {
			xSym = sym
		}
	}
	require.NotNil(t, xSym)

	sites := Classify(idx, tree, xSym)
	got := classifications(sites)
	require.Contains(t, got, model.ClassDeclaration)
	require.Contains(t, got, model.ClassReassignment)
	// the redeclared occurrence contributes both Use and Reassignment
	require.Equal(t, 1, countClass(got, model.ClassDeclaration))
	require.Equal(t, 1, countClass(got, model.ClassReassignment))
	require.GreaterOrEqual(t, countClass(got, model.ClassUse), 2)
}

// S6: type-switch guard binding shared across case clauses classifies
// as plain Use in each case, plus the guard's own Declaration.
func TestTypeSwitchGuardCasesAreUse(t *testing.T) {
	src := "package p\n\nfunc f(x interface{}) {\n\tswitch v := x.(type) {\n\tcase int:\n\t\t_ = v\n\tcase string:\n\t\t_ = v\n\t}\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)

	var vSym *model.Symbol
	for _, sym := range idx.Symbols() {
		if sym.Name == "v" {
			vSym = sym
		}
	}
	require.NotNil(t, vSym)

	sites := Classify(idx, tree, vSym)
	got := classifications(sites)
	require.Equal(t, []model.Classification{model.ClassDeclaration, model.ClassUse, model.ClassUse}, got)
}

// §4.5 rule 3: a dereference, not just an address-of, marks a site
// Pointer.
func TestDereferenceIsPointerClassification(t *testing.T) {
	src := "package p\n\nfunc f(p *int) {\n\t_ = *p\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	sym := idx.Symbols()[0]

	sites := Classify(idx, tree, sym)
	got := classifications(sites)
	require.Contains(t, got, model.ClassPointer)
}

// S4: a field reached through a selector has no declaration site and
// is never Captured, but a plain write classifies as Reassignment.
func TestFieldSymbolClassifiesSelectorWrites(t *testing.T) {
	src := "package p\n\nfunc f(a *agg) {\n\ta.hotCache = 1\n\t_ = a.hotCache\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	sym := idx.ResolveField("hotCache")
	require.True(t, sym.IsField)

	sites := Classify(idx, tree, sym)
	got := classifications(sites)
	require.Equal(t, []model.Classification{model.ClassReassignment, model.ClassUse}, got)
	require.NotContains(t, got, model.ClassDeclaration)
	require.NotContains(t, got, model.ClassCaptured)
}

// §4.4/§4.6: taking a field's address is Pointer, same as a plain
// variable.
func TestFieldSymbolClassifiesAddressOf(t *testing.T) {
	src := "package p\n\nfunc f(a *agg) {\n\tp := &a.hotCache\n\t_ = p\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	sym := idx.ResolveField("hotCache")

	sites := Classify(idx, tree, sym)
	got := classifications(sites)
	require.Contains(t, got, model.ClassPointer)
}

func countClass(cs []model.Classification, target model.Classification) int {
	n := 0
	for _, c := range cs {
		if c == target {
			n++
		}
	}
	return n
}
