package locator

import (
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/goanalyzer/internal/model"
)

func parse(t *testing.T, src string) *model.Tree {
	t.Helper()
	parser := tree_sitter.NewParser()
	lang := tree_sitter.NewLanguage(tree_sitter_go.Language())
	require.NoError(t, parser.SetLanguage(lang))
	raw := parser.Parse([]byte(src), nil)
	return model.NewTree("buf", 1, 0, []byte(src), raw)
}

// posOf returns the position of the first occurrence of needle in src.
func posOf(t *testing.T, src, needle string) model.Position {
	t.Helper()
	line, col := 0, 0
	for i := 0; i < len(src); i++ {
		if src[i:] != "" && len(src)-i >= len(needle) && src[i:i+len(needle)] == needle {
			return model.Position{Line: uint32(line), Column: uint32(col)}
		}
		if src[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	t.Fatalf("needle %q not found", needle)
	return model.Position{}
}

func TestLocateDeclarationContext(t *testing.T) {
	src := "package p\n\nfunc f() {\n\tx := 1\n\t_ = x\n}\n"
	tree := parse(t, src)
	pos := posOf(t, src, "x :=")

	ident, ok := Locate(tree, pos)
	require.True(t, ok)
	require.Equal(t, "x", ident.Name)
	require.Equal(t, model.ContextDeclaration, ident.Context)
}

func TestLocateExpressionContext(t *testing.T) {
	src := "package p\n\nfunc f() {\n\tx := 1\n\t_ = x\n}\n"
	tree := parse(t, src)
	pos := posOf(t, src, "x\n}")

	ident, ok := Locate(tree, pos)
	require.True(t, ok)
	require.Equal(t, "x", ident.Name)
	require.Equal(t, model.ContextExpression, ident.Context)
}

func TestLocateSelectorField(t *testing.T) {
	src := "package p\n\nfunc f(a *T) {\n\t_ = a.hotCache\n}\n"
	tree := parse(t, src)
	pos := posOf(t, src, "hotCache")

	ident, ok := Locate(tree, pos)
	require.True(t, ok)
	require.Equal(t, "hotCache", ident.Name)
	require.Equal(t, model.ContextSelectorField, ident.Context)
}

func TestLocateTypeSwitchGuardAndCaseBinding(t *testing.T) {
	src := "package p\n\nfunc f(x interface{}) {\n\tswitch v := x.(type) {\n\tcase int:\n\t\t_ = v\n\t}\n}\n"
	tree := parse(t, src)

	guardPos := posOf(t, src, "v :=")
	ident, ok := Locate(tree, guardPos)
	require.True(t, ok)
	require.Equal(t, model.ContextTypeSwitchGuard, ident.Context)

	casePos := posOf(t, src, "v\n\t}")
	ident, ok = Locate(tree, casePos)
	require.True(t, ok)
	require.Equal(t, model.ContextCaseBinding, ident.Context)
}

func TestLocateNoIdentifierUnderCursor(t *testing.T) {
	src := "package p\n"
	tree := parse(t, src)
	_, ok := Locate(tree, model.Position{Line: 0, Column: 0})
	require.False(t, ok)
}
