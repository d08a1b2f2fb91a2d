package bufcache

import (
	"testing"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/goanalyzer/internal/model"
)

func parseSnippet(t *testing.T, src string) *model.Tree {
	t.Helper()
	parser := tree_sitter.NewParser()
	lang := tree_sitter.NewLanguage(tree_sitter_go.Language())
	require.NoError(t, parser.SetLanguage(lang))
	raw := parser.Parse([]byte(src), nil)
	return model.NewTree("buf", 1, uint64(len(src)), []byte(src), raw)
}

func TestCacheHitMiss(t *testing.T) {
	c := New(2, time.Minute, false, 0)
	tree := parseSnippet(t, "package p\n")

	_, ok := c.Get("buf", 1)
	require.False(t, ok)

	c.Put("buf", 1, tree)
	got, ok := c.Get("buf", 1)
	require.True(t, ok)
	require.Same(t, tree, got)

	stats := c.Snapshot()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}

func TestCacheEvictsLRU(t *testing.T) {
	c := New(2, time.Minute, false, 0)
	t1 := parseSnippet(t, "package a\n")
	t2 := parseSnippet(t, "package b\n")
	t3 := parseSnippet(t, "package c\n")

	c.Put("a", 1, t1)
	c.Put("b", 1, t2)
	require.Equal(t, 2, c.Len())

	// Touch "a" so "b" becomes the LRU entry.
	_, _ = c.Get("a", 1)
	c.Put("c", 1, t3)

	require.Equal(t, 2, c.Len())
	_, ok := c.Get("b", 1)
	require.False(t, ok, "b should have been evicted as least-recently-used")
	_, ok = c.Get("a", 1)
	require.True(t, ok)
	_, ok = c.Get("c", 1)
	require.True(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(10, time.Millisecond, false, 0)
	tree := parseSnippet(t, "package p\n")
	c.Put("buf", 1, tree)

	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("buf", 1)
	require.False(t, ok)
}

func TestCacheInvalidateBuffer(t *testing.T) {
	c := New(10, time.Minute, false, 0)
	c.Put("buf", 1, parseSnippet(t, "package p\n"))
	c.Put("buf", 2, parseSnippet(t, "package q\n"))
	c.Put("other", 1, parseSnippet(t, "package r\n"))

	c.InvalidateBuffer("buf")
	_, ok := c.Get("buf", 1)
	require.False(t, ok)
	_, ok = c.Get("buf", 2)
	require.False(t, ok)
	_, ok = c.Get("other", 1)
	require.True(t, ok)
}
