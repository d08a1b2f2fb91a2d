package parsegw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/goanalyzer/internal/bufcache"
	"github.com/standardbeagle/goanalyzer/internal/model"
)

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	cache := bufcache.New(10, time.Minute, false, 0)
	t.Cleanup(cache.Stop)
	gw, err := New(cache, nil)
	require.NoError(t, err)
	return gw
}

func TestParseDeterministic(t *testing.T) {
	gw := newGateway(t)
	src := []byte("package p\n\nfunc f() { x := 1; _ = x }\n")

	t1, err := gw.Parse("buf", 1, src, SourceManual)
	require.NoError(t, err)
	t2, err := gw.Parse("buf", 1, src, SourceManual)
	require.NoError(t, err)

	require.Equal(t, model.Sexp(t1.Root), model.Sexp(t2.Root))
}

func TestParseReportsCacheHit(t *testing.T) {
	var events []ParseInfo
	cache := bufcache.New(10, time.Minute, false, 0)
	t.Cleanup(cache.Stop)
	gw, err := New(cache, func(pi ParseInfo) { events = append(events, pi) })
	require.NoError(t, err)

	src := []byte("package p\n")
	_, err = gw.Parse("buf", 1, src, SourceManual)
	require.NoError(t, err)
	_, err = gw.Parse("buf", 1, src, SourceManual)
	require.NoError(t, err)

	require.Len(t, events, 2)
	require.False(t, events[0].CacheHit)
	require.True(t, events[1].CacheHit)
}

func TestParseBestEffortOnMalformedInput(t *testing.T) {
	gw := newGateway(t)
	src := []byte("package p\n\nfunc f( {\n")
	tree, err := gw.Parse("buf", 1, src, SourceManual)
	require.NoError(t, err)
	require.NotNil(t, tree.Root)
}
