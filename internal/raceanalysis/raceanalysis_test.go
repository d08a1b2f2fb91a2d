package raceanalysis

import (
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

func symByName(idx *resolve.Index, name string) *model.Symbol {
	for _, s := range idx.Symbols() {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// S4: an unsynchronized access captured by a goroutine is RaceHigh.
func TestUnsynchronizedCaptureIsRaceHigh(t *testing.T) {
	src := "package p\n\nfunc f() {\n\tcounter := 0\n\tgo func() {\n\t\tcounter++\n\t}()\n\tcounter++\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	launches := FindLaunches(idx, tree)
	require.Len(t, launches, 1)

	sym := symByName(idx, "counter")
	require.NotNil(t, sym)

	sites := Classify(idx, tree, sym, launches)
	require.NotEmpty(t, sites)
	for _, s := range sites {
		require.Equal(t, model.ClassRaceHigh, s.Classification)
		require.Equal(t, model.SeverityHigh, s.Severity)
	}
}

// S5: a mutex-protected counter produces no race classification.
func TestMutexProtectedAccessIsNotFlagged(t *testing.T) {
	src := "package p\n\nfunc f() {\n\tvar mu sync.Mutex\n\ttotal := 0\n\tgo func() {\n\t\tmu.Lock()\n\t\ttotal++\n\t\tmu.Unlock()\n\t}()\n\tmu.Lock()\n\ttotal++\n\tmu.Unlock()\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	launches := FindLaunches(idx, tree)
	require.Len(t, launches, 1)

	sym := symByName(idx, "total")
	require.NotNil(t, sym)

	sites := Classify(idx, tree, sym, launches)
	require.Empty(t, sites, "consistently mutex-protected access should not be race-flagged")
}

// S3: a read-only access captured by a single launch, with no access
// outside the closure, is not a race at all -- it stays Captured-only.
func TestReadOnlySingleLaunchCaptureIsNotFlagged(t *testing.T) {
	src := "package p\n\nfunc f() {\n\touter := 0\n\tgo func() {\n\t\t_ = outer\n\t}()\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	launches := FindLaunches(idx, tree)
	require.Len(t, launches, 1)

	sym := symByName(idx, "outer")
	require.NotNil(t, sym)

	sites := Classify(idx, tree, sym, launches)
	require.Empty(t, sites, "a lone unwitnessed read with no outside access is not a race")
}

// S4: two unsynchronized field writes, one inside the launch and one
// in the main goroutine after it, are both RaceHigh; there is no
// colocated mutex anywhere for the field-access variant to find.
func TestUnsynchronizedFieldWritesAreRaceHigh(t *testing.T) {
	src := "package p\n\nfunc f(a *agg) {\n\tgo func() {\n\t\ta.hotCache = 1\n\t}()\n\ta.hotCache = 2\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	launches := FindLaunches(idx, tree)
	require.Len(t, launches, 1)

	sym := idx.ResolveField("hotCache")
	sites := Classify(idx, tree, sym, launches)
	require.Len(t, sites, 2)
	for _, s := range sites {
		require.Equal(t, model.ClassRaceHigh, s.Classification)
	}
}

// S5: the same field guarded by a colocated mutex (same receiver root
// as the access) is not flagged -- the write inside the launch is
// witnessed, and the write before the `go` statement is outside
// raceanalysis's reach entirely (classify.go handles it as a plain
// Reassignment).
func TestFieldWriteGuardedByColocatedMutexIsNotFlagged(t *testing.T) {
	src := "package p\n\nfunc f(a *agg) {\n\ta.mu.Lock()\n\ta.total = 1\n\ta.mu.Unlock()\n\n\tgo func() {\n\t\ta.mu.Lock()\n\t\ta.total = 2\n\t\ta.mu.Unlock()\n\t}()\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	launches := FindLaunches(idx, tree)
	require.Len(t, launches, 1)

	sym := idx.ResolveField("total")
	sites := Classify(idx, tree, sym, launches)
	require.Empty(t, sites, "a colocated-mutex-guarded field write is not a race")
}

// Invariant: no `go` statement with a closure literal means zero
// ConcurrentLaunch values and therefore zero RaceHigh findings.
func TestNoLaunchesMeansNoRaceFindings(t *testing.T) {
	src := "package p\n\nfunc f() {\n\tx := 1\n\t_ = x\n}\n"
	tree := parse(t, src)
	idx := resolve.BuildIndex(tree)
	launches := FindLaunches(idx, tree)
	require.Empty(t, launches)

	sym := symByName(idx, "x")
	sites := Classify(idx, tree, sym, launches)
	require.Empty(t, sites)
}
