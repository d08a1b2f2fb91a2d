package bridge

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/goanalyzer/internal/model"
)

func TestQueryDisabledWhenNoPath(t *testing.T) {
	c := New("", time.Second)
	require.False(t, c.Enabled())
	_, err := c.Query(context.Background(), "f.go", 1, 1, nil)
	require.Error(t, err)
}

func TestQuerySubprocessRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake helper script is POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "helper.sh")
	body := "#!/bin/sh\ncat <<'EOF'\n{\"name\":\"outer\",\"decl\":{\"line\":3,\"col\":2},\"uses\":[{\"line\":5,\"col\":3}],\"is_pointer\":false}\nEOF\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	c := New(script, time.Second)
	require.True(t, c.Enabled())

	resp, err := c.Query(context.Background(), "f.go", 4, 5, []byte("package p\n"))
	require.NoError(t, err)
	require.Equal(t, "outer", resp.Name)
	require.Equal(t, 3, resp.Decl.Line)
	require.False(t, resp.IsPointer)
}

func TestQueryTimesOutOnSlowHelper(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake helper script is POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755))

	c := New(script, 20*time.Millisecond)
	_, err := c.Query(context.Background(), "f.go", 1, 1, nil)
	require.Error(t, err)
}

func TestReconcile(t *testing.T) {
	resp := &Response{Decl: Location{Line: 3, Col: 2}}
	require.True(t, Reconcile(resp, model.Position{Line: 2, Column: 1}))
	require.False(t, Reconcile(resp, model.Position{Line: 9, Column: 9}))
	require.False(t, Reconcile(nil, model.Position{}))
}
