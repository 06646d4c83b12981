package process_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sqlgraph/pkg/adapters/process"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// shellRunner uses sh as the interpreter so the tests do not need python.
func shellRunner(t *testing.T, timeout time.Duration) *process.Runner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	return process.NewRunner(process.Config{Python: "sh", Timeout: timeout, WorkDir: t.TempDir()})
}

func TestRunner_StdinAndStdout(t *testing.T) {
	r := shellRunner(t, 5*time.Second)

	res, err := r.Run(context.Background(), ports.CodeRequest{
		Language: "python",
		Code:     "cat",
		Input:    []byte(`[{"step":1}]`),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, `[{"step":1}]`, res.Stdout)
}

func TestRunner_NonZeroExit(t *testing.T) {
	r := shellRunner(t, 5*time.Second)

	res, err := r.Run(context.Background(), ports.CodeRequest{Code: "echo boom >&2; exit 3"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Stderr, "boom")
}

func TestRunner_CollectsArtifacts(t *testing.T) {
	r := shellRunner(t, 5*time.Second)

	res, err := r.Run(context.Background(), ports.CodeRequest{
		Code: `printf 'PNG' > "$OUTPUT_DIR/chart.png"; printf 'a,b' > "$OUTPUT_DIR/data.csv"`,
	})
	require.NoError(t, err)
	require.True(t, res.Success, res.Stderr)
	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, "chart.png", res.Artifacts[0].Name)
	assert.Equal(t, "image/png", res.Artifacts[0].MimeType)
	assert.Equal(t, []byte("PNG"), res.Artifacts[0].Data)
	assert.Equal(t, "data.csv", res.Artifacts[1].Name)
}

func TestRunner_Timeout(t *testing.T) {
	r := shellRunner(t, 200*time.Millisecond)

	start := time.Now()
	res, err := r.Run(context.Background(), ports.CodeRequest{Code: "sleep 5"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Stderr, "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRunner_ParentCancel(t *testing.T) {
	r := shellRunner(t, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, ports.CodeRequest{Code: "sleep 5"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunner_Errors(t *testing.T) {
	r := process.NewRunner(process.Config{Python: "definitely-not-an-interpreter", WorkDir: t.TempDir()})

	_, err := r.Run(context.Background(), ports.CodeRequest{Code: "print(1)"})
	assert.Error(t, err)

	_, err = r.Run(context.Background(), ports.CodeRequest{Language: "ruby", Code: "puts 1"})
	assert.ErrorContains(t, err, "unsupported language")
}

func TestDefaultConfig(t *testing.T) {
	cfg := process.DefaultConfig()
	assert.Equal(t, "python3", cfg.Python)
	assert.Equal(t, process.DefaultTimeout, cfg.Timeout)
}
