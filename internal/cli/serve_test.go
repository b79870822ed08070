package cli

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeServeConfig writes a config file deploying definitionsDir into a
// fresh SQLite database.
func writeServeConfig(t *testing.T, definitionsDir string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "procflow.yaml")
	content := "datasource:\n" +
		"  dsn: " + filepath.Join(dir, "procflow.db") + "\n" +
		"definitions:\n" +
		"  dir: " + definitionsDir + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func quietCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetErr(io.Discard)
	return cmd
}

func TestNewServer_DeploysDefinitionsDir(t *testing.T) {
	definitionsDir, err := filepath.Abs("../../testdata/processes")
	require.NoError(t, err)
	opts := &ServeOptions{
		RootOptions: &RootOptions{ConfigPath: writeServeConfig(t, definitionsDir)},
		Addr:        "127.0.0.1:0",
	}

	srv, rt, logger, err := newServer(context.Background(), opts, quietCommand())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	assert.NotNil(t, logger)
	assert.Equal(t, "127.0.0.1:0", srv.Addr)

	def, err := rt.Definition(context.Background(), "oneTaskProcess")
	require.NoError(t, err)
	assert.Equal(t, 1, def.Version)

	req := httptest.NewRequest(http.MethodGet, "/definitions/oneTaskProcess", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "oneTaskProcess")
}

func TestNewServer_InvalidDefinitionsDir(t *testing.T) {
	opts := &ServeOptions{
		RootOptions: &RootOptions{ConfigPath: writeServeConfig(t, filepath.Join(t.TempDir(), "missing"))},
	}

	_, _, _, err := newServer(context.Background(), opts, quietCommand())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServeCommand_FailsBeforeListening(t *testing.T) {
	cfg := writeServeConfig(t, filepath.Join(t.TempDir(), "missing"))

	_, err := execute(t, "serve", "--config", cfg, "--addr", "127.0.0.1:0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
