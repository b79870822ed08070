package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procflow/internal/ir"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(context.Background(), path)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer s.Close()

	tables := []string{
		"schema_version", "definitions", "instances", "tasks", "variables",
		"historic_variables", "historic_instances", "history_events",
	}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=$1",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows))
	assert.Equal(t, 1, rows, "reopening must not append schema versions")

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ir.SchemaVersion, version)
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES ($1)", ir.SchemaVersion+1)
	require.NoError(t, err)
	s.Close()

	_, err = OpenSQLite(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"},
		{"busy_timeout", "20000"},
	}
	for _, tt := range tests {
		t.Run(tt.pragma, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.pragma, tt.want))
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported driver "oracle"`)

	_, err = Open(context.Background(), Config{Driver: DriverSQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn is required")
}

func TestSQLiteDSN(t *testing.T) {
	dsn, err := sqliteDSN("/tmp/p.db", 3*time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "/tmp/p.db?"))
	assert.Contains(t, dsn, "_busy_timeout=3000")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_journal_mode=WAL")

	// Caller-provided parameters win.
	dsn, err = sqliteDSN("/tmp/p.db?_journal_mode=DELETE", 0)
	require.NoError(t, err)
	assert.Contains(t, dsn, "_journal_mode=DELETE")
	assert.Contains(t, dsn, "_busy_timeout=5000")
}

func TestSQLiteReadDSN(t *testing.T) {
	dsn, err := sqliteDSN("/tmp/p.db", 3*time.Second)
	require.NoError(t, err)

	readDSN, err := sqliteReadDSN(dsn)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(readDSN, "/tmp/p.db?"))
	assert.Contains(t, readDSN, "_txlock=deferred")
	assert.NotContains(t, readDSN, "_txlock=immediate")
	assert.Contains(t, readDSN, "_busy_timeout=3000")
	assert.Contains(t, readDSN, "_journal_mode=WAL")
}

func TestView_NotBlockedByWriter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	def := createTestDefinition()

	locked := make(chan struct{})
	release := make(chan struct{})
	writeDone := make(chan error, 1)
	go func() {
		writeDone <- s.Update(ctx, func(tx Tx) error {
			if err := tx.InsertDefinition(ctx, def); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	readDone := make(chan error, 1)
	go func() {
		readDone <- s.View(ctx, func(tx Tx) error {
			_, err := tx.DefinitionByID(ctx, def.ID)
			return err
		})
	}()

	select {
	case err := <-readDone:
		assert.True(t, ir.IsNotFound(err), "uncommitted rows must not be visible, got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("View waited for the open write transaction")
	}

	close(release)
	require.NoError(t, <-writeDone)

	require.NoError(t, s.View(ctx, func(tx Tx) error {
		_, err := tx.DefinitionByID(ctx, def.ID)
		return err
	}))
}

func TestDefaultPoolConfig(t *testing.T) {
	pool := DefaultPoolConfig()
	assert.Equal(t, 10, pool.MaxActive)
	assert.Equal(t, 10, pool.MaxIdle)
	assert.Equal(t, 20*time.Second, pool.CheckoutTimeout)
	assert.Equal(t, 20*time.Second, pool.WaitTimeout)
}

func TestPoolSettingsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	pool := PoolConfig{MaxActive: 3, MaxIdle: 2, CheckoutTimeout: time.Second, WaitTimeout: time.Second}
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: path, Pool: pool})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.DB().Stats().MaxOpenConnections)
	assert.Equal(t, DriverSQLite, s.Driver())
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	def := createTestDefinition()
	boom := errors.New("boom")

	err := s.Update(context.Background(), func(tx Tx) error {
		if err := tx.InsertDefinition(context.Background(), def); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom, "fn errors are returned unchanged")

	err = s.View(context.Background(), func(tx Tx) error {
		_, err := tx.DefinitionByID(context.Background(), def.ID)
		return err
	})
	assert.True(t, ir.IsNotFound(err), "rolled back definition must not be visible")
}

func TestView_NeverCommits(t *testing.T) {
	s := createTestStore(t)
	def := createTestDefinition()

	require.NoError(t, s.View(context.Background(), func(tx Tx) error {
		return tx.InsertDefinition(context.Background(), def)
	}))

	err := s.View(context.Background(), func(tx Tx) error {
		_, err := tx.DefinitionByID(context.Background(), def.ID)
		return err
	})
	assert.True(t, ir.IsNotFound(err))
}

func TestUpdate_CheckoutTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	pool := DefaultPoolConfig()
	pool.CheckoutTimeout = 50 * time.Millisecond
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: path, Pool: pool})
	require.NoError(t, err)
	defer s.Close()

	def := createTestDefinition()
	err = s.Update(context.Background(), func(tx Tx) error {
		time.Sleep(100 * time.Millisecond)
		return tx.InsertDefinition(context.Background(), def)
	})
	require.Error(t, err, "a transaction held past the checkout timeout is abandoned")

	err = s.View(context.Background(), func(tx Tx) error {
		_, err := tx.DefinitionByID(context.Background(), def.ID)
		return err
	})
	assert.True(t, ir.IsNotFound(err))
}

func TestUpdate_RecoversPanic(t *testing.T) {
	s := createTestStore(t)

	assert.Panics(t, func() {
		_ = s.Update(context.Background(), func(tx Tx) error {
			panic("boom")
		})
	})

	// The store remains usable after the panic.
	require.NoError(t, s.Update(context.Background(), func(tx Tx) error {
		return tx.InsertDefinition(context.Background(), createTestDefinition())
	}))
}
