package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/database/sqlstore"
	"github.com/kozaktomas/mouthtrack/internal/database/storetest"
)

func TestSessionStore(t *testing.T) {
	store, applied, err := Open(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, []string{"001_sessions.sql"}, applied)

	storetest.Run(t, store)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")

	store, _, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(ctx, storetest.Session("keep", "jan", database.KindCalibration, 0), nil))
	require.NoError(t, store.Close())

	store, applied, err := Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	assert.Empty(t, applied)

	versions, err := sqlstore.MigrationsApplied(ctx, store.DB())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_sessions.sql"}, versions)

	got, err := store.GetSession(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "jan", got.Patient)
}

func TestConnect_JournalMode(t *testing.T) {
	db, err := Connect(context.Background(), filepath.Join(t.TempDir(), "wal.db"))
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestConnect_EmptyPath(t *testing.T) {
	_, err := Connect(context.Background(), "")
	assert.Error(t, err)
}
