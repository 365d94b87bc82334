package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsplit/internal/config"
	"tripsplit/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.ErrorContains(t, err, "invalid backend type")

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", DataDir: "d"})
	require.NoError(t, err)
	assert.Equal(t, Config{Type: SQLiteBackend, SQLiteDBPath: "x.db", DataDirectory: "d"}, cfg)
}

func TestCreateBackend_Memory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_people.txt"), []byte("Ali\nSara\n"), 0o644))

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	require.NoError(t, err)
	assert.Nil(t, res.Cleanup)

	people, err := res.Store.ListParticipants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ali", "Sara"}, people)
}

func TestCreateBackend_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: path})
	require.NoError(t, err)
	require.NotNil(t, res.Cleanup)
	defer res.Cleanup()

	require.NoError(t, res.Store.AddParticipant(ctx, "A"))
	saved, err := res.Store.AddExpense(ctx, core.Expense{Description: "Tea", Payments: []core.Payment{{Payer: "A", Amount: 3}}})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)
}

func TestCreateBackend_Invalid(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.CreateBackend(context.Background(), Config{Type: "postgres"})
	assert.ErrorContains(t, err, "unsupported backend type")

	_, err = f.CreateBackend(context.Background(), Config{Type: SQLiteBackend})
	assert.ErrorContains(t, err, "path is required")
}
