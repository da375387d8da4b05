package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/parley/pkg/adapters/sqlite"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	return store, path
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, _ := openStore(t)
	defer store.Close()

	ports.RunSessionStoreContract(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	store, path := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.SessionSnapshot{
		ID:        "s1",
		StateName: "Greeted",
		Variables: map[string]any{"name": "Ada"},
	}))
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	snap, err := reopened.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Greeted", snap.StateName)
	assert.Equal(t, "Ada", snap.Variables["name"])
}

func TestSQLiteStore_DeleteMissing(t *testing.T) {
	store, _ := openStore(t)
	defer store.Close()

	assert.NoError(t, store.Delete(context.Background(), "nobody"))
}
