package sqlitestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/go-modelcontext/persistence"
)

func TestSQLiteStoreBasics(t *testing.T) {
	// Use in-memory database for testing
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(persistence.DiscoveredServicesKey)
	require.NoError(t, err)
	assert.False(t, ok)

	value := `[{"processId":"p","entryId":"e","capabilityType":"date"}]`
	require.NoError(t, store.Put(persistence.DiscoveredServicesKey, value))

	got, ok, err := store.Get(persistence.DiscoveredServicesKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, value, got)

	names, err := store.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{persistence.DiscoveredServicesKey}, names)
}

func TestSQLiteStoreOverwrite(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("k", "first"))
	first, err := store.UpdatedAt("k")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Put("k", "second"))

	got, ok, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got)

	second, err := store.UpdatedAt("k")
	require.NoError(t, err)
	assert.False(t, second.Before(first))

	names, err := store.Names()
	require.NoError(t, err)
	assert.Len(t, names, 1, "upsert must not duplicate the record")
}

func TestSQLiteStoreDelete(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("k", "v"))
	require.NoError(t, store.Delete("k"))
	require.NoError(t, store.Delete("k"))

	_, ok, err := store.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.UpdatedAt("k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry not found")
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	store, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Put(persistence.DiscoveredServicesKey, `[]`))
	require.NoError(t, store.Close())

	reopened, err := New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Get(persistence.DiscoveredServicesKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, got)
}
