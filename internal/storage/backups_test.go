package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupManager_CreateListDelete(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	createTestAccount(t, store, "Checking", "0")
	require.NoError(t, store.InsertTransaction(ctx, newTestTransaction("Row", "1", date(2024, 1, 1))))

	bm, err := NewBackupManager(store)
	require.NoError(t, err)

	info, err := bm.Create(ctx, "before-import", "manual")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Transactions)
	assert.Equal(t, 1, info.Accounts)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)

	_, err = bm.Create(ctx, "before-import", "again")
	assert.ErrorIs(t, err, ErrBackupExists)

	_, err = bm.Create(ctx, "../escape", "")
	assert.ErrorIs(t, err, ErrInvalidBackupID)

	backups, err := bm.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "before-import", backups[0].ID)

	require.NoError(t, bm.Delete(ctx, "before-import"))
	assert.ErrorIs(t, bm.Delete(ctx, "before-import"), ErrBackupNotFound)
}

func TestBackupManager_Restore(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	createTestAccount(t, store, "Checking", "0")

	bm, err := NewBackupManager(store)
	require.NoError(t, err)
	_, err = bm.Create(ctx, "one-account", "")
	require.NoError(t, err)

	createTestAccount(t, store, "Savings", "0")
	require.NoError(t, bm.Restore(ctx, "one-account"))

	reopened, err := NewSQLiteStorage(store.dbPath, WithLocation(testLoc))
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	accounts, err := reopened.ListAccounts(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Checking", accounts[0].Name)

	assert.ErrorIs(t, bm.Restore(ctx, "missing"), ErrBackupNotFound)
}
