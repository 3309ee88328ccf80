package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfdb/shelf/pkg/types"
)

func newTestEngine(t *testing.T) *SQLite {
	t.Helper()
	eng := NewSQLite(t.TempDir(), "engine_test", zap.NewNop().Sugar())
	err := eng.Open(context.Background(), 1, func(c Creator) error {
		if err := c.CreateStore(types.StoreDef{
			Name:    "tasks",
			KeyPath: "id",
			Indexes: []types.IndexDef{
				{Name: "userId", Fields: []string{"userId"}},
				{Name: "code+userId", Fields: []string{"code", "userId"}},
				{Name: "code", Fields: []string{"code"}, Unique: true},
			},
		}); err != nil {
			return err
		}
		return c.CreateStore(types.StoreDef{Name: "keyValue", KeyPath: "key"})
	})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Destroy() })
	return eng
}

func put(t *testing.T, eng *SQLite, store string, recs ...types.Record) {
	t.Helper()
	ctx := context.Background()
	txn, err := eng.Begin(ctx, []string{store}, ReadWrite)
	require.NoError(t, err)
	for _, rec := range recs {
		_, err := txn.Put(ctx, store, rec)
		require.NoError(t, err)
	}
	require.NoError(t, txn.Commit())
}

func TestSQLite_OpenCreatesStores(t *testing.T) {
	eng := newTestEngine(t)
	assert.True(t, eng.Ready())
	assert.True(t, eng.HasStore("tasks"))
	assert.True(t, eng.HasStore("keyValue"))
	assert.Equal(t, []string{"keyValue", "tasks"}, eng.Stores())

	def, ok := eng.Definition("tasks")
	require.True(t, ok)
	assert.Equal(t, "id", def.KeyPath)
	assert.True(t, def.HasIndex("code+userId"))
}

func TestSQLite_ReopenLoadsDefinitions(t *testing.T) {
	dir := t.TempDir()
	eng := NewSQLite(dir, "reopen_test", nil)
	ctx := context.Background()

	require.NoError(t, eng.Open(ctx, 1, func(c Creator) error {
		return c.CreateStore(types.StoreDef{
			Name:    "users",
			KeyPath: "id",
			Indexes: []types.IndexDef{{Name: "email", Fields: []string{"email"}, Unique: true}},
		})
	}))
	put(t, eng, "users", types.Record{"id": "u1", "email": "a@b.c"})
	require.NoError(t, eng.Close())

	// Same version: the upgrade callback must not run again.
	reopened := NewSQLite(dir, "reopen_test", nil)
	require.NoError(t, reopened.Open(ctx, 1, func(c Creator) error {
		t.Fatal("upgrade ran without a version bump")
		return nil
	}))
	defer reopened.Destroy()

	def, ok := reopened.Definition("users")
	require.True(t, ok)
	require.Len(t, def.Indexes, 1)
	assert.True(t, def.Indexes[0].Unique)

	txn, err := reopened.Begin(ctx, []string{"users"}, ReadOnly)
	require.NoError(t, err)
	defer txn.Rollback()
	rec, err := txn.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", rec["email"])
}

func TestSQLite_VersionDowngradeRejected(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	eng := NewSQLite(dir, "version_test", nil)
	require.NoError(t, eng.Open(ctx, 3, nil))
	require.NoError(t, eng.Close())

	stale := NewSQLite(dir, "version_test", nil)
	err := stale.Open(ctx, 2, nil)
	require.Error(t, err)
	assert.Equal(t, types.CodeVersionError, types.GetCode(err))
}

func TestSQLite_PutGetDelete(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	rec := types.Record{"id": "t1", "userId": "u1", "code": "A", "priority": int64(3)}
	put(t, eng, "tasks", rec)

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadWrite)
	require.NoError(t, err)

	got, err := txn.Get(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	absent, err := txn.Get(ctx, "tasks", "nope")
	require.NoError(t, err)
	assert.Nil(t, absent)

	require.NoError(t, txn.Delete(ctx, "tasks", "t1"))
	gone, err := txn.Get(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Deleting an absent key is a no-op.
	require.NoError(t, txn.Delete(ctx, "tasks", "t1"))
	require.NoError(t, txn.Commit())
}

func TestSQLite_UndeclaredStoreRejected(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	txn, err := eng.Begin(ctx, []string{"keyValue"}, ReadWrite)
	require.NoError(t, err)
	defer txn.Rollback()

	_, err = txn.Get(ctx, "tasks", "t1")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))

	_, err = eng.Begin(ctx, []string{"ghosts"}, ReadOnly)
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}

func TestSQLite_SeededIndexCursor(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	put(t, eng, "tasks",
		types.Record{"id": "t1", "userId": "u1", "code": "A"},
		types.Record{"id": "t2", "userId": "u2", "code": "B"},
		types.Record{"id": "t3", "userId": "u1", "code": "C"},
	)

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadOnly)
	require.NoError(t, err)
	defer txn.Rollback()

	cur, err := txn.OpenCursor(ctx, "tasks", "userId", []any{"u1"})
	require.NoError(t, err)
	var ids []string
	for {
		rec, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		ids = append(ids, rec["id"].(string))
	}
	require.NoError(t, cur.Close())
	assert.ElementsMatch(t, []string{"t1", "t3"}, ids)
}

func TestSQLite_CompositeCursorSeed(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	put(t, eng, "tasks",
		types.Record{"id": "t1", "userId": "u1", "code": "A"},
		types.Record{"id": "t2", "userId": "u1", "code": "B"},
	)

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadOnly)
	require.NoError(t, err)
	defer txn.Rollback()

	cur, err := txn.OpenCursor(ctx, "tasks", "code+userId", []any{"A", "u1"})
	require.NoError(t, err)
	defer cur.Close()

	rec, ok, err := cur.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", rec["id"])

	_, ok, err = cur.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_UnknownIndexRejected(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadOnly)
	require.NoError(t, err)
	defer txn.Rollback()

	_, err = txn.OpenCursor(ctx, "tasks", "priority", nil)
	require.Error(t, err)
	assert.True(t, types.IsIndexNotFound(err))
}

func TestSQLite_UniqueIndexViolation(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	put(t, eng, "tasks", types.Record{"id": "t1", "userId": "u1", "code": "A"})

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadWrite)
	require.NoError(t, err)
	defer txn.Rollback()

	_, err = txn.Put(ctx, "tasks", types.Record{"id": "t2", "userId": "u2", "code": "A"})
	require.Error(t, err)
	assert.Equal(t, types.CodeConstraint, types.GetCode(err))
}

func TestSQLite_RecordWithoutIndexedFieldHasNoEntry(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	put(t, eng, "tasks",
		types.Record{"id": "t1", "userId": "u1", "code": "A"},
		types.Record{"id": "t2", "code": "B"}, // no userId field
	)

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadOnly)
	require.NoError(t, err)
	defer txn.Rollback()

	cur, err := txn.OpenCursor(ctx, "tasks", "userId", nil)
	require.NoError(t, err)
	defer cur.Close()

	var count int
	for {
		_, ok, err := cur.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 1, count, "only the record carrying the field appears in the index scan")
}

func TestSQLite_BooleanIndexKeyRejected(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadWrite)
	require.NoError(t, err)
	defer txn.Rollback()

	_, err = txn.Put(ctx, "tasks", types.Record{"id": "t1", "userId": true, "code": "A"})
	require.Error(t, err)
}

func TestSQLite_ClearRemovesEverything(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	put(t, eng, "tasks",
		types.Record{"id": "t1", "userId": "u1", "code": "A"},
		types.Record{"id": "t2", "userId": "u2", "code": "B"},
	)

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadWrite)
	require.NoError(t, err)
	require.NoError(t, txn.Clear(ctx, "tasks"))
	require.NoError(t, txn.Commit())

	check, err := eng.Begin(ctx, []string{"tasks"}, ReadOnly)
	require.NoError(t, err)
	defer check.Rollback()
	cur, err := check.OpenCursor(ctx, "tasks", "", nil)
	require.NoError(t, err)
	defer cur.Close()
	_, ok, err := cur.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_RollbackDiscardsWrites(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	txn, err := eng.Begin(ctx, []string{"tasks"}, ReadWrite)
	require.NoError(t, err)
	_, err = txn.Put(ctx, "tasks", types.Record{"id": "t1", "userId": "u1", "code": "A"})
	require.NoError(t, err)
	require.NoError(t, txn.Rollback())

	check, err := eng.Begin(ctx, []string{"tasks"}, ReadOnly)
	require.NoError(t, err)
	defer check.Rollback()
	rec, err := check.Get(ctx, "tasks", "t1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLite_NotOpenErrors(t *testing.T) {
	eng := NewSQLite(t.TempDir(), "closed_test", nil)
	_, err := eng.Begin(context.Background(), []string{"tasks"}, ReadOnly)
	require.Error(t, err)
	assert.True(t, types.IsNotOpen(err))
}
