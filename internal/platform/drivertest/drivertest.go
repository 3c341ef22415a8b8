// Package drivertest runs a shared conformance suite against a storage
// backend. Each backend package calls Run from its own tests with a
// function that provisions a fresh, empty location, so all drivers are
// held to the same contract: revision checking, tombstone behavior,
// sorted listings, and single-winner concurrent updates.
package drivertest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/duffel/internal/store"
)

// MakeSpec returns a store.Spec pointing at a fresh, empty location. It
// is called once per subtest; implementations should use t.TempDir or a
// unique prefix for isolation, and t.Skip when the backing service is
// unreachable.
type MakeSpec func(t *testing.T) store.Spec

// Run executes the conformance suite.
func Run(t *testing.T, makeSpec MakeSpec) {
	t.Run("CreateOpenDelete", func(t *testing.T) { testCreateOpenDelete(t, makeSpec(t)) })
	t.Run("List", func(t *testing.T) { testList(t, makeSpec(t)) })
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, makeSpec(t)) })
	t.Run("RevisionChecks", func(t *testing.T) { testRevisionChecks(t, makeSpec(t)) })
	t.Run("DeleteDocument", func(t *testing.T) { testDeleteDocument(t, makeSpec(t)) })
	t.Run("RecreateDeleted", func(t *testing.T) { testRecreateDeleted(t, makeSpec(t)) })
	t.Run("AllDocs", func(t *testing.T) { testAllDocs(t, makeSpec(t)) })
	t.Run("Info", func(t *testing.T) { testInfo(t, makeSpec(t)) })
	t.Run("ConcurrentUpdatesSingleWinner", func(t *testing.T) {
		testConcurrentUpdates(t, makeSpec(t))
	})
}

func openDB(t *testing.T, spec store.Spec, name string) (*store.Factory, store.Database) {
	t.Helper()
	ctx := context.Background()

	f, err := store.NewFactory(spec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	require.NoError(t, f.Create(ctx, name))
	db, err := f.Open(ctx, name)
	require.NoError(t, err)
	return f, db
}

func testCreateOpenDelete(t *testing.T, spec store.Spec) {
	ctx := context.Background()

	f, err := store.NewFactory(spec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	_, err = f.Open(ctx, "absent")
	assert.ErrorIs(t, err, store.ErrDatabaseNotFound)

	require.NoError(t, f.Create(ctx, "animals"))
	assert.ErrorIs(t, f.Create(ctx, "animals"), store.ErrDatabaseExists)

	_, err = f.Open(ctx, "animals")
	require.NoError(t, err)

	require.NoError(t, f.Delete(ctx, "animals"))
	assert.ErrorIs(t, f.Delete(ctx, "animals"), store.ErrDatabaseNotFound)
	_, err = f.Open(ctx, "animals")
	assert.ErrorIs(t, err, store.ErrDatabaseNotFound)
}

func testList(t *testing.T, spec store.Spec) {
	ctx := context.Background()

	f, err := store.NewFactory(spec)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	names, err := f.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"zebra", "aardvark", "moose"} {
		require.NoError(t, f.Create(ctx, name))
	}

	names, err = f.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"aardvark", "moose", "zebra"}, names)
}

func testPutGet(t *testing.T, spec store.Spec) {
	ctx := context.Background()
	_, db := openDB(t, spec, "docs")

	_, err := db.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	body := json.RawMessage(`{"species":"capuchin","count":3}`)
	rev, err := db.Put(ctx, &store.Document{ID: "monkey", Body: body}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Generation(rev))

	got, err := db.Get(ctx, "monkey")
	require.NoError(t, err)
	assert.Equal(t, "monkey", got.ID)
	assert.Equal(t, rev, got.Rev)
	assert.False(t, got.Deleted)
	assert.JSONEq(t, string(body), string(got.Body))

	rev2, err := db.Put(ctx, &store.Document{ID: "monkey", Body: json.RawMessage(`{"count":4}`)}, rev)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Generation(rev2))
	assert.NotEqual(t, rev, rev2)

	got, err = db.Get(ctx, "monkey")
	require.NoError(t, err)
	assert.Equal(t, rev2, got.Rev)
	assert.JSONEq(t, `{"count":4}`, string(got.Body))
}

func testRevisionChecks(t *testing.T, spec store.Spec) {
	ctx := context.Background()
	_, db := openDB(t, spec, "docs")

	// A revision against an absent document is a conflict.
	_, err := db.Put(ctx, &store.Document{ID: "a", Body: json.RawMessage(`{}`)}, "1-deadbeef")
	assert.ErrorIs(t, err, store.ErrConflict)

	rev, err := db.Put(ctx, &store.Document{ID: "a", Body: json.RawMessage(`{}`)}, "")
	require.NoError(t, err)

	// Updating without a revision is a conflict.
	_, err = db.Put(ctx, &store.Document{ID: "a", Body: json.RawMessage(`{}`)}, "")
	assert.ErrorIs(t, err, store.ErrConflict)

	// A stale revision is a conflict.
	rev2, err := db.Put(ctx, &store.Document{ID: "a", Body: json.RawMessage(`{"v":2}`)}, rev)
	require.NoError(t, err)
	_, err = db.Put(ctx, &store.Document{ID: "a", Body: json.RawMessage(`{"v":3}`)}, rev)
	assert.ErrorIs(t, err, store.ErrConflict)

	// The losing writer's revision was not applied.
	got, err := db.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, rev2, got.Rev)
	assert.JSONEq(t, `{"v":2}`, string(got.Body))
}

func testDeleteDocument(t *testing.T, spec store.Spec) {
	ctx := context.Background()
	_, db := openDB(t, spec, "docs")

	_, err := db.Delete(ctx, "absent", "1-x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rev, err := db.Put(ctx, &store.Document{ID: "doomed", Body: json.RawMessage(`{}`)}, "")
	require.NoError(t, err)

	_, err = db.Delete(ctx, "doomed", "1-wrong")
	assert.ErrorIs(t, err, store.ErrConflict)

	delRev, err := db.Delete(ctx, "doomed", rev)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Generation(delRev))

	_, err = db.Get(ctx, "doomed")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Deleting a tombstone reads as not found, not as a conflict.
	_, err = db.Delete(ctx, "doomed", delRev)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRecreateDeleted(t *testing.T, spec store.Spec) {
	ctx := context.Background()
	_, db := openDB(t, spec, "docs")

	rev, err := db.Put(ctx, &store.Document{ID: "phoenix", Body: json.RawMessage(`{"life":1}`)}, "")
	require.NoError(t, err)
	delRev, err := db.Delete(ctx, "phoenix", rev)
	require.NoError(t, err)

	// Recreating continues the revision chain past the tombstone.
	rev3, err := db.Put(ctx, &store.Document{ID: "phoenix", Body: json.RawMessage(`{"life":2}`)}, "")
	require.NoError(t, err)
	assert.Equal(t, store.Generation(delRev)+1, store.Generation(rev3))

	got, err := db.Get(ctx, "phoenix")
	require.NoError(t, err)
	assert.JSONEq(t, `{"life":2}`, string(got.Body))
}

func testAllDocs(t *testing.T, spec store.Spec) {
	ctx := context.Background()
	_, db := openDB(t, spec, "docs")

	docs, err := db.AllDocs(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	for _, id := range []string{"walrus", "ant", "kiwi"} {
		_, err := db.Put(ctx, &store.Document{ID: id, Body: json.RawMessage(`{}`)}, "")
		require.NoError(t, err)
	}
	rev, err := db.Get(ctx, "kiwi")
	require.NoError(t, err)
	_, err = db.Delete(ctx, "kiwi", rev.Rev)
	require.NoError(t, err)

	docs, err = db.AllDocs(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "ant", docs[0].ID)
	assert.Equal(t, "walrus", docs[1].ID)
}

func testInfo(t *testing.T, spec store.Spec) {
	ctx := context.Background()
	_, db := openDB(t, spec, "stats")

	info, err := db.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stats", info.Name)
	assert.Zero(t, info.DocCount)
	assert.Zero(t, info.UpdateSeq)

	rev, err := db.Put(ctx, &store.Document{ID: "one", Body: json.RawMessage(`{}`)}, "")
	require.NoError(t, err)
	_, err = db.Put(ctx, &store.Document{ID: "two", Body: json.RawMessage(`{}`)}, "")
	require.NoError(t, err)
	_, err = db.Delete(ctx, "one", rev)
	require.NoError(t, err)

	info, err = db.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.DocCount, "tombstones do not count")
	assert.Equal(t, int64(3), info.UpdateSeq, "every write bumps the sequence")
}

func testConcurrentUpdates(t *testing.T, spec store.Spec) {
	ctx := context.Background()
	_, db := openDB(t, spec, "race")

	rev, err := db.Put(ctx, &store.Document{ID: "contested", Body: json.RawMessage(`{}`)}, "")
	require.NoError(t, err)

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = db.Put(ctx, &store.Document{ID: "contested", Body: json.RawMessage(`{}`)}, rev)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, store.ErrConflict)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent writer must win")
}
