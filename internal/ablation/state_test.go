package ablation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchlab/ablate/internal/docstore"
	"github.com/searchlab/ablate/internal/model"
)

func seedCollection(t *testing.T, store *docstore.MemoryStore, name string, n int) []docstore.Record {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, name))
	recs := make([]docstore.Record, 0, n)
	for i := 0; i < n; i++ {
		rec := docstore.Record{
			docstore.KeyField: name + "-" + string(rune('a'+i)),
			"artist":          "artist-" + string(rune('a'+i)),
			"timestamp":       float64(1700000000 + i),
		}
		recs = append(recs, rec)
	}
	require.NoError(t, store.InsertMany(ctx, name, recs))
	return recs
}

func TestAblateEmptiesAndRestores(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	before := seedCollection(t, store, "music_activity", 5)
	ctrl := NewController(store)

	scope, err := ctrl.Ablate(ctx, model.Combination{"music_activity"})
	require.NoError(t, err)
	assert.True(t, ctrl.IsAblated("music_activity"))

	contents, err := store.Contents(ctx, "music_activity")
	require.NoError(t, err)
	assert.Empty(t, contents)

	require.NoError(t, scope.Restore(ctx))
	assert.False(t, ctrl.IsAblated("music_activity"))

	after, err := store.Contents(ctx, "music_activity")
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedCollection(t, store, "music_activity", 3)
	ctrl := NewController(store)

	scope, err := ctrl.Ablate(ctx, model.Combination{"music_activity"})
	require.NoError(t, err)
	require.NoError(t, scope.Restore(ctx))
	require.NoError(t, scope.Restore(ctx))

	after, err := store.Contents(ctx, "music_activity")
	require.NoError(t, err)
	assert.Len(t, after, 3)
}

func TestAblateMissingCollectionFails(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	ctrl := NewController(store)

	_, err := ctrl.Ablate(ctx, model.Combination{"no_such_collection"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

// A failure partway through a multi-collection ablate must roll back the
// collections already emptied and release every lock.
func TestAblatePartialFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedCollection(t, store, "music_activity", 4)
	ctrl := NewController(store)

	_, err := ctrl.Ablate(ctx, model.Combination{"music_activity", "missing"})
	require.Error(t, err)

	after, err := store.Contents(ctx, "music_activity")
	require.NoError(t, err)
	assert.Len(t, after, 4)
	assert.False(t, ctrl.IsAblated("music_activity"))

	// Locks released: a second ablate of the same collection proceeds.
	scope, err := ctrl.Ablate(ctx, model.Combination{"music_activity"})
	require.NoError(t, err)
	require.NoError(t, scope.Restore(ctx))
}

func TestRestoreFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedCollection(t, store, "music_activity", 2)
	ctrl := NewController(store)

	scope, err := ctrl.Ablate(ctx, model.Combination{"music_activity"})
	require.NoError(t, err)

	store.InsertManyErr = eris.New("disk full")
	err = scope.Restore(ctx)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRestoreFailed))
}

// Overlapping combinations serialize; disjoint ones run concurrently.
func TestOverlappingCombinationsSerialize(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedCollection(t, store, "music_activity", 1)
	seedCollection(t, store, "task_activity", 1)
	ctrl := NewController(store)

	first, err := ctrl.Ablate(ctx, model.Combination{"music_activity", "task_activity"})
	require.NoError(t, err)

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scope, err := ctrl.Ablate(ctx, model.Combination{"task_activity"})
		assert.NoError(t, err)
		close(acquired)
		assert.NoError(t, scope.Restore(ctx))
	}()

	select {
	case <-acquired:
		t.Fatal("overlapping ablation proceeded while scope was held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Restore(ctx))

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked ablation never proceeded after restore")
	}
	wg.Wait()
}

func TestAblateCanceledWhileWaiting(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	seedCollection(t, store, "music_activity", 1)
	ctrl := NewController(store)

	scope, err := ctrl.Ablate(ctx, model.Combination{"music_activity"})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = ctrl.Ablate(waitCtx, model.Combination{"music_activity"})
	require.Error(t, err)
	assert.ErrorIs(t, eris.Cause(err), context.DeadlineExceeded)

	require.NoError(t, scope.Restore(ctx))
}
