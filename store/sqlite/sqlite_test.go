package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/policy-history/history"
	"github.com/warp/policy-history/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func ms(month time.Month, day int) time.Time {
	return time.Date(2021, month, day, 10, 30, 0, 125_000_000, time.UTC)
}

func sampleEvents() []history.Event {
	start, end, newEnd := ms(time.August, 25), ms(time.September, 2), ms(time.August, 30)
	return []history.Event{
		{
			Kind:      history.EventCreated,
			Timestamp: ms(time.August, 24),
			PolicyID:  "P1",
			StartDate: &start,
			EndDate:   &end,
			Vehicle:   &history.VehicleDescriptor{PrettyVRM: "MA77 GRO", Make: "Volkswagen", Model: "Polo"},
		},
		{
			Kind:             history.EventExtended,
			Timestamp:        ms(time.September, 1),
			PolicyID:         "E1",
			OriginalPolicyID: "P1",
			StartDate:        &end,
			EndDate:          &end,
		},
		{
			Kind:       history.EventCancelled,
			Timestamp:  ms(time.August, 29),
			PolicyID:   "P1",
			NewEndDate: &newEnd,
		},
	}
}

// =============================================================================
// ARCHIVE TESTS
// =============================================================================

func TestStore_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	batch := history.Batch{ID: "b1", Source: "test", ReceivedAt: ms(time.September, 3), Events: sampleEvents()}
	require.NoError(t, store.Append(ctx, batch))

	got, err := store.Load(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "test", got.Source)
	assert.True(t, batch.ReceivedAt.Equal(got.ReceivedAt))
	require.Len(t, got.Events, 3)
	assert.Equal(t, history.EventCreated, got.Events[0].Kind)
	assert.Equal(t, history.PolicyID("P1"), got.Events[1].OriginalPolicyID)
	assert.Equal(t, "MA77 GRO", got.Events[0].Vehicle.PrettyVRM)
	require.NotNil(t, got.Events[2].NewEndDate)
	assert.True(t, got.Events[2].NewEndDate.Equal(ms(time.August, 30)))
}

func TestStore_LatestRebuildsEngine(t *testing.T) {
	// GIVEN: Two archived batches
	// WHEN: Ingesting the latest one into a fresh engine
	// THEN: Only the newest batch is reconstructed

	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, history.ErrBatchNotFound)

	require.NoError(t, store.Append(ctx, history.Batch{ID: "new", Source: "feed", ReceivedAt: ms(time.September, 3), Events: sampleEvents()}))
	require.NoError(t, store.Append(ctx, history.Batch{ID: "old", Source: "feed", ReceivedAt: ms(time.September, 1)}))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)

	engine := history.NewEngine()
	summary := engine.Ingest(latest.Events)
	assert.Equal(t, 1, summary.Policies)

	p, found := engine.PolicyHistory("E1")
	require.True(t, found)
	assert.True(t, p.EndDate().Equal(ms(time.August, 30)), "cancellation overrides the extension")

	records, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "new", records[0].ID)
	assert.Equal(t, 3, records[0].EventCount)
}

func TestStore_DuplicateBatchRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Append(ctx, history.Batch{ID: "b1", Source: "test", ReceivedAt: ms(time.September, 3)}))
	err := store.Append(ctx, history.Batch{ID: "b1", Source: "test", ReceivedAt: ms(time.September, 4)})

	assert.ErrorIs(t, err, history.ErrDuplicateBatch)
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := newTestStore(t).Load(context.Background(), "nope")

	assert.True(t, history.IsNotFound(err))
}
