package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchTrackerLastRequestWins(t *testing.T) {
	tracker := NewFetchTracker()

	firstCtx, first := tracker.Begin(context.Background(), LevelClass)
	_, second := tracker.Begin(context.Background(), LevelClass)

	assert.ErrorIs(t, firstCtx.Err(), context.Canceled, "superseded fetch is cancelled")
	assert.Equal(t, FetchLoading, tracker.State(LevelClass).Status)

	require.NoError(t, tracker.Complete(second, "7B", nil))
	assert.ErrorIs(t, tracker.Complete(first, "7A", nil), ErrStaleSelection)

	state := tracker.State(LevelClass)
	assert.Equal(t, FetchReady, state.Status)
	assert.Equal(t, "7B", state.Data)
}

func TestFetchTrackerFailureIsolatedToLevel(t *testing.T) {
	tracker := NewFetchTracker()

	_, overview := tracker.Begin(context.Background(), LevelOverview)
	require.NoError(t, tracker.Complete(overview, "school", nil))

	_, class := tracker.Begin(context.Background(), LevelClass)
	require.NoError(t, tracker.Complete(class, nil, errors.New("record store unavailable")))

	assert.Equal(t, FetchFailed, tracker.State(LevelClass).Status)
	assert.Equal(t, "record store unavailable", tracker.State(LevelClass).Error)
	assert.Equal(t, FetchReady, tracker.State(LevelOverview).Status)
	assert.Equal(t, "school", tracker.State(LevelOverview).Data)
}

func TestFetchTrackerFailureMarksCarriedDataStale(t *testing.T) {
	tracker := NewFetchTracker()

	_, first := tracker.Begin(context.Background(), LevelClass)
	require.NoError(t, tracker.Complete(first, "7A page 1", nil))
	assert.False(t, tracker.State(LevelClass).Stale)

	_, second := tracker.Begin(context.Background(), LevelClass)
	require.NoError(t, tracker.Complete(second, nil, errors.New("record store unavailable")))
	state := tracker.State(LevelClass)
	assert.Equal(t, FetchFailed, state.Status)
	assert.Equal(t, "7A page 1", state.Data)
	assert.True(t, state.Stale)

	_, third := tracker.Begin(context.Background(), LevelClass)
	require.NoError(t, tracker.Complete(third, "7A page 2", nil))
	state = tracker.State(LevelClass)
	assert.Equal(t, "7A page 2", state.Data)
	assert.False(t, state.Stale)

	_, item := tracker.Begin(context.Background(), LevelItem)
	require.NoError(t, tracker.Complete(item, nil, errors.New("timeout")))
	assert.False(t, tracker.State(LevelItem).Stale, "nothing carried, nothing stale")
}

func TestFetchTrackerCompleteTwiceIsStale(t *testing.T) {
	tracker := NewFetchTracker()
	ctx, ticket := tracker.Begin(context.Background(), LevelStudent)

	require.NoError(t, tracker.Complete(ticket, 1, nil))
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "context released on completion")
	assert.ErrorIs(t, tracker.Complete(ticket, 2, nil), ErrStaleSelection)
	assert.Equal(t, 1, tracker.State(LevelStudent).Data)
}

func TestFetchTrackerForget(t *testing.T) {
	tracker := NewFetchTracker()
	ctx, ticket := tracker.Begin(context.Background(), LevelItem)
	tracker.Forget(LevelItem)

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.ErrorIs(t, tracker.Complete(ticket, nil, nil), ErrStaleSelection)
	assert.Equal(t, FetchIdle, tracker.State(LevelItem).Status)
}
