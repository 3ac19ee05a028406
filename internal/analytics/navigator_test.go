package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigatorStartsAtOverview(t *testing.T) {
	nav := NewNavigator()
	assert.Equal(t, LevelOverview, nav.Current().Level)
	assert.Equal(t, 1, nav.Depth())

	_, err := nav.Pop()
	assert.ErrorIs(t, err, ErrAtRoot)
}

func TestNavigatorTransitions(t *testing.T) {
	nav := NewNavigator()

	_, err := nav.Push(LevelItem, "quiz-1")
	assert.ErrorIs(t, err, ErrInvalidTransition, "overview cannot skip to item")

	_, err = nav.Push(LevelClass, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	lateral, err := nav.Push(LevelStudent, "s1")
	require.NoError(t, err, "student is reachable from overview leaderboards")
	assert.Equal(t, 2, lateral.Depth())

	nav, err = nav.Push(LevelClass, "7A")
	require.NoError(t, err)
	nav, err = nav.Push(LevelStudent, "s1")
	require.NoError(t, err)
	nav, err = nav.Push(LevelItem, "quiz-1")
	require.NoError(t, err)
	nav, err = nav.Push(LevelResponse, "r-9")
	require.NoError(t, err)
	assert.Equal(t, 5, nav.Depth())

	_, err = nav.Push(LevelClass, "7B")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNavigatorPushResetsChildAndPopRestoresParent(t *testing.T) {
	overviewFilters := DefaultFilterState().WithSearch("7").WithPage(3)
	nav := NewNavigator().WithFilters(overviewFilters).WithContext(SelectionContext{ScrollOffset: 420, HighlightedID: "7A"})

	child, err := nav.Push(LevelClass, "7A")
	require.NoError(t, err)
	assert.Equal(t, DefaultFilterState(), child.Current().Filters)

	child = child.WithFilters(DefaultFilterState().WithRisk("high"))
	back, err := child.Pop()
	require.NoError(t, err)

	top := back.Current()
	assert.Equal(t, LevelOverview, top.Level)
	assert.Equal(t, "7", top.Filters.SearchText)
	assert.Equal(t, 1, top.Filters.Page, "new query resets page")
	assert.Equal(t, 420, top.Context.ScrollOffset)
	assert.Equal(t, "7A", top.Context.HighlightedID)

	again, err := back.Push(LevelClass, "7A")
	require.NoError(t, err)
	assert.Empty(t, again.Current().Filters.Risk, "descending is destructive to child filters")
}

func TestNavigatorIsImmutable(t *testing.T) {
	root := NewNavigator()
	pushed, err := root.Push(LevelClass, "7A")
	require.NoError(t, err)

	_ = pushed.WithFilters(DefaultFilterState().WithSearch("x"))
	assert.Equal(t, 1, root.Depth())
	assert.Empty(t, pushed.Current().Filters.SearchText)

	popped, err := pushed.Pop()
	require.NoError(t, err)
	_, err = popped.Push(LevelStudent, "s1")
	require.NoError(t, err)
	assert.Equal(t, LevelClass, pushed.Current().Level)
}

func TestNavigatorFilterPageChangeKeepsQuery(t *testing.T) {
	nav := NewNavigator().WithFilters(DefaultFilterState().WithSearch("x"))
	gen := nav.Current().Generation

	paged := nav.WithFilters(nav.Current().Filters.WithPage(2))
	assert.Equal(t, 2, paged.Current().Filters.Page)
	assert.Greater(t, paged.Current().Generation, gen)

	same := paged.WithFilters(paged.Current().Filters)
	assert.Equal(t, paged.Current().Generation, same.Current().Generation)
}

func TestNavigatorGenerationsIncrease(t *testing.T) {
	nav := NewNavigator()
	a, err := nav.Push(LevelClass, "7A")
	require.NoError(t, err)
	back, err := a.Pop()
	require.NoError(t, err)
	b, err := back.Push(LevelClass, "7B")
	require.NoError(t, err)
	assert.Greater(t, b.Current().Generation, a.Current().Generation)
}

func TestNavigatorSnapshotRoundTrip(t *testing.T) {
	nav, err := NewNavigator().Push(LevelClass, "7A")
	require.NoError(t, err)
	nav = nav.WithFilters(DefaultFilterState().WithRisk("high"))

	payload, err := json.Marshal(nav.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(payload, &snap))
	restored, err := Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, nav.Path(), restored.Path())

	next, err := restored.Push(LevelStudent, "s1")
	require.NoError(t, err)
	assert.Greater(t, next.Current().Generation, nav.Current().Generation)
}

func TestRestoreRejectsIllegalPath(t *testing.T) {
	_, err := Restore(Snapshot{Frames: []Frame{{Level: LevelOverview}, {Level: LevelResponse, ID: "r"}}})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Restore(Snapshot{Frames: []Frame{{Level: LevelClass, ID: "7A"}}})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	nav, err := Restore(Snapshot{})
	require.NoError(t, err)
	assert.Equal(t, LevelOverview, nav.Current().Level)
}
