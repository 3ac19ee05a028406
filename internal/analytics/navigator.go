package analytics

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is returned when a push is not allowed from the current level.
	ErrInvalidTransition = errors.New("invalid drill-down transition")
	// ErrAtRoot is returned when popping the overview frame.
	ErrAtRoot = errors.New("already at overview")
)

// Level is a drill-down depth.
type Level string

const (
	LevelOverview Level = "overview"
	LevelClass    Level = "class"
	LevelStudent  Level = "student"
	LevelItem     Level = "item"
	LevelResponse Level = "response"
)

// ParseLevel validates a level name.
func ParseLevel(raw string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(raw))); l {
	case LevelOverview, LevelClass, LevelStudent, LevelItem, LevelResponse:
		return l, nil
	default:
		return "", fmt.Errorf("unknown level %q", raw)
	}
}

// student is reachable laterally from leaderboards on overview and class screens
var transitions = map[Level][]Level{
	LevelOverview: {LevelClass, LevelStudent},
	LevelClass:    {LevelStudent, LevelItem},
	LevelStudent:  {LevelItem},
	LevelItem:     {LevelResponse, LevelStudent},
}

// CanTransition reports whether to may be pushed on top of from.
func CanTransition(from, to Level) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SelectionContext is UI state restored when returning to a frame.
type SelectionContext struct {
	ScrollOffset  int    `json:"scroll_offset"`
	HighlightedID string `json:"highlighted_id,omitempty"`
}

// Frame is one entry of the drill-down stack.
type Frame struct {
	Level      Level            `json:"level"`
	ID         string           `json:"id,omitempty"`
	Filters    FilterState      `json:"filters"`
	Context    SelectionContext `json:"context"`
	Generation uint64           `json:"generation"`
}

// Navigator is an immutable drill-down stack. Every operation returns a new value.
type Navigator struct {
	frames     []Frame
	generation uint64
}

// NewNavigator starts at the overview.
func NewNavigator() Navigator {
	return Navigator{
		frames:     []Frame{{Level: LevelOverview, Filters: DefaultFilterState(), Generation: 1}},
		generation: 1,
	}
}

// Current returns the top frame.
func (n Navigator) Current() Frame {
	if len(n.frames) == 0 {
		return NewNavigator().frames[0]
	}
	return n.frames[len(n.frames)-1]
}

// Depth is the number of frames, 1 at the overview.
func (n Navigator) Depth() int {
	if len(n.frames) == 0 {
		return 1
	}
	return len(n.frames)
}

// Path returns a copy of the stack from root to current.
func (n Navigator) Path() []Frame {
	n = n.ensure()
	out := make([]Frame, len(n.frames))
	copy(out, n.frames)
	return out
}

// Push enters level for id with fresh filters.
func (n Navigator) Push(level Level, id string) (Navigator, error) {
	n = n.ensure()
	current := n.Current()
	if !CanTransition(current.Level, level) {
		return n, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Level, level)
	}
	if strings.TrimSpace(id) == "" {
		return n, fmt.Errorf("%w: %s requires an id", ErrInvalidTransition, level)
	}

	next := n.clone()
	next.generation++
	next.frames = append(next.frames, Frame{
		Level:      level,
		ID:         id,
		Filters:    DefaultFilterState(),
		Generation: next.generation,
	})
	return next, nil
}

// Pop returns to the parent frame with its filters and context intact.
func (n Navigator) Pop() (Navigator, error) {
	n = n.ensure()
	if len(n.frames) <= 1 {
		return n, ErrAtRoot
	}
	next := n.clone()
	next.frames = next.frames[:len(n.frames)-1]
	return next, nil
}

// Reset drops everything above the overview frame.
func (n Navigator) Reset() Navigator {
	n = n.ensure()
	next := n.clone()
	next.frames = next.frames[:1]
	return next
}

// WithFilters replaces the current frame's filters. The page is reset when the
// query itself changed.
func (n Navigator) WithFilters(filters FilterState) Navigator {
	n = n.ensure()
	next := n.clone()
	top := &next.frames[len(next.frames)-1]
	if !top.Filters.SameQuery(filters) {
		filters.Page = 1
	}
	filters = filters.normalized()
	if top.Filters.SameQuery(filters) && top.Filters.Page == filters.Page {
		return next
	}
	top.Filters = filters
	next.generation++
	top.Generation = next.generation
	return next
}

// WithContext stores UI context on the current frame.
func (n Navigator) WithContext(ctx SelectionContext) Navigator {
	n = n.ensure()
	next := n.clone()
	next.frames[len(next.frames)-1].Context = ctx
	return next
}

// Snapshot is the serialisable form of a navigator.
type Snapshot struct {
	Frames     []Frame `json:"frames"`
	Generation uint64  `json:"generation"`
}

// Snapshot captures the navigator for persistence.
func (n Navigator) Snapshot() Snapshot {
	n = n.ensure()
	return Snapshot{Frames: n.Path(), Generation: n.generation}
}

// Restore rebuilds a navigator, validating every transition along the path.
func Restore(s Snapshot) (Navigator, error) {
	if len(s.Frames) == 0 {
		return NewNavigator(), nil
	}
	if s.Frames[0].Level != LevelOverview {
		return Navigator{}, fmt.Errorf("%w: path must start at %s", ErrInvalidTransition, LevelOverview)
	}
	var maxGen uint64
	for i, f := range s.Frames {
		if i > 0 && !CanTransition(s.Frames[i-1].Level, f.Level) {
			return Navigator{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Frames[i-1].Level, f.Level)
		}
		if f.Generation > maxGen {
			maxGen = f.Generation
		}
	}
	if s.Generation > maxGen {
		maxGen = s.Generation
	}
	frames := make([]Frame, len(s.Frames))
	copy(frames, s.Frames)
	return Navigator{frames: frames, generation: maxGen}, nil
}

func (n Navigator) ensure() Navigator {
	if len(n.frames) == 0 {
		return NewNavigator()
	}
	return n
}

// clone copies the stack so the receiver is never mutated.
func (n Navigator) clone() Navigator {
	frames := make([]Frame, len(n.frames), len(n.frames)+1)
	copy(frames, n.frames)
	return Navigator{frames: frames, generation: n.generation}
}
