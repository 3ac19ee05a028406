package analytics

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/wellness-analytics-api/internal/models"
)

const defaultMemoSize = 256

// Memo caches Aggregate results keyed by (records fingerprint, window, grouping).
// Concurrent identical computations are collapsed into one.
type Memo struct {
	policy RiskPolicy
	cache  *lru.Cache[string, []models.Rollup]
	group  singleflight.Group
}

// NewMemo constructs a memo holding up to size entries.
func NewMemo(size int, policy RiskPolicy) (*Memo, error) {
	if size <= 0 {
		size = defaultMemoSize
	}
	cache, err := lru.New[string, []models.Rollup](size)
	if err != nil {
		return nil, fmt.Errorf("create rollup memo: %w", err)
	}
	return &Memo{policy: policy, cache: cache}, nil
}

// Policy returns the risk policy the memo aggregates with.
func (m *Memo) Policy() RiskPolicy {
	return m.policy
}

// Aggregate returns the rollups for records, computing them at most once per key.
// The returned slice is owned by the caller. The bool reports a memo hit.
func (m *Memo) Aggregate(records []models.EngagementRecord, window Window, groupBy GroupBy) ([]models.Rollup, bool) {
	key := memoKey(Fingerprint(records), window, groupBy)
	if cached, ok := m.cache.Get(key); ok {
		return cloneRollups(cached), true
	}

	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		rollups := Aggregate(records, groupBy, m.policy)
		m.cache.Add(key, rollups)
		return rollups, nil
	})
	return cloneRollups(v.([]models.Rollup)), false
}

// Len reports the number of memoized entries.
func (m *Memo) Len() int {
	return m.cache.Len()
}

// Purge drops every memoized entry.
func (m *Memo) Purge() {
	m.cache.Purge()
}

func memoKey(fingerprint uint64, window Window, groupBy GroupBy) string {
	return strconv.FormatUint(fingerprint, 16) + "|" + window.Key() + "|" + string(groupBy)
}

func cloneRollups(in []models.Rollup) []models.Rollup {
	out := make([]models.Rollup, len(in))
	copy(out, in)
	return out
}

// Fingerprint hashes every field that influences a rollup. Record order matters.
func Fingerprint(records []models.EngagementRecord) uint64 {
	h := xxhash.New()
	buf := make([]byte, 0, 128)
	for _, r := range records {
		buf = buf[:0]
		buf = append(buf, r.StudentID...)
		buf = append(buf, 0)
		buf = append(buf, r.ClassID...)
		buf = append(buf, 0)
		buf = append(buf, r.SchoolID...)
		buf = append(buf, 0)
		for _, ch := range models.Channels {
			c := r.Channel(ch)
			buf = strconv.AppendInt(buf, int64(c.Assigned), 10)
			buf = append(buf, ',')
			buf = strconv.AppendInt(buf, int64(c.Completed), 10)
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(r.DailyAppOpenings), 10)
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, int64(r.DailyStreak), 10)
		buf = append(buf, ',')
		if r.WellbeingScore != nil {
			buf = strconv.AppendFloat(buf, *r.WellbeingScore, 'g', -1, 64)
		} else {
			buf = append(buf, '-')
		}
		buf = append(buf, '\n')
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}
