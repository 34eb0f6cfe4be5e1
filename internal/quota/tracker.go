package quota

import (
	"fmt"
	"time"
)

// State is the persisted quota blob: four counters, each paired with
// the period key it was computed for. A counter and its key are always
// read together.
type State struct {
	MinuteHits  int    `json:"minute_hits"`
	DailyHits   int    `json:"daily_hits"`
	WeeklyHits  int    `json:"weekly_hits"`
	MonthlyHits int    `json:"monthly_hits"`
	LastMinute  string `json:"last_minute"`
	LastDay     string `json:"last_day"`
	LastWeek    string `json:"last_week"`
	LastMonth   string `json:"last_month"`
}

// Usage is the lazily-reset view of the counters.
type Usage struct {
	Minute  int
	Daily   int
	Weekly  int
	Monthly int
}

// Limits holds the static per-period ceilings for a tracked client.
type Limits struct {
	Minute  int
	Daily   int
	Weekly  int
	Monthly int
}

// Exceeded returns the first period at or over its limit, if any.
func (u Usage) Exceeded(l Limits) (string, bool) {
	switch {
	case l.Minute > 0 && u.Minute >= l.Minute:
		return "minute", true
	case l.Daily > 0 && u.Daily >= l.Daily:
		return "daily", true
	case l.Weekly > 0 && u.Weekly >= l.Weekly:
		return "weekly", true
	case l.Monthly > 0 && u.Monthly >= l.Monthly:
		return "monthly", true
	}
	return "", false
}

// StateStore persists the quota blob. Implementations: FileStore,
// RedisStore, MemoryStore.
type StateStore interface {
	Load() (State, error)
	Save(State) error
}

// Tracker counts API hits across minute/day/week/month windows with
// lazy resets: a counter whose stored period key no longer matches the
// current one is treated as zero. There is no background timer.
//
// The tracker is a single-caller read-modify-write structure; it is not
// designed for multi-process concurrent access.
type Tracker struct {
	store StateStore
	now   func() time.Time
}

// NewTracker creates a tracker over the given state store.
func NewTracker(store StateStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// RecordHit debits one request from every window and persists the
// result. Callers invoke it once per outbound request, immediately
// before the request is sent, so quota is consumed even when the
// request subsequently fails.
func (t *Tracker) RecordHit() (State, error) {
	st, err := t.store.Load()
	if err != nil {
		return State{}, fmt.Errorf("load quota state: %w", err)
	}

	k := t.periodKeys()

	if st.LastMinute != k.minute {
		st.MinuteHits = 0
		st.LastMinute = k.minute
	}
	if st.LastDay != k.day {
		st.DailyHits = 0
		st.LastDay = k.day
	}
	if st.LastWeek != k.week {
		st.WeeklyHits = 0
		st.LastWeek = k.week
	}
	if st.LastMonth != k.month {
		st.MonthlyHits = 0
		st.LastMonth = k.month
	}

	st.MinuteHits++
	st.DailyHits++
	st.WeeklyHits++
	st.MonthlyHits++

	if err := t.store.Save(st); err != nil {
		return State{}, fmt.Errorf("save quota state: %w", err)
	}
	return st, nil
}

// Status returns the lazily-reset counters without mutating state: a
// counter whose period key is stale reads as zero.
func (t *Tracker) Status() (Usage, error) {
	st, err := t.store.Load()
	if err != nil {
		return Usage{}, fmt.Errorf("load quota state: %w", err)
	}

	k := t.periodKeys()
	u := Usage{}
	if st.LastMinute == k.minute {
		u.Minute = st.MinuteHits
	}
	if st.LastDay == k.day {
		u.Daily = st.DailyHits
	}
	if st.LastWeek == k.week {
		u.Weekly = st.WeeklyHits
	}
	if st.LastMonth == k.month {
		u.Monthly = st.MonthlyHits
	}
	return u, nil
}

type periodKeySet struct {
	minute, day, week, month string
}

func (t *Tracker) periodKeys() periodKeySet {
	now := t.now()
	year, week := now.ISOWeek()
	return periodKeySet{
		minute: now.Format("2006-01-02 15:04"),
		day:    now.Format("2006-01-02"),
		week:   fmt.Sprintf("%d-%02d", year, week),
		month:  now.Format("2006-01"),
	}
}
