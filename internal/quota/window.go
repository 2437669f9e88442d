package quota

import (
	"fmt"
	"sync"
	"time"
)

// windowKind names one of the three fixed-interval, wall-clock-aligned
// rolling counters a track maintains.
type windowKind int

const (
	windowMinute windowKind = iota
	windowHour
	windowDay
)

func (k windowKind) duration() time.Duration {
	switch k {
	case windowHour:
		return time.Hour
	case windowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func (k windowKind) String() string {
	switch k {
	case windowHour:
		return "hour"
	case windowDay:
		return "day"
	default:
		return "minute"
	}
}

// QuotaExceeded is returned when one of a track's rolling counters rejects
// a request. It carries enough detail for the gateway to surface a
// precise Retry-After to the client.
type QuotaExceeded struct {
	Window     string
	Limit      int64
	RetryAfter time.Duration
}

func (e *QuotaExceeded) Error() string {
	return fmt.Sprintf("quota exceeded: %s window (limit %d), retry after %s",
		e.Window, e.Limit, e.RetryAfter.Round(time.Second))
}

// bucket is one fixed-interval, wall-clock-aligned rolling request
// counter. Boundaries align to the window's own duration (e.g. the hour
// bucket resets on the hour) rather than sliding from first use: simpler
// than a sliding window, at the cost of an allowable burst right at the
// boundary. A zero limit means the counter never rejects.
type bucket struct {
	kind  windowKind
	limit int64

	mu    sync.Mutex
	start time.Time
	count int64
}

func newBucket(kind windowKind, limit int32) *bucket {
	return &bucket{kind: kind, limit: int64(limit)}
}

// tryIncrement is the check-and-increment as a single atomic step: either
// n is added and true is returned, or nothing changes and the caller
// learns how long until the window resets.
func (b *bucket) tryIncrement(now time.Time, n int64) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	aligned := now.Truncate(b.kind.duration())
	if !b.start.Equal(aligned) {
		b.start = aligned
		b.count = 0
	}
	if b.limit <= 0 {
		b.count += n
		return true, 0
	}
	if b.count+n > b.limit {
		return false, aligned.Add(b.kind.duration()).Sub(now)
	}
	b.count += n
	return true, 0
}

// rollback undoes a tentative increment made against the same window; a
// window that has since rolled over has nothing left to undo.
func (b *bucket) rollback(now time.Time, n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	aligned := now.Truncate(b.kind.duration())
	if !b.start.Equal(aligned) {
		return
	}
	b.count -= n
	if b.count < 0 {
		b.count = 0
	}
}

// costAccumulator is the daily cost accumulator a track keeps alongside
// its request counters, in the same integer unit as pricing.Cost.
type costAccumulator struct {
	cap int64

	mu    sync.Mutex
	start time.Time
	spent int64
}

func newCostAccumulator(cap int64) *costAccumulator {
	return &costAccumulator{cap: cap}
}

func (c *costAccumulator) add(now time.Time, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	aligned := now.Truncate(24 * time.Hour)
	if !c.start.Equal(aligned) {
		c.start = aligned
		c.spent = 0
	}
	c.spent += amount
}

func (c *costAccumulator) exceeded(now time.Time) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap <= 0 {
		return false, 0
	}
	aligned := now.Truncate(24 * time.Hour)
	spent := c.spent
	if !c.start.Equal(aligned) {
		spent = 0
	}
	if spent < c.cap {
		return false, 0
	}
	return true, aligned.Add(24 * time.Hour).Sub(now)
}

// track is the three rolling request counters plus the daily cost
// accumulator kept for one tenant key or one upstream key.
type track struct {
	minute *bucket
	hour   *bucket
	day    *bucket
	cost   *costAccumulator
}

func newTrack(perMinute, perHour, perDay int32, costCap int64) *track {
	return &track{
		minute: newBucket(windowMinute, perMinute),
		hour:   newBucket(windowHour, perHour),
		day:    newBucket(windowDay, perDay),
		cost:   newCostAccumulator(costCap),
	}
}

// checkAndIncrement runs the check-and-increment across minute, hour, and
// day in that order, rolling back any counter that already accepted the
// increment if a later, wider counter rejects it — so the tightest window
// (minute) is always the one reported when more than one would reject.
func (t *track) checkAndIncrement(now time.Time) *QuotaExceeded {
	if ok, retry := t.minute.tryIncrement(now, 1); !ok {
		return &QuotaExceeded{Window: windowMinute.String(), Limit: t.minute.limit, RetryAfter: retry}
	}
	if ok, retry := t.hour.tryIncrement(now, 1); !ok {
		t.minute.rollback(now, 1)
		return &QuotaExceeded{Window: windowHour.String(), Limit: t.hour.limit, RetryAfter: retry}
	}
	if ok, retry := t.day.tryIncrement(now, 1); !ok {
		t.minute.rollback(now, 1)
		t.hour.rollback(now, 1)
		return &QuotaExceeded{Window: windowDay.String(), Limit: t.day.limit, RetryAfter: retry}
	}
	if exceeded, retry := t.cost.exceeded(now); exceeded {
		t.minute.rollback(now, 1)
		t.hour.rollback(now, 1)
		t.day.rollback(now, 1)
		return &QuotaExceeded{Window: "cost", Limit: t.cost.cap, RetryAfter: retry}
	}
	return nil
}
