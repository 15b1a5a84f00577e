// Package performance keeps rolling, per-zone and whole-game statistics
// over answered challenges.
package performance

import (
	"time"

	"github.com/verte-zerg/learnsignals/internal/event"
	"github.com/verte-zerg/learnsignals/internal/model"
)

// DefaultWindow is the size of the recent window.
const DefaultWindow = 5

// TierSource reports the current tier for zone and game snapshots.
type TierSource func() model.Tier

type counters struct {
	attempts int
	correct  int
	timeSum  float64
	timeSeen int
}

func (c *counters) add(correct bool, responseTime float64) {
	c.attempts++
	if correct {
		c.correct++
	}
	if responseTime > 0 {
		c.timeSum += responseTime
		c.timeSeen++
	}
}

func (c counters) snapshot(tier model.Tier, zone int) model.MetricsSnapshot {
	s := model.MetricsSnapshot{
		Attempts:  c.attempts,
		Correct:   c.correct,
		Incorrect: c.attempts - c.correct,
		Tier:      tier,
		Zone:      zone,
	}
	if c.attempts > 0 {
		s.AccuracyRate = float64(c.correct) / float64(c.attempts)
	}
	if c.timeSeen > 0 {
		s.MeanResponseTime = c.timeSum / float64(c.timeSeen)
	}
	return s
}

// Tracker records attempts. It is owned by the logical thread.
type Tracker struct {
	window  int
	tier    TierSource
	now     func() time.Time
	zone    int
	history []model.AttemptRecord
	recent  []model.AttemptRecord

	zoneCounts counters
	zoneMean   float64
	gameCounts counters

	updated event.Feed[model.MetricsSnapshot]
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithWindow sets the recent window size.
func WithWindow(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.window = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New returns an empty Tracker. tier may be nil, in which case zone and game
// snapshots report TierLow.
func New(tier TierSource, opts ...Option) *Tracker {
	t := &Tracker{window: DefaultWindow, tier: tier, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Updated fires after every recorded attempt with the zone snapshot.
func (t *Tracker) Updated() *event.Feed[model.MetricsSnapshot] {
	return &t.updated
}

// SetZone sets the zone that subsequent attempts belong to.
func (t *Tracker) SetZone(zone int) {
	t.zone = zone
}

// Zone returns the current zone index.
func (t *Tracker) Zone() int {
	return t.zone
}

// RecordAttempt appends one outcome to every window.
func (t *Tracker) RecordAttempt(sign string, correct bool, responseTime float64, tier model.Tier) model.AttemptRecord {
	if responseTime < 0 {
		responseTime = 0
	}
	rec := model.AttemptRecord{
		SignName:     sign,
		Correct:      correct,
		ResponseTime: responseTime,
		Tier:         tier,
		Zone:         t.zone,
		Timestamp:    t.now(),
	}
	t.history = append(t.history, rec)
	t.recent = append(t.recent, rec)
	if len(t.recent) > t.window {
		t.recent = append(t.recent[:0:0], t.recent[len(t.recent)-t.window:]...)
	}

	t.zoneCounts.attempts++
	if correct {
		t.zoneCounts.correct++
	}
	if responseTime > 0 {
		t.zoneMean = t.zoneMeanFromHistory()
	}
	t.gameCounts.add(correct, responseTime)

	t.updated.Emit(t.ZoneMetrics())
	return rec
}

func (t *Tracker) zoneMeanFromHistory() float64 {
	var sum float64
	n := 0
	for _, rec := range t.history {
		if rec.Zone == t.zone && rec.ResponseTime > 0 {
			sum += rec.ResponseTime
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// RecentMetrics returns the snapshot of the recent window. Its tier is the
// tier of the newest attempt, TierLow when empty.
func (t *Tracker) RecentMetrics() model.MetricsSnapshot {
	var c counters
	tier := model.TierLow
	for _, rec := range t.recent {
		c.add(rec.Correct, rec.ResponseTime)
		tier = rec.Tier
	}
	return c.snapshot(tier, t.zone)
}

// ZoneMetrics returns the snapshot of the current zone.
func (t *Tracker) ZoneMetrics() model.MetricsSnapshot {
	s := t.zoneCounts.snapshot(t.currentTier(), t.zone)
	s.MeanResponseTime = t.zoneMean
	return s
}

// GameMetrics returns the snapshot of the whole game.
func (t *Tracker) GameMetrics() model.MetricsSnapshot {
	return t.gameCounts.snapshot(t.currentTier(), t.zone)
}

func (t *Tracker) currentTier() model.Tier {
	if t.tier == nil {
		return model.TierLow
	}
	return t.tier()
}

// History returns a copy of every attempt since the last ResetGame.
func (t *Tracker) History() []model.AttemptRecord {
	return append([]model.AttemptRecord(nil), t.history...)
}

// ClearRecent empties the recent window only.
func (t *Tracker) ClearRecent() {
	t.recent = nil
}

// ResetZoneMetrics clears the recent window and zone counters. History and
// game counters are kept.
func (t *Tracker) ResetZoneMetrics() {
	t.recent = nil
	t.zoneCounts = counters{}
	t.zoneMean = 0
}

// ResetGame clears everything.
func (t *Tracker) ResetGame() {
	t.history = nil
	t.recent = nil
	t.zoneCounts = counters{}
	t.zoneMean = 0
	t.gameCounts = counters{}
	t.zone = 0
}
