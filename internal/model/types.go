package model

import "time"

// AttemptRecord is one answered challenge, timeouts included.
type AttemptRecord struct {
	SignName     string
	Correct      bool
	ResponseTime float64
	Tier         Tier
	Zone         int
	Timestamp    time.Time
}

// ErrorRecord is one incorrect or timed-out answer. A nil UserAnswer marks a
// timeout. CorrectedLater and FeedbackText are filled in after creation.
type ErrorRecord struct {
	SignName       string
	UserAnswer     *string
	ResponseTime   float64
	Tier           Tier
	Zone           int
	PriorAttempts  int
	Timestamp      time.Time
	CorrectedLater bool
	FeedbackText   string
}

// TimedOut reports whether the error came from a timeout.
func (r ErrorRecord) TimedOut() bool {
	return r.UserAnswer == nil
}

// MetricsSnapshot is a derived view over a window of attempts.
type MetricsSnapshot struct {
	Attempts         int
	Correct          int
	Incorrect        int
	AccuracyRate     float64
	MeanResponseTime float64
	Tier             Tier
	Zone             int
}

// DisplayAccuracy returns the accuracy shown to players: an empty window
// reads as 100%.
func (s MetricsSnapshot) DisplayAccuracy() float64 {
	if s.Attempts == 0 {
		return 1
	}
	return s.AccuracyRate
}

// Feedback is the pedagogical explanation attached to an error.
type Feedback struct {
	Meaning      string
	MistakeCause string
	RealExample  string
	Mnemonic     string
	FullMessage  string
	Fallback     bool
}

// Sign is one traffic sign the player must recognize.
type Sign struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description" validate:"required"`
	Hint        string `yaml:"hint"`
	Category    string `yaml:"category"`
}

// Zone is a content section with its own sign pool and tier range.
type Zone struct {
	Name        string
	Description string
	Bounds      ZoneBounds
	Signs       []Sign
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Student     int
	Since       *time.Time
	Last        int
	CurveWindow int
}

// GameStats captures a finished game for the local journal.
type GameStats struct {
	ID             string
	StartedAt      time.Time
	EndedAt        time.Time
	Student        int
	RemoteSession  int
	Correct        int
	Incorrect      int
	MeanResponse   float64
	ZonesCompleted int
	MaxZone        int
	FinalTier      Tier
	Completed      bool
}

// SignStats stores per-sign stats for a game.
type SignStats struct {
	Sign         string
	Correct      int
	Incorrect    int
	Timeouts     int
	ResponseSum  float64
	ResponseSeen int
}

// SignAggregate aggregates sign stats across games.
type SignAggregate struct {
	Sign         string
	Correct      int
	Incorrect    int
	Timeouts     int
	ResponseSum  float64
	ResponseSeen int
}

// Accuracy returns the share of correct answers, 1 when the sign was never seen.
func (a SignAggregate) Accuracy() float64 {
	total := a.Correct + a.Incorrect
	if total == 0 {
		return 1
	}
	return float64(a.Correct) / float64(total)
}

// MeanResponse returns the mean response time in seconds.
func (a SignAggregate) MeanResponse() float64 {
	if a.ResponseSeen == 0 {
		return 0
	}
	return a.ResponseSum / float64(a.ResponseSeen)
}

// GameAggregate summarizes a game for reporting.
type GameAggregate struct {
	GameID         string
	EndedAt        time.Time
	Correct        int
	Incorrect      int
	MeanResponse   float64
	ZonesCompleted int
	FinalTier      Tier
	Completed      bool
}
