// Package mistakes records incorrect and timed-out answers and attaches
// feedback to them.
package mistakes

import (
	"context"
	"errors"
	"time"

	"github.com/verte-zerg/learnsignals/internal/event"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/metrics"
	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/predict"
)

// FeedbackSource produces feedback for one mistake without blocking.
type FeedbackSource interface {
	Request(ctx context.Context, req predict.FeedbackRequest, done func(model.Feedback)) error
}

// ErrorRecorder persists mistakes.
type ErrorRecorder interface {
	RecordError(metrics.ErrorWrite)
}

// ErrorInput describes one mistake. A nil Answer is a timeout.
type ErrorInput struct {
	Sign         string
	Answer       *string
	ResponseTime float64
	Tier         model.Tier
	Zone         int
}

// FeedbackResult pairs a record with the feedback attached to it.
type FeedbackResult struct {
	Record   *model.ErrorRecord
	Feedback model.Feedback
}

// Options configure a Tracker. Every field is optional.
type Options struct {
	Feedback FeedbackSource
	Recorder ErrorRecorder
	Logger   *logging.Logger
	Now      func() time.Time
}

// Tracker is owned by the logical thread.
type Tracker struct {
	feedback FeedbackSource
	recorder ErrorRecorder
	log      *logging.Logger
	now      func() time.Time

	history []*model.ErrorRecord
	session []*model.ErrorRecord
	repeats map[string]int

	detected      event.Feed[*model.ErrorRecord]
	feedbackReady event.Feed[FeedbackResult]
}

// New returns an empty Tracker.
func New(opts Options) *Tracker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		feedback: opts.Feedback,
		recorder: opts.Recorder,
		log:      opts.Logger.Named("mistakes"),
		now:      now,
		repeats:  make(map[string]int),
	}
}

// Detected fires for every new record.
func (t *Tracker) Detected() *event.Feed[*model.ErrorRecord] { return &t.detected }

// FeedbackReady fires when feedback has been attached to a record.
func (t *Tracker) FeedbackReady() *event.Feed[FeedbackResult] { return &t.feedbackReady }

// RecordError stores a mistake, forwards it to the recorder and requests
// feedback. The per-sign counter is bumped before it is copied into the
// record, so the first mistake on a sign has PriorAttempts 1.
func (t *Tracker) RecordError(ctx context.Context, in ErrorInput) *model.ErrorRecord {
	t.repeats[in.Sign]++
	rec := &model.ErrorRecord{
		SignName:      in.Sign,
		UserAnswer:    in.Answer,
		ResponseTime:  in.ResponseTime,
		Tier:          in.Tier,
		Zone:          in.Zone,
		PriorAttempts: t.repeats[in.Sign],
		Timestamp:     t.now(),
	}
	t.history = append(t.history, rec)
	t.session = append(t.session, rec)

	if t.recorder != nil {
		t.recorder.RecordError(metrics.ErrorWrite{
			Sign:          rec.SignName,
			Answer:        rec.UserAnswer,
			ResponseTime:  rec.ResponseTime,
			Zone:          rec.Zone,
			Tier:          rec.Tier,
			PriorAttempts: rec.PriorAttempts,
		})
	}
	t.log.Debug("mistake recorded", "sign", rec.SignName, "timeout", rec.TimedOut(),
		"prior_attempts", rec.PriorAttempts)
	t.detected.Emit(rec)
	t.requestFeedback(ctx, rec)
	return rec
}

// RecordTimeout stores a timeout whose response time is the round limit.
func (t *Tracker) RecordTimeout(ctx context.Context, sign string, timeLimit float64, tier model.Tier, zone int) *model.ErrorRecord {
	return t.RecordError(ctx, ErrorInput{Sign: sign, ResponseTime: timeLimit, Tier: tier, Zone: zone})
}

func (t *Tracker) requestFeedback(ctx context.Context, rec *model.ErrorRecord) {
	if t.feedback == nil {
		return
	}
	req := predict.FeedbackRequest{
		Sign:          rec.SignName,
		Answer:        rec.UserAnswer,
		ResponseTime:  rec.ResponseTime,
		Tier:          rec.Tier,
		Zone:          rec.Zone,
		PriorAttempts: rec.PriorAttempts,
	}
	err := t.feedback.Request(ctx, req, func(fb model.Feedback) {
		rec.FeedbackText = fb.FullMessage
		t.feedbackReady.Emit(FeedbackResult{Record: rec, Feedback: fb})
	})
	switch {
	case errors.Is(err, predict.ErrFeedbackBusy):
		t.log.Debug("feedback skipped, request pending", "sign", rec.SignName)
	case err != nil:
		t.log.Warn("feedback request failed", "sign", rec.SignName, "error", err)
	}
}

// MarkCorrected flags the most recent uncorrected session record for sign.
// It reports whether a record was flagged.
func (t *Tracker) MarkCorrected(sign string) bool {
	for i := len(t.session) - 1; i >= 0; i-- {
		rec := t.session[i]
		if rec.SignName == sign && !rec.CorrectedLater {
			rec.CorrectedLater = true
			return true
		}
	}
	return false
}

// ResetSession clears the session list and the repeat counters. History is
// kept.
func (t *Tracker) ResetSession() {
	t.session = nil
	t.repeats = make(map[string]int)
}

// History returns every record since the tracker was created.
func (t *Tracker) History() []*model.ErrorRecord {
	return append([]*model.ErrorRecord(nil), t.history...)
}

// Session returns the records of the current session.
func (t *Tracker) Session() []*model.ErrorRecord {
	return append([]*model.ErrorRecord(nil), t.session...)
}

// SessionErrorCount returns the number of mistakes in the session.
func (t *Tracker) SessionErrorCount() int { return len(t.session) }

// RepeatCount returns the per-sign counter for the session.
func (t *Tracker) RepeatCount(sign string) int { return t.repeats[sign] }
