package predict

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/verte-zerg/learnsignals/internal/dispatch"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/model"
)

// ErrFeedbackBusy is returned when a feedback request is already in flight.
var ErrFeedbackBusy = errors.New("feedback request already in flight")

// FeedbackService generates feedback for one mistake.
type FeedbackService interface {
	FeedbackConnected() bool
	GenerateFeedback(ctx context.Context, req FeedbackRequest) (model.Feedback, error)
}

// FeedbackRequester runs at most one feedback request at a time and always
// resolves with either the service answer or FallbackFeedback.
type FeedbackRequester struct {
	service FeedbackService
	poster  dispatch.Poster
	sem     *semaphore.Weighted
	log     *logging.Logger
}

// NewFeedbackRequester returns a requester delivering results through poster.
func NewFeedbackRequester(service FeedbackService, poster dispatch.Poster, log *logging.Logger) *FeedbackRequester {
	return &FeedbackRequester{
		service: service,
		poster:  poster,
		sem:     semaphore.NewWeighted(1),
		log:     log.Named("feedback"),
	}
}

// Request starts a feedback request and returns immediately. done runs on
// the logical thread. While a request is pending, new requests fail with
// ErrFeedbackBusy and done is not called.
func (r *FeedbackRequester) Request(ctx context.Context, req FeedbackRequest, done func(model.Feedback)) error {
	if !r.sem.TryAcquire(1) {
		r.log.Warn("feedback request rejected, one already pending", "sign", req.Sign)
		return ErrFeedbackBusy
	}
	if r.service == nil || !r.service.FeedbackConnected() {
		r.sem.Release(1)
		fb := FallbackFeedback(req.Sign)
		r.poster.Post(func() { done(fb) })
		return nil
	}
	go func() {
		fb, err := r.service.GenerateFeedback(ctx, req)
		if err != nil {
			r.log.Warn("feedback unavailable, using local text", "sign", req.Sign, "error", err)
			fb = FallbackFeedback(req.Sign)
		}
		r.sem.Release(1)
		r.poster.Post(func() { done(fb) })
	}()
	return nil
}

// Busy reports whether a request is pending.
func (r *FeedbackRequester) Busy() bool {
	if r.sem.TryAcquire(1) {
		r.sem.Release(1)
		return false
	}
	return true
}
