package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/learnsignals/internal/catalog"
	"github.com/verte-zerg/learnsignals/internal/config"
	"github.com/verte-zerg/learnsignals/internal/difficulty"
	"github.com/verte-zerg/learnsignals/internal/dispatch"
	"github.com/verte-zerg/learnsignals/internal/game"
	"github.com/verte-zerg/learnsignals/internal/generator"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/metrics"
	"github.com/verte-zerg/learnsignals/internal/mistakes"
	"github.com/verte-zerg/learnsignals/internal/performance"
	"github.com/verte-zerg/learnsignals/internal/predict"
	"github.com/verte-zerg/learnsignals/internal/stats"
	"github.com/verte-zerg/learnsignals/internal/store"
)

// app is one wired game. All components share the queue as their
// logical thread.
type app struct {
	settings config.Settings
	log      *logging.Logger
	queue    *dispatch.Queue
	catalog  *catalog.Catalog
	client   *predict.Client
	policy   *difficulty.Policy
	svc      *metrics.Service
	perf     *performance.Tracker
	mistakes *mistakes.Tracker
	game     *game.Game
}

// newApp builds the component graph. In offline mode no metrics service is
// created and the predictor client is never probed, so the policy keeps
// its tier and feedback falls back to local text.
func newApp(s config.Settings, log *logging.Logger, gen *generator.Generator) (*app, error) {
	cat, err := catalog.Load(s.Catalog)
	if err != nil {
		return nil, err
	}
	if s.Zones > 0 {
		cat = cat.Limit(s.Zones)
	}

	q := dispatch.NewQueue()
	client, err := predict.New(predict.Options{
		PredictorURL:    s.PredictorBaseURL(),
		FeedbackURL:     s.ServerURL,
		ProbeTimeout:    s.Timeouts.Probe,
		PredictTimeout:  s.Timeouts.Predict,
		FeedbackTimeout: s.Timeouts.Feedback,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}
	policy := difficulty.New(difficulty.Options{
		Initial:   s.InitialTier,
		Configs:   s.Tiers,
		Predictor: client,
		Poster:    q,
		Logger:    log,
	})

	a := &app{settings: s, log: log, queue: q, catalog: cat, client: client, policy: policy}
	var session game.Session
	var recorder mistakes.ErrorRecorder
	if !s.Offline {
		svc, err := metrics.New(metrics.Options{
			BaseURL:        s.ServerURL,
			StudentID:      s.Student,
			ProbeTimeout:   s.Timeouts.Probe,
			SessionTimeout: s.Timeouts.Session,
			WriteTimeout:   s.Timeouts.Write,
			ConfigTimeout:  s.Timeouts.Probe,
			Poster:         q,
			Config:         policy,
			Logger:         log,
		})
		if err != nil {
			return nil, err
		}
		policy.SetRecorder(svc)
		a.svc, session, recorder = svc, svc, svc
	}

	a.perf = performance.New(policy.Tier, performance.WithWindow(s.RecentWindow))
	a.mistakes = mistakes.New(mistakes.Options{
		Feedback: predict.NewFeedbackRequester(client, q, log),
		Recorder: recorder,
		Logger:   log,
	})
	a.game, err = game.New(game.Options{
		Catalog:     cat,
		Performance: a.perf,
		Mistakes:    a.mistakes,
		Policy:      policy,
		Session:     session,
		Generator:   gen,
		InitialTier: s.InitialTier,
		Student:     s.Student,
		WeakFactor:  s.WeakFactor,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	if a.svc != nil {
		a.svc.ConfigLoaded().Subscribe(a.applyRemote)
	}
	return a, nil
}

// applyRemote adopts the backend's model switch, and its initial tier
// unless the config file chose one.
func (a *app) applyRemote(rc metrics.RemoteConfig) {
	a.policy.SetUseModel(rc.UseModel)
	if a.settings.InitialTierSet {
		return
	}
	a.game.SetInitialTier(rc.InitialTier)
}

// probeResult is the outcome of one endpoint check.
type probeResult struct {
	Name string
	URL  string
	Err  error
}

// probeAll checks predictor, feedback and metrics endpoints concurrently.
func probeAll(ctx context.Context, client *predict.Client, svc *metrics.Service) []probeResult {
	results := []probeResult{
		{Name: "predictor", URL: client.PredictorURL()},
		{Name: "feedback", URL: client.FeedbackURL()},
		{Name: "metrics", URL: svc.BaseURL()},
	}
	checks := []func(context.Context) error{client.Probe, client.ProbeFeedback, svc.Probe}
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			results[i].Err = checks[i](ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// connectAsync probes the predictor and feedback endpoints and connects
// the metrics service without blocking, giving up after wait. Results
// arrive through the queue; done runs there once everything has settled
// and may be nil. Failures are logged and play continues offline for the
// failed parts.
func (a *app) connectAsync(ctx context.Context, wait time.Duration, done func()) {
	if a.settings.Offline {
		a.log.Info("offline mode, backend not contacted")
		if done != nil {
			done()
		}
		return
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	remaining := 2
	settle := func() {
		remaining--
		if remaining > 0 {
			return
		}
		cancel()
		a.log.Info("backend status",
			"predictor", a.client.Connected(),
			"feedback", a.client.FeedbackConnected(),
			"metrics", a.svc.Connected())
		if done != nil {
			done()
		}
	}

	go func() {
		var g errgroup.Group
		g.Go(func() error { return a.client.Probe(ctx) })
		g.Go(func() error { return a.client.ProbeFeedback(ctx) })
		err := g.Wait()
		a.queue.Post(func() {
			if err != nil {
				a.log.Warn("predictor probe failed", "error", err)
			}
			settle()
		})
	}()
	a.svc.Connect(ctx, func(err error) {
		if err != nil {
			a.log.Warn("metrics service not connected", "error", err)
		}
		settle()
	})
}

// connect is connectAsync that drains the queue until the backend has
// settled or wait has passed.
func (a *app) connect(ctx context.Context, wait time.Duration) {
	settled := false
	a.connectAsync(ctx, wait, func() { settled = true })
	ctx, cancel := context.WithTimeout(ctx, wait+time.Second)
	defer cancel()
	if err := a.queue.RunUntil(ctx, func() bool { return settled }); err != nil {
		a.log.Warn("backend connect timed out", "error", err)
	}
}

// online reports whether any backend part is reachable.
func (a *app) online() bool {
	if a.svc == nil {
		return false
	}
	return a.svc.Connected() || a.client.Connected()
}

// weakSigns loads the weak-sign set from the journal when focus is on.
func (a *app) weakSigns(ctx context.Context, st *store.Store) map[string]struct{} {
	if !a.settings.FocusWeak || st == nil {
		return nil
	}
	aggs, err := st.GetWeakSigns(ctx, a.settings.WeakWindow, a.settings.Student)
	if err != nil {
		a.log.Warn("failed to load weak signs", "error", err)
		return nil
	}
	weak := stats.SelectWeakSigns(aggs, a.settings.WeakTop)
	if len(weak) == 0 {
		a.log.Info("no stats available for weak-sign focus yet")
	}
	return weak
}

// shutdown flushes pending metrics writes and waits for a finalizing
// session, bounded by wait.
func (a *app) shutdown(wait time.Duration) error {
	if a.svc == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if err := a.queue.RunUntil(ctx, func() bool { return a.svc.State() != metrics.Finalizing }); err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	if err := a.svc.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush metrics: %w", err)
	}
	a.queue.Drain()
	return nil
}
