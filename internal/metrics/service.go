// Package metrics owns the remote session lifecycle and delivers attempt,
// error and adjustment records to the metrics backend.
//
// All exported methods must be called from the logical thread. Network work
// runs in goroutines and reports back through the dispatcher, so session
// state is only mutated on the logical thread. Delivery is best-effort:
// failed writes are logged and dropped.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/dispatch"
	"github.com/verte-zerg/learnsignals/internal/event"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/model"
)

// NoSessionID is the session id before the backend assigns one.
const NoSessionID = -1

// Default values.
const (
	DefaultBaseURL        = "http://127.0.0.1:8000"
	DefaultStudentID      = 1
	DefaultProbeTimeout   = 5 * time.Second
	DefaultSessionTimeout = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
	DefaultConfigTimeout  = 5 * time.Second
)

// Policy conflicts. They are logged and never fatal.
var (
	ErrSessionBusy     = errors.New("session already creating or active")
	ErrNoActiveSession = errors.New("no active session")
	ErrNotConnected    = errors.New("metrics backend not connected")
)

// State is the session lifecycle state.
type State int

// Session states.
const (
	NoSession State = iota
	Creating
	Active
	Finalizing
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "NoSession"
	case Creating:
		return "Creating"
	case Active:
		return "Active"
	case Finalizing:
		return "Finalizing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configure a Service.
type Options struct {
	BaseURL        string
	StudentID      int
	ProbeTimeout   time.Duration
	SessionTimeout time.Duration
	WriteTimeout   time.Duration
	ConfigTimeout  time.Duration
	HTTPClient     *http.Client
	Poster         dispatch.Poster
	Config         ConfigSink
	Logger         *logging.Logger
}

// Finalized describes the end of a session.
type Finalized struct {
	SessionID int
	Completed bool
	Err       error
}

// Service is the session metrics client.
type Service struct {
	client    *api.Client
	studentID int
	poster    dispatch.Poster
	sink      ConfigSink
	log       *logging.Logger

	probeTimeout   time.Duration
	sessionTimeout time.Duration
	writeTimeout   time.Duration
	configTimeout  time.Duration

	state     State
	sessionID int
	connected bool
	tunables  model.Tunables

	pendingAttempts []AttemptWrite
	pendingErrors   []ErrorWrite
	closing         *closing
	next            *startRequest

	queue *writeQueue

	created      event.Feed[int]
	finalized    event.Feed[Finalized]
	configLoaded event.Feed[RemoteConfig]
}

// New returns a Service in the NoSession state.
func New(opts Options) (*Service, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client, err := api.New(api.Options{BaseURL: baseURL, HTTPClient: opts.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}
	studentID := opts.StudentID
	if studentID <= 0 {
		studentID = DefaultStudentID
	}
	poster := opts.Poster
	if poster == nil {
		poster = dispatch.Immediate{}
	}
	log := opts.Logger.Named("metrics")
	return &Service{
		client:         client,
		studentID:      studentID,
		poster:         poster,
		sink:           opts.Config,
		log:            log,
		probeTimeout:   durationOr(opts.ProbeTimeout, DefaultProbeTimeout),
		sessionTimeout: durationOr(opts.SessionTimeout, DefaultSessionTimeout),
		writeTimeout:   durationOr(opts.WriteTimeout, DefaultWriteTimeout),
		configTimeout:  durationOr(opts.ConfigTimeout, DefaultConfigTimeout),
		sessionID:      NoSessionID,
		tunables:       model.DefaultTunables(),
		queue:          newWriteQueue(client, log),
	}, nil
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// SessionCreated fires once per session with the assigned id.
func (s *Service) SessionCreated() *event.Feed[int] { return &s.created }

// SessionFinalized fires when a session leaves the Finalizing state.
func (s *Service) SessionFinalized() *event.Feed[Finalized] { return &s.finalized }

// ConfigLoaded fires after remote configuration has been applied.
func (s *Service) ConfigLoaded() *event.Feed[RemoteConfig] { return &s.configLoaded }

// State returns the session state.
func (s *Service) State() State { return s.state }

// SessionID returns the active session id or NoSessionID.
func (s *Service) SessionID() int { return s.sessionID }

// Connected reports the last known connectivity.
func (s *Service) Connected() bool { return s.connected }

// StudentID returns the student the sessions belong to.
func (s *Service) StudentID() int { return s.studentID }

// BaseURL returns the backend URL.
func (s *Service) BaseURL() string { return s.client.BaseURL() }

// PendingCounts returns the number of buffered attempts and errors.
func (s *Service) PendingCounts() (attempts, errs int) {
	return len(s.pendingAttempts), len(s.pendingErrors)
}

// InFlight returns the number of queued or sending writes.
func (s *Service) InFlight() int { return s.queue.len() }

// Flush blocks until every queued write has been attempted.
func (s *Service) Flush(ctx context.Context) error {
	return s.queue.wait(ctx)
}

// Probe checks the health endpoint without changing the connection state.
func (s *Service) Probe(ctx context.Context) error {
	return s.client.Probe(ctx, api.PathHealth, s.probeTimeout)
}

// Connect probes the backend and, when reachable, loads remote
// configuration. done runs on the logical thread and may be nil.
func (s *Service) Connect(ctx context.Context, done func(error)) {
	go func() {
		err := s.client.Probe(ctx, api.PathHealth, s.probeTimeout)
		s.poster.Post(func() {
			s.setConnected(err)
			if err != nil {
				finish(done, err)
				return
			}
			s.LoadRemoteConfiguration(ctx, done)
		})
	}()
}

func (s *Service) setConnected(err error) {
	was := s.connected
	s.connected = err == nil
	switch {
	case err != nil:
		s.log.Warn("metrics backend unreachable", "url", s.client.BaseURL(), "error", err)
	case !was:
		s.log.Info("metrics backend connected", "url", s.client.BaseURL())
	}
}

func finish(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

// closing is a finalize requested while the session was still Creating.
// It owns the writes buffered before the request.
type closing struct {
	final          model.MetricsSnapshot
	zonesCompleted int
	maxZone        int
	completed      bool
	attempts       []AttemptWrite
	errs           []ErrorWrite
}

// startRequest is a StartSession deferred until the previous session closes.
type startRequest struct {
	ctx     context.Context
	initial model.Tier
}

// StartSession creates a remote session. It is a no-op returning
// ErrSessionBusy while a session is Creating or Active. While the previous
// session is closing, the start is deferred until it has closed. When the
// backend is not known to be reachable it is probed once first.
func (s *Service) StartSession(ctx context.Context, initial model.Tier) error {
	closingPrev := s.state == Finalizing || (s.state == Creating && s.closing != nil)
	switch {
	case closingPrev && s.next == nil:
		s.next = &startRequest{ctx: ctx, initial: initial}
		s.log.Info("session start deferred until the previous session closes", "state", s.state.String())
		return nil
	case s.state != NoSession:
		s.log.Warn("start session ignored", "state", s.state.String(), "session_id", s.sessionID)
		return ErrSessionBusy
	}
	s.state = Creating
	connected := s.connected
	body := api.CreateSessionRequest{EstudianteID: s.studentID, DificultadInicial: initial.Wire()}

	go func() {
		if !connected {
			if err := s.client.Probe(ctx, api.PathHealth, s.probeTimeout); err != nil {
				s.poster.Post(func() {
					s.setConnected(err)
					s.log.Warn("session not created, backend offline", "pending_attempts", len(s.pendingAttempts))
					s.creationFailed()
				})
				return
			}
		}
		var resp api.CreateSessionResponse
		err := s.client.Post(ctx, s.sessionTimeout, api.PathSessions, body, &resp)
		s.poster.Post(func() { s.sessionCreated(resp.SesionID, err) })
	}()
	return nil
}

func (s *Service) sessionCreated(id int, err error) {
	if s.state != Creating {
		s.log.Warn("stale session creation ignored", "session_id", id, "state", s.state.String())
		return
	}
	if err != nil {
		if !api.IsSemantic(err) {
			s.connected = false
		}
		s.log.Warn("failed to create session", "error", err)
		s.creationFailed()
		return
	}
	s.connected = true
	s.sessionID = id
	s.state = Active

	attempts, errs := s.pendingAttempts, s.pendingErrors
	c := s.closing
	if c != nil {
		attempts, errs = c.attempts, c.errs
		s.closing = nil
	} else {
		s.pendingAttempts = nil
		s.pendingErrors = nil
	}
	s.log.Info("session created", "session_id", id,
		"flushed_attempts", len(attempts), "flushed_errors", len(errs))
	for _, w := range attempts {
		s.queue.enqueue(post(api.PathAttempts, w.wire(id), s.writeTimeout))
	}
	for _, w := range errs {
		s.queue.enqueue(post(api.PathErrors, w.wire(id), s.writeTimeout))
	}
	s.created.Emit(id)
	if c != nil {
		s.finalize(c.final, c.zonesCompleted, c.maxZone, c.completed)
	}
}

// creationFailed returns to NoSession. Writes owned by a finalize that was
// waiting for this session are dropped with it.
func (s *Service) creationFailed() {
	s.state = NoSession
	if c := s.closing; c != nil {
		s.closing = nil
		s.log.Warn("closed session never created, writes dropped",
			"attempts", len(c.attempts), "errors", len(c.errs))
	}
	s.startNext()
}

func (s *Service) startNext() {
	r := s.next
	if r == nil {
		return
	}
	s.next = nil
	if err := s.StartSession(r.ctx, r.initial); err != nil {
		s.log.Warn("deferred session start failed", "error", err)
	}
}

// RecordAttempt sends an attempt, or buffers it until a session exists.
func (s *Service) RecordAttempt(w AttemptWrite) {
	if s.state != Active {
		s.pendingAttempts = append(s.pendingAttempts, w)
		return
	}
	s.queue.enqueue(post(api.PathAttempts, w.wire(s.sessionID), s.writeTimeout))
}

// RecordError sends an error, or buffers it until a session exists.
func (s *Service) RecordError(w ErrorWrite) {
	if s.state != Active {
		s.pendingErrors = append(s.pendingErrors, w)
		return
	}
	s.queue.enqueue(post(api.PathErrors, w.wire(s.sessionID), s.writeTimeout))
}

// RecordAdjustment sends a tier change. It is dropped without an active
// session.
func (s *Service) RecordAdjustment(w AdjustmentWrite) {
	if s.state != Active {
		s.log.Debug("adjustment dropped, no active session", "old", w.Old.String(), "new", w.New.String())
		return
	}
	s.queue.enqueue(post(api.PathAdjustments, w.wire(s.sessionID), s.writeTimeout))
}

// FinalizeSession sends the closing update after every queued write. The
// service returns to NoSession whatever the outcome. While the session is
// still Creating, the update is sent as soon as its id is bound. A start
// deferred behind this session is dropped when it is finalized before it
// began.
func (s *Service) FinalizeSession(final model.MetricsSnapshot, zonesCompleted, maxZone int, completed bool) error {
	switch {
	case s.state == Active:
		s.finalize(final, zonesCompleted, maxZone, completed)
		return nil
	case s.next != nil:
		s.next = nil
		s.log.Info("deferred session start cancelled, writes dropped",
			"attempts", len(s.pendingAttempts), "errors", len(s.pendingErrors))
		s.pendingAttempts = nil
		s.pendingErrors = nil
		return nil
	case s.state == Creating && s.closing == nil:
		s.closing = &closing{
			final:          final,
			zonesCompleted: zonesCompleted,
			maxZone:        maxZone,
			completed:      completed,
			attempts:       s.pendingAttempts,
			errs:           s.pendingErrors,
		}
		s.pendingAttempts = nil
		s.pendingErrors = nil
		s.log.Info("finalize deferred until the session is created")
		return nil
	}
	s.log.Warn("finalize ignored", "state", s.state.String())
	return ErrNoActiveSession
}

func (s *Service) finalize(final model.MetricsSnapshot, zonesCompleted, maxZone int, completed bool) {
	s.state = Finalizing
	id := s.sessionID
	s.queue.enqueue(outgoing{
		method:  http.MethodPut,
		path:    api.SessionPath(id),
		body:    finalizeWire(final, zonesCompleted, maxZone, completed),
		timeout: s.sessionTimeout,
		done: func(err error) {
			s.poster.Post(func() { s.sessionFinalized(id, completed, err) })
		},
	})
}

func (s *Service) sessionFinalized(id int, completed bool, err error) {
	if s.state != Finalizing || s.sessionID != id {
		s.log.Warn("stale finalize ignored", "session_id", id, "current", s.sessionID, "state", s.state.String())
		return
	}
	s.state = NoSession
	s.sessionID = NoSessionID
	if err != nil {
		s.log.Warn("failed to finalize session", "session_id", id, "error", err)
	} else {
		s.log.Info("session finalized", "session_id", id, "completed", completed)
	}
	s.finalized.Emit(Finalized{SessionID: id, Completed: completed, Err: err})
	s.startNext()
}
