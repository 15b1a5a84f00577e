// Package devserver is an in-memory implementation of the LearnSignals
// backend used for local play and tests.
//
// The predictor applies the accuracy rule the production service falls back
// to when its model is missing, and feedback is canned text built from the
// request.
package devserver

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/logging"
)

// Version is reported by GET /.
const Version = "2.0.0"

// SessionRecord is one session as stored by the server.
type SessionRecord struct {
	ID       int
	Create   api.CreateSessionRequest
	Update   *api.UpdateSessionRequest
	Created  time.Time
	Finished time.Time
}

// Snapshot is a copy of everything the server received.
type Snapshot struct {
	Sessions    []SessionRecord
	Attempts    []api.AttemptRequest
	Errors      []api.ErrorRequest
	Adjustments []api.AdjustmentRequest
	Requests    map[string]int
}

// Server holds the backend state.
type Server struct {
	mu sync.Mutex

	nextSession int
	students    map[int]struct{}
	sessions    map[int]*SessionRecord
	order       []int
	attempts    []api.AttemptRequest
	errors      []api.ErrorRequest
	adjustments []api.AdjustmentRequest
	requests    map[string]int

	config          api.ConfigurationResponse
	feedbackEnabled bool
	failures        map[string]int
	delays          map[string]time.Duration

	log *logging.Logger
}

// New returns a server with student 1 registered and default configuration.
func New(log *logging.Logger) *Server {
	minRounds := 4
	useML := true
	return &Server{
		nextSession: 1,
		students:    map[int]struct{}{1: {}},
		sessions:    map[int]*SessionRecord{},
		requests:    map[string]int{},
		config: api.ConfigurationResponse{
			SenalesDificultadBaja:      3,
			SenalesDificultadMedia:     5,
			SenalesDificultadAlta:      7,
			TiempoDificultadBaja:       12,
			TiempoDificultadMedia:      8,
			TiempoDificultadAlta:       5,
			DificultadInicial:          0,
			RondasPorZona:              6,
			RondasMinimasParaCompletar: &minRounds,
			TasaAciertosMinima:         0.7,
			UsarModeloML:               &useML,
		},
		feedbackEnabled: true,
		failures:        map[string]int{},
		delays:          map[string]time.Duration{},
		log:             log.Named("devserver"),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.injectFaults)

	r.Get(api.PathRoot, s.handleRoot)
	r.Get(api.PathHealth, s.handleHealth)
	r.Post(api.PathPredict, s.handlePredict)
	r.Post(api.PathFeedback, s.handleFeedback)
	r.Route(api.PathSessions, func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)
		r.Put("/{id}", s.handleUpdateSession)
	})
	r.Post(api.PathAttempts, s.handleAttempt)
	r.Post(api.PathErrors, s.handleError)
	r.Post(api.PathAdjustments, s.handleAdjustment)
	r.Get(api.PathConfiguration, s.handleConfiguration)
	return r
}

// NewHTTPServer wraps the handler with the timeouts used by the CLI.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// AddStudent registers a student id.
func (s *Server) AddStudent(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[id] = struct{}{}
}

// SetFeedbackEnabled toggles the feedback generator. When disabled the
// endpoint answers success=false with fallback text.
func (s *Server) SetFeedbackEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedbackEnabled = enabled
}

// SetConfiguration replaces the GET /configuracion payload.
func (s *Server) SetConfiguration(cfg api.ConfigurationResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// SetFailure makes a route answer with status. Routes are keyed as
// "METHOD /path", with "/sesiones/{id}" for session updates. Zero clears.
func (s *Server) SetFailure(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// SetDelay holds a route's responses for d. Zero clears.
func (s *Server) SetDelay(route string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.delays, route)
		return
	}
	s.delays[route] = d
}

// Snapshot returns a copy of the received data.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Attempts:    append([]api.AttemptRequest(nil), s.attempts...),
		Errors:      append([]api.ErrorRequest(nil), s.errors...),
		Adjustments: append([]api.AdjustmentRequest(nil), s.adjustments...),
		Requests:    make(map[string]int, len(s.requests)),
	}
	for _, id := range s.order {
		rec := *s.sessions[id]
		if rec.Update != nil {
			upd := *rec.Update
			rec.Update = &upd
		}
		snap.Sessions = append(snap.Sessions, rec)
	}
	for k, v := range s.requests {
		snap.Requests[k] = v
	}
	return snap
}

func routeKey(r *http.Request) string {
	path := r.URL.Path
	if strings.HasPrefix(path, api.PathSessions+"/") && len(path) > len(api.PathSessions)+1 {
		path = api.PathSessions + "/{id}"
	}
	return r.Method + " " + path
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"route", routeKey(r),
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) injectFaults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r)
		s.mu.Lock()
		s.requests[key]++
		status := s.failures[key]
		delay := s.delays[key]
		s.mu.Unlock()

		if delay > 0 {
			if err := sleepCtx(r.Context(), delay); err != nil {
				return
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
