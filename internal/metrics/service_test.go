package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/devserver"
	"github.com/verte-zerg/learnsignals/internal/dispatch"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/model"
)

type fakeSink struct {
	cfgs    model.TierConfigs
	applied int
}

func (f *fakeSink) Configs() model.TierConfigs { return f.cfgs }

func (f *fakeSink) ApplyConfigs(c model.TierConfigs) error {
	f.cfgs = c
	f.applied++
	return nil
}

type harness struct {
	srv  *devserver.Server
	svc  *Service
	q    *dispatch.Queue
	sink *fakeSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := devserver.New(logging.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	q := dispatch.NewQueue()
	sink := &fakeSink{cfgs: model.DefaultTierConfigs()}
	svc, err := New(Options{BaseURL: ts.URL, Poster: q, Config: sink})
	require.NoError(t, err)
	return &harness{srv: srv, svc: svc, q: q, sink: sink}
}

func (h *harness) runUntil(t *testing.T, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, h.q.RunUntil(ctx, cond))
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Flush(ctx))
}

func (h *harness) startActive(t *testing.T) {
	t.Helper()
	require.NoError(t, h.svc.StartSession(context.Background(), model.TierLow))
	h.runUntil(t, func() bool { return h.svc.State() == Active })
}

func strPtr(s string) *string { return &s }

func TestWritesBeforeSessionAreFlushedInOrder(t *testing.T) {
	h := newHarness(t)
	h.svc.RecordAttempt(AttemptWrite{Sign: "Pare", Correct: false, Answer: strPtr("Ceda el paso"), Round: 1})
	h.svc.RecordAttempt(AttemptWrite{Sign: "No pase", Correct: true, Answer: strPtr("No pase"), Round: 1})
	h.svc.RecordError(ErrorWrite{Sign: "Pare", Answer: strPtr("Ceda el paso"), PriorAttempts: 1})
	h.svc.RecordError(ErrorWrite{Sign: "Curva", ResponseTime: 12})

	attempts, errs := h.svc.PendingCounts()
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, errs)
	assert.Empty(t, h.srv.Snapshot().Attempts)

	var created []int
	h.svc.SessionCreated().Subscribe(func(id int) { created = append(created, id) })
	h.startActive(t)
	h.flush(t)

	snap := h.srv.Snapshot()
	require.Len(t, snap.Attempts, 2)
	assert.Equal(t, "Pare", snap.Attempts[0].NombreSenal)
	assert.Equal(t, "No pase", snap.Attempts[1].NombreSenal)
	for _, a := range snap.Attempts {
		assert.Equal(t, h.svc.SessionID(), a.SesionID)
	}
	require.Len(t, snap.Errors, 2)
	assert.Equal(t, api.ErrorKindConfusion, snap.Errors[0].TipoError)
	assert.Equal(t, api.ErrorKindTimeout, snap.Errors[1].TipoError)
	assert.Equal(t, api.TimeoutAnswer, snap.Errors[1].RespuestaUsuario)
	assert.Equal(t, []int{h.svc.SessionID()}, created)

	attempts, errs = h.svc.PendingCounts()
	assert.Zero(t, attempts)
	assert.Zero(t, errs)
}

func TestStartSessionTwiceCreatesOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := 0
	h.svc.SessionCreated().Subscribe(func(int) { created++ })

	require.NoError(t, h.svc.StartSession(ctx, model.TierLow))
	assert.Equal(t, Creating, h.svc.State())
	assert.ErrorIs(t, h.svc.StartSession(ctx, model.TierLow), ErrSessionBusy)

	h.runUntil(t, func() bool { return h.svc.State() == Active })
	assert.ErrorIs(t, h.svc.StartSession(ctx, model.TierLow), ErrSessionBusy)
	assert.Len(t, h.srv.Snapshot().Sessions, 1)
	assert.Equal(t, 1, created)
}

func TestStartSessionOfflineReturnsToNoSession(t *testing.T) {
	h := newHarness(t)
	h.srv.SetFailure("GET /health", http.StatusServiceUnavailable)
	h.svc.RecordAttempt(AttemptWrite{Sign: "Pare"})

	require.NoError(t, h.svc.StartSession(context.Background(), model.TierLow))
	h.runUntil(t, func() bool { return h.svc.State() == NoSession })

	snap := h.srv.Snapshot()
	assert.Equal(t, 1, snap.Requests["GET /health"])
	assert.Zero(t, snap.Requests["POST /sesiones"])
	assert.False(t, h.svc.Connected())
	attempts, _ := h.svc.PendingCounts()
	assert.Equal(t, 1, attempts)
}

func TestCreationFailureReturnsToNoSession(t *testing.T) {
	h := newHarness(t)
	h.srv.SetFailure("POST /sesiones", http.StatusInternalServerError)
	require.NoError(t, h.svc.StartSession(context.Background(), model.TierLow))
	h.runUntil(t, func() bool { return h.svc.State() == NoSession })
	assert.Equal(t, NoSessionID, h.svc.SessionID())
}

func TestFinalizeFailureStillReturnsToNoSession(t *testing.T) {
	h := newHarness(t)
	h.startActive(t)
	h.srv.SetFailure("PUT /sesiones/{id}", http.StatusInternalServerError)

	var fin []Finalized
	h.svc.SessionFinalized().Subscribe(func(f Finalized) { fin = append(fin, f) })
	final := model.MetricsSnapshot{Attempts: 4, Correct: 3, Incorrect: 1, Tier: model.TierMedium}
	require.NoError(t, h.svc.FinalizeSession(final, 1, 0, false))
	assert.Equal(t, Finalizing, h.svc.State())
	h.runUntil(t, func() bool { return h.svc.State() == NoSession })

	require.Len(t, fin, 1)
	assert.Error(t, fin[0].Err)
	assert.Equal(t, NoSessionID, h.svc.SessionID())

	h.srv.SetFailure("PUT /sesiones/{id}", 0)
	h.startActive(t)
	assert.Len(t, h.srv.Snapshot().Sessions, 2)
}

func TestFinalizeSendsAfterQueuedWrites(t *testing.T) {
	h := newHarness(t)
	h.startActive(t)
	h.svc.RecordAttempt(AttemptWrite{Sign: "Pare", Correct: true})
	final := model.MetricsSnapshot{Attempts: 1, Correct: 1, MeanResponseTime: 2.5, Tier: model.TierHigh}
	require.NoError(t, h.svc.FinalizeSession(final, 3, 2, true))
	h.runUntil(t, func() bool { return h.svc.State() == NoSession })

	snap := h.srv.Snapshot()
	require.Len(t, snap.Attempts, 1)
	require.Len(t, snap.Sessions, 1)
	upd := snap.Sessions[0].Update
	require.NotNil(t, upd)
	assert.Equal(t, 1, upd.TotalAciertos)
	assert.Equal(t, 3, upd.ZonasCompletadas)
	assert.Equal(t, 2, upd.ZonaMaximaAlcanzada)
	assert.Equal(t, 2, upd.DificultadFinal)
	assert.True(t, upd.Completada)
}

func TestFinalizeWithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.svc.FinalizeSession(model.MetricsSnapshot{}, 0, 0, false), ErrNoActiveSession)
	assert.Equal(t, NoSession, h.svc.State())
}

func TestAdjustmentsOnlyWhileActive(t *testing.T) {
	h := newHarness(t)
	adj := AdjustmentWrite{Old: model.TierLow, New: model.TierHigh, Reason: api.AdjustmentReasonModel, AccuracyRate: 1, Round: 1}
	h.svc.RecordAdjustment(adj)
	h.startActive(t)
	h.svc.RecordAdjustment(adj)
	h.flush(t)

	snap := h.srv.Snapshot()
	require.Len(t, snap.Adjustments, 1)
	assert.Equal(t, "model", snap.Adjustments[0].Motivo)
	assert.Equal(t, 0, snap.Adjustments[0].DificultadAnterior)
	assert.Equal(t, 2, snap.Adjustments[0].DificultadNueva)
}

func TestSingleWorkerDrainsInOrder(t *testing.T) {
	h := newHarness(t)
	h.startActive(t)
	h.flush(t)
	h.srv.SetDelay("POST /intentos", 20*time.Millisecond)

	before := h.svc.queue.workerStarts()
	signs := []string{"a", "b", "c", "d", "e"}
	for _, s := range signs {
		h.svc.RecordAttempt(AttemptWrite{Sign: s})
	}
	assert.Equal(t, before+1, h.svc.queue.workerStarts())
	h.flush(t)

	snap := h.srv.Snapshot()
	require.Len(t, snap.Attempts, len(signs))
	for i, s := range signs {
		assert.Equal(t, s, snap.Attempts[i].NombreSenal)
	}
}

func TestTransportFailureDropsWrite(t *testing.T) {
	h := newHarness(t)
	h.startActive(t)
	h.srv.SetFailure("POST /errores", http.StatusInternalServerError)
	h.svc.RecordError(ErrorWrite{Sign: "Pare"})
	h.svc.RecordAttempt(AttemptWrite{Sign: "Pare"})
	h.flush(t)

	snap := h.srv.Snapshot()
	assert.Empty(t, snap.Errors)
	assert.Len(t, snap.Attempts, 1)
	assert.Zero(t, h.svc.InFlight())
}

func TestConnectLoadsRemoteConfiguration(t *testing.T) {
	h := newHarness(t)
	cfg := api.ConfigurationResponse{
		SenalesDificultadBaja: 4, SenalesDificultadMedia: 6, SenalesDificultadAlta: 8,
		TiempoDificultadBaja: 15, TiempoDificultadMedia: 9, TiempoDificultadAlta: 4,
		DificultadInicial: 1, RondasPorZona: 5, TasaAciertosMinima: 0.8,
	}
	h.srv.SetConfiguration(cfg)

	var loaded []RemoteConfig
	h.svc.ConfigLoaded().Subscribe(func(rc RemoteConfig) { loaded = append(loaded, rc) })
	var result error
	done := false
	h.svc.Connect(context.Background(), func(err error) { result = err; done = true })
	h.runUntil(t, func() bool { return done })
	require.NoError(t, result)

	assert.Equal(t, 1, h.sink.applied)
	assert.Equal(t, 4, h.sink.cfgs[model.TierLow].SignCount)
	assert.Equal(t, 4.0, h.sink.cfgs[model.TierHigh].TimeLimit)
	assert.True(t, h.sink.cfgs[model.TierLow].ShowVisualAid)
	assert.Equal(t, 5, h.svc.Tunables().RoundsPerZone)
	assert.Equal(t, 4, h.svc.Tunables().MinRoundsToComplete)
	assert.Equal(t, 0.8, h.svc.Tunables().PassThreshold)
	require.Len(t, loaded, 1)
	assert.Equal(t, model.TierMedium, loaded[0].InitialTier)
	assert.True(t, loaded[0].UseModel)
}

func TestInvalidRemoteConfigurationLeavesDefaults(t *testing.T) {
	h := newHarness(t)
	h.srv.SetConfiguration(api.ConfigurationResponse{
		SenalesDificultadBaja: 3, SenalesDificultadMedia: 5, SenalesDificultadAlta: 0,
		TiempoDificultadBaja: 12, TiempoDificultadMedia: 8, TiempoDificultadAlta: 5,
		RondasPorZona: 6, TasaAciertosMinima: 0.7,
	})

	loaded := 0
	h.svc.ConfigLoaded().Subscribe(func(RemoteConfig) { loaded++ })
	var result error
	done := false
	h.svc.Connect(context.Background(), func(err error) { result = err; done = true })
	h.runUntil(t, func() bool { return done })

	assert.Error(t, result)
	assert.Zero(t, h.sink.applied)
	assert.Equal(t, model.DefaultTierConfigs(), h.sink.cfgs)
	assert.Equal(t, model.DefaultTunables(), h.svc.Tunables())
	assert.Zero(t, loaded)
}

func TestLoadRemoteConfigurationRequiresConnectivity(t *testing.T) {
	h := newHarness(t)
	var result error
	h.svc.LoadRemoteConfiguration(context.Background(), func(err error) { result = err })
	assert.True(t, errors.Is(result, ErrNotConnected))
	assert.Zero(t, h.srv.Snapshot().Requests["GET /configuracion"])
}

func TestStartDuringFinalizingWaitsForPreviousSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startActive(t)
	first := h.svc.SessionID()
	h.svc.RecordAttempt(AttemptWrite{Sign: "Pare", Correct: true})
	require.NoError(t, h.svc.FinalizeSession(model.MetricsSnapshot{Attempts: 1, Correct: 1}, 1, 0, true))

	require.NoError(t, h.svc.StartSession(ctx, model.TierLow))
	assert.Equal(t, Finalizing, h.svc.State())
	assert.ErrorIs(t, h.svc.StartSession(ctx, model.TierLow), ErrSessionBusy)
	h.svc.RecordAttempt(AttemptWrite{Sign: "Curva"})

	h.runUntil(t, func() bool { return h.svc.State() == Active })
	second := h.svc.SessionID()
	assert.NotEqual(t, first, second)
	h.flush(t)

	snap := h.srv.Snapshot()
	require.Len(t, snap.Sessions, 2)
	require.NotNil(t, snap.Sessions[0].Update)
	assert.True(t, snap.Sessions[0].Update.Completada)
	assert.Nil(t, snap.Sessions[1].Update)
	require.Len(t, snap.Attempts, 2)
	assert.Equal(t, first, snap.Attempts[0].SesionID)
	assert.Equal(t, second, snap.Attempts[1].SesionID)
	assert.Equal(t, Active, h.svc.State())
	assert.Equal(t, second, h.svc.SessionID())
}

func TestStaleFinalizeKeepsCurrentSession(t *testing.T) {
	h := newHarness(t)
	h.startActive(t)
	id := h.svc.SessionID()

	h.svc.sessionFinalized(id+10, false, nil)
	assert.Equal(t, Active, h.svc.State())
	assert.Equal(t, id, h.svc.SessionID())

	h.svc.RecordAttempt(AttemptWrite{Sign: "Pare"})
	attempts, _ := h.svc.PendingCounts()
	assert.Zero(t, attempts)
}

func TestFinalizeWhileCreatingRunsOnceCreated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var fin []Finalized
	h.svc.SessionFinalized().Subscribe(func(f Finalized) { fin = append(fin, f) })

	require.NoError(t, h.svc.StartSession(ctx, model.TierLow))
	h.svc.RecordAttempt(AttemptWrite{Sign: "Pare"})
	require.NoError(t, h.svc.FinalizeSession(model.MetricsSnapshot{Attempts: 1, Incorrect: 1}, 0, 0, false))
	assert.Equal(t, Creating, h.svc.State())
	attempts, _ := h.svc.PendingCounts()
	assert.Zero(t, attempts)

	h.runUntil(t, func() bool { return len(fin) == 1 })
	assert.Equal(t, NoSession, h.svc.State())
	assert.False(t, fin[0].Completed)

	snap := h.srv.Snapshot()
	require.Len(t, snap.Sessions, 1)
	require.NotNil(t, snap.Sessions[0].Update)
	assert.False(t, snap.Sessions[0].Update.Completada)
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, fin[0].SessionID, snap.Attempts[0].SesionID)

	h.startActive(t)
	assert.Len(t, h.srv.Snapshot().Sessions, 2)
}

func TestStartAfterFinalizeWhileCreating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.svc.StartSession(ctx, model.TierLow))
	require.NoError(t, h.svc.FinalizeSession(model.MetricsSnapshot{}, 0, 0, false))
	require.NoError(t, h.svc.StartSession(ctx, model.TierMedium))
	h.svc.RecordAttempt(AttemptWrite{Sign: "Curva"})

	h.runUntil(t, func() bool { return h.svc.State() == Active && len(h.srv.Snapshot().Sessions) == 2 })
	h.flush(t)

	snap := h.srv.Snapshot()
	require.NotNil(t, snap.Sessions[0].Update)
	assert.Nil(t, snap.Sessions[1].Update)
	assert.Equal(t, 1, snap.Sessions[1].Create.DificultadInicial)
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, h.svc.SessionID(), snap.Attempts[0].SesionID)
}

func TestFinalizeCancelsDeferredStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.startActive(t)
	require.NoError(t, h.svc.FinalizeSession(model.MetricsSnapshot{}, 0, 0, true))
	require.NoError(t, h.svc.StartSession(ctx, model.TierLow))
	h.svc.RecordAttempt(AttemptWrite{Sign: "Curva"})

	require.NoError(t, h.svc.FinalizeSession(model.MetricsSnapshot{}, 0, 0, false))
	h.runUntil(t, func() bool { return h.svc.State() == NoSession })
	h.flush(t)

	assert.Len(t, h.srv.Snapshot().Sessions, 1)
	attempts, _ := h.svc.PendingCounts()
	assert.Zero(t, attempts)
}

func TestCreationFailureDropsClosedWrites(t *testing.T) {
	h := newHarness(t)
	h.srv.SetFailure("POST /sesiones", http.StatusInternalServerError)
	require.NoError(t, h.svc.StartSession(context.Background(), model.TierLow))
	h.svc.RecordAttempt(AttemptWrite{Sign: "Pare"})
	require.NoError(t, h.svc.FinalizeSession(model.MetricsSnapshot{}, 0, 0, false))

	h.runUntil(t, func() bool { return h.svc.State() == NoSession })
	attempts, _ := h.svc.PendingCounts()
	assert.Zero(t, attempts)
	assert.Empty(t, h.srv.Snapshot().Attempts)
}
