package game

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/catalog"
	"github.com/verte-zerg/learnsignals/internal/devserver"
	"github.com/verte-zerg/learnsignals/internal/difficulty"
	"github.com/verte-zerg/learnsignals/internal/dispatch"
	"github.com/verte-zerg/learnsignals/internal/generator"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/metrics"
	"github.com/verte-zerg/learnsignals/internal/mistakes"
	"github.com/verte-zerg/learnsignals/internal/model"
	"github.com/verte-zerg/learnsignals/internal/performance"
	"github.com/verte-zerg/learnsignals/internal/predict"
)

const twoZones = `zones:
  - name: Barrio
    min_tier: low
    max_tier: medium
    signs:
      - {name: Pare, description: rojo, category: reglamentaria}
      - {name: Ceda el paso, description: triangulo, category: reglamentaria}
      - {name: Curva, description: amarilla, category: preventiva}
  - name: Avenida
    min_tier: low
    max_tier: medium
    signs:
      - {name: Una via, description: flecha, category: reglamentaria}
      - {name: Semaforo, description: luces, category: preventiva}
`

type harness struct {
	srv    *devserver.Server
	q      *dispatch.Queue
	policy *difficulty.Policy
	svc    *metrics.Service
	game   *Game
}

func newHarness(t *testing.T, catalogYAML string, minRounds, roundsPerZone int) *harness {
	t.Helper()
	srv := devserver.New(logging.Nop())
	cfg := devserverConfig(minRounds, roundsPerZone)
	srv.SetConfiguration(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	q := dispatch.NewQueue()
	client, err := predict.New(predict.Options{PredictorURL: ts.URL})
	require.NoError(t, err)
	require.NoError(t, client.Probe(ctx))

	policy := difficulty.New(difficulty.Options{Predictor: client, Poster: q})
	svc, err := metrics.New(metrics.Options{BaseURL: ts.URL, Poster: q, Config: policy})
	require.NoError(t, err)
	policy.SetRecorder(svc)

	connected := false
	svc.Connect(ctx, func(err error) {
		require.NoError(t, err)
		connected = true
	})
	run(t, q, func() bool { return connected })

	cat, err := catalog.Parse([]byte(catalogYAML))
	require.NoError(t, err)
	g, err := New(Options{
		Catalog:     cat,
		Performance: performance.New(policy.Tier),
		Mistakes:    mistakes.New(mistakes.Options{Feedback: predict.NewFeedbackRequester(client, q, nil), Recorder: svc}),
		Policy:      policy,
		Session:     svc,
		Generator:   generator.NewSeeded(42),
		Student:     1,
	})
	require.NoError(t, err)
	return &harness{srv: srv, q: q, policy: policy, svc: svc, game: g}
}

func devserverConfig(minRounds, roundsPerZone int) api.ConfigurationResponse {
	return api.ConfigurationResponse{
		SenalesDificultadBaja:      5,
		SenalesDificultadMedia:     5,
		SenalesDificultadAlta:      7,
		TiempoDificultadBaja:       12,
		TiempoDificultadMedia:      8,
		TiempoDificultadAlta:       5,
		RondasPorZona:              roundsPerZone,
		RondasMinimasParaCompletar: &minRounds,
		TasaAciertosMinima:         0.7,
	}
}

func run(t *testing.T, q *dispatch.Queue, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, q.RunUntil(ctx, cond))
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.game.Start(context.Background()))
	run(t, h.q, func() bool { return h.svc.State() == metrics.Active })
}

func (h *harness) playPerfectRound(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.game.BeginRound())
	for h.game.State() == RoundActive {
		ch, ok := h.game.Round().Challenge()
		require.True(t, ok)
		_, err := h.game.Answer(ctx, ch.Sign.Name, 1.5)
		require.NoError(t, err)
	}
	require.Equal(t, RoundEvaluating, h.game.State())
}

func (h *harness) advance(t *testing.T) {
	t.Helper()
	require.NoError(t, h.game.Advance(context.Background()))
	run(t, h.q, func() bool { return h.game.State() != RoundEnd })
}

func TestPerfectRoundRaisesTierAndZoneEntryClamps(t *testing.T) {
	h := newHarness(t, twoZones, 1, 2)
	h.start(t)
	assert.Equal(t, model.TierLow, h.policy.Tier())
	assert.Equal(t, ZoneIntro, h.game.State())

	h.playPerfectRound(t)
	assert.Len(t, h.game.Round().Challenges, 5)
	h.advance(t)

	assert.Equal(t, ZoneComplete, h.game.State())
	assert.Equal(t, model.TierHigh, h.policy.Tier())

	require.NoError(t, h.game.NextZone())
	assert.Equal(t, model.TierMedium, h.policy.Tier())
	assert.Equal(t, 1, h.game.ZoneIndex())

	require.NoError(t, h.svc.Flush(context.Background()))
	snap := h.srv.Snapshot()
	require.Len(t, snap.Adjustments, 1)
	assert.Equal(t, 0, snap.Adjustments[0].DificultadAnterior)
	assert.Equal(t, 2, snap.Adjustments[0].DificultadNueva)
	assert.Equal(t, "model", snap.Adjustments[0].Motivo)
	assert.Len(t, snap.Attempts, 5)
}

func TestNextRoundUsesEvaluatedTier(t *testing.T) {
	h := newHarness(t, twoZones, 3, 6)
	h.start(t)

	h.playPerfectRound(t)
	h.advance(t)

	require.Equal(t, RoundActive, h.game.State())
	r := h.game.Round()
	assert.Equal(t, 1, r.Number)
	assert.Equal(t, model.TierHigh, r.Tier)
	assert.Len(t, r.Challenges, 7)
	ch, _ := r.Challenge()
	assert.Len(t, ch.Choices, 3)
}

func TestMistakesAndTimeouts(t *testing.T) {
	h := newHarness(t, twoZones, 3, 6)
	h.start(t)
	ctx := context.Background()
	require.NoError(t, h.game.BeginRound())

	ch, _ := h.game.Round().Challenge()
	wrong := "nada"
	out, err := h.game.Answer(ctx, wrong, 2)
	require.NoError(t, err)
	assert.False(t, out.Correct)
	require.NotNil(t, out.Mistake)
	assert.Equal(t, ch.Sign.Name, out.Mistake.SignName)
	assert.Equal(t, 1, out.Mistake.PriorAttempts)

	out, err = h.game.Timeout(ctx)
	require.NoError(t, err)
	assert.Nil(t, out.Answer)
	assert.Equal(t, 12.0, out.ResponseTime)

	run(t, h.q, func() bool { return out.Mistake.FeedbackText != "" })

	for h.game.State() == RoundActive {
		c, _ := h.game.Round().Challenge()
		_, err := h.game.Answer(ctx, c.Sign.Name, 1)
		require.NoError(t, err)
	}
	r := h.game.Round()
	assert.Equal(t, 3, r.Correct)
	assert.Equal(t, 2, r.Incorrect)

	require.NoError(t, h.svc.Flush(ctx))
	snap := h.srv.Snapshot()
	require.Len(t, snap.Errors, 2)
	assert.Equal(t, "confusion", snap.Errors[0].TipoError)
	assert.Equal(t, "timeout", snap.Errors[1].TipoError)
	assert.Equal(t, api.TimeoutAnswer, snap.Errors[1].RespuestaUsuario)
	require.Len(t, snap.Attempts, 5)
	assert.Equal(t, "", snap.Attempts[1].RespuestaUsuario)
}

func TestGameCompleteFinalizesSession(t *testing.T) {
	single := `zones:
  - name: Patio
    signs:
      - {name: Pare, description: rojo}
      - {name: Curva, description: amarilla}
`
	h := newHarness(t, single, 1, 1)
	h.start(t)
	h.playPerfectRound(t)
	h.advance(t)

	assert.Equal(t, GameComplete, h.game.State())
	run(t, h.q, func() bool { return h.svc.State() == metrics.NoSession })

	snap := h.srv.Snapshot()
	require.Len(t, snap.Sessions, 1)
	upd := snap.Sessions[0].Update
	require.NotNil(t, upd)
	assert.True(t, upd.Completada)
	assert.Equal(t, 1, upd.ZonasCompletadas)
	assert.Equal(t, 0, upd.ZonaMaximaAlcanzada)
	assert.Equal(t, 5, upd.TotalAciertos)

	stats, signs := h.game.Summary()
	assert.True(t, stats.Completed)
	assert.Equal(t, 1, stats.RemoteSession)
	assert.Equal(t, 5, stats.Correct)
	assert.Equal(t, 1, stats.ZonesCompleted)
	total := 0
	for _, s := range signs {
		total += s.Correct
	}
	assert.Equal(t, 5, total)

	require.NoError(t, h.game.Start(context.Background()))
	assert.Equal(t, ZoneIntro, h.game.State())
}

func TestQuitFinalizesIncomplete(t *testing.T) {
	h := newHarness(t, twoZones, 3, 6)
	h.start(t)
	require.NoError(t, h.game.BeginRound())

	var states []State
	h.game.StateChanged().Subscribe(func(s State) { states = append(states, s) })
	h.game.Quit()
	assert.Equal(t, []State{MainMenu}, states)

	run(t, h.q, func() bool { return h.svc.State() == metrics.NoSession })
	snap := h.srv.Snapshot()
	require.NotNil(t, snap.Sessions[0].Update)
	assert.False(t, snap.Sessions[0].Update.Completada)

	stats, _ := h.game.Summary()
	assert.False(t, stats.Completed)
}

func TestWrongStateActions(t *testing.T) {
	h := newHarness(t, twoZones, 3, 6)
	ctx := context.Background()
	assert.ErrorIs(t, h.game.BeginRound(), ErrWrongState)
	_, err := h.game.Answer(ctx, "Pare", 1)
	assert.ErrorIs(t, err, ErrWrongState)
	assert.ErrorIs(t, h.game.Advance(ctx), ErrWrongState)
	assert.ErrorIs(t, h.game.NextZone(), ErrWrongState)

	h.start(t)
	assert.ErrorIs(t, h.game.Start(ctx), ErrWrongState)
}

func TestOfflineGame(t *testing.T) {
	cat, err := catalog.Parse([]byte(twoZones))
	require.NoError(t, err)
	policy := difficulty.New(difficulty.Options{})
	g, err := New(Options{
		Catalog:     cat,
		Performance: performance.New(policy.Tier),
		Mistakes:    mistakes.New(mistakes.Options{}),
		Policy:      policy,
		Generator:   generator.NewSeeded(1),
		Tunables:    model.Tunables{RoundsPerZone: 1, MinRoundsToComplete: 1, PassThreshold: 0.7},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Start(ctx))
	for zone := 0; zone < 2; zone++ {
		require.NoError(t, g.BeginRound())
		for g.State() == RoundActive {
			_, err := g.Timeout(ctx)
			require.NoError(t, err)
		}
		require.NoError(t, g.Advance(ctx))
		if zone == 0 {
			require.Equal(t, ZoneComplete, g.State())
			require.NoError(t, g.NextZone())
		}
	}
	assert.Equal(t, GameComplete, g.State())
	assert.Equal(t, model.TierLow, policy.Tier())

	stats, signs := g.Summary()
	assert.Equal(t, 0, stats.Correct)
	assert.Equal(t, 6, stats.Incorrect)
	assert.Equal(t, metrics.NoSessionID, stats.RemoteSession)
	for _, s := range signs {
		assert.Equal(t, s.Incorrect, s.Timeouts)
	}
}

func TestQuitWhileSessionCreatingFinalizesIt(t *testing.T) {
	h := newHarness(t, twoZones, 3, 6)
	ctx := context.Background()
	require.NoError(t, h.game.Start(ctx))
	require.Equal(t, metrics.Creating, h.svc.State())
	require.NoError(t, h.game.BeginRound())
	ch, ok := h.game.Round().Challenge()
	require.True(t, ok)
	_, err := h.game.Answer(ctx, ch.Sign.Name, 1)
	require.NoError(t, err)

	h.game.Quit()
	assert.Equal(t, MainMenu, h.game.State())
	assert.Equal(t, metrics.Creating, h.svc.State())

	run(t, h.q, func() bool { return h.svc.State() == metrics.NoSession })
	snap := h.srv.Snapshot()
	require.Len(t, snap.Sessions, 1)
	require.NotNil(t, snap.Sessions[0].Update)
	assert.False(t, snap.Sessions[0].Update.Completada)
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, snap.Sessions[0].ID, snap.Attempts[0].SesionID)

	h.start(t)
	assert.Len(t, h.srv.Snapshot().Sessions, 2)
}

func TestNewGameAfterCompleteGetsOwnSession(t *testing.T) {
	single := `zones:
  - name: Patio
    signs:
      - {name: Pare, description: rojo}
      - {name: Curva, description: amarilla}
`
	h := newHarness(t, single, 1, 1)
	h.start(t)
	first := h.svc.SessionID()
	h.playPerfectRound(t)
	h.advance(t)
	require.Equal(t, GameComplete, h.game.State())
	require.Equal(t, metrics.Finalizing, h.svc.State())

	require.NoError(t, h.game.Start(context.Background()))
	assert.Equal(t, ZoneIntro, h.game.State())
	run(t, h.q, func() bool {
		return h.svc.State() == metrics.Active && h.svc.SessionID() != first
	})

	snap := h.srv.Snapshot()
	require.Len(t, snap.Sessions, 2)
	require.NotNil(t, snap.Sessions[0].Update)
	assert.True(t, snap.Sessions[0].Update.Completada)
	assert.Nil(t, snap.Sessions[1].Update)
}
