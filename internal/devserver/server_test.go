package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/logging"
)

func start(t *testing.T) (*Server, *api.Client) {
	t.Helper()
	srv := New(logging.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c, err := api.New(api.Options{BaseURL: ts.URL})
	require.NoError(t, err)
	return srv, c
}

func TestPredictTierThresholds(t *testing.T) {
	cases := []struct {
		shown, correct, want int
	}{
		{5, 5, 2},
		{5, 4, 2},
		{5, 3, 1},
		{4, 2, 1},
		{5, 2, 0},
		{0, 0, 0},
	}
	for _, tc := range cases {
		got := PredictTier(api.PredictRequest{SenalesMostradas: tc.shown, Aciertos: tc.correct})
		assert.Equal(t, tc.want, got.Dificultad, "shown=%d correct=%d", tc.shown, tc.correct)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv, c := start(t)
	ctx := context.Background()

	var created api.CreateSessionResponse
	require.NoError(t, c.Post(ctx, 0, api.PathSessions, api.CreateSessionRequest{EstudianteID: 1}, &created))
	assert.Equal(t, 1, created.SesionID)

	require.NoError(t, c.Post(ctx, 0, api.PathAttempts, api.AttemptRequest{SesionID: 1, NombreSenal: "Pare"}, nil))
	require.NoError(t, c.Put(ctx, 0, api.SessionPath(1), api.UpdateSessionRequest{TotalAciertos: 1, Completada: true}, nil))

	snap := srv.Snapshot()
	require.Len(t, snap.Sessions, 1)
	require.NotNil(t, snap.Sessions[0].Update)
	assert.True(t, snap.Sessions[0].Update.Completada)
	require.Len(t, snap.Attempts, 1)
	assert.Equal(t, 1, snap.Requests["PUT /sesiones/{id}"])
}

func TestUnknownStudentAndSession(t *testing.T) {
	_, c := start(t)
	ctx := context.Background()

	err := c.Post(ctx, 0, api.PathSessions, api.CreateSessionRequest{EstudianteID: 99}, nil)
	var herr *api.HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)

	err = c.Post(ctx, 0, api.PathErrors, api.ErrorRequest{SesionID: 5}, nil)
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
}

func TestInjectedFailure(t *testing.T) {
	srv, c := start(t)
	srv.SetFailure("GET /health", http.StatusServiceUnavailable)
	assert.Error(t, c.Probe(context.Background(), api.PathHealth, 0))
	srv.SetFailure("GET /health", 0)
	assert.NoError(t, c.Probe(context.Background(), api.PathHealth, 0))
}

func TestFeedbackDisabledAnswersUnsuccessful(t *testing.T) {
	srv, c := start(t)
	srv.SetFeedbackEnabled(false)
	var resp api.FeedbackResponse
	require.NoError(t, c.Post(context.Background(), 0, api.PathFeedback, api.FeedbackRequest{NombreSenal: "Pare", RespuestaUsuario: api.TimeoutAnswer}, &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.MotivoError, "tiempo")
}
