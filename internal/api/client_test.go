package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "  "})
	assert.Error(t, err)
}

func TestPostEncodesBodyAndDecodesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathPredict, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5, req.SenalesMostradas)
		_ = json.NewEncoder(w).Encode(PredictResponse{Dificultad: 2, Descripcion: "Alta"})
	})

	var out PredictResponse
	err := c.Post(context.Background(), 0, PathPredict, PredictRequest{SenalesMostradas: 5, Aciertos: 5}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Dificultad)
}

func TestNon2xxReturnsHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Sesión 9 no encontrada"}`))
	})

	err := c.Post(context.Background(), 0, PathAttempts, AttemptRequest{SesionID: 9}, nil)
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	assert.Contains(t, herr.Error(), "no encontrada")
	assert.False(t, IsSemantic(err))
}

type trackedBody struct {
	io.Reader
	closed int
}

func (b *trackedBody) Close() error {
	b.closed++
	return nil
}

type bodyTransport struct {
	status int
	body   string
	bodies []*trackedBody
}

func (tr *bodyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	b := &trackedBody{Reader: strings.NewReader(tr.body)}
	tr.bodies = append(tr.bodies, b)
	return &http.Response{StatusCode: tr.status, Body: b, Header: http.Header{}, Request: r}, nil
}

func TestResponseBodyClosedOnEveryOutcome(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"ok", http.StatusOK, `{"dificultad":1,"descripcion":"Media"}`},
		{"http error", http.StatusInternalServerError, `{"detail":"boom"}`},
		{"malformed", http.StatusOK, `not json`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &bodyTransport{status: tc.status, body: tc.body}
			c, err := New(Options{BaseURL: "http://backend.test", HTTPClient: &http.Client{Transport: tr}})
			require.NoError(t, err)

			var out PredictResponse
			_ = c.Get(context.Background(), 0, PathPredict, &out)
			require.Len(t, tr.bodies, 1)
			assert.Equal(t, 1, tr.bodies[0].closed)
		})
	}
}

func TestMalformedBodyIsSemantic(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	var out PredictResponse
	err := c.Get(context.Background(), 0, PathPredict, &out)
	require.Error(t, err)
	assert.True(t, IsSemantic(err))
}

func TestTimeoutBehavesAsConnectivityFailure(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	err := c.Probe(context.Background(), PathHealth, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestSessionPath(t *testing.T) {
	assert.Equal(t, "/sesiones/42", SessionPath(42))
}
