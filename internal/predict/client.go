// Package predict wraps the difficulty prediction and feedback endpoints.
package predict

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/logging"
	"github.com/verte-zerg/learnsignals/internal/model"
)

// Default timeouts.
const (
	DefaultProbeTimeout    = 5 * time.Second
	DefaultPredictTimeout  = 10 * time.Second
	DefaultFeedbackTimeout = 30 * time.Second
)

// ErrFeedbackRejected is returned when the backend answers success=false.
var ErrFeedbackRejected = errors.New("feedback generation rejected")

// Options configure a Client.
type Options struct {
	PredictorURL    string
	FeedbackURL     string
	ProbeTimeout    time.Duration
	PredictTimeout  time.Duration
	FeedbackTimeout time.Duration
	HTTPClient      *http.Client
	Logger          *logging.Logger
}

// PredictRequest carries the recent performance the predictor scores.
type PredictRequest struct {
	Zone             int
	SignsShown       int
	Correct          int
	Incorrect        int
	MeanResponseTime float64
}

// Prediction is the recommended tier.
type Prediction struct {
	Tier        model.Tier
	Description string
}

// FeedbackRequest describes one mistake. A nil Answer is a timeout.
type FeedbackRequest struct {
	Sign          string
	Answer        *string
	ResponseTime  float64
	Tier          model.Tier
	Zone          int
	PriorAttempts int
}

// Client talks to the predictor and feedback endpoints. Connectivity flags
// are updated by Probe and ProbeFeedback and may be read from any goroutine.
type Client struct {
	predictor *api.Client
	feedback  *api.Client

	probeTimeout    time.Duration
	predictTimeout  time.Duration
	feedbackTimeout time.Duration

	connected         atomic.Bool
	feedbackConnected atomic.Bool

	log *logging.Logger
}

// New returns a Client. FeedbackURL defaults to PredictorURL.
func New(opts Options) (*Client, error) {
	predictor, err := api.New(api.Options{BaseURL: opts.PredictorURL, HTTPClient: opts.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("failed to create predictor client: %w", err)
	}
	feedbackURL := opts.FeedbackURL
	if feedbackURL == "" {
		feedbackURL = opts.PredictorURL
	}
	feedback, err := api.New(api.Options{BaseURL: feedbackURL, HTTPClient: opts.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("failed to create feedback client: %w", err)
	}
	c := &Client{
		predictor:       predictor,
		feedback:        feedback,
		probeTimeout:    orDefault(opts.ProbeTimeout, DefaultProbeTimeout),
		predictTimeout:  orDefault(opts.PredictTimeout, DefaultPredictTimeout),
		feedbackTimeout: orDefault(opts.FeedbackTimeout, DefaultFeedbackTimeout),
		log:             opts.Logger.Named("predict"),
	}
	return c, nil
}

func orDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Probe checks the predictor liveness endpoint and records the result.
func (c *Client) Probe(ctx context.Context) error {
	err := c.predictor.Probe(ctx, api.PathRoot, c.probeTimeout)
	c.connected.Store(err == nil)
	if err != nil {
		c.log.Warn("predictor unreachable", "url", c.predictor.BaseURL(), "error", err)
		return err
	}
	c.log.Info("predictor connected", "url", c.predictor.BaseURL())
	return nil
}

// ProbeFeedback checks the feedback health endpoint and records the result.
func (c *Client) ProbeFeedback(ctx context.Context) error {
	err := c.feedback.Probe(ctx, api.PathHealth, c.probeTimeout)
	c.feedbackConnected.Store(err == nil)
	if err != nil {
		c.log.Warn("feedback service unreachable", "url", c.feedback.BaseURL(), "error", err)
		return err
	}
	c.log.Info("feedback service connected", "url", c.feedback.BaseURL())
	return nil
}

// PredictorURL returns the predictor base URL.
func (c *Client) PredictorURL() string { return c.predictor.BaseURL() }

// FeedbackURL returns the feedback base URL.
func (c *Client) FeedbackURL() string { return c.feedback.BaseURL() }

// Connected reports the last predictor probe result.
func (c *Client) Connected() bool { return c.connected.Load() }

// FeedbackConnected reports the last feedback probe result.
func (c *Client) FeedbackConnected() bool { return c.feedbackConnected.Load() }

// PredictDifficulty asks the predictor for a tier.
func (c *Client) PredictDifficulty(ctx context.Context, req PredictRequest) (Prediction, error) {
	body := api.PredictRequest{
		Zona:             req.Zone,
		SenalesMostradas: req.SignsShown,
		Aciertos:         req.Correct,
		Errores:          req.Incorrect,
		TiempoPromedio:   req.MeanResponseTime,
	}
	var resp api.PredictResponse
	if err := c.predictor.Post(ctx, c.predictTimeout, api.PathPredict, body, &resp); err != nil {
		return Prediction{}, fmt.Errorf("failed to predict difficulty: %w", err)
	}
	return Prediction{Tier: model.TierFromWire(resp.Dificultad), Description: resp.Descripcion}, nil
}

// GenerateFeedback asks the feedback service to explain a mistake.
func (c *Client) GenerateFeedback(ctx context.Context, req FeedbackRequest) (model.Feedback, error) {
	answer := api.TimeoutAnswer
	if req.Answer != nil {
		answer = *req.Answer
	}
	body := api.FeedbackRequest{
		NombreSenal:      req.Sign,
		RespuestaUsuario: answer,
		TiempoRespuesta:  req.ResponseTime,
		NivelDificultad:  req.Tier.Wire(),
		ZonaActual:       req.Zone,
		IntentosPrevios:  req.PriorAttempts,
	}
	var resp api.FeedbackResponse
	if err := c.feedback.Post(ctx, c.feedbackTimeout, api.PathFeedback, body, &resp); err != nil {
		return model.Feedback{}, fmt.Errorf("failed to generate feedback: %w", err)
	}
	if !resp.Success {
		return model.Feedback{}, fmt.Errorf("%w: %s", ErrFeedbackRejected, resp.ErrorMessage)
	}
	return model.Feedback{
		Meaning:      resp.Significado,
		MistakeCause: resp.MotivoError,
		RealExample:  resp.EjemploReal,
		Mnemonic:     resp.Mnemotecnia,
		FullMessage:  resp.MensajeCompleto,
	}, nil
}

// FallbackFeedback is the local explanation used when the service cannot
// answer.
func FallbackFeedback(sign string) model.Feedback {
	return model.Feedback{
		Meaning:      fmt.Sprintf("La señal '%s' es una señal de tránsito importante que debes conocer.", sign),
		MistakeCause: "No se pudo determinar el motivo exacto del error.",
		RealExample:  "Imagina que vas conduciendo y encuentras esta señal. ¿Qué harías?",
		Mnemonic:     "Recuerda: cada señal tiene un propósito específico para tu seguridad.",
		FullMessage:  "Revisa el significado de esta señal. Parece que la clasificación no fue correcta. ¡Sigue practicando!",
		Fallback:     true,
	}
}
