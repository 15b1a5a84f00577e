package metrics

import (
	"github.com/verte-zerg/learnsignals/internal/api"
	"github.com/verte-zerg/learnsignals/internal/model"
)

// AttemptWrite is one answered challenge to persist. A nil Answer is a
// timeout.
type AttemptWrite struct {
	Sign         string
	Answer       *string
	Correct      bool
	ResponseTime float64
	Zone         int
	Round        int
	Tier         model.Tier
}

func (w AttemptWrite) wire(sessionID int) api.AttemptRequest {
	answer := ""
	if w.Answer != nil {
		answer = *w.Answer
	}
	return api.AttemptRequest{
		SesionID:         sessionID,
		NombreSenal:      w.Sign,
		RespuestaUsuario: answer,
		FueCorrecta:      w.Correct,
		TiempoRespuesta:  w.ResponseTime,
		Zona:             w.Zone,
		Ronda:            w.Round,
		Dificultad:       w.Tier.Wire(),
	}
}

// ErrorWrite is one mistake to persist. A nil Answer is a timeout.
type ErrorWrite struct {
	Sign          string
	Answer        *string
	ResponseTime  float64
	Zone          int
	Tier          model.Tier
	PriorAttempts int
	Feedback      string
}

// Kind returns the wire error kind.
func (w ErrorWrite) Kind() string {
	if w.Answer == nil {
		return api.ErrorKindTimeout
	}
	return api.ErrorKindConfusion
}

func (w ErrorWrite) wire(sessionID int) api.ErrorRequest {
	answer := api.TimeoutAnswer
	if w.Answer != nil {
		answer = *w.Answer
	}
	return api.ErrorRequest{
		SesionID:         sessionID,
		NombreSenal:      w.Sign,
		RespuestaUsuario: answer,
		TipoError:        w.Kind(),
		TiempoRespuesta:  w.ResponseTime,
		Zona:             w.Zone,
		Dificultad:       w.Tier.Wire(),
		IntentosPrevios:  w.PriorAttempts,
		FeedbackGenerado: w.Feedback,
	}
}

// AdjustmentWrite is one tier change to persist.
type AdjustmentWrite struct {
	Old              model.Tier
	New              model.Tier
	Reason           string
	AccuracyRate     float64
	MeanResponseTime float64
	Zone             int
	Round            int
}

func (w AdjustmentWrite) wire(sessionID int) api.AdjustmentRequest {
	return api.AdjustmentRequest{
		SesionID:           sessionID,
		DificultadAnterior: w.Old.Wire(),
		DificultadNueva:    w.New.Wire(),
		Motivo:             w.Reason,
		TasaAciertos:       w.AccuracyRate,
		TiempoPromedio:     w.MeanResponseTime,
		Zona:               w.Zone,
		Ronda:              w.Round,
	}
}

func finalizeWire(final model.MetricsSnapshot, zonesCompleted, maxZone int, completed bool) api.UpdateSessionRequest {
	return api.UpdateSessionRequest{
		TotalAciertos:           final.Correct,
		TotalErrores:            final.Incorrect,
		TiempoPromedioRespuesta: final.MeanResponseTime,
		ZonasCompletadas:        zonesCompleted,
		ZonaMaximaAlcanzada:     maxZone,
		DificultadFinal:         final.Tier.Wire(),
		Completada:              completed,
	}
}
