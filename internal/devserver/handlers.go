package devserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verte-zerg/learnsignals/internal/api"
)

// PredictTier applies the accuracy rule used when no model is loaded:
// accuracy = correct / max(signs shown, 1); >= 0.8 is High, >= 0.5 Medium,
// else Low.
func PredictTier(req api.PredictRequest) api.PredictResponse {
	shown := req.SenalesMostradas
	if shown < 1 {
		shown = 1
	}
	accuracy := float64(req.Aciertos) / float64(shown)
	switch {
	case accuracy >= 0.8:
		return api.PredictResponse{Dificultad: 2, Descripcion: "Alta (Fallback)"}
	case accuracy >= 0.5:
		return api.PredictResponse{Dificultad: 1, Descripcion: "Media (Fallback)"}
	default:
		return api.PredictResponse{Dificultad: 0, Descripcion: "Baja (Fallback)"}
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.RootResponse{
		Mensaje: "API Dificultad Adaptativa y Métricas activa",
		Version: Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:   "healthy",
		Provider: "devserver",
		Database: "memory",
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req api.PredictRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, PredictTier(req))
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req api.FeedbackRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	enabled := s.feedbackEnabled
	s.mu.Unlock()

	timedOut := req.RespuestaUsuario == api.TimeoutAnswer
	cause := fmt.Sprintf("Confundiste '%s' con '%s'.", req.NombreSenal, req.RespuestaUsuario)
	if timedOut {
		cause = "El tiempo de respuesta se agotó. Intenta familiarizarte más con esta señal."
	}
	if !enabled {
		writeJSON(w, http.StatusOK, api.FeedbackResponse{
			Success:         false,
			Significado:     fmt.Sprintf("La señal '%s' es importante que la conozcas bien.", req.NombreSenal),
			MotivoError:     cause,
			EjemploReal:     "Imagina que vas conduciendo y encuentras esta señal.",
			Mnemotecnia:     "Recuerda: cada señal tiene un propósito específico.",
			MensajeCompleto: fmt.Sprintf("La señal '%s' es importante. ¡Sigue practicando!", req.NombreSenal),
			ErrorMessage:    "Servicio de IA no disponible.",
		})
		return
	}
	meaning := fmt.Sprintf("La señal '%s' indica una norma que debes respetar en la vía.", req.NombreSenal)
	mnemonic := fmt.Sprintf("Asocia '%s' con su forma y color antes de leerla.", req.NombreSenal)
	writeJSON(w, http.StatusOK, api.FeedbackResponse{
		Success:         true,
		Significado:     meaning,
		MotivoError:     cause,
		EjemploReal:     "En un cruce con tráfico, reconocerla a tiempo evita un accidente.",
		Mnemotecnia:     mnemonic,
		MensajeCompleto: meaning + " " + cause + " " + mnemonic,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[req.EstudianteID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Estudiante no encontrado"})
		return
	}
	id := s.nextSession
	s.nextSession++
	s.sessions[id] = &SessionRecord{ID: id, Create: req, Created: time.Now()}
	s.order = append(s.order, id)
	writeJSON(w, http.StatusOK, api.CreateSessionResponse{SesionID: id, Mensaje: "Sesión creada"})
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid session id"})
		return
	}
	var req api.UpdateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Sesión no encontrada"})
		return
	}
	rec.Update = &req
	rec.Finished = time.Now()
	writeJSON(w, http.StatusOK, api.WriteResponse{Mensaje: "Sesión actualizada"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	type item struct {
		SesionID   int  `json:"sesion_id"`
		Estudiante int  `json:"estudiante_id"`
		Completada bool `json:"completada"`
	}
	s.mu.Lock()
	out := make([]item, 0, len(s.order))
	for _, id := range s.order {
		rec := s.sessions[id]
		out = append(out, item{
			SesionID:   id,
			Estudiante: rec.Create.EstudianteID,
			Completada: rec.Update != nil && rec.Update.Completada,
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	var req api.AttemptRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[req.SesionID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": fmt.Sprintf("Sesión %d no encontrada", req.SesionID)})
		return
	}
	s.attempts = append(s.attempts, req)
	writeJSON(w, http.StatusOK, api.WriteResponse{Mensaje: "Intento registrado", ID: len(s.attempts)})
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	var req api.ErrorRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[req.SesionID]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": fmt.Sprintf("Sesión %d no encontrada", req.SesionID)})
		return
	}
	s.errors = append(s.errors, req)
	writeJSON(w, http.StatusOK, api.WriteResponse{Mensaje: "Error registrado", ID: len(s.errors)})
}

func (s *Server) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req api.AdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments = append(s.adjustments, req)
	writeJSON(w, http.StatusOK, api.WriteResponse{Mensaje: "Ajuste registrado", ID: len(s.adjustments)})
}

func (s *Server) handleConfiguration(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort write; the client sees a truncated body.
		_ = err
	}
}
