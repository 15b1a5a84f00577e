package api

import "strconv"

// Endpoint paths of the backend.
const (
	PathRoot          = "/"
	PathHealth        = "/health"
	PathPredict       = "/predecir"
	PathFeedback      = "/generar_feedback"
	PathSessions      = "/sesiones"
	PathAttempts      = "/intentos"
	PathErrors        = "/errores"
	PathAdjustments   = "/ajustes"
	PathConfiguration = "/configuracion"
)

// SessionPath returns the update path of one session.
func SessionPath(id int) string {
	return PathSessions + "/" + strconv.Itoa(id)
}

// Error kinds sent in ErrorRequest.TipoError.
const (
	ErrorKindTimeout   = "timeout"
	ErrorKindConfusion = "confusion"
)

// TimeoutAnswer is the answer text the backend expects for timed-out errors.
const TimeoutAnswer = "Tiempo agotado"

// AdjustmentReasonModel tags tier changes recommended by the predictor.
const AdjustmentReasonModel = "model"

// RootResponse is returned by GET /.
type RootResponse struct {
	Mensaje string `json:"mensaje"`
	Version string `json:"version"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status                string `json:"status"`
	Provider              string `json:"provider,omitempty"`
	Model                 string `json:"model,omitempty"`
	DificultadModelLoaded bool   `json:"dificultad_model_loaded"`
	Database              string `json:"database,omitempty"`
}

// PredictRequest is the body of POST /predecir.
type PredictRequest struct {
	Zona             int     `json:"zona"`
	SenalesMostradas int     `json:"senales_mostradas"`
	Aciertos         int     `json:"aciertos"`
	Errores          int     `json:"errores"`
	TiempoPromedio   float64 `json:"tiempo_promedio"`
}

// PredictResponse is the answer of POST /predecir.
type PredictResponse struct {
	Dificultad  int    `json:"dificultad"`
	Descripcion string `json:"descripcion"`
}

// FeedbackRequest is the body of POST /generar_feedback.
type FeedbackRequest struct {
	NombreSenal      string  `json:"nombre_senal"`
	RespuestaUsuario string  `json:"respuesta_usuario"`
	TiempoRespuesta  float64 `json:"tiempo_respuesta"`
	NivelDificultad  int     `json:"nivel_dificultad"`
	ZonaActual       int     `json:"zona_actual"`
	IntentosPrevios  int     `json:"intentos_previos"`
}

// FeedbackResponse is the answer of POST /generar_feedback.
type FeedbackResponse struct {
	Success         bool   `json:"success"`
	Significado     string `json:"significado"`
	MotivoError     string `json:"motivo_error"`
	EjemploReal     string `json:"ejemplo_real"`
	Mnemotecnia     string `json:"mnemotecnia"`
	MensajeCompleto string `json:"mensaje_completo"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// CreateSessionRequest is the body of POST /sesiones.
type CreateSessionRequest struct {
	EstudianteID      int `json:"estudiante_id"`
	DificultadInicial int `json:"dificultad_inicial"`
}

// CreateSessionResponse is the answer of POST /sesiones.
type CreateSessionResponse struct {
	SesionID int    `json:"sesion_id"`
	Mensaje  string `json:"mensaje"`
}

// UpdateSessionRequest is the body of PUT /sesiones/{id}.
type UpdateSessionRequest struct {
	TotalAciertos           int     `json:"total_aciertos"`
	TotalErrores            int     `json:"total_errores"`
	TiempoPromedioRespuesta float64 `json:"tiempo_promedio_respuesta"`
	ZonasCompletadas        int     `json:"zonas_completadas"`
	ZonaMaximaAlcanzada     int     `json:"zona_maxima_alcanzada"`
	DificultadFinal         int     `json:"dificultad_final"`
	Completada              bool    `json:"completada"`
}

// AttemptRequest is the body of POST /intentos.
type AttemptRequest struct {
	SesionID         int     `json:"sesion_id"`
	NombreSenal      string  `json:"nombre_senal"`
	RespuestaUsuario string  `json:"respuesta_usuario"`
	FueCorrecta      bool    `json:"fue_correcta"`
	TiempoRespuesta  float64 `json:"tiempo_respuesta"`
	Zona             int     `json:"zona"`
	Ronda            int     `json:"ronda"`
	Dificultad       int     `json:"dificultad"`
}

// ErrorRequest is the body of POST /errores.
type ErrorRequest struct {
	SesionID         int     `json:"sesion_id"`
	NombreSenal      string  `json:"nombre_senal"`
	RespuestaUsuario string  `json:"respuesta_usuario"`
	TipoError        string  `json:"tipo_error"`
	TiempoRespuesta  float64 `json:"tiempo_respuesta"`
	Zona             int     `json:"zona"`
	Dificultad       int     `json:"dificultad"`
	IntentosPrevios  int     `json:"intentos_previos"`
	FeedbackGenerado string  `json:"feedback_generado"`
}

// AdjustmentRequest is the body of POST /ajustes.
type AdjustmentRequest struct {
	SesionID           int     `json:"sesion_id"`
	DificultadAnterior int     `json:"dificultad_anterior"`
	DificultadNueva    int     `json:"dificultad_nueva"`
	Motivo             string  `json:"motivo"`
	TasaAciertos       float64 `json:"tasa_aciertos"`
	TiempoPromedio     float64 `json:"tiempo_promedio"`
	Zona               int     `json:"zona"`
	Ronda              int     `json:"ronda"`
}

// WriteResponse is the answer of the record endpoints.
type WriteResponse struct {
	Mensaje string `json:"mensaje"`
	ID      int    `json:"id,omitempty"`
}

// ConfigurationResponse is the answer of GET /configuracion. Flag fields are
// pointers because older backends omit them.
type ConfigurationResponse struct {
	SenalesDificultadBaja      int      `json:"senales_dificultad_baja" validate:"gt=0"`
	SenalesDificultadMedia     int      `json:"senales_dificultad_media" validate:"gt=0"`
	SenalesDificultadAlta      int      `json:"senales_dificultad_alta" validate:"gt=0"`
	TiempoDificultadBaja       float64  `json:"tiempo_dificultad_baja" validate:"gt=0"`
	TiempoDificultadMedia      float64  `json:"tiempo_dificultad_media" validate:"gt=0"`
	TiempoDificultadAlta       float64  `json:"tiempo_dificultad_alta" validate:"gt=0"`
	DificultadInicial          int      `json:"dificultad_inicial"`
	RondasPorZona              int      `json:"rondas_por_zona" validate:"gt=0"`
	RondasMinimasParaCompletar *int     `json:"rondas_minimas_para_completar,omitempty" validate:"omitempty,gte=0"`
	TasaAciertosMinima         float64  `json:"tasa_aciertos_minima" validate:"gte=0,lte=1"`
	MostrarAyudaVisualBaja     *bool    `json:"mostrar_ayuda_visual_baja,omitempty"`
	IncluirDistractoresMedia   *bool    `json:"incluir_distractores_media,omitempty"`
	IncluirDistractoresAlta    *bool    `json:"incluir_distractores_alta,omitempty"`
	UsarModeloML               *bool    `json:"usar_modelo_ml,omitempty"`
	URLServidorML              string   `json:"url_servidor_ml,omitempty"`
	UmbralSubirDificultad      *float64 `json:"umbral_subir_dificultad,omitempty"`
	UmbralBajarDificultad      *float64 `json:"umbral_bajar_dificultad,omitempty"`
}
