package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/peakmind/coach/internal/core"
	"github.com/peakmind/coach/internal/health"
	"github.com/peakmind/coach/internal/store"
)

type ChatTurner interface {
	Chat(ctx context.Context, userID, message string) (*core.TurnResult, error)
}

type ProfileManager interface {
	Get(ctx context.Context, userID string) (*store.Profile, error)
	Upsert(ctx context.Context, update store.ProfileUpdate) (*store.Profile, error)
	List(ctx context.Context) ([]store.Profile, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*core.Audio, error)
}

type ReadinessReporter interface {
	Status() ([]health.DependencyStatus, bool)
}

type APIHandler struct {
	chat     ChatTurner
	profiles ProfileManager
	speech   SpeechSynthesizer
	validate *validator.Validate
	logger   *zap.Logger
}

func NewAPIHandler(chat ChatTurner, profiles ProfileManager, speech SpeechSynthesizer, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		chat:     chat,
		profiles: profiles,
		speech:   speech,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With(zap.String("component", "api")),
	}
}

type ChatRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Message string `json:"message" validate:"required"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if strings.TrimSpace(req.Message) == "" {
		req.Message = ""
	}
	if !h.validateRequest(w, &req) || !authorizeSubject(w, r, req.UserID) {
		return
	}

	result, err := h.chat.Chat(r.Context(), req.UserID, req.Message)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User profile not found")
			return
		}
		h.logger.Error("Chat turn failed", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to process chat message")
		return
	}

	w.Header().Set("X-Response-Degraded", strconv.FormatBool(result.Degraded))
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusUnprocessableEntity, "user_id query parameter is required")
		return
	}
	if !authorizeSubject(w, r, userID) {
		return
	}

	profile, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User profile not found")
			return
		}
		h.logger.Error("Error fetching profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ProfileRequest fields are pointers so an omitted field can be told apart
// from an empty one.
type ProfileRequest struct {
	ID    string  `json:"id"`
	Sport *string `json:"sport"`
	Goals *string `json:"goals"`
	Level *string `json:"level"`
	Notes *string `json:"notes"`
}

// UpsertProfileHandler serves both POST and PUT /profile.
func (h *APIHandler) UpsertProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if id == "" {
		writeError(w, http.StatusUnprocessableEntity, "id is required")
		return
	}
	if !authorizeSubject(w, r, id) {
		return
	}

	profile, err := h.profiles.Upsert(r.Context(), store.ProfileUpdate{
		ID:    id,
		Sport: req.Sport,
		Goals: req.Goals,
		Level: req.Level,
		Notes: req.Notes,
	})
	if err != nil {
		if errors.Is(err, core.ErrProfileRequired) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("Error saving profile", zap.String("user_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type TTSRequest struct {
	Text    string `json:"text"`
	UserID  string `json:"user_id,omitempty"`
	VoiceID string `json:"voice_id,omitempty"`
}

func (h *APIHandler) TTSHandler(w http.ResponseWriter, r *http.Request) {
	var req TTSRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID != "" && !authorizeSubject(w, r, req.UserID) {
		return
	}

	audio, err := h.speech.Synthesize(r.Context(), req.Text, strings.TrimSpace(req.VoiceID))
	if err != nil {
		if errors.Is(err, core.ErrEmptyText) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Text to speech failed", zap.String("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to synthesize speech")
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.Header().Set("X-Voice-ID", audio.VoiceID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		h.logger.Warn("Failed to write audio response", zap.Error(err))
	}
}

func (h *APIHandler) DebugProfilesHandler(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context())
	if err != nil {
		h.logger.Error("Error listing profiles", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}
	if profiles == nil {
		profiles = []store.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func ReadyHandler(monitor ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		deps, ready := monitor.Status()
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "dependencies": deps})
	}
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *APIHandler) validateRequest(w http.ResponseWriter, req any) bool {
	err := h.validate.Struct(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		missing := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			missing = append(missing, jsonFieldName(fe.Field()))
		}
		writeError(w, http.StatusUnprocessableEntity, "missing required fields: "+strings.Join(missing, ", "))
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return false
}

func jsonFieldName(field string) string {
	switch field {
	case "UserID":
		return "user_id"
	default:
		return strings.ToLower(field)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
