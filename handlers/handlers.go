package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tuneturn/tuneturn/errors"
	"github.com/tuneturn/tuneturn/models"
	"github.com/tuneturn/tuneturn/scheduler"
)

const (
	MaxIDLength         = 255
	MaxInputLength      = 1000
	MaxLibraryBatchSize = 5000
	MaxRosterSize       = 100
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500
)

// ASCII control character constants
const (
	ASCIIControlCharMin = 32
	ASCIIControlCharMax = 127
)

type Handler struct {
	logger    *logrus.Logger
	scheduler *scheduler.Scheduler
}

func New(logger *logrus.Logger, sched *scheduler.Scheduler) *Handler {
	return &Handler{
		logger:    logger,
		scheduler: sched,
	}
}

// SanitizeForLogging removes control characters and limits length to prevent log injection
func SanitizeForLogging(input string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r < ASCIIControlCharMin || r == ASCIIControlCharMax {
			return -1
		}
		return r
	}, input)

	if len(sanitized) > MaxInputLength {
		sanitized = sanitized[:MaxInputLength] + "..."
	}

	return sanitized
}

// ValidateID validates a session or listener identifier.
func ValidateID(field, id string) error {
	if len(id) == 0 {
		return errors.ErrMissingParameter.WithContext("parameter", field)
	}
	if len(id) > MaxIDLength {
		return errors.ErrInvalidInput.WithContext("field", field).WithContext("length", len(id)).WithContext("max_length", MaxIDLength)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError maps an error to an HTTP status with a JSON body. Internal
// detail stays in the logs, not in the response.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"
	code := ""

	switch {
	case errors.IsCode(err, "MISSING_PARAMETER"), errors.IsCode(err, "INVALID_INPUT"), errors.IsCode(err, "VALIDATION_FAILED"):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.IsCode(err, "NO_ACTIVE_LISTENERS"):
		status = http.StatusConflict
		message = "session has no active listeners"
		code = "NO_ACTIVE_LISTENERS"
	case errors.IsCode(err, "TURN_SKIPPED"):
		status = http.StatusNotFound
		message = "turn skipped, no candidates could be gathered"
		code = "TURN_SKIPPED"
	case errors.IsCode(err, "NOTHING_TO_PLAY"):
		status = http.StatusNotFound
		message = "no eligible track remains for this turn"
		code = "NOTHING_TO_PLAY"
	case errors.IsCode(err, "EMPTY_POOL"):
		status = http.StatusNotFound
		message = "all discovery strategies came back empty"
		code = "EMPTY_POOL"
	case errors.IsCode(err, "NOT_FOUND"):
		status = http.StatusNotFound
		message = "not found"
		code = "NOT_FOUND"
	}

	h.writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// HandleNextPick advances the session by one turn and returns the selection.
func (h *Handler) HandleNextPick(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := ValidateID("sessionID", sessionID); err != nil {
		h.logger.WithError(err).Warn("Next pick request with invalid session ID")
		h.writeError(w, err)
		return
	}

	result, err := h.scheduler.NextPick(r.Context(), sessionID)
	if err != nil {
		h.logger.WithError(err).WithField("sessionID", SanitizeForLogging(sessionID)).Warn("Next pick yielded no track")
		h.writeError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"sessionID":    SanitizeForLogging(sessionID),
		"identity_key": result.Track.IdentityKey,
		"forced":       result.ForcedLibraryPick,
	}).Info("Served next pick")

	h.writeJSON(w, http.StatusOK, result)
}

type poolResponse struct {
	CycleID string         `json:"cycleId"`
	BuiltAt string         `json:"builtAt"`
	Size    int            `json:"size"`
	Tracks  []models.Track `json:"tracks"`
}

// HandlePool returns the session's current candidate pool, building one when
// nothing fresh is cached.
func (h *Handler) HandlePool(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := ValidateID("sessionID", sessionID); err != nil {
		h.logger.WithError(err).Warn("Pool request with invalid session ID")
		h.writeError(w, err)
		return
	}

	pool, err := h.scheduler.Pool(r.Context(), sessionID)
	if err != nil {
		h.logger.WithError(err).WithField("sessionID", SanitizeForLogging(sessionID)).Warn("Pool request failed")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, poolResponse{
		CycleID: pool.CycleID,
		BuiltAt: pool.BuiltAt.UTC().Format(time.RFC3339),
		Size:    pool.Len(),
		Tracks:  pool.Tracks(),
	})
}

// HandleProfile returns the listener's taste snapshot.
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	listenerID := mux.Vars(r)["id"]
	if err := ValidateID("listenerID", listenerID); err != nil {
		h.logger.WithError(err).Warn("Profile request with invalid listener ID")
		h.writeError(w, err)
		return
	}

	profile, err := h.scheduler.Profile(r.Context(), listenerID)
	if err != nil {
		h.logger.WithError(err).WithField("listenerID", SanitizeForLogging(listenerID)).Error("Profile build failed")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

type listenersRequest struct {
	Listeners []string `json:"listeners"`
}

// HandleSetListeners replaces the session roster.
func (h *Handler) HandleSetListeners(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := ValidateID("sessionID", sessionID); err != nil {
		h.logger.WithError(err).Warn("Roster update with invalid session ID")
		h.writeError(w, err)
		return
	}

	var req listenersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		decodeErr := errors.ErrInvalidInput.WithContext("field", "body").WithContext("reason", "malformed JSON")
		h.logger.WithError(decodeErr).Warn("Roster update with malformed body")
		h.writeError(w, decodeErr)
		return
	}

	if len(req.Listeners) > MaxRosterSize {
		sizeErr := errors.ErrValidationFailed.WithContext("field", "listeners").
			WithContext("size", len(req.Listeners)).
			WithContext("max_allowed", MaxRosterSize)
		h.logger.WithError(sizeErr).Warn("Roster update too large")
		h.writeError(w, sizeErr)
		return
	}
	for _, listenerID := range req.Listeners {
		if err := ValidateID("listenerID", listenerID); err != nil {
			h.logger.WithError(err).Warn("Roster update with invalid listener ID")
			h.writeError(w, err)
			return
		}
	}

	if err := h.scheduler.UpdateListeners(sessionID, req.Listeners); err != nil {
		h.logger.WithError(err).WithField("sessionID", SanitizeForLogging(sessionID)).Error("Roster update failed")
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"listeners": h.scheduler.ActiveListeners(sessionID),
	})
}

type libraryRequest struct {
	Tracks []models.Track `json:"tracks"`
}

// HandleImportLibrary upserts a listener's library contributions.
func (h *Handler) HandleImportLibrary(w http.ResponseWriter, r *http.Request) {
	listenerID := mux.Vars(r)["id"]
	if err := ValidateID("listenerID", listenerID); err != nil {
		h.logger.WithError(err).Warn("Library import with invalid listener ID")
		h.writeError(w, err)
		return
	}

	var req libraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		decodeErr := errors.ErrInvalidInput.WithContext("field", "body").WithContext("reason", "malformed JSON")
		h.logger.WithError(decodeErr).Warn("Library import with malformed body")
		h.writeError(w, decodeErr)
		return
	}

	if len(req.Tracks) == 0 {
		emptyErr := errors.ErrMissingParameter.WithContext("parameter", "tracks")
		h.logger.WithError(emptyErr).Warn("Library import with no tracks")
		h.writeError(w, emptyErr)
		return
	}
	if len(req.Tracks) > MaxLibraryBatchSize {
		sizeErr := errors.ErrValidationFailed.WithContext("field", "tracks").
			WithContext("size", len(req.Tracks)).
			WithContext("max_allowed", MaxLibraryBatchSize)
		h.logger.WithError(sizeErr).Warn("Library import too large")
		h.writeError(w, sizeErr)
		return
	}
	for _, track := range req.Tracks {
		if track.Title == "" || track.Artist == "" {
			trackErr := errors.ErrValidationFailed.WithContext("field", "tracks").
				WithContext("reason", "title and artist are required")
			h.logger.WithError(trackErr).Warn("Library import with incomplete track")
			h.writeError(w, trackErr)
			return
		}
	}

	if err := h.scheduler.StoreLibrary(listenerID, req.Tracks); err != nil {
		h.logger.WithError(err).WithField("listenerID", SanitizeForLogging(listenerID)).Error("Library import failed")
		h.writeError(w, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"listenerID": SanitizeForLogging(listenerID),
		"tracks":     len(req.Tracks),
	}).Info("Library imported")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"listenerId": listenerID,
		"imported":   len(req.Tracks),
	})
}

// HandleHistory returns the session's most recent plays, newest first.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := ValidateID("sessionID", sessionID); err != nil {
		h.logger.WithError(err).Warn("History request with invalid session ID")
		h.writeError(w, err)
		return
	}

	limit := DefaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			limitErr := errors.ErrInvalidInput.WithContext("field", "limit").WithContext("value", limitStr)
			h.logger.WithError(limitErr).Warn("History request with invalid limit")
			h.writeError(w, limitErr)
			return
		}
		if parsed > MaxHistoryLimit {
			parsed = MaxHistoryLimit
		}
		limit = parsed
	}

	history, err := h.scheduler.History(sessionID, limit)
	if err != nil {
		h.logger.WithError(err).WithField("sessionID", SanitizeForLogging(sessionID)).Error("History lookup failed")
		h.writeError(w, err)
		return
	}
	if history == nil {
		history = []models.PlayRecord{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"plays":     history,
	})
}

// HandleEndSession discards the session's turn state.
func (h *Handler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if err := ValidateID("sessionID", sessionID); err != nil {
		h.logger.WithError(err).Warn("End session request with invalid session ID")
		h.writeError(w, err)
		return
	}

	h.scheduler.EndSession(sessionID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"ended":     true,
	})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}
