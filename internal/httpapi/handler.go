// Package httpapi exposes the queue engine and record services over JSON
// HTTP, plus a SockJS endpoint that pushes change signals.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Handler struct {
	queue   store.QueueStore
	records store.RecordStore
	logger  zerolog.Logger
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(queue store.QueueStore, records store.RecordStore, logger zerolog.Logger) *Handler {
	return &Handler{queue: queue, records: records, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/tokens", h.handleTokens)
	mux.HandleFunc("/api/tokens/", h.handleTokenPath)
	mux.HandleFunc("/api/queues", h.handleQueues)
	mux.HandleFunc("/api/queues/call-next", h.handleCallNext)
	mux.HandleFunc("/api/visits", h.handleVisits)
	mux.HandleFunc("/api/appointments", h.handleAppointments)
	mux.HandleFunc("/api/appointments/checkin", h.handleAppointmentCheckin)
	mux.HandleFunc("/api/appointments/", h.handleAppointmentActions)
	mux.HandleFunc("/api/patients", h.handlePatients)
	mux.HandleFunc("/api/patients/", h.handlePatient)
	mux.HandleFunc("/api/users", h.handleUsers)
	mux.HandleFunc("/api/bills", h.handleBills)
	mux.HandleFunc("/api/bills/", h.handleBillPayments)
	mux.HandleFunc("/api/prescriptions", h.handlePrescriptions)
	mux.HandleFunc("/api/clinical-notes", h.handleClinicalNotes)
	mux.HandleFunc("/api/vitals", h.handleVitals)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

// pathParts splits the path below prefix, e.g. "/api/tokens/abc/actions/claim"
// with prefix "/api/tokens/" yields [abc actions claim].
func pathParts(r *http.Request, prefix string) []string {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func parseDepartmentParam(w http.ResponseWriter, r *http.Request, raw string) (models.Department, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	dept, ok := models.ParseDepartment(raw)
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown department")
		return "", false
	}
	return dept, true
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

// requestID prefers the body's request_id and falls back to the header. A
// non-empty id must be a UUID.
func requestID(w http.ResponseWriter, r *http.Request, fromBody string) (string, bool) {
	id := strings.TrimSpace(fromBody)
	if id == "" {
		id = requestIDFromRequest(r)
	}
	if id != "" && !isValidUUID(id) {
		writeError(w, id, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return "", false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", requestID).Msg("request failed")
	}
	writeError(w, requestID, status, code, msg)
}

func mapError(err error) (int, string, string) {
	var storageErr *datasync.StorageError
	switch {
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, store.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "appointment not found"
	case errors.Is(err, store.ErrBillNotFound):
		return http.StatusNotFound, "bill_not_found", "bill not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found", "patient not found"
	case errors.Is(err, store.ErrAlreadyCheckedIn):
		return http.StatusConflict, "already_checked_in", "appointment already checked in"
	case errors.Is(err, store.ErrConsultationActive):
		return http.StatusConflict, "consultation_active", "doctor already has a token in consultation"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "current state does not allow this action"
	case errors.Is(err, store.ErrQueueEmpty):
		return http.StatusConflict, "queue_empty", "no token waiting"
	case errors.Is(err, store.ErrSlotUnavailable):
		return http.StatusConflict, "slot_unavailable", "time slot already booked"
	case errors.Is(err, store.ErrUsernameTaken):
		return http.StatusConflict, "username_taken", "username already exists"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "storage_error", "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
