package httpapi

import (
	"net/http"
	"strings"

	"opd/opd-service/internal/models"
	"opd/opd-service/internal/store"
)

type issueTokenRequest struct {
	RequestID   string `json:"request_id"`
	Department  string `json:"department"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	DoctorID    string `json:"doctor_id"`
	VisitType   string `json:"visit_type"`
	Priority    string `json:"priority"`
}

type checkinRequest struct {
	RequestID     string `json:"request_id"`
	AppointmentID string `json:"appointment_id"`
	Department    string `json:"department"`
}

type tokenActionRequest struct {
	RequestID string `json:"request_id"`
	DoctorID  string `json:"doctor_id"`
	Diagnosis string `json:"diagnosis"`
	Notes     string `json:"notes"`
}

type callNextRequest struct {
	RequestID  string `json:"request_id"`
	DoctorID   string `json:"doctor_id"`
	Department string `json:"department"`
}

type completeResponse struct {
	Token models.Token `json:"token"`
	Visit models.Visit `json:"visit"`
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleReceptionist); !ok {
		return
	}
	var req issueTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reqID, ok := requestID(w, r, req.RequestID)
	if !ok {
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.PatientName = strings.TrimSpace(req.PatientName)
	if req.Department == "" || req.PatientID == "" || req.PatientName == "" {
		writeError(w, reqID, http.StatusBadRequest, "invalid_request", "department, patient_id, and patient_name are required")
		return
	}

	token, err := h.queue.IssueToken(r.Context(), store.IssueTokenInput{
		RequestID:   reqID,
		Department:  models.Department(req.Department),
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		DoctorID:    strings.TrimSpace(req.DoctorID),
		VisitType:   models.VisitType(req.VisitType),
		Priority:    models.Priority(req.Priority),
	})
	if err != nil {
		h.fail(w, r, reqID, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// handleTokenPath serves GET /api/tokens/{id}, GET /api/tokens/{id}/history
// and POST /api/tokens/{id}/actions/{claim|complete|cancel}.
func (h *Handler) handleTokenPath(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/api/tokens/")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	tokenID := parts[0]
	if !isValidUUID(tokenID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "token_id must be a UUID")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleGetToken(w, r, tokenID)
	case len(parts) == 2 && parts[1] == "history":
		h.handleTokenHistory(w, r, tokenID)
	case len(parts) == 3 && parts[1] == "actions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch parts[2] {
		case store.ActionClaim:
			h.handleClaimToken(w, r, tokenID)
		case store.ActionComplete:
			h.handleCompleteVisit(w, r, tokenID)
		case store.ActionCancel:
			h.handleCancelToken(w, r, tokenID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetToken(w http.ResponseWriter, r *http.Request, tokenID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist, models.RolePatient)
	if !ok {
		return
	}
	token, err := h.queue.GetToken(r.Context(), tokenID)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	if actor.Role == models.RolePatient && token.PatientID != actor.UserID {
		h.fail(w, r, "", store.ErrTokenNotFound)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleTokenHistory(w http.ResponseWriter, r *http.Request, tokenID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist); !ok {
		return
	}
	events, err := h.queue.TokenHistory(r.Context(), tokenID)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// doctorFor resolves the acting doctor: doctors always act as themselves,
// admins must name one.
func doctorFor(w http.ResponseWriter, r *http.Request, actor Actor, requested, reqID string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if actor.Role == models.RoleDoctor {
		if requested != "" && requested != actor.UserID {
			writeError(w, reqID, http.StatusForbidden, "access_denied", "doctors can only act for themselves")
			return "", false
		}
		return actor.UserID, true
	}
	if requested == "" {
		writeError(w, reqID, http.StatusBadRequest, "invalid_request", "doctor_id is required")
		return "", false
	}
	return requested, true
}

func (h *Handler) handleClaimToken(w http.ResponseWriter, r *http.Request, tokenID string) {
	actor, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor)
	if !ok {
		return
	}
	var req tokenActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reqID, ok := requestID(w, r, req.RequestID)
	if !ok {
		return
	}
	doctorID, ok := doctorFor(w, r, actor, req.DoctorID, reqID)
	if !ok {
		return
	}
	token, err := h.queue.ClaimToken(r.Context(), store.TokenActionInput{
		RequestID: reqID,
		TokenID:   tokenID,
		DoctorID:  doctorID,
	})
	if err != nil {
		h.fail(w, r, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleCompleteVisit(w http.ResponseWriter, r *http.Request, tokenID string) {
	actor, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor)
	if !ok {
		return
	}
	var req tokenActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reqID, ok := requestID(w, r, req.RequestID)
	if !ok {
		return
	}
	doctorID := strings.TrimSpace(req.DoctorID)
	if actor.Role == models.RoleDoctor {
		doctorID = actor.UserID
	}
	token, visit, err := h.queue.CompleteVisit(r.Context(), store.TokenActionInput{
		RequestID: reqID,
		TokenID:   tokenID,
		DoctorID:  doctorID,
		Diagnosis: strings.TrimSpace(req.Diagnosis),
		Notes:     strings.TrimSpace(req.Notes),
	})
	if err != nil {
		h.fail(w, r, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, completeResponse{Token: token, Visit: visit})
}

func (h *Handler) handleCancelToken(w http.ResponseWriter, r *http.Request, tokenID string) {
	if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist); !ok {
		return
	}
	var req tokenActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reqID, ok := requestID(w, r, req.RequestID)
	if !ok {
		return
	}
	token, err := h.queue.CancelToken(r.Context(), store.TokenActionInput{
		RequestID: reqID,
		TokenID:   tokenID,
	})
	if err != nil {
		h.fail(w, r, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor)
	if !ok {
		return
	}
	var req callNextRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reqID, ok := requestID(w, r, req.RequestID)
	if !ok {
		return
	}
	doctorID, ok := doctorFor(w, r, actor, req.DoctorID, reqID)
	if !ok {
		return
	}
	dept, ok := parseDepartmentParam(w, r, req.Department)
	if !ok {
		return
	}
	if dept == "" && actor.Role == models.RoleDoctor {
		dept = actor.Department
	}
	token, err := h.queue.CallNext(r.Context(), store.CallNextInput{
		RequestID:  reqID,
		DoctorID:   doctorID,
		Department: dept,
	})
	if err != nil {
		h.fail(w, r, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// handleQueues returns the doctor's queue for doctor_id, one department for
// department, or every department otherwise.
func (h *Handler) handleQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist); !ok {
		return
	}
	dept, ok := parseDepartmentParam(w, r, r.URL.Query().Get("department"))
	if !ok {
		return
	}
	doctorID := strings.TrimSpace(r.URL.Query().Get("doctor_id"))

	switch {
	case doctorID != "":
		entries, err := h.queue.DoctorQueue(r.Context(), doctorID, dept)
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case dept != "":
		entries, err := h.queue.DepartmentQueue(r.Context(), dept)
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	default:
		queues, err := h.queue.AllQueues(r.Context())
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, queues)
	}
}

func (h *Handler) handleAppointmentCheckin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleReceptionist); !ok {
		return
	}
	var req checkinRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	reqID, ok := requestID(w, r, req.RequestID)
	if !ok {
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, reqID, http.StatusBadRequest, "invalid_request", "appointment_id is required")
		return
	}
	dept, ok := parseDepartmentParam(w, r, req.Department)
	if !ok {
		return
	}
	token, err := h.queue.CheckInAppointment(r.Context(), store.CheckInInput{
		RequestID:     reqID,
		AppointmentID: req.AppointmentID,
		Department:    dept,
	})
	if err != nil {
		h.fail(w, r, reqID, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

type visitsResponse struct {
	Visits         []models.Visit `json:"visits"`
	CompletedToday bool           `json:"completed_today"`
}

func (h *Handler) handleVisits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	patientID, ok := patientScope(w, r)
	if !ok {
		return
	}
	visits, err := h.queue.ListVisits(r.Context(), patientID)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	resp := visitsResponse{Visits: visits}
	if patientID != "" {
		if resp.CompletedToday, err = h.queue.HasCompletedVisitToday(r.Context(), patientID); err != nil {
			h.fail(w, r, "", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
