package httpapi

import (
	"net/http"
	"strings"
	"time"

	"opd/opd-service/internal/models"
	"opd/opd-service/internal/store"
)

type createPatientRequest struct {
	FullName         string                   `json:"full_name"`
	DateOfBirth      string                   `json:"dob"`
	Gender           string                   `json:"gender"`
	Phone            string                   `json:"phone"`
	Email            string                   `json:"email"`
	Address          string                   `json:"address"`
	BloodGroup       string                   `json:"blood_group"`
	Allergies        string                   `json:"allergies"`
	EmergencyContact *models.EmergencyContact `json:"emergency_contact"`
}

type createUserRequest struct {
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

type bookAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	DoctorID        string `json:"doctor_id"`
	Department      string `json:"department"`
	AppointmentDate string `json:"appointment_date"`
	TimeSlot        string `json:"time_slot"`
	Reason          string `json:"reason"`
}

type createBillRequest struct {
	PatientID      string            `json:"patient_id"`
	VisitID        string            `json:"visit_id"`
	Items          []models.BillItem `json:"items"`
	TaxRate        float64           `json:"tax_rate"`
	DiscountAmount float64           `json:"discount_amount"`
}

type paymentRequest struct {
	Amount        float64 `json:"amount"`
	Method        string  `json:"method"`
	TransactionID string  `json:"transaction_id"`
}

type paymentResponse struct {
	Bill    models.Bill    `json:"bill"`
	Payment models.Payment `json:"payment"`
}

const dateLayout = "2006-01-02"

func (h *Handler) handlePatients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist); !ok {
			return
		}
		patients, err := h.records.SearchPatients(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, patients)
	case http.MethodPost:
		if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleReceptionist); !ok {
			return
		}
		var req createPatientRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		input := store.CreatePatientInput{
			FullName:         req.FullName,
			Gender:           strings.TrimSpace(req.Gender),
			Phone:            req.Phone,
			Email:            strings.TrimSpace(req.Email),
			Address:          strings.TrimSpace(req.Address),
			BloodGroup:       strings.TrimSpace(req.BloodGroup),
			Allergies:        strings.TrimSpace(req.Allergies),
			EmergencyContact: req.EmergencyContact,
		}
		if req.DateOfBirth != "" {
			dob, err := time.Parse(dateLayout, req.DateOfBirth)
			if err != nil {
				writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "dob must be YYYY-MM-DD")
				return
			}
			input.DateOfBirth = &dob
		}
		patient, err := h.records.RegisterPatient(r.Context(), input)
		if err != nil {
			h.fail(w, r, requestIDFromRequest(r), err)
			return
		}
		writeJSON(w, http.StatusCreated, patient)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePatient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/api/patients/")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	actor, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist, models.RolePatient)
	if !ok {
		return
	}
	if actor.Role == models.RolePatient && actor.UserID != parts[0] {
		h.fail(w, r, "", store.ErrPatientNotFound)
		return
	}
	patient, err := h.records.GetPatient(r.Context(), parts[0])
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist, models.RolePatient); !ok {
			return
		}
		query := r.URL.Query()
		var role models.Role
		if raw := strings.TrimSpace(query.Get("role")); raw != "" {
			parsed, ok := models.ParseRole(raw)
			if !ok {
				writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown role")
				return
			}
			role = parsed
		}
		dept, ok := parseDepartmentParam(w, r, query.Get("department"))
		if !ok {
			return
		}
		users, err := h.records.ListUsers(r.Context(), role, dept)
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		if _, ok := requireRole(w, r, models.RoleAdmin); !ok {
			return
		}
		var req createUserRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		user, err := h.records.CreateUser(r.Context(), store.CreateUserInput{
			Username:   req.Username,
			FullName:   req.FullName,
			Role:       models.Role(req.Role),
			Email:      strings.TrimSpace(req.Email),
			Department: models.Department(req.Department),
		})
		if err != nil {
			h.fail(w, r, requestIDFromRequest(r), err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		patientID, ok := patientScope(w, r)
		if !ok {
			return
		}
		query := r.URL.Query()
		appointments, err := h.records.ListAppointments(r.Context(), store.AppointmentFilter{
			PatientID: patientID,
			DoctorID:  strings.TrimSpace(query.Get("doctor_id")),
			Status:    models.AppointmentStatus(strings.ToUpper(strings.TrimSpace(query.Get("status")))),
		})
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, appointments)
	case http.MethodPost:
		actor, ok := requireRole(w, r, models.RoleAdmin, models.RoleReceptionist, models.RolePatient)
		if !ok {
			return
		}
		var req bookAppointmentRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if actor.Role == models.RolePatient {
			if req.PatientID != "" && req.PatientID != actor.UserID {
				writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "patients can only book for themselves")
				return
			}
			req.PatientID = actor.UserID
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(req.AppointmentDate))
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "appointment_date must be YYYY-MM-DD")
			return
		}
		appt, err := h.records.BookAppointment(r.Context(), store.BookAppointmentInput{
			PatientID:       strings.TrimSpace(req.PatientID),
			DoctorID:        strings.TrimSpace(req.DoctorID),
			Department:      models.Department(req.Department),
			AppointmentDate: date,
			TimeSlot:        req.TimeSlot,
			Reason:          strings.TrimSpace(req.Reason),
		})
		if err != nil {
			h.fail(w, r, requestIDFromRequest(r), err)
			return
		}
		writeJSON(w, http.StatusCreated, appt)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAppointmentActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/api/appointments/")
	if len(parts) != 3 || parts[1] != "actions" || parts[2] != "cancel" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleReceptionist); !ok {
		return
	}
	appt, err := h.records.CancelAppointment(r.Context(), parts[0])
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) handleBills(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		patientID, ok := patientScope(w, r)
		if !ok {
			return
		}
		bills, err := h.records.ListBills(r.Context(), patientID)
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, bills)
	case http.MethodPost:
		if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleReceptionist); !ok {
			return
		}
		var req createBillRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		bill, err := h.records.CreateBill(r.Context(), store.CreateBillInput{
			PatientID:      strings.TrimSpace(req.PatientID),
			VisitID:        strings.TrimSpace(req.VisitID),
			Items:          req.Items,
			TaxRate:        req.TaxRate,
			DiscountAmount: req.DiscountAmount,
		})
		if err != nil {
			h.fail(w, r, requestIDFromRequest(r), err)
			return
		}
		writeJSON(w, http.StatusCreated, bill)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleBillPayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/api/bills/")
	if len(parts) != 2 || parts[1] != "payments" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleReceptionist); !ok {
		return
	}
	var req paymentRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	bill, payment, err := h.records.RecordPayment(r.Context(), store.RecordPaymentInput{
		BillID:        parts[0],
		Amount:        req.Amount,
		Method:        req.Method,
		TransactionID: strings.TrimSpace(req.TransactionID),
	})
	if err != nil {
		h.fail(w, r, requestIDFromRequest(r), err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResponse{Bill: bill, Payment: payment})
}

func (h *Handler) handlePrescriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		patientID, ok := patientScope(w, r)
		if !ok {
			return
		}
		items, err := h.records.ListPrescriptions(r.Context(), patientID)
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		actor, ok := requireRole(w, r, models.RoleDoctor)
		if !ok {
			return
		}
		var req models.Prescription
		if !decodeRequest(w, r, &req) {
			return
		}
		req.DoctorID = actor.UserID
		created, err := h.records.CreatePrescription(r.Context(), req)
		if err != nil {
			h.fail(w, r, requestIDFromRequest(r), err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleClinicalNotes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor); !ok {
			return
		}
		notes, err := h.records.ListClinicalNotes(r.Context(), strings.TrimSpace(r.URL.Query().Get("patient_id")))
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, notes)
	case http.MethodPost:
		actor, ok := requireRole(w, r, models.RoleDoctor)
		if !ok {
			return
		}
		var req models.ClinicalNote
		if !decodeRequest(w, r, &req) {
			return
		}
		req.DoctorID = actor.UserID
		created, err := h.records.CreateClinicalNote(r.Context(), req)
		if err != nil {
			h.fail(w, r, requestIDFromRequest(r), err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleVitals(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		patientID, ok := patientScope(w, r)
		if !ok {
			return
		}
		items, err := h.records.ListVitals(r.Context(), patientID)
		if err != nil {
			h.fail(w, r, "", err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		actor, ok := requireRole(w, r, models.RoleAdmin, models.RoleDoctor, models.RoleReceptionist)
		if !ok {
			return
		}
		var req models.Vitals
		if !decodeRequest(w, r, &req) {
			return
		}
		req.RecordedBy = actor.UserID
		created, err := h.records.RecordVitals(r.Context(), req)
		if err != nil {
			h.fail(w, r, requestIDFromRequest(r), err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
