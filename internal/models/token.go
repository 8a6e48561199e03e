package models

import (
	"strings"
	"time"
)

type Department string

const (
	DepartmentGeneral       Department = "GENERAL"
	DepartmentCardiology    Department = "CARDIOLOGY"
	DepartmentOrthopedics   Department = "ORTHOPEDICS"
	DepartmentPediatrics    Department = "PEDIATRICS"
	DepartmentDental        Department = "DENTAL"
	DepartmentENT           Department = "ENT"
	DepartmentDermatology   Department = "DERMATOLOGY"
	DepartmentGynecology    Department = "GYNECOLOGY"
	DepartmentNeurology     Department = "NEUROLOGY"
	DepartmentOphthalmology Department = "OPHTHALMOLOGY"
)

var departments = []Department{
	DepartmentGeneral,
	DepartmentCardiology,
	DepartmentOrthopedics,
	DepartmentPediatrics,
	DepartmentDental,
	DepartmentENT,
	DepartmentDermatology,
	DepartmentGynecology,
	DepartmentNeurology,
	DepartmentOphthalmology,
}

func ParseDepartment(raw string) (Department, bool) {
	value := Department(strings.ToUpper(strings.TrimSpace(raw)))
	for _, d := range departments {
		if d == value {
			return d, true
		}
	}
	return "", false
}

// Code is the token prefix: the first three letters of the name, upper-cased.
func (d Department) Code() string {
	name := strings.ToUpper(string(d))
	if len(name) > 3 {
		return name[:3]
	}
	return name
}

type TokenStatus string

const (
	StatusCheckedIn      TokenStatus = "CHECKED_IN"
	StatusInConsultation TokenStatus = "IN_CONSULTATION"
	StatusCompleted      TokenStatus = "COMPLETED"
	StatusCancelled      TokenStatus = "CANCELLED"
)

func (s TokenStatus) Active() bool {
	return s == StatusCheckedIn || s == StatusInConsultation
}

type VisitType string

const (
	VisitWalkIn      VisitType = "WALK_IN"
	VisitAppointment VisitType = "APPOINTMENT"
	VisitEmergency   VisitType = "EMERGENCY"
)

func ParseVisitType(raw string) (VisitType, bool) {
	switch VisitType(strings.ToUpper(strings.TrimSpace(raw))) {
	case VisitWalkIn:
		return VisitWalkIn, true
	case VisitAppointment:
		return VisitAppointment, true
	case VisitEmergency:
		return VisitEmergency, true
	}
	return "", false
}

type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
)

func ParsePriority(raw string) (Priority, bool) {
	switch Priority(strings.ToUpper(strings.TrimSpace(raw))) {
	case PriorityUrgent:
		return PriorityUrgent, true
	case PriorityHigh:
		return PriorityHigh, true
	case PriorityNormal:
		return PriorityNormal, true
	}
	return "", false
}

// Rank orders the live queue; lower sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	default:
		return 2
	}
}

type Token struct {
	TokenID               string      `json:"token_id"`
	TokenNumber           string      `json:"token_number"`
	Department            Department  `json:"department"`
	PatientID             string      `json:"patient_id"`
	PatientName           string      `json:"patient_name"`
	DoctorID              *string     `json:"doctor_id"`
	VisitType             VisitType   `json:"visit_type"`
	Status                TokenStatus `json:"status"`
	Priority              Priority    `json:"priority"`
	AppointmentID         string      `json:"appointment_id,omitempty"`
	ConsultationStartedAt *time.Time  `json:"consultation_started_at,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

func (t Token) AssignedTo(doctorID string) bool {
	return t.DoctorID != nil && *t.DoctorID == doctorID
}

// QueueEntry is a token as seen in a live queue view. QueuePosition is 0 for
// the token being served and 1..N for waiting tokens.
type QueueEntry struct {
	Token
	QueuePosition int `json:"queue_position"`
}

// SystemDoctorID marks visits completed without an assigned doctor.
const SystemDoctorID = "SYSTEM"

type Visit struct {
	VisitID     string     `json:"visit_id"`
	TokenID     string     `json:"token_id"`
	TokenNumber string     `json:"token_number"`
	PatientID   string     `json:"patient_id"`
	DoctorID    string     `json:"doctor_id"`
	Department  Department `json:"department"`
	Date        time.Time  `json:"date"`
	Diagnosis   string     `json:"diagnosis,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}
