package models

import "time"

type Prescription struct {
	PrescriptionID string             `json:"prescription_id"`
	PatientID      string             `json:"patient_id"`
	DoctorID       string             `json:"doctor_id"`
	VisitID        string             `json:"visit_id,omitempty"`
	AppointmentID  string             `json:"appointment_id,omitempty"`
	Date           time.Time          `json:"date"`
	Medicines      []PrescriptionItem `json:"medicines"`
	Instructions   string             `json:"instructions,omitempty"`
	FollowUpDate   *time.Time         `json:"follow_up_date,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type PrescriptionItem struct {
	MedicineName  string `json:"medicine_name"`
	Dosage        string `json:"dosage"`
	Frequency     string `json:"frequency"`
	Duration      string `json:"duration"`
	Timing        string `json:"timing,omitempty"`
	Route         string `json:"route,omitempty"`
	TotalQuantity int    `json:"total_quantity"`
}

type ClinicalNote struct {
	NoteID        string    `json:"note_id"`
	PatientID     string    `json:"patient_id"`
	DoctorID      string    `json:"doctor_id"`
	VisitID       string    `json:"visit_id,omitempty"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Date          time.Time `json:"date"`
	Complaints    []string  `json:"complaints"`
	History       string    `json:"history,omitempty"`
	Examination   string    `json:"examination,omitempty"`
	Diagnosis     string    `json:"diagnosis,omitempty"`
	Plan          string    `json:"plan,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type BloodPressure struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

type Vitals struct {
	VitalsID        string         `json:"vitals_id"`
	PatientID       string         `json:"patient_id"`
	AppointmentID   string         `json:"appointment_id,omitempty"`
	VisitID         string         `json:"visit_id,omitempty"`
	RecordedBy      string         `json:"recorded_by"`
	RecordedAt      time.Time      `json:"recorded_at"`
	Temperature     *float64       `json:"temperature,omitempty"`
	Pulse           *int           `json:"pulse,omitempty"`
	BloodPressure   *BloodPressure `json:"blood_pressure,omitempty"`
	RespiratoryRate *int           `json:"respiratory_rate,omitempty"`
	SpO2            *int           `json:"spo2,omitempty"`
	Weight          *float64       `json:"weight,omitempty"`
	Height          *float64       `json:"height,omitempty"`
	BMI             *float64       `json:"bmi,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
