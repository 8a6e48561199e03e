package models

import "time"

type AppointmentStatus string

const (
	AppointmentBooked    AppointmentStatus = "BOOKED"
	AppointmentCheckedIn AppointmentStatus = "CHECKED_IN"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

type Appointment struct {
	AppointmentID   string            `json:"appointment_id"`
	PatientID       string            `json:"patient_id"`
	PatientName     string            `json:"patient_name"`
	PatientPhone    string            `json:"patient_phone,omitempty"`
	DoctorID        string            `json:"doctor_id"`
	DoctorName      string            `json:"doctor_name,omitempty"`
	Department      Department        `json:"department"`
	AppointmentDate time.Time         `json:"appointment_date"`
	TimeSlot        string            `json:"time_slot"`
	Reason          string            `json:"reason,omitempty"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
