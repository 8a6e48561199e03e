package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleDoctor       Role = "DOCTOR"
	RoleReceptionist Role = "RECEPTIONIST"
	RolePatient      Role = "PATIENT"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleDoctor:
		return RoleDoctor, true
	case RoleReceptionist:
		return RoleReceptionist, true
	case RolePatient:
		return RolePatient, true
	}
	return "", false
}

const (
	UserActive   = "ACTIVE"
	UserInactive = "INACTIVE"
)

type User struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	FullName   string     `json:"full_name"`
	Role       Role       `json:"role"`
	Email      string     `json:"email,omitempty"`
	Department Department `json:"department,omitempty"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Patient struct {
	PatientID        string            `json:"patient_id"`
	FullName         string            `json:"full_name"`
	DateOfBirth      *time.Time        `json:"dob,omitempty"`
	Gender           string            `json:"gender,omitempty"`
	Phone            string            `json:"phone"`
	Email            string            `json:"email,omitempty"`
	Address          string            `json:"address,omitempty"`
	BloodGroup       string            `json:"blood_group,omitempty"`
	Allergies        string            `json:"allergies,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergency_contact,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}
