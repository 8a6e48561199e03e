package store

import "errors"

var (
	ErrTokenNotFound       = errors.New("token not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrAlreadyCheckedIn    = errors.New("appointment already checked in")
	ErrInvalidState        = errors.New("invalid token state")
	ErrConsultationActive  = errors.New("doctor already has a token in consultation")
	ErrQueueEmpty          = errors.New("no token waiting")
	ErrSlotUnavailable     = errors.New("time slot already booked")
	ErrInvalidInput        = errors.New("invalid input")
	ErrBillNotFound        = errors.New("bill not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrUsernameTaken       = errors.New("username already exists")
)
