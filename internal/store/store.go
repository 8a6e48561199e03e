package store

import (
	"context"
	"time"

	"opd/opd-service/internal/models"
)

type IssueTokenInput struct {
	RequestID   string
	Department  models.Department
	PatientID   string
	PatientName string
	DoctorID    string
	VisitType   models.VisitType
	Priority    models.Priority
	IssuedAt    time.Time
}

type CheckInInput struct {
	RequestID     string
	AppointmentID string
	// Department overrides the appointment's department when set.
	Department  models.Department
	CheckedInAt time.Time
}

type TokenActionInput struct {
	RequestID  string
	TokenID    string
	DoctorID   string
	Diagnosis  string
	Notes      string
	OccurredAt time.Time
}

type CallNextInput struct {
	RequestID  string
	DoctorID   string
	Department models.Department
	CalledAt   time.Time
}

type QueueStore interface {
	IssueToken(ctx context.Context, input IssueTokenInput) (models.Token, error)
	CheckInAppointment(ctx context.Context, input CheckInInput) (models.Token, error)
	GetToken(ctx context.Context, tokenID string) (models.Token, error)
	DepartmentQueue(ctx context.Context, department models.Department) ([]models.QueueEntry, error)
	DoctorQueue(ctx context.Context, doctorID string, department models.Department) ([]models.QueueEntry, error)
	AllQueues(ctx context.Context) (map[models.Department][]models.QueueEntry, error)
	ClaimToken(ctx context.Context, input TokenActionInput) (models.Token, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Token, error)
	CompleteVisit(ctx context.Context, input TokenActionInput) (models.Token, models.Visit, error)
	CancelToken(ctx context.Context, input TokenActionInput) (models.Token, error)
	ListVisits(ctx context.Context, patientID string) ([]models.Visit, error)
	TokenHistory(ctx context.Context, tokenID string) ([]TokenEvent, error)
	HasCompletedVisitToday(ctx context.Context, patientID string) (bool, error)
}

type CreatePatientInput struct {
	FullName         string
	DateOfBirth      *time.Time
	Gender           string
	Phone            string
	Email            string
	Address          string
	BloodGroup       string
	Allergies        string
	EmergencyContact *models.EmergencyContact
}

type CreateUserInput struct {
	Username   string
	FullName   string
	Role       models.Role
	Email      string
	Department models.Department
}

type BookAppointmentInput struct {
	PatientID       string
	DoctorID        string
	Department      models.Department
	AppointmentDate time.Time
	TimeSlot        string
	Reason          string
}

type AppointmentFilter struct {
	PatientID string
	DoctorID  string
	Status    models.AppointmentStatus
}

type CreateBillInput struct {
	PatientID      string
	VisitID        string
	Items          []models.BillItem
	TaxRate        float64
	DiscountAmount float64
}

type RecordPaymentInput struct {
	BillID        string
	Amount        float64
	Method        string
	TransactionID string
}

type RecordStore interface {
	RegisterPatient(ctx context.Context, input CreatePatientInput) (models.Patient, error)
	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
	SearchPatients(ctx context.Context, query string) ([]models.Patient, error)

	CreateUser(ctx context.Context, input CreateUserInput) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	ListUsers(ctx context.Context, role models.Role, department models.Department) ([]models.User, error)

	BookAppointment(ctx context.Context, input BookAppointmentInput) (models.Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string) (models.Appointment, error)

	CreateBill(ctx context.Context, input CreateBillInput) (models.Bill, error)
	RecordPayment(ctx context.Context, input RecordPaymentInput) (models.Bill, models.Payment, error)
	ListBills(ctx context.Context, patientID string) ([]models.Bill, error)

	CreatePrescription(ctx context.Context, p models.Prescription) (models.Prescription, error)
	ListPrescriptions(ctx context.Context, patientID string) ([]models.Prescription, error)
	CreateClinicalNote(ctx context.Context, n models.ClinicalNote) (models.ClinicalNote, error)
	ListClinicalNotes(ctx context.Context, patientID string) ([]models.ClinicalNote, error)
	RecordVitals(ctx context.Context, v models.Vitals) (models.Vitals, error)
	ListVitals(ctx context.Context, patientID string) ([]models.Vitals, error)
}
