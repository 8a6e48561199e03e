package httpapi

import (
	"context"

	"opd/opd-service/internal/models"
	"opd/opd-service/internal/store"
)

type fakeQueue struct {
	issueFn     func(ctx context.Context, input store.IssueTokenInput) (models.Token, error)
	checkinFn   func(ctx context.Context, input store.CheckInInput) (models.Token, error)
	getFn       func(ctx context.Context, tokenID string) (models.Token, error)
	deptQueueFn func(ctx context.Context, department models.Department) ([]models.QueueEntry, error)
	docQueueFn  func(ctx context.Context, doctorID string, department models.Department) ([]models.QueueEntry, error)
	allQueuesFn func(ctx context.Context) (map[models.Department][]models.QueueEntry, error)
	claimFn     func(ctx context.Context, input store.TokenActionInput) (models.Token, error)
	callFn      func(ctx context.Context, input store.CallNextInput) (models.Token, error)
	completeFn  func(ctx context.Context, input store.TokenActionInput) (models.Token, models.Visit, error)
	cancelFn    func(ctx context.Context, input store.TokenActionInput) (models.Token, error)
	visitsFn    func(ctx context.Context, patientID string) ([]models.Visit, error)
	historyFn   func(ctx context.Context, tokenID string) ([]store.TokenEvent, error)
	completedFn func(ctx context.Context, patientID string) (bool, error)
}

func (f fakeQueue) IssueToken(ctx context.Context, input store.IssueTokenInput) (models.Token, error) {
	if f.issueFn == nil {
		return models.Token{}, nil
	}
	return f.issueFn(ctx, input)
}

func (f fakeQueue) CheckInAppointment(ctx context.Context, input store.CheckInInput) (models.Token, error) {
	if f.checkinFn == nil {
		return models.Token{}, nil
	}
	return f.checkinFn(ctx, input)
}

func (f fakeQueue) GetToken(ctx context.Context, tokenID string) (models.Token, error) {
	if f.getFn == nil {
		return models.Token{}, store.ErrTokenNotFound
	}
	return f.getFn(ctx, tokenID)
}

func (f fakeQueue) DepartmentQueue(ctx context.Context, department models.Department) ([]models.QueueEntry, error) {
	if f.deptQueueFn == nil {
		return nil, nil
	}
	return f.deptQueueFn(ctx, department)
}

func (f fakeQueue) DoctorQueue(ctx context.Context, doctorID string, department models.Department) ([]models.QueueEntry, error) {
	if f.docQueueFn == nil {
		return nil, nil
	}
	return f.docQueueFn(ctx, doctorID, department)
}

func (f fakeQueue) AllQueues(ctx context.Context) (map[models.Department][]models.QueueEntry, error) {
	if f.allQueuesFn == nil {
		return nil, nil
	}
	return f.allQueuesFn(ctx)
}

func (f fakeQueue) ClaimToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	if f.claimFn == nil {
		return models.Token{}, nil
	}
	return f.claimFn(ctx, input)
}

func (f fakeQueue) CallNext(ctx context.Context, input store.CallNextInput) (models.Token, error) {
	if f.callFn == nil {
		return models.Token{}, store.ErrQueueEmpty
	}
	return f.callFn(ctx, input)
}

func (f fakeQueue) CompleteVisit(ctx context.Context, input store.TokenActionInput) (models.Token, models.Visit, error) {
	if f.completeFn == nil {
		return models.Token{}, models.Visit{}, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeQueue) CancelToken(ctx context.Context, input store.TokenActionInput) (models.Token, error) {
	if f.cancelFn == nil {
		return models.Token{}, nil
	}
	return f.cancelFn(ctx, input)
}

func (f fakeQueue) ListVisits(ctx context.Context, patientID string) ([]models.Visit, error) {
	if f.visitsFn == nil {
		return nil, nil
	}
	return f.visitsFn(ctx, patientID)
}

func (f fakeQueue) TokenHistory(ctx context.Context, tokenID string) ([]store.TokenEvent, error) {
	if f.historyFn == nil {
		return nil, nil
	}
	return f.historyFn(ctx, tokenID)
}

func (f fakeQueue) HasCompletedVisitToday(ctx context.Context, patientID string) (bool, error) {
	if f.completedFn == nil {
		return false, nil
	}
	return f.completedFn(ctx, patientID)
}

type fakeRecords struct {
	registerFn   func(ctx context.Context, input store.CreatePatientInput) (models.Patient, error)
	getPatientFn func(ctx context.Context, patientID string) (models.Patient, error)
	searchFn     func(ctx context.Context, query string) ([]models.Patient, error)
	createUserFn func(ctx context.Context, input store.CreateUserInput) (models.User, error)
	getUserFn    func(ctx context.Context, userID string) (models.User, error)
	listUsersFn  func(ctx context.Context, role models.Role, department models.Department) ([]models.User, error)
	bookFn       func(ctx context.Context, input store.BookAppointmentInput) (models.Appointment, error)
	listApptsFn  func(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error)
	cancelApptFn func(ctx context.Context, appointmentID string) (models.Appointment, error)
	createBillFn func(ctx context.Context, input store.CreateBillInput) (models.Bill, error)
	paymentFn    func(ctx context.Context, input store.RecordPaymentInput) (models.Bill, models.Payment, error)
	listBillsFn  func(ctx context.Context, patientID string) ([]models.Bill, error)
	prescribeFn  func(ctx context.Context, p models.Prescription) (models.Prescription, error)
	listRxFn     func(ctx context.Context, patientID string) ([]models.Prescription, error)
	noteFn       func(ctx context.Context, n models.ClinicalNote) (models.ClinicalNote, error)
	listNotesFn  func(ctx context.Context, patientID string) ([]models.ClinicalNote, error)
	vitalsFn     func(ctx context.Context, v models.Vitals) (models.Vitals, error)
	listVitalsFn func(ctx context.Context, patientID string) ([]models.Vitals, error)
}

func (f fakeRecords) RegisterPatient(ctx context.Context, input store.CreatePatientInput) (models.Patient, error) {
	if f.registerFn == nil {
		return models.Patient{}, nil
	}
	return f.registerFn(ctx, input)
}

func (f fakeRecords) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	if f.getPatientFn == nil {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return f.getPatientFn(ctx, patientID)
}

func (f fakeRecords) SearchPatients(ctx context.Context, query string) ([]models.Patient, error) {
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(ctx, query)
}

func (f fakeRecords) CreateUser(ctx context.Context, input store.CreateUserInput) (models.User, error) {
	if f.createUserFn == nil {
		return models.User{}, nil
	}
	return f.createUserFn(ctx, input)
}

func (f fakeRecords) GetUser(ctx context.Context, userID string) (models.User, error) {
	if f.getUserFn == nil {
		return models.User{}, store.ErrUserNotFound
	}
	return f.getUserFn(ctx, userID)
}

func (f fakeRecords) ListUsers(ctx context.Context, role models.Role, department models.Department) ([]models.User, error) {
	if f.listUsersFn == nil {
		return nil, nil
	}
	return f.listUsersFn(ctx, role, department)
}

func (f fakeRecords) BookAppointment(ctx context.Context, input store.BookAppointmentInput) (models.Appointment, error) {
	if f.bookFn == nil {
		return models.Appointment{}, nil
	}
	return f.bookFn(ctx, input)
}

func (f fakeRecords) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error) {
	if f.listApptsFn == nil {
		return nil, nil
	}
	return f.listApptsFn(ctx, filter)
}

func (f fakeRecords) CancelAppointment(ctx context.Context, appointmentID string) (models.Appointment, error) {
	if f.cancelApptFn == nil {
		return models.Appointment{}, nil
	}
	return f.cancelApptFn(ctx, appointmentID)
}

func (f fakeRecords) CreateBill(ctx context.Context, input store.CreateBillInput) (models.Bill, error) {
	if f.createBillFn == nil {
		return models.Bill{}, nil
	}
	return f.createBillFn(ctx, input)
}

func (f fakeRecords) RecordPayment(ctx context.Context, input store.RecordPaymentInput) (models.Bill, models.Payment, error) {
	if f.paymentFn == nil {
		return models.Bill{}, models.Payment{}, nil
	}
	return f.paymentFn(ctx, input)
}

func (f fakeRecords) ListBills(ctx context.Context, patientID string) ([]models.Bill, error) {
	if f.listBillsFn == nil {
		return nil, nil
	}
	return f.listBillsFn(ctx, patientID)
}

func (f fakeRecords) CreatePrescription(ctx context.Context, p models.Prescription) (models.Prescription, error) {
	if f.prescribeFn == nil {
		return p, nil
	}
	return f.prescribeFn(ctx, p)
}

func (f fakeRecords) ListPrescriptions(ctx context.Context, patientID string) ([]models.Prescription, error) {
	if f.listRxFn == nil {
		return nil, nil
	}
	return f.listRxFn(ctx, patientID)
}

func (f fakeRecords) CreateClinicalNote(ctx context.Context, n models.ClinicalNote) (models.ClinicalNote, error) {
	if f.noteFn == nil {
		return n, nil
	}
	return f.noteFn(ctx, n)
}

func (f fakeRecords) ListClinicalNotes(ctx context.Context, patientID string) ([]models.ClinicalNote, error) {
	if f.listNotesFn == nil {
		return nil, nil
	}
	return f.listNotesFn(ctx, patientID)
}

func (f fakeRecords) RecordVitals(ctx context.Context, v models.Vitals) (models.Vitals, error) {
	if f.vitalsFn == nil {
		return v, nil
	}
	return f.vitalsFn(ctx, v)
}

func (f fakeRecords) ListVitals(ctx context.Context, patientID string) ([]models.Vitals, error) {
	if f.listVitalsFn == nil {
		return nil, nil
	}
	return f.listVitalsFn(ctx, patientID)
}
