package records

import (
	"context"
	"fmt"
	"strings"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/google/uuid"
)

// BookAppointment reserves a doctor's time slot for a registered patient. A
// slot held by a booked or checked-in appointment cannot be booked again.
func (s *Service) BookAppointment(ctx context.Context, input store.BookAppointmentInput) (models.Appointment, error) {
	if blank(input.PatientID) || blank(input.DoctorID) || blank(input.TimeSlot) || input.AppointmentDate.IsZero() {
		return models.Appointment{}, fmt.Errorf("%w: patient, doctor, date and time slot are required", store.ErrInvalidInput)
	}
	patient, err := s.patientExists(ctx, input.PatientID)
	if err != nil {
		return models.Appointment{}, err
	}
	doctor, err := s.GetUser(ctx, input.DoctorID)
	if err != nil {
		return models.Appointment{}, err
	}
	if doctor.Role != models.RoleDoctor {
		return models.Appointment{}, fmt.Errorf("%w: %s is not a doctor", store.ErrInvalidInput, doctor.Username)
	}
	department := doctor.Department
	if input.Department != "" {
		parsed, ok := models.ParseDepartment(string(input.Department))
		if !ok {
			return models.Appointment{}, fmt.Errorf("%w: unknown department %q", store.ErrInvalidInput, input.Department)
		}
		department = parsed
	}

	day := input.AppointmentDate.In(s.loc).Format("20060102")
	slot := strings.TrimSpace(input.TimeSlot)
	now := s.timestamp()
	appt := models.Appointment{
		AppointmentID:   fmt.Sprintf("APT-%s-%s", day, strings.ToUpper(uuid.NewString()[:8])),
		PatientID:       patient.PatientID,
		PatientName:     patient.FullName,
		PatientPhone:    patient.Phone,
		DoctorID:        doctor.UserID,
		DoctorName:      doctor.FullName,
		Department:      department,
		AppointmentDate: input.AppointmentDate.UTC(),
		TimeSlot:        slot,
		Reason:          input.Reason,
		Status:          models.AppointmentBooked,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.sync.Update(ctx, []string{repository.KeyAppointments}, func(tx *datasync.Tx) error {
		appointments, err := s.repos.Appointments.Load(tx)
		if err != nil {
			return err
		}
		for _, existing := range appointments {
			if existing.DoctorID != appt.DoctorID || existing.TimeSlot != slot {
				continue
			}
			if existing.AppointmentDate.In(s.loc).Format("20060102") != day {
				continue
			}
			if existing.Status == models.AppointmentBooked || existing.Status == models.AppointmentCheckedIn {
				return store.ErrSlotUnavailable
			}
		}
		return s.repos.Appointments.Store(tx, append(appointments, appt))
	})
	if err != nil {
		return models.Appointment{}, err
	}
	s.logger.Info().Str("appointment_id", appt.AppointmentID).Str("doctor_id", appt.DoctorID).Msg("appointment booked")
	return appt, nil
}

func (s *Service) ListAppointments(ctx context.Context, f store.AppointmentFilter) ([]models.Appointment, error) {
	appointments, err := s.repos.Appointments.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(appointments, func(a models.Appointment) bool {
		return (f.PatientID == "" || a.PatientID == f.PatientID) &&
			(f.DoctorID == "" || a.DoctorID == f.DoctorID) &&
			(f.Status == "" || a.Status == f.Status)
	}), nil
}

func (s *Service) CancelAppointment(ctx context.Context, appointmentID string) (models.Appointment, error) {
	var cancelled models.Appointment
	err := s.sync.Update(ctx, []string{repository.KeyAppointments}, func(tx *datasync.Tx) error {
		appointments, err := s.repos.Appointments.Load(tx)
		if err != nil {
			return err
		}
		for i := range appointments {
			if appointments[i].AppointmentID != appointmentID {
				continue
			}
			if appointments[i].Status != models.AppointmentBooked {
				return fmt.Errorf("%w: appointment is %s", store.ErrInvalidState, appointments[i].Status)
			}
			appointments[i].Status = models.AppointmentCancelled
			appointments[i].UpdatedAt = s.timestamp()
			cancelled = appointments[i]
			return s.repos.Appointments.Store(tx, appointments)
		}
		return store.ErrAppointmentNotFound
	})
	if err != nil {
		return models.Appointment{}, err
	}
	return cancelled, nil
}
