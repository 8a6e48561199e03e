package records

import (
	"context"
	"fmt"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/google/uuid"
)

func (s *Service) CreatePrescription(ctx context.Context, p models.Prescription) (models.Prescription, error) {
	if blank(p.PatientID) || blank(p.DoctorID) || len(p.Medicines) == 0 {
		return models.Prescription{}, fmt.Errorf("%w: patient, doctor and at least one medicine are required", store.ErrInvalidInput)
	}
	for i, m := range p.Medicines {
		if blank(m.MedicineName) || blank(m.Dosage) {
			return models.Prescription{}, fmt.Errorf("%w: medicine %d needs a name and dosage", store.ErrInvalidInput, i+1)
		}
	}
	if _, err := s.patientExists(ctx, p.PatientID); err != nil {
		return models.Prescription{}, err
	}
	now := s.timestamp()
	p.PrescriptionID = uuid.NewString()
	if p.Date.IsZero() {
		p.Date = now
	}
	p.CreatedAt, p.UpdatedAt = now, now
	if err := appendRecord(ctx, s.sync, s.repos.Prescriptions, p); err != nil {
		return models.Prescription{}, err
	}
	return p, nil
}

func (s *Service) ListPrescriptions(ctx context.Context, patientID string) ([]models.Prescription, error) {
	items, err := s.repos.Prescriptions.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(items, func(p models.Prescription) bool { return patientID == "" || p.PatientID == patientID }), nil
}

func (s *Service) CreateClinicalNote(ctx context.Context, n models.ClinicalNote) (models.ClinicalNote, error) {
	if blank(n.PatientID) || blank(n.DoctorID) {
		return models.ClinicalNote{}, fmt.Errorf("%w: patient and doctor are required", store.ErrInvalidInput)
	}
	if _, err := s.patientExists(ctx, n.PatientID); err != nil {
		return models.ClinicalNote{}, err
	}
	now := s.timestamp()
	n.NoteID = uuid.NewString()
	if n.Date.IsZero() {
		n.Date = now
	}
	if n.Complaints == nil {
		n.Complaints = []string{}
	}
	n.CreatedAt, n.UpdatedAt = now, now
	if err := appendRecord(ctx, s.sync, s.repos.ClinicalNotes, n); err != nil {
		return models.ClinicalNote{}, err
	}
	return n, nil
}

func (s *Service) ListClinicalNotes(ctx context.Context, patientID string) ([]models.ClinicalNote, error) {
	items, err := s.repos.ClinicalNotes.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(items, func(n models.ClinicalNote) bool { return patientID == "" || n.PatientID == patientID }), nil
}

// RecordVitals stores a set of measurements. BMI is derived when weight (kg)
// and height (cm) are both present.
func (s *Service) RecordVitals(ctx context.Context, v models.Vitals) (models.Vitals, error) {
	if blank(v.PatientID) || blank(v.RecordedBy) {
		return models.Vitals{}, fmt.Errorf("%w: patient and recorder are required", store.ErrInvalidInput)
	}
	if _, err := s.patientExists(ctx, v.PatientID); err != nil {
		return models.Vitals{}, err
	}
	now := s.timestamp()
	v.VitalsID = uuid.NewString()
	if v.RecordedAt.IsZero() {
		v.RecordedAt = now
	}
	v.BMI = nil
	if v.Weight != nil && v.Height != nil && *v.Height > 0 {
		meters := *v.Height / 100
		bmi := round2(*v.Weight / (meters * meters))
		v.BMI = &bmi
	}
	v.CreatedAt = now
	if err := appendRecord(ctx, s.sync, s.repos.Vitals, v); err != nil {
		return models.Vitals{}, err
	}
	return v, nil
}

func (s *Service) ListVitals(ctx context.Context, patientID string) ([]models.Vitals, error) {
	items, err := s.repos.Vitals.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(items, func(v models.Vitals) bool { return patientID == "" || v.PatientID == patientID }), nil
}

func appendRecord[T any](ctx context.Context, s *datasync.Service, coll repository.Collection[T], item T) error {
	return s.Update(ctx, []string{coll.Key()}, func(tx *datasync.Tx) error {
		items, err := coll.Load(tx)
		if err != nil {
			return err
		}
		return coll.Store(tx, append(items, item))
	})
}
