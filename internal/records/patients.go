package records

import (
	"context"
	"fmt"
	"strings"

	"opd/opd-service/internal/models"
	"opd/opd-service/internal/store"

	"github.com/google/uuid"
)

func (s *Service) RegisterPatient(ctx context.Context, input store.CreatePatientInput) (models.Patient, error) {
	if blank(input.FullName) || blank(input.Phone) {
		return models.Patient{}, fmt.Errorf("%w: full name and phone are required", store.ErrInvalidInput)
	}
	now := s.timestamp()
	patient := models.Patient{
		PatientID:        uuid.NewString(),
		FullName:         strings.TrimSpace(input.FullName),
		DateOfBirth:      input.DateOfBirth,
		Gender:           input.Gender,
		Phone:            strings.TrimSpace(input.Phone),
		Email:            input.Email,
		Address:          input.Address,
		BloodGroup:       input.BloodGroup,
		Allergies:        input.Allergies,
		EmergencyContact: input.EmergencyContact,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := appendRecord(ctx, s.sync, s.repos.Patients, patient); err != nil {
		return models.Patient{}, err
	}
	s.logger.Info().Str("patient_id", patient.PatientID).Msg("patient registered")
	return patient, nil
}

func (s *Service) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	return s.patientExists(ctx, patientID)
}

// SearchPatients matches query against name and phone, case-insensitively.
// An empty query lists every patient.
func (s *Service) SearchPatients(ctx context.Context, query string) ([]models.Patient, error) {
	patients, err := s.repos.Patients.All(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return patients, nil
	}
	return filter(patients, func(p models.Patient) bool {
		return strings.Contains(strings.ToLower(p.FullName), query) || strings.Contains(p.Phone, query)
	}), nil
}
