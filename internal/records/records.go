// Package records manages the collections around the queue: patients,
// staff, appointments, billing and clinical documentation.
package records

import (
	"context"
	"math"
	"strings"
	"time"

	"opd/opd-service/internal/cache"
	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/rs/zerolog"
)

type Options struct {
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	sync   *datasync.Service
	repos  *repository.Set
	users  *cache.Cache[models.User]
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

var _ store.RecordStore = (*Service)(nil)

func NewService(s *datasync.Service, repos *repository.Set, users *cache.Cache[models.User], logger zerolog.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		sync:   s,
		repos:  repos,
		users:  users,
		loc:    opts.Location,
		now:    opts.Now,
		logger: logger,
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func (s *Service) patientExists(ctx context.Context, patientID string) (models.Patient, error) {
	patients, err := s.repos.Patients.All(ctx)
	if err != nil {
		return models.Patient{}, err
	}
	for _, patient := range patients {
		if patient.PatientID == patientID {
			return patient, nil
		}
	}
	return models.Patient{}, store.ErrPatientNotFound
}
