// Package repository maps each entity collection to its storage key.
package repository

import (
	"context"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/store"
)

const (
	KeyTokens        = "opd_tokens"
	KeyVisits        = "opd_visits"
	KeyTokenEvents   = "opd_token_events"
	KeyAppointments  = "appointments"
	KeyUsers         = "users"
	KeyPatients      = "patients"
	KeyBills         = "bills"
	KeyPayments      = "payments"
	KeyPrescriptions = "prescriptions"
	KeyClinicalNotes = "clinical_notes"
	KeyVitals        = "vitals"
	KeyNotifyOffset  = "notification_offset"
)

// Keys lists every collection key, in the order the migrate command visits
// them.
func Keys() []string {
	return []string{
		KeyTokens, KeyVisits, KeyTokenEvents, KeyAppointments, KeyUsers, KeyPatients,
		KeyBills, KeyPayments, KeyPrescriptions, KeyClinicalNotes, KeyVitals, KeyNotifyOffset,
	}
}

// Collection is the complete set of T stored under one key.
type Collection[T any] struct {
	sync *datasync.Service
	key  string
}

func NewCollection[T any](s *datasync.Service, key string) Collection[T] {
	return Collection[T]{sync: s, key: key}
}

func (c Collection[T]) Key() string {
	return c.key
}

// All returns the stored items. On a storage error the result is empty and
// the error is returned alongside it.
func (c Collection[T]) All(ctx context.Context) ([]T, error) {
	return datasync.GetItem(ctx, c.sync, c.key, []T{})
}

// AllAt is All plus the commit revision the items were read at.
func (c Collection[T]) AllAt(ctx context.Context) ([]T, uint64, error) {
	return datasync.GetRevision(ctx, c.sync, c.key, []T{})
}

func (c Collection[T]) Replace(ctx context.Context, items []T) error {
	return c.sync.SetItem(ctx, c.key, items)
}

// Load reads the collection inside an update. The key must be declared in
// the update.
func (c Collection[T]) Load(tx *datasync.Tx) ([]T, error) {
	items, err := datasync.Load[[]T](tx, c.key)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c Collection[T]) Store(tx *datasync.Tx, items []T) error {
	return tx.Put(c.key, items)
}

// Revision is the revision the collection commits at when tx succeeds.
func (c Collection[T]) Revision(tx *datasync.Tx) uint64 {
	return tx.Revision(c.key)
}

type Set struct {
	Tokens        Collection[models.Token]
	Visits        Collection[models.Visit]
	TokenEvents   Collection[store.TokenEvent]
	Appointments  Collection[models.Appointment]
	Users         Collection[models.User]
	Patients      Collection[models.Patient]
	Bills         Collection[models.Bill]
	Payments      Collection[models.Payment]
	Prescriptions Collection[models.Prescription]
	ClinicalNotes Collection[models.ClinicalNote]
	Vitals        Collection[models.Vitals]
}

func NewSet(s *datasync.Service) *Set {
	return &Set{
		Tokens:        NewCollection[models.Token](s, KeyTokens),
		Visits:        NewCollection[models.Visit](s, KeyVisits),
		TokenEvents:   NewCollection[store.TokenEvent](s, KeyTokenEvents),
		Appointments:  NewCollection[models.Appointment](s, KeyAppointments),
		Users:         NewCollection[models.User](s, KeyUsers),
		Patients:      NewCollection[models.Patient](s, KeyPatients),
		Bills:         NewCollection[models.Bill](s, KeyBills),
		Payments:      NewCollection[models.Payment](s, KeyPayments),
		Prescriptions: NewCollection[models.Prescription](s, KeyPrescriptions),
		ClinicalNotes: NewCollection[models.ClinicalNote](s, KeyClinicalNotes),
		Vitals:        NewCollection[models.Vitals](s, KeyVitals),
	}
}
