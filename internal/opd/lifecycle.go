package opd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

var errUnchanged = errors.New("unchanged")

// ClaimToken moves a waiting token into consultation with doctorID. A doctor
// may hold one token in consultation at a time. Claiming the token the doctor
// already holds returns it unchanged.
func (e *Engine) ClaimToken(ctx context.Context, input store.TokenActionInput) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "ClaimToken",
		attribute.String("token_id", input.TokenID),
		attribute.String("doctor_id", input.DoctorID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(input.DoctorID) == "" {
		return models.Token{}, fmt.Errorf("%w: doctor id is required", store.ErrInvalidInput)
	}
	at := e.timestamp(input.OccurredAt)

	var (
		committed []models.Token
		revision  uint64
	)
	err = e.sync.Update(ctx, []string{repository.KeyTokens, repository.KeyTokenEvents}, func(tx *datasync.Tx) error {
		tokens, err := e.repos.Tokens.Load(tx)
		if err != nil {
			return err
		}
		idx := findToken(tokens, input.TokenID)
		if idx < 0 {
			return store.ErrTokenNotFound
		}
		if tokens[idx].Status == models.StatusInConsultation && tokens[idx].AssignedTo(input.DoctorID) {
			token = tokens[idx]
			return errUnchanged
		}
		if err := e.claim(tx, tokens, idx, input.DoctorID, at); err != nil {
			return err
		}
		token = tokens[idx]
		committed = tokens
		revision = e.repos.Tokens.Revision(tx)
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return token, nil
	}
	if err != nil {
		return models.Token{}, err
	}
	e.tokens.Replace(committed, revision)
	e.logger.Info().
		Str("request_id", input.RequestID).
		Str("token_id", token.TokenID).
		Str("doctor_id", input.DoctorID).
		Msg("token claimed")
	return token, nil
}

// CallNext claims the head of the doctor's queue.
func (e *Engine) CallNext(ctx context.Context, input store.CallNextInput) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "CallNext", attribute.String("doctor_id", input.DoctorID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(input.DoctorID) == "" {
		return models.Token{}, fmt.Errorf("%w: doctor id is required", store.ErrInvalidInput)
	}
	department, err := e.doctorDepartment(ctx, input.DoctorID, input.Department)
	if err != nil {
		return models.Token{}, err
	}
	at := e.timestamp(input.CalledAt)

	var (
		committed []models.Token
		revision  uint64
	)
	err = e.sync.Update(ctx, []string{repository.KeyTokens, repository.KeyTokenEvents}, func(tx *datasync.Tx) error {
		tokens, err := e.repos.Tokens.Load(tx)
		if err != nil {
			return err
		}
		if activeConsultation(tokens, input.DoctorID, "") {
			return store.ErrConsultationActive
		}
		queue := ProcessQueue(filterTokens(tokens, func(t models.Token) bool {
			return inDoctorQueue(t, input.DoctorID, department)
		}))
		next := ""
		for _, entry := range queue {
			if entry.Status == models.StatusCheckedIn {
				next = entry.TokenID
				break
			}
		}
		if next == "" {
			return store.ErrQueueEmpty
		}
		idx := findToken(tokens, next)
		if err := e.claim(tx, tokens, idx, input.DoctorID, at); err != nil {
			return err
		}
		token = tokens[idx]
		committed = tokens
		revision = e.repos.Tokens.Revision(tx)
		return nil
	})
	if err != nil {
		return models.Token{}, err
	}
	e.tokens.Replace(committed, revision)
	e.logger.Info().
		Str("request_id", input.RequestID).
		Str("token_number", token.TokenNumber).
		Str("doctor_id", input.DoctorID).
		Msg("next token called")
	return token, nil
}

// claim mutates tokens[idx] in place and records the event.
func (e *Engine) claim(tx *datasync.Tx, tokens []models.Token, idx int, doctorID string, at time.Time) error {
	current := tokens[idx]
	if !store.ValidTransition(store.ActionClaim, current.Status) {
		return fmt.Errorf("%w: token is %s", store.ErrInvalidState, current.Status)
	}
	if current.DoctorID != nil && *current.DoctorID != doctorID {
		return fmt.Errorf("%w: token is assigned to another doctor", store.ErrAccessDenied)
	}
	if activeConsultation(tokens, doctorID, current.TokenID) {
		return store.ErrConsultationActive
	}
	assigned := doctorID
	current.DoctorID = &assigned
	current.Status = models.StatusInConsultation
	if current.ConsultationStartedAt == nil {
		started := at
		current.ConsultationStartedAt = &started
	}
	current.UpdatedAt = at
	tokens[idx] = current
	if err := e.repos.Tokens.Store(tx, tokens); err != nil {
		return err
	}
	return e.appendEvent(tx, store.EventTokenClaimed, current, at)
}

// CompleteVisit closes the consultation, records exactly one visit and marks
// the source appointment completed, all in one update.
func (e *Engine) CompleteVisit(ctx context.Context, input store.TokenActionInput) (token models.Token, visit models.Visit, err error) {
	ctx, span := e.startSpan(ctx, "CompleteVisit", attribute.String("token_id", input.TokenID))
	defer func() { endSpan(span, err) }()

	at := e.timestamp(input.OccurredAt)
	keys := []string{repository.KeyTokens, repository.KeyVisits, repository.KeyAppointments, repository.KeyTokenEvents}
	var (
		committed []models.Token
		revision  uint64
	)
	err = e.sync.Update(ctx, keys, func(tx *datasync.Tx) error {
		tokens, err := e.repos.Tokens.Load(tx)
		if err != nil {
			return err
		}
		idx := findToken(tokens, input.TokenID)
		if idx < 0 {
			return store.ErrTokenNotFound
		}
		current := tokens[idx]
		if !store.ValidTransition(store.ActionComplete, current.Status) {
			return fmt.Errorf("%w: token is %s", store.ErrInvalidState, current.Status)
		}
		if input.DoctorID != "" && current.DoctorID != nil && *current.DoctorID != input.DoctorID {
			return fmt.Errorf("%w: token is assigned to another doctor", store.ErrAccessDenied)
		}
		current.Status = models.StatusCompleted
		current.UpdatedAt = at
		tokens[idx] = current

		doctorID := models.SystemDoctorID
		if current.DoctorID != nil {
			doctorID = *current.DoctorID
		}
		visit = models.Visit{
			VisitID:     uuid.NewString(),
			TokenID:     current.TokenID,
			TokenNumber: current.TokenNumber,
			PatientID:   current.PatientID,
			DoctorID:    doctorID,
			Department:  current.Department,
			Date:        at,
			Diagnosis:   strings.TrimSpace(input.Diagnosis),
			Notes:       strings.TrimSpace(input.Notes),
		}
		visits, err := e.repos.Visits.Load(tx)
		if err != nil {
			return err
		}

		if current.AppointmentID != "" {
			appointments, err := e.repos.Appointments.Load(tx)
			if err != nil {
				return err
			}
			found := false
			for i := range appointments {
				if appointments[i].AppointmentID == current.AppointmentID {
					appointments[i].Status = models.AppointmentCompleted
					appointments[i].UpdatedAt = at
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w: %s referenced by token %s", store.ErrAppointmentNotFound, current.AppointmentID, current.TokenNumber)
			}
			if err := e.repos.Appointments.Store(tx, appointments); err != nil {
				return err
			}
		}
		if err := e.repos.Tokens.Store(tx, tokens); err != nil {
			return err
		}
		if err := e.repos.Visits.Store(tx, append(visits, visit)); err != nil {
			return err
		}
		if err := e.appendEvent(tx, store.EventTokenCompleted, current, at); err != nil {
			return err
		}
		token = current
		committed = tokens
		revision = e.repos.Tokens.Revision(tx)
		return nil
	})
	if err != nil {
		return models.Token{}, models.Visit{}, err
	}
	e.tokens.Replace(committed, revision)
	e.logger.Info().
		Str("request_id", input.RequestID).
		Str("token_number", token.TokenNumber).
		Str("visit_id", visit.VisitID).
		Msg("visit completed")
	return token, visit, nil
}

func (e *Engine) CancelToken(ctx context.Context, input store.TokenActionInput) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "CancelToken", attribute.String("token_id", input.TokenID))
	defer func() { endSpan(span, err) }()

	at := e.timestamp(input.OccurredAt)
	var (
		committed []models.Token
		revision  uint64
	)
	err = e.sync.Update(ctx, []string{repository.KeyTokens, repository.KeyTokenEvents}, func(tx *datasync.Tx) error {
		tokens, err := e.repos.Tokens.Load(tx)
		if err != nil {
			return err
		}
		idx := findToken(tokens, input.TokenID)
		if idx < 0 {
			return store.ErrTokenNotFound
		}
		if !store.ValidTransition(store.ActionCancel, tokens[idx].Status) {
			return fmt.Errorf("%w: token is %s", store.ErrInvalidState, tokens[idx].Status)
		}
		tokens[idx].Status = models.StatusCancelled
		tokens[idx].UpdatedAt = at
		if err := e.repos.Tokens.Store(tx, tokens); err != nil {
			return err
		}
		if err := e.appendEvent(tx, store.EventTokenCancelled, tokens[idx], at); err != nil {
			return err
		}
		token = tokens[idx]
		committed = tokens
		revision = e.repos.Tokens.Revision(tx)
		return nil
	})
	if err != nil {
		return models.Token{}, err
	}
	e.tokens.Replace(committed, revision)
	e.logger.Info().Str("request_id", input.RequestID).Str("token_number", token.TokenNumber).Msg("token cancelled")
	return token, nil
}

// ListVisits returns visits of patientID, or every visit when it is empty.
func (e *Engine) ListVisits(ctx context.Context, patientID string) ([]models.Visit, error) {
	visits, err := e.repos.Visits.All(ctx)
	if err != nil {
		return nil, err
	}
	if patientID == "" {
		return visits, nil
	}
	out := make([]models.Visit, 0, len(visits))
	for _, visit := range visits {
		if visit.PatientID == patientID {
			out = append(out, visit)
		}
	}
	return out, nil
}

func (e *Engine) TokenHistory(ctx context.Context, tokenID string) ([]store.TokenEvent, error) {
	events, err := e.repos.TokenEvents.All(ctx)
	if err != nil {
		return nil, err
	}
	var history []store.TokenEvent
	for _, event := range events {
		if event.TokenID == tokenID {
			history = append(history, event)
		}
	}
	if len(history) == 0 {
		return nil, store.ErrTokenNotFound
	}
	if err := store.VerifyTokenChain(history); err != nil {
		e.logger.Error().Err(err).Str("token_id", tokenID).Msg("token history chain broken")
		return nil, err
	}
	return history, nil
}

// HasCompletedVisitToday reports whether patientID finished a visit on the
// current clinic day.
func (e *Engine) HasCompletedVisitToday(ctx context.Context, patientID string) (bool, error) {
	visits, err := e.ListVisits(ctx, patientID)
	if err != nil {
		return false, err
	}
	today := e.now().In(e.loc).Format("20060102")
	for _, visit := range visits {
		if visit.Date.In(e.loc).Format("20060102") == today {
			return true, nil
		}
	}
	return false, nil
}
