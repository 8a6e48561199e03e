// Package opd issues visit tokens, derives the live department and doctor
// queues and moves tokens through consultation to a visit record.
package opd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opd/opd-service/internal/cache"
	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	// Location decides the calendar day used in token numbers.
	Location *time.Location
	Now      func() time.Time
}

type Engine struct {
	sync   *datasync.Service
	repos  *repository.Set
	tokens *cache.Cache[models.Token]
	users  *cache.Cache[models.User]
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
	tracer trace.Tracer
}

var _ store.QueueStore = (*Engine)(nil)

func NewEngine(s *datasync.Service, repos *repository.Set, tokens *cache.Cache[models.Token], users *cache.Cache[models.User], logger zerolog.Logger, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		sync:   s,
		repos:  repos,
		tokens: tokens,
		users:  users,
		loc:    opts.Location,
		now:    opts.Now,
		logger: logger,
		tracer: otel.Tracer("opd-service/opd"),
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "opd."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) IssueToken(ctx context.Context, input store.IssueTokenInput) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "IssueToken", attribute.String("department", string(input.Department)))
	defer func() { endSpan(span, err) }()

	department, ok := models.ParseDepartment(string(input.Department))
	if !ok {
		return models.Token{}, fmt.Errorf("%w: unknown department %q", store.ErrInvalidInput, input.Department)
	}
	if strings.TrimSpace(input.PatientID) == "" || strings.TrimSpace(input.PatientName) == "" {
		return models.Token{}, fmt.Errorf("%w: patient id and name are required", store.ErrInvalidInput)
	}
	visitType := models.VisitWalkIn
	if input.VisitType != "" {
		if visitType, ok = models.ParseVisitType(string(input.VisitType)); !ok {
			return models.Token{}, fmt.Errorf("%w: unknown visit type %q", store.ErrInvalidInput, input.VisitType)
		}
	}
	var requested models.Priority
	if input.Priority != "" {
		if requested, ok = models.ParsePriority(string(input.Priority)); !ok {
			return models.Token{}, fmt.Errorf("%w: unknown priority %q", store.ErrInvalidInput, input.Priority)
		}
	}
	issuedAt := e.timestamp(input.IssuedAt)

	token = models.Token{
		TokenID:     uuid.NewString(),
		Department:  department,
		PatientID:   strings.TrimSpace(input.PatientID),
		PatientName: strings.TrimSpace(input.PatientName),
		VisitType:   visitType,
		Status:      models.StatusCheckedIn,
		Priority:    effectivePriority(visitType, requested),
		CreatedAt:   issuedAt,
		UpdatedAt:   issuedAt,
	}
	if doctorID := strings.TrimSpace(input.DoctorID); doctorID != "" {
		token.DoctorID = &doctorID
	}

	var (
		committed []models.Token
		revision  uint64
	)
	err = e.sync.Update(ctx, []string{repository.KeyTokens, repository.KeyTokenEvents}, func(tx *datasync.Tx) error {
		tokens, err := e.repos.Tokens.Load(tx)
		if err != nil {
			return err
		}
		token.TokenNumber = tokenNumber(tokens, department, issuedAt, e.loc)
		tokens = append(tokens, token)
		if err := e.repos.Tokens.Store(tx, tokens); err != nil {
			return err
		}
		if err := e.appendEvent(tx, store.EventTokenIssued, token, issuedAt); err != nil {
			return err
		}
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
		Str("token_id", token.TokenID).
		Str("token_number", token.TokenNumber).
		Str("priority", string(token.Priority)).
		Msg("token issued")
	return token, nil
}

func (e *Engine) CheckInAppointment(ctx context.Context, input store.CheckInInput) (token models.Token, err error) {
	ctx, span := e.startSpan(ctx, "CheckInAppointment", attribute.String("appointment_id", input.AppointmentID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(input.AppointmentID) == "" {
		return models.Token{}, fmt.Errorf("%w: appointment id is required", store.ErrInvalidInput)
	}
	var override models.Department
	if input.Department != "" {
		var ok bool
		if override, ok = models.ParseDepartment(string(input.Department)); !ok {
			return models.Token{}, fmt.Errorf("%w: unknown department %q", store.ErrInvalidInput, input.Department)
		}
	}
	at := e.timestamp(input.CheckedInAt)

	keys := []string{repository.KeyTokens, repository.KeyAppointments, repository.KeyTokenEvents}
	var (
		committed []models.Token
		revision  uint64
	)
	err = e.sync.Update(ctx, keys, func(tx *datasync.Tx) error {
		appointments, err := e.repos.Appointments.Load(tx)
		if err != nil {
			return err
		}
		idx := -1
		for i, appt := range appointments {
			if appt.AppointmentID == input.AppointmentID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return store.ErrAppointmentNotFound
		}
		tokens, err := e.repos.Tokens.Load(tx)
		if err != nil {
			return err
		}
		for _, existing := range tokens {
			if existing.AppointmentID == input.AppointmentID {
				return fmt.Errorf("%w: token %s", store.ErrAlreadyCheckedIn, existing.TokenNumber)
			}
		}
		appt := appointments[idx]
		if appt.Status != models.AppointmentBooked {
			return fmt.Errorf("%w: appointment is %s", store.ErrInvalidState, appt.Status)
		}

		department := appt.Department
		if override != "" {
			department = override
		}
		token = models.Token{
			TokenID:       uuid.NewString(),
			TokenNumber:   tokenNumber(tokens, department, at, e.loc),
			Department:    department,
			PatientID:     appt.PatientID,
			PatientName:   appt.PatientName,
			VisitType:     models.VisitAppointment,
			Status:        models.StatusCheckedIn,
			Priority:      effectivePriority(models.VisitAppointment, ""),
			AppointmentID: appt.AppointmentID,
			CreatedAt:     at,
			UpdatedAt:     at,
		}
		if appt.DoctorID != "" {
			doctorID := appt.DoctorID
			token.DoctorID = &doctorID
		}
		tokens = append(tokens, token)
		appointments[idx].Status = models.AppointmentCheckedIn
		appointments[idx].UpdatedAt = at

		if err := e.repos.Tokens.Store(tx, tokens); err != nil {
			return err
		}
		if err := e.repos.Appointments.Store(tx, appointments); err != nil {
			return err
		}
		if err := e.appendEvent(tx, store.EventTokenIssued, token, at); err != nil {
			return err
		}
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
		Str("appointment_id", input.AppointmentID).
		Str("token_number", token.TokenNumber).
		Msg("appointment checked in")
	return token, nil
}

func (e *Engine) GetToken(ctx context.Context, tokenID string) (models.Token, error) {
	tokens, err := e.tokens.Snapshot(ctx)
	if err != nil {
		return models.Token{}, err
	}
	if idx := findToken(tokens, tokenID); idx >= 0 {
		return tokens[idx], nil
	}
	return models.Token{}, store.ErrTokenNotFound
}

func (e *Engine) DepartmentQueue(ctx context.Context, department models.Department) (entries []models.QueueEntry, err error) {
	ctx, span := e.startSpan(ctx, "DepartmentQueue", attribute.String("department", string(department)))
	defer func() { endSpan(span, err) }()

	tokens, err := e.tokens.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ProcessQueue(filterTokens(tokens, func(t models.Token) bool {
		return t.Department == department
	})), nil
}

func (e *Engine) DoctorQueue(ctx context.Context, doctorID string, department models.Department) (entries []models.QueueEntry, err error) {
	ctx, span := e.startSpan(ctx, "DoctorQueue", attribute.String("doctor_id", doctorID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(doctorID) == "" {
		return nil, fmt.Errorf("%w: doctor id is required", store.ErrInvalidInput)
	}
	department, err = e.doctorDepartment(ctx, doctorID, department)
	if err != nil {
		return nil, err
	}
	tokens, err := e.tokens.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ProcessQueue(filterTokens(tokens, func(t models.Token) bool {
		return inDoctorQueue(t, doctorID, department)
	})), nil
}

func (e *Engine) AllQueues(ctx context.Context) (map[models.Department][]models.QueueEntry, error) {
	tokens, err := e.tokens.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	byDepartment := make(map[models.Department][]models.Token)
	for _, token := range tokens {
		if token.Status.Active() {
			byDepartment[token.Department] = append(byDepartment[token.Department], token)
		}
	}
	queues := make(map[models.Department][]models.QueueEntry, len(byDepartment))
	for department, group := range byDepartment {
		queues[department] = ProcessQueue(group)
	}
	return queues, nil
}

// doctorDepartment resolves the department of doctorID from the users
// collection when the caller did not supply one. An unknown doctor only sees
// tokens assigned to them.
func (e *Engine) doctorDepartment(ctx context.Context, doctorID string, department models.Department) (models.Department, error) {
	if department != "" {
		parsed, ok := models.ParseDepartment(string(department))
		if !ok {
			return "", fmt.Errorf("%w: unknown department %q", store.ErrInvalidInput, department)
		}
		return parsed, nil
	}
	users, err := e.users.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	for _, user := range users {
		if user.UserID == doctorID {
			return user.Department, nil
		}
	}
	return "", nil
}

func (e *Engine) timestamp(at time.Time) time.Time {
	if at.IsZero() {
		at = e.now()
	}
	return at.UTC()
}

// appendEvent chains a new event onto the token's history. The events key
// must be declared in the surrounding update.
func (e *Engine) appendEvent(tx *datasync.Tx, eventType string, token models.Token, at time.Time) error {
	events, err := e.repos.TokenEvents.Load(tx)
	if err != nil {
		return err
	}
	var prev *store.TokenEvent
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].TokenID == token.TokenID {
			prev = &events[i]
			break
		}
	}
	event, err := store.NewTokenEvent(prev, eventType, token, at)
	if err != nil {
		return err
	}
	return e.repos.TokenEvents.Store(tx, append(events, event))
}
