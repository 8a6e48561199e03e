package opd

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"opd/opd-service/internal/cache"
	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/kv"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/rs/zerolog"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	engine *Engine
	sync   *datasync.Service
	repos  *repository.Set
	mem    *kv.Memory
	clock  *clock
}

func newFixture(t *testing.T, mem *kv.Memory, bus *kv.Bus) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	opts := datasync.Options{}
	if bus != nil {
		opts.Broadcaster = bus
	}
	svc := datasync.New(mem, zerolog.Nop(), opts)
	if bus != nil {
		go func() { _ = svc.Run(ctx) }()
	}
	repos := repository.NewSet(svc)
	tokens := cache.New(svc, repos.Tokens, zerolog.Nop())
	users := cache.New(svc, repos.Users, zerolog.Nop())
	tokens.Start(ctx)
	users.Start(ctx)

	clk := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	engine := NewEngine(svc, repos, tokens, users, zerolog.Nop(), Options{Location: time.UTC, Now: clk.Now})
	return &fixture{engine: engine, sync: svc, repos: repos, mem: mem, clock: clk}
}

func (f *fixture) issue(t *testing.T, dept models.Department, patient string, visit models.VisitType, priority models.Priority) models.Token {
	t.Helper()
	token, err := f.engine.IssueToken(context.Background(), store.IssueTokenInput{
		Department:  dept,
		PatientID:   patient,
		PatientName: "Patient " + patient,
		VisitType:   visit,
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (f *fixture) seedAppointments(t *testing.T, appointments ...models.Appointment) {
	t.Helper()
	if err := f.repos.Appointments.Replace(context.Background(), appointments); err != nil {
		t.Fatalf("seed appointments: %v", err)
	}
}

func (f *fixture) seedUsers(t *testing.T, users ...models.User) {
	t.Helper()
	if err := f.repos.Users.Replace(context.Background(), users); err != nil {
		t.Fatalf("seed users: %v", err)
	}
	waitUntil(t, func() bool {
		snapshot, _ := f.engine.users.Snapshot(context.Background())
		return len(snapshot) == len(users)
	})
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestIssueTokenNumbersAreUniquePerDepartmentAndDay(t *testing.T) {
	f := newFixture(t, kv.NewMemory(), nil)
	seen := map[string]bool{}
	for i := 0; i < 12; i++ {
		token := f.issue(t, models.DepartmentCardiology, "p", models.VisitWalkIn, "")
		if seen[token.TokenNumber] {
			t.Fatalf("duplicate token number %s", token.TokenNumber)
		}
		seen[token.TokenNumber] = true
	}
	if !seen["CAR-20240301-001"] || !seen["CAR-20240301-012"] {
		t.Fatalf("unexpected numbering: %v", seen)
	}
	ent := f.issue(t, models.DepartmentENT, "p", models.VisitWalkIn, "")
	if ent.TokenNumber != "ENT-20240301-001" {
		t.Fatalf("department sequences should be independent, got %s", ent.TokenNumber)
	}
}

func TestIssueTokenConcurrentInstancesDoNotCollide(t *testing.T) {
	mem := kv.NewMemory()
	bus := kv.NewBus()
	a := newFixture(t, mem, bus)
	b := newFixture(t, mem, bus)

	var wg sync.WaitGroup
	numbers := make(chan string, 20)
	for i := 0; i < 10; i++ {
		for _, f := range []*fixture{a, b} {
			wg.Add(1)
			go func(f *fixture) {
				defer wg.Done()
				token, err := f.engine.IssueToken(context.Background(), store.IssueTokenInput{
					Department:  models.DepartmentPediatrics,
					PatientID:   "p",
					PatientName: "P",
					IssuedAt:    time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
				})
				if err != nil {
					t.Errorf("issue: %v", err)
					return
				}
				numbers <- token.TokenNumber
			}(f)
		}
	}
	wg.Wait()
	close(numbers)
	seen := map[string]bool{}
	for number := range numbers {
		if seen[number] {
			t.Fatalf("duplicate token number %s", number)
		}
		seen[number] = true
	}
	if len(seen) != 20 {
		t.Fatalf("issued %d distinct tokens, want 20", len(seen))
	}
}

func TestIssueTokenPriorityOverride(t *testing.T) {
	f := newFixture(t, kv.NewMemory(), nil)
	emergency := f.issue(t, models.DepartmentGeneral, "p1", models.VisitEmergency, models.PriorityNormal)
	if emergency.Priority != models.PriorityUrgent {
		t.Fatalf("emergency priority %s", emergency.Priority)
	}
	appointment := f.issue(t, models.DepartmentGeneral, "p2", models.VisitAppointment, models.PriorityNormal)
	if appointment.Priority != models.PriorityHigh {
		t.Fatalf("appointment priority %s", appointment.Priority)
	}
	walkIn := f.issue(t, models.DepartmentGeneral, "p3", "", "")
	if walkIn.Priority != models.PriorityNormal || walkIn.VisitType != models.VisitWalkIn {
		t.Fatalf("walk-in defaults: %+v", walkIn)
	}

	stored, err := f.repos.Tokens.All(context.Background())
	if err != nil {
		t.Fatalf("load tokens: %v", err)
	}
	if stored[0].Priority != models.PriorityUrgent || stored[1].Priority != models.PriorityHigh {
		t.Fatalf("stored priorities: %s, %s", stored[0].Priority, stored[1].Priority)
	}
}

func TestIssueTokenValidation(t *testing.T) {
	f := newFixture(t, kv.NewMemory(), nil)
	cases := []store.IssueTokenInput{
		{Department: "SURGERY", PatientID: "p", PatientName: "P"},
		{Department: models.DepartmentENT, PatientName: "P"},
		{Department: models.DepartmentENT, PatientID: "p", PatientName: "P", VisitType: "HOME"},
		{Department: models.DepartmentENT, PatientID: "p", PatientName: "P", Priority: "LOW"},
	}
	for _, input := range cases {
		if _, err := f.engine.IssueToken(context.Background(), input); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("input %+v: expected ErrInvalidInput, got %v", input, err)
		}
	}
}

func TestCheckInAppointmentIsIdempotentGuarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	f.seedAppointments(t, models.Appointment{
		AppointmentID: "APT-1",
		PatientID:     "p1",
		PatientName:   "Asha",
		DoctorID:      "doc-1",
		Department:    models.DepartmentOrthopedics,
		Status:        models.AppointmentBooked,
	})

	token, err := f.engine.CheckInAppointment(ctx, store.CheckInInput{AppointmentID: "APT-1"})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if token.Priority != models.PriorityHigh || token.VisitType != models.VisitAppointment {
		t.Fatalf("unexpected token: %+v", token)
	}
	if !token.AssignedTo("doc-1") || token.AppointmentID != "APT-1" || token.TokenNumber != "ORT-20240301-001" {
		t.Fatalf("unexpected token: %+v", token)
	}

	_, err = f.engine.CheckInAppointment(ctx, store.CheckInInput{AppointmentID: "APT-1"})
	if !errors.Is(err, store.ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
	tokens, _ := f.repos.Tokens.All(ctx)
	if len(tokens) != 1 {
		t.Fatalf("expected exactly one token, got %d", len(tokens))
	}
	appointments, _ := f.repos.Appointments.All(ctx)
	if appointments[0].Status != models.AppointmentCheckedIn {
		t.Fatalf("appointment status %s", appointments[0].Status)
	}
}

func TestCheckInAppointmentErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	f.seedAppointments(t, models.Appointment{
		AppointmentID: "APT-C",
		PatientID:     "p1",
		PatientName:   "Asha",
		Department:    models.DepartmentENT,
		Status:        models.AppointmentCancelled,
	})

	if _, err := f.engine.CheckInAppointment(ctx, store.CheckInInput{AppointmentID: "missing"}); !errors.Is(err, store.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
	if _, err := f.engine.CheckInAppointment(ctx, store.CheckInInput{AppointmentID: "APT-C"}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCheckInAppointmentDepartmentOverride(t *testing.T) {
	f := newFixture(t, kv.NewMemory(), nil)
	f.seedAppointments(t, models.Appointment{
		AppointmentID: "APT-2",
		PatientID:     "p1",
		PatientName:   "Asha",
		Department:    models.DepartmentGeneral,
		Status:        models.AppointmentBooked,
	})
	token, err := f.engine.CheckInAppointment(context.Background(), store.CheckInInput{
		AppointmentID: "APT-2",
		Department:    models.DepartmentDermatology,
	})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if token.Department != models.DepartmentDermatology || token.DoctorID != nil {
		t.Fatalf("unexpected token: %+v", token)
	}
}

func TestQueueExampleScenarioThroughEngine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	a, err := f.engine.IssueToken(ctx, store.IssueTokenInput{
		Department: models.DepartmentCardiology, PatientID: "pa", PatientName: "A",
		Priority: models.PriorityNormal, IssuedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("issue A: %v", err)
	}
	b, err := f.engine.IssueToken(ctx, store.IssueTokenInput{
		Department: models.DepartmentCardiology, PatientID: "pb", PatientName: "B",
		Priority: models.PriorityUrgent, IssuedAt: time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("issue B: %v", err)
	}

	queue, err := f.engine.DepartmentQueue(ctx, models.DepartmentCardiology)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 2 || queue[0].TokenID != b.TokenID || queue[0].QueuePosition != 1 || queue[1].TokenID != a.TokenID || queue[1].QueuePosition != 2 {
		t.Fatalf("unexpected queue: %+v", queue)
	}

	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: b.TokenID, DoctorID: "doc-1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	queue, _ = f.engine.DepartmentQueue(ctx, models.DepartmentCardiology)
	got := positions(queue)
	if got[b.TokenID] != 0 || got[a.TokenID] != 1 {
		t.Fatalf("positions after claim: %v", got)
	}
}

func TestClaimTokenRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	first := f.issue(t, models.DepartmentENT, "p1", models.VisitWalkIn, "")
	second := f.issue(t, models.DepartmentENT, "p2", models.VisitWalkIn, "")

	claimed, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: first.TokenID, DoctorID: "doc-1"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != models.StatusInConsultation || claimed.ConsultationStartedAt == nil {
		t.Fatalf("unexpected claimed token: %+v", claimed)
	}

	again, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: first.TokenID, DoctorID: "doc-1"})
	if err != nil {
		t.Fatalf("repeat claim should be a no-op, got %v", err)
	}
	if !again.ConsultationStartedAt.Equal(*claimed.ConsultationStartedAt) {
		t.Fatal("consultation start changed on repeat claim")
	}

	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: second.TokenID, DoctorID: "doc-1"}); !errors.Is(err, store.ErrConsultationActive) {
		t.Fatalf("expected ErrConsultationActive, got %v", err)
	}
	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: first.TokenID, DoctorID: "doc-2"}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for a token in someone else's consultation, got %v", err)
	}
	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: "nope", DoctorID: "doc-1"}); !errors.Is(err, store.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: second.TokenID}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	history, err := f.engine.TokenHistory(ctx, first.TokenID)
	if err != nil || len(history) != 2 {
		t.Fatalf("history len=%d err=%v, repeat claim must not append events", len(history), err)
	}
}

func TestClaimTokenAssignedToAnotherDoctor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	token, err := f.engine.IssueToken(ctx, store.IssueTokenInput{
		Department: models.DepartmentENT, PatientID: "p", PatientName: "P", DoctorID: "doc-1",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: token.TokenID, DoctorID: "doc-2"}); !errors.Is(err, store.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestCallNextTakesHeadOfDoctorQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	f.seedUsers(t, models.User{UserID: "doc-1", Role: models.RoleDoctor, Department: models.DepartmentCardiology})

	if _, err := f.engine.CallNext(ctx, store.CallNextInput{DoctorID: "doc-1"}); !errors.Is(err, store.ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}

	f.issue(t, models.DepartmentCardiology, "p1", models.VisitWalkIn, models.PriorityNormal)
	urgent := f.issue(t, models.DepartmentCardiology, "p2", models.VisitEmergency, "")
	f.issue(t, models.DepartmentENT, "p3", models.VisitEmergency, "")

	next, err := f.engine.CallNext(ctx, store.CallNextInput{DoctorID: "doc-1"})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if next.TokenID != urgent.TokenID || !next.AssignedTo("doc-1") || next.Status != models.StatusInConsultation {
		t.Fatalf("unexpected next token: %+v", next)
	}

	if _, err := f.engine.CallNext(ctx, store.CallNextInput{DoctorID: "doc-1"}); !errors.Is(err, store.ErrConsultationActive) {
		t.Fatalf("expected ErrConsultationActive, got %v", err)
	}
}

func TestDoctorQueueDepartmentFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	f.seedUsers(t,
		models.User{UserID: "card", Role: models.RoleDoctor, Department: models.DepartmentCardiology},
		models.User{UserID: "ortho", Role: models.RoleDoctor, Department: models.DepartmentOrthopedics},
	)
	unassigned := f.issue(t, models.DepartmentCardiology, "p1", models.VisitWalkIn, "")

	cardQueue, err := f.engine.DoctorQueue(ctx, "card", "")
	if err != nil {
		t.Fatalf("card queue: %v", err)
	}
	if len(cardQueue) != 1 || cardQueue[0].TokenID != unassigned.TokenID {
		t.Fatalf("cardiology doctor should see unassigned token: %+v", cardQueue)
	}
	orthoQueue, err := f.engine.DoctorQueue(ctx, "ortho", "")
	if err != nil {
		t.Fatalf("ortho queue: %v", err)
	}
	if len(orthoQueue) != 0 {
		t.Fatalf("orthopedics doctor should not see cardiology token: %+v", orthoQueue)
	}
	explicit, _ := f.engine.DoctorQueue(ctx, "someone", models.DepartmentCardiology)
	if len(explicit) != 1 {
		t.Fatalf("explicit department should resolve queue: %+v", explicit)
	}
}

func TestCompleteVisitProducesExactlyOneVisit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	f.seedAppointments(t, models.Appointment{
		AppointmentID: "APT-9", PatientID: "p9", PatientName: "Ravi", DoctorID: "doc-1",
		Department: models.DepartmentGeneral, Status: models.AppointmentBooked,
	})
	token, err := f.engine.CheckInAppointment(ctx, store.CheckInInput{AppointmentID: "APT-9"})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: token.TokenID, DoctorID: "doc-1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	completed, visit, err := f.engine.CompleteVisit(ctx, store.TokenActionInput{TokenID: token.TokenID, Diagnosis: "flu"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.StatusCompleted {
		t.Fatalf("status %s", completed.Status)
	}
	if visit.TokenNumber != token.TokenNumber || visit.PatientID != "p9" || visit.Department != models.DepartmentGeneral || visit.DoctorID != "doc-1" {
		t.Fatalf("unexpected visit: %+v", visit)
	}
	visits, _ := f.engine.ListVisits(ctx, "p9")
	if len(visits) != 1 {
		t.Fatalf("expected one visit, got %d", len(visits))
	}
	appointments, _ := f.repos.Appointments.All(ctx)
	if appointments[0].Status != models.AppointmentCompleted {
		t.Fatalf("appointment not cascaded: %s", appointments[0].Status)
	}
	done, err := f.engine.HasCompletedVisitToday(ctx, "p9")
	if err != nil || !done {
		t.Fatalf("HasCompletedVisitToday=%v err=%v", done, err)
	}

	if _, _, err := f.engine.CompleteVisit(ctx, store.TokenActionInput{TokenID: token.TokenID}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("second completion: expected ErrInvalidState, got %v", err)
	}
	visits, _ = f.engine.ListVisits(ctx, "")
	if len(visits) != 1 {
		t.Fatalf("second completion added a visit: %d", len(visits))
	}
}

func TestCompleteVisitUnknownTokenWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	f.issue(t, models.DepartmentGeneral, "p1", models.VisitWalkIn, "")
	visitsSignal := f.sync.Subscribe(ctx, repository.KeyVisits)

	if _, _, err := f.engine.CompleteVisit(ctx, store.TokenActionInput{TokenID: "missing"}); !errors.Is(err, store.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	visits, _ := f.engine.ListVisits(ctx, "")
	if len(visits) != 0 {
		t.Fatalf("visits written: %+v", visits)
	}
	select {
	case key := <-visitsSignal:
		t.Fatalf("unexpected signal for %s", key)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestCompleteVisitWithoutDoctorUsesSystemSentinel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	token := f.issue(t, models.DepartmentGeneral, "p1", models.VisitWalkIn, "")
	// A legacy record already in consultation but never assigned.
	err := f.sync.Update(ctx, []string{repository.KeyTokens}, func(tx *datasync.Tx) error {
		tokens, err := f.repos.Tokens.Load(tx)
		if err != nil {
			return err
		}
		tokens[0].Status = models.StatusInConsultation
		return f.repos.Tokens.Store(tx, tokens)
	})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	_, visit, err := f.engine.CompleteVisit(ctx, store.TokenActionInput{TokenID: token.TokenID})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if visit.DoctorID != models.SystemDoctorID {
		t.Fatalf("doctor id %q", visit.DoctorID)
	}
}

func TestCompleteVisitIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	f.seedAppointments(t, models.Appointment{
		AppointmentID: "APT-X", PatientID: "p1", PatientName: "Asha", DoctorID: "doc-1",
		Department: models.DepartmentGeneral, Status: models.AppointmentBooked,
	})
	token, err := f.engine.CheckInAppointment(ctx, store.CheckInInput{AppointmentID: "APT-X"})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: token.TokenID, DoctorID: "doc-1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// The cascade target disappears: nothing may be written.
	f.seedAppointments(t)
	if _, _, err := f.engine.CompleteVisit(ctx, store.TokenActionInput{TokenID: token.TokenID}); !errors.Is(err, store.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
	stored, _ := f.repos.Tokens.All(ctx)
	if stored[0].Status != models.StatusInConsultation {
		t.Fatalf("token changed: %s", stored[0].Status)
	}
	visits, _ := f.engine.ListVisits(ctx, "")
	if len(visits) != 0 {
		t.Fatalf("visit written: %+v", visits)
	}

	// Storage failure at commit: same guarantee, surfaced as a storage error.
	f.seedAppointments(t, models.Appointment{AppointmentID: "APT-X", Status: models.AppointmentCheckedIn})
	quota := errors.New("quota exceeded")
	f.mem.FailWrites(quota)
	_, _, err = f.engine.CompleteVisit(ctx, store.TokenActionInput{TokenID: token.TokenID})
	var se *datasync.StorageError
	if !errors.As(err, &se) || !errors.Is(err, quota) {
		t.Fatalf("expected storage error, got %v", err)
	}
	f.mem.FailWrites(nil)
	stored, _ = f.repos.Tokens.All(ctx)
	appointments, _ := f.repos.Appointments.All(ctx)
	if stored[0].Status != models.StatusInConsultation || appointments[0].Status != models.AppointmentCheckedIn {
		t.Fatalf("partial write: token=%s appointment=%s", stored[0].Status, appointments[0].Status)
	}
	cached, _ := f.engine.GetToken(ctx, token.TokenID)
	if cached.Status != models.StatusInConsultation {
		t.Fatalf("cache updated despite failed commit: %s", cached.Status)
	}
}

func TestCancelToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	waiting := f.issue(t, models.DepartmentDental, "p1", models.VisitWalkIn, "")
	busy := f.issue(t, models.DepartmentDental, "p2", models.VisitWalkIn, "")
	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: busy.TokenID, DoctorID: "doc-1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	cancelled, err := f.engine.CancelToken(ctx, store.TokenActionInput{TokenID: waiting.TokenID})
	if err != nil || cancelled.Status != models.StatusCancelled {
		t.Fatalf("cancel: %+v err=%v", cancelled, err)
	}
	if _, err := f.engine.CancelToken(ctx, store.TokenActionInput{TokenID: busy.TokenID}); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	queue, _ := f.engine.DepartmentQueue(ctx, models.DepartmentDental)
	if len(queue) != 1 || queue[0].TokenID != busy.TokenID {
		t.Fatalf("cancelled token still queued: %+v", queue)
	}
	visits, _ := f.engine.ListVisits(ctx, "")
	if len(visits) != 0 {
		t.Fatal("cancel produced a visit")
	}
}

func TestCrossInstanceQueueView(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	bus := kv.NewBus()
	a := newFixture(t, mem, bus)
	b := newFixture(t, mem, bus)
	waitUntil(t, func() bool { return bus.Listeners() == 2 })

	token := a.issue(t, models.DepartmentNeurology, "p1", models.VisitWalkIn, "")
	waitUntil(t, func() bool {
		queue, _ := b.engine.DepartmentQueue(ctx, models.DepartmentNeurology)
		return len(queue) == 1 && queue[0].TokenID == token.TokenID
	})

	if _, err := b.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: token.TokenID, DoctorID: "doc-n"}); err != nil {
		t.Fatalf("claim on b: %v", err)
	}
	waitUntil(t, func() bool {
		got, err := a.engine.GetToken(ctx, token.TokenID)
		return err == nil && got.Status == models.StatusInConsultation
	})
}

func TestAllQueuesGroupsByDepartment(t *testing.T) {
	f := newFixture(t, kv.NewMemory(), nil)
	f.issue(t, models.DepartmentENT, "p1", models.VisitWalkIn, "")
	f.issue(t, models.DepartmentENT, "p2", models.VisitWalkIn, "")
	f.issue(t, models.DepartmentDental, "p3", models.VisitWalkIn, "")

	queues, err := f.engine.AllQueues(context.Background())
	if err != nil {
		t.Fatalf("all queues: %v", err)
	}
	if len(queues[models.DepartmentENT]) != 2 || len(queues[models.DepartmentDental]) != 1 {
		t.Fatalf("unexpected grouping: %+v", queues)
	}
}

func TestTokenHistoryRehydratesToStoredToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, kv.NewMemory(), nil)
	token := f.issue(t, models.DepartmentCardiology, "p1", models.VisitWalkIn, "")
	if _, err := f.engine.ClaimToken(ctx, store.TokenActionInput{TokenID: token.TokenID, DoctorID: "doc-1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, _, err := f.engine.CompleteVisit(ctx, store.TokenActionInput{TokenID: token.TokenID}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	history, err := f.engine.TokenHistory(ctx, token.TokenID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 events, got %d", len(history))
	}
	for i, want := range []string{store.EventTokenIssued, store.EventTokenClaimed, store.EventTokenCompleted} {
		if history[i].Type != want {
			t.Fatalf("event %d is %s, want %s", i, history[i].Type, want)
		}
	}

	rebuilt, err := store.RehydrateToken(history)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	stored, _ := f.engine.GetToken(ctx, token.TokenID)
	if rebuilt.Status != stored.Status || rebuilt.TokenNumber != stored.TokenNumber || !rebuilt.AssignedTo("doc-1") ||
		!rebuilt.UpdatedAt.Equal(stored.UpdatedAt) || !rebuilt.ConsultationStartedAt.Equal(*stored.ConsultationStartedAt) {
		t.Fatalf("rehydrated %+v, stored %+v", rebuilt, stored)
	}

	if _, err := f.engine.TokenHistory(ctx, "missing"); !errors.Is(err, store.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

// reorderingStore hands values back the way a jsonb column does: object keys
// sorted and whitespace changed.
type reorderingStore struct {
	*kv.Memory
}

type reorderingTx struct {
	kv.Tx
}

func rerenderJSON(raw []byte) []byte {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	out, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return raw
	}
	return out
}

func (s reorderingStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := s.Memory.Read(ctx, key)
	if err != nil || !ok {
		return raw, ok, err
	}
	return rerenderJSON(raw), true, nil
}

func (s reorderingStore) Update(ctx context.Context, keys []string, fn func(tx kv.Tx) error) error {
	return s.Memory.Update(ctx, keys, func(tx kv.Tx) error {
		return fn(reorderingTx{Tx: tx})
	})
}

func (tx reorderingTx) Get(key string) ([]byte, bool) {
	raw, ok := tx.Tx.Get(key)
	if !ok {
		return raw, ok
	}
	return rerenderJSON(raw), true
}

func TestTokenHistoryVerifiesWhenStoreReordersJSON(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := datasync.New(reorderingStore{Memory: kv.NewMemory()}, zerolog.Nop(), datasync.Options{})
	repos := repository.NewSet(svc)
	tokens := cache.New(svc, repos.Tokens, zerolog.Nop())
	users := cache.New(svc, repos.Users, zerolog.Nop())
	tokens.Start(ctx)
	users.Start(ctx)
	clk := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	engine := NewEngine(svc, repos, tokens, users, zerolog.Nop(), Options{Location: time.UTC, Now: clk.Now})

	token, err := engine.IssueToken(ctx, store.IssueTokenInput{
		Department:  models.DepartmentCardiology,
		PatientID:   "p1",
		PatientName: "Asha",
		VisitType:   models.VisitWalkIn,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := engine.ClaimToken(ctx, store.TokenActionInput{TokenID: token.TokenID, DoctorID: "doc-1"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	history, err := engine.TokenHistory(ctx, token.TokenID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}
}
