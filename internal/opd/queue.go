package opd

import (
	"fmt"
	"sort"
	"time"

	"opd/opd-service/internal/models"
)

// ProcessQueue derives the live queue from tokens. Only CHECKED_IN and
// IN_CONSULTATION tokens take part. Tokens are ordered by priority rank, then
// creation time, then id, and emitted in that order. Tokens in consultation
// keep their sorted place with position 0; waiting tokens are numbered 1..N.
func ProcessQueue(tokens []models.Token) []models.QueueEntry {
	active := make([]models.Token, 0, len(tokens))
	for _, token := range tokens {
		if token.Status.Active() {
			active = append(active, token)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.TokenID < b.TokenID
	})

	entries := make([]models.QueueEntry, 0, len(active))
	position := 1
	for _, token := range active {
		entry := models.QueueEntry{Token: token}
		if token.Status == models.StatusCheckedIn {
			entry.QueuePosition = position
			position++
		}
		entries = append(entries, entry)
	}
	return entries
}

// inDoctorQueue reports whether token belongs to the queue of doctorID:
// assigned to that doctor, or unassigned in the doctor's department.
func inDoctorQueue(token models.Token, doctorID string, department models.Department) bool {
	if token.AssignedTo(doctorID) {
		return true
	}
	return token.DoctorID == nil && department != "" && token.Department == department
}

func filterTokens(tokens []models.Token, keep func(models.Token) bool) []models.Token {
	out := make([]models.Token, 0, len(tokens))
	for _, token := range tokens {
		if keep(token) {
			out = append(out, token)
		}
	}
	return out
}

// tokenNumber builds {DEP}-{YYYYMMDD}-{NNN}. NNN counts the department's
// tokens created on the same local calendar day; it grows past three digits
// rather than wrapping.
func tokenNumber(existing []models.Token, department models.Department, at time.Time, loc *time.Location) string {
	day := at.In(loc).Format("20060102")
	count := 0
	for _, token := range existing {
		if token.Department == department && token.CreatedAt.In(loc).Format("20060102") == day {
			count++
		}
	}
	return fmt.Sprintf("%s-%s-%03d", department.Code(), day, count+1)
}

// effectivePriority applies the visit-type overrides.
func effectivePriority(visitType models.VisitType, requested models.Priority) models.Priority {
	switch visitType {
	case models.VisitEmergency:
		return models.PriorityUrgent
	case models.VisitAppointment:
		return models.PriorityHigh
	}
	if requested == "" {
		return models.PriorityNormal
	}
	return requested
}

func findToken(tokens []models.Token, tokenID string) int {
	for i, token := range tokens {
		if token.TokenID == tokenID {
			return i
		}
	}
	return -1
}

func activeConsultation(tokens []models.Token, doctorID, exceptTokenID string) bool {
	for _, token := range tokens {
		if token.TokenID != exceptTokenID && token.Status == models.StatusInConsultation && token.AssignedTo(doctorID) {
			return true
		}
	}
	return false
}
