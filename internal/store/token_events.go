package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"opd/opd-service/internal/models"
)

const (
	EventTokenIssued    = "token.issued"
	EventTokenClaimed   = "token.claimed"
	EventTokenCompleted = "token.completed"
	EventTokenCancelled = "token.cancelled"
)

// TokenEvent is one entry of a token's append-only history. Hash covers the
// previous hash so any rewrite of an earlier entry breaks the chain.
type TokenEvent struct {
	TokenID   string          `json:"token_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type eventPayload struct {
	TokenID               string     `json:"token_id"`
	TokenNumber           string     `json:"token_number"`
	Department            string     `json:"department"`
	PatientID             string     `json:"patient_id"`
	PatientName           string     `json:"patient_name"`
	VisitType             string     `json:"visit_type"`
	Priority              string     `json:"priority"`
	Status                string     `json:"status"`
	AppointmentID         string     `json:"appointment_id,omitempty"`
	DoctorID              *string    `json:"doctor_id,omitempty"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
	ConsultationStartedAt *time.Time `json:"consultation_started_at,omitempty"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

// ComputeTokenEventHash hashes an event over the canonical encoding of its
// payload, so backends that re-render stored JSON (jsonb reorders keys and
// drops whitespace) verify the same chain.
func ComputeTokenEventHash(prevHash, tokenID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, tokenID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, canonicalPayload(payload))
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// canonicalPayload re-encodes payload in field order. Payloads that do not
// decode are hashed as stored.
func canonicalPayload(payload json.RawMessage) []byte {
	if len(payload) == 0 {
		return payload
	}
	var decoded eventPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return payload
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return payload
	}
	return canonical
}

// NewTokenEvent snapshots token as the next link after prev. A nil prev starts
// a new chain.
func NewTokenEvent(prev *TokenEvent, eventType string, token models.Token, at time.Time) (TokenEvent, error) {
	createdAt := token.CreatedAt
	updatedAt := token.UpdatedAt
	payload, err := json.Marshal(eventPayload{
		TokenID:               token.TokenID,
		TokenNumber:           token.TokenNumber,
		Department:            string(token.Department),
		PatientID:             token.PatientID,
		PatientName:           token.PatientName,
		VisitType:             string(token.VisitType),
		Priority:              string(token.Priority),
		Status:                string(token.Status),
		AppointmentID:         token.AppointmentID,
		DoctorID:              token.DoctorID,
		CreatedAt:             &createdAt,
		ConsultationStartedAt: token.ConsultationStartedAt,
		UpdatedAt:             &updatedAt,
	})
	if err != nil {
		return TokenEvent{}, err
	}
	event := TokenEvent{
		TokenID:   token.TokenID,
		Seq:       1,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: at.UTC(),
	}
	if prev != nil {
		event.Seq = prev.Seq + 1
		event.PrevHash = prev.Hash
	}
	event.Hash = ComputeTokenEventHash(event.PrevHash, event.TokenID, event.Type, event.Payload, event.CreatedAt, event.Seq)
	return event, nil
}

// VerifyTokenChain checks sequence numbers and hashes of one token's events.
func VerifyTokenChain(events []TokenEvent) error {
	prevHash := ""
	for i, event := range events {
		if event.Seq != i+1 {
			return fmt.Errorf("event %d: seq %d out of order", i, event.Seq)
		}
		if event.PrevHash != prevHash {
			return fmt.Errorf("event %d: prev hash mismatch", event.Seq)
		}
		want := ComputeTokenEventHash(event.PrevHash, event.TokenID, event.Type, event.Payload, event.CreatedAt, event.Seq)
		if event.Hash != want {
			return fmt.Errorf("event %d: hash mismatch", event.Seq)
		}
		prevHash = event.Hash
	}
	return nil
}

func RehydrateToken(events []TokenEvent) (models.Token, error) {
	var token models.Token
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload eventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Token{}, err
		}
		if payload.TokenID != "" {
			token.TokenID = payload.TokenID
		}
		if payload.TokenNumber != "" {
			token.TokenNumber = payload.TokenNumber
		}
		if payload.Department != "" {
			token.Department = models.Department(payload.Department)
		}
		if payload.PatientID != "" {
			token.PatientID = payload.PatientID
		}
		if payload.PatientName != "" {
			token.PatientName = payload.PatientName
		}
		if payload.VisitType != "" {
			token.VisitType = models.VisitType(payload.VisitType)
		}
		if payload.Priority != "" {
			token.Priority = models.Priority(payload.Priority)
		}
		if payload.Status != "" {
			token.Status = models.TokenStatus(payload.Status)
		}
		if payload.AppointmentID != "" {
			token.AppointmentID = payload.AppointmentID
		}
		if payload.DoctorID != nil {
			token.DoctorID = payload.DoctorID
		}
		if payload.CreatedAt != nil {
			token.CreatedAt = *payload.CreatedAt
		}
		if payload.ConsultationStartedAt != nil {
			token.ConsultationStartedAt = payload.ConsultationStartedAt
		}
		if payload.UpdatedAt != nil {
			token.UpdatedAt = *payload.UpdatedAt
		}
	}
	return token, nil
}
