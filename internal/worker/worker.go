// Package worker relays token events to patients through notification
// providers.
package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"opd/opd-service/internal/datasync"
	"opd/opd-service/internal/models"
	"opd/opd-service/internal/repository"
	"opd/opd-service/internal/store"

	"github.com/rs/zerolog"
)

type Worker struct {
	sync      *datasync.Service
	repos     *repository.Set
	batchSize int
	providers map[string]Provider
	logger    zerolog.Logger
}

type payloadData map[string]interface{}

type Config struct {
	BatchSize int
	// Providers maps a channel name ("sms", "email") to its provider.
	Providers map[string]Provider
}

func New(s *datasync.Service, repos *repository.Set, cfg Config, logger zerolog.Logger) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	providers := cfg.Providers
	if providers == nil {
		providers = map[string]Provider{}
	}
	return &Worker{
		sync:      s,
		repos:     repos,
		batchSize: batch,
		providers: providers,
		logger:    logger.With().Str("component", "notification-worker").Logger(),
	}
}

// Run claims the next batch of token events past the stored offset and sends
// a notification for each one that has a template. The offset advances in the
// same update that reads the batch, so concurrent workers never share events.
func (w *Worker) Run(ctx context.Context) error {
	batch, err := w.claim(ctx)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	patients, err := w.repos.Patients.All(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]models.Patient, len(patients))
	for _, p := range patients {
		byID[p.PatientID] = p
	}
	for _, event := range batch {
		if err := w.processEvent(ctx, event, byID); err != nil {
			w.logger.Warn().Err(err).Str("token_id", event.TokenID).Str("type", event.Type).Msg("notification failed")
		}
	}
	return nil
}

func (w *Worker) claim(ctx context.Context) ([]store.TokenEvent, error) {
	var batch []store.TokenEvent
	keys := []string{repository.KeyTokenEvents, repository.KeyNotifyOffset}
	err := w.sync.Update(ctx, keys, func(tx *datasync.Tx) error {
		batch = nil
		offset, err := datasync.Load[int](tx, repository.KeyNotifyOffset)
		if err != nil {
			return err
		}
		events, err := w.repos.TokenEvents.Load(tx)
		if err != nil {
			return err
		}
		if offset < 0 || offset > len(events) {
			offset = 0
		}
		end := offset + w.batchSize
		if end > len(events) {
			end = len(events)
		}
		if end == offset {
			return nil
		}
		batch = events[offset:end]
		return tx.Put(repository.KeyNotifyOffset, end)
	})
	return batch, err
}

func (w *Worker) processEvent(ctx context.Context, event store.TokenEvent, patients map[string]models.Patient) error {
	templateID := templateForEvent(event.Type)
	if templateID == "" {
		return nil
	}
	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}
	patientID, _ := payload["patient_id"].(string)
	patient, ok := patients[patientID]
	if !ok {
		return nil
	}
	message := w.renderTemplate(defaultTemplate(templateID), payload)
	for _, channel := range pickChannels(patient) {
		provider, ok := w.providers[channel.name]
		if !ok {
			continue
		}
		if err := provider.Send(ctx, message, channel.recipient); err != nil {
			w.logger.Warn().Err(err).Str("channel", channel.name).Str("token_id", event.TokenID).Msg("provider send failed")
			continue
		}
		w.logger.Debug().Str("channel", channel.name).Str("token_id", event.TokenID).Msg("notification delivered")
	}
	return nil
}

func templateForEvent(eventType string) string {
	switch eventType {
	case store.EventTokenIssued:
		return "token_issued"
	case store.EventTokenClaimed:
		return "token_claimed"
	default:
		return ""
	}
}

func defaultTemplate(templateID string) string {
	switch templateID {
	case "token_issued":
		return "Token {token_number} issued for {department}."
	case "token_claimed":
		return "Token {token_number}: please proceed to the doctor."
	}
	return ""
}

func (w *Worker) renderTemplate(template string, payload payloadData) string {
	result := template
	for _, key := range []string{"token_number", "department", "patient_name"} {
		placeholder := "{" + key + "}"
		if !strings.Contains(result, placeholder) {
			continue
		}
		result = strings.ReplaceAll(result, placeholder, w.str(payload, key))
	}
	return result
}

func (w *Worker) str(payload payloadData, key string) string {
	if value, ok := payload[key]; ok {
		if text, ok := value.(string); ok {
			return text
		}
	}
	w.logger.Debug().Str("variable", key).Msg("template variable missing")
	return ""
}

type channelTarget struct {
	name      string
	recipient string
}

func pickChannels(patient models.Patient) []channelTarget {
	var channels []channelTarget
	if phone := strings.TrimSpace(patient.Phone); phone != "" {
		channels = append(channels, channelTarget{name: "sms", recipient: phone})
	}
	if email := strings.TrimSpace(patient.Email); email != "" {
		channels = append(channels, channelTarget{name: "email", recipient: email})
	}
	return channels
}

// Start runs the worker every interval, and early whenever token events change,
// until ctx is done.
func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	changes := w.sync.Subscribe(ctx, repository.KeyTokenEvents)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-changes:
			if !ok {
				return
			}
		}
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("notification worker run failed")
		}
	}
}
