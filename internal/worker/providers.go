package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Provider interface {
	Send(ctx context.Context, message, recipient string) error
}

// NewProvider picks a provider by kind. A bare http(s) URL is treated as a
// webhook; unknown kinds fall back to logging.
func NewProvider(kind, channel, webhookURL, webhookToken string, logger zerolog.Logger) Provider {
	switch kind {
	case "", "stub", "log":
		return logProvider{channel: channel, logger: logger}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	case "webhook":
		if webhookURL == "" {
			return logProvider{channel: channel, logger: logger}
		}
		return newWebhookProvider(channel, webhookURL, webhookToken)
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return newWebhookProvider(channel, kind, webhookToken)
		}
		return logProvider{channel: channel, logger: logger}
	}
}

type logProvider struct {
	channel string
	logger  zerolog.Logger
}

func (p logProvider) Send(ctx context.Context, message, recipient string) error {
	p.logger.Info().Str("channel", p.channel).Str("recipient", recipient).Str("message", message).Msg("notification sent")
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, message, recipient string) error {
	return nil
}

type failProvider struct{}

func (failProvider) Send(ctx context.Context, message, recipient string) error {
	return errors.New("provider failure")
}

type webhookProvider struct {
	channel string
	url     string
	token   string
	client  *http.Client
}

func newWebhookProvider(channel, url, token string) webhookProvider {
	return webhookProvider{channel: channel, url: url, token: token, client: &http.Client{Timeout: 5 * time.Second}}
}

func (p webhookProvider) Send(ctx context.Context, message, recipient string) error {
	body, err := json.Marshal(map[string]string{
		"channel":   p.channel,
		"recipient": recipient,
		"message":   message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider rejected request: status %d", resp.StatusCode)
	}
	return nil
}
