// Package service wires the engine and stores into the case and event
// operations exposed over HTTP.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/orchehq/orchepy/model"
)

// CaseWebhookPayload is the envelope delivered to a workflow's webhook URL on
// case creation and movement.
type CaseWebhookPayload struct {
	Action string          `json:"action"`
	Data   CaseWebhookData `json:"data"`
}

// CaseWebhookData is the case snapshot inside a webhook payload.
type CaseWebhookData struct {
	CaseID     uuid.UUID      `json:"case_id"`
	WorkflowID uuid.UUID      `json:"workflow_id"`
	FromPhase  *string        `json:"from_phase"`
	ToPhase    string         `json:"to_phase"`
	CaseData   map[string]any `json:"case_data"`
	Metadata   map[string]any `json:"metadata"`
}

// WebhookSender delivers case notifications to workflow webhook URLs. A
// circuit breaker sheds load from endpoints that keep failing.
type WebhookSender struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewWebhookSender builds a sender with a 10 second timeout.
func NewWebhookSender(logger *slog.Logger) *WebhookSender {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "case-webhooks",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Webhook circuit state changed", "from", from.String(), "to", to.String())
		},
	})
	return &WebhookSender{
		client:  &http.Client{Timeout: 10 * time.Second},
		breaker: breaker,
		logger:  logger,
	}
}

// SendCaseMoved posts one case.moved payload. fromPhase is nil when the case
// was just created.
func (s *WebhookSender) SendCaseMoved(ctx context.Context, webhookURL string, c *model.Case, fromPhase *string) error {
	payload := CaseWebhookPayload{
		Action: "case.moved",
		Data: CaseWebhookData{
			CaseID:     c.ID,
			WorkflowID: c.WorkflowID,
			FromPhase:  fromPhase,
			ToPhase:    c.CurrentPhase,
			CaseData:   c.Data,
			Metadata:   c.Metadata,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	s.logger.Info("Sending webhook",
		"url", webhookURL, "case_id", c.ID, "to_phase", c.CurrentPhase)

	_, err = s.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("webhook request failed: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		s.logger.Warn("Webhook delivery failed", "url", webhookURL, "error", err)
		return err
	}

	s.logger.Info("Webhook sent", "url", webhookURL, "case_id", c.ID)
	return nil
}

// SendCaseMovedWithRetry retries delivery up to maxAttempts times with
// exponential backoff starting at one second.
func (s *WebhookSender) SendCaseMovedWithRetry(ctx context.Context, webhookURL string, c *model.Case, fromPhase *string, maxAttempts int) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = s.SendCaseMoved(ctx, webhookURL, c, fromPhase)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := time.Duration(1<<(attempt-1)) * time.Second
		s.logger.Warn("Webhook attempt failed, retrying",
			"attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	s.logger.Error("Webhook failed after all attempts",
		"attempts", maxAttempts, "url", webhookURL, "error", lastErr)
	return lastErr
}
