package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/orchehq/orchepy/model"
)

// AutomationExecutor interprets phase automation action trees. Actions that
// change case state never mutate the case directly; they queue modifications
// for a single transactional apply by the caller.
type AutomationExecutor struct {
	client *http.Client
	logger *slog.Logger
}

// NewAutomationExecutor builds an executor with a 30 second webhook timeout.
func NewAutomationExecutor(logger *slog.Logger) *AutomationExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutomationExecutor{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// ExecuteAutomations runs the given automation batches in order against the
// case. fromPhase is the phase the case is leaving, nil at creation. Any batch
// failure aborts the whole run.
func (e *AutomationExecutor) ExecuteAutomations(ctx context.Context, automations []model.PhaseAutomation, c *model.Case, fromPhase *string) (*model.AutomationResult, error) {
	result := &model.AutomationResult{}
	for _, automation := range automations {
		e.logger.Info("Executing automation",
			"phase", automation.Phase,
			"trigger", automation.Trigger,
			"case_id", c.ID)

		batch, err := e.executeActions(ctx, automation.Actions, c, fromPhase)
		if err != nil {
			e.logger.Error("Automation failed",
				"phase", automation.Phase,
				"error", err)
			return nil, err
		}
		result.Modifications = append(result.Modifications, batch.Modifications...)
	}
	return result, nil
}

// executeActions runs one action list. Responses are keyed by action id and
// visible only to later actions of the same list; conditional branches start
// with a fresh response map.
func (e *AutomationExecutor) executeActions(ctx context.Context, actions []model.AutomationAction, c *model.Case, fromPhase *string) (*model.AutomationResult, error) {
	responses := make(map[string]any)
	result := &model.AutomationResult{}

	for idx, action := range actions {
		name := action.Name
		if name == "" {
			name = fmt.Sprintf("action_%d", idx)
		}
		e.logger.Info("Executing action", "action", name, "type", action.Type)

		response, mods, err := e.executeAction(ctx, &action, c, fromPhase, responses)
		if err != nil {
			e.logger.Error("Action failed", "action", name, "error", err)
			if action.EffectiveOnError() == model.OnErrorStop {
				return nil, fmt.Errorf("action %q failed: %w", name, err)
			}
			e.logger.Warn("Action failed but continuing", "action", name)
			continue
		}

		// Only webhook responses join the use_response_from namespace.
		if action.Type == model.ActionWebhook && action.ID != "" {
			responses[action.ID] = response
		}
		result.Modifications = append(result.Modifications, mods...)
	}
	return result, nil
}

func (e *AutomationExecutor) executeAction(ctx context.Context, action *model.AutomationAction, c *model.Case, fromPhase *string, previousResponses map[string]any) (any, []model.CaseModification, error) {
	switch action.Type {
	case model.ActionWebhook:
		var body any
		if action.UseResponseFrom != "" {
			prev, ok := previousResponses[action.UseResponseFrom]
			if !ok {
				return nil, nil, fmt.Errorf("response from %q not found", action.UseResponseFrom)
			}
			body = prev
		} else {
			body = buildWebhookBody(c, fromPhase, action.Fields)
		}

		method := action.Method
		if method == "" {
			method = http.MethodPost
		}

		var response any
		var err error
		if action.Retry.Enabled {
			policy := FixedPolicy(action.Retry.MaxAttempts, time.Duration(action.Retry.DelayMS)*time.Millisecond)
			response, err = Retry(ctx, e.logger, policy, func(ctx context.Context) (any, error) {
				return e.callWebhook(ctx, action.URL, method, action.Headers, body)
			})
		} else {
			response, err = e.callWebhook(ctx, action.URL, method, action.Headers, body)
		}
		if err != nil {
			return nil, nil, err
		}
		return response, nil, nil

	case model.ActionDelay:
		e.logger.Debug("Delaying", "duration_ms", action.DurationMS)
		if err := sleep(ctx, time.Duration(action.DurationMS)*time.Millisecond); err != nil {
			return nil, nil, err
		}
		return map[string]any{"delayed_ms": action.DurationMS}, nil, nil

	case model.ActionConditional:
		ok, err := EvaluateCondition(action.Condition, c)
		if err != nil {
			return nil, nil, err
		}

		var mods []model.CaseModification
		if ok {
			e.logger.Debug("Condition true, executing then branch")
			branch, err := e.executeActions(ctx, action.Then, c, fromPhase)
			if err != nil {
				return nil, nil, err
			}
			mods = branch.Modifications
		} else if action.Else != nil {
			e.logger.Debug("Condition false, executing else branch")
			branch, err := e.executeActions(ctx, action.Else, c, fromPhase)
			if err != nil {
				return nil, nil, err
			}
			mods = branch.Modifications
		}
		return map[string]any{"condition_result": ok}, mods, nil

	case model.ActionMoveToPhase:
		e.logger.Debug("Queueing move to phase", "phase", action.Phase)
		response := map[string]any{"action": "move_to_phase", "phase": action.Phase}
		return response, []model.CaseModification{{Type: model.ModMoveToPhase, Phase: action.Phase}}, nil

	case model.ActionSetField:
		e.logger.Debug("Queueing set field", "field", action.Field)
		response := map[string]any{"action": "set_field", "field": action.Field, "value": action.Value}
		return response, []model.CaseModification{{Type: model.ModSetField, Field: action.Field, Value: action.Value}}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported action type: %s", action.Type)
	}
}

// buildWebhookBody projects the case into a webhook payload. An empty field
// list sends the full standard payload; otherwise only the named fields are
// included and unknown names are skipped.
func buildWebhookBody(c *model.Case, fromPhase *string, fields []string) map[string]any {
	if len(fields) == 0 {
		return map[string]any{
			"case_id":        c.ID,
			"workflow_id":    c.WorkflowID,
			"current_phase":  c.CurrentPhase,
			"previous_phase": fromPhase,
			"data":           c.Data,
			"metadata":       c.Metadata,
			"status":         c.Status,
			"created_at":     c.CreatedAt,
			"updated_at":     c.UpdatedAt,
		}
	}

	body := make(map[string]any, len(fields))
	for _, field := range fields {
		switch field {
		case "case_id", "id":
			body["case_id"] = c.ID
		case "workflow_id":
			body["workflow_id"] = c.WorkflowID
		case "current_phase":
			body["current_phase"] = c.CurrentPhase
		case "previous_phase":
			body["previous_phase"] = fromPhase
		case "data":
			body["data"] = c.Data
		case "metadata":
			body["metadata"] = c.Metadata
		case "status":
			body["status"] = c.Status
		case "created_at":
			body["created_at"] = c.CreatedAt
		case "updated_at":
			body["updated_at"] = c.UpdatedAt
		default:
			slog.Warn("Unknown field requested in automation", "field", field)
		}
	}
	return body
}

// callWebhook issues one HTTP request. Bodies are attached for POST, PUT and
// PATCH only. Non-2xx responses are errors; successful non-JSON responses are
// wrapped as {"status": ..., "body": ...}.
func (e *AutomationExecutor) callWebhook(ctx context.Context, url, method string, headers map[string]string, body any) (any, error) {
	method = strings.ToUpper(method)

	var reqBody io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding webhook body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d - %s", resp.StatusCode, string(respBody))
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return map[string]any{"status": resp.StatusCode, "body": string(respBody)}, nil
	}
	return decoded, nil
}
