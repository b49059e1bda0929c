package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/orchehq/orchepy/model"
)

// FlowExecutor runs a flow's steps against one event and records the outcome
// as an execution.
type FlowExecutor struct {
	client *http.Client
	logger *slog.Logger
}

// NewFlowExecutor builds an executor with a 30 second default webhook
// timeout. Individual steps can tighten it via timeout_ms.
func NewFlowExecutor(logger *slog.Logger) *FlowExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlowExecutor{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Execute runs the flow's steps in order. A failed step with on_failure stop
// fails the execution; with continue the next step still runs. The returned
// execution is always populated, including on failure.
func (e *FlowExecutor) Execute(ctx context.Context, flow *model.Flow, event *model.Event) *model.Execution {
	execution := model.NewExecution(flow.ID, event.ID)
	execution.Status = model.ExecutionRunning

	e.logger.Info("Starting execution",
		"execution_id", execution.ID,
		"flow", flow.Name,
		"event_type", event.EventType)

	flowFailed := false
	for i := range flow.Steps {
		step := &flow.Steps[i]
		execution.CurrentStep = &step.Name

		e.logger.Info("Executing step", "step", step.Name, "type", step.Type)

		startedAt := time.Now().UTC()
		response, err := e.executeStep(ctx, step, event)
		completedAt := time.Now().UTC()

		status := model.StepStatus{
			Status:      model.StepCompleted,
			StartedAt:   startedAt,
			CompletedAt: &completedAt,
			Attempts:    1,
			Response:    response,
		}
		if err != nil {
			e.logger.Warn("Step failed", "step", step.Name, "error", err)
			msg := err.Error()
			status.Status = model.StepFailed
			status.Response = nil
			status.Error = &msg
		}
		execution.StepsStatus[step.Name] = status

		if err != nil {
			if step.EffectiveOnFailure() == model.FailureStop {
				e.logger.Error("Step failed, stopping flow", "step", step.Name)
				flowFailed = true
				msg := err.Error()
				execution.Error = &msg
				break
			}
			e.logger.Warn("Step failed but continuing", "step", step.Name)
		}
	}

	execution.Status = model.ExecutionCompleted
	if flowFailed {
		execution.Status = model.ExecutionFailed
	}
	now := time.Now().UTC()
	execution.CompletedAt = &now

	e.logger.Info("Execution finished",
		"execution_id", execution.ID,
		"status", execution.Status)
	return execution
}

func (e *FlowExecutor) executeStep(ctx context.Context, step *model.Step, event *model.Event) (any, error) {
	switch step.Type {
	case model.StepWebhook:
		return e.executeWebhookStep(ctx, step, event)

	case model.StepCondition:
		ok := EvalStepCondition(step.Condition, event, e.logger)
		branch := step.IfTrue
		if !ok {
			branch = step.IfFalse
		}
		if branch == nil {
			return nil, fmt.Errorf("condition step %q has no branch for result %t", step.Name, ok)
		}
		return e.executeStep(ctx, branch, event)

	case model.StepDelay:
		e.logger.Debug("Delaying", "duration_ms", step.DurationMS)
		if err := sleep(ctx, time.Duration(step.DurationMS)*time.Millisecond); err != nil {
			return nil, err
		}
		return map[string]any{"delayed_ms": step.DurationMS}, nil

	default:
		return nil, fmt.Errorf("unsupported step type: %s", step.Type)
	}
}

func (e *FlowExecutor) executeWebhookStep(ctx context.Context, step *model.Step, event *model.Event) (any, error) {
	body := InterpolateValue(step.BodyTemplate, event)
	url := InterpolateString(step.URL, event)

	op := func(ctx context.Context) (any, error) {
		return e.callStepWebhook(ctx, step, url, body, event)
	}

	if step.Retry != nil {
		return Retry(ctx, e.logger, PolicyFromStep(*step.Retry), op)
	}
	return op(ctx)
}

// callStepWebhook issues one HTTP request for a webhook step. Header values
// are interpolated; a per-step timeout_ms overrides the client default.
func (e *FlowExecutor) callStepWebhook(ctx context.Context, step *model.Step, url string, body any, event *model.Event) (any, error) {
	method := strings.ToUpper(step.Method)

	var reqBody io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding step body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", step.Method)
	}

	if step.TimeoutMS != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*step.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range step.Headers {
		req.Header.Set(k, InterpolateString(v, event))
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

// EvalStepCondition evaluates the step condition DSL: a single ">" comparison
// between two operands, each either a ${event.data.<field>} reference, a
// number literal or a string literal. Anything else, including non-numeric
// operands, evaluates false.
func EvalStepCondition(condition string, event *model.Event, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}

	left, right, found := strings.Cut(condition, ">")
	if found {
		lv := extractOperand(strings.TrimSpace(left), event)
		rv := extractOperand(strings.TrimSpace(right), event)
		lf, lok := asFloat(lv)
		rf, rok := asFloat(rv)
		if lok && rok {
			return lf > rf
		}
	}

	logger.Warn("Could not evaluate condition", "condition", condition)
	return false
}

func extractOperand(expr string, event *model.Event) any {
	if inner, ok := strings.CutPrefix(expr, "${"); ok {
		if path, ok := strings.CutSuffix(inner, "}"); ok {
			if field, ok := strings.CutPrefix(path, "event.data."); ok {
				return event.Data[field]
			}
			return nil
		}
	}
	if n, err := strconv.ParseFloat(expr, 64); err == nil {
		return n
	}
	return expr
}
