package model

import "encoding/json"

// StepType discriminates the flow step variants.
type StepType string

const (
	StepWebhook   StepType = "webhook"
	StepCondition StepType = "condition"
	StepDelay     StepType = "delay"
)

// FailureAction is what the flow does when a step fails.
type FailureAction string

const (
	FailureStop     FailureAction = "stop"
	FailureContinue FailureAction = "continue"
)

// BackoffStrategy selects how retry delays grow.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// StepRetry configures retry for a webhook step.
type StepRetry struct {
	MaxAttempts    int             `json:"max_attempts"`
	Backoff        BackoffStrategy `json:"backoff"`
	InitialDelayMS int64           `json:"initial_delay_ms"`
}

// UnmarshalJSON defaults the initial delay to one second when omitted.
func (r *StepRetry) UnmarshalJSON(data []byte) error {
	var aux struct {
		MaxAttempts    int             `json:"max_attempts"`
		Backoff        BackoffStrategy `json:"backoff"`
		InitialDelayMS *int64          `json:"initial_delay_ms"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.MaxAttempts = aux.MaxAttempts
	r.Backoff = aux.Backoff
	r.InitialDelayMS = 1000
	if aux.InitialDelayMS != nil {
		r.InitialDelayMS = *aux.InitialDelayMS
	}
	return nil
}

// Step is one node of a flow. The Type field selects the variant; condition
// steps nest further steps in their branches.
type Step struct {
	Name      string        `json:"name"`
	Type      StepType      `json:"type"`
	OnFailure FailureAction `json:"on_failure,omitempty"`

	// webhook
	URL          string            `json:"url,omitempty"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate any               `json:"body_template,omitempty"`
	TimeoutMS    *int64            `json:"timeout_ms,omitempty"`
	Retry        *StepRetry        `json:"retry,omitempty"`

	// condition
	Condition string `json:"condition,omitempty"`
	IfTrue    *Step  `json:"if_true,omitempty"`
	IfFalse   *Step  `json:"if_false,omitempty"`

	// delay
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// EffectiveOnFailure returns the failure policy, defaulting to stop.
func (s *Step) EffectiveOnFailure() FailureAction {
	if s.OnFailure == "" {
		return FailureStop
	}
	return s.OnFailure
}
