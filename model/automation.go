package model

import "encoding/json"

// AutomationTrigger selects when a phase automation fires.
type AutomationTrigger string

const (
	TriggerOnEnter AutomationTrigger = "on_enter"
	TriggerOnExit  AutomationTrigger = "on_exit"
)

// OnError is the failure policy of an automation action.
type OnError string

const (
	OnErrorStop     OnError = "stop"
	OnErrorContinue OnError = "continue"
)

// ActionType discriminates the automation action variants.
type ActionType string

const (
	ActionWebhook     ActionType = "webhook"
	ActionDelay       ActionType = "delay"
	ActionConditional ActionType = "conditional"
	ActionMoveToPhase ActionType = "move_to_phase"
	ActionSetField    ActionType = "set_field"
)

// AutomationRetry configures per-webhook retry inside an automation. The
// delay between attempts is fixed.
type AutomationRetry struct {
	Enabled     bool  `json:"enabled"`
	MaxAttempts int   `json:"max_attempts"`
	DelayMS     int64 `json:"delay_ms"`
}

// UnmarshalJSON fills the defaults for attempts and delay when omitted.
func (r *AutomationRetry) UnmarshalJSON(data []byte) error {
	var aux struct {
		Enabled     bool   `json:"enabled"`
		MaxAttempts *int   `json:"max_attempts"`
		DelayMS     *int64 `json:"delay_ms"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Enabled = aux.Enabled
	r.MaxAttempts = 3
	if aux.MaxAttempts != nil {
		r.MaxAttempts = *aux.MaxAttempts
	}
	r.DelayMS = 1000
	if aux.DelayMS != nil {
		r.DelayMS = *aux.DelayMS
	}
	return nil
}

// SimpleCondition is one leaf of a complex condition. The operator key is
// "op" on the wire.
type SimpleCondition struct {
	Field    string `json:"field"`
	Operator string `json:"op"`
	Value    any    `json:"value"`
}

// Condition is either a simple field comparison or an AND/OR combination of
// simple ones. A condition with a non-empty Conditions list is complex and
// its Operator is the logical combinator ("AND" or "OR").
type Condition struct {
	Field      string            `json:"field,omitempty"`
	Operator   string            `json:"operator,omitempty"`
	Value      any               `json:"value,omitempty"`
	Conditions []SimpleCondition `json:"conditions,omitempty"`
}

// IsComplex reports whether the condition combines leaves under AND/OR.
func (c *Condition) IsComplex() bool {
	return len(c.Conditions) > 0
}

// Logical combinators for complex conditions.
const (
	LogicalAnd = "AND"
	LogicalOr  = "OR"
)

// AutomationAction is one node of an automation action tree. The Type field
// selects the variant; only the fields of that variant are meaningful. On the
// wire conditional actions carry their condition fields inline, matching the
// stored format.
type AutomationAction struct {
	Type ActionType
	ID   string
	Name string

	// webhook
	URL             string
	Method          string
	Headers         map[string]string
	Fields          []string
	UseResponseFrom string
	Retry           AutomationRetry
	OnError         OnError

	// delay
	DurationMS int64

	// conditional
	Condition *Condition
	Then      []AutomationAction
	Else      []AutomationAction

	// move_to_phase
	Phase string

	// set_field
	Field string
	Value any
}

type actionWire struct {
	Type            ActionType         `json:"type"`
	ID              string             `json:"id,omitempty"`
	Name            string             `json:"name,omitempty"`
	URL             string             `json:"url,omitempty"`
	Method          string             `json:"method,omitempty"`
	Headers         map[string]string  `json:"headers,omitempty"`
	Fields          []string           `json:"fields,omitempty"`
	UseResponseFrom string             `json:"use_response_from,omitempty"`
	Retry           *AutomationRetry   `json:"retry,omitempty"`
	OnError         OnError            `json:"on_error,omitempty"`
	DurationMS      int64              `json:"duration_ms,omitempty"`
	Field           string             `json:"field,omitempty"`
	Operator        string             `json:"operator,omitempty"`
	Value           any                `json:"value,omitempty"`
	Conditions      []SimpleCondition  `json:"conditions,omitempty"`
	Then            []AutomationAction `json:"then,omitempty"`
	Else            []AutomationAction `json:"else,omitempty"`
	Phase           string             `json:"phase,omitempty"`
}

// UnmarshalJSON decodes the tagged action union. Webhook actions default
// on_error to stop and retry to the disabled defaults.
func (a *AutomationAction) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*a = AutomationAction{
		Type:       w.Type,
		ID:         w.ID,
		Name:       w.Name,
		DurationMS: w.DurationMS,
		Then:       w.Then,
		Else:       w.Else,
		Phase:      w.Phase,
	}

	switch w.Type {
	case ActionWebhook:
		a.URL = w.URL
		a.Method = w.Method
		a.Headers = w.Headers
		a.Fields = w.Fields
		a.UseResponseFrom = w.UseResponseFrom
		a.Retry = AutomationRetry{Enabled: false, MaxAttempts: 3, DelayMS: 1000}
		if w.Retry != nil {
			a.Retry = *w.Retry
		}
		a.OnError = w.OnError
		if a.OnError == "" {
			a.OnError = OnErrorStop
		}
	case ActionConditional:
		a.Condition = &Condition{
			Field:      w.Field,
			Operator:   w.Operator,
			Value:      w.Value,
			Conditions: w.Conditions,
		}
	case ActionSetField:
		a.Field = w.Field
		a.Value = w.Value
	}
	return nil
}

// MarshalJSON encodes the action back into the tagged inline form.
func (a AutomationAction) MarshalJSON() ([]byte, error) {
	w := actionWire{
		Type:       a.Type,
		ID:         a.ID,
		Name:       a.Name,
		DurationMS: a.DurationMS,
		Then:       a.Then,
		Else:       a.Else,
		Phase:      a.Phase,
	}

	switch a.Type {
	case ActionWebhook:
		w.URL = a.URL
		w.Method = a.Method
		w.Headers = a.Headers
		w.Fields = a.Fields
		w.UseResponseFrom = a.UseResponseFrom
		retry := a.Retry
		w.Retry = &retry
		w.OnError = a.OnError
	case ActionConditional:
		if a.Condition != nil {
			w.Field = a.Condition.Field
			w.Operator = a.Condition.Operator
			w.Value = a.Condition.Value
			w.Conditions = a.Condition.Conditions
		}
	case ActionSetField:
		w.Field = a.Field
		w.Value = a.Value
	}
	return json.Marshal(w)
}

// EffectiveOnError returns the failure policy for the action. Only webhooks
// carry a configurable policy; every other variant continues on failure.
func (a *AutomationAction) EffectiveOnError() OnError {
	if a.Type == ActionWebhook {
		if a.OnError == "" {
			return OnErrorStop
		}
		return a.OnError
	}
	return OnErrorContinue
}

// PhaseAutomation binds an ordered action list to a (trigger, phase) pair.
type PhaseAutomation struct {
	Trigger AutomationTrigger  `json:"trigger"`
	Phase   string             `json:"phase"`
	Actions []AutomationAction `json:"actions"`
}

// WorkflowAutomations is the automation definition stored on a workflow.
type WorkflowAutomations struct {
	Automations []PhaseAutomation `json:"automations"`
}

// OnEnter returns the automations for entering the given phase, in declared
// order.
func (w *WorkflowAutomations) OnEnter(phase string) []PhaseAutomation {
	return w.filter(TriggerOnEnter, phase)
}

// OnExit returns the automations for leaving the given phase, in declared
// order.
func (w *WorkflowAutomations) OnExit(phase string) []PhaseAutomation {
	return w.filter(TriggerOnExit, phase)
}

func (w *WorkflowAutomations) filter(trigger AutomationTrigger, phase string) []PhaseAutomation {
	var out []PhaseAutomation
	for _, a := range w.Automations {
		if a.Trigger == trigger && a.Phase == phase {
			out = append(out, a)
		}
	}
	return out
}

// ModificationType discriminates deferred case modifications.
type ModificationType string

const (
	ModMoveToPhase ModificationType = "move_to_phase"
	ModSetField    ModificationType = "set_field"
)

// CaseModification is a deferred case-state change produced by the automation
// interpreter and applied later in a single transaction.
type CaseModification struct {
	Type  ModificationType
	Phase string
	Field string
	Value any
}

// AutomationResult accumulates the modifications produced by one automation
// batch.
type AutomationResult struct {
	Modifications []CaseModification
}
