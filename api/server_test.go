package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchehq/orchepy/model"
	"github.com/orchehq/orchepy/service"
	"github.com/orchehq/orchepy/store"
)

type fakeWorkflowStore struct {
	mu        sync.Mutex
	workflows map[uuid.UUID]*model.Workflow
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{workflows: map[uuid.UUID]*model.Workflow{}}
}

func (f *fakeWorkflowStore) Create(_ context.Context, w *model.Workflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflows[w.ID] = w
	return nil
}

func (f *fakeWorkflowStore) GetByID(_ context.Context, id uuid.UUID) (*model.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return w, nil
}

func (f *fakeWorkflowStore) List(_ context.Context, activeOnly bool) ([]*model.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Workflow{}
	for _, w := range f.workflows {
		if activeOnly && !w.Active {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeWorkflowStore) Update(_ context.Context, w *model.Workflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workflows[w.ID]; !ok {
		return store.ErrNotFound
	}
	f.workflows[w.ID] = w
	return nil
}

func (f *fakeWorkflowStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workflows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.workflows, id)
	return nil
}

type fakeCaseReader struct {
	mu      sync.Mutex
	cases   map[uuid.UUID]*model.Case
	history map[uuid.UUID][]*model.CaseHistory
}

func newFakeCaseReader() *fakeCaseReader {
	return &fakeCaseReader{
		cases:   map[uuid.UUID]*model.Case{},
		history: map[uuid.UUID][]*model.CaseHistory{},
	}
}

func (f *fakeCaseReader) GetByID(_ context.Context, id uuid.UUID) (*model.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeCaseReader) List(_ context.Context, filter model.CaseFilter) ([]*model.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Case{}
	for _, c := range f.cases {
		if filter.WorkflowID != nil && c.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.CurrentPhase != nil && c.CurrentPhase != *filter.CurrentPhase {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCaseReader) ListHistory(_ context.Context, caseID uuid.UUID) ([]*model.CaseHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[caseID], nil
}

func (f *fakeCaseReader) UpdateData(_ context.Context, id uuid.UUID, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Data = data
	return nil
}

type fakeCaseOps struct {
	workflows *fakeWorkflowStore
	cases     *fakeCaseReader
}

func (f *fakeCaseOps) Create(ctx context.Context, payload model.CreateCase) (*model.Case, error) {
	workflow, err := f.workflows.GetByID(ctx, payload.WorkflowID)
	if err != nil {
		return nil, service.ErrWorkflowNotFound
	}
	phase := payload.InitialPhase
	if phase == "" {
		phase = workflow.InitialPhase
	}
	if !workflow.HasPhase(phase) {
		return nil, &model.ValidationError{Field: "initial_phase", Message: "unknown phase"}
	}
	c := model.NewCase(payload.WorkflowID, phase, payload.Data, payload.Metadata)
	f.cases.mu.Lock()
	f.cases.cases[c.ID] = c
	f.cases.mu.Unlock()
	return c, nil
}

func (f *fakeCaseOps) Move(ctx context.Context, caseID uuid.UUID, payload model.MoveCase) (*service.MoveResult, error) {
	c, err := f.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, service.ErrCaseNotFound
	}
	workflow, err := f.workflows.GetByID(ctx, c.WorkflowID)
	if err != nil {
		return nil, service.ErrWorkflowNotFound
	}
	if !workflow.HasPhase(payload.ToPhase) {
		return nil, &model.ValidationError{Field: "to_phase", Message: "unknown phase"}
	}
	if c.CurrentPhase == payload.ToPhase {
		return &service.MoveResult{Case: c, Moved: false}, nil
	}
	c.MoveToPhase(payload.ToPhase)
	return &service.MoveResult{Case: c, Moved: true}, nil
}

func (f *fakeCaseOps) Advance(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string) (*service.MoveResult, error) {
	return f.adjacent(ctx, caseID, reason, triggeredBy, (*model.Workflow).NextPhase)
}

func (f *fakeCaseOps) Retreat(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string) (*service.MoveResult, error) {
	return f.adjacent(ctx, caseID, reason, triggeredBy, (*model.Workflow).PreviousPhase)
}

func (f *fakeCaseOps) adjacent(ctx context.Context, caseID uuid.UUID, reason, triggeredBy *string, pick func(*model.Workflow, string) (string, bool)) (*service.MoveResult, error) {
	c, err := f.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, service.ErrCaseNotFound
	}
	workflow, err := f.workflows.GetByID(ctx, c.WorkflowID)
	if err != nil {
		return nil, service.ErrWorkflowNotFound
	}
	target, ok := pick(workflow, c.CurrentPhase)
	if !ok {
		return nil, &model.ValidationError{Field: "to_phase", Message: "no adjacent phase"}
	}
	return f.Move(ctx, caseID, model.MoveCase{ToPhase: target, Reason: reason, TriggeredBy: triggeredBy})
}

func (f *fakeCaseOps) SetStatus(ctx context.Context, caseID uuid.UUID, status model.CaseStatus) (*model.Case, error) {
	c, err := f.cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, service.ErrCaseNotFound
	}
	c.Status = status
	return c, nil
}

type fakeEventPipeline struct {
	mu        sync.Mutex
	submitted []model.CreateEvent
	events    map[uuid.UUID]*model.Event
}

func newFakeEventPipeline() *fakeEventPipeline {
	return &fakeEventPipeline{events: map[uuid.UUID]*model.Event{}}
}

func (f *fakeEventPipeline) Submit(_ context.Context, payload model.CreateEvent) (*service.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, payload)
	event := model.NewEvent(payload)
	f.events[event.ID] = event
	return &service.SubmitResult{
		EventID:      event.ID,
		Executions:   []uuid.UUID{},
		MatchedFlows: 0,
	}, nil
}

func (f *fakeEventPipeline) GetByID(_ context.Context, id uuid.UUID) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (f *fakeEventPipeline) List(_ context.Context, eventType string, _ int64) ([]*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Event{}
	for _, e := range f.events {
		if eventType != "" && e.EventType != eventType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type fakeFlowStore struct {
	mu    sync.Mutex
	flows map[uuid.UUID]*model.Flow
}

func newFakeFlowStore() *fakeFlowStore {
	return &fakeFlowStore{flows: map[uuid.UUID]*model.Flow{}}
}

func (f *fakeFlowStore) Create(_ context.Context, flow *model.Flow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flows[flow.ID] = flow
	return nil
}

func (f *fakeFlowStore) GetByID(_ context.Context, id uuid.UUID) (*model.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flow, ok := f.flows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return flow, nil
}

func (f *fakeFlowStore) List(_ context.Context, activeOnly bool) ([]*model.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.Flow{}
	for _, flow := range f.flows {
		if activeOnly && !flow.Active {
			continue
		}
		out = append(out, flow)
	}
	return out, nil
}

func (f *fakeFlowStore) Update(_ context.Context, flow *model.Flow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.flows[flow.ID]; !ok {
		return store.ErrNotFound
	}
	f.flows[flow.ID] = flow
	return nil
}

func (f *fakeFlowStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.flows[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.flows, id)
	return nil
}

type fakeExecutionReader struct {
	executions map[uuid.UUID]*model.Execution
}

func (f *fakeExecutionReader) GetByID(_ context.Context, id uuid.UUID) (*model.Execution, error) {
	e, ok := f.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e, nil
}

func (f *fakeExecutionReader) List(_ context.Context, filter model.ExecutionFilter) ([]*model.Execution, error) {
	out := []*model.Execution{}
	for _, e := range f.executions {
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.FlowID != nil && e.FlowID != *filter.FlowID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type fakePinger struct{ err error }

func (f *fakePinger) PingContext(context.Context) error { return f.err }

type testEnv struct {
	server     *Server
	workflows  *fakeWorkflowStore
	cases      *fakeCaseReader
	events     *fakeEventPipeline
	flows      *fakeFlowStore
	executions *fakeExecutionReader
	pinger     *fakePinger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		workflows:  newFakeWorkflowStore(),
		cases:      newFakeCaseReader(),
		events:     newFakeEventPipeline(),
		flows:      newFakeFlowStore(),
		executions: &fakeExecutionReader{executions: map[uuid.UUID]*model.Execution{}},
		pinger:     &fakePinger{},
	}
	env.server = NewServer(Deps{
		Workflows:  env.workflows,
		Cases:      env.cases,
		CaseOps:    &fakeCaseOps{workflows: env.workflows, cases: env.cases},
		Events:     env.events,
		EventStore: env.events,
		Flows:      env.flows,
		Executions: env.executions,
		DB:         env.pinger,
	}, nil, nil)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (env *testEnv) seedWorkflow(t *testing.T) *model.Workflow {
	t.Helper()
	workflow, err := model.NewWorkflow(model.CreateWorkflow{
		Name:         "orders",
		Phases:       []string{"new", "review", "done"},
		InitialPhase: "new",
	})
	require.NoError(t, err)
	require.NoError(t, env.workflows.Create(context.Background(), workflow))
	return workflow
}

func (env *testEnv) seedCase(t *testing.T, workflow *model.Workflow, phase string) *model.Case {
	t.Helper()
	c := model.NewCase(workflow.ID, phase, map[string]any{"amount": 10}, nil)
	env.cases.mu.Lock()
	env.cases.cases[c.ID] = c
	env.cases.mu.Unlock()
	return c
}

func TestCreateWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", map[string]any{
		"name":          "orders",
		"phases":        []string{"new", "done"},
		"initial_phase": "new",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	workflow := decodeBody[model.Workflow](t, rec)
	assert.Equal(t, "orders", workflow.Name)
	assert.True(t, workflow.Active)
	assert.NotEqual(t, uuid.Nil, workflow.ID)
}

func TestCreateWorkflowRejectsBadInitialPhase(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", map[string]any{
		"name":          "orders",
		"phases":        []string{"new", "done"},
		"initial_phase": "missing",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[map[string]string](t, rec)
	assert.Contains(t, body["error"], "initial phase")
}

func TestCreateWorkflowValidatesPayload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/workflows", map[string]any{
		"phases": []string{"new"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflowNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/workflows/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWorkflowBadID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/workflows/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateWorkflowPartial(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)

	rec := env.do(t, http.MethodPut, "/workflows/"+workflow.ID.String(), map[string]any{
		"description": "order processing",
		"active":      false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decodeBody[model.Workflow](t, rec)
	assert.Equal(t, "orders", updated.Name)
	assert.Equal(t, "order processing", updated.Description)
	assert.False(t, updated.Active)
	assert.Equal(t, []string{"new", "review", "done"}, updated.Phases)
}

func TestUpdateWorkflowRejectsOrphanInitialPhase(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)

	rec := env.do(t, http.MethodPut, "/workflows/"+workflow.ID.String(), map[string]any{
		"phases": []string{"a", "b"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteWorkflow(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)

	rec := env.do(t, http.MethodDelete, "/workflows/"+workflow.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/workflows/"+workflow.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCase(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)

	rec := env.do(t, http.MethodPost, "/cases", map[string]any{
		"workflow_id": workflow.ID,
		"data":        map[string]any{"customer": "acme"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	c := decodeBody[model.Case](t, rec)
	assert.Equal(t, "new", c.CurrentPhase)
	assert.Equal(t, model.CaseActive, c.Status)
	assert.Equal(t, "acme", c.Data["customer"])
}

func TestCreateCaseUnknownWorkflow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/cases", map[string]any{
		"workflow_id": uuid.New(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCasesFiltersByWorkflow(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)
	other := env.seedWorkflow(t)
	env.seedCase(t, workflow, "new")
	env.seedCase(t, workflow, "review")
	env.seedCase(t, other, "new")

	rec := env.do(t, http.MethodGet, "/cases?workflow_id="+workflow.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Case](t, rec), 2)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/cases?workflow_id=%s&current_phase=review", workflow.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.Case](t, rec), 1)
}

func TestListCasesRejectsBadStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/cases?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMoveCase(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)
	c := env.seedCase(t, workflow, "new")

	rec := env.do(t, http.MethodPut, "/cases/"+c.ID.String()+"/move", map[string]any{
		"to_phase": "review",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	moved := decodeBody[model.Case](t, rec)
	assert.Equal(t, "review", moved.CurrentPhase)
	require.NotNil(t, moved.PreviousPhase)
	assert.Equal(t, "new", *moved.PreviousPhase)
}

func TestMoveCaseSamePhase(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)
	c := env.seedCase(t, workflow, "review")

	rec := env.do(t, http.MethodPut, "/cases/"+c.ID.String()+"/move", map[string]any{
		"to_phase": "review",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Case already in target phase", body["message"])
	assert.NotNil(t, body["case"])
}

func TestMoveCaseUnknownPhase(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)
	c := env.seedCase(t, workflow, "new")

	rec := env.do(t, http.MethodPut, "/cases/"+c.ID.String()+"/move", map[string]any{
		"to_phase": "limbo",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdvanceAndRetreatCase(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)
	c := env.seedCase(t, workflow, "new")

	rec := env.do(t, http.MethodPut, "/cases/"+c.ID.String()+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "review", decodeBody[model.Case](t, rec).CurrentPhase)

	rec = env.do(t, http.MethodPut, "/cases/"+c.ID.String()+"/retreat", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", decodeBody[model.Case](t, rec).CurrentPhase)

	rec = env.do(t, http.MethodPut, "/cases/"+c.ID.String()+"/retreat", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCaseData(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)
	c := env.seedCase(t, workflow, "new")

	rec := env.do(t, http.MethodPatch, "/cases/"+c.ID.String()+"/data", map[string]any{
		"data": map[string]any{"amount": 99},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 99, decodeBody[model.Case](t, rec).Data["amount"])
}

func TestSetCaseStatus(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)
	c := env.seedCase(t, workflow, "done")

	rec := env.do(t, http.MethodPut, "/cases/"+c.ID.String()+"/status", map[string]any{
		"status": "completed",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.CaseCompleted, decodeBody[model.Case](t, rec).Status)
}

func TestCaseHistory(t *testing.T) {
	env := newTestEnv(t)
	workflow := env.seedWorkflow(t)
	c := env.seedCase(t, workflow, "new")
	env.cases.history[c.ID] = []*model.CaseHistory{
		model.NewCaseHistory(c.ID, nil, "new", nil, nil),
	}

	rec := env.do(t, http.MethodGet, "/cases/"+c.ID.String()+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]model.CaseHistory](t, rec), 1)
}

func TestSubmitEvent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/events", map[string]any{
		"event_type": "order.created",
		"data":       map[string]any{"order_id": "42"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	result := decodeBody[service.SubmitResult](t, rec)
	assert.NotEqual(t, uuid.Nil, result.EventID)

	require.Len(t, env.events.submitted, 1)
	assert.Equal(t, "order.created", env.events.submitted[0].EventType)
}

func TestSubmitEventRequiresType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/events", map[string]any{
		"data": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEvent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/events", map[string]any{"event_type": "ping"})
	require.Equal(t, http.StatusCreated, rec.Code)
	result := decodeBody[service.SubmitResult](t, rec)

	rec = env.do(t, http.MethodGet, "/events/"+result.EventID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ping", decodeBody[model.Event](t, rec).EventType)
}

func TestCreateFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/flows", map[string]any{
		"name":    "notify",
		"trigger": map[string]any{"event_type": "order.created"},
		"steps": []map[string]any{
			{"name": "hook", "type": "webhook", "url": "https://example.com", "method": "POST"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	flow := decodeBody[model.Flow](t, rec)
	assert.Equal(t, "notify", flow.Name)
	assert.True(t, flow.Active)
	require.Len(t, flow.Steps, 1)
	assert.Equal(t, model.StepWebhook, flow.Steps[0].Type)
}

func TestCreateFlowRequiresTriggerType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/flows", map[string]any{
		"name":    "notify",
		"trigger": map[string]any{},
		"steps":   []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateFlowDeactivates(t *testing.T) {
	env := newTestEnv(t)
	flow := model.NewFlow(model.CreateFlow{
		Name:    "notify",
		Trigger: model.FlowTrigger{EventType: "order.created"},
		Steps:   []model.Step{},
	})
	require.NoError(t, env.flows.Create(context.Background(), flow))

	rec := env.do(t, http.MethodPut, "/flows/"+flow.ID.String(), map[string]any{
		"active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[model.Flow](t, rec).Active)
}

func TestListExecutionsFiltersByStatus(t *testing.T) {
	env := newTestEnv(t)

	done := model.NewExecution(uuid.New(), uuid.New())
	done.Status = model.ExecutionCompleted
	failed := model.NewExecution(uuid.New(), uuid.New())
	failed.Status = model.ExecutionFailed
	env.executions.executions[done.ID] = done
	env.executions.executions[failed.ID] = failed

	rec := env.do(t, http.MethodGet, "/executions?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeBody[[]model.Execution](t, rec)
	require.Len(t, out, 1)
	assert.Equal(t, done.ID, out[0].ID)
}

func TestRetryExecutionNotImplemented(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/executions/"+uuid.NewString()+"/retry", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])

	env.pinger.err = assert.AnError
	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDashboardServesHTML(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Orchepy Dashboard")
}
