package eventbus

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchehq/orchepy/model"
	"github.com/orchehq/orchepy/service"
)

type fakeSubmitter struct {
	submitted []model.CreateEvent
	err       error
}

func (f *fakeSubmitter) Submit(_ context.Context, payload model.CreateEvent) (*service.SubmitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, payload)
	return &service.SubmitResult{EventID: uuid.New()}, nil
}

func newTestBridge(events EventSubmitter) *Bridge {
	return &Bridge{events: events, logger: slog.Default()}
}

func TestHandleSubmitsPayload(t *testing.T) {
	submitter := &fakeSubmitter{}
	b := newTestBridge(submitter)

	b.handle("orchepy.events.order.created", []byte(`{"data":{"order_id":"42"}}`))

	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, "order.created", submitter.submitted[0].EventType)
	assert.Equal(t, "42", submitter.submitted[0].Data["order_id"])
}

func TestHandlePayloadEventTypeWins(t *testing.T) {
	submitter := &fakeSubmitter{}
	b := newTestBridge(submitter)

	b.handle("orchepy.events.ignored", []byte(`{"event_type":"order.created"}`))

	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, "order.created", submitter.submitted[0].EventType)
}

func TestHandleEmptyBodyUsesSubject(t *testing.T) {
	submitter := &fakeSubmitter{}
	b := newTestBridge(submitter)

	b.handle("orchepy.events.ping", nil)

	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, "ping", submitter.submitted[0].EventType)
}

func TestHandleDropsBadJSON(t *testing.T) {
	submitter := &fakeSubmitter{}
	b := newTestBridge(submitter)

	b.handle("orchepy.events.order.created", []byte(`{not json`))

	assert.Empty(t, submitter.submitted)
}

func TestHandleDropsMissingEventType(t *testing.T) {
	submitter := &fakeSubmitter{}
	b := newTestBridge(submitter)

	b.handle("orchepy.events.", []byte(`{}`))

	assert.Empty(t, submitter.submitted)
}

func TestHandleSubmitFailureDoesNotPanic(t *testing.T) {
	b := newTestBridge(&fakeSubmitter{err: assert.AnError})
	b.handle("orchepy.events.order.created", []byte(`{}`))
}
