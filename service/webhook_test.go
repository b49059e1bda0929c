package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchehq/orchepy/model"
)

func webhookTestCase() *model.Case {
	c := model.NewCase(uuid.New(), "intake", map[string]any{"invoice": "123"}, nil)
	c.MoveToPhase("validation")
	return c
}

func TestSendCaseMovedPayload(t *testing.T) {
	var payload CaseWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(nil)
	c := webhookTestCase()
	from := "intake"

	require.NoError(t, sender.SendCaseMoved(context.Background(), srv.URL, c, &from))

	assert.Equal(t, "case.moved", payload.Action)
	assert.Equal(t, c.ID, payload.Data.CaseID)
	assert.Equal(t, c.WorkflowID, payload.Data.WorkflowID)
	require.NotNil(t, payload.Data.FromPhase)
	assert.Equal(t, "intake", *payload.Data.FromPhase)
	assert.Equal(t, "validation", payload.Data.ToPhase)
	assert.Equal(t, map[string]any{"invoice": "123"}, payload.Data.CaseData)
}

func TestSendCaseMovedNilFromPhase(t *testing.T) {
	var payload CaseWebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	sender := NewWebhookSender(nil)
	c := model.NewCase(uuid.New(), "intake", nil, nil)

	require.NoError(t, sender.SendCaseMoved(context.Background(), srv.URL, c, nil))
	assert.Nil(t, payload.Data.FromPhase)
	assert.Equal(t, "intake", payload.Data.ToPhase)
}

func TestSendCaseMovedNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewWebhookSender(nil)
	err := sender.SendCaseMoved(context.Background(), srv.URL, webhookTestCase(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSendCaseMovedWithRetryEventuallySucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(nil)
	err := sender.SendCaseMovedWithRetry(context.Background(), srv.URL, webhookTestCase(), nil, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendCaseMovedWithRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := NewWebhookSender(nil)
	err := sender.SendCaseMovedWithRetry(ctx, srv.URL, webhookTestCase(), nil, 2)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendCaseMovedWithRetryHonoursCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := NewWebhookSender(nil)
	err := sender.SendCaseMovedWithRetry(ctx, srv.URL, webhookTestCase(), nil, 5)
	require.Error(t, err)
}
