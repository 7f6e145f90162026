package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dunamismax/shrinkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(attempts int) Config {
	return Config{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestSendSignsBody(t *testing.T) {
	var (
		gotSig, gotTS, gotEvt string
		gotBody               []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(testConfig(1), nil)
	err := client.Send(context.Background(), srv.URL, EventSessionReady, map[string]any{"session_id": "s-1"})
	require.NoError(t, err)

	assert.Equal(t, EventSessionReady, gotEvt)
	assert.NotEmpty(t, gotTS)
	assert.True(t, Verify("test-secret", gotTS, gotBody, gotSig))
	assert.False(t, Verify("other-secret", gotTS, gotBody, gotSig))
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(testConfig(3), nil).Send(context.Background(), srv.URL, EventSessionFailed, map[string]string{}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	err := NewClient(testConfig(5), nil).Send(context.Background(), srv.URL, EventSessionReady, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=410")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendWithoutEndpointIsNoop(t *testing.T) {
	assert.NoError(t, NewClient(testConfig(1), nil).Send(context.Background(), "  ", EventSessionReady, nil))
}

func TestEventFor(t *testing.T) {
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	s := domain.NewSession("s-1", now)

	_, _, ok := EventFor(s, "r1")
	assert.False(t, ok)

	s.State = domain.StateReady
	s.Processed = &domain.ProcessedImage{MIMEType: "image/jpeg", Bytes: 120}
	event, payload, ok := EventFor(s, "r1")
	require.True(t, ok)
	assert.Equal(t, EventSessionReady, event)
	assert.Equal(t, 120, payload.Processed.Bytes)

	s.State = domain.StateFailed
	s.Processed = nil
	s.FailureKind = domain.KindRemoteFailure
	s.FailureReason = "model unavailable"
	event, payload, ok = EventFor(s, "r1")
	require.True(t, ok)
	assert.Equal(t, EventSessionFailed, event)
	assert.Equal(t, "model unavailable", payload.FailureReason)
	assert.Nil(t, payload.Processed)
}
