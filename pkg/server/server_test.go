package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/supportd/internal/channel"
	"github.com/fyrsmithlabs/supportd/internal/config"
	"github.com/fyrsmithlabs/supportd/internal/queue"
	"github.com/fyrsmithlabs/supportd/internal/workflows"
)

type fakeEnqueuer struct {
	msgs []channel.Message
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msg channel.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeStarter struct {
	inputs []workflows.KnowledgeIngestInput
	err    error
}

func (f *fakeStarter) StartIngest(_ context.Context, input workflows.KnowledgeIngestInput) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.inputs = append(f.inputs, input)
	return "wf-123", nil
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:            8080,
		ShutdownTimeout: config.Duration(5 * time.Second),
	}
}

func newTestServer(t *testing.T, producer Enqueuer, ingest workflows.Starter) *Server {
	t.Helper()
	srv, err := NewServer(testServerConfig(), producer, ingest)
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeEnqueuer{}, nil)

	rec := doJSON(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "supportd", resp.Service)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeEnqueuer{}, nil)

	rec := doJSON(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostMessage(t *testing.T) {
	producer := &fakeEnqueuer{}
	srv := newTestServer(t, producer, nil)

	rec := doJSON(srv, http.MethodPost, "/api/messages/email",
		`{"business_id":"biz-a","content":"Help me","metadata":{"subject":"Hi"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)

	require.Len(t, producer.msgs, 1)
	msg := producer.msgs[0]
	assert.Equal(t, channel.Email, msg.Channel)
	assert.Equal(t, "biz-a", msg.BusinessID)
	assert.Equal(t, "Help me", msg.Content)
	assert.Equal(t, "Hi", msg.Metadata["subject"])
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestPostMessageUnknownChannel(t *testing.T) {
	producer := &fakeEnqueuer{}
	srv := newTestServer(t, producer, nil)

	rec := doJSON(srv, http.MethodPost, "/api/messages/sms",
		`{"business_id":"biz-a","content":"Help"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, producer.msgs)
}

func TestPostMessageValidationFailure(t *testing.T) {
	producer := &fakeEnqueuer{err: queue.ErrValidationFailed}
	srv := newTestServer(t, producer, nil)

	rec := doJSON(srv, http.MethodPost, "/api/messages/chat",
		`{"business_id":"","content":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageTransportFailure(t *testing.T) {
	// A queue outage is the server's problem, not the client's.
	producer := &fakeEnqueuer{err: errors.New("nats: connection closed")}
	srv := newTestServer(t, producer, nil)

	rec := doJSON(srv, http.MethodPost, "/api/messages/chat",
		`{"business_id":"biz-a","content":"Help"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPostKnowledge(t *testing.T) {
	starter := &fakeStarter{}
	srv := newTestServer(t, &fakeEnqueuer{}, starter)

	rec := doJSON(srv, http.MethodPost, "/api/knowledge",
		`{"business_id":"biz-a","content":"Refund policy: 30 days."}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp KnowledgeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "wf-123", resp.WorkflowID)

	require.Len(t, starter.inputs, 1)
	assert.Equal(t, "biz-a", starter.inputs[0].BusinessID)
}

func TestPostKnowledgeMissingFields(t *testing.T) {
	starter := &fakeStarter{}
	srv := newTestServer(t, &fakeEnqueuer{}, starter)

	rec := doJSON(srv, http.MethodPost, "/api/knowledge", `{"business_id":"biz-a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, starter.inputs)
}

func TestPostKnowledgeNotConfigured(t *testing.T) {
	srv := newTestServer(t, &fakeEnqueuer{}, nil)

	rec := doJSON(srv, http.MethodPost, "/api/knowledge",
		`{"business_id":"biz-a","content":"doc"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostKnowledgeStarterFailure(t *testing.T) {
	starter := &fakeStarter{err: errors.New("temporal unavailable")}
	srv := newTestServer(t, &fakeEnqueuer{}, starter)

	rec := doJSON(srv, http.MethodPost, "/api/knowledge",
		`{"business_id":"biz-a","content":"doc"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServerGracefulShutdown(t *testing.T) {
	cfg := config.ServerConfig{
		Port:            18099,
		ShutdownTimeout: config.Duration(2 * time.Second),
	}
	srv, err := NewServer(cfg, &fakeEnqueuer{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://localhost:18099/health")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown within timeout")
	}
}
