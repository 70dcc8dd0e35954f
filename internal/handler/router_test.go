package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mail-dispatch/internal/controller"
	"github.com/unclebandit/mail-dispatch/internal/db"
	"github.com/unclebandit/mail-dispatch/internal/handler"
	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
	"github.com/unclebandit/mail-dispatch/internal/service"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	d, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	cfg := service.NewConfigService(repository.NewConfigRepository(d), model.DefaultDispatchConfig(), zerolog.Nop())
	ctrl := &controller.MessageController{
		EnqueueService: &service.EnqueueService{
			Repo:     repository.NewQueuedMessageRepository(d),
			Counts:   repository.NewDailyCountRepository(d),
			Config:   cfg,
			Location: time.UTC,
			Log:      zerolog.Nop(),
		},
		ConfigService: cfg,
		Log:           zerolog.Nop(),
	}
	srv := httptest.NewServer(handler.NewRouter(ctrl, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEnqueueAndFetch(t *testing.T) {
	srv := newServer(t)

	resp := do(t, srv, http.MethodPost, "/messages", map[string]any{
		"to": "a@example.com", "subject": "hi", "html": "<p>hi</p>", "priority": "now",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	resp = do(t, srv, http.MethodGet, "/messages/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg model.QueuedMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, model.PriorityNow, msg.Priority)
	assert.Equal(t, model.StatusPending, msg.Status)
}

func TestEnqueueRejectsInvalid(t *testing.T) {
	srv := newServer(t)

	resp := do(t, srv, http.MethodPost, "/messages", map[string]any{"subject": "no recipient"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/messages", "{broken")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/messages/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBatchAndStats(t *testing.T) {
	srv := newServer(t)

	resp := do(t, srv, http.MethodPost, "/messages/batch", map[string]any{
		"recipients": []string{"a@x.io", "b@x.io"}, "subject": "news",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var batch service.BatchEnqueueResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&batch))
	assert.NotEmpty(t, batch.BatchID)
	assert.Len(t, batch.IDs, 2)

	resp = do(t, srv, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		Messages map[string]int `json:"messages"`
		Budget   service.Budget `json:"budget"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Messages["pending"])
	assert.Equal(t, model.DefaultDailyLimit, stats.Budget.Limit)
	assert.Equal(t, model.DefaultDailyLimit, stats.Budget.Remaining)
}

func TestConfigEndpoints(t *testing.T) {
	srv := newServer(t)

	resp := do(t, srv, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg model.DispatchConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, model.DefaultScheduleExpression, cfg.ScheduleExpression)

	resp = do(t, srv, http.MethodPut, "/config", map[string]any{"daily_limit": 7})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, 7, cfg.DailyLimit)
	assert.Equal(t, model.DefaultScheduleExpression, cfg.ScheduleExpression)
	assert.True(t, cfg.Enabled)

	resp = do(t, srv, http.MethodPut, "/config", map[string]any{"schedule_expression": "whenever"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPut, "/config", map[string]any{"daily_limit": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
