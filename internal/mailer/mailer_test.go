package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderSendsJSON(t *testing.T) {
	var got Email
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"prov-123"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{URL: srv.URL, APIKey: "key-1", RatePerSec: 100, Timeout: time.Second})
	id, err := p.Send(context.Background(), Email{From: "a@x.io", To: "b@x.io", Subject: "hi", HTML: "<b>hi</b>"})
	require.NoError(t, err)
	assert.Equal(t, "prov-123", id)
	assert.Equal(t, Email{From: "a@x.io", To: "b@x.io", Subject: "hi", HTML: "<b>hi</b>"}, got)
}

func TestHTTPProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid recipient"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{URL: srv.URL})
	_, err := p.Send(context.Background(), Email{To: "b@x.io"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestHTTPProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPOptions{URL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := p.Send(context.Background(), Email{To: "b@x.io"})
	assert.Error(t, err)
}

func TestProvidersRequireRecipient(t *testing.T) {
	_, err := NewLogProvider(zerolog.Nop()).Send(context.Background(), Email{})
	assert.ErrorIs(t, err, ErrNoRecipient)

	_, err = NewHTTPProvider(HTTPOptions{URL: "http://127.0.0.1:0"}).Send(context.Background(), Email{})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestLogProviderAccepts(t *testing.T) {
	id, err := NewLogProvider(zerolog.Nop()).Send(context.Background(), Email{To: "b@x.io"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
