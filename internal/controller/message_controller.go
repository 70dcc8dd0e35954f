// internal/controller/message_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mail-dispatch/internal/errors"
	"github.com/unclebandit/mail-dispatch/internal/service"
)

type MessageController struct {
	EnqueueService *service.EnqueueService
	ConfigService  *service.ConfigService
	Log            zerolog.Logger
}

func (c *MessageController) Enqueue(w http.ResponseWriter, r *http.Request) {
	var body service.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	id, err := c.EnqueueService.Enqueue(r.Context(), body)
	if err != nil {
		c.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (c *MessageController) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	var body service.BatchEnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	result, err := c.EnqueueService.EnqueueBatch(r.Context(), body)
	if err != nil {
		c.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (c *MessageController) GetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := c.EnqueueService.Get(r.Context(), id)
	if err != nil {
		c.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

func (c *MessageController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.EnqueueService.Stats(r.Context())
	if err != nil {
		c.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (c *MessageController) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.ConfigService.Load(r.Context()))
}

func (c *MessageController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DailyLimit         *int    `json:"daily_limit"`
		ScheduleExpression *string `json:"schedule_expression"`
		Enabled            *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	// Absent fields keep their stored value.
	cfg := c.ConfigService.Load(r.Context())
	if body.DailyLimit != nil {
		cfg.DailyLimit = *body.DailyLimit
	}
	if body.ScheduleExpression != nil {
		cfg.ScheduleExpression = *body.ScheduleExpression
	}
	if body.Enabled != nil {
		cfg.Enabled = *body.Enabled
	}

	updated, err := c.ConfigService.Update(r.Context(), cfg)
	if err != nil {
		c.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (c *MessageController) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appErrors.ErrInvalidMessage), errors.Is(err, appErrors.ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case appErrors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		c.Log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

