package mailer

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogProvider accepts every email and only logs it. Used for development.
type LogProvider struct {
	Log zerolog.Logger
}

func NewLogProvider(log zerolog.Logger) *LogProvider {
	return &LogProvider{Log: log}
}

func (p *LogProvider) Send(_ context.Context, e Email) (string, error) {
	if err := e.validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	p.Log.Info().
		Str("provider_id", id).
		Str("to", e.To).
		Str("from", e.From).
		Str("subject", e.Subject).
		Int("html_bytes", len(e.HTML)).
		Msg("email accepted")
	return id, nil
}
