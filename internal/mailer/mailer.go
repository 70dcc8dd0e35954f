// Package mailer delivers rendered emails to a transport provider.
package mailer

import (
	"context"
	"errors"
	"strings"
)

// Email is what a provider needs to deliver one message.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Provider sends one email and returns the provider's message id.
// Any nil error counts as an accepted send.
type Provider interface {
	Send(ctx context.Context, e Email) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, e Email) (string, error)

func (f ProviderFunc) Send(ctx context.Context, e Email) (string, error) {
	return f(ctx, e)
}

var ErrNoRecipient = errors.New("email has no recipient")

func (e Email) validate() error {
	if strings.TrimSpace(e.To) == "" {
		return ErrNoRecipient
	}
	return nil
}
