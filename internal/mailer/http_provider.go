package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPProvider posts emails as JSON to a transactional mail API.
//
// Request:  POST {from,to,subject,html} with "Authorization: Bearer <key>".
// Response: 2xx with {"id": "..."}; anything else is a failed send.
type HTTPProvider struct {
	URL     string
	APIKey  string
	Client  *http.Client
	Limiter *rate.Limiter
}

type HTTPOptions struct {
	URL        string
	APIKey     string
	RatePerSec int
	Timeout    time.Duration
}

func NewHTTPProvider(opts HTTPOptions) *HTTPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var lim *rate.Limiter
	if opts.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	return &HTTPProvider{
		URL:     opts.URL,
		APIKey:  opts.APIKey,
		Client:  &http.Client{Timeout: timeout},
		Limiter: lim,
	}
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (p *HTTPProvider) Send(ctx context.Context, e Email) (string, error) {
	if err := e.validate(); err != nil {
		return "", err
	}
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out sendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := firstNonEmpty(out.Error, out.Message, strings.TrimSpace(string(raw)), resp.Status)
		return "", fmt.Errorf("provider rejected (%d): %s", resp.StatusCode, msg)
	}
	return out.ID, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
