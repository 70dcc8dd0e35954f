package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mail-dispatch/internal/db"
	"github.com/unclebandit/mail-dispatch/internal/mailer"
	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
	"github.com/unclebandit/mail-dispatch/internal/service"
)

// Monday 2025-03-10 10:00 UTC
var monday = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// MockProvider records every email and fails for recipients in failFor.
type MockProvider struct {
	mu      sync.Mutex
	sent    []mailer.Email
	calls   int
	failAll bool
	failFor map[string]bool
}

func (p *MockProvider) Send(_ context.Context, e mailer.Email) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAll || p.failFor[e.To] {
		return "", errors.New("provider unavailable")
	}
	p.sent = append(p.sent, e)
	return "prov-" + e.To, nil
}

func (p *MockProvider) Recipients() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, e := range p.sent {
		out[i] = e.To
	}
	return out
}

type harness struct {
	db       *db.DB
	repo     *repository.QueuedMessageRepository
	counts   *repository.DailyCountRepository
	cfgRepo  *repository.ConfigRepository
	config   *service.ConfigService
	provider *MockProvider
	clock    *clock
	disp     *service.Dispatcher
	enqueue  *service.EnqueueService
}

func newHarness(t *testing.T, dailyLimit int) *harness {
	t.Helper()
	d, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	h := &harness{
		db:       d,
		repo:     repository.NewQueuedMessageRepository(d),
		counts:   repository.NewDailyCountRepository(d),
		cfgRepo:  repository.NewConfigRepository(d),
		provider: &MockProvider{failFor: map[string]bool{}},
		clock:    &clock{t: monday},
	}
	defaults := model.DefaultDispatchConfig()
	defaults.DailyLimit = dailyLimit
	h.config = service.NewConfigService(h.cfgRepo, defaults, zerolog.Nop())

	h.disp, err = service.NewDispatcher(service.DispatcherOptions{
		Repo:        h.repo,
		Counts:      h.counts,
		Config:      h.config,
		Provider:    h.provider,
		Location:    time.UTC,
		StaleAfter:  5 * time.Minute,
		ResumeAt:    "09:00",
		DefaultFrom: "noreply@example.com",
		Log:         zerolog.Nop(),
		Now:         h.clock.Now,
	})
	require.NoError(t, err)

	h.enqueue = &service.EnqueueService{
		Repo:     h.repo,
		Counts:   h.counts,
		Config:   h.config,
		Location: time.UTC,
		Log:      zerolog.Nop(),
		Now:      h.clock.Now,
	}
	return h
}

// add enqueues one message a second after the previous one so FIFO order is stable.
func (h *harness) add(t *testing.T, req service.EnqueueRequest) string {
	t.Helper()
	if req.Subject == "" {
		req.Subject = "hello"
	}
	id, err := h.enqueue.Enqueue(context.Background(), req)
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	return id
}

func (h *harness) get(t *testing.T, id string) *model.QueuedMessage {
	t.Helper()
	m, err := h.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (h *harness) run(t *testing.T) model.CycleSummary {
	t.Helper()
	sum, err := h.disp.RunCycle(context.Background())
	require.NoError(t, err)
	return sum
}

func (h *harness) dailyCount(t *testing.T, day string) model.DailyCount {
	t.Helper()
	dc, _, err := h.counts.Get(context.Background(), day)
	require.NoError(t, err)
	return dc
}

type brokenConfigRepo struct{}

func (brokenConfigRepo) Get(context.Context) (model.DispatchConfig, error) {
	return model.DispatchConfig{}, errors.New("db down")
}
func (brokenConfigRepo) CreateIfAbsent(context.Context, model.DispatchConfig) error {
	return errors.New("db down")
}
func (brokenConfigRepo) Put(context.Context, model.DispatchConfig) error { return errors.New("db down") }

func zerologNop() zerolog.Logger { return zerolog.Nop() }
