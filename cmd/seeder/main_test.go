package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mail-dispatch/internal/db"
	"github.com/unclebandit/mail-dispatch/internal/model"
	"github.com/unclebandit/mail-dispatch/internal/repository"
	"github.com/unclebandit/mail-dispatch/internal/service"
)

func TestSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
messages:
  - to: a@x.io
    subject: one
    priority: high
    blacklist_rules:
      days_of_week: [0, 6]
  - to: b@x.io
    subject: later
    in: 2h
batches:
  - id: B1
    subject: batch
    recipients: [c@x.io, d@x.io]
`), 0o600))

	seed, err := loadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Messages, 2)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, seed.Messages[0].Rules.DaysOfWeek)

	d, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	repo := repository.NewQueuedMessageRepository(d)
	svc := &service.EnqueueService{
		Repo:     repo,
		Counts:   repository.NewDailyCountRepository(d),
		Location: time.UTC,
		Log:      zerolog.Nop(),
	}

	n, err := apply(context.Background(), svc, seed, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts[model.StatusPending])
	assert.Equal(t, 1, counts[model.StatusScheduled])
}

func TestSeedRejectsBadDelay(t *testing.T) {
	d, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	svc := &service.EnqueueService{Repo: repository.NewQueuedMessageRepository(d), Log: zerolog.Nop()}

	_, err = apply(context.Background(), svc, &seedFile{Messages: []seedMessage{{To: "a@x.io", In: "soon"}}}, time.Now())
	assert.ErrorContains(t, err, "messages[0].in")
}
