package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/mail-dispatch/internal/db"
	appErrors "github.com/unclebandit/mail-dispatch/internal/errors"
	"github.com/unclebandit/mail-dispatch/internal/model"
)

const messageColumns = `id, recipient, sender, subject, body, priority, status, scheduled_for,
       batch_id, batch_position, blacklist_rules, attempts, max_attempts, last_error,
       created_at, updated_at, processed_at`

// priorityRankSQL mirrors model.Priority.Rank so ordering happens in the store.
const priorityRankSQL = `CASE priority WHEN 'now' THEN 0 WHEN 'high' THEN 1 WHEN 'standard' THEN 2 WHEN 'low' THEN 3 ELSE 2 END`

type QueuedMessageRepositoryInterface interface {
	// Enqueue side
	Create(ctx context.Context, msg *model.QueuedMessage) error
	CreateBatch(ctx context.Context, msgs []*model.QueuedMessage) error
	GetByID(ctx context.Context, id string) (*model.QueuedMessage, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)

	// Dispatch side
	PromoteDueScheduled(ctx context.Context, now time.Time) (int64, error)
	NextEligible(ctx context.Context, limit int) ([]*model.QueuedMessage, error)
	ListBatchMembers(ctx context.Context, batchID string) ([]*model.QueuedMessage, error)
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	Release(ctx context.Context, id string, out Outcome, now time.Time) (bool, error)
	RecoverStuck(ctx context.Context, now time.Time, staleAfter time.Duration) (RecoverResult, error)
	Reschedule(ctx context.Context, ids []string, at, now time.Time) (int64, error)
}

// QueuedMessageRepository is the sole writer of queued_messages rows.
// Every status change is a single conditional UPDATE gated on the current status.
type QueuedMessageRepository struct {
	DB *db.DB
}

func NewQueuedMessageRepository(d *db.DB) *QueuedMessageRepository {
	return &QueuedMessageRepository{DB: d}
}

// Outcome is the result of a send attempt applied by Release.
type Outcome struct {
	Status    model.Status
	LastError string
}

type RecoverResult struct {
	Requeued int64
	Failed   int64
}

func (r *QueuedMessageRepository) q(query string) string {
	return r.DB.Dialect.Rebind(query)
}

// Create inserts a new queued message. Zero timestamps are stamped with the current time.
func (r *QueuedMessageRepository) Create(ctx context.Context, msg *model.QueuedMessage) error {
	return r.insert(ctx, r.DB, msg)
}

// CreateBatch inserts all members in one transaction so a batch is never half-enqueued.
func (r *QueuedMessageRepository) CreateBatch(ctx context.Context, msgs []*model.QueuedMessage) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := r.insert(ctx, tx, msg); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *QueuedMessageRepository) insert(ctx context.Context, ex execer, msg *model.QueuedMessage) error {
	now := time.Now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = model.DefaultMaxAttempts
	}
	if msg.Status == "" {
		msg.Status = model.StatusPending
	}
	if msg.Priority == "" {
		msg.Priority = model.PriorityStandard
	}
	rules, err := encodeRules(msg.Rules)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO queued_messages
        (id, recipient, sender, subject, body, priority, status, scheduled_for,
         batch_id, batch_position, blacklist_rules, attempts, max_attempts, last_error,
         created_at, updated_at, processed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = ex.ExecContext(ctx, r.q(query),
		msg.ID,
		msg.To,
		msg.From,
		msg.Subject,
		msg.HTML,
		string(msg.Priority),
		string(msg.Status),
		nullMillis(msg.ScheduledFor),
		nullString(msg.BatchID),
		nullInt(msg.BatchPosition),
		rules,
		msg.Attempts,
		msg.MaxAttempts,
		msg.LastError,
		msg.CreatedAt.UnixMilli(),
		msg.UpdatedAt.UnixMilli(),
		nullMillis(msg.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("insert queued message %s: %w", msg.ID, err)
	}
	return nil
}

// GetByID fetches a queued message by its ID.
func (r *QueuedMessageRepository) GetByID(ctx context.Context, id string) (*model.QueuedMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM queued_messages WHERE id = ?`
	msg, err := scanMessage(r.DB.QueryRowContext(ctx, r.q(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewMessageNotFound(id)
		}
		return nil, err
	}
	return msg, nil
}

// PromoteDueScheduled moves every scheduled message whose time has come to pending.
func (r *QueuedMessageRepository) PromoteDueScheduled(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, r.q(`
        UPDATE queued_messages
        SET status = ?, updated_at = ?
        WHERE status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?
    `), string(model.StatusPending), now.UnixMilli(), string(model.StatusScheduled), now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("promote scheduled messages: %w", err)
	}
	return res.RowsAffected()
}

// NextEligible returns up to limit pending messages: priority rank, then FIFO,
// then batch id and position so batch members stay contiguous and ordered.
func (r *QueuedMessageRepository) NextEligible(ctx context.Context, limit int) ([]*model.QueuedMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT ` + messageColumns + `
        FROM queued_messages
        WHERE status = ?
        ORDER BY ` + priorityRankSQL + ` ASC,
                 created_at ASC,
                 COALESCE(batch_id, '') ASC,
                 COALESCE(batch_position, 0) ASC,
                 id ASC
        LIMIT ?`
	return r.list(ctx, query, string(model.StatusPending), limit)
}

// ListBatchMembers returns the pending and scheduled members of a batch by position.
func (r *QueuedMessageRepository) ListBatchMembers(ctx context.Context, batchID string) ([]*model.QueuedMessage, error) {
	query := `SELECT ` + messageColumns + `
        FROM queued_messages
        WHERE batch_id = ? AND status IN (?, ?)
        ORDER BY batch_position ASC`
	return r.list(ctx, query, batchID, string(model.StatusPending), string(model.StatusScheduled))
}

// Claim atomically moves a pending message to processing and counts the attempt.
// It reports false when another cycle won the race or no attempts remain.
func (r *QueuedMessageRepository) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.q(`
        UPDATE queued_messages
        SET status = ?, attempts = attempts + 1, updated_at = ?
        WHERE id = ? AND status = ? AND attempts < max_attempts
    `), string(model.StatusProcessing), now.UnixMilli(), id, string(model.StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release applies the outcome of a send attempt to a processing message.
func (r *QueuedMessageRepository) Release(ctx context.Context, id string, out Outcome, now time.Time) (bool, error) {
	switch out.Status {
	case model.StatusCompleted, model.StatusPending, model.StatusFailed:
	default:
		return false, fmt.Errorf("release message %s: illegal target status %q", id, out.Status)
	}
	var processedAt any
	lastErr := out.LastError
	if out.Status == model.StatusCompleted {
		processedAt = now.UnixMilli()
		lastErr = ""
	}
	res, err := r.DB.ExecContext(ctx, r.q(`
        UPDATE queued_messages
        SET status = ?, last_error = ?, updated_at = ?, processed_at = ?
        WHERE id = ? AND status = ?
    `), string(out.Status), lastErr, now.UnixMilli(), processedAt, id, string(model.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("release message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecoverStuck returns processing messages untouched for longer than staleAfter to pending.
// Attempts are not changed. A stuck message with no attempts left is failed instead,
// since an exhausted message must never become pending again.
func (r *QueuedMessageRepository) RecoverStuck(ctx context.Context, now time.Time, staleAfter time.Duration) (RecoverResult, error) {
	var out RecoverResult
	cutoff := now.Add(-staleAfter).UnixMilli()

	res, err := r.DB.ExecContext(ctx, r.q(`
        UPDATE queued_messages
        SET status = ?, last_error = ?, updated_at = ?
        WHERE status = ? AND updated_at < ? AND attempts >= max_attempts
    `), string(model.StatusFailed), "processing timed out on final attempt", now.UnixMilli(), string(model.StatusProcessing), cutoff)
	if err != nil {
		return out, fmt.Errorf("fail exhausted stuck messages: %w", err)
	}
	if out.Failed, err = res.RowsAffected(); err != nil {
		return out, err
	}

	res, err = r.DB.ExecContext(ctx, r.q(`
        UPDATE queued_messages
        SET status = ?, updated_at = ?
        WHERE status = ? AND updated_at < ?
    `), string(model.StatusPending), now.UnixMilli(), string(model.StatusProcessing), cutoff)
	if err != nil {
		return out, fmt.Errorf("requeue stuck messages: %w", err)
	}
	out.Requeued, err = res.RowsAffected()
	return out, err
}

// Reschedule parks pending or scheduled messages until at.
func (r *QueuedMessageRepository) Reschedule(ctx context.Context, ids []string, at, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{string(model.StatusScheduled), at.UnixMilli(), now.UnixMilli()}
	marks := make([]string, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args = append(args, id)
	}
	args = append(args, string(model.StatusPending), string(model.StatusScheduled))
	query := `
        UPDATE queued_messages
        SET status = ?, scheduled_for = ?, updated_at = ?
        WHERE id IN (` + strings.Join(marks, ", ") + `) AND status IN (?, ?)`
	res, err := r.DB.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("reschedule messages: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns message counts for every status, zero-filled.
func (r *QueuedMessageRepository) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM queued_messages GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[model.Status]int, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		stats[s] = 0
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[model.Status(status)] = count
	}
	return stats, rows.Err()
}

func (r *QueuedMessageRepository) list(ctx context.Context, query string, args ...any) ([]*model.QueuedMessage, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*model.QueuedMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.QueuedMessage, error) {
	var (
		msg           model.QueuedMessage
		priority      string
		status        string
		scheduledFor  sql.NullInt64
		batchID       sql.NullString
		batchPosition sql.NullInt64
		rules         sql.NullString
		createdAt     int64
		updatedAt     int64
		processedAt   sql.NullInt64
	)
	err := row.Scan(
		&msg.ID,
		&msg.To,
		&msg.From,
		&msg.Subject,
		&msg.HTML,
		&priority,
		&status,
		&scheduledFor,
		&batchID,
		&batchPosition,
		&rules,
		&msg.Attempts,
		&msg.MaxAttempts,
		&msg.LastError,
		&createdAt,
		&updatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Priority = model.Priority(priority)
	msg.Status = model.Status(status)
	msg.ScheduledFor = millisPtr(scheduledFor)
	if batchID.Valid {
		id := batchID.String
		msg.BatchID = &id
	}
	if batchPosition.Valid {
		pos := int(batchPosition.Int64)
		msg.BatchPosition = &pos
	}
	if rules.Valid && strings.TrimSpace(rules.String) != "" {
		var br model.BlacklistRules
		if err := json.Unmarshal([]byte(rules.String), &br); err != nil {
			return nil, fmt.Errorf("decode blacklist rules for %s: %w", msg.ID, err)
		}
		msg.Rules = &br
	}
	msg.CreatedAt = time.UnixMilli(createdAt)
	msg.UpdatedAt = time.UnixMilli(updatedAt)
	msg.ProcessedAt = millisPtr(processedAt)
	return &msg, nil
}

func encodeRules(r *model.BlacklistRules) (any, error) {
	if r.Empty() {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode blacklist rules: %w", err)
	}
	return string(b), nil
}

func nullMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
