package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crummey/internal/notice/models"
	"crummey/internal/platform/database"
	"crummey/pkg/domain"
	"crummey/pkg/platform/sentinel"
)

// PostgresStore persists notices in PostgreSQL. Every state change is a single
// conditional UPDATE so concurrent callers never need row locks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const noticeColumns = `id, contribution_id, beneficiary_id, trust_id, recipient_name, recipient_email,
	withdrawal_amount, withdrawal_deadline, notice_date, status, acknowledgment_token,
	sent_at, delivered_at, bounced_at, acknowledged_at, acknowledged_by_name,
	acknowledged_ip, acknowledged_user_agent, message_id, last_error,
	send_lease_until, reminder_sent_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotice(row rowScanner) (*models.Notice, error) {
	var (
		n                                              models.Notice
		status                                         string
		sentAt, deliveredAt, bouncedAt, acknowledgedAt sql.NullTime
		leaseUntil, reminderSentAt                     sql.NullTime
	)
	if err := row.Scan(
		&n.ID, &n.ContributionID, &n.BeneficiaryID, &n.TrustID, &n.RecipientName, &n.RecipientEmail,
		&n.WithdrawalAmount, &n.WithdrawalDeadline, &n.NoticeDate, &status, &n.AcknowledgmentToken,
		&sentAt, &deliveredAt, &bouncedAt, &acknowledgedAt, &n.AcknowledgedByName,
		&n.AcknowledgedIP, &n.AcknowledgedUserAgent, &n.MessageID, &n.LastError,
		&leaseUntil, &reminderSentAt, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.Status = models.Status(status)
	n.SentAt = nullTime(sentAt)
	n.DeliveredAt = nullTime(deliveredAt)
	n.BouncedAt = nullTime(bouncedAt)
	n.AcknowledgedAt = nullTime(acknowledgedAt)
	n.SendLeaseUntil = nullTime(leaseUntil)
	n.ReminderSentAt = nullTime(reminderSentAt)
	return &n, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// InsertIfAbsent inserts n unless the (contribution, beneficiary) pair exists.
func (s *PostgresStore) InsertIfAbsent(ctx context.Context, n *models.Notice) (bool, error) {
	query := `INSERT INTO notices (` + noticeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (contribution_id, beneficiary_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query,
		n.ID, n.ContributionID, n.BeneficiaryID, n.TrustID, n.RecipientName, n.RecipientEmail,
		n.WithdrawalAmount, n.WithdrawalDeadline, n.NoticeDate, string(n.Status), n.AcknowledgmentToken,
		n.SentAt, n.DeliveredAt, n.BouncedAt, n.AcknowledgedAt, n.AcknowledgedByName,
		n.AcknowledgedIP, n.AcknowledgedUserAgent, n.MessageID, n.LastError,
		n.SendLeaseUntil, n.ReminderSentAt, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return false, sentinel.ErrAlreadyUsed
		}
		return false, fmt.Errorf("insert notice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notice rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Notice, error) {
	return s.findOne(ctx, "id = $1", id)
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Notice, error) {
	return s.findOne(ctx, "acknowledgment_token = $1", token)
}

func (s *PostgresStore) FindByMessageID(ctx context.Context, messageID string) (*models.Notice, error) {
	if messageID == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.findOne(ctx, "message_id = $1", messageID)
}

func (s *PostgresStore) findOne(ctx context.Context, where string, arg any) (*models.Notice, error) {
	query := `SELECT ` + noticeColumns + ` FROM notices WHERE ` + where
	n, err := scanNotice(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find notice: %w", err)
	}
	return n, nil
}

// List returns notices matching every set filter, oldest first.
func (s *PostgresStore) List(ctx context.Context, f models.ListFilter) ([]*models.Notice, error) {
	where, args := filterClause(f)
	query := `SELECT ` + noticeColumns + ` FROM notices` + where + ` ORDER BY created_at, id`
	return s.list(ctx, query, args...)
}

// Count returns how many notices match every set filter.
func (s *PostgresStore) Count(ctx context.Context, f models.ListFilter) (int, error) {
	where, args := filterClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notices`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notices: %w", err)
	}
	return n, nil
}

func filterClause(f models.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.TrustIDs != nil {
		add("trust_id = ANY($%d::uuid[])", pq.Array(uuidStrings(f.TrustIDs)))
	}
	if f.TrustID != nil {
		add("trust_id = $%d", *f.TrustID)
	}
	if f.ContributionID != nil {
		add("contribution_id = $%d", *f.ContributionID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(conds, " AND "), args
}

func (s *PostgresStore) ListByContribution(ctx context.Context, contributionID uuid.UUID) ([]*models.Notice, error) {
	query := `SELECT ` + noticeColumns + ` FROM notices WHERE contribution_id = $1 ORDER BY created_at, id`
	return s.list(ctx, query, contributionID)
}

// ListReminderDue returns sent or delivered notices without a reminder whose
// deadline falls within [from, until].
func (s *PostgresStore) ListReminderDue(ctx context.Context, from, until domain.Date) ([]*models.Notice, error) {
	query := `SELECT ` + noticeColumns + ` FROM notices
		WHERE status IN ('sent', 'delivered')
		  AND reminder_sent_at IS NULL
		  AND withdrawal_deadline BETWEEN $1 AND $2
		ORDER BY withdrawal_deadline, id`
	return s.list(ctx, query, from, until)
}

// ListUpcomingDeadlines returns sent notices of the given trusts whose
// deadline falls within [from, until], soonest first.
func (s *PostgresStore) ListUpcomingDeadlines(ctx context.Context, trustIDs []uuid.UUID, from, until domain.Date) ([]*models.Notice, error) {
	query := `SELECT ` + noticeColumns + ` FROM notices
		WHERE trust_id = ANY($1::uuid[])
		  AND status = 'sent'
		  AND withdrawal_deadline BETWEEN $2 AND $3
		ORDER BY withdrawal_deadline, id`
	return s.list(ctx, query, pq.Array(uuidStrings(trustIDs)), from, until)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Notice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()

	var out []*models.Notice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notices: %w", err)
	}
	return out, nil
}

// ClaimSend takes the dispatch lease on a pending notice until leaseUntil.
func (s *PostgresStore) ClaimSend(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (*models.Notice, error) {
	n, err := s.updateReturning(ctx, `
		UPDATE notices SET send_lease_until = $2
		WHERE id = $1 AND status = 'pending'
		  AND (send_lease_until IS NULL OR send_lease_until <= $3)`,
		id, leaseUntil, now)
	if errors.Is(err, sql.ErrNoRows) {
		current, findErr := s.FindByID(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		if current.Status != models.StatusPending {
			return nil, sentinel.ErrInvalidState
		}
		return nil, sentinel.ErrConflict
	}
	return n, err
}

// CompleteSend moves a pending notice to sent.
func (s *PostgresStore) CompleteSend(ctx context.Context, id uuid.UUID, messageID string, at time.Time) (*models.Notice, error) {
	n, err := s.updateReturning(ctx, `
		UPDATE notices SET status = 'sent', sent_at = $2, message_id = $3, last_error = '',
			send_lease_until = NULL, updated_at = $2
		WHERE id = $1 AND status = 'pending'`,
		id, at, messageID)
	return n, s.classify(ctx, id, err)
}

// FailSend releases the lease and records the dispatch error.
func (s *PostgresStore) FailSend(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	_, err := s.updateReturning(ctx, `
		UPDATE notices SET last_error = $2, send_lease_until = NULL, updated_at = $3
		WHERE id = $1 AND status = 'pending'`,
		id, reason, at)
	return s.classify(ctx, id, err)
}

// Acknowledge applies the signer unless the notice is already acknowledged.
func (s *PostgresStore) Acknowledge(ctx context.Context, id uuid.UUID, ack models.Acknowledgment) (*models.Notice, error) {
	n, err := s.updateReturning(ctx, `
		UPDATE notices SET status = 'acknowledged', acknowledged_at = $2, acknowledged_by_name = $3,
			acknowledged_ip = $4, acknowledged_user_agent = $5, send_lease_until = NULL, updated_at = $2
		WHERE id = $1 AND status <> 'acknowledged'`,
		id, ack.At, ack.SignatureName, ack.IP, ack.UserAgent)
	return n, s.classify(ctx, id, err)
}

// Transition moves the notice from -> to only if it is currently in from.
func (s *PostgresStore) Transition(ctx context.Context, id uuid.UUID, from, to models.Status, at time.Time) (*models.Notice, error) {
	set := "status = $3, updated_at = $4"
	switch to {
	case models.StatusDelivered:
		set += ", delivered_at = $4"
	case models.StatusBounced:
		set += ", bounced_at = $4"
	case models.StatusPending:
		set += ", last_error = '', send_lease_until = NULL"
	}
	n, err := s.updateReturning(ctx,
		`UPDATE notices SET `+set+` WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at)
	return n, s.classify(ctx, id, err)
}

// ClaimReminder stamps reminder_sent_at once.
func (s *PostgresStore) ClaimReminder(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.updateReturning(ctx, `
		UPDATE notices SET reminder_sent_at = $2
		WHERE id = $1 AND reminder_sent_at IS NULL AND status IN ('sent', 'delivered')`,
		id, at)
	return s.classify(ctx, id, err)
}

// ReleaseReminder clears a claimed reminder after a failed dispatch.
func (s *PostgresStore) ReleaseReminder(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notices SET reminder_sent_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release reminder: %w", err)
	}
	return nil
}

func (s *PostgresStore) updateReturning(ctx context.Context, query string, args ...any) (*models.Notice, error) {
	n, err := scanNotice(s.db.QueryRowContext(ctx, query+` RETURNING `+noticeColumns, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update notice: %w", err)
	}
	return n, nil
}

// classify turns a missed conditional update into ErrNotFound or ErrInvalidState.
func (s *PostgresStore) classify(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return findErr
	}
	return sentinel.ErrInvalidState
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
