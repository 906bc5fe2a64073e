package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crummey/internal/contribution/models"
	"crummey/pkg/platform/sentinel"
)

// PostgresStore persists contributions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const contributionColumns = `id, trust_id, amount, contribution_date, description,
	notices_generated, notices_generated_at, beneficiary_ids, withdrawal_period_days,
	created_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContribution(row rowScanner) (*models.Contribution, error) {
	var (
		c              models.Contribution
		generatedAt    sql.NullTime
		beneficiaryIDs pq.StringArray
	)
	if err := row.Scan(
		&c.ID, &c.TrustID, &c.Amount, &c.ContributionDate, &c.Description,
		&c.NoticesGenerated, &generatedAt, &beneficiaryIDs, &c.WithdrawalPeriodDays,
		&c.CreatedBy, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	for _, raw := range beneficiaryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot beneficiary id: %w", err)
		}
		c.BeneficiaryIDs = append(c.BeneficiaryIDs, id)
	}
	if generatedAt.Valid {
		at := generatedAt.Time.UTC()
		c.NoticesGeneratedAt = &at
	}
	return &c, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Contribution) error {
	query := `INSERT INTO contributions (` + contributionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid[], $9, $10, $11)`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.TrustID, c.Amount, c.ContributionDate, c.Description,
		c.NoticesGenerated, c.NoticesGeneratedAt, pq.Array(uuidStrings(c.BeneficiaryIDs)),
		c.WithdrawalPeriodDays, c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE id = $1`
	c, err := scanContribution(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find contribution: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByTrust(ctx context.Context, trustID uuid.UUID) ([]*models.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions
		WHERE trust_id = $1 ORDER BY contribution_date DESC, created_at DESC`
	return s.list(ctx, query, trustID)
}

func (s *PostgresStore) ListByTrusts(ctx context.Context, trustIDs []uuid.UUID) ([]*models.Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions
		WHERE trust_id = ANY($1::uuid[]) ORDER BY contribution_date DESC, created_at DESC`
	return s.list(ctx, query, pq.Array(uuidStrings(trustIDs)))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []*models.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return out, nil
}

// MarkNoticesGenerated flips the flag with a conditional update. Exactly one
// concurrent caller observes true.
func (s *PostgresStore) MarkNoticesGenerated(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE contributions SET notices_generated = TRUE, notices_generated_at = $2
		WHERE id = $1 AND notices_generated = FALSE`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark notices generated: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notices generated rows affected: %w", err)
	}
	if affected == 1 {
		return true, nil
	}
	if _, err := s.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
