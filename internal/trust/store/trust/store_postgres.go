package trust

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"crummey/internal/trust/models"
	"crummey/pkg/platform/sentinel"
)

// PostgresStore persists trusts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const trustColumns = `id, owner_id, name, trust_type, trust_date, withdrawal_period_days,
	trustee_name, trustee_email, trustee_phone, trustee_address, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrust(row rowScanner) (*models.Trust, error) {
	var (
		t         models.Trust
		trustType string
	)
	if err := row.Scan(
		&t.ID, &t.OwnerID, &t.Name, &trustType, &t.TrustDate, &t.WithdrawalPeriodDays,
		&t.TrusteeName, &t.TrusteeEmail, &t.TrusteePhone, &t.TrusteeAddress, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.TrustType = models.TrustType(trustType)
	return &t, nil
}

func (s *PostgresStore) Create(ctx context.Context, t *models.Trust) error {
	query := `INSERT INTO trusts (` + trustColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.OwnerID, t.Name, string(t.TrustType), t.TrustDate, t.WithdrawalPeriodDays,
		t.TrusteeName, t.TrusteeEmail, t.TrusteePhone, t.TrusteeAddress, t.IsActive,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trust: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Trust, error) {
	query := `SELECT ` + trustColumns + ` FROM trusts WHERE id = $1`
	t, err := scanTrust(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find trust by id: %w", err)
	}
	return t, nil
}

// CountActiveByOwner counts the owner's active trusts.
func (s *PostgresStore) CountActiveByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trusts WHERE owner_id = $1 AND is_active`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active trusts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Trust, error) {
	query := `SELECT ` + trustColumns + ` FROM trusts WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list trusts: %w", err)
	}
	defer rows.Close()

	var out []*models.Trust
	for rows.Next() {
		t, err := scanTrust(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trust: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trusts: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE, validates, mutates and
// writes back inside one transaction.
func (s *PostgresStore) Execute(ctx context.Context, id uuid.UUID, validate func(*models.Trust) error, mutate func(*models.Trust)) (*models.Trust, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + trustColumns + ` FROM trusts WHERE id = $1 FOR UPDATE`
	t, err := scanTrust(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find trust for update: %w", err)
	}
	if err := validate(t); err != nil {
		return nil, err
	}
	mutate(t)

	update := `UPDATE trusts SET name = $2, trust_type = $3, trust_date = $4,
		withdrawal_period_days = $5, trustee_name = $6, trustee_email = $7,
		trustee_phone = $8, trustee_address = $9, is_active = $10, updated_at = $11
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		t.ID, t.Name, string(t.TrustType), t.TrustDate, t.WithdrawalPeriodDays,
		t.TrusteeName, t.TrusteeEmail, t.TrusteePhone, t.TrusteeAddress, t.IsActive, t.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update trust: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit trust update: %w", err)
	}
	return t, nil
}
