package beneficiary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"crummey/internal/trust/models"
	"crummey/pkg/platform/sentinel"
)

// PostgresStore persists beneficiaries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const beneficiaryColumns = `id, trust_id, full_name, email, share_percentage, address,
	is_minor, guardian_name, guardian_email, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBeneficiary(row rowScanner) (*models.Beneficiary, error) {
	var b models.Beneficiary
	if err := row.Scan(
		&b.ID, &b.TrustID, &b.FullName, &b.Email, &b.SharePercentage, &b.Address,
		&b.IsMinor, &b.GuardianName, &b.GuardianEmail, &b.IsActive, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) Create(ctx context.Context, b *models.Beneficiary) error {
	query := `INSERT INTO beneficiaries (` + beneficiaryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.TrustID, b.FullName, b.Email, b.SharePercentage, b.Address,
		b.IsMinor, b.GuardianName, b.GuardianEmail, b.IsActive, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert beneficiary: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE id = $1`
	b, err := scanBeneficiary(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find beneficiary by id: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListByTrust(ctx context.Context, trustID uuid.UUID) ([]*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries
		WHERE trust_id = $1 ORDER BY created_at, id`
	return s.list(ctx, query, trustID)
}

func (s *PostgresStore) ListEligible(ctx context.Context, trustID uuid.UUID, asOf time.Time) ([]*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries
		WHERE trust_id = $1 AND is_active AND created_at <= $2 ORDER BY created_at, id`
	return s.list(ctx, query, trustID, asOf)
}

// ListByIDs returns the trust's beneficiaries among ids, active or not.
func (s *PostgresStore) ListByIDs(ctx context.Context, trustID uuid.UUID, ids []uuid.UUID) ([]*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries
		WHERE trust_id = $1 AND id = ANY($2::uuid[]) ORDER BY created_at, id`
	return s.list(ctx, query, trustID, pq.Array(uuidStrings(ids)))
}

// CountActive counts active beneficiaries across the given trusts.
func (s *PostgresStore) CountActive(ctx context.Context, trustIDs []uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM beneficiaries
		WHERE trust_id = ANY($1::uuid[]) AND is_active`, pq.Array(uuidStrings(trustIDs))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active beneficiaries: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Beneficiary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	defer rows.Close()

	var out []*models.Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate beneficiaries: %w", err)
	}
	return out, nil
}

// Execute locks the row, validates, mutates and writes back in one transaction.
func (s *PostgresStore) Execute(ctx context.Context, id uuid.UUID, validate func(*models.Beneficiary) error, mutate func(*models.Beneficiary)) (*models.Beneficiary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE id = $1 FOR UPDATE`
	b, err := scanBeneficiary(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find beneficiary for update: %w", err)
	}
	if err := validate(b); err != nil {
		return nil, err
	}
	mutate(b)

	update := `UPDATE beneficiaries SET full_name = $2, email = $3, share_percentage = $4,
		address = $5, is_minor = $6, guardian_name = $7, guardian_email = $8,
		is_active = $9, updated_at = $10
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update,
		b.ID, b.FullName, b.Email, b.SharePercentage, b.Address, b.IsMinor,
		b.GuardianName, b.GuardianEmail, b.IsActive, b.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update beneficiary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit beneficiary update: %w", err)
	}
	return b, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
