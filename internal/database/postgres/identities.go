package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/facematch"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// IdentityRepository provides PostgreSQL-backed storage of known persons.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = `known_person_id, patient_id, name, face_encoding, image_path, created_at`

// ListIdentities returns every stored identity, oldest first.
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]facematch.KnownIdentity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM known_persons ORDER BY created_at, known_person_id`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// GetIdentity retrieves an identity by id, returns nil if not found.
func (r *IdentityRepository) GetIdentity(ctx context.Context, id string) (*facematch.KnownIdentity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM known_persons WHERE known_person_id = $1`, id)
	ident, err := scanIdentityRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &ident, nil
}

// ListIdentitiesByOwner returns the identities belonging to one patient.
func (r *IdentityRepository) ListIdentitiesByOwner(ctx context.Context, ownerID string) ([]facematch.KnownIdentity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM known_persons WHERE patient_id = $1 ORDER BY created_at, known_person_id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query identities by owner: %w", err)
	}
	defer rows.Close()

	return scanIdentities(rows)
}

// CountIdentities returns the total number of stored identities.
func (r *IdentityRepository) CountIdentities(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM known_persons").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// InsertIdentity stores a new identity.
func (r *IdentityRepository) InsertIdentity(ctx context.Context, ident facematch.KnownIdentity) error {
	createdAt := ident.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO known_persons (known_person_id, patient_id, name, face_encoding, image_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ident.ID, ident.OwnerID, ident.DisplayName, pgvector.NewVector(ident.Embedding), ident.ImagePath, createdAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", database.ErrIdentityExists, ident.ID)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// AssignOwner re-owns every identity to ownerID.
func (r *IdentityRepository) AssignOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := r.pool.Exec(ctx, "UPDATE known_persons SET patient_id = $1 WHERE patient_id <> $1", ownerID)
	if err != nil {
		return 0, fmt.Errorf("assign owner: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentityRow(row rowScanner) (facematch.KnownIdentity, error) {
	var ident facematch.KnownIdentity
	var vec pgvector.Vector
	if err := row.Scan(&ident.ID, &ident.OwnerID, &ident.DisplayName, &vec, &ident.ImagePath, &ident.CreatedAt); err != nil {
		return facematch.KnownIdentity{}, err
	}
	ident.Embedding = vec.Slice()
	return ident, nil
}

func scanIdentities(rows *sql.Rows) ([]facematch.KnownIdentity, error) {
	var identities []facematch.KnownIdentity
	for rows.Next() {
		ident, err := scanIdentityRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}
