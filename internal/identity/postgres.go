package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "refroute/pkg/domain"
	"refroute/pkg/platform/sentinel"
)

// PostgresDirectory reads the users table. The engine never writes to it.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) GetIdentity(ctx context.Context, user id.UserID) (Identity, error) {
	var u Identity
	var userID uuid.UUID
	err := d.pool.QueryRow(ctx, `
		SELECT id, full_name, email, lab_name, division, designation
		FROM users WHERE id = $1`, uuid.UUID(user),
	).Scan(&userID, &u.FullName, &u.Email, &u.LabName, &u.Division, &u.Designation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, sentinel.ErrNotFound
		}
		return Identity{}, fmt.Errorf("get identity: %w", err)
	}
	u.UserID = id.UserID(userID)
	return u, nil
}
