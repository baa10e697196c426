package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t,
		"pgx5://app:secret@db:5432/refroute?sslmode=disable",
		MigrateURL("postgres://app:secret@db:5432/refroute?sslmode=disable"))
	assert.Equal(t,
		"pgx5://db/refroute",
		MigrateURL("postgresql://db/refroute"))
	assert.Equal(t, "pgx5://db/x", MigrateURL("pgx5://db/x"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
