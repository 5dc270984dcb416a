package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/unicard?sslmode=disable", migrationURL("postgres://u:p@localhost:5432/unicard?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/unicard", migrationURL("postgresql://localhost/unicard"))
	assert.Equal(t, "pgx5://already", migrationURL("pgx5://already"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	assert.NoError(t, err)
	assert.Len(t, entries, 4)
}
