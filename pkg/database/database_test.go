package database

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_second.sql": {Data: []byte("SELECT 2;")},
		"migrations/001_first.sql":  {Data: []byte("SELECT 1;")},
		"migrations/README.md":      {Data: []byte("notes")},
	}
	names, err := migrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "002_second.sql"}, names)
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := migrationNames(migrationsFS)
	require.NoError(t, err)
	assert.Contains(t, names, "001_enrollment_records.sql")
}

func TestParsePoolConfig(t *testing.T) {
	cfg, err := parsePoolConfig("postgres://u:p@localhost:5432/roots?sslmode=disable", PoolOptions{MaxConns: 7, ConnectTimeout: 3 * time.Second})
	require.NoError(t, err)
	assert.EqualValues(t, 7, cfg.MaxConns)
	assert.Equal(t, 3*time.Second, cfg.ConnConfig.ConnectTimeout)

	_, err = parsePoolConfig("postgres://localhost:notaport/roots", PoolOptions{})
	assert.Error(t, err)
}
