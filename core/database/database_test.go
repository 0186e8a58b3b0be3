package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/wabot/core/config"
)

func TestEmbeddedMigrationsListed(t *testing.T) {
	files := listMigrationFiles(migrationsFS, "migrations")
	assert.Equal(t, []string{"000001_create_sessions.up.sql"}, files)
}

func TestSelectApplied(t *testing.T) {
	fsys := fstest.MapFS{
		"m/000001_a.up.sql":   {},
		"m/000001_a.down.sql": {},
		"m/000002_b.up.sql":   {},
		"m/000003_c.up.sql":   {},
	}
	files := listMigrationFiles(fsys, "m")
	require.Len(t, files, 3)
	assert.Equal(t, []string{"000002_b.up.sql", "000003_c.up.sql"}, selectApplied(files, 1, 3))
	assert.Nil(t, selectApplied(files, 3, 3))
	assert.Equal(t, uint64(2), parseVersion("000002_b.up.sql"))
}

func TestOpenSQLiteAppliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	db, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)

	_, err = db.Exec(db.Rebind(`INSERT INTO sessions (session_key, data) VALUES (?, ?)`), "k", `{}`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM sessions`))
	assert.Equal(t, 1, n)

	// reopening keeps the data and tolerates the existing schema
	require.NoError(t, db.Close())
	db, err = OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM sessions`))
	assert.Equal(t, 1, n)
}

func TestDSN(t *testing.T) {
	got := DSN(coreconfig.DatabaseConfig{
		Host: "db", Port: "5432", User: "bot", Password: "pw", Name: "wabot", SSLMode: "disable",
	})
	assert.Equal(t, "user=bot password=pw host=db port=5432 dbname=wabot sslmode=disable", got)
}
