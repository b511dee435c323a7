package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Espresso-Aficionados/sprobot/apperr"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SPROBOT_S3_KEY", "key")
	t.Setenv("SPROBOT_S3_SECRET", "secret")
	t.Setenv("SPROBOT_S3_ENDPOINT", "https://s3.example.com")
	t.Setenv("SPROBOT_S3_BUCKET", "sprobot")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestParseDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, 500, cfg.Profiles.CacheSize)
	assert.Equal(t, "http://bot.espressoaf.com/", cfg.Profiles.WebEndpoint)
	assert.Equal(t, int64(10*1024*1024), cfg.Images.MaxBytes)
	assert.Equal(t, 30*time.Second, cfg.Images.FetchTimeout)
	assert.Equal(t, "https://s3.example.com", cfg.Storage.PublicURL)
	assert.Equal(t, 15*time.Minute, cfg.Deletions.ConfirmationTTL)
}

func TestParseMissingRequired(t *testing.T) {
	for _, missing := range []string{"SPROBOT_S3_KEY", "SPROBOT_S3_SECRET", "SPROBOT_S3_ENDPOINT", "SPROBOT_S3_BUCKET", "JWT_SECRET"} {
		t.Run(missing, func(t *testing.T) {
			setRequired(t)
			t.Setenv(missing, "")

			_, err := Parse()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrConfiguration)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestParseClients(t *testing.T) {
	setRequired(t)
	t.Setenv("SPROBOT_API_CLIENTS", "bot:hash-one,web:hash-two")
	t.Setenv("SPROBOT_API_ADMINS", "bot")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"bot": "hash-one", "web": "hash-two"}, cfg.Auth.Clients)
	assert.Equal(t, []string{"bot"}, cfg.Auth.Admins)
}

func TestParseRejectsZeroCache(t *testing.T) {
	setRequired(t)
	t.Setenv("SPROBOT_CACHE_SIZE", "0")

	_, err := Parse()
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestParseMemoryBackend(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("SPROBOT_STORAGE_BACKEND", StorageMemory)
	t.Setenv("PORT", "9000")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "sprobot", cfg.Storage.Bucket)
	assert.Equal(t, "http://localhost:9000/objects", cfg.Storage.PublicURL)

	t.Setenv("SPROBOT_ENV", "prod")
	_, err = Parse()
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	t.Setenv("SPROBOT_ENV", "dev")
	t.Setenv("SPROBOT_STORAGE_BACKEND", "gcs")
	_, err = Parse()
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestDatabaseTarget(t *testing.T) {
	cases := []struct {
		cfg     DatabaseConfig
		dialect Dialect
		dsn     string
	}{
		{DatabaseConfig{DSN: "postgres://u:p@db/sprobot"}, DialectPostgres, "postgres://u:p@db/sprobot"},
		{DatabaseConfig{DSN: "postgresql://u:p@db/sprobot"}, DialectPostgres, "postgresql://u:p@db/sprobot"},
		{DatabaseConfig{DSN: "mysql://u:p@tcp(db)/sprobot"}, DialectMySQL, "u:p@tcp(db)/sprobot"},
		{DatabaseConfig{DSN: "sqlite://audit.db"}, DialectSQLite, "audit.db"},
		{DatabaseConfig{DSN: "/var/lib/sprobot/audit.db"}, DialectSQLite, "/var/lib/sprobot/audit.db"},
		{DatabaseConfig{DSN: "u:p@tcp(db)/sprobot", Driver: "MySQL"}, DialectMySQL, "u:p@tcp(db)/sprobot"},
		{DatabaseConfig{DSN: "file::memory:", Driver: "sqlite3"}, DialectSQLite, "file::memory:"},
	}
	for _, tc := range cases {
		dialect, dsn, err := tc.cfg.Target()
		require.NoError(t, err, tc.cfg.DSN)
		assert.Equal(t, tc.dialect, dialect, tc.cfg.DSN)
		assert.Equal(t, tc.dsn, dsn, tc.cfg.DSN)
	}

	for _, bad := range []DatabaseConfig{
		{},
		{DSN: "u:p@tcp(db)/sprobot"},
		{DSN: "x", Driver: "oracle"},
	} {
		_, _, err := bad.Target()
		assert.ErrorIs(t, err, apperr.ErrConfiguration, bad.DSN)
	}
}

func TestParseRejectsUnknownDatabase(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_DSN", "u:p@tcp(db)/sprobot")

	_, err := Parse()
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}
