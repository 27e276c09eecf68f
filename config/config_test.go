package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-long-enough-test-secret")
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, AppConfig)

	assert.Equal(t, "groupdrive", cfg.DatabaseName)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "require_empty", cfg.TrashPolicy)
	assert.Equal(t, 30*24*time.Hour, cfg.TrashRetention)
	assert.Equal(t, 5*time.Minute, cfg.MembershipTTL)
	assert.Equal(t, 500, cfg.MaxBatchSize)
	assert.Equal(t, int64(104857600), cfg.MaxFileSize)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_OverridesAndAliases(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-long-enough-test-secret")
	t.Setenv("STORAGE_BACKEND", "B2")
	t.Setenv("BACKBLAZE_KEY_ID", "key-id")
	t.Setenv("B2_APP_KEY", "app-key")
	t.Setenv("B2_BUCKET", "bucket")
	t.Setenv("CLEANUP_INTERVAL", "1h")
	t.Setenv("TRASH_POLICY", "Cascade")
	t.Setenv("MAX_BATCH_SIZE", "50")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "b2", cfg.StorageBackend)
	assert.Equal(t, "key-id", cfg.B2ApplicationKeyID)
	assert.Equal(t, "app-key", cfg.B2ApplicationKey)
	assert.Equal(t, "bucket", cfg.B2BucketName)
	assert.Equal(t, time.Hour, cfg.TrashCleanupInterval)
	assert.Equal(t, "cascade", cfg.TrashPolicy)
	assert.Equal(t, 50, cfg.MaxBatchSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfig_ValidationNamesVariables(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-long-enough-test-secret")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("TRASH_POLICY", "shred")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET")
	assert.Contains(t, err.Error(), "TRASH_POLICY")
}

func TestLoadConfig_RequiresTokenSource(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_JWKS_URL", "")
	t.Setenv("STORAGE_BACKEND", "memory")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	t.Setenv("JWT_JWKS_URL", "https://issuer.example/.well-known/jwks.json")
	_, err = LoadConfig()
	assert.NoError(t, err)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-long-enough-test-secret")
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("TRASH_RETENTION", "thirty days")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRASH_RETENTION")
}

func TestMasking(t *testing.T) {
	assert.Equal(t, "[NOT SET]", maskSecret(""))
	assert.Equal(t, "[HIDDEN]", maskSecret("short"))
	assert.Equal(t, "abcd***wxyz", maskSecret("abcdefghijklmnopqrstuvwxyz"))

	assert.Equal(t, "[CREDENTIALS_HIDDEN]@db.example:27017", maskConnectionString("mongodb://user:pw@db.example:27017"))
	assert.Equal(t, "mongodb://localhost:27017", maskConnectionString("mongodb://localhost:27017"))
}
