package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir isolates Load from a .env in the package directory.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, warnings, err := Load()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "local", cfg.LockBackend)
	assert.Equal(t, 3, cfg.RevisionLimit)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.PaymentRetryBase)
	assert.Equal(t, []string{"image/*", "application/pdf", "text/plain"}, cfg.ProofMIMETypes)
	assert.Empty(t, cfg.AdminUsers)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ADDR", ":9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("PAYMENT_MAX_RETRIES", "5")
	t.Setenv("PAYMENT_RETRY_BASE", "50ms")
	t.Setenv("ADMIN_USERS", "ops, support-1 ,")
	t.Setenv("AUTH_DEV_HEADER", "true")

	cfg, warnings, err := Load()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "redis", cfg.LockBackend)
	assert.Equal(t, 5, cfg.PaymentMaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.PaymentRetryBase)
	assert.True(t, cfg.AuthDevHeader)
	assert.Equal(t, []string{"ops", "support-1"}, cfg.AdminUsers)
	assert.True(t, cfg.IsAdmin("ops"))
	assert.False(t, cfg.IsAdmin("poster"))
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REVISION_LIMIT", "0")
	t.Setenv("PAYMENT_MAX_RETRIES", "-1")
	t.Setenv("STORAGE_DRIVER", "s3")

	cfg, warnings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "local", cfg.LockBackend)
	assert.Equal(t, 3, cfg.RevisionLimit)
	assert.Equal(t, 3, cfg.PaymentMaxRetries)
	assert.Equal(t, "local", cfg.StorageDriver)
	assert.Len(t, warnings, 5)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ADDR=:7070\nJWT_SECRET=from-dotenv\n"), 0o600))

	cfg, _, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "from-dotenv", cfg.JWTSecret)
}

func TestShortLockTTLIsRaisedForRedis(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOCK_TTL", "30s")

	cfg, warnings, err := Load()
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "LOCK_TTL")
	// 4 attempts of 10s, 200ms+400ms+800ms of backoff and a 5s commit.
	assert.Equal(t, 46400*time.Millisecond, cfg.LockTTL)
}

func TestShortLockTTLIsKeptForLocalLocks(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LOCK_TTL", "30s")

	cfg, warnings, err := Load()
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
}
