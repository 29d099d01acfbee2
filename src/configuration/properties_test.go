package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProperties(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config, err := ParseProperties()
		require.NoError(t, err)

		assert.Equal(t, "8088", config.Server.Port)
		assert.Equal(t, 15*time.Second, config.Server.ReadHeaderTimeout)
		assert.Zero(t, config.Server.ReadTimeout)
		assert.Zero(t, config.Server.WriteTimeout)
		assert.Equal(t, BackendMinio, config.Storage.Backend)
		assert.Equal(t, "temp", config.Storage.TempDir)
		assert.Equal(t, 8, config.Storage.PurgeWorkers)
		assert.Equal(t, []string{"http://localhost:3000"}, config.Server.AllowOrigins)
	})

	t.Run("prefixed groups", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "9999")
		t.Setenv("STORAGE_BACKEND", "memory")
		t.Setenv("S3_HOST", "s3.example.com")
		t.Setenv("S3_USE_SSL", "true")
		t.Setenv("HTTP_WRITE_TIMEOUT", "2m")

		config, err := ParseProperties()
		require.NoError(t, err)

		assert.Equal(t, "9999", config.Server.Port)
		assert.Equal(t, BackendMemory, config.Storage.Backend)
		assert.Equal(t, "s3.example.com", config.S3.Host)
		assert.True(t, config.S3.UseSSL)
		assert.Equal(t, 2*time.Minute, config.Server.WriteTimeout)
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "ftp")

		_, err := ParseProperties()
		assert.ErrorContains(t, err, "unknown storage backend")
	})

	t.Run("zero purge workers", func(t *testing.T) {
		t.Setenv("STORAGE_PURGE_WORKERS", "0")

		_, err := ParseProperties()
		assert.Error(t, err)
	})
}

func TestCredentialsFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides keys", func(t *testing.T) {
		path := filepath.Join(dir, "key.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"accessKey":"AK","secretKey":"SK"}`), 0o600))
		t.Setenv("S3_ACCESS_KEY", "env-key")
		t.Setenv("S3_CREDENTIALS_FILE", path)

		config, err := ParseProperties()
		require.NoError(t, err)
		assert.Equal(t, "AK", config.S3.AccessKey)
		assert.Equal(t, "SK", config.S3.SecretKey)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("S3_CREDENTIALS_FILE", filepath.Join(dir, "absent.json"))

		_, err := ParseProperties()
		assert.ErrorContains(t, err, "read credentials file")
	})

	t.Run("incomplete file", func(t *testing.T) {
		path := filepath.Join(dir, "partial.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"accessKey":"AK"}`), 0o600))
		t.Setenv("S3_CREDENTIALS_FILE", path)

		_, err := ParseProperties()
		assert.Error(t, err)
	})
}
