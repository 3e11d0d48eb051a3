package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "JWT_SECRET", "S3_BUCKET_NAME", "S3_ENDPOINT",
		"S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_REGION", "DATABASE_URL",
		"AUTH_GRACE_PERIOD", "EVENT_RATE", "EVENT_BURST",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfig_DevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, devDatabaseDSN, cfg.DatabaseDSN)
	assert.Equal(t, 10*time.Second, cfg.AuthGracePeriod)
	assert.Equal(t, 20.0, cfg.EventRate)
	assert.Equal(t, 40, cfg.EventBurst)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, "auto", cfg.S3Region)
}

func TestLoadConfig_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://db/taskflow")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("AUTH_GRACE_PERIOD", "3s")
	t.Setenv("EVENT_RATE", "5")
	t.Setenv("EVENT_BURST", "8")
	t.Setenv("S3_BUCKET_NAME", "attachments")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "postgres://db/taskflow", cfg.DatabaseDSN)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.AuthGracePeriod)
	assert.Equal(t, 5.0, cfg.EventRate)
	assert.Equal(t, 8, cfg.EventBurst)
	assert.Equal(t, "attachments", cfg.S3BucketName)
}

func TestLoadConfig_ProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadConfig_RejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"privileged port":  {"PORT", "80"},
		"negative grace":   {"AUTH_GRACE_PERIOD", "-1s"},
		"negative rate":    {"EVENT_RATE", "-2"},
		"non numeric port": {"PORT", "http"},
		"malformed grace":  {"AUTH_GRACE_PERIOD", "soon"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_FileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "taskflow.yaml")
	content := []byte("port: 7000\njwt_secret: from-file\nallowed_origins:\n  - https://app.example\nevent_rate: 2\nevent_burst: 4\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 2.0, cfg.EventRate)
	assert.Equal(t, 4, cfg.EventBurst)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
