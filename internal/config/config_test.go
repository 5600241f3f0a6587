package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `{
	"database": {"host": "localhost", "user": "trueport", "dbname": "trueport"},
	"jwt_secret": "file-secret",
	"port": 8080,
	"file_store": {"type": "local", "data": {"dir": "/tmp/trueport"}}
}`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, 168, cfg.JWTTTLHours)
	require.Equal(t, 72, cfg.Verification.InviteTTLHours)
	require.Equal(t, 30, cfg.Verification.ActionTTLMinutes)
	require.Equal(t, 168, cfg.MagicLink.TTLHours)
	require.Equal(t, 30, cfg.BackgroundCheck.TTLDays)
	require.Equal(t, 3, cfg.BackgroundCheck.DefaultReferees)
	require.Equal(t, 6, cfg.Outbox.MaxAttempts)
	require.Equal(t, "* * * * *", cfg.Outbox.DispatchSpec)
	require.Equal(t, "*/15 * * * *", cfg.SweepSpec)
	require.Equal(t, "trueport", cfg.NATS.SubjectPrefix)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRUEPORT_JWT_SECRET", "env-secret")
	t.Setenv("TRUEPORT_NATS_URL", "nats://127.0.0.1:4222")
	t.Setenv("TRUEPORT_CORS_ALLOWLIST", "https://a.example,https://b.example")
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.Equal(t, "env-secret", cfg.JWTSecret)
	require.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowlist)
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no database", body: `{"jwt_secret":"s","port":1,"file_store":{"data":{}}}`},
		{name: "no secret", body: `{"database":{"host":"h"},"port":1,"file_store":{"data":{}}}`},
		{name: "no port", body: `{"database":{"host":"h"},"jwt_secret":"s","file_store":{"data":{}}}`},
		{name: "too many referees", body: `{"database":{"host":"h"},"jwt_secret":"s","port":1,"background_check":{"default_referees":4},"file_store":{"data":{}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}
