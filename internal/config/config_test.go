package config

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inEmptyDir runs the test from a directory without config.json or .env
func inEmptyDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	inEmptyDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, []string{"Working", "Qualified", "Converted"}, cfg.Workflow.DefaultCustomerStages)
	assert.Equal(t, []string{"Planning", "In Progress", "Review", "Completed"}, cfg.Workflow.DefaultProjectStages)
	assert.Equal(t, 8, cfg.Workflow.RetryMaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Workflow.RetryTimeoutDuration())
	assert.Equal(t, "local", cfg.Storage.Mode)
	assert.False(t, cfg.Email.Enabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	inEmptyDir(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("JWT_SIGNING_SECRET", "s3cret")
	t.Setenv("SENDGRID_API_KEY", "SG.key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "s3cret", cfg.Auth.SigningSecret)
	assert.Equal(t, "SG.key", cfg.Email.SendGridKey)
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecretOrEnv(_ context.Context, name, _ string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func TestApplySecrets(t *testing.T) {
	t.Run("resolves database, auth and email secrets", func(t *testing.T) {
		cfg := &Config{Email: EmailConfig{Enabled: true}}
		err := applySecrets(context.Background(), cfg, fakeSecrets{
			"POSTGRES-MAIN-HOST":     "db.internal",
			"POSTGRES-MAIN-PASSWORD": "pw",
			"jwt-signing-secret":     "jwt",
			"sendgrid-api-key":       "SG.vault",
		})
		require.NoError(t, err)

		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, "pw", cfg.Database.Password)
		assert.Equal(t, "jwt", cfg.Auth.SigningSecret)
		assert.Equal(t, "SG.vault", cfg.Email.SendGridKey)
	})

	t.Run("signing secret is required", func(t *testing.T) {
		err := applySecrets(context.Background(), &Config{}, fakeSecrets{})
		assert.Error(t, err)
	})

	t.Run("sendgrid key is skipped when email is off", func(t *testing.T) {
		cfg := &Config{}
		require.NoError(t, applySecrets(context.Background(), cfg, fakeSecrets{
			"jwt-signing-secret": "jwt",
			"sendgrid-api-key":   "SG.vault",
		}))
		assert.Empty(t, cfg.Email.SendGridKey)
	})
}
