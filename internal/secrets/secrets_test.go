package secrets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveSource(t *testing.T) {
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceAuto, "development"))
	assert.Equal(t, SourceEnvironment, ResolveSource("", ""))
	assert.Equal(t, SourceVault, ResolveSource(SourceAuto, "production"))
	assert.Equal(t, SourceVault, ResolveSource(SourceVault, "development"))
}

func TestProvider_EnvironmentSource(t *testing.T) {
	t.Setenv("PIPELINE_TEST_SECRET", "s3cret")
	p := NewEnvProvider(zap.NewNop())

	v, err := p.GetSecret(context.Background(), "PIPELINE_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	_, err = p.GetSecret(context.Background(), "PIPELINE_TEST_MISSING")
	assert.Error(t, err)
	assert.False(t, p.IsVaultEnabled())
}

type stubVault struct {
	calls  int
	values map[string]string
}

func (s *stubVault) GetSecret(_ context.Context, name string) (string, error) {
	s.calls++
	return s.values[name], nil
}

func TestProvider_GetSecretOrEnvPrefersEnv(t *testing.T) {
	vault := &stubVault{values: map[string]string{"db-password": "from-vault"}}
	p := &Provider{source: SourceVault, vault: vault, logger: zap.NewNop()}

	v, err := p.GetSecretOrEnv(context.Background(), "db-password", "PIPELINE_TEST_DB_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "from-vault", v)

	t.Setenv("PIPELINE_TEST_DB_PASSWORD", "from-env")
	v, err = p.GetSecretOrEnv(context.Background(), "db-password", "PIPELINE_TEST_DB_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
	assert.Equal(t, 1, vault.calls)
}

func TestSecretCache_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newSecretCache(time.Minute, func() time.Time { return now })

	c.put("a", "1")
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	now = now.Add(2 * time.Minute)
	_, ok = c.get("a")
	assert.False(t, ok)

	var nilCache *secretCache
	nilCache.put("a", "1")
	_, ok = nilCache.get("a")
	assert.False(t, ok)
}
