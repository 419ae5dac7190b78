package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.70, cfg.Policy.AutoApproveMin)
	assert.Equal(t, 0.50, cfg.Policy.FlagBelow)
	assert.Equal(t, "medium", cfg.Policy.MinTrustLevel)
	assert.Equal(t, 50, cfg.Policy.MinContentLength)
	assert.Equal(t, 80, cfg.Trust.HighMin)
	assert.Equal(t, 50, cfg.Trust.MediumMin)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trustink.yaml")
	body := `
server:
  addr: ":9000"
  readTimeout: 5s
database:
  driver: mysql
  dsn: "user:pass@tcp(localhost:3306)/trustink"
policy:
  autoApproveMin: 0.8
  flagBelow: 0.3
oracle:
  provider: http
  timeout: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("TRUSTINK_POLICY_FLAG_BELOW", "0.4")
	t.Setenv("TRUSTINK_AUTH_JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, 0.8, cfg.Policy.AutoApproveMin)
	assert.Equal(t, 0.4, cfg.Policy.FlagBelow)
	assert.Equal(t, OracleHTTP, cfg.Oracle.Provider)
	assert.Equal(t, 3*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	// untouched sections keep their defaults
	assert.Equal(t, 10, cfg.Trust.ApprovedDelta)
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := Defaults()
	cfg.Policy.FlagBelow = 0.9
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Policy.MinTrustLevel = "extreme"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Trust.MediumMin = 90
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Server.SSLCert = "cert.pem"
	assert.Error(t, cfg.Validate())
}

func TestProductionRejectsDevSecrets(t *testing.T) {
	t.Setenv("TRUSTINK_LOG_ENV", "production")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth jwt secret")
	assert.Contains(t, err.Error(), "signing hmac secret")

	t.Setenv("TRUSTINK_AUTH_JWT_SECRET", "short")
	t.Setenv("TRUSTINK_SIGNING_HMAC_SECRET", "short")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")

	t.Setenv("TRUSTINK_AUTH_JWT_SECRET", "prod-jwt-0123456789abcdef0123456789abcdef")
	t.Setenv("TRUSTINK_SIGNING_HMAC_SECRET", "prod-hmac-0123456789abcdef0123456789abcdef")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Log.Env)

	cfg = Defaults()
	cfg.Log.Env = "development"
	assert.NoError(t, cfg.Validate())
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := Defaults()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
