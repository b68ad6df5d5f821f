package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pensionhub/go-portal-auth/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REALM", "pension-uk")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "pension-uk", cfg.Realm)
	require.Equal(t, config.AuthMethodLegacy, cfg.AuthMethod)
	require.Equal(t, "development", cfg.Env)
	require.False(t, cfg.IsProduction())
	require.Equal(t, "sso_ticket", cfg.SSOCookieName)
	require.Equal(t, "b2c_1a_signin", cfg.SignInPolicy)
}

func TestLoadRequiresRealm(t *testing.T) {
	t.Setenv("REALM", "")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadRejectsUnknownAuthMethod(t *testing.T) {
	t.Setenv("REALM", "pension-uk")
	t.Setenv("AUTH_METHOD", "saml")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoadFederatedRequiresAuthority(t *testing.T) {
	t.Setenv("REALM", "pension-uk")
	t.Setenv("AUTH_METHOD", "federated")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("IDP_AUTHORITY", "https://idp.example.com/tenant")
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.AuthMethodFederated, cfg.AuthMethod)
}

func TestLegacyIdleTimeout(t *testing.T) {
	cfg := &config.Config{Env: "production"}
	require.Equal(t, time.Minute, cfg.LegacyIdleTimeout())

	cfg.Env = "development"
	require.Equal(t, 10*time.Minute, cfg.LegacyIdleTimeout())

	cfg.LegacyIdleMinutes = 5
	require.Equal(t, 5*time.Minute, cfg.LegacyIdleTimeout())
}

func TestFederatedIdleTimeout(t *testing.T) {
	cfg := &config.Config{}
	require.Equal(t, 10*time.Minute, cfg.FederatedIdleTimeout())

	cfg.FederatedIdleMinutes = 30
	require.Equal(t, 30*time.Minute, cfg.FederatedIdleTimeout())
}

func TestBusinessGroupList(t *testing.T) {
	cfg := &config.Config{BusinessGroups: "WIF, ABC ,,XYZ"}
	require.Equal(t, []string{"WIF", "ABC", "XYZ"}, cfg.BusinessGroupList())

	require.Nil(t, (&config.Config{}).BusinessGroupList())
}
