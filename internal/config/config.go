// Package config loads portal authentication configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// AuthMethod selects which identity backend a tenant runs. Exactly one
// backend is active for the lifetime of a session.
type AuthMethod string

const (
	AuthMethodLegacy    AuthMethod = "legacy"
	AuthMethodFederated AuthMethod = "federated"
)

// Config holds all environment-configured values for the auth subsystem.
type Config struct {
	// AppName is displayed on startup.
	AppName string `mapstructure:"APP_NAME"`
	// Env is the application environment ("production" or "development").
	Env string `mapstructure:"APP_ENV"`
	// Realm is the tenant-scoped identity namespace. Tokens and session
	// data are realm-scoped; cross-realm reuse is never allowed.
	Realm string `mapstructure:"REALM"`
	// AuthMethod is "legacy" or "federated".
	AuthMethod AuthMethod `mapstructure:"AUTH_METHOD"`
	// APIBaseURL is the base URL of the member API.
	APIBaseURL string `mapstructure:"API_BASE_URL"`
	// BusinessGroups is the tenant's configured business-group set,
	// comma separated.
	BusinessGroups string `mapstructure:"BUSINESS_GROUPS"`

	// LegacyIdleMinutes overrides the legacy idle timeout. Zero means
	// the environment default (1 minute in production, 10 otherwise).
	LegacyIdleMinutes int `mapstructure:"LEGACY_IDLE_MINUTES"`
	// FederatedIdleMinutes is the federated idle timeout (default 10).
	FederatedIdleMinutes int `mapstructure:"FEDERATED_IDLE_MINUTES"`
	// SSOCookieName names the cookie carrying an externally issued
	// session ticket.
	SSOCookieName string `mapstructure:"SSO_COOKIE_NAME"`
	// BaseSSOURL is the cross-domain SSO handoff endpoint of the legacy
	// portal. Empty disables outbound SSO resolution.
	BaseSSOURL string `mapstructure:"BASE_SSO_URL"`

	// IdPAuthority is the federated identity provider's issuer URL.
	IdPAuthority string `mapstructure:"IDP_AUTHORITY"`
	// IdPClientID is the client id registered with the identity provider.
	IdPClientID string `mapstructure:"IDP_CLIENT_ID"`
	// IdPRedirectURL receives the identity provider's redirect return.
	IdPRedirectURL string `mapstructure:"IDP_REDIRECT_URL"`
	// SignInPolicy and SignUpPolicy name the authentication journeys.
	SignInPolicy string `mapstructure:"IDP_SIGN_IN_POLICY"`
	SignUpPolicy string `mapstructure:"IDP_SIGN_UP_POLICY"`
	// CountryScopeID scopes the identity provider journey to a country.
	CountryScopeID string `mapstructure:"IDP_COUNTRY_SCOPE_ID"`
	// Locale is forwarded to the identity provider's UI.
	Locale string `mapstructure:"IDP_LOCALE"`

	// Routes. ExpiredSessionRoute may be empty, in which case expiry
	// falls back to LogoutRoute with a logged warning.
	PostLogoutRoute          string `mapstructure:"ROUTE_POST_LOGOUT"`
	CancelRoute              string `mapstructure:"ROUTE_CANCEL"`
	ErrorRoute               string `mapstructure:"ROUTE_ERROR"`
	SignInHoldingRoute       string `mapstructure:"ROUTE_SIGN_IN_HOLDING"`
	RegistrationHoldingRoute string `mapstructure:"ROUTE_REGISTRATION_HOLDING"`
	ExpiredSessionRoute      string `mapstructure:"ROUTE_EXPIRED_SESSION"`
	LogoutRoute              string `mapstructure:"ROUTE_LOGOUT"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine (e.g. in CI)

	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "Portal Auth")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("AUTH_METHOD", string(AuthMethodLegacy))
	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("LEGACY_IDLE_MINUTES", 0)
	v.SetDefault("FEDERATED_IDLE_MINUTES", 10)
	v.SetDefault("SSO_COOKIE_NAME", "sso_ticket")
	v.SetDefault("IDP_SIGN_IN_POLICY", "b2c_1a_signin")
	v.SetDefault("IDP_SIGN_UP_POLICY", "b2c_1a_signup")
	v.SetDefault("IDP_LOCALE", "en-GB")
	v.SetDefault("ROUTE_POST_LOGOUT", "/")
	v.SetDefault("ROUTE_CANCEL", "/login")
	v.SetDefault("ROUTE_ERROR", "/login-error")
	v.SetDefault("ROUTE_SIGN_IN_HOLDING", "/sign-in-holding")
	v.SetDefault("ROUTE_REGISTRATION_HOLDING", "/registration-holding")
	v.SetDefault("ROUTE_LOGOUT", "/logout")

	// Keys without meaningful defaults still need registering so
	// AutomaticEnv picks them up during Unmarshal.
	for _, key := range []string{
		"REALM", "BUSINESS_GROUPS", "BASE_SSO_URL",
		"IDP_AUTHORITY", "IDP_CLIENT_ID", "IDP_REDIRECT_URL", "IDP_COUNTRY_SCOPE_ID",
		"ROUTE_EXPIRED_SESSION",
	} {
		v.SetDefault(key, "")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] unmarshal")
	}

	if cfg.Realm == "" {
		return nil, errors.New("[config.Load] REALM must be set")
	}
	switch cfg.AuthMethod {
	case AuthMethodLegacy, AuthMethodFederated:
	default:
		return nil, errors.Errorf("[config.Load] unknown AUTH_METHOD %q", cfg.AuthMethod)
	}
	if cfg.AuthMethod == AuthMethodFederated && cfg.IdPAuthority == "" {
		return nil, errors.New("[config.Load] IDP_AUTHORITY must be set for the federated backend")
	}

	return &cfg, nil
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LegacyIdleTimeout returns the legacy idle timeout: the configured
// override when set, else 1 minute in production and 10 in development.
func (c *Config) LegacyIdleTimeout() time.Duration {
	if c.LegacyIdleMinutes > 0 {
		return time.Duration(c.LegacyIdleMinutes) * time.Minute
	}
	if c.IsProduction() {
		return time.Minute
	}
	return 10 * time.Minute
}

// FederatedIdleTimeout returns the federated idle timeout (default 10m).
func (c *Config) FederatedIdleTimeout() time.Duration {
	if c.FederatedIdleMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.FederatedIdleMinutes) * time.Minute
}

// BusinessGroupList returns the tenant's business groups from the
// comma-separated config value.
func (c *Config) BusinessGroupList() []string {
	if c.BusinessGroups == "" {
		return nil
	}
	parts := strings.Split(c.BusinessGroups, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
