// Package authn implements the polymorphic authentication service: one
// Service contract over the legacy session-ticket backend and the
// federated redirect backend, selected once at startup by tenant
// configuration.
package authn

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pensionhub/go-portal-auth/session"
)

// Service is the uniform contract consumed by the rest of the portal.
// Operations unsupported by a backend fail with ErrNotSupported.
type Service interface {
	// Login authenticates the user. The legacy backend exchanges
	// credentials directly; the federated backend issues a browser
	// redirect and never returns a token here.
	Login(ctx context.Context, opts LoginOptions) error
	// LoginFromSSO exchanges an externally issued session ticket.
	LoginFromSSO(ctx context.Context, tokenID string) error
	// Register starts the federated sign-up journey.
	Register(ctx context.Context, opts RegisterOptions) error
	// SwitchUser exchanges a reference number for a fresh token pair
	// without re-entering credentials.
	SwitchUser(ctx context.Context, params SwitchUserParams) error
	// Logout invalidates the session server side where possible. Cleanup
	// always runs; endpoint failures are logged, never returned.
	Logout(ctx context.Context, opts LogoutOptions) error
	// SoftLogout clears only session storage, leaving server-side tokens
	// alive. Used for account-switch flows.
	SoftLogout(ctx context.Context, opts SoftLogoutOptions) error
	// IsAuthenticated derives the authenticated state from stored tokens
	// and backend-specific conditions.
	IsAuthenticated() bool
	// EnsureRealm forces a logout when the stored realm does not match
	// the tenant realm. Sessions are realm-scoped.
	EnsureRealm(ctx context.Context) error
}

// LoginOptions carries per-login parameters. UserName and Password are
// required by the legacy backend; NextURL and EmailHint feed the
// federated redirect.
type LoginOptions struct {
	UserName  string
	Password  string
	NextURL   string
	EmailHint string
}

// RegisterOptions carries the federated sign-up parameters.
type RegisterOptions struct {
	EmailHint string
	NextURL   string
}

// SwitchUserParams selects the linked account to switch to.
type SwitchUserParams struct {
	ReferenceNumber string
	BusinessGroup   string
}

// LogoutOptions overrides the configured post-logout destination.
type LogoutOptions struct {
	PostLogoutURI string
}

// SoftLogoutOptions suppresses chat-history clearing when set.
type SoftLogoutOptions struct {
	KeepChatHistory bool
}

// Navigate routes the browser to a destination. Injected so services stay
// independent of the rendering layer.
type Navigate func(url string)

// ensureRealm is the shared realm-safety check. The store is cleared by
// the logout, so a mismatch triggers at most one logout even across
// repeated authenticated renders.
func ensureRealm(ctx context.Context, store session.Repo, tenantRealm string, logout func(context.Context) error, log zerolog.Logger) error {
	stored := store.Realm()
	if stored == "" || stored == tenantRealm {
		return nil
	}
	log.Warn().Str("stored", stored).Str("tenant", tenantRealm).Msg("realm mismatch, forcing logout")
	if err := logout(ctx); err != nil {
		log.Error().Err(err).Msg("realm mismatch logout failed")
	}
	return ErrRealmMismatch
}
