package authn

import (
	"context"

	"github.com/pensionhub/go-portal-auth/api"
	"github.com/pensionhub/go-portal-auth/session"
)

// LegacyAPI is the slice of the member API the legacy backend consumes.
// Satisfied by *api.Client.
type LegacyAPI interface {
	Login(ctx context.Context, req api.LoginRequest) (*session.TokenPair, error)
	Refresh(ctx context.Context, pair session.TokenPair) (*session.TokenPair, error)
	Logout(ctx context.Context, pair session.TokenPair) error
	SwitchUser(ctx context.Context, req api.SwitchUserRequest) (*session.TokenPair, error)
	CreateSSOSession(ctx context.Context, req api.SSOSessionRequest) (*session.TokenPair, error)
}

// AccessKeyMode selects how much of the access key is resolved.
type AccessKeyMode string

const (
	AccessKeyModeBasic AccessKeyMode = "basic"
	AccessKeyModeFull  AccessKeyMode = "full"
)

// AccessKeyOptions tune the access key fetch. SkipTokenCheck bypasses the
// "has token" precheck during login bootstrap, where the token was
// persisted a moment earlier.
type AccessKeyOptions struct {
	Mode           AccessKeyMode
	SkipTokenCheck bool
}

// Bootstrapper primes the dependent application state after a session is
// established. Journeys, access key, linked members and the retirement
// context are owned by other parts of the portal; this subsystem only
// drives their initialisation order.
type Bootstrapper interface {
	InitJourneys(ctx context.Context) error
	FetchAccessKey(ctx context.Context, opts AccessKeyOptions) error
	HasAccessKey() bool
	FetchLinkedMembers(ctx context.Context) error
	// SchemeType is resolved by the access key fetch ("DC" skips the
	// retirement context).
	SchemeType() string
	InitRetirementContext(ctx context.Context) error
}

// ChatStore controls the live chat widget owned by the portal shell.
type ChatStore interface {
	ClearHistory(ctx context.Context) error
	Hide()
}

// CookieJar abstracts the browser cookies this subsystem touches.
type CookieJar interface {
	ClearSession()
	// SSOTicket returns the externally issued session ticket cookie.
	SSOTicket(name string) (string, bool)
}

// Analytics receives the identity-bootstrap event after post-auth
// processing. Emission itself is out of scope.
type Analytics interface {
	IdentityBootstrapped(trigger string)
}

// IdleStopper stops the idle monitor during logout cleanup.
type IdleStopper interface {
	Stop()
}
