package authn

import (
	"context"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pensionhub/go-portal-auth/session"
	"github.com/pensionhub/go-portal-auth/token"
)

// AuthState is the federated backend's lifecycle. A redirect return moves
// the state from authenticating to authenticated once post-auth
// processing completes, or to error.
type AuthState int32

const (
	StateIdle AuthState = iota
	StateAuthenticating
	StateAuthenticated
	StateError
)

// AuthorizeParams are the deep-link parameters forwarded to the identity
// provider on a redirect login or registration.
type AuthorizeParams struct {
	CancelURL      string
	Locale         string
	EmailHint      string
	CountryScopeID string
	NextURL        string
}

// IdentityProvider abstracts the federated identity provider. Implemented
// by OIDCProvider; faked in tests.
type IdentityProvider interface {
	// AuthorizeURL builds the browser redirect for the given policy.
	AuthorizeURL(policy string, params AuthorizeParams) string
	// LogoutURL builds the end-session redirect.
	LogoutURL(postLogoutURI string) string
	// SilentAuthenticate re-authenticates without user interaction and
	// returns a fresh id token.
	SilentAuthenticate(ctx context.Context, policy string) (string, error)
}

// FederatedConfig holds the tenant values the federated backend needs.
type FederatedConfig struct {
	Realm                    string
	SignInPolicy             string
	SignUpPolicy             string
	CancelRoute              string
	Locale                   string
	CountryScopeID           string
	SignInHoldingRoute       string
	RegistrationHoldingRoute string
	PostLogoutRoute          string
}

// FederatedService is the redirect backend: login and registration send
// the browser to the identity provider; the id token comes back on the
// redirect-return fragment and post-auth processing resolves the account.
type FederatedService struct {
	idp             IdentityProvider
	store           session.Repo
	chat            ChatStore
	cookies         CookieJar
	idle            IdleStopper
	navigate        Navigate
	postAuthRunning func() bool
	cfg             FederatedConfig
	log             zerolog.Logger

	state           atomic.Int32
	redirectHandled atomic.Bool
}

var _ Service = (*FederatedService)(nil)

// FederatedOption configures a FederatedService.
type FederatedOption func(*FederatedService)

// WithFederatedIdleStopper wires the idle monitor into logout cleanup.
func WithFederatedIdleStopper(idle IdleStopper) FederatedOption {
	return func(s *FederatedService) {
		s.idle = idle
	}
}

// WithFederatedLogger sets the service logger.
func WithFederatedLogger(log zerolog.Logger) FederatedOption {
	return func(s *FederatedService) {
		s.log = log
	}
}

// WithPostAuthRunning reports whether the post-authentication task runner
// is mid flight; the session is not authenticated until it finishes.
func WithPostAuthRunning(running func() bool) FederatedOption {
	return func(s *FederatedService) {
		s.postAuthRunning = running
	}
}

// NewFederatedService builds the federated backend.
func NewFederatedService(idp IdentityProvider, store session.Repo, chat ChatStore, cookies CookieJar, navigate Navigate, cfg FederatedConfig, options ...FederatedOption) (*FederatedService, error) {
	if idp == nil {
		return nil, errors.New("[NewFederatedService] identity provider is required")
	}
	if store == nil {
		return nil, errors.New("[NewFederatedService] session store is required")
	}
	if navigate == nil {
		return nil, errors.New("[NewFederatedService] navigate is required")
	}
	if cfg.Realm == "" {
		return nil, errors.New("[NewFederatedService] realm is required")
	}

	service := &FederatedService{
		idp:             idp,
		store:           store,
		chat:            chat,
		cookies:         cookies,
		navigate:        navigate,
		postAuthRunning: func() bool { return false },
		cfg:             cfg,
		log:             zerolog.Nop(),
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// Login redirects the browser to the identity provider's sign-in journey.
// No token is returned here; it arrives on the redirect return.
func (s *FederatedService) Login(ctx context.Context, opts LoginOptions) error {
	s.redirect(s.cfg.SignInPolicy, opts.EmailHint, opts.NextURL)
	return nil
}

// Register redirects the browser to the sign-up journey.
func (s *FederatedService) Register(ctx context.Context, opts RegisterOptions) error {
	s.redirect(s.cfg.SignUpPolicy, opts.EmailHint, opts.NextURL)
	return nil
}

func (s *FederatedService) redirect(policy, emailHint, nextURL string) {
	s.state.Store(int32(StateAuthenticating))
	s.navigate(s.idp.AuthorizeURL(policy, AuthorizeParams{
		CancelURL:      s.cfg.CancelRoute,
		Locale:         s.cfg.Locale,
		EmailHint:      emailHint,
		CountryScopeID: s.cfg.CountryScopeID,
		NextURL:        nextURL,
	}))
}

// LoginFromSSO is a legacy-only operation.
func (s *FederatedService) LoginFromSSO(ctx context.Context, tokenID string) error {
	return ErrNotSupported
}

// SwitchUser is a legacy-only operation.
func (s *FederatedService) SwitchUser(ctx context.Context, params SwitchUserParams) error {
	return ErrNotSupported
}

// HandleRedirectReturn consumes the identity provider's redirect-return
// fragment. Guarded so the fragment is processed at most once per page
// load regardless of how often the surrounding component re-executes. An
// error code forces an immediate logout; otherwise the id token is
// decoded and the browser routed to the appropriate holding page.
func (s *FederatedService) HandleRedirectReturn(ctx context.Context, fragment string) error {
	if !s.redirectHandled.CompareAndSwap(false, true) {
		return nil
	}

	values, err := url.ParseQuery(strings.TrimPrefix(fragment, "#"))
	if err != nil {
		return errors.Wrap(err, "[FederatedService.HandleRedirectReturn] parse fragment")
	}

	if errCode := values.Get("error"); errCode != "" {
		s.state.Store(int32(StateError))
		s.log.Warn().Str("code", errCode).Str("description", values.Get("error_description")).Msg("identity provider returned an error")
		if err := s.Logout(ctx, LogoutOptions{}); err != nil {
			s.log.Error().Err(err).Msg("logout after redirect error failed")
		}
		return errors.Errorf("[FederatedService.HandleRedirectReturn] identity provider error %q", errCode)
	}

	idToken := values.Get("id_token")
	if idToken == "" {
		// Not a redirect return after all; release the guard.
		s.redirectHandled.Store(false)
		return nil
	}

	claims, err := token.Decode(idToken)
	if err != nil {
		return errors.Wrap(err, "[FederatedService.HandleRedirectReturn] decode id token")
	}

	s.state.Store(int32(StateAuthenticating))
	s.store.SetTokens(&session.TokenPair{AccessToken: idToken})
	s.store.SetRealm(s.cfg.Realm)

	existing := s.store.Data()
	// An externalId with no stored primary identity means the account
	// has not been created on our side yet.
	newAccount := claims.ExternalID != "" && (existing == nil || existing.PrimaryBgroup == "")

	data := session.Data{
		NextURL:          claims.TargetURL,
		PolicyID:         claims.Policy,
		AuthGUID:         claims.Subject,
		RegistrationCode: claims.RegistrationCode,
		IsAdmin:          claims.IsAdmin(),
		IsNewAccount:     newAccount,
	}
	if existing != nil {
		data.PrimaryBgroup = existing.PrimaryBgroup
		data.PrimaryRefno = existing.PrimaryRefno
		data.LinkedBgroup = existing.LinkedBgroup
		data.LinkedRefno = existing.LinkedRefno
	}
	s.store.SetData(&data)

	if newAccount {
		s.navigate(s.cfg.RegistrationHoldingRoute)
	} else {
		s.navigate(s.cfg.SignInHoldingRoute)
	}
	return nil
}

// MarkAuthenticated is called once post-auth processing succeeds.
func (s *FederatedService) MarkAuthenticated() {
	s.state.Store(int32(StateAuthenticated))
}

// State returns the redirect lifecycle state.
func (s *FederatedService) State() AuthState {
	return AuthState(s.state.Load())
}

// InteractionInProgress reports whether an interactive redirect is in
// flight, in which case silent refresh must fail fast.
func (s *FederatedService) InteractionInProgress() bool {
	return s.State() == StateAuthenticating
}

// Logout runs cleanup, then redirects to the identity provider's
// end-session endpoint.
func (s *FederatedService) Logout(ctx context.Context, opts LogoutOptions) error {
	if s.chat != nil {
		s.chat.Hide()
		if err := s.chat.ClearHistory(ctx); err != nil {
			s.log.Warn().Err(err).Msg("clearing chat history failed")
		}
	}
	if s.cookies != nil {
		s.cookies.ClearSession()
	}
	s.store.Clear()
	if s.idle != nil {
		s.idle.Stop()
	}
	s.state.Store(int32(StateIdle))

	postLogout := opts.PostLogoutURI
	if postLogout == "" {
		postLogout = s.cfg.PostLogoutRoute
	}
	s.navigate(s.idp.LogoutURL(postLogout))
	return nil
}

// SoftLogout clears session storage without touching the identity
// provider session.
func (s *FederatedService) SoftLogout(ctx context.Context, opts SoftLogoutOptions) error {
	s.store.Clear()
	if !opts.KeepChatHistory && s.chat != nil {
		if err := s.chat.ClearHistory(ctx); err != nil {
			s.log.Warn().Err(err).Msg("clearing chat history failed")
		}
	}
	s.state.Store(int32(StateIdle))
	return nil
}

// IsAuthenticated holds iff a token and a resolved primary identity both
// exist and no post-auth task is running.
func (s *FederatedService) IsAuthenticated() bool {
	if s.postAuthRunning() {
		return false
	}
	if s.store.Tokens() == nil {
		return false
	}
	data := s.store.Data()
	return data != nil && data.PrimaryBgroup != "" && data.PrimaryRefno != ""
}

// EnsureRealm forces a logout when the stored realm belongs to another
// tenant.
func (s *FederatedService) EnsureRealm(ctx context.Context) error {
	return ensureRealm(ctx, s.store, s.cfg.Realm, func(ctx context.Context) error {
		return s.Logout(ctx, LogoutOptions{})
	}, s.log)
}
