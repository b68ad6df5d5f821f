package authn

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pensionhub/go-portal-auth/api"
	"github.com/pensionhub/go-portal-auth/session"
)

// schemeTypeDC identifies defined-contribution schemes, which have no
// retirement context to initialise.
const schemeTypeDC = "DC"

// LegacyConfig holds the tenant values the legacy backend needs.
type LegacyConfig struct {
	Realm          string
	BusinessGroups []string
	SSOCookieName  string
}

// LegacyService is the session-ticket backend: a direct credential
// exchange against this application's own authentication endpoints,
// followed by a sequential bootstrap of dependent state.
type LegacyService struct {
	api     LegacyAPI
	store   session.Repo
	boot    Bootstrapper
	chat    ChatStore
	cookies CookieJar
	idle    IdleStopper
	cfg     LegacyConfig
	log     zerolog.Logger

	mu            sync.Mutex
	authenticated bool
}

var _ Service = (*LegacyService)(nil)

// LegacyOption configures a LegacyService.
type LegacyOption func(*LegacyService)

// WithLegacyIdleStopper wires the idle monitor into logout cleanup.
func WithLegacyIdleStopper(idle IdleStopper) LegacyOption {
	return func(s *LegacyService) {
		s.idle = idle
	}
}

// WithLegacyLogger sets the service logger.
func WithLegacyLogger(log zerolog.Logger) LegacyOption {
	return func(s *LegacyService) {
		s.log = log
	}
}

// NewLegacyService builds the legacy backend.
func NewLegacyService(apiClient LegacyAPI, store session.Repo, boot Bootstrapper, chat ChatStore, cookies CookieJar, cfg LegacyConfig, options ...LegacyOption) (*LegacyService, error) {
	if apiClient == nil {
		return nil, errors.New("[NewLegacyService] api client is required")
	}
	if store == nil {
		return nil, errors.New("[NewLegacyService] session store is required")
	}
	if boot == nil {
		return nil, errors.New("[NewLegacyService] bootstrapper is required")
	}
	if cfg.Realm == "" {
		return nil, errors.New("[NewLegacyService] realm is required")
	}

	service := &LegacyService{
		api:     apiClient,
		store:   store,
		boot:    boot,
		chat:    chat,
		cookies: cookies,
		cfg:     cfg,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// Login exchanges credentials for a token pair, then establishes the
// session. Missing credentials fail before any network call.
func (s *LegacyService) Login(ctx context.Context, opts LoginOptions) error {
	if opts.UserName == "" {
		return &ValidationError{Field: "userName"}
	}
	if opts.Password == "" {
		return &ValidationError{Field: "password"}
	}

	pair, err := s.api.Login(ctx, api.LoginRequest{
		UserName:       opts.UserName,
		Password:       opts.Password,
		BusinessGroups: s.cfg.BusinessGroups,
		Realm:          s.cfg.Realm,
	})
	if err != nil {
		return errors.Wrap(err, "[LegacyService.Login] credential exchange")
	}
	return s.establishSession(ctx, pair)
}

// LoginFromSSO exchanges an externally issued session ticket for a token
// pair and runs the same bootstrap sequence as Login.
func (s *LegacyService) LoginFromSSO(ctx context.Context, tokenID string) error {
	pair, err := s.api.CreateSSOSession(ctx, api.SSOSessionRequest{
		TokenID:    tokenID,
		Realm:      s.cfg.Realm,
		CookieName: s.cfg.SSOCookieName,
	})
	if err != nil {
		return errors.Wrap(err, "[LegacyService.LoginFromSSO] sso session create")
	}
	return s.establishSession(ctx, pair)
}

// establishSession persists the pair, then bootstraps dependent state in
// order. Token persistence strictly precedes every dependent fetch; later
// steps read what earlier steps resolved. Any bootstrap failure destroys
// the tokens and the session cookie together.
func (s *LegacyService) establishSession(ctx context.Context, pair *session.TokenPair) error {
	s.store.SetTokens(pair)
	s.store.SetRealm(s.cfg.Realm)

	if s.chat != nil {
		if err := s.chat.ClearHistory(ctx); err != nil {
			s.log.Warn().Err(err).Msg("clearing chat history failed")
		}
	}

	if err := s.bootstrap(ctx); err != nil {
		s.store.Clear()
		if s.cookies != nil {
			s.cookies.ClearSession()
		}
		return errors.Wrap(err, "[LegacyService] bootstrap")
	}

	s.setAuthenticated(true)
	return nil
}

func (s *LegacyService) bootstrap(ctx context.Context) error {
	if err := s.boot.InitJourneys(ctx); err != nil {
		return errors.Wrap(err, "init journeys")
	}
	if err := s.boot.FetchAccessKey(ctx, AccessKeyOptions{Mode: AccessKeyModeFull, SkipTokenCheck: true}); err != nil {
		return errors.Wrap(err, "fetch access key")
	}
	if err := s.boot.FetchLinkedMembers(ctx); err != nil {
		return errors.Wrap(err, "fetch linked members")
	}
	if s.boot.SchemeType() != schemeTypeDC {
		if err := s.boot.InitRetirementContext(ctx); err != nil {
			return errors.Wrap(err, "init retirement context")
		}
	}
	return nil
}

// Register is a federated-only operation.
func (s *LegacyService) Register(ctx context.Context, opts RegisterOptions) error {
	return ErrNotSupported
}

// SwitchUser exchanges a linked-member reference number for a fresh pair.
func (s *LegacyService) SwitchUser(ctx context.Context, params SwitchUserParams) error {
	pair, err := s.api.SwitchUser(ctx, api.SwitchUserRequest{
		ReferenceNumber: params.ReferenceNumber,
		BusinessGroup:   params.BusinessGroup,
	})
	if err != nil {
		return errors.Wrap(err, "[LegacyService.SwitchUser]")
	}
	s.store.SetTokens(pair)
	s.store.SetRealm(s.cfg.Realm)
	s.setAuthenticated(true)
	return nil
}

// Logout invalidates the token pair server side when one exists, minting
// one from the SSO cookie first if needed. Endpoint failures are logged,
// never returned; cleanup runs unconditionally.
func (s *LegacyService) Logout(ctx context.Context, opts LogoutOptions) error {
	defer s.cleanup(ctx)

	pair := s.store.Tokens()
	if pair == nil && s.cookies != nil {
		if ticket, ok := s.cookies.SSOTicket(s.cfg.SSOCookieName); ok {
			minted, err := s.api.CreateSSOSession(ctx, api.SSOSessionRequest{
				TokenID:    ticket,
				Realm:      s.cfg.Realm,
				CookieName: s.cfg.SSOCookieName,
			})
			if err != nil {
				s.log.Error().Err(err).Msg("minting logout pair from sso cookie failed")
				return nil
			}
			pair = minted
		}
	}
	if pair != nil {
		if err := s.api.Logout(ctx, *pair); err != nil {
			s.log.Error().Err(err).Msg("logout endpoint failed")
		}
	}
	return nil
}

func (s *LegacyService) cleanup(ctx context.Context) {
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
	s.setAuthenticated(false)
}

// SoftLogout clears session storage without invalidating server-side
// tokens.
func (s *LegacyService) SoftLogout(ctx context.Context, opts SoftLogoutOptions) error {
	s.store.Clear()
	if !opts.KeepChatHistory && s.chat != nil {
		if err := s.chat.ClearHistory(ctx); err != nil {
			s.log.Warn().Err(err).Msg("clearing chat history failed")
		}
	}
	s.setAuthenticated(false)
	return nil
}

// IsAuthenticated holds iff a token pair and a resolved access key both
// exist.
func (s *LegacyService) IsAuthenticated() bool {
	s.mu.Lock()
	authenticated := s.authenticated
	s.mu.Unlock()
	return authenticated && s.store.Tokens() != nil && s.boot.HasAccessKey()
}

// EnsureRealm forces a logout when the stored realm belongs to another
// tenant.
func (s *LegacyService) EnsureRealm(ctx context.Context) error {
	return ensureRealm(ctx, s.store, s.cfg.Realm, func(ctx context.Context) error {
		return s.Logout(ctx, LogoutOptions{})
	}, s.log)
}

func (s *LegacyService) setAuthenticated(v bool) {
	s.mu.Lock()
	s.authenticated = v
	s.mu.Unlock()
}
