package authn

import (
	"context"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// OIDCProvider is the concrete identity provider, configured once at
// startup from the authority's discovery document.
type OIDCProvider struct {
	oauth         oauth2.Config
	endSessionURL string
	httpClient    *http.Client
	log           zerolog.Logger
}

var _ IdentityProvider = (*OIDCProvider)(nil)

// ProviderOption configures an OIDCProvider.
type ProviderOption func(*OIDCProvider)

// WithProviderHTTPClient sets the HTTP client used for silent
// re-authentication.
func WithProviderHTTPClient(hc *http.Client) ProviderOption {
	return func(p *OIDCProvider) {
		p.httpClient = hc
	}
}

// WithProviderLogger sets the provider logger.
func WithProviderLogger(log zerolog.Logger) ProviderOption {
	return func(p *OIDCProvider) {
		p.log = log
	}
}

// NewOIDCProvider resolves the authority's endpoints via OIDC discovery.
func NewOIDCProvider(ctx context.Context, authority, clientID, redirectURL string, options ...ProviderOption) (*OIDCProvider, error) {
	discovered, err := oidc.NewProvider(ctx, authority)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOIDCProvider] discovery")
	}

	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := discovered.Claims(&extra); err != nil {
		return nil, errors.Wrap(err, "[NewOIDCProvider] discovery claims")
	}
	if extra.EndSessionEndpoint == "" {
		return nil, errors.New("[NewOIDCProvider] authority does not advertise an end_session_endpoint")
	}

	provider := &OIDCProvider{
		oauth: oauth2.Config{
			ClientID:    clientID,
			Endpoint:    discovered.Endpoint(),
			RedirectURL: redirectURL,
			Scopes:      []string{oidc.ScopeOpenID},
		},
		endSessionURL: extra.EndSessionEndpoint,
		log:           zerolog.Nop(),
	}
	// Silent re-authentication reads the redirect Location itself.
	provider.httpClient = &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	for _, opt := range options {
		opt(provider)
	}
	return provider, nil
}

// AuthorizeURL builds the implicit-flow redirect for the given policy.
// The id token comes back on the redirect fragment.
func (p *OIDCProvider) AuthorizeURL(policy string, params AuthorizeParams) string {
	return p.authorizeURL(policy, params, false)
}

func (p *OIDCProvider) authorizeURL(policy string, params AuthorizeParams, silent bool) string {
	query := url.Values{}
	query.Set("client_id", p.oauth.ClientID)
	query.Set("redirect_uri", p.oauth.RedirectURL)
	query.Set("response_type", "id_token")
	query.Set("response_mode", "fragment")
	query.Set("scope", oidc.ScopeOpenID)
	query.Set("p", policy)
	query.Set("state", uuid.NewString())
	query.Set("nonce", uuid.NewString())
	if silent {
		query.Set("prompt", "none")
	}
	if params.CancelURL != "" {
		query.Set("cancel_url", params.CancelURL)
	}
	if params.Locale != "" {
		query.Set("ui_locales", params.Locale)
	}
	if params.EmailHint != "" {
		query.Set("login_hint", params.EmailHint)
	}
	if params.CountryScopeID != "" {
		query.Set("csid", params.CountryScopeID)
	}
	if params.NextURL != "" {
		query.Set("target_url", params.NextURL)
	}
	return p.oauth.Endpoint.AuthURL + "?" + query.Encode()
}

// LogoutURL builds the end-session redirect.
func (p *OIDCProvider) LogoutURL(postLogoutURI string) string {
	query := url.Values{}
	if postLogoutURI != "" {
		query.Set("post_logout_redirect_uri", postLogoutURI)
	}
	if len(query) == 0 {
		return p.endSessionURL
	}
	return p.endSessionURL + "?" + query.Encode()
}

// SilentAuthenticate requests the authorize endpoint with prompt=none and
// extracts the fresh id token from the redirect fragment. An
// interaction-required answer means the provider wants the user back.
func (p *OIDCProvider) SilentAuthenticate(ctx context.Context, policy string) (string, error) {
	authorizeURL := p.authorizeURL(policy, AuthorizeParams{}, true)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "[OIDCProvider.SilentAuthenticate] build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "[OIDCProvider.SilentAuthenticate] authorize request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return "", errors.Errorf("[OIDCProvider.SilentAuthenticate] unexpected status %d", resp.StatusCode)
	}

	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		return "", errors.Wrap(err, "[OIDCProvider.SilentAuthenticate] parse redirect")
	}
	fragment, err := url.ParseQuery(location.Fragment)
	if err != nil {
		return "", errors.Wrap(err, "[OIDCProvider.SilentAuthenticate] parse fragment")
	}

	if errCode := fragment.Get("error"); errCode != "" {
		return "", errors.Errorf("[OIDCProvider.SilentAuthenticate] provider error %q", errCode)
	}
	idToken := fragment.Get("id_token")
	if idToken == "" {
		return "", errors.New("[OIDCProvider.SilentAuthenticate] no id token in redirect")
	}

	p.log.Debug().Msg("silent re-authentication succeeded")
	return idToken, nil
}
