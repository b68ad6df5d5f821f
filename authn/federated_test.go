package authn_test

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pensionhub/go-portal-auth/authn"
	"github.com/pensionhub/go-portal-auth/session"
	"github.com/pensionhub/go-portal-auth/session/repomem"
)

type fakeIdentityProvider struct {
	authorizeCalls []string
	logoutCalls    []string
	silentCalls    []string
	silentToken    string
	silentErr      error
}

func (f *fakeIdentityProvider) AuthorizeURL(policy string, params authn.AuthorizeParams) string {
	f.authorizeCalls = append(f.authorizeCalls, policy)
	return fmt.Sprintf("https://idp.example.com/authorize?p=%s&login_hint=%s", policy, url.QueryEscape(params.EmailHint))
}

func (f *fakeIdentityProvider) LogoutURL(postLogoutURI string) string {
	f.logoutCalls = append(f.logoutCalls, postLogoutURI)
	return "https://idp.example.com/logout?post_logout_redirect_uri=" + url.QueryEscape(postLogoutURI)
}

func (f *fakeIdentityProvider) SilentAuthenticate(ctx context.Context, policy string) (string, error) {
	f.silentCalls = append(f.silentCalls, policy)
	return f.silentToken, f.silentErr
}

type navRecorder struct {
	urls []string
}

func (n *navRecorder) navigate(url string) {
	n.urls = append(n.urls, url)
}

func federatedConfig() authn.FederatedConfig {
	return authn.FederatedConfig{
		Realm:                    "pension-uk",
		SignInPolicy:             "b2c_1a_signin",
		SignUpPolicy:             "b2c_1a_signup",
		CancelRoute:              "/login",
		Locale:                   "en-GB",
		CountryScopeID:           "uk",
		SignInHoldingRoute:       "/signing-in",
		RegistrationHoldingRoute: "/registering",
		PostLogoutRoute:          "/logged-out",
	}
}

func newFederatedFixture(t *testing.T) (*authn.FederatedService, *fakeIdentityProvider, *navRecorder, *repomem.Store) {
	t.Helper()
	idp := &fakeIdentityProvider{}
	nav := &navRecorder{}
	store := repomem.NewStore()

	service, err := authn.NewFederatedService(idp, store, nil, nil, nav.navigate, federatedConfig())
	require.NoError(t, err)
	return service, idp, nav, store
}

func signIDToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func TestFederatedLoginRedirectsToSignInPolicy(t *testing.T) {
	service, idp, nav, _ := newFederatedFixture(t)

	require.NoError(t, service.Login(context.Background(), authn.LoginOptions{EmailHint: "member@example.com"}))
	require.Equal(t, []string{"b2c_1a_signin"}, idp.authorizeCalls)
	require.Len(t, nav.urls, 1)
	require.Contains(t, nav.urls[0], "p=b2c_1a_signin")
	require.Equal(t, authn.StateAuthenticating, service.State())
}

func TestFederatedRegisterRedirectsToSignUpPolicy(t *testing.T) {
	service, idp, _, _ := newFederatedFixture(t)

	require.NoError(t, service.Register(context.Background(), authn.RegisterOptions{}))
	require.Equal(t, []string{"b2c_1a_signup"}, idp.authorizeCalls)
}

func TestFederatedLegacyOperationsNotSupported(t *testing.T) {
	service, _, _, _ := newFederatedFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, service.LoginFromSSO(ctx, "ticket"), authn.ErrNotSupported)
	require.ErrorIs(t, service.SwitchUser(ctx, authn.SwitchUserParams{}), authn.ErrNotSupported)
}

func TestHandleRedirectReturnStoresTokenAndRoutesToHolding(t *testing.T) {
	service, _, nav, store := newFederatedFixture(t)
	store.SetData(&session.Data{PrimaryBgroup: "WIF", PrimaryRefno: "7777777"})

	idToken := signIDToken(t, jwtlib.MapClaims{
		"sub":       "guid-1",
		"tfp":       "B2C_1A_SignIn",
		"targetUrl": "/pensions/overview",
	})
	require.NoError(t, service.HandleRedirectReturn(context.Background(), "#id_token="+idToken))

	require.Equal(t, idToken, store.Tokens().AccessToken)
	require.Equal(t, "pension-uk", store.Realm())

	data := store.Data()
	require.Equal(t, "guid-1", data.AuthGUID)
	require.Equal(t, "b2c_1a_signin", data.PolicyID)
	require.Equal(t, "/pensions/overview", data.NextURL)
	require.Equal(t, "WIF", data.PrimaryBgroup, "stored identity survives the return")
	require.False(t, data.IsNewAccount)
	require.Equal(t, []string{"/signing-in"}, nav.urls)
}

func TestHandleRedirectReturnProcessesFragmentOnce(t *testing.T) {
	service, _, nav, _ := newFederatedFixture(t)

	idToken := signIDToken(t, jwtlib.MapClaims{"sub": "guid-1"})
	fragment := "#id_token=" + idToken

	require.NoError(t, service.HandleRedirectReturn(context.Background(), fragment))
	require.NoError(t, service.HandleRedirectReturn(context.Background(), fragment))
	require.NoError(t, service.HandleRedirectReturn(context.Background(), fragment))

	require.Len(t, nav.urls, 1, "repeated renders must not reprocess the fragment")
}

func TestHandleRedirectReturnEmptyFragmentReleasesGuard(t *testing.T) {
	service, _, nav, _ := newFederatedFixture(t)
	ctx := context.Background()

	require.NoError(t, service.HandleRedirectReturn(ctx, ""))
	require.Empty(t, nav.urls)

	// A later real return must still be processed.
	idToken := signIDToken(t, jwtlib.MapClaims{"sub": "guid-1"})
	require.NoError(t, service.HandleRedirectReturn(ctx, "#id_token="+idToken))
	require.Len(t, nav.urls, 1)
}

func TestHandleRedirectReturnErrorCodeForcesLogout(t *testing.T) {
	service, idp, nav, store := newFederatedFixture(t)
	store.SetTokens(&session.TokenPair{AccessToken: "stale"})

	err := service.HandleRedirectReturn(context.Background(), "#error=access_denied&error_description=cancelled")
	require.Error(t, err)
	require.Nil(t, store.Tokens(), "session destroyed on provider error")
	require.Equal(t, []string{"/logged-out"}, idp.logoutCalls)
	require.Len(t, nav.urls, 1)
}

func TestHandleRedirectReturnNewAccountRoutesToRegistrationHolding(t *testing.T) {
	service, _, nav, store := newFederatedFixture(t)

	idToken := signIDToken(t, jwtlib.MapClaims{
		"sub":        "guid-1",
		"externalId": "ext-1",
	})
	require.NoError(t, service.HandleRedirectReturn(context.Background(), "#id_token="+idToken))

	require.True(t, store.Data().IsNewAccount)
	require.Equal(t, []string{"/registering"}, nav.urls)
}

func TestFederatedIsAuthenticated(t *testing.T) {
	postAuthRunning := false
	idp := &fakeIdentityProvider{}
	store := repomem.NewStore()
	service, err := authn.NewFederatedService(idp, store, nil, nil, func(string) {}, federatedConfig(),
		authn.WithPostAuthRunning(func() bool { return postAuthRunning }))
	require.NoError(t, err)

	require.False(t, service.IsAuthenticated(), "no token")

	store.SetTokens(&session.TokenPair{AccessToken: "id-token"})
	require.False(t, service.IsAuthenticated(), "no resolved identity")

	store.SetData(&session.Data{PrimaryBgroup: "WIF", PrimaryRefno: "7777777"})
	require.True(t, service.IsAuthenticated())

	postAuthRunning = true
	require.False(t, service.IsAuthenticated(), "post-auth tasks still running")
}

func TestFederatedLogoutCleansUpThenRedirects(t *testing.T) {
	service, idp, nav, store := newFederatedFixture(t)
	store.SetTokens(&session.TokenPair{AccessToken: "id-token"})

	require.NoError(t, service.Logout(context.Background(), authn.LogoutOptions{}))
	require.Nil(t, store.Tokens())
	require.Equal(t, authn.StateIdle, service.State())
	require.Equal(t, []string{"/logged-out"}, idp.logoutCalls)
	require.Len(t, nav.urls, 1)
}

func TestFederatedLogoutHonoursPostLogoutOverride(t *testing.T) {
	service, idp, _, _ := newFederatedFixture(t)

	require.NoError(t, service.Logout(context.Background(), authn.LogoutOptions{PostLogoutURI: "https://employer.example.com/done"}))
	require.Equal(t, []string{"https://employer.example.com/done"}, idp.logoutCalls)
}

func TestFederatedRefresherSilentlyReauthenticates(t *testing.T) {
	idp := &fakeIdentityProvider{silentToken: "fresh-id-token"}
	store := repomem.NewStore()
	store.SetData(&session.Data{PolicyID: "b2c_1a_signin"})

	refresher := authn.NewFederatedRefresher(idp, store, nil)
	pair, err := refresher.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-id-token", pair.AccessToken)
	require.Equal(t, []string{"b2c_1a_signin"}, idp.silentCalls)
	require.Equal(t, "fresh-id-token", store.Tokens().AccessToken)
}

func TestFederatedRefresherFailsFastDuringInteraction(t *testing.T) {
	service, idp, _, store := newFederatedFixture(t)
	require.NoError(t, service.Login(context.Background(), authn.LoginOptions{}))

	refresher := authn.NewFederatedRefresher(idp, store, service)
	_, err := refresher.Refresh(context.Background())
	require.ErrorIs(t, err, authn.ErrInteractionInProgress)
	require.Empty(t, idp.silentCalls, "no silent attempt while a redirect is in flight")
}

func TestLegacyRefresherExchangesStoredPair(t *testing.T) {
	apiClient := &fakeLegacyAPI{pair: session.TokenPair{AccessToken: "fresh", RefreshToken: "fresh-refresh"}}
	store := repomem.NewStore()
	store.SetTokens(&session.TokenPair{AccessToken: "stale", RefreshToken: "stale-refresh"})

	refresher := authn.NewLegacyRefresher(apiClient, store)
	pair, err := refresher.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", pair.AccessToken)
	require.Equal(t, "fresh", store.Tokens().AccessToken)
}

func TestLegacyRefresherRequiresStoredPair(t *testing.T) {
	refresher := authn.NewLegacyRefresher(&fakeLegacyAPI{}, repomem.NewStore())
	_, err := refresher.Refresh(context.Background())
	require.Error(t, err)
}
