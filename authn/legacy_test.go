package authn_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/pensionhub/go-portal-auth/api"
	"github.com/pensionhub/go-portal-auth/authn"
	"github.com/pensionhub/go-portal-auth/session"
	"github.com/pensionhub/go-portal-auth/session/repomem"
)

type fakeLegacyAPI struct {
	loginReq    *api.LoginRequest
	loginErr    error
	ssoReq      *api.SSOSessionRequest
	ssoErr      error
	switchReq   *api.SwitchUserRequest
	logoutPairs []session.TokenPair
	logoutErr   error
	pair        session.TokenPair
}

func (f *fakeLegacyAPI) Login(ctx context.Context, req api.LoginRequest) (*session.TokenPair, error) {
	f.loginReq = &req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	pair := f.pair
	return &pair, nil
}

func (f *fakeLegacyAPI) Refresh(ctx context.Context, pair session.TokenPair) (*session.TokenPair, error) {
	fresh := f.pair
	return &fresh, nil
}

func (f *fakeLegacyAPI) Logout(ctx context.Context, pair session.TokenPair) error {
	f.logoutPairs = append(f.logoutPairs, pair)
	return f.logoutErr
}

func (f *fakeLegacyAPI) SwitchUser(ctx context.Context, req api.SwitchUserRequest) (*session.TokenPair, error) {
	f.switchReq = &req
	pair := f.pair
	return &pair, nil
}

func (f *fakeLegacyAPI) CreateSSOSession(ctx context.Context, req api.SSOSessionRequest) (*session.TokenPair, error) {
	f.ssoReq = &req
	if f.ssoErr != nil {
		return nil, f.ssoErr
	}
	pair := f.pair
	return &pair, nil
}

type fakeBootstrapper struct {
	calls         []string
	accessKeyOpts *authn.AccessKeyOptions
	schemeType    string
	hasAccessKey  bool
	failStep      string
}

func (f *fakeBootstrapper) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failStep == name {
		return errors.Errorf("%s failed", name)
	}
	return nil
}

func (f *fakeBootstrapper) InitJourneys(ctx context.Context) error { return f.step("journeys") }

func (f *fakeBootstrapper) FetchAccessKey(ctx context.Context, opts authn.AccessKeyOptions) error {
	f.accessKeyOpts = &opts
	if err := f.step("accessKey"); err != nil {
		return err
	}
	f.hasAccessKey = true
	return nil
}

func (f *fakeBootstrapper) HasAccessKey() bool                       { return f.hasAccessKey }
func (f *fakeBootstrapper) FetchLinkedMembers(ctx context.Context) error { return f.step("linkedMembers") }
func (f *fakeBootstrapper) SchemeType() string                       { return f.schemeType }
func (f *fakeBootstrapper) InitRetirementContext(ctx context.Context) error {
	return f.step("retirement")
}

type fakeChatStore struct {
	clears   int
	hides    int
	clearErr error
}

func (f *fakeChatStore) ClearHistory(ctx context.Context) error {
	f.clears++
	return f.clearErr
}

func (f *fakeChatStore) Hide() { f.hides++ }

type fakeCookieJar struct {
	cleared int
	ticket  string
}

func (f *fakeCookieJar) ClearSession() { f.cleared++ }

func (f *fakeCookieJar) SSOTicket(name string) (string, bool) {
	return f.ticket, f.ticket != ""
}

func newLegacyFixture(t *testing.T) (*authn.LegacyService, *fakeLegacyAPI, *fakeBootstrapper, *fakeChatStore, *fakeCookieJar, *repomem.Store) {
	t.Helper()
	apiClient := &fakeLegacyAPI{pair: session.TokenPair{AccessToken: "access", RefreshToken: "refresh"}}
	boot := &fakeBootstrapper{}
	chat := &fakeChatStore{}
	cookies := &fakeCookieJar{}
	store := repomem.NewStore()

	service, err := authn.NewLegacyService(apiClient, store, boot, chat, cookies, authn.LegacyConfig{
		Realm:          "pension-uk",
		BusinessGroups: []string{"WIF"},
		SSOCookieName:  "sso_ticket",
	})
	require.NoError(t, err)
	return service, apiClient, boot, chat, cookies, store
}

func TestLegacyLoginValidatesCredentialsBeforeAnyCall(t *testing.T) {
	service, apiClient, _, _, _, _ := newLegacyFixture(t)
	ctx := context.Background()

	err := service.Login(ctx, authn.LoginOptions{Password: "secret"})
	var vErr *authn.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "userName", vErr.Field)

	err = service.Login(ctx, authn.LoginOptions{UserName: "member1"})
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "password", vErr.Field)

	require.Nil(t, apiClient.loginReq, "no credential exchange on validation failure")
}

func TestLegacyLoginBootstrapsInOrder(t *testing.T) {
	service, apiClient, boot, chat, _, store := newLegacyFixture(t)

	require.NoError(t, service.Login(context.Background(), authn.LoginOptions{UserName: "member1", Password: "secret"}))

	require.Equal(t, "pension-uk", apiClient.loginReq.Realm)
	require.Equal(t, []string{"WIF"}, apiClient.loginReq.BusinessGroups)

	require.Equal(t, []string{"journeys", "accessKey", "linkedMembers", "retirement"}, boot.calls)
	require.Equal(t, authn.AccessKeyModeFull, boot.accessKeyOpts.Mode)
	require.True(t, boot.accessKeyOpts.SkipTokenCheck)
	require.Equal(t, 1, chat.clears)

	require.Equal(t, "access", store.Tokens().AccessToken)
	require.Equal(t, "pension-uk", store.Realm())
	require.True(t, service.IsAuthenticated())
}

func TestLegacyLoginSkipsRetirementForDCScheme(t *testing.T) {
	service, _, boot, _, _, _ := newLegacyFixture(t)
	boot.schemeType = "DC"

	require.NoError(t, service.Login(context.Background(), authn.LoginOptions{UserName: "member1", Password: "secret"}))
	require.Equal(t, []string{"journeys", "accessKey", "linkedMembers"}, boot.calls)
}

func TestLegacyLoginBootstrapFailureDestroysSession(t *testing.T) {
	service, _, boot, _, cookies, store := newLegacyFixture(t)
	boot.failStep = "linkedMembers"

	err := service.Login(context.Background(), authn.LoginOptions{UserName: "member1", Password: "secret"})
	require.Error(t, err)
	require.Nil(t, store.Tokens(), "tokens destroyed on bootstrap failure")
	require.Equal(t, 1, cookies.cleared)
	require.False(t, service.IsAuthenticated())
}

func TestLegacyLoginFromSSO(t *testing.T) {
	service, apiClient, boot, _, _, store := newLegacyFixture(t)

	require.NoError(t, service.LoginFromSSO(context.Background(), "ticket-1"))
	require.Equal(t, "ticket-1", apiClient.ssoReq.TokenID)
	require.Equal(t, "sso_ticket", apiClient.ssoReq.CookieName)
	require.Equal(t, []string{"journeys", "accessKey", "linkedMembers", "retirement"}, boot.calls)
	require.NotNil(t, store.Tokens())
}

func TestLegacyRegisterNotSupported(t *testing.T) {
	service, _, _, _, _, _ := newLegacyFixture(t)
	require.ErrorIs(t, service.Register(context.Background(), authn.RegisterOptions{}), authn.ErrNotSupported)
}

func TestLegacySwitchUser(t *testing.T) {
	service, apiClient, boot, _, _, store := newLegacyFixture(t)
	boot.hasAccessKey = true

	require.NoError(t, service.SwitchUser(context.Background(), authn.SwitchUserParams{
		ReferenceNumber: "7777777",
		BusinessGroup:   "WIF",
	}))
	require.Equal(t, "7777777", apiClient.switchReq.ReferenceNumber)
	require.Equal(t, "access", store.Tokens().AccessToken)
	require.True(t, service.IsAuthenticated())
}

func TestLegacyLogoutInvalidatesStoredPair(t *testing.T) {
	service, apiClient, _, chat, cookies, store := newLegacyFixture(t)
	store.SetTokens(&session.TokenPair{AccessToken: "access", RefreshToken: "refresh"})

	require.NoError(t, service.Logout(context.Background(), authn.LogoutOptions{}))
	require.Len(t, apiClient.logoutPairs, 1)
	require.Equal(t, "access", apiClient.logoutPairs[0].AccessToken)

	require.Nil(t, store.Tokens())
	require.Equal(t, 1, chat.hides)
	require.Equal(t, 1, cookies.cleared)
}

func TestLegacyLogoutMintsPairFromSSOCookie(t *testing.T) {
	service, apiClient, _, _, cookies, store := newLegacyFixture(t)
	cookies.ticket = "cookie-ticket"

	require.NoError(t, service.Logout(context.Background(), authn.LogoutOptions{}))
	require.Equal(t, "cookie-ticket", apiClient.ssoReq.TokenID)
	require.Len(t, apiClient.logoutPairs, 1, "minted pair is invalidated")
	require.Nil(t, store.Tokens())
}

func TestLegacyLogoutSwallowsEndpointErrors(t *testing.T) {
	service, apiClient, _, _, cookies, store := newLegacyFixture(t)
	store.SetTokens(&session.TokenPair{AccessToken: "access"})
	apiClient.logoutErr = errors.New("endpoint down")

	require.NoError(t, service.Logout(context.Background(), authn.LogoutOptions{}))
	require.Nil(t, store.Tokens(), "cleanup runs even when the endpoint fails")
	require.Equal(t, 1, cookies.cleared)
}

func TestLegacySoftLogoutKeepsChatHistoryWhenAsked(t *testing.T) {
	service, _, _, chat, _, store := newLegacyFixture(t)
	store.SetTokens(&session.TokenPair{AccessToken: "access"})

	require.NoError(t, service.SoftLogout(context.Background(), authn.SoftLogoutOptions{KeepChatHistory: true}))
	require.Nil(t, store.Tokens())
	require.Zero(t, chat.clears)

	store.SetTokens(&session.TokenPair{AccessToken: "access"})
	require.NoError(t, service.SoftLogout(context.Background(), authn.SoftLogoutOptions{}))
	require.Equal(t, 1, chat.clears)
}

func TestLegacyIsAuthenticatedRequiresAccessKey(t *testing.T) {
	service, _, boot, _, _, _ := newLegacyFixture(t)

	require.NoError(t, service.Login(context.Background(), authn.LoginOptions{UserName: "member1", Password: "secret"}))
	require.True(t, service.IsAuthenticated())

	boot.hasAccessKey = false
	require.False(t, service.IsAuthenticated())
}

func TestLegacyEnsureRealmLogsOutOnce(t *testing.T) {
	service, apiClient, _, _, _, store := newLegacyFixture(t)
	store.SetTokens(&session.TokenPair{AccessToken: "access"})
	store.SetRealm("pension-de")

	ctx := context.Background()
	require.ErrorIs(t, service.EnsureRealm(ctx), authn.ErrRealmMismatch)
	require.Len(t, apiClient.logoutPairs, 1)

	// The logout cleared the store, so the check is now a no-op.
	require.NoError(t, service.EnsureRealm(ctx))
	require.Len(t, apiClient.logoutPairs, 1)
}

func TestLegacyEnsureRealmMatchingRealmIsNoop(t *testing.T) {
	service, apiClient, _, _, _, store := newLegacyFixture(t)
	store.SetRealm("pension-uk")

	require.NoError(t, service.EnsureRealm(context.Background()))
	require.Empty(t, apiClient.logoutPairs)
}
