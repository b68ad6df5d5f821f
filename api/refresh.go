package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pensionhub/go-portal-auth/session"
)

// classification bodies are small; anything larger is not an auth error.
const maxErrorBodyBytes = 64 << 10

// Refresher obtains a fresh token pair. The legacy backend exchanges the
// stored pair at the refresh endpoint; the federated backend silently
// re-authenticates against the identity provider.
type Refresher interface {
	Refresh(ctx context.Context) (*session.TokenPair, error)
}

// LogoutFunc is invoked when a 401 is terminal rather than refreshable.
type LogoutFunc func(ctx context.Context)

// RefreshTransport wraps every outbound request. A 401 carrying the
// expired-token code triggers a single-flight refresh and one replay with
// the new bearer token; a 401 carrying the invalid-token code triggers a
// forced logout; every other response passes through unchanged.
type RefreshTransport struct {
	base                   http.RoundTripper
	refresher              Refresher
	tokens                 func() *session.TokenPair
	logout                 LogoutFunc
	logoutOnRefreshFailure bool
	group                  singleflight.Group
	log                    zerolog.Logger
}

// TransportOption configures a RefreshTransport.
type TransportOption func(*RefreshTransport)

// WithLogoutOnRefreshFailure makes a failed refresh force a logout, as the
// legacy backend requires.
func WithLogoutOnRefreshFailure() TransportOption {
	return func(t *RefreshTransport) {
		t.logoutOnRefreshFailure = true
	}
}

// WithTransportLogger sets the transport logger.
func WithTransportLogger(log zerolog.Logger) TransportOption {
	return func(t *RefreshTransport) {
		t.log = log
	}
}

// NewRefreshTransport builds the retry-refresh middleware. tokens reports
// the currently stored pair (nil when logged out); logout performs the
// forced-logout cleanup.
func NewRefreshTransport(base http.RoundTripper, refresher Refresher, tokens func() *session.TokenPair, logout LogoutFunc, options ...TransportOption) *RefreshTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	transport := &RefreshTransport{
		base:      base,
		refresher: refresher,
		tokens:    tokens,
		logout:    logout,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(transport)
	}
	return transport
}

func (t *RefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	code, resp := classify(resp)
	switch code {
	case CodeInvalidAccessToken:
		// Refreshing an invalid token can never succeed. Force a logout
		// when a token exists, then let the 401 propagate.
		if t.tokens() != nil {
			t.log.Warn().Msg("invalid access token, forcing logout")
			t.logout(req.Context())
		}
		return resp, nil

	case CodeAccessTokenExpired:
		return t.refreshAndReplay(req, resp)

	default:
		// An authorization/permission denial, not a token problem.
		return resp, nil
	}
}

func (t *RefreshTransport) refreshAndReplay(req *http.Request, original *http.Response) (*http.Response, error) {
	// Concurrent 401s share one in-flight refresh.
	result, err, _ := t.group.Do("refresh", func() (any, error) {
		return t.refresher.Refresh(req.Context())
	})
	if err != nil {
		t.log.Warn().Err(err).Msg("token refresh failed")
		if t.logoutOnRefreshFailure {
			t.logout(req.Context())
		}
		return original, nil
	}
	pair := result.(*session.TokenPair)

	replay := req.Clone(req.Context())
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return original, nil
		}
		replay.Body = body
	}
	replay.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	_ = original.Body.Close()
	t.log.Debug().Str("url", req.URL.Path).Msg("replaying request with refreshed token")
	return t.base.RoundTrip(replay)
}

// classify reads the 401 body's error code and returns a response whose
// body is restored for downstream readers.
func classify(resp *http.Response) (string, *http.Response) {
	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	if err != nil {
		return "", resp
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(buf, &body); err != nil {
		return "", resp
	}
	return body.Code, resp
}
