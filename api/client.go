// Package api is the typed client for the member API's authentication
// endpoints, plus the retry-refresh transport every outbound request is
// routed through.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pensionhub/go-portal-auth/session"
)

// Client calls the member API. Headers are recomputed from the header
// source on every request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    HeaderSource
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client, typically one whose
// transport is a RefreshTransport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient builds a member API client.
func NewClient(baseURL string, headers HeaderSource, options ...Option) *Client {
	client := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		headers:    headers,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// LoginRequest is the legacy credential exchange request.
type LoginRequest struct {
	UserName       string   `json:"userName"`
	Password       string   `json:"password"`
	BusinessGroups []string `json:"businessGroups,omitempty"`
	Realm          string   `json:"realm"`
}

// SwitchUserRequest exchanges a reference number for a fresh token pair.
type SwitchUserRequest struct {
	ReferenceNumber string `json:"referenceNumber"`
	BusinessGroup   string `json:"businessGroup"`
}

// SSOSessionRequest exchanges an externally issued session ticket.
type SSOSessionRequest struct {
	TokenID    string `json:"tokenId"`
	Realm      string `json:"realm"`
	CookieName string `json:"cookieName"`
}

// PostAuthLoginResponse identifies the account resolved after a federated
// redirect return.
type PostAuthLoginResponse struct {
	BusinessGroup      string `json:"businessGroup"`
	ReferenceNumber    string `json:"referenceNumber"`
	HasMultipleRecords bool   `json:"hasMultipleRecords"`
}

type linkedRecordsResponse struct {
	Members []session.MemberRecord `json:"members"`
}

type lookupCodeResponse struct {
	LookupCode string `json:"lookupCode"`
}

// Login performs the legacy credential exchange.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*session.TokenPair, error) {
	var pair session.TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &pair, 0); err != nil {
		return nil, errors.Wrap(err, "[Client.Login]")
	}
	return &pair, nil
}

// Refresh exchanges the current token pair for a new one.
func (c *Client) Refresh(ctx context.Context, pair session.TokenPair) (*session.TokenPair, error) {
	var refreshed session.TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", pair, &refreshed, 0); err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh]")
	}
	return &refreshed, nil
}

// Logout invalidates the token pair server side.
func (c *Client) Logout(ctx context.Context, pair session.TokenPair) error {
	return errors.Wrap(c.do(ctx, http.MethodPost, "/auth/logout", pair, nil, 0), "[Client.Logout]")
}

// SessionCheck is the lightweight liveness probe used by the idle monitor.
func (c *Client) SessionCheck(ctx context.Context) error {
	return errors.Wrap(c.do(ctx, http.MethodGet, "/auth/session-check", nil, nil, 0), "[Client.SessionCheck]")
}

// KeepAlive extends the server-side session.
func (c *Client) KeepAlive(ctx context.Context) error {
	return errors.Wrap(c.do(ctx, http.MethodPost, "/auth/keep-alive", nil, nil, 0), "[Client.KeepAlive]")
}

// SwitchUser exchanges a linked-member reference number for a fresh pair
// without re-entering credentials.
func (c *Client) SwitchUser(ctx context.Context, req SwitchUserRequest) (*session.TokenPair, error) {
	var pair session.TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/switch-user", req, &pair, 0); err != nil {
		return nil, errors.Wrap(err, "[Client.SwitchUser]")
	}
	return &pair, nil
}

// CreateSSOSession mints a token pair from an externally issued ticket.
func (c *Client) CreateSSOSession(ctx context.Context, req SSOSessionRequest) (*session.TokenPair, error) {
	var pair session.TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/sso-session", req, &pair, 0); err != nil {
		return nil, errors.Wrap(err, "[Client.CreateSSOSession]")
	}
	return &pair, nil
}

// PostAuthLogin resolves the account behind the stored federated token.
// Anything other than a 200 is treated as a failure.
func (c *Client) PostAuthLogin(ctx context.Context) (*PostAuthLoginResponse, error) {
	var resp PostAuthLoginResponse
	if err := c.do(ctx, http.MethodPost, "/sso/login", nil, &resp, http.StatusOK); err != nil {
		return nil, errors.Wrap(err, "[Client.PostAuthLogin]")
	}
	return &resp, nil
}

// PostAuthRegister creates the account for a first-time federated user.
// Anything other than a 204 means the account was not created.
func (c *Client) PostAuthRegister(ctx context.Context) error {
	return errors.Wrap(c.do(ctx, http.MethodPost, "/sso/register", nil, nil, http.StatusNoContent), "[Client.PostAuthRegister]")
}

// LinkedRecords fetches the user's linkable member records.
func (c *Client) LinkedRecords(ctx context.Context) ([]session.MemberRecord, error) {
	var resp linkedRecordsResponse
	if err := c.do(ctx, http.MethodGet, "/members/linked", nil, &resp, 0); err != nil {
		return nil, errors.Wrap(err, "[Client.LinkedRecords]")
	}
	return resp.Members, nil
}

// SSOLookupCode fetches a one-time lookup code for a cross-domain SSO
// handoff.
func (c *Client) SSOLookupCode(ctx context.Context, recordNumber int, hasMultipleRecords bool) (string, error) {
	query := url.Values{}
	query.Set("recordNumber", strconv.Itoa(recordNumber))
	query.Set("hasMultipleRecords", strconv.FormatBool(hasMultipleRecords))

	var resp lookupCodeResponse
	if err := c.do(ctx, http.MethodGet, "/sso/lookup-code?"+query.Encode(), nil, &resp, 0); err != nil {
		return "", errors.Wrap(err, "[Client.SSOLookupCode]")
	}
	return resp.LookupCode, nil
}

// do issues one request. requireStatus of zero accepts any 2xx; a
// non-zero value demands that exact status.
func (c *Client) do(ctx context.Context, method, path string, body, out any, requireStatus int) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	applyHeaders(req, c.headers.RequestHeaders())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if requireStatus != 0 {
		ok = resp.StatusCode == requireStatus
	}
	if !ok {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Str("code", apiErr.Code).Msg("api request failed")
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}

func applyHeaders(req *http.Request, headers Headers) {
	if headers.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+headers.AccessToken)
	}
	if headers.BusinessGroup != "" {
		req.Header.Set(headerBusinessGroup, headers.BusinessGroup)
	}
	if headers.ReferenceNumber != "" {
		req.Header.Set(headerReferenceNumber, headers.ReferenceNumber)
	}
}
