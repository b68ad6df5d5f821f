package sso

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/pensionhub/go-portal-auth/session"
)

// adminLogoutPath short-circuits admin sessions out of the SSO handoff.
const adminLogoutPath = "/sa/logout"

// Navigator decides whether a navigation to the legacy portal goes
// through the SSO handoff. Resolution failures are invisible to the user:
// the original destination is returned unchanged.
type Navigator struct {
	store      session.Repo
	fetcher    LookupCodeFetcher
	baseSSOURL string
	log        zerolog.Logger
}

// NavigatorOption configures a Navigator.
type NavigatorOption func(*Navigator)

// WithNavigatorLogger sets the navigator logger.
func WithNavigatorLogger(log zerolog.Logger) NavigatorOption {
	return func(n *Navigator) {
		n.log = log
	}
}

// NewNavigator builds a Navigator. An empty baseSSOURL disables the
// handoff entirely.
func NewNavigator(store session.Repo, fetcher LookupCodeFetcher, baseSSOURL string, options ...NavigatorOption) *Navigator {
	navigator := &Navigator{
		store:      store,
		fetcher:    fetcher,
		baseSSOURL: baseSSOURL,
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(navigator)
	}
	return navigator
}

// Resolve maps the requested destination to its SSO handoff URL. Admin
// sessions are routed to a logout-with-redirect instead; sessions with no
// linkable record, a missing base SSO URL or any resolution error fall
// open to the original destination.
func (n *Navigator) Resolve(ctx context.Context, target string) string {
	data := n.store.Data()

	if data != nil && data.IsAdmin {
		query := url.Values{}
		query.Set("postLogoutRedirectUri", target)
		return adminLogoutPath + "?" + query.Encode()
	}

	if data == nil || data.MemberRecord == nil || n.baseSSOURL == "" {
		return target
	}

	resolved, err := OutboundURL(ctx, n.fetcher, OutboundParams{
		TargetURL:          target,
		BaseSSOURL:         n.baseSSOURL,
		RecordNumber:       data.MemberRecord.RecordNumber,
		HasMultipleRecords: data.HasMultipleRecords,
	})
	if err != nil {
		n.log.Warn().Err(err).Msg("sso outbound resolution failed, falling back to direct navigation")
		return target
	}
	return resolved
}
