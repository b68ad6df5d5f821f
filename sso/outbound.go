// Package sso builds outbound cross-domain single-sign-on handoff URLs
// for the legacy portal.
package sso

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

// ssoGenPath is the fixed SSO-generation path on the receiving portal.
const ssoGenPath = "/accounts/ssosamlgen/"

// LookupCodeFetcher fetches the one-time lookup code identifying which
// linked account the handoff resolves to. Satisfied by *api.Client.
type LookupCodeFetcher interface {
	SSOLookupCode(ctx context.Context, recordNumber int, hasMultipleRecords bool) (string, error)
}

// OutboundParams identify the handoff target.
type OutboundParams struct {
	TargetURL          string
	BaseSSOURL         string
	RecordNumber       int
	HasMultipleRecords bool
}

// OutboundURL builds the SSO handoff URL: the relay state points back at
// the target's origin with the target path carried in its next parameter,
// and the relay state plus lookup code ride on the base SSO URL.
func OutboundURL(ctx context.Context, fetcher LookupCodeFetcher, params OutboundParams) (string, error) {
	lookupCode, err := fetcher.SSOLookupCode(ctx, params.RecordNumber, params.HasMultipleRecords)
	if err != nil {
		return "", errors.Wrap(err, "[sso.OutboundURL] lookup code")
	}

	target, err := url.Parse(params.TargetURL)
	if err != nil {
		return "", errors.Wrap(err, "[sso.OutboundURL] parse target url")
	}

	// Any next already on the target is discarded; the target's own path
	// becomes the next. Every other query parameter is copied verbatim.
	relayQuery := url.Values{}
	for key, values := range target.Query() {
		if key == "next" {
			continue
		}
		for _, v := range values {
			relayQuery.Add(key, v)
		}
	}
	relayQuery.Set("next", target.Path)

	relay := url.URL{
		Scheme:   target.Scheme,
		Host:     target.Host,
		Path:     ssoGenPath,
		RawQuery: relayQuery.Encode(),
	}

	base, err := url.Parse(params.BaseSSOURL)
	if err != nil {
		return "", errors.Wrap(err, "[sso.OutboundURL] parse base sso url")
	}
	baseQuery := base.Query()
	baseQuery.Set("relayState", relay.String())
	baseQuery.Set("lookupCode", lookupCode)
	base.RawQuery = baseQuery.Encode()

	return base.String(), nil
}
