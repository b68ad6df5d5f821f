package authn

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pensionhub/go-portal-auth/session"
)

// LegacyRefresher exchanges the stored access/refresh pair for a new one
// at the member API's refresh endpoint.
type LegacyRefresher struct {
	api   LegacyAPI
	store session.Repo
}

// NewLegacyRefresher builds the legacy refresher.
func NewLegacyRefresher(apiClient LegacyAPI, store session.Repo) *LegacyRefresher {
	return &LegacyRefresher{api: apiClient, store: store}
}

func (r *LegacyRefresher) Refresh(ctx context.Context) (*session.TokenPair, error) {
	pair := r.store.Tokens()
	if pair == nil {
		return nil, errors.New("[LegacyRefresher.Refresh] no token pair in session")
	}
	refreshed, err := r.api.Refresh(ctx, *pair)
	if err != nil {
		return nil, errors.Wrap(err, "[LegacyRefresher.Refresh]")
	}
	r.store.SetTokens(refreshed)
	return refreshed, nil
}

// InteractionChecker reports whether an interactive identity-provider
// journey is in flight. Satisfied by *FederatedService.
type InteractionChecker interface {
	InteractionInProgress() bool
}

// FederatedRefresher performs a silent re-authentication against the
// identity provider using the active account's policy. No call is made to
// this application's own refresh endpoint.
type FederatedRefresher struct {
	idp         IdentityProvider
	store       session.Repo
	interaction InteractionChecker
}

// NewFederatedRefresher builds the federated refresher.
func NewFederatedRefresher(idp IdentityProvider, store session.Repo, interaction InteractionChecker) *FederatedRefresher {
	return &FederatedRefresher{idp: idp, store: store, interaction: interaction}
}

func (r *FederatedRefresher) Refresh(ctx context.Context) (*session.TokenPair, error) {
	if r.interaction != nil && r.interaction.InteractionInProgress() {
		return nil, ErrInteractionInProgress
	}

	policy := ""
	if data := r.store.Data(); data != nil {
		policy = data.PolicyID
	}
	idToken, err := r.idp.SilentAuthenticate(ctx, policy)
	if err != nil {
		return nil, errors.Wrap(err, "[FederatedRefresher.Refresh] silent authentication")
	}

	pair := &session.TokenPair{AccessToken: idToken}
	r.store.SetTokens(pair)
	return pair, nil
}
