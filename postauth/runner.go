// Package postauth resolves the account behind a federated redirect
// return: registration versus login, the linked-record match and the
// effective business-group/reference-number pair, then bootstraps the
// dependent application state.
package postauth

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pensionhub/go-portal-auth/api"
	"github.com/pensionhub/go-portal-auth/authn"
	"github.com/pensionhub/go-portal-auth/session"
)

// Analytics triggers for the identity-bootstrap event.
const (
	TriggerPostSignIn       = "post sign-in"
	TriggerPostRegistration = "post registration"
)

const schemeTypeDC = "DC"

// RunState is the one-shot lifecycle of a Runner. It is owned by the
// session, not by UI re-execution, so repeated renders cannot re-trigger
// the sequence.
type RunState int32

const (
	RunNotStarted RunState = iota
	RunRunning
	RunDone
)

// API is the slice of the member API the runner consumes. Satisfied by
// *api.Client.
type API interface {
	PostAuthLogin(ctx context.Context) (*api.PostAuthLoginResponse, error)
	PostAuthRegister(ctx context.Context) error
	LinkedRecords(ctx context.Context) ([]session.MemberRecord, error)
}

// Runner executes the post-authentication sequence exactly once per
// redirect return.
type Runner struct {
	api          API
	store        session.Repo
	headers      *api.SessionHeaders
	boot         authn.Bootstrapper
	chat         authn.ChatStore
	analytics    authn.Analytics
	tenantGroups []string
	log          zerolog.Logger

	state atomic.Int32
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(log zerolog.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// NewRunner builds a post-authentication runner.
func NewRunner(apiClient API, store session.Repo, headers *api.SessionHeaders, boot authn.Bootstrapper, chat authn.ChatStore, analytics authn.Analytics, tenantGroups []string, options ...RunnerOption) (*Runner, error) {
	if apiClient == nil {
		return nil, errors.New("[NewRunner] api client is required")
	}
	if store == nil {
		return nil, errors.New("[NewRunner] session store is required")
	}
	if headers == nil {
		return nil, errors.New("[NewRunner] header state is required")
	}
	if boot == nil {
		return nil, errors.New("[NewRunner] bootstrapper is required")
	}

	runner := &Runner{
		api:          apiClient,
		store:        store,
		headers:      headers,
		boot:         boot,
		chat:         chat,
		analytics:    analytics,
		tenantGroups: tenantGroups,
		log:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(runner)
	}
	return runner, nil
}

// State returns the runner lifecycle state.
func (r *Runner) State() RunState {
	return RunState(r.state.Load())
}

// Running reports whether the sequence is mid flight; the session is not
// authenticated while it is.
func (r *Runner) Running() bool {
	return r.State() == RunRunning
}

// Run executes the sequence. Subsequent calls are no-ops regardless of
// the first call's outcome; a new redirect return needs a Reset.
func (r *Runner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(RunNotStarted), int32(RunRunning)) {
		return nil
	}
	defer r.state.Store(int32(RunDone))

	if err := r.run(ctx); err != nil {
		r.log.Error().Err(err).Msg("post-authentication processing failed")
		return err
	}
	return nil
}

// Reset re-arms the runner for a fresh redirect return.
func (r *Runner) Reset() {
	r.state.Store(int32(RunNotStarted))
}

func (r *Runner) run(ctx context.Context) error {
	if r.store.Tokens() == nil {
		return errors.New("[Runner.run] no access token in session")
	}

	stored := r.store.Data()
	if stored == nil {
		stored = &session.Data{}
	}

	// Outbound calls carry the tenant's configured business-group set
	// until the account is resolved.
	r.headers.SetBusinessGroup(strings.Join(r.tenantGroups, ","))

	trigger := TriggerPostSignIn
	if stored.IsNewAccount {
		trigger = TriggerPostRegistration
		if err := r.api.PostAuthRegister(ctx); err != nil {
			return errors.Wrap(err, "[Runner.run] account registration")
		}
	}

	resolved, err := r.api.PostAuthLogin(ctx)
	if err != nil {
		return errors.Wrap(err, "[Runner.run] login")
	}

	params := RefnoParams{
		NextURL:          stored.NextURL,
		RegistrationCode: stored.RegistrationCode,
		PrimaryRefno:     stored.PrimaryRefno,
		LinkedRefno:      stored.LinkedRefno,
		IsAdmin:          stored.IsAdmin,
	}
	primaryRefno := EffectiveRefno(params, resolved.ReferenceNumber, false)
	linkedRefno := EffectiveRefno(params, resolved.ReferenceNumber, true)

	// All subsequent calls in this process carry the resolved account.
	r.headers.SetBusinessGroup(resolved.BusinessGroup)
	r.headers.SetReferenceNumber(primaryRefno)

	var memberRecord *session.MemberRecord
	if resolved.HasMultipleRecords {
		records, err := r.api.LinkedRecords(ctx)
		if err != nil {
			return errors.Wrap(err, "[Runner.run] linked records")
		}
		for i := range records {
			if records[i].BusinessGroup == resolved.BusinessGroup && records[i].ReferenceNumber == resolved.ReferenceNumber {
				memberRecord = &records[i]
				break
			}
		}
		if memberRecord == nil {
			return errors.New("[Runner.run] no matching record found")
		}
	}

	data := *stored
	data.PrimaryBgroup = resolved.BusinessGroup
	data.PrimaryRefno = primaryRefno
	data.LinkedBgroup = resolved.BusinessGroup
	data.LinkedRefno = linkedRefno
	data.HasMultipleRecords = resolved.HasMultipleRecords
	data.MemberRecord = memberRecord
	r.store.SetData(&data)

	if err := r.bootstrap(ctx, resolved.HasMultipleRecords); err != nil {
		return err
	}

	if r.chat != nil {
		if err := r.chat.ClearHistory(ctx); err != nil {
			r.log.Warn().Err(err).Msg("clearing stale chat history failed")
		}
	}
	if r.analytics != nil {
		r.analytics.IdentityBootstrapped(trigger)
	}
	return nil
}

func (r *Runner) bootstrap(ctx context.Context, hasMultipleRecords bool) error {
	if err := r.boot.InitJourneys(ctx); err != nil {
		return errors.Wrap(err, "[Runner.bootstrap] init journeys")
	}

	mode := authn.AccessKeyModeFull
	if hasMultipleRecords {
		mode = authn.AccessKeyModeBasic
	}
	if err := r.boot.FetchAccessKey(ctx, authn.AccessKeyOptions{Mode: mode}); err != nil {
		return errors.Wrap(err, "[Runner.bootstrap] fetch access key")
	}

	if r.boot.SchemeType() != schemeTypeDC {
		if err := r.boot.InitRetirementContext(ctx); err != nil {
			return errors.Wrap(err, "[Runner.bootstrap] init retirement context")
		}
	}
	return nil
}
