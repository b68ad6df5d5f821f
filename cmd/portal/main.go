package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pensionhub/go-portal-auth/api"
	"github.com/pensionhub/go-portal-auth/authn"
	"github.com/pensionhub/go-portal-auth/idle"
	"github.com/pensionhub/go-portal-auth/internal/config"
	"github.com/pensionhub/go-portal-auth/postauth"
	"github.com/pensionhub/go-portal-auth/session/repomem"
	"github.com/pensionhub/go-portal-auth/sso"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("error running portal auth")
	}
	log.Info().Msg("portal auth stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	displayAppname(cfg.AppName)

	logger := log.Level(zerolog.InfoLevel)
	if !cfg.IsProduction() {
		logger = log.Level(zerolog.DebugLevel)
	}

	store := repomem.NewStore()
	headers := api.NewSessionHeaders(store, cfg.BusinessGroupList())

	// navigate is supplied by the portal shell in the real deployment.
	navigate := func(url string) {
		logger.Info().Str("url", url).Msg("navigate")
	}

	service, stopIdle, err := buildBackend(cfg, store, headers, navigate, logger)
	if err != nil {
		return err
	}
	defer stopIdle()

	logger.Info().
		Str("realm", cfg.Realm).
		Str("authMethod", string(cfg.AuthMethod)).
		Bool("authenticated", service.IsAuthenticated()).
		Msg("auth subsystem ready")

	waitForStopSignal()
	return nil
}

func buildBackend(cfg *config.Config, store *repomem.Store, headers *api.SessionHeaders, navigate authn.Navigate, logger zerolog.Logger) (authn.Service, func(), error) {
	hub := idle.NewHub()

	switch cfg.AuthMethod {
	case config.AuthMethodFederated:
		idp, err := authn.NewOIDCProvider(context.Background(), cfg.IdPAuthority, cfg.IdPClientID, cfg.IdPRedirectURL,
			authn.WithProviderLogger(logger))
		if err != nil {
			return nil, nil, err
		}

		var runner *postauth.Runner
		service, err := authn.NewFederatedService(idp, store, nil, nil, navigate, authn.FederatedConfig{
			Realm:                    cfg.Realm,
			SignInPolicy:             cfg.SignInPolicy,
			SignUpPolicy:             cfg.SignUpPolicy,
			CancelRoute:              cfg.CancelRoute,
			Locale:                   cfg.Locale,
			CountryScopeID:           cfg.CountryScopeID,
			SignInHoldingRoute:       cfg.SignInHoldingRoute,
			RegistrationHoldingRoute: cfg.RegistrationHoldingRoute,
			PostLogoutRoute:          cfg.PostLogoutRoute,
		}, authn.WithFederatedLogger(logger), authn.WithPostAuthRunning(func() bool {
			return runner != nil && runner.Running()
		}))
		if err != nil {
			return nil, nil, err
		}

		refresher := authn.NewFederatedRefresher(idp, store, service)
		transport := api.NewRefreshTransport(http.DefaultTransport, refresher, store.Tokens, func(ctx context.Context) {
			if err := service.Logout(ctx, authn.LogoutOptions{}); err != nil {
				logger.Error().Err(err).Msg("forced logout failed")
			}
		}, api.WithTransportLogger(logger))

		apiClient := api.NewClient(cfg.APIBaseURL, headers,
			api.WithHTTPClient(&http.Client{Transport: transport}),
			api.WithLogger(logger))
		_ = sso.NewNavigator(store, apiClient, cfg.BaseSSOURL, sso.WithNavigatorLogger(logger))

		runner, err = postauth.NewRunner(apiClient, store, headers, noopBootstrapper{}, nil, nil,
			cfg.BusinessGroupList(), postauth.WithRunnerLogger(logger))
		if err != nil {
			return nil, nil, err
		}

		expire := idle.NewExpiryHandler(service, navigate, cfg.ExpiredSessionRoute, cfg.LogoutRoute, logger)
		monitor := idle.NewFederatedMonitor(hub, cfg.Realm, cfg.FederatedIdleTimeout(), expire,
			idle.WithFederatedMonitorLogger(logger))
		monitor.Start()
		return service, monitor.Stop, nil

	default:
		// The bootstrapper, chat widget and cookie jar are owned by the
		// portal shell; the legacy backend only drives them.
		boot := noopBootstrapper{}

		apiClient := api.NewClient(cfg.APIBaseURL, headers, api.WithLogger(logger))
		service, err := authn.NewLegacyService(apiClient, store, boot, nil, nil, authn.LegacyConfig{
			Realm:          cfg.Realm,
			BusinessGroups: cfg.BusinessGroupList(),
			SSOCookieName:  cfg.SSOCookieName,
		}, authn.WithLegacyLogger(logger))
		if err != nil {
			return nil, nil, err
		}

		refresher := authn.NewLegacyRefresher(apiClient, store)
		transport := api.NewRefreshTransport(http.DefaultTransport, refresher, store.Tokens, func(ctx context.Context) {
			if err := service.Logout(ctx, authn.LogoutOptions{}); err != nil {
				logger.Error().Err(err).Msg("forced logout failed")
			}
		}, api.WithLogoutOnRefreshFailure(), api.WithTransportLogger(logger))

		// Requests from here on refresh-and-retry through the transport.
		wrapped := api.NewClient(cfg.APIBaseURL, headers,
			api.WithHTTPClient(&http.Client{Transport: transport}),
			api.WithLogger(logger))

		expire := idle.NewExpiryHandler(service, navigate, cfg.ExpiredSessionRoute, cfg.LogoutRoute, logger)
		monitor := idle.NewLegacyMonitor(wrapped, store, hub, cfg.Realm, cfg.LegacyIdleTimeout(), expire,
			idle.WithLegacyMonitorLogger(logger))
		monitor.Start()
		return service, monitor.Stop, nil
	}
}

// noopBootstrapper stands in for the portal shell's journey, access-key
// and retirement-context initialisers when the binary runs standalone.
type noopBootstrapper struct{}

func (noopBootstrapper) InitJourneys(context.Context) error { return nil }
func (noopBootstrapper) FetchAccessKey(context.Context, authn.AccessKeyOptions) error {
	return nil
}
func (noopBootstrapper) HasAccessKey() bool                          { return true }
func (noopBootstrapper) FetchLinkedMembers(context.Context) error    { return nil }
func (noopBootstrapper) SchemeType() string                          { return "" }
func (noopBootstrapper) InitRetirementContext(context.Context) error { return nil }

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
