package idle

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pensionhub/go-portal-auth/authn"
)

// Monitor watches for user inactivity. Both variants share this shape.
type Monitor interface {
	Start()
	Stop()
}

// ExpireFunc is invoked when the session is considered expired.
type ExpireFunc func()

// NewExpiryHandler builds the expiry callback both monitors use: log the
// user out, then route to the configured expired-session destination,
// falling back to the generic logout route when none is configured.
func NewExpiryHandler(svc authn.Service, navigate authn.Navigate, expiredRoute, logoutRoute string, log zerolog.Logger) ExpireFunc {
	return func() {
		if err := svc.Logout(context.Background(), authn.LogoutOptions{}); err != nil {
			log.Error().Err(err).Msg("logout on session expiry failed")
		}
		dest := expiredRoute
		if dest == "" {
			log.Warn().Msg("no expired-session destination configured, falling back to logout route")
			dest = logoutRoute
		}
		navigate(dest)
	}
}
