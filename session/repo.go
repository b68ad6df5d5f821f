package session

import "time"

// Repo persists tokens, realm, single-auth session data and the idle
// keep-alive timestamp for one browser tab. Implementations must destroy
// everything together on Clear: tokens and session data are never
// partially cleared.
type Repo interface {
	// Tokens returns the stored token pair, or nil when none is stored.
	Tokens() *TokenPair
	SetTokens(*TokenPair)

	// Realm returns the realm recorded when tokens were persisted.
	Realm() string
	SetRealm(realm string)

	// Data returns the single-auth session data, or nil when absent.
	Data() *Data
	SetData(*Data)

	// LastKeepAlive returns the zero time when no keep-alive was recorded.
	LastKeepAlive() time.Time
	SetLastKeepAlive(at time.Time)

	// Clear wipes tokens, realm, session data and timer state atomically.
	Clear()
}
