// Package session defines the tab-scoped session storage contracts: the
// access/refresh token pair, the single-auth session data and the realm
// recorded at token persistence time.
package session

// TokenPair holds the tokens issued by an identity backend. The legacy
// backend requires both tokens together; the federated backend stores only
// its id token as AccessToken and refreshes via silent re-authentication.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// MemberRecord is one row of a multi-account user's linkable accounts.
type MemberRecord struct {
	BusinessGroup   string `json:"bgroup"`
	ReferenceNumber string `json:"refno"`
	RecordNumber    int    `json:"recno"`
}

// Data is the single-auth session data persisted after a federated
// redirect return. PrimaryBgroup/PrimaryRefno identify the authenticated
// account; LinkedBgroup/LinkedRefno identify the currently active linked
// account and equal the primary pair unless a link-switch occurred.
type Data struct {
	NextURL            string        `json:"nextUrl"`
	PolicyID           string        `json:"policyId"`
	PrimaryBgroup      string        `json:"primaryBgroup"`
	PrimaryRefno       string        `json:"primaryRefno"`
	LinkedBgroup       string        `json:"linkedBgroup"`
	LinkedRefno        string        `json:"linkedRefno"`
	AuthGUID           string        `json:"authGuid"`
	MemberRecord       *MemberRecord `json:"memberRecord,omitempty"`
	IsNewAccount       bool          `json:"isNewAccount,omitempty"`
	HasMultipleRecords bool          `json:"hasMultipleRecords,omitempty"`
	RegistrationCode   string        `json:"registrationCode,omitempty"`
	IsAdmin            bool          `json:"isAdmin,omitempty"`
}
