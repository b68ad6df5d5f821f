// Package token decodes bearer tokens into typed claims. Tokens are
// parsed without signature verification; signature checks are delegated
// to the upstream API.
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// AdminUserIDType marks an administrative/proxy user.
const AdminUserIDType = "A"

// Claims are the business-relevant claims carried by an access or id
// token. Legacy tokens carry ExpiresAt and SessionID; federated id tokens
// carry the subject/policy/target-url set.
type Claims struct {
	ExpiresAt        int64  // epoch seconds
	SessionID        string
	Subject          string // stable user guid
	Policy           string // authentication journey, lower-cased
	ExternalID       string // present only on first-time federated accounts
	TargetURL        string // deep link requested before auth
	RegistrationCode string // business-group-prefixed reference number
	UserIDType       string // single character; "A" denotes an admin user
}

// Decode parses a raw bearer token without verifying its signature.
func Decode(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("[token.Decode] empty token")
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "[token.Decode] parse")
	}

	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("[token.Decode] error extracting claims")
	}

	exp, _ := mapClaims["exp"].(float64)
	sessionID, _ := mapClaims["session_id"].(string)
	sub, _ := mapClaims["sub"].(string)
	externalID, _ := mapClaims["externalId"].(string)
	targetURL, _ := mapClaims["targetUrl"].(string)
	registrationCode, _ := mapClaims["registrationCode"].(string)
	userIDType, _ := mapClaims["userIdType"].(string)

	// Azure-style providers report the journey as tfp, older ones as acr.
	policy, _ := mapClaims["tfp"].(string)
	if policy == "" {
		policy, _ = mapClaims["acr"].(string)
	}

	return &Claims{
		ExpiresAt:        int64(exp),
		SessionID:        sessionID,
		Subject:          sub,
		Policy:           strings.ToLower(policy),
		ExternalID:       externalID,
		TargetURL:        targetURL,
		RegistrationCode: registrationCode,
		UserIDType:       userIDType,
	}, nil
}

// Expired reports whether the token expiry has passed at the given time.
// Tokens without an exp claim are treated as expired.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == 0 {
		return true
	}
	return now.Unix() > c.ExpiresAt
}

// IsAdmin reports whether the token belongs to an administrative user.
func (c *Claims) IsAdmin() bool {
	return c.UserIDType == AdminUserIDType
}
