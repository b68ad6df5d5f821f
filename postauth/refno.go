package postauth

// RefnoParams are the stored session values feeding the effective
// reference number computation.
type RefnoParams struct {
	NextURL          string
	RegistrationCode string
	PrimaryRefno     string
	LinkedRefno      string
	IsAdmin          bool
}

// registrationCodePrefixLen is the business-group prefix of a
// registration code; the embedded reference number follows it.
const registrationCodePrefixLen = 3

// EffectiveRefno resolves which reference number to use for outbound
// headers and for the persisted primary/linked pair. isLinked selects the
// "linked" computation over the "primary" one.
//
// The admin override applies only to the linked computation; the primary
// computation ignores IsAdmin. That asymmetry matches the live behaviour
// and is kept as-is pending product confirmation.
func EffectiveRefno(p RefnoParams, apiRefno string, isLinked bool) string {
	if len(p.RegistrationCode) > registrationCodePrefixLen {
		return p.RegistrationCode[registrationCodePrefixLen:]
	}

	// Without a deep link the API's answer is authoritative; stored
	// values are ignored.
	if p.NextURL == "" {
		return apiRefno
	}

	if isLinked {
		if p.IsAdmin {
			if p.PrimaryRefno != "" {
				return p.PrimaryRefno
			}
			return apiRefno
		}
		if p.LinkedRefno != "" {
			return p.LinkedRefno
		}
		if p.PrimaryRefno != "" {
			return p.PrimaryRefno
		}
		return apiRefno
	}

	if p.PrimaryRefno != "" {
		return p.PrimaryRefno
	}
	return apiRefno
}
