package api

import (
	"strings"
	"sync"

	"github.com/pensionhub/go-portal-auth/session"
)

// Header names understood by the member API.
const (
	headerBusinessGroup   = "X-Business-Group"
	headerReferenceNumber = "X-Reference-Number"
)

// Headers are the auth-relevant headers attached to one outbound request.
// They are computed from current session state per request rather than
// mutated on a shared client.
type Headers struct {
	AccessToken     string
	BusinessGroup   string
	ReferenceNumber string
}

// HeaderSource yields the headers for the request about to be sent.
type HeaderSource interface {
	RequestHeaders() Headers
}

// SessionHeaders derives request headers from the session store, with
// explicit overrides set during post-authentication processing. The
// business group falls back to the tenant's configured set, then to the
// active linked account; the reference number falls back to the active
// linked account.
type SessionHeaders struct {
	mu              sync.RWMutex
	store           session.Repo
	tenantGroups    []string
	businessGroup   string
	referenceNumber string
}

var _ HeaderSource = (*SessionHeaders)(nil)

// NewSessionHeaders builds a header source over the given store seeded
// with the tenant's configured business groups.
func NewSessionHeaders(store session.Repo, tenantGroups []string) *SessionHeaders {
	return &SessionHeaders{store: store, tenantGroups: tenantGroups}
}

// SetBusinessGroup overrides the business-group header.
func (h *SessionHeaders) SetBusinessGroup(bgroup string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.businessGroup = bgroup
}

// SetReferenceNumber overrides the reference-number header.
func (h *SessionHeaders) SetReferenceNumber(refno string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.referenceNumber = refno
}

// Reset drops the explicit overrides, e.g. on logout.
func (h *SessionHeaders) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.businessGroup = ""
	h.referenceNumber = ""
}

func (h *SessionHeaders) RequestHeaders() Headers {
	h.mu.RLock()
	defer h.mu.RUnlock()

	headers := Headers{
		BusinessGroup:   h.businessGroup,
		ReferenceNumber: h.referenceNumber,
	}
	if pair := h.store.Tokens(); pair != nil {
		headers.AccessToken = pair.AccessToken
	}
	data := h.store.Data()
	if headers.BusinessGroup == "" && data != nil {
		headers.BusinessGroup = data.LinkedBgroup
	}
	if headers.BusinessGroup == "" && len(h.tenantGroups) > 0 {
		headers.BusinessGroup = strings.Join(h.tenantGroups, ",")
	}
	if headers.ReferenceNumber == "" && data != nil {
		headers.ReferenceNumber = data.LinkedRefno
	}
	return headers
}
