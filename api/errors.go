package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error codes returned by the member API on 401 responses. Expired access
// tokens are refresh-eligible; invalid ones force a logout. Any other 401
// body is passed through unmodified to the caller.
const (
	CodeAccessTokenExpired = "ERROR_ACCESS_TOKEN_EXPIRED"
	CodeInvalidAccessToken = "ERROR_INVALID_ACCESS_TOKEN"
)

// Error is a non-2xx response from the member API.
type Error struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// AsError unwraps err into an *Error when one is present in its chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
