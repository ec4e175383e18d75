package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
)

// MarketAuthError represents a rejected marketplace credential (expired token,
// revoked consent, missing scope). Callers use it to start a reconnect flow;
// it is kept distinct from generic "unavailable" failures.
type MarketAuthError struct {
	Message    string
	StatusCode int
	APIMessage string // Error message from the marketplace API if available
}

func (e *MarketAuthError) Error() string {
	if e.APIMessage != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Message, e.StatusCode, e.APIMessage)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// NewMarketAuthError creates a new marketplace authorization error
func NewMarketAuthError(statusCode int, apiMessage string) *MarketAuthError {
	var message string
	apiLower := strings.ToLower(apiMessage)

	switch statusCode {
	case 401:
		if strings.Contains(apiLower, "expired") {
			message = "Marketplace access token expired"
		} else {
			message = "Marketplace credentials rejected"
		}
	case 403:
		message = "Marketplace access forbidden - reconnect the account"
	default:
		message = "Marketplace authorization error"
	}

	return &MarketAuthError{
		Message:    message,
		StatusCode: statusCode,
		APIMessage: apiMessage,
	}
}

// IsMarketAuthError checks if error is a MarketAuthError
func IsMarketAuthError(err error) bool {
	var authErr *MarketAuthError
	return stdErrors.As(err, &authErr)
}
