package mailferry

import (
	"errors"

	"google.golang.org/api/googleapi"
)

// Reasons Gmail attaches to 403 responses that really mean "slow down".
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

// IsTransient reports whether err is worth retrying: a rate-limit
// rejection or a server-side failure. Anything else is terminal for
// the item that triggered it.
func IsTransient(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.Code == 429:
		return true
	case apiErr.Code >= 500:
		return true
	case apiErr.Code == 403:
		for _, e := range apiErr.Errors {
			if rateLimitReasons[e.Reason] {
				return true
			}
		}
	}
	return false
}
