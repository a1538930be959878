package llms

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey = errors.New("api key required")
	ErrEmptyResponse = errors.New("model returned no content")
)

// APIError is a non-2xx response from a model provider.
type APIError struct {
	StatusCode int
	Message    string
	Provider   string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: API error %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) IsRateLimited() bool { return e.StatusCode == 429 }

func (e *APIError) IsAuthError() bool { return e.StatusCode == 401 || e.StatusCode == 403 }
