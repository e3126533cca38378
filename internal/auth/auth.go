package auth

import (
	"net/http"

	"go.uber.org/zap"
)

// Authenticator guards a set of routes as a middleware.
type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

// NewAuthenticator selects the authenticator for the configured API key. An
// empty key disables authentication, which is loud in the log on purpose.
func NewAuthenticator(apiKey string) (Authenticator, error) {
	if apiKey == "" {
		zap.S().Named("auth").Warn("api key is empty, authentication disabled")
		return NewNoneAuthenticator()
	}
	return NewKeyAuthenticator(apiKey)
}
