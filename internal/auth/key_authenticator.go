package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// APIKeyHeader carries the shared secret on guarded endpoints.
const APIKeyHeader = "X-Api-Key"

// KeyAuthenticator checks the shared-secret header in constant time.
type KeyAuthenticator struct {
	key string
}

func NewKeyAuthenticator(key string) (*KeyAuthenticator, error) {
	if key == "" {
		return nil, errors.New("empty api key")
	}
	return &KeyAuthenticator{key: key}, nil
}

func (a *KeyAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(a.key)) != 1 {
			zap.S().Named("auth").Warnw("unauthorized api key attempt", "ip", r.RemoteAddr, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
