package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// PrincipalRateLimitKey scopes the request counter to an authenticated principal.
func PrincipalRateLimitKey(principalID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:principal:%s", principalID)
}

// LoginRateLimitKey scopes login attempts to the client address.
func LoginRateLimitKey(remoteAddr string) string {
	return fmt.Sprintf("ratelimit:login:%s", remoteAddr)
}
