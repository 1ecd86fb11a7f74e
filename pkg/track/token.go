package track

import (
	"strings"

	"github.com/google/uuid"
)

const tokenPrefix = "TRK-"

// NewTrackingToken mints a URL-safe public tracking token, e.g.
// "TRK-7A8B9C2D". The token is independent of the order's internal ID
// so links can be shared without exposing it.
func NewTrackingToken() string {
	id := uuid.NewString()
	return tokenPrefix + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}

// IsTrackingToken reports whether s looks like a minted tracking token.
func IsTrackingToken(s string) bool {
	return strings.HasPrefix(s, tokenPrefix) && len(s) > len(tokenPrefix)
}
