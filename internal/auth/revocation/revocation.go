// Package revocation keeps the list of API bearer tokens that were revoked
// before their expiry. Entries live until the token would have expired.
package revocation

import (
	"fmt"
	"time"

	"certwallet/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}
