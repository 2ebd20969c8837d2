// Package store persists held credentials. Every backend enforces id
// uniqueness itself and reports absence with sentinel.ErrNotFound and id
// collisions with sentinel.ErrConflict.
package store

import (
	"context"
	"time"

	"certwallet/pkg/requestcontext"
)

func now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC()
}
