// Package pending stages gateway checkouts between payment initiation and verification.
package pending

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/easy-khana/api/internal/domain"
)

// DefaultTTL bounds how long a staged checkout can be verified.
const DefaultTTL = 30 * time.Minute

var (
	// ErrNotFound is returned by Take when the entry is missing, already consumed, or expired.
	ErrNotFound = errors.New("pending: payment not found")
	// ErrInvalidKey is returned for blank transaction ids.
	ErrInvalidKey = errors.New("pending: transaction id required")
	// ErrNotOwner is returned by Take when the entry was staged by another user. The entry is
	// left in place.
	ErrNotOwner = errors.New("pending: payment staged by another user")
)

// Store persists staged checkouts keyed by gateway transaction id.
type Store interface {
	// Put stages entry, replacing any earlier entry with the same key.
	Put(ctx context.Context, entry domain.PendingPayment) error
	// Take atomically removes and returns the entry staged by owner. Exactly one concurrent
	// caller wins. An empty owner skips the ownership check.
	Take(ctx context.Context, transactionID, owner string, now time.Time) (domain.PendingPayment, error)
	// SweepExpired deletes up to limit entries whose expiry is at or before now.
	SweepExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func normaliseKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	return key, nil
}

func ownedBy(entry domain.PendingPayment, owner string) bool {
	owner = strings.TrimSpace(owner)
	return owner == "" || owner == entry.UserID
}

func expired(entry domain.PendingPayment, now time.Time) bool {
	return !entry.ExpiresAt.IsZero() && !now.Before(entry.ExpiresAt)
}
