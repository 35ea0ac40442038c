// Package locking provides exclusive locks scoped to logical ledger keys.
//
// Two implementations exist: an in-process keyed mutex (single-binary
// deployments, the default) and a redislock-backed locker for multi-process
// deployments. Callers must acquire multiple keys in canonical order,
// customer lock before customer+variant lock with the sale-ref guard last,
// so that every code path climbs the same lock hierarchy.
package locking

import (
	"context"
	"fmt"
)

// ReleaseFunc releases a held lock. Safe to call exactly once.
type ReleaseFunc func()

// Locker hands out exclusive locks on logical keys with a bounded wait.
// Exceeding the wait surfaces apperrors.ErrLockTimeout.
type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// CustomerKey guards the read-latest-due -> compute -> write sequence,
// which spans all of a customer's variants.
func CustomerKey(customerID int64) string {
	return fmt.Sprintf("ledger:customer:%d", customerID)
}

// CustomerVariantKey guards the cylinder-balance chain of one
// (customer, variant) pair.
func CustomerVariantKey(customerID int64, variantID int32) string {
	return fmt.Sprintf("ledger:customer:%d:variant:%d", customerID, variantID)
}

// SaleRefKey closes the check-then-insert race for duplicate SALE refs.
func SaleRefKey(customerID int64, variantID int32, refID int64) string {
	return fmt.Sprintf("ledger:saleref:%d:%d:%d", customerID, variantID, refID)
}

// AcquireInOrder takes the given keys sequentially and returns a single
// release that unwinds them in reverse. On any failure the keys already
// held are released before the error is returned.
func AcquireInOrder(ctx context.Context, locker Locker, keys ...string) (ReleaseFunc, error) {
	releases := make([]ReleaseFunc, 0, len(keys))
	for _, key := range keys {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			for i := len(releases) - 1; i >= 0; i-- {
				releases[i]()
			}
			return nil, err
		}
		releases = append(releases, release)
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}, nil
}
