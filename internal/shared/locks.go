package shared

import (
	"fmt"
	"sort"
	"sync"
)

// SaleLockKey builds the critical-section key for one sale.
func SaleLockKey(saleID int64) string {
	return fmt.Sprintf("sale:%d:lock", saleID)
}

// ProductLockKey builds the critical-section key for one product's stock.
func ProductLockKey(productID int64) string {
	return fmt.Sprintf("product:%d:lock", productID)
}

// CustomerLockKey builds the critical-section key for one customer's totals.
func CustomerLockKey(customerID int64) string {
	return fmt.Sprintf("customer:%d:lock", customerID)
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes work per key. The store underneath is a single-writer
// whole-file store, so mutating ledger operations must not interleave between
// their read and write steps; callers lock the sale key plus the product keys
// of every affected item for the duration of one operation.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires every key in sorted order and returns the paired unlock.
// Sorting gives a global acquisition order so two operations touching
// overlapping key sets cannot deadlock.
func (k *KeyedMutex) Lock(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, key)
	}
	sort.Strings(uniq)

	acquired := make([]*keyLock, 0, len(uniq))
	for _, key := range uniq {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		acquired = append(acquired, l)
	}

	names := uniq
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].mu.Unlock()
			k.mu.Lock()
			l := acquired[i]
			l.refs--
			if l.refs == 0 {
				delete(k.locks, names[i])
			}
			k.mu.Unlock()
		}
	}
}
