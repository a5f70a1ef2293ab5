package database

import (
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate adds a SELECT ... FOR UPDATE clause to the query. It must be used
// inside a transaction. Dialects without row locks (SQLite) ignore the clause
// and rely on their database-level write lock instead.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// CompareAndSwap applies updates to the row of model identified by id only if
// the row still matches guard. It reports whether the row was swapped. A false
// result with a nil error means another writer got there first or the row
// does not exist.
func CompareAndSwap(tx *gorm.DB, model interface{}, id string, guard map[string]interface{}, updates map[string]interface{}) (bool, error) {
	q := tx.Model(model).Where("id = ?", id)
	for col, val := range guard {
		q = q.Where(col+" = ?", val)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// KeyedLocker hands out one mutex per key, e.g. per user ID, so that
// operations on different keys proceed in parallel while operations on the
// same key are serialized within this process. Idle entries are released.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker creates an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key and returns the function that releases it.
func (k *KeyedLocker) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently held or waited on.
func (k *KeyedLocker) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
