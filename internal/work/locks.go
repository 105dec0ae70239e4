package work

import "sync"

// AccountLocks hands out one mutex per account.
// Mutexes are created on first use and never removed, so memory grows with
// the number of distinct accounts seen by the process.
type AccountLocks struct {
	locks sync.Map // account id -> *sync.Mutex
}

// NewAccountLocks creates an empty lock registry
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{}
}

// Lock blocks until the account's lock is held and returns the unlock function
func (l *AccountLocks) Lock(accountID string) func() {
	v, _ := l.locks.LoadOrStore(accountID, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Len returns the number of accounts with a lock
func (l *AccountLocks) Len() int {
	n := 0
	l.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
