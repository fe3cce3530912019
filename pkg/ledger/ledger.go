// Package ledger holds the currency balances credited by the race engine.
// Wallet management proper is out of scope; this is the narrow sink the
// reward/fee distributor pays into.
package ledger

import "sync"

// MemLedger is an in-memory account book. All amounts are integral units
// (1 unit = 10⁻³ native token).
type MemLedger struct {
	mu       sync.RWMutex
	balances map[string]uint64
}

func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[string]uint64)}
}

func (l *MemLedger) Credit(owner string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[owner] += amount
}

func (l *MemLedger) BalanceOf(owner string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[owner]
}

// Total returns the sum of all balances, used by conservation checks.
func (l *MemLedger) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum uint64
	for _, v := range l.balances {
		sum += v
	}
	return sum
}
