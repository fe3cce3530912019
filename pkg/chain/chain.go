// Package chain defines the external collaborator supplying the height
// counter and the bounded-retention stream of per-height random values.
package chain

import "errors"

// RetentionWindow is the number of trailing heights for which a random
// value can still be retrieved.
const RetentionWindow = 256

var ErrValueUnavailable = errors.New("chain: random value unavailable")

type Chain interface {
	// CurrentHeight returns the latest sealed height (the chain tip).
	CurrentHeight() uint64
	// RandomValueAt returns the unpredictable 256-bit value revealed at the
	// given height. Only the most recent RetentionWindow heights are
	// retrievable; anything older or not yet sealed yields
	// ErrValueUnavailable.
	RandomValueAt(height uint64) ([32]byte, error)
}
