// Package simchain provides a deterministic in-process chain: every sealed
// height carries a Keccak-256 value derived from the genesis seed, so any
// observer holding the seed can recompute the full random-value stream.
package simchain

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/BrianLudlam/block-racer/pkg/chain"
)

type SimChain struct {
	mu      sync.RWMutex
	genesis [32]byte
	tip     uint64
}

func New(genesis [32]byte) *SimChain {
	return &SimChain{genesis: genesis}
}

func (c *SimChain) CurrentHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

func (c *SimChain) RandomValueAt(height uint64) ([32]byte, error) {
	c.mu.RLock()
	tip := c.tip
	c.mu.RUnlock()
	if height == 0 || height > tip || tip-height >= chain.RetentionWindow {
		return [32]byte{}, chain.ErrValueUnavailable
	}
	return c.valueAt(height), nil
}

// Advance seals n new heights and returns the new tip.
func (c *SimChain) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tip += n
	return c.tip
}

// Run seals one height per interval until the context is done.
func (c *SimChain) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Advance(1)
		}
	}
}

func (c *SimChain) valueAt(height uint64) [32]byte {
	return Derive(c.genesis, height)
}

// Derive recomputes the random value a chain with the given genesis seals at
// a height. Exported so off-system replays can regenerate the full stream
// without a live chain.
func Derive(genesis [32]byte, height uint64) [32]byte {
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], height)
	h := sha3.NewLegacyKeccak256()
	h.Write(genesis[:])
	h.Write(hb[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
