// Package basedata provides shared fixtures for tests that need a populated
// racer registry.
package basedata

import (
	"fmt"

	"github.com/BrianLudlam/block-racer/pkg/registry"
)

// Genes builds a gene array with the three stat potentials (acceleration,
// top-speed, traction) in the leading bytes.
func Genes(accel, top, traction uint8) [32]byte {
	var g [32]byte
	g[0], g[1], g[2] = accel, top, traction
	return g
}

// Owner returns a deterministic account address for an index.
func Owner(i int) string {
	return fmt.Sprintf("0xac%04d", i)
}

// MintRacers mints n racers with identical mid-range potentials, each to its
// own owner, and returns the owners and racer ids in matching order.
func MintRacers(reg *registry.MemRegistry, n int) (owners []string, racers []uint64) {
	for i := 0; i < n; i++ {
		owner := Owner(i)
		owners = append(owners, owner)
		racers = append(racers, reg.Mint(owner, Genes(50, 60, 40)))
	}
	return owners, racers
}
