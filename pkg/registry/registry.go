// Package registry defines the external non-fungible-token collaborator
// resolving racer ids to owners and immutable gene arrays.
package registry

import (
	"errors"
	"sync"
)

var ErrUnknownToken = errors.New("registry: unknown token")

type Registry interface {
	// OwnerOf resolves the current owner of a racer token.
	OwnerOf(id uint64) (string, error)
	// GenesOf returns the token's immutable 32-byte gene array. The first
	// three genes bound acceleration, top-speed and traction potential.
	GenesOf(id uint64) ([32]byte, error)
}

type entry struct {
	owner string
	genes [32]byte
}

// MemRegistry is an in-memory Registry used by the server and tests.
type MemRegistry struct {
	mu     sync.RWMutex
	nextID uint64
	tokens map[uint64]*entry
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{nextID: 1, tokens: make(map[uint64]*entry)}
}

// Mint registers a new token and returns its id.
func (r *MemRegistry) Mint(owner string, genes [32]byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.tokens[id] = &entry{owner: owner, genes: genes}
	return id
}

// Transfer reassigns ownership of a token.
func (r *MemRegistry) Transfer(id uint64, newOwner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tokens[id]
	if !ok {
		return ErrUnknownToken
	}
	e.owner = newOwner
	return nil
}

func (r *MemRegistry) OwnerOf(id uint64) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tokens[id]
	if !ok {
		return "", ErrUnknownToken
	}
	return e.owner, nil
}

func (r *MemRegistry) GenesOf(id uint64) ([32]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tokens[id]
	if !ok {
		return [32]byte{}, ErrUnknownToken
	}
	return e.genes, nil
}
