package racing

import (
	"encoding/hex"
	"sync"

	"github.com/samber/lo"

	"github.com/BrianLudlam/block-racer/log"
	"github.com/BrianLudlam/block-racer/pkg/chain"
	"github.com/BrianLudlam/block-racer/pkg/registry"
)

// Ledger receives every currency payout the engine makes: overpayment
// refunds, exit refunds, placement rewards, settlement rewards and
// expiration refunds.
type Ledger interface {
	Credit(owner string, amount uint64)
}

// state is the single shared store. It is owned by the engine's command
// loop; nothing outside the loop mutates it.
type state struct {
	races         map[uint64]*Race
	nextRaceID    uint64
	forming       map[int]uint64 // level -> race currently filling
	settling      []uint64       // races mid-settlement, oldest first
	racers        map[uint64]*RacerState
	experience    map[string]uint64
	lastCondition uint8
}

func newState() *state {
	return &state{
		races:         make(map[uint64]*Race),
		nextRaceID:    1,
		forming:       make(map[int]uint64),
		racers:        make(map[uint64]*RacerState),
		experience:    make(map[string]uint64),
		lastCondition: 128,
	}
}

func (s *state) removeSettling(raceID uint64) {
	for i, id := range s.settling {
		if id == raceID {
			last := len(s.settling) - 1
			s.settling[i] = s.settling[last]
			s.settling = s.settling[:last]
			return
		}
	}
}

// Engine runs the race lifecycle against one shared state store. Every
// mutating command executes as a single indivisible step on the command
// loop; read-only queries run concurrently against the stable state
// between writer steps.
type Engine struct {
	chain    chain.Chain
	registry registry.Registry
	ledger   Ledger
	sink     func(Event)
	l        *log.Logger

	mu   sync.RWMutex
	st   *state
	cmds chan func()
	done chan struct{}
}

type Option func(*Engine)

// WithEventSink installs a callback invoked synchronously for every event
// the engine emits.
func WithEventSink(sink func(Event)) Option {
	return func(e *Engine) { e.sink = sink }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.l = l }
}

func NewEngine(c chain.Chain, reg registry.Registry, led Ledger, opts ...Option) *Engine {
	e := &Engine{
		chain:    c,
		registry: reg,
		ledger:   led,
		sink:     func(Event) {},
		l:        log.Default().Named("racing"),
		st:       newState(),
		cmds:     make(chan func()),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.loop()
	return e
}

// Close stops the command loop. Pending commands are drained first.
func (e *Engine) Close() {
	close(e.cmds)
	<-e.done
}

func (e *Engine) loop() {
	defer close(e.done)
	for cmd := range e.cmds {
		cmd()
	}
}

// exec runs fn on the command loop with the write lock held, so queries
// observe either the state before or after the command, never a partial
// mutation.
func exec[T any](e *Engine, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	reply := make(chan result, 1)
	e.cmds <- func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		v, err := fn()
		reply <- result{v, err}
	}
	r := <-reply
	return r.v, r.err
}

func (e *Engine) emit(ev Event) {
	e.sink(ev)
}

// racerState returns the engine-owned state for a racer, creating it with
// the registry's gene array on first contact.
func (e *Engine) racerState(racerID uint64) (*RacerState, error) {
	if rs, ok := e.st.racers[racerID]; ok {
		return rs, nil
	}
	genes, err := e.registry.GenesOf(racerID)
	if err != nil {
		return nil, ErrNotOwner
	}
	rs := &RacerState{Genes: genes}
	e.st.racers[racerID] = rs
	return rs, nil
}

func (e *Engine) addExperience(owner string, amount uint64) {
	cur := e.st.experience[owner]
	if cur > MaxExperience-amount {
		e.st.experience[owner] = MaxExperience
		return
	}
	e.st.experience[owner] = cur + amount
}

// --- queries ---

func (e *Engine) RaceSnapshot(id uint64) (RaceSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.st.races[id]
	if !ok {
		return RaceSnapshot{}, ErrNotFound
	}
	snap := RaceSnapshot{
		ID:           r.ID,
		Level:        r.Level,
		StartHeight:  r.StartHeight,
		Distance:     r.Distance,
		Condition:    r.Condition,
		LanesReady:   r.LanesReady,
		LanesSettled: r.LanesSettled,
		Settled:      r.Settled,
		Refunded:     r.Refunded,
		Racers: lo.Map(r.Lanes[:r.LanesReady], func(l Lane, _ int) uint64 {
			return l.RacerID
		}),
	}
	if r.Settled && !r.Refunded {
		snap.FinishOrder = r.FinishOrder[:]
	}
	return snap, nil
}

func (e *Engine) LaneSnapshot(raceID uint64, lane uint8) (LaneSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.st.races[raceID]
	if !ok || lane < 1 || lane > r.LanesReady {
		return LaneSnapshot{}, ErrNotFound
	}
	l := r.Lanes[lane-1]
	return LaneSnapshot{
		Lane:     lane,
		RacerID:  l.RacerID,
		Owner:    l.Owner,
		Seed:     hexSeed(l.Seed),
		Speed:    l.Speed,
		Max:      l.Max,
		Distance: l.Distance,
		Split:    l.Split,
		Exp:      l.Exp,
		Settled:  l.Settled,
	}, nil
}

func (e *Engine) RacerSnapshot(racerID uint64) (RacerSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rs, ok := e.st.racers[racerID]
	if !ok {
		return RacerSnapshot{}, ErrNotFound
	}
	owner, _ := e.registry.OwnerOf(racerID)
	return RacerSnapshot{
		RacerID:  racerID,
		Owner:    owner,
		Stats:    rs.Stats,
		Status:   rs.Status.String(),
		LastRace: rs.RaceID,
		Level:    rs.Level(),
	}, nil
}

// QueueDepth reports how many lanes are seated in the level's forming race.
func (e *Engine) QueueDepth(level int) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id := e.st.forming[level]
	if id == 0 {
		return 0
	}
	return int(e.st.races[id].LanesReady)
}

// SettlingCount reports how many races are currently mid-settlement.
func (e *Engine) SettlingCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.st.settling)
}

func (e *Engine) ExperienceOf(owner string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.experience[owner]
}

func hexSeed(seed [32]byte) string {
	return hex.EncodeToString(seed[:])
}
