package racing

import (
	"encoding/hex"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianLudlam/block-racer/pkg/chain/simchain"
	"github.com/BrianLudlam/block-racer/pkg/ledger"
	"github.com/BrianLudlam/block-racer/pkg/registry"
	"github.com/BrianLudlam/block-racer/testsupport/basedata"
)

const settler = "0xsettler"

type fixture struct {
	chain  *simchain.SimChain
	reg    *registry.MemRegistry
	led    *ledger.MemLedger
	eng    *Engine
	events []Event

	owners []string
	racers []uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		chain: simchain.New([32]byte{0xb1, 0x0c, 0x4a}),
		reg:   registry.NewMemRegistry(),
		led:   ledger.NewMemLedger(),
	}
	fx.chain.Advance(5)
	fx.eng = NewEngine(fx.chain, fx.reg, fx.led,
		WithEventSink(func(ev Event) { fx.events = append(fx.events, ev) }))
	t.Cleanup(fx.eng.Close)

	fx.owners, fx.racers = basedata.MintRacers(fx.reg, LanesPerRace)
	return fx
}

// fillRace seats all six fixture racers at exact cost and returns the race id.
func (fx *fixture) fillRace(t *testing.T) uint64 {
	t.Helper()
	for i, id := range fx.racers {
		refund, err := fx.eng.EnterQueue(fx.owners[i], id, EntryCost(0))
		require.NoError(t, err)
		require.Zero(t, refund)
	}
	started := fx.eventsOfKind("started")
	require.Len(t, started, 1)
	return started[len(started)-1].(StartedEvent).RaceID
}

func (fx *fixture) eventsOfKind(kind string) []Event {
	var out []Event
	for _, ev := range fx.events {
		if ev.EventKind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

// settleFully drives the full settlement sequence: six lane settles plus the
// finalization, all by the settler account.
func (fx *fixture) settleFully(t *testing.T, raceID uint64) {
	t.Helper()
	for i := 0; i < LanesPerRace+1; i++ {
		require.NoError(t, fx.eng.SettleRace(settler, raceID), "step %d", i)
	}
}

func TestEnterQueueFormsAndStartsRace(t *testing.T) {
	fx := newFixture(t)

	for i := 0; i < 5; i++ {
		_, err := fx.eng.EnterQueue(fx.owners[i], fx.racers[i], EntryCost(0))
		require.NoError(t, err)
		assert.Equal(t, i+1, fx.eng.QueueDepth(0))
	}
	snap, err := fx.eng.RaceSnapshot(1)
	require.NoError(t, err)
	assert.Zero(t, snap.StartHeight)
	assert.Equal(t, uint8(5), snap.LanesReady)
	assert.Empty(t, fx.eventsOfKind("started"))

	_, err = fx.eng.EnterQueue(fx.owners[5], fx.racers[5], EntryCost(0))
	require.NoError(t, err)

	snap, err = fx.eng.RaceSnapshot(1)
	require.NoError(t, err)
	assert.Equal(t, fx.chain.CurrentHeight()+StartDelay, snap.StartHeight)
	assert.Equal(t, RaceDistance(0), snap.Distance)
	assert.NotZero(t, snap.Condition)
	assert.Equal(t, fx.racers, snap.Racers)
	assert.Zero(t, fx.eng.QueueDepth(0), "forming pointer resets on start")

	assert.Len(t, fx.eventsOfKind("entered"), 6)
	started := fx.eventsOfKind("started")
	require.Len(t, started, 1)
	assert.Equal(t, snap.StartHeight, started[0].(StartedEvent).StartHeight)
}

func TestEnterQueueRefundsOverpayment(t *testing.T) {
	fx := newFixture(t)

	refund, err := fx.eng.EnterQueue(fx.owners[0], fx.racers[0], EntryCost(0)+7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), refund)
	assert.Equal(t, uint64(7), fx.led.BalanceOf(fx.owners[0]))
}

func TestEnterQueueValidation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.eng.EnterQueue("0xintruder", fx.racers[0], EntryCost(0))
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = fx.eng.EnterQueue(fx.owners[0], 999, EntryCost(0))
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = fx.eng.EnterQueue(fx.owners[0], fx.racers[0], EntryCost(0)-1)
	assert.ErrorIs(t, err, ErrInsufficientFee)

	_, err = fx.eng.EnterQueue(fx.owners[0], fx.racers[0], EntryCost(0))
	require.NoError(t, err)
	_, err = fx.eng.EnterQueue(fx.owners[0], fx.racers[0], EntryCost(0))
	assert.ErrorIs(t, err, ErrAlreadyRacing)
}

func TestExitQueueCompactsLanes(t *testing.T) {
	fx := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := fx.eng.EnterQueue(fx.owners[i], fx.racers[i], EntryCost(0))
		require.NoError(t, err)
	}
	rs, err := fx.eng.RacerSnapshot(fx.racers[1])
	require.NoError(t, err)
	assert.Equal(t, "queued", rs.Status)

	refund, err := fx.eng.ExitQueue(fx.owners[1], fx.racers[1])
	require.NoError(t, err)
	assert.Equal(t, EntryCost(0), refund)
	assert.Equal(t, EntryCost(0), fx.led.BalanceOf(fx.owners[1]))
	assert.Equal(t, 2, fx.eng.QueueDepth(0))

	// last lane moved into the vacated slot
	lane, err := fx.eng.LaneSnapshot(1, 2)
	require.NoError(t, err)
	assert.Equal(t, fx.racers[2], lane.RacerID)

	// exited racer is free to re-enter the same forming race
	_, err = fx.eng.EnterQueue(fx.owners[1], fx.racers[1], EntryCost(0))
	require.NoError(t, err)
	assert.Equal(t, 3, fx.eng.QueueDepth(0))
}

func TestExitQueueValidation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.eng.ExitQueue(fx.owners[0], fx.racers[0])
	assert.ErrorIs(t, err, ErrNotRacing)

	_, err = fx.eng.ExitQueue("0xintruder", fx.racers[0])
	assert.ErrorIs(t, err, ErrNotOwner)

	fx.fillRace(t)
	_, err = fx.eng.ExitQueue(fx.owners[0], fx.racers[0])
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestSettleRaceRequiresEligibleRace(t *testing.T) {
	fx := newFixture(t)

	// nothing exists yet
	err := fx.eng.SettleRace(settler, 1)
	assert.ErrorIs(t, err, ErrNoRaceToSettle)

	// forming race is not started
	_, err = fx.eng.EnterQueue(fx.owners[0], fx.racers[0], EntryCost(0))
	require.NoError(t, err)
	err = fx.eng.SettleRace(settler, 1)
	assert.ErrorIs(t, err, ErrNoRaceToSettle)

	// started race stays ineligible until the verification delay passes
	for i := 1; i < 6; i++ {
		_, err = fx.eng.EnterQueue(fx.owners[i], fx.racers[i], EntryCost(0))
		require.NoError(t, err)
	}
	err = fx.eng.SettleRace(settler, 1)
	assert.ErrorIs(t, err, ErrNoRaceToSettle)
}

func TestSettleRaceNotFinishedLeavesLaneUntouched(t *testing.T) {
	fx := newFixture(t)
	raceID := fx.fillRace(t)
	snap, err := fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)

	// advance exactly to the start height: one sealed block cannot cover
	// the race distance
	fx.chain.Advance(snap.StartHeight - fx.chain.CurrentHeight())
	err = fx.eng.SettleRace(settler, raceID)
	assert.ErrorIs(t, err, ErrRaceNotFinished)

	snap, err = fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)
	assert.Zero(t, snap.LanesSettled)
	assert.Zero(t, fx.eng.SettlingCount())
	assert.Zero(t, fx.led.BalanceOf(settler))
}

func TestSettleRaceFullLifecycle(t *testing.T) {
	fx := newFixture(t)
	raceID := fx.fillRace(t)
	snap, err := fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)

	fx.chain.Advance(snap.StartHeight + 45 - fx.chain.CurrentHeight())

	for i := 1; i <= LanesPerRace; i++ {
		require.NoError(t, fx.eng.SettleRace(settler, raceID))
		snap, err = fx.eng.RaceSnapshot(raceID)
		require.NoError(t, err)
		assert.Equal(t, uint8(i), snap.LanesSettled)
		assert.False(t, snap.Settled)
	}
	assert.Equal(t, 1, fx.eng.SettlingCount())

	require.NoError(t, fx.eng.SettleRace(settler, raceID))
	snap, err = fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)
	assert.True(t, snap.Settled)
	assert.False(t, snap.Refunded)
	require.Len(t, snap.FinishOrder, LanesPerRace)
	assert.Zero(t, fx.eng.SettlingCount())

	// every lane outcome must match an independent replay from public data
	replayed := make([]Lane, LanesPerRace)
	for i := 1; i <= LanesPerRace; i++ {
		lane, err := fx.eng.LaneSnapshot(raceID, uint8(i))
		require.NoError(t, err)
		require.True(t, lane.Settled)

		raw, err := hex.DecodeString(lane.Seed)
		require.NoError(t, err)
		var seed [32]byte
		copy(seed[:], raw)
		out, err := Progress(seed, lane.Speed, lane.Max,
			snap.StartHeight, snap.Distance, fx.chain.CurrentHeight(),
			fx.chain.RandomValueAt)
		require.NoError(t, err)
		require.True(t, out.Finished)
		assert.Equal(t, out.Distance, lane.Distance, "lane %d", i)
		assert.Equal(t, out.Split, lane.Split, "lane %d", i)
		replayed[i-1] = Lane{Split: out.Split, Distance: out.Distance}
	}
	want := Rank(replayed)
	assert.Empty(t, cmp.Diff(want[:], snap.FinishOrder))

	// settlement rewards: 1 first-lane + 5 lanes + finalize = the full pool
	assert.Equal(t, SettlementPool(), fx.led.BalanceOf(settler))

	// placement rewards reach the top three lane owners; entries were paid
	// at exact cost so each balance is the reward alone
	placementRewards := []uint64{FirstReward(0), SecondReward(0), ThirdReward(0)}
	for place, laneIdx := range want[:3] {
		lane, err := fx.eng.LaneSnapshot(raceID, laneIdx)
		require.NoError(t, err)
		assert.Equal(t, placementRewards[place], fx.led.BalanceOf(lane.Owner))
	}

	// conservation: everything paid in came back out
	assert.Equal(t, uint64(LanesPerRace)*EntryCost(0), fx.led.Total())

	// every owner earned experience
	for _, o := range fx.owners {
		exp := fx.eng.ExperienceOf(o)
		assert.GreaterOrEqual(t, exp, uint64(1))
		assert.LessOrEqual(t, exp, uint64(3))
	}

	// racers are free again once the race is settled
	rs, err := fx.eng.RacerSnapshot(fx.racers[0])
	require.NoError(t, err)
	assert.Equal(t, "idle", rs.Status)
	assert.Equal(t, raceID, rs.LastRace)
	_, err = fx.eng.EnterQueue(fx.owners[0], fx.racers[0], EntryCost(0))
	require.NoError(t, err)

	// the settled race is terminal
	err = fx.eng.SettleRace(settler, raceID)
	assert.ErrorIs(t, err, ErrNoRaceToSettle)
}

func TestSettleRaceReroutesToOldestSettling(t *testing.T) {
	fx := newFixture(t)
	raceID := fx.fillRace(t)
	snap, err := fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)
	fx.chain.Advance(snap.StartHeight + 45 - fx.chain.CurrentHeight())

	require.NoError(t, fx.eng.SettleRace(settler, raceID))
	assert.Equal(t, 1, fx.eng.SettlingCount())

	// a bogus hint now lands on the race mid-settlement
	require.NoError(t, fx.eng.SettleRace(settler, 999))
	snap, err = fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), snap.LanesSettled)
}

func TestSettleRaceRefundsExpired(t *testing.T) {
	fx := newFixture(t)
	raceID := fx.fillRace(t)
	snap, err := fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)

	fx.chain.Advance(snap.StartHeight + ExpiryWindow - fx.chain.CurrentHeight())
	require.NoError(t, fx.eng.SettleRace(settler, raceID))

	snap, err = fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)
	assert.True(t, snap.Settled)
	assert.True(t, snap.Refunded)
	assert.Empty(t, snap.FinishOrder)

	for _, o := range fx.owners {
		assert.Equal(t, RacingFee(0), fx.led.BalanceOf(o))
		assert.Zero(t, fx.eng.ExperienceOf(o))
	}
	assert.Equal(t, SettlementPool(), fx.led.BalanceOf(settler))
	assert.Equal(t, uint64(LanesPerRace)*EntryCost(0), fx.led.Total())

	refunded := fx.eventsOfKind("raceRefunded")
	require.Len(t, refunded, 1)
	assert.Equal(t, raceID, refunded[0].(RaceRefundedEvent).RaceID)
}

func TestSettleRaceRefundsExpiredAfterPartialSettlement(t *testing.T) {
	fx := newFixture(t)
	raceID := fx.fillRace(t)
	snap, err := fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)

	fx.chain.Advance(snap.StartHeight + 45 - fx.chain.CurrentHeight())
	require.NoError(t, fx.eng.SettleRace(settler, raceID))
	require.NoError(t, fx.eng.SettleRace(settler, raceID))
	paidSoFar := FirstLaneReward + LaneReward
	require.Equal(t, paidSoFar, fx.led.BalanceOf(settler))

	fx.chain.Advance(snap.StartHeight + ExpiryWindow - fx.chain.CurrentHeight())
	require.NoError(t, fx.eng.SettleRace(settler, raceID))

	// caller reward shrinks by the lane rewards already paid out, keeping
	// total payouts equal to total fees collected
	assert.Equal(t, SettlementPool(), fx.led.BalanceOf(settler))
	assert.Equal(t, uint64(LanesPerRace)*EntryCost(0), fx.led.Total())
	assert.Zero(t, fx.eng.SettlingCount())
}

func TestPayoutsFollowEntryTimeOwner(t *testing.T) {
	fx := newFixture(t)
	raceID := fx.fillRace(t)
	snap, err := fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)

	// transferring the token mid-race must not redirect the lane payout
	require.NoError(t, fx.reg.Transfer(fx.racers[0], "0xnewowner"))

	fx.chain.Advance(snap.StartHeight + ExpiryWindow - fx.chain.CurrentHeight())
	require.NoError(t, fx.eng.SettleRace(settler, raceID))

	assert.Equal(t, RacingFee(0), fx.led.BalanceOf(fx.owners[0]))
	assert.Zero(t, fx.led.BalanceOf("0xnewowner"))
}

func TestTrain(t *testing.T) {
	fx := newFixture(t)
	raceID := fx.fillRace(t)
	snap, err := fx.eng.RaceSnapshot(raceID)
	require.NoError(t, err)
	fx.chain.Advance(snap.StartHeight + 45 - fx.chain.CurrentHeight())
	fx.settleFully(t, raceID)

	owner, racer := fx.owners[0], fx.racers[0]
	expBefore := fx.eng.ExperienceOf(owner)
	require.GreaterOrEqual(t, expBefore, uint64(1))

	require.NoError(t, fx.eng.Train(owner, racer, [3]uint8{1, 0, 0}))
	rs, err := fx.eng.RacerSnapshot(racer)
	require.NoError(t, err)
	assert.Equal(t, [3]uint8{1, 0, 0}, rs.Stats)
	assert.Equal(t, expBefore-1, fx.eng.ExperienceOf(owner))

	err = fx.eng.Train(owner, racer, [3]uint8{50, 50, 50})
	assert.ErrorIs(t, err, ErrTrainingExceedsExperience)

	err = fx.eng.Train("0xintruder", racer, [3]uint8{1, 0, 0})
	assert.ErrorIs(t, err, ErrNotOwner)

	// gene potentials cap each stat
	capped := fx.reg.Mint(owner, basedata.Genes(0, 50, 50))
	err = fx.eng.Train(owner, capped, [3]uint8{1, 0, 0})
	assert.ErrorIs(t, err, ErrTrainingOverPotential)
}

func TestLevelDerivedFromStats(t *testing.T) {
	rs := RacerState{Stats: [3]uint8{3, 2, 2}}
	assert.Equal(t, 0, rs.Level())
	rs.Stats = [3]uint8{3, 3, 2}
	assert.Equal(t, 1, rs.Level())
	rs.Stats = [3]uint8{10, 8, 6}
	assert.Equal(t, 3, rs.Level())
}
