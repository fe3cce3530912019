package racing

import "math"

// Structural constants of the race lifecycle.
const (
	LanesPerRace   = 6
	SplitsPerBlock = 32
	// StartDelay is the verification delay: a race's start height is set
	// this many heights after the sixth lane fills.
	StartDelay = 12
	// ExpiryWindow is the validity horizon after the start height. Once the
	// chain tip reaches it, the start height's random value leaves the
	// retention window and settlement degenerates to refund-only.
	ExpiryWindow = 256
	// LevelDivisor: level = floor(sum of the 3 training stats / 8).
	LevelDivisor = 8
)

// Fee and reward schedule. All amounts are units (1 unit = 10⁻³ token).
const (
	SettlementFee     uint64 = 4
	RacingFeeBase     uint64 = 20
	RacingFeePerLevel uint64 = 10

	// Settlement rewards are tiered by the real cost of the settling
	// transaction: finalization > first lane > lanes 2-6. The six
	// settlement-fee contributions exactly cover the seven payouts:
	// 5 + 4 + 5*3 = 24 = 6 * SettlementFee.
	FinalizeReward  uint64 = 5
	FirstLaneReward uint64 = 4
	LaneReward      uint64 = 3
)

// Progression constants.
const (
	DistanceBase     uint64 = 12800
	DistancePerLevel uint64 = 8
	AvgSplits        uint64 = 96

	SpeedBase    uint32 = 60
	MaxBonus     uint32 = 130
	FrictionBase uint32 = 32
)

// MaxExperience caps the per-owner experience accumulator.
const MaxExperience uint64 = math.MaxUint32

// RacingFee is the per-lane racing fee portion of the entry cost.
func RacingFee(level int) uint64 {
	return RacingFeeBase + RacingFeePerLevel*uint64(level)
}

// EntryCost is the exact amount a racer pays to enter a race of the level.
func EntryCost(level int) uint64 {
	return SettlementFee + RacingFee(level)
}

// Placement rewards. Their sum equals the racing-fee pool collected from
// all six lanes: 3x + 2x + x = 6x with x = RacingFee(level).
func FirstReward(level int) uint64  { return 3 * RacingFee(level) }
func SecondReward(level int) uint64 { return 2 * RacingFee(level) }
func ThirdReward(level int) uint64  { return RacingFee(level) }

// SettlementPool is the total settlement-fee portion collected per race.
func SettlementPool() uint64 {
	return LanesPerRace * SettlementFee
}

// RaceDistance is the finish-line distance for a race of the level.
func RaceDistance(level int) uint64 {
	return DistanceBase + uint64(level)*DistancePerLevel*AvgSplits
}

// CumulativeEntryCost sums the entry cost over levels 0..level.
func CumulativeEntryCost(level int) uint64 {
	var sum uint64
	for l := 0; l <= level; l++ {
		sum += EntryCost(l)
	}
	return sum
}
