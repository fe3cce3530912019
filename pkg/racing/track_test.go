package racing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWalkConditionTable(t *testing.T) {
	cases := []struct {
		roll byte
		want uint8
	}{
		{roll: 255, want: 131}, // +3
		{roll: 250, want: 131},
		{roll: 249, want: 130}, // +2
		{roll: 235, want: 130},
		{roll: 234, want: 129}, // +1
		{roll: 195, want: 129},
		{roll: 194, want: 128}, // unchanged
		{roll: 61, want: 128},
		{roll: 60, want: 127}, // -1
		{roll: 21, want: 127},
		{roll: 20, want: 126}, // -2
		{roll: 6, want: 126},
		{roll: 5, want: 125}, // -3
		{roll: 0, want: 125},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, WalkCondition(128, tc.roll), "roll %d", tc.roll)
	}
}

func TestWalkConditionClamps(t *testing.T) {
	assert.Equal(t, uint8(1), WalkCondition(1, 0))
	assert.Equal(t, uint8(1), WalkCondition(2, 0))
	assert.Equal(t, uint8(1), WalkCondition(3, 10))
	assert.Equal(t, uint8(255), WalkCondition(255, 255))
	assert.Equal(t, uint8(255), WalkCondition(254, 250))
	assert.Equal(t, uint8(255), WalkCondition(253, 240))
}

func TestApplyFrictionNoPenaltyAtOrAboveCondition(t *testing.T) {
	speed, maxSpeed := ApplyFriction(60, 190, 128, 128)
	assert.Equal(t, uint32(60), speed)
	assert.Equal(t, uint32(190), maxSpeed)

	speed, maxSpeed = ApplyFriction(60, 190, 200, 128)
	assert.Equal(t, uint32(60), speed)
	assert.Equal(t, uint32(190), maxSpeed)
}

func TestApplyFrictionRatio(t *testing.T) {
	// ratio = (0+32)/(255+32) applied in integer math
	speed, maxSpeed := ApplyFriction(60, 190, 0, 255)
	assert.Equal(t, uint32(60*32/287), speed)
	assert.Equal(t, uint32(190*32/287), maxSpeed)

	// penalty grows with the gap between traction and condition
	s1, _ := ApplyFriction(100, 200, 100, 120)
	s2, _ := ApplyFriction(100, 200, 50, 120)
	assert.Greater(t, s1, s2)
}
