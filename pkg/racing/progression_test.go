package racing

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianLudlam/block-racer/pkg/chain"
)

// fixedSource derives a reproducible pseudo-random stream for tests.
func fixedSource(tag byte) RandomSource {
	return func(height uint64) ([32]byte, error) {
		var h [8]byte
		h[0] = tag
		h[7] = byte(height)
		return keccak256(h[:]), nil
	}
}

func testSeed(n byte) [32]byte {
	var s [32]byte
	s[0] = n
	s[31] = n
	return s
}

func TestProgressIsDeterministic(t *testing.T) {
	src := fixedSource(7)
	a, err := Progress(testSeed(1), 60, 190, 100, 12800, 110, src)
	require.NoError(t, err)
	b, err := Progress(testSeed(1), 60, 190, 100, 12800, 110, src)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(a, b))
	assert.True(t, a.Finished)
}

func TestProgressMatchesManualReplay(t *testing.T) {
	src := fixedSource(9)
	seed := testSeed(2)
	const (
		speed    = uint32(60)
		maxSpeed = uint32(190)
		start    = uint64(50)
		finish   = uint64(12800)
		tip      = uint64(80)
	)
	out, err := Progress(seed, speed, maxSpeed, start, finish, tip, src)
	require.NoError(t, err)
	require.True(t, out.Finished)

	// replay split by split, independent of the engine loop
	var dist uint64
	var split uint32
	var roll byte
done:
	for h := start; h <= tip; h++ {
		rv, _ := src(h)
		digest := blockDigest(seed, rv)
		for i := 0; i < SplitsPerBlock; i++ {
			inc := speed + uint32(digest[i])
			if inc > maxSpeed {
				inc = maxSpeed
			}
			dist += uint64(inc)
			if dist >= finish {
				split = uint32(h-start)*SplitsPerBlock + uint32(i) + 1
				roll = digest[i]
				break done
			}
		}
	}
	assert.Equal(t, dist, out.Distance)
	assert.Equal(t, split, out.Split)
	assert.Equal(t, roll, out.ExpRoll)
}

func TestProgressClampsAtMax(t *testing.T) {
	// max below speed: every split advances by exactly max
	out, err := Progress(testSeed(3), 50, 10, 20, 320, 20, fixedSource(1))
	require.NoError(t, err)
	require.True(t, out.Finished)
	assert.Equal(t, uint64(320), out.Distance)
	assert.Equal(t, uint32(32), out.Split)
}

func TestProgressPartialResult(t *testing.T) {
	// tip below start height: nothing to consume
	out, err := Progress(testSeed(4), 60, 190, 100, 12800, 99, fixedSource(2))
	require.NoError(t, err)
	assert.False(t, out.Finished)
	assert.Zero(t, out.Distance)
	assert.Zero(t, out.Split)

	// one block of 32 splits cannot cover the distance
	out, err = Progress(testSeed(4), 60, 190, 100, 12800, 100, fixedSource(2))
	require.NoError(t, err)
	assert.False(t, out.Finished)
	assert.Positive(t, out.Distance)
	assert.LessOrEqual(t, out.Distance, uint64(190*SplitsPerBlock))
	assert.Zero(t, out.Split)
}

func TestProgressNotStarted(t *testing.T) {
	out, err := Progress(testSeed(5), 60, 190, 0, 12800, 500, fixedSource(3))
	require.NoError(t, err)
	assert.False(t, out.Finished)
}

func TestProgressPropagatesSourceError(t *testing.T) {
	src := func(uint64) ([32]byte, error) {
		return [32]byte{}, chain.ErrValueUnavailable
	}
	_, err := Progress(testSeed(6), 60, 190, 10, 12800, 20, src)
	assert.ErrorIs(t, err, chain.ErrValueUnavailable)
}

func TestExperienceForThresholds(t *testing.T) {
	assert.Equal(t, uint8(1), ExperienceFor(0))
	assert.Equal(t, uint8(1), ExperienceFor(204))
	assert.Equal(t, uint8(2), ExperienceFor(205))
	assert.Equal(t, uint8(2), ExperienceFor(244))
	assert.Equal(t, uint8(3), ExperienceFor(245))
	assert.Equal(t, uint8(3), ExperienceFor(255))
}

func TestLaneSeedDistinct(t *testing.T) {
	var entropy [32]byte
	entropy[5] = 42
	a := LaneSeed("0xaaaa", 1, entropy)
	b := LaneSeed("0xaaaa", 2, entropy)
	c := LaneSeed("0xbbbb", 1, entropy)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, LaneSeed("0xaaaa", 1, entropy))
}
