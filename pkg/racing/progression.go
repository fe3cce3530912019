package racing

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// RandomSource supplies the public random value revealed at a height.
type RandomSource func(height uint64) ([32]byte, error)

// Outcome is the result of replaying a lane's progression. When the finish
// line was not reached with the blocks available up to the chain tip,
// Finished is false and Split is zero (a partial result).
type Outcome struct {
	Distance uint64
	Split    uint32
	ExpRoll  byte
	Finished bool
}

// Progress replays a lane deterministically: for each height from the race's
// start height up to the chain tip, a Keccak-256 digest of (seed, random
// value at that height) yields 32 byte-splits. Each split advances the lane
// by speed+split, clamped at max, until the finish distance is reached. The
// finishing split index is blockOffset*32 + splitPos + 1 and that split's raw
// byte is captured as the experience roll.
//
// The function is pure: identical inputs always produce identical outcomes,
// so any external observer holding the lane seed, speed, max, the race
// distance/start height and the public random values can re-execute it.
func Progress(
	seed [32]byte,
	speed, maxSpeed uint32,
	startHeight, finishDistance, tip uint64,
	randAt RandomSource,
) (Outcome, error) {
	var out Outcome
	if startHeight == 0 || tip < startHeight {
		return out, nil
	}
	for h := startHeight; h <= tip; h++ {
		rv, err := randAt(h)
		if err != nil {
			return Outcome{}, err
		}
		digest := blockDigest(seed, rv)
		for i := 0; i < SplitsPerBlock; i++ {
			inc := speed + uint32(digest[i])
			if inc > maxSpeed {
				inc = maxSpeed
			}
			out.Distance += uint64(inc)
			if out.Distance >= finishDistance {
				out.Split = uint32(h-startHeight)*SplitsPerBlock + uint32(i) + 1
				out.ExpRoll = digest[i]
				out.Finished = true
				return out, nil
			}
		}
	}
	return out, nil
}

// ExperienceFor maps a finishing split's raw byte to awarded experience:
// 3 at odds ~1:50, 2 at ~1:5, otherwise 1.
func ExperienceFor(roll byte) uint8 {
	switch {
	case roll >= 245:
		return 3
	case roll >= 205:
		return 2
	default:
		return 1
	}
}

// LaneSeed derives a lane's permanent seed from the owner, the racer id and
// the randomness current at entry time.
func LaneSeed(owner string, racerID uint64, entropy [32]byte) [32]byte {
	var idb [8]byte
	binary.BigEndian.PutUint64(idb[:], racerID)
	return keccak256([]byte(owner), idb[:], entropy[:])
}

func blockDigest(seed, randomValue [32]byte) [32]byte {
	return keccak256(seed[:], randomValue[:])
}

func keccak256(parts ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
