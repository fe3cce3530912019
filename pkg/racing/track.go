package racing

// WalkCondition random-walks the track condition by one random byte drawn
// at race-creation time. The result is always within [1,255].
func WalkCondition(prev uint8, roll byte) uint8 {
	var delta int
	switch {
	case roll >= 250:
		delta = 3
	case roll >= 235:
		delta = 2
	case roll >= 195:
		delta = 1
	case roll <= 5:
		delta = -3
	case roll <= 20:
		delta = -2
	case roll <= 60:
		delta = -1
	}
	v := int(prev) + delta
	if v < 1 {
		v = 1
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

// ApplyFriction reduces a lane's speed and max when the racer's traction
// stat is below the race's track condition. The ratio
// (traction+FrictionBase)/(condition+FrictionBase) is applied to both,
// in integer math. No penalty otherwise.
func ApplyFriction(speed, maxSpeed uint32, traction, condition uint8) (uint32, uint32) {
	if uint32(traction) >= uint32(condition) {
		return speed, maxSpeed
	}
	num := uint32(traction) + FrictionBase
	den := uint32(condition) + FrictionBase
	return speed * num / den, maxSpeed * num / den
}
