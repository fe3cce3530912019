package racing

// Lane holds one racer's race-time snapshot and outcome. Seed, Speed and
// Max are fixed at entry time and never change for the race.
type Lane struct {
	RacerID  uint64
	Owner    string
	Seed     [32]byte
	Speed    uint32
	Max      uint32
	Distance uint64
	Split    uint32
	Exp      uint8
	Settled  bool
}

// Race is created the instant the first lane is admitted to an empty level
// queue and becomes started when its sixth lane fills. Once Settled it is
// immutable.
type Race struct {
	ID           uint64
	Level        int
	StartHeight  uint64 // 0 = not yet started
	Distance     uint64
	Condition    uint8 // track condition, 1..255, fixed at creation
	LanesReady   uint8
	LanesSettled uint8
	Settled      bool
	Refunded     bool
	FinishOrder  [LanesPerRace]uint8 // 1-based lane indexes, best first
	Lanes        [LanesPerRace]Lane
}

// RacerStatus makes the per-racer state machine explicit: a racer is idle,
// queued in a forming race, or racing in a started one. Queued and Racing
// both exclude re-entry.
type RacerStatus uint8

const (
	StatusIdle RacerStatus = iota
	StatusQueued
	StatusRacing
)

func (s RacerStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRacing:
		return "racing"
	default:
		return "idle"
	}
}

// RacerState is the engine-owned side of a racer token: training stats
// (acceleration, top-speed, traction), the cached gene array and the
// current status with its race reference. RaceID keeps pointing at the
// most recent race after the racer returns to idle.
type RacerState struct {
	Stats  [3]uint8
	Genes  [32]byte
	Status RacerStatus
	RaceID uint64
}

// Level derives the racer's level from its current training stats.
func (r *RacerState) Level() int {
	return (int(r.Stats[0]) + int(r.Stats[1]) + int(r.Stats[2])) / LevelDivisor
}

// Snapshots are the read-only views served by queries. They are detached
// copies; mutating them never touches engine state.

type RaceSnapshot struct {
	ID           uint64   `json:"id"`
	Level        int      `json:"level"`
	StartHeight  uint64   `json:"startHeight"`
	Distance     uint64   `json:"distance"`
	Condition    uint8    `json:"condition"`
	LanesReady   uint8    `json:"lanesReady"`
	LanesSettled uint8    `json:"lanesSettled"`
	Settled      bool     `json:"settled"`
	Refunded     bool     `json:"refunded"`
	Racers       []uint64 `json:"racers"`
	FinishOrder  []uint8  `json:"finishOrder,omitempty"`
}

type LaneSnapshot struct {
	Lane     uint8  `json:"lane"`
	RacerID  uint64 `json:"racerId"`
	Owner    string `json:"owner"`
	Seed     string `json:"seed"` // hex
	Speed    uint32 `json:"speed"`
	Max      uint32 `json:"max"`
	Distance uint64 `json:"distance"`
	Split    uint32 `json:"split"`
	Exp      uint8  `json:"exp"`
	Settled  bool   `json:"settled"`
}

type RacerSnapshot struct {
	RacerID  uint64   `json:"racerId"`
	Owner    string   `json:"owner"`
	Stats    [3]uint8 `json:"stats"`
	Status   string   `json:"status"`
	LastRace uint64   `json:"lastRace"`
	Level    int      `json:"level"`
}
