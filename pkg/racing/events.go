package racing

// Event is emitted synchronously inside the command that produced it, in
// deterministic order.
type Event interface {
	EventKind() string
}

type EnteredEvent struct {
	Owner   string `json:"owner"`
	RacerID uint64 `json:"racerId"`
	RaceID  uint64 `json:"raceId"`
	Level   int    `json:"level"`
	Lane    uint8  `json:"lane"`
}

func (EnteredEvent) EventKind() string { return "entered" }

type StartedEvent struct {
	RaceID      uint64 `json:"raceId"`
	Level       int    `json:"level"`
	StartHeight uint64 `json:"startHeight"`
	Distance    uint64 `json:"distance"`
	Condition   uint8  `json:"condition"`
}

func (StartedEvent) EventKind() string { return "started" }

type ExitedEvent struct {
	Owner   string `json:"owner"`
	RacerID uint64 `json:"racerId"`
	RaceID  uint64 `json:"raceId"`
	Refund  uint64 `json:"refund"`
}

func (ExitedEvent) EventKind() string { return "exited" }

type LaneSettledEvent struct {
	RaceID    uint64 `json:"raceId"`
	Lane      uint8  `json:"lane"`
	RacerID   uint64 `json:"racerId"`
	Distance  uint64 `json:"distance"`
	Split     uint32 `json:"split"`
	SettledBy string `json:"settledBy"`
	Reward    uint64 `json:"reward"`
}

func (LaneSettledEvent) EventKind() string { return "laneSettled" }

// RaceFinishedEvent is emitted once per lane during finalization.
type RaceFinishedEvent struct {
	RaceID     uint64 `json:"raceId"`
	Lane       uint8  `json:"lane"`
	RacerID    uint64 `json:"racerId"`
	Owner      string `json:"owner"`
	Place      uint8  `json:"place"`
	Experience uint8  `json:"experience"`
	Reward     uint64 `json:"reward"`
}

func (RaceFinishedEvent) EventKind() string { return "raceFinished" }

type RaceSettledEvent struct {
	RaceID      uint64              `json:"raceId"`
	SettledBy   string              `json:"settledBy"`
	Reward      uint64              `json:"reward"`
	FinishOrder [LanesPerRace]uint8 `json:"finishOrder"`
}

func (RaceSettledEvent) EventKind() string { return "raceSettled" }

type RaceRefundedEvent struct {
	RaceID       uint64 `json:"raceId"`
	RefundedBy   string `json:"refundedBy"`
	CallerReward uint64 `json:"callerReward"`
	LaneRefund   uint64 `json:"laneRefund"`
}

func (RaceRefundedEvent) EventKind() string { return "raceRefunded" }
