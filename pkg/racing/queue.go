package racing

import "github.com/BrianLudlam/block-racer/log"

// EnterQueue admits a racer into its level's forming race, creating the
// race when the level queue is empty and starting it when the sixth lane
// fills. It returns the amount refunded above the exact entry cost.
func (e *Engine) EnterQueue(caller string, racerID, paid uint64) (uint64, error) {
	return exec(e, func() (uint64, error) {
		return e.enterQueue(caller, racerID, paid)
	})
}

func (e *Engine) enterQueue(caller string, racerID, paid uint64) (uint64, error) {
	owner, err := e.registry.OwnerOf(racerID)
	if err != nil || owner != caller {
		return 0, ErrNotOwner
	}
	rs, err := e.racerState(racerID)
	if err != nil {
		return 0, err
	}
	if rs.Status != StatusIdle {
		return 0, ErrAlreadyRacing
	}
	level := rs.Level()
	cost := EntryCost(level)
	if paid < cost {
		return 0, ErrInsufficientFee
	}
	tip := e.chain.CurrentHeight()
	entropy, err := e.chain.RandomValueAt(tip)
	if err != nil {
		return 0, err
	}

	raceID := e.st.forming[level]
	if raceID == 0 {
		raceID = e.st.nextRaceID
		e.st.nextRaceID++
		cond := WalkCondition(e.st.lastCondition, entropy[0])
		e.st.lastCondition = cond
		e.st.races[raceID] = &Race{
			ID:        raceID,
			Level:     level,
			Distance:  RaceDistance(level),
			Condition: cond,
		}
		e.st.forming[level] = raceID
	}
	race := e.st.races[raceID]

	speed := SpeedBase + uint32(rs.Stats[0])
	maxSpeed := SpeedBase + MaxBonus + uint32(rs.Stats[1])
	speed, maxSpeed = ApplyFriction(speed, maxSpeed, rs.Stats[2], race.Condition)

	race.Lanes[race.LanesReady] = Lane{
		RacerID: racerID,
		Owner:   owner,
		Seed:    LaneSeed(owner, racerID, entropy),
		Speed:   speed,
		Max:     maxSpeed,
	}
	race.LanesReady++
	rs.Status = StatusQueued
	rs.RaceID = race.ID

	e.emit(EnteredEvent{
		Owner:   owner,
		RacerID: racerID,
		RaceID:  race.ID,
		Level:   level,
		Lane:    race.LanesReady,
	})
	e.l.Debug("racer entered",
		log.Uint64("race", race.ID),
		log.Uint64("racer", racerID),
		log.Uint8("lane", race.LanesReady))

	if race.LanesReady == LanesPerRace {
		race.StartHeight = tip + StartDelay
		delete(e.st.forming, level)
		for i := 0; i < LanesPerRace; i++ {
			e.st.racers[race.Lanes[i].RacerID].Status = StatusRacing
		}
		e.emit(StartedEvent{
			RaceID:      race.ID,
			Level:       level,
			StartHeight: race.StartHeight,
			Distance:    race.Distance,
			Condition:   race.Condition,
		})
		e.l.Info("race started",
			log.Uint64("race", race.ID),
			log.Int("level", level),
			log.Uint64("startHeight", race.StartHeight))
	}

	refund := paid - cost
	if refund > 0 {
		e.ledger.Credit(caller, refund)
	}
	return refund, nil
}

// ExitQueue removes a racer from a race that has not yet started and
// refunds the full entry cost. The lane array is compacted by moving the
// last lane into the vacated slot.
func (e *Engine) ExitQueue(caller string, racerID uint64) (uint64, error) {
	return exec(e, func() (uint64, error) {
		return e.exitQueue(caller, racerID)
	})
}

func (e *Engine) exitQueue(caller string, racerID uint64) (uint64, error) {
	owner, err := e.registry.OwnerOf(racerID)
	if err != nil || owner != caller {
		return 0, ErrNotOwner
	}
	rs := e.st.racers[racerID]
	if rs == nil || rs.Status == StatusIdle {
		return 0, ErrNotRacing
	}
	if rs.Status == StatusRacing {
		return 0, ErrAlreadyStarted
	}
	race := e.st.races[rs.RaceID]
	found := -1
	for i := 0; i < int(race.LanesReady); i++ {
		if race.Lanes[i].RacerID == racerID {
			found = i
			break
		}
	}
	if found < 0 {
		// already removed by a concurrent admission filling the race
		return 0, nil
	}
	race.Lanes[found] = race.Lanes[race.LanesReady-1]
	race.Lanes[race.LanesReady-1] = Lane{}
	race.LanesReady--
	rs.Status = StatusIdle
	rs.RaceID = 0

	cost := EntryCost(race.Level)
	e.ledger.Credit(caller, cost)
	e.emit(ExitedEvent{
		Owner:   owner,
		RacerID: racerID,
		RaceID:  race.ID,
		Refund:  cost,
	})
	return cost, nil
}
