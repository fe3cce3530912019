package racing

import "github.com/BrianLudlam/block-racer/log"

// eligible reports whether a race can accept a settlement step: started,
// past the verification delay (the start height itself embeds it) and not
// yet settled.
func (e *Engine) eligible(r *Race, tip uint64) bool {
	return r != nil && r.StartHeight != 0 && tip >= r.StartHeight && !r.Settled
}

// SettleRace drives one settlement step for the requested race, or for the
// oldest race mid-settlement when the requested one is not eligible. One
// call settles exactly one lane, finalizes the race once all six lanes are
// settled, or executes the expiration refund when the validity window has
// passed.
func (e *Engine) SettleRace(caller string, raceID uint64) error {
	_, err := exec(e, func() (struct{}, error) {
		return struct{}{}, e.settleRace(caller, raceID)
	})
	return err
}

func (e *Engine) settleRace(caller string, raceID uint64) error {
	tip := e.chain.CurrentHeight()
	race := e.st.races[raceID]
	if !e.eligible(race, tip) && len(e.st.settling) > 0 {
		// reroute to the oldest race already mid-settlement
		race = e.st.races[e.st.settling[0]]
	}
	if !e.eligible(race, tip) {
		return ErrNoRaceToSettle
	}

	if tip >= race.StartHeight+ExpiryWindow {
		return e.refundExpired(caller, race)
	}
	if race.LanesSettled < LanesPerRace {
		return e.settleLane(caller, race, tip)
	}
	return e.finalize(caller, race)
}

// settleLane settles the lowest unsettled lane against the current chain
// tip. A partial progression result fails the whole call with no mutation.
func (e *Engine) settleLane(caller string, race *Race, tip uint64) error {
	idx := race.LanesSettled // lanes settle strictly in order 1..6
	lane := &race.Lanes[idx]
	out, err := Progress(
		lane.Seed, lane.Speed, lane.Max,
		race.StartHeight, race.Distance, tip,
		e.chain.RandomValueAt)
	if err != nil {
		return err
	}
	if !out.Finished {
		return ErrRaceNotFinished
	}
	lane.Distance = out.Distance
	lane.Split = out.Split
	lane.Exp = ExperienceFor(out.ExpRoll)
	lane.Settled = true
	race.LanesSettled++

	reward := LaneReward
	if race.LanesSettled == 1 {
		reward = FirstLaneReward
		e.st.settling = append(e.st.settling, race.ID)
	}
	e.ledger.Credit(caller, reward)
	e.emit(LaneSettledEvent{
		RaceID:    race.ID,
		Lane:      idx + 1,
		RacerID:   lane.RacerID,
		Distance:  lane.Distance,
		Split:     lane.Split,
		SettledBy: caller,
		Reward:    reward,
	})
	e.l.Debug("lane settled",
		log.Uint64("race", race.ID),
		log.Uint8("lane", idx+1),
		log.Uint32("split", lane.Split))
	return nil
}

// finalize ranks the six settled lanes, pays placement rewards, grants
// experience to every lane owner and marks the race settled.
func (e *Engine) finalize(caller string, race *Race) error {
	race.FinishOrder = Rank(race.Lanes[:])
	rewards := [3]uint64{
		FirstReward(race.Level),
		SecondReward(race.Level),
		ThirdReward(race.Level),
	}
	for place, laneIdx := range race.FinishOrder {
		lane := &race.Lanes[laneIdx-1]
		var reward uint64
		if place < len(rewards) {
			reward = rewards[place]
			e.ledger.Credit(lane.Owner, reward)
		}
		e.addExperience(lane.Owner, uint64(lane.Exp))
		e.emit(RaceFinishedEvent{
			RaceID:     race.ID,
			Lane:       laneIdx,
			RacerID:    lane.RacerID,
			Owner:      lane.Owner,
			Place:      uint8(place + 1),
			Experience: lane.Exp,
			Reward:     reward,
		})
	}
	race.Settled = true
	e.releaseRacers(race)
	e.st.removeSettling(race.ID)
	e.ledger.Credit(caller, FinalizeReward)
	e.emit(RaceSettledEvent{
		RaceID:      race.ID,
		SettledBy:   caller,
		Reward:      FinalizeReward,
		FinishOrder: race.FinishOrder,
	})
	e.l.Info("race settled",
		log.Uint64("race", race.ID),
		log.Any("order", race.FinishOrder))
	return nil
}

// refundExpired resolves a race whose validity window has passed: every
// seated owner gets the racing-fee portion back and the caller receives
// the settlement-fee pool in one payment, less any per-lane rewards paid
// out before the race expired. No placement, no experience.
func (e *Engine) refundExpired(caller string, race *Race) error {
	laneRefund := RacingFee(race.Level)
	for i := 0; i < int(race.LanesReady); i++ {
		e.ledger.Credit(race.Lanes[i].Owner, laneRefund)
	}
	callerReward := SettlementPool()
	if race.LanesSettled > 0 {
		callerReward -= FirstLaneReward + uint64(race.LanesSettled-1)*LaneReward
	}
	e.ledger.Credit(caller, callerReward)
	race.Settled = true
	race.Refunded = true
	e.releaseRacers(race)
	e.st.removeSettling(race.ID)
	e.emit(RaceRefundedEvent{
		RaceID:       race.ID,
		RefundedBy:   caller,
		CallerReward: callerReward,
		LaneRefund:   laneRefund,
	})
	e.l.Warn("race expired, refunded",
		log.Uint64("race", race.ID),
		log.Uint64("laneRefund", laneRefund))
	return nil
}

// releaseRacers returns every seated racer to idle once the race reached a
// terminal state. RaceID stays behind as the last-race pointer.
func (e *Engine) releaseRacers(race *Race) {
	for i := 0; i < int(race.LanesReady); i++ {
		if rs := e.st.racers[race.Lanes[i].RacerID]; rs != nil {
			rs.Status = StatusIdle
		}
	}
}

// Train converts unspent experience into training stats, each stat bounded
// by the corresponding gene potential.
func (e *Engine) Train(caller string, racerID uint64, deltas [3]uint8) error {
	_, err := exec(e, func() (struct{}, error) {
		return struct{}{}, e.train(caller, racerID, deltas)
	})
	return err
}

func (e *Engine) train(caller string, racerID uint64, deltas [3]uint8) error {
	owner, err := e.registry.OwnerOf(racerID)
	if err != nil || owner != caller {
		return ErrNotOwner
	}
	rs, err := e.racerState(racerID)
	if err != nil {
		return err
	}
	total := uint64(deltas[0]) + uint64(deltas[1]) + uint64(deltas[2])
	if total > e.st.experience[owner] {
		return ErrTrainingExceedsExperience
	}
	for i := range deltas {
		if int(rs.Stats[i])+int(deltas[i]) > int(rs.Genes[i]) {
			return ErrTrainingOverPotential
		}
	}
	for i := range deltas {
		rs.Stats[i] += deltas[i]
	}
	e.st.experience[owner] -= total
	return nil
}
