package racing

import "errors"

// Every command validates all preconditions before mutating any state, so a
// returned error guarantees the state store is unchanged.
var (
	ErrNotOwner                  = errors.New("racing: caller is not the racer's owner")
	ErrAlreadyRacing             = errors.New("racing: racer is in an unsettled race")
	ErrInsufficientFee           = errors.New("racing: paid amount below entry cost")
	ErrNotRacing                 = errors.New("racing: racer is not queued in a race")
	ErrAlreadyStarted            = errors.New("racing: race has already started")
	ErrNoRaceToSettle            = errors.New("racing: no race eligible for settlement")
	ErrRaceNotFinished           = errors.New("racing: progression has not reached the finish line")
	ErrTrainingExceedsExperience = errors.New("racing: training exceeds unspent experience")
	ErrTrainingOverPotential     = errors.New("racing: training exceeds gene potential")
	ErrNotFound                  = errors.New("racing: not found")
)
