// Package check audits the race archive: structural integrity of every
// stored race and, when the chain seed is supplied, a full deterministic
// replay of every settled lane.
package check

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BrianLudlam/block-racer/log"
	"github.com/BrianLudlam/block-racer/pkg/chain/simchain"
	"github.com/BrianLudlam/block-racer/pkg/config"
	"github.com/BrianLudlam/block-racer/pkg/db/archive"
	"github.com/BrianLudlam/block-racer/pkg/db/postgres"
	"github.com/BrianLudlam/block-racer/pkg/racing"
)

var chainSeed string

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "audits the archived races",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck()
		},
	}
	cmd.Flags().StringVar(&chainSeed, "chain-seed", "",
		"genesis seed (hex); when set, every settled lane is replayed and verified")
	return cmd
}

//nolint:funlen,gocognit // audit steps read better in one sequence
func runCheck() error {
	pool := postgres.InitWithUrl(config.DB)
	defer pool.Close()
	ctx := context.Background()

	var source racing.RandomSource
	if chainSeed != "" {
		raw, err := hex.DecodeString(chainSeed)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("invalid chain seed: %v", err)
		}
		var genesis [32]byte
		copy(genesis[:], raw)
		source = func(height uint64) ([32]byte, error) {
			return simchain.Derive(genesis, height), nil
		}
	}

	ids, err := archive.LoadIDs(ctx, pool)
	if err != nil {
		return err
	}
	log.Info("auditing races", log.Int("count", len(ids)))

	bad := 0
	for _, id := range ids {
		race, err := archive.LoadByID(ctx, pool, id)
		if err != nil {
			return err
		}
		lanes, err := archive.LoadLanes(ctx, pool, id)
		if err != nil {
			return err
		}
		if !auditRace(race, lanes, source) {
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d races failed the audit", bad, len(ids))
	}
	log.Info("audit passed", log.Int("races", len(ids)))
	return nil
}

//nolint:gocognit,cyclop // audit steps read better in one sequence
func auditRace(
	race *archive.RaceRecord,
	lanes []archive.LaneRecord,
	source racing.RandomSource,
) bool {
	ok := true
	fail := func(msg string, fields ...log.Field) {
		ok = false
		fields = append([]log.Field{log.Uint64("race", race.ID)}, fields...)
		log.Error(msg, fields...)
	}

	if len(lanes) != racing.LanesPerRace {
		fail("wrong lane count", log.Int("lanes", len(lanes)))
		return false
	}

	// conservation: every unit collected at entry must be paid back out,
	// whether the race settled or expired
	collected := uint64(racing.LanesPerRace) * racing.EntryCost(race.Level)
	paid := racing.SettlementPool()
	if race.Refunded {
		paid += uint64(racing.LanesPerRace) * racing.RacingFee(race.Level)
	} else {
		paid += racing.FirstReward(race.Level) +
			racing.SecondReward(race.Level) + racing.ThirdReward(race.Level)
	}
	if paid != collected {
		fail("conservation mismatch",
			log.Uint64("collected", collected), log.Uint64("paid", paid))
	}

	if race.Refunded {
		for _, lane := range lanes {
			if lane.Place != nil {
				fail("refunded race has a placed lane", log.Uint8("lane", lane.Lane))
			}
		}
		return ok
	}

	// recompute the finish order from the stored splits and compare the
	// podium places
	ranked := make([]racing.Lane, len(lanes))
	for i, lane := range lanes {
		ranked[i] = racing.Lane{Split: lane.Split, Distance: lane.Distance}
	}
	order := racing.Rank(ranked)
	for place, laneIdx := range order[:3] {
		lane := lanes[laneIdx-1]
		if lane.Place == nil || *lane.Place != place+1 {
			fail("podium place mismatch",
				log.Uint8("lane", lane.Lane), log.Int("expected", place+1))
		}
	}

	if source == nil {
		return ok
	}
	for _, lane := range lanes {
		raw, err := hex.DecodeString(lane.Seed)
		if err != nil || len(raw) != 32 {
			fail("invalid stored seed", log.Uint8("lane", lane.Lane))
			continue
		}
		var seed [32]byte
		copy(seed[:], raw)
		out, err := racing.Progress(seed, lane.Speed, lane.Max,
			race.StartHeight, race.Distance,
			race.StartHeight+racing.ExpiryWindow, source)
		if err != nil || !out.Finished {
			fail("replay did not finish", log.Uint8("lane", lane.Lane))
			continue
		}
		if out.Distance != lane.Distance || out.Split != lane.Split {
			fail("replay mismatch",
				log.Uint8("lane", lane.Lane),
				log.Uint32("storedSplit", lane.Split),
				log.Uint32("replaySplit", out.Split))
		}
	}
	return ok
}
