// Package replay verifies a lane outcome off-system: given the public lane
// data (seed, speed, max, start height, distance) and the chain's random
// values, it re-executes the progression and prints the outcome. Anyone can
// run this against a settled lane and compare.
package replay

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/BrianLudlam/block-racer/log"
	"github.com/BrianLudlam/block-racer/pkg/chain/simchain"
	"github.com/BrianLudlam/block-racer/pkg/racing"
)

var (
	laneSeed    string
	speed       uint32
	maxSpeed    uint32
	startHeight uint64
	distance    uint64
	tip         uint64
	chainSeed   string
	valuesFile  string
)

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "replays a lane progression from public data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay()
		},
	}
	cmd.Flags().StringVar(&laneSeed, "seed", "", "lane seed (hex, 32 bytes)")
	cmd.Flags().Uint32Var(&speed, "speed", 0, "lane speed after track friction")
	cmd.Flags().Uint32Var(&maxSpeed, "max", 0, "lane max speed after track friction")
	cmd.Flags().Uint64Var(&startHeight, "start-height", 0, "race start height")
	cmd.Flags().Uint64Var(&distance, "distance", 0, "race finish distance")
	cmd.Flags().Uint64Var(&tip, "tip", 0, "replay up to this height")
	cmd.Flags().StringVar(&chainSeed, "chain-seed", "",
		"genesis seed (hex) to regenerate the random-value stream")
	cmd.Flags().StringVar(&valuesFile, "values-file", "",
		"JSON file mapping height to hex random value (alternative to --chain-seed)")
	return cmd
}

type replayResult struct {
	Distance uint64 `json:"distance"`
	Split    uint32 `json:"split"`
	ExpRoll  uint8  `json:"expRoll"`
	Exp      uint8  `json:"exp"`
	Finished bool   `json:"finished"`
}

func runReplay() error {
	if laneSeed == "" || speed == 0 || startHeight == 0 || distance == 0 || tip == 0 {
		return errors.New("--seed, --speed, --start-height, --distance and --tip are required")
	}
	seed, err := parseHash(laneSeed)
	if err != nil {
		return fmt.Errorf("invalid lane seed: %w", err)
	}
	source, err := buildSource()
	if err != nil {
		return err
	}

	out, err := racing.Progress(seed, speed, maxSpeed, startHeight, distance, tip, source)
	if err != nil {
		return err
	}
	result := replayResult{
		Distance: out.Distance,
		Split:    out.Split,
		ExpRoll:  out.ExpRoll,
		Finished: out.Finished,
	}
	if out.Finished {
		result.Exp = racing.ExperienceFor(out.ExpRoll)
	}
	log.Info("replay done",
		log.Uint64("distance", result.Distance),
		log.Uint32("split", result.Split),
		log.Bool("finished", result.Finished))
	data, err := oj.Marshal(&result)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}

func buildSource() (racing.RandomSource, error) {
	switch {
	case valuesFile != "":
		return sourceFromFile(valuesFile)
	case chainSeed != "":
		genesis, err := parseHash(chainSeed)
		if err != nil {
			return nil, fmt.Errorf("invalid chain seed: %w", err)
		}
		return func(height uint64) ([32]byte, error) {
			return simchain.Derive(genesis, height), nil
		}, nil
	default:
		return nil, errors.New("either --chain-seed or --values-file is required")
	}
}

// sourceFromFile reads a JSON object mapping heights to hex values, the
// format produced by chain watchers capturing the public stream.
func sourceFromFile(path string) (racing.RandomSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := oj.Parse(data)
	if err != nil {
		return nil, err
	}
	raw, ok := parsed.(map[string]any)
	if !ok {
		return nil, errors.New("values file must be a JSON object keyed by height")
	}
	values := make(map[uint64][32]byte, len(raw))
	for k, v := range raw {
		height, cErr := strconv.ParseUint(k, 10, 64)
		if cErr != nil {
			return nil, fmt.Errorf("invalid height %q: %w", k, cErr)
		}
		hexVal, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("value at height %s is not a string", k)
		}
		val, cErr := parseHash(hexVal)
		if cErr != nil {
			return nil, fmt.Errorf("invalid value at height %s: %w", k, cErr)
		}
		values[height] = val
	}
	return func(height uint64) ([32]byte, error) {
		val, ok := values[height]
		if !ok {
			return [32]byte{}, fmt.Errorf("no random value for height %d", height)
		}
		return val, nil
	}, nil
}

func parseHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
