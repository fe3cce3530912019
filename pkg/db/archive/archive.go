// Package archive persists resolved races. The engine keeps its state in
// memory; once a race is settled or refunded its final form is immutable
// and is written here for history queries and off-system audits.
package archive

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrianLudlam/block-racer/pkg/racing"
)

//nolint:lll // ok for interface
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

var (
	_ Querier = (*pgx.Conn)(nil)
	_ Querier = (*pgxpool.Pool)(nil)
)

type RaceRecord struct {
	ID          uint64
	ArchiveID   uuid.UUID // time-ordered row tag, independent of the engine id space
	Level       int
	StartHeight uint64
	Distance    uint64
	Condition   uint8
	Refunded    bool
}

type LaneRecord struct {
	RaceID   uint64
	Lane     uint8
	RacerID  uint64
	Owner    string
	Seed     string
	Speed    uint32
	Max      uint32
	Distance uint64
	Split    uint32
	Exp      uint8
	Place    *int
}

// Create writes one resolved race with all its lanes. Place is derived from
// the finish order and left null for refunded races.
func Create(
	ctx context.Context,
	conn Querier,
	race racing.RaceSnapshot,
	lanes []racing.LaneSnapshot,
) error {
	archiveID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	_, err = conn.Exec(ctx, `
	insert into race (id, archive_id, level, start_height, distance, condition, refunded)
	values ($1,$2,$3,$4,$5,$6,$7)
	on conflict (id) do nothing
	`, race.ID, archiveID, race.Level, race.StartHeight, race.Distance,
		race.Condition, race.Refunded)
	if err != nil {
		return err
	}

	placeOf := make(map[uint8]int, len(race.FinishOrder))
	for place, laneIdx := range race.FinishOrder {
		placeOf[laneIdx] = place + 1
	}
	for _, lane := range lanes {
		var place *int
		if p, ok := placeOf[lane.Lane]; ok {
			place = &p
		}
		if _, err := conn.Exec(ctx, `
		insert into race_lane
		  (race_id, lane, racer_id, owner, seed, speed, max, distance, split, exp, place)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (race_id, lane) do nothing
		`, race.ID, lane.Lane, lane.RacerID, lane.Owner, lane.Seed,
			lane.Speed, lane.Max, lane.Distance, lane.Split, lane.Exp,
			place); err != nil {
			return err
		}
	}
	return nil
}

func LoadByID(ctx context.Context, conn Querier, id uint64) (*RaceRecord, error) {
	row := conn.QueryRow(ctx, `
	select id, archive_id, level, start_height, distance, condition, refunded
	from race where id=$1`, id)
	var race RaceRecord
	if err := row.Scan(&race.ID, &race.ArchiveID, &race.Level, &race.StartHeight,
		&race.Distance, &race.Condition, &race.Refunded); err != nil {
		return nil, err
	}
	return &race, nil
}

func LoadLanes(ctx context.Context, conn Querier, raceID uint64) ([]LaneRecord, error) {
	rows, err := conn.Query(ctx, `
	select race_id, lane, racer_id, owner, seed, speed, max, distance, split, exp, place
	from race_lane where race_id=$1 order by lane`, raceID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[LaneRecord])
}

// LoadOwnerLanes returns an owner's lane history, newest race first.
func LoadOwnerLanes(ctx context.Context, conn Querier, owner string) ([]LaneRecord, error) {
	rows, err := conn.Query(ctx, `
	select race_id, lane, racer_id, owner, seed, speed, max, distance, split, exp, place
	from race_lane where owner=$1 order by race_id desc, lane`, owner)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[LaneRecord])
}

// LoadIDs returns all archived race ids in ascending order.
func LoadIDs(ctx context.Context, conn Querier) ([]uint64, error) {
	rows, err := conn.Query(ctx, "select id from race order by id")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uint64])
}

// deletes a race and its lanes, returns number of race rows deleted.
func DeleteByID(ctx context.Context, conn Querier, id uint64) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from race where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}
