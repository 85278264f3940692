package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/lib/pq"
	"github.com/rhq-project/rhq-sub002/internal/database"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
	"github.com/rs/zerolog/log"
)

// PgStore reads and writes measurement schedules directly in the RHQ schema. It serves
// as both the schedule.QueryService and the schedule.MutationService, and keeps an
// audit trail of dispatched batches in its own change log table.
type PgStore struct {
	DB *database.Database
	// now is stubbed in tests
	now func() time.Time
}

func NewPgStore(db *database.Database) *PgStore { return &PgStore{DB: db, now: time.Now} }

const changeLogDDL = `
CREATE TABLE IF NOT EXISTS schedsync_change_log (
	id                  uuid PRIMARY KEY,
	context             text NOT NULL,
	target_id           integer NOT NULL,
	action              text NOT NULL,
	definition_ids      bigint[] NOT NULL,
	collection_interval interval,
	error               text,
	change_time         timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS schedsync_change_log_target_idx
	ON schedsync_change_log (context, target_id, change_time DESC);
`

// EnsureSchema creates the change log table. The RHQ tables are never created here.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, changeLogDDL); err != nil {
		return fmt.Errorf("ensure change log schema: %w", err)
	}
	return nil
}

const (
	findForResourceQ = `
	SELECT d.id, %s
	FROM rhq_measurement_sched s
	JOIN rhq_measurement_def d ON d.id = s.definition
	WHERE s.resource_id = $1
	ORDER BY d.id`
	findForGroupQ = `
	SELECT DISTINCT d.id, %s
	FROM rhq_measurement_sched s
	JOIN rhq_measurement_def d ON d.id = s.definition
	JOIN rhq_resource_group_res_exp_map m ON m.resource_id = s.resource_id
	WHERE m.resource_group_id = $1
	ORDER BY d.id`
)

func (s *PgStore) FindSchedules(ctx context.Context, c schedule.Criteria) ([]schedule.ScheduleDescriptor, error) {
	nameCol := "''"
	if c.IncludeDefinitionDisplayName {
		nameCol = "d.display_name"
	}
	var q string
	switch c.Kind {
	case schedule.ContextResource:
		q = fmt.Sprintf(findForResourceQ, nameCol)
	case schedule.ContextGroup:
		q = fmt.Sprintf(findForGroupQ, nameCol)
	default:
		return nil, &schedule.UnsupportedContextError{Context: c.Kind}
	}
	rows, err := s.DB.QueryContext(ctx, q, c.TargetID)
	if err != nil {
		return nil, fmt.Errorf("find schedules: %w", err)
	}
	defer rows.Close()
	var res []schedule.ScheduleDescriptor
	for rows.Next() {
		var d schedule.ScheduleDescriptor
		var name sql.NullString
		if err := rows.Scan(&d.DefinitionID, &name); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		d.DisplayName = name.String
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find schedules: %w", err)
	}
	return res, nil
}

const (
	resourceScope = `resource_id = $1 AND definition = ANY($2)`
	groupScope    = `definition = ANY($2) AND resource_id IN (
		SELECT resource_id FROM rhq_resource_group_res_exp_map WHERE resource_group_id = $1)`
)

// updateSchedules applies one SET clause to every schedule of the given definitions in
// the scope. $3 is the new value and $4 the modification time in epoch millis.
func (s *PgStore) updateSchedules(ctx context.Context, op string, scope string, set string, targetID int, defs []int, value any) error {
	q := `UPDATE rhq_measurement_sched SET ` + set + ` = $3, mtime = $4 WHERE ` + scope
	res, err := s.DB.ExecContext(ctx, q, targetID, pq.Array(toInt64s(defs)), value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		log.Debug().Str("op", op).Int("target", targetID).Int64("rows", n).Msg("schedules updated")
	}
	return nil
}

func (s *PgStore) EnableForResource(ctx context.Context, resourceID int, defs []int) error {
	return s.updateSchedules(ctx, "enable for resource", resourceScope, "enabled", resourceID, defs, true)
}

func (s *PgStore) EnableForGroup(ctx context.Context, groupID int, defs []int) error {
	return s.updateSchedules(ctx, "enable for group", groupScope, "enabled", groupID, defs, true)
}

func (s *PgStore) DisableForResource(ctx context.Context, resourceID int, defs []int) error {
	return s.updateSchedules(ctx, "disable for resource", resourceScope, "enabled", resourceID, defs, false)
}

func (s *PgStore) DisableForGroup(ctx context.Context, groupID int, defs []int) error {
	return s.updateSchedules(ctx, "disable for group", groupScope, "enabled", groupID, defs, false)
}

func (s *PgStore) SetIntervalForResource(ctx context.Context, resourceID int, defs []int, millis int64) error {
	return s.updateSchedules(ctx, "set interval for resource", resourceScope, "coll_interval", resourceID, defs, millis)
}

func (s *PgStore) SetIntervalForGroup(ctx context.Context, groupID int, defs []int, millis int64) error {
	return s.updateSchedules(ctx, "set interval for group", groupScope, "coll_interval", groupID, defs, millis)
}

// RecordChange appends the batch to the change log.
func (s *PgStore) RecordChange(ctx context.Context, c schedule.Change) error {
	e := c.Entry()
	interval := pgtype.Interval{}
	if e.Action == schedule.ActionSetInterval {
		interval = durationToPgInterval(time.Duration(e.IntervalMillis) * time.Millisecond)
	}
	var errText sql.NullString
	if e.Error != "" {
		errText = sql.NullString{String: e.Error, Valid: true}
	}
	const q = `
	INSERT INTO schedsync_change_log(id, context, target_id, action, definition_ids, collection_interval, error, change_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.DB.ExecContext(ctx, q, e.ID, string(e.Context), e.TargetID, e.Action.String(),
		pq.Array(toInt64s(e.DefinitionIDs)), interval, errText, e.At)
	if err != nil {
		return fmt.Errorf("insert change log: %w", err)
	}
	return nil
}

// ListChanges returns the newest change log rows for one target.
func (s *PgStore) ListChanges(ctx context.Context, kind schedule.Context, targetID, limit int) ([]schedule.ChangeEntry, error) {
	const q = `
	SELECT id, action, definition_ids, collection_interval, error, change_time
	FROM schedsync_change_log
	WHERE context = $1 AND target_id = $2
	ORDER BY change_time DESC
	LIMIT $3
	`
	rows, err := s.DB.QueryContext(ctx, q, string(kind), targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()
	var res []schedule.ChangeEntry
	for rows.Next() {
		var (
			e        schedule.ChangeEntry
			action   string
			defs     pq.Int64Array
			interval sql.NullString
			errText  sql.NullString
		)
		if err := rows.Scan(&e.ID, &action, &defs, &interval, &errText, &e.At); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if err := e.Action.UnmarshalText([]byte(action)); err != nil {
			return nil, fmt.Errorf("scan change %s: %w", e.ID, err)
		}
		if interval.Valid {
			var iv pgtype.Interval
			if err := iv.Scan(interval.String); err != nil {
				return nil, fmt.Errorf("scan change %s interval: %w", e.ID, err)
			}
			d, err := pgIntervalToDuration(iv)
			if err != nil {
				return nil, fmt.Errorf("change %s: %w", e.ID, err)
			}
			e.IntervalMillis = d.Milliseconds()
		}
		e.Context = kind
		e.TargetID = targetID
		e.DefinitionIDs = toInts(defs)
		e.Error = errText.String
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return res, nil
}

func toInt64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func toInts(ids []int64) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

// durationToPgInterval splits d into whole days and the microsecond remainder.
func durationToPgInterval(d time.Duration) pgtype.Interval {
	days := d / (24 * time.Hour)
	rest := d - days*24*time.Hour
	return pgtype.Interval{
		Microseconds: rest.Microseconds(),
		Days:         int32(days),
		Valid:        true,
	}
}

// pgIntervalToDuration rejects month components since their length is not fixed.
func pgIntervalToDuration(iv pgtype.Interval) (time.Duration, error) {
	if !iv.Valid {
		return 0, fmt.Errorf("interval is null")
	}
	if iv.Months != 0 {
		return 0, fmt.Errorf("interval with months cannot be converted: %d months", iv.Months)
	}
	return time.Duration(iv.Days)*24*time.Hour + time.Duration(iv.Microseconds)*time.Microsecond, nil
}

var (
	_ schedule.QueryService    = (*PgStore)(nil)
	_ schedule.MutationService = (*PgStore)(nil)
	_ schedule.ChangeRecorder  = (*PgStore)(nil)
	_ schedule.ChangeLister    = (*PgStore)(nil)
)
