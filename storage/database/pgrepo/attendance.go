package pgrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/revolck/advancemais-front-sub011/core"
	"github.com/revolck/advancemais-front-sub011/core/attendance"
)

type attendanceRepository struct {
	db *sqlx.DB
}

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

type recordRow struct {
	Status     string      `db:"status" json:"status"`
	Reason     null.String `db:"reason" json:"reason"`
	Source     string      `db:"source" json:"source"`
	RecordedAt time.Time   `db:"recorded_at" json:"recorded_at"`
}

func (row recordRow) toRecord() attendance.Record {
	return attendance.Record{
		Status:     attendance.Status(row.Status),
		Reason:     row.Reason,
		Source:     attendance.Source(row.Source),
		RecordedAt: row.RecordedAt,
	}
}

type historyRow struct {
	EntryID        string      `db:"entry_id" json:"entry_id"`
	FromStatus     string      `db:"from_status" json:"from_status"`
	ToStatus       string      `db:"to_status" json:"to_status"`
	FromReason     null.String `db:"from_reason" json:"from_reason"`
	ToReason       null.String `db:"to_reason" json:"to_reason"`
	ChangedAt      time.Time   `db:"changed_at" json:"changed_at"`
	ActorRole      null.String `db:"actor_role" json:"actor_role"`
	ActorName      null.String `db:"actor_name" json:"actor_name"`
	OverrideReason null.String `db:"override_reason" json:"override_reason"`
}

func (row historyRow) toEntry() attendance.HistoryEntry {
	return attendance.HistoryEntry{
		ID:             row.EntryID,
		FromStatus:     attendance.Status(row.FromStatus),
		ToStatus:       attendance.Status(row.ToStatus),
		FromReason:     row.FromReason,
		ToReason:       row.ToReason,
		ChangedAt:      row.ChangedAt,
		ActorRole:      attendance.Role(row.ActorRole.String),
		ActorName:      row.ActorName,
		OverrideReason: row.OverrideReason,
	}
}

const getRecordSQL = `
	SELECT status, reason, source, recorded_at
	FROM attendance_records
	WHERE course_id = $1 AND class_id = $2 AND lesson_id = $3 AND student_id = $4`

func (repo *attendanceRepository) GetRecord(ctx context.Context, key attendance.Key) (attendance.Record, error) {
	var row recordRow
	err := repo.db.GetContext(ctx, &row, getRecordSQL, key.CourseID, key.ClassID, key.LessonID, key.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "querying attendance record")
	}

	rec := row.toRecord()
	if vErr := rec.Validate(); vErr != nil {
		repo.quarantine(ctx, "attendance_records", key, row, vErr)
		return attendance.Record{}, core.NewMalformedStateError(key.String(), "stored record fails validation", vErr)
	}
	return rec, nil
}

const upsertRecordSQL = `
	INSERT INTO attendance_records (course_id, class_id, lesson_id, student_id, status, reason, source, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (course_id, class_id, lesson_id, student_id) DO UPDATE SET
		status = EXCLUDED.status,
		reason = EXCLUDED.reason,
		source = EXCLUDED.source,
		recorded_at = EXCLUDED.recorded_at`

const insertHistorySQL = `
	INSERT INTO attendance_history (
		entry_id, course_id, class_id, lesson_id, student_id,
		from_status, to_status, from_reason, to_reason,
		changed_at, actor_role, actor_name, override_reason
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (repo *attendanceRepository) SaveRecord(ctx context.Context, key attendance.Key, rec attendance.Record, entry attendance.HistoryEntry) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, upsertRecordSQL,
		key.CourseID, key.ClassID, key.LessonID, key.StudentID,
		string(rec.Status), rec.Reason, string(rec.Source), rec.RecordedAt,
	)
	if err != nil {
		return errors.Wrap(err, "upserting attendance record")
	}

	actorRole := null.NewString(string(entry.ActorRole), entry.ActorRole != "")
	_, err = tx.ExecContext(ctx, insertHistorySQL,
		entry.ID, key.CourseID, key.ClassID, key.LessonID, key.StudentID,
		string(entry.FromStatus), string(entry.ToStatus), entry.FromReason, entry.ToReason,
		entry.ChangedAt, actorRole, entry.ActorName, entry.OverrideReason,
	)
	if err != nil {
		return errors.Wrap(err, "appending history entry")
	}

	return errors.Wrap(tx.Commit(), "committing attendance write")
}

const listHistorySQL = `
	SELECT entry_id, from_status, to_status, from_reason, to_reason,
	       changed_at, actor_role, actor_name, override_reason
	FROM attendance_history
	WHERE course_id = $1 AND class_id = $2 AND lesson_id = $3 AND student_id = $4
	ORDER BY id`

func (repo *attendanceRepository) ListHistory(ctx context.Context, key attendance.Key) ([]attendance.HistoryEntry, error) {
	var rows []historyRow
	err := repo.db.SelectContext(ctx, &rows, listHistorySQL, key.CourseID, key.ClassID, key.LessonID, key.StudentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance history")
	}

	entries := make([]attendance.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := row.toEntry()
		if vErr := entry.Validate(); vErr != nil {
			repo.quarantine(ctx, "attendance_history", key, row, vErr)
			return nil, core.NewMalformedStateError(key.String(), "stored history entry fails validation", vErr)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

const quarantineSQL = `
	INSERT INTO attendance_quarantine (source_table, record_key, payload, detail)
	VALUES ($1, $2, $3, $4)`

// quarantine copies an invalid stored row aside for manual review. The
// original row stays put so reads keep failing loudly instead of the
// audit trail silently shrinking.
func (repo *attendanceRepository) quarantine(ctx context.Context, table string, key attendance.Key, row interface{}, vErr error) {
	payload, err := json.Marshal(row)
	if err != nil {
		payload = []byte(`{}`)
	}
	_, _ = repo.db.ExecContext(ctx, quarantineSQL, table, key.String(), payload, vErr.Error())
}
