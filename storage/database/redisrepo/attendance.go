package redisrepo

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/revolck/advancemais-front-sub011/core"
	"github.com/revolck/advancemais-front-sub011/core/attendance"
)

// Key layout:
//
//	attendance:rec:<course:class:lesson:student>        record JSON
//	attendance:hist:<course:class:lesson:student>       history list, JSON per entry
//	attendance:quarantine:<course:class:lesson:student> set of payloads that failed validation
const (
	recPrefix        = "attendance:rec:"
	histPrefix       = "attendance:hist:"
	quarantinePrefix = "attendance:quarantine:"
)

type attendanceRepository struct {
	rdb *redis.Client
}

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{rdb: db.Client}
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, key attendance.Key) (attendance.Record, error) {
	payload, err := repo.rdb.Get(ctx, recPrefix+key.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "reading attendance record")
	}

	rec, decErr := decodeRecord([]byte(payload))
	if decErr != nil {
		repo.quarantine(ctx, key, payload)
		return attendance.Record{}, core.NewMalformedStateError(key.String(), "stored record fails validation", decErr)
	}
	return rec, nil
}

func (repo *attendanceRepository) SaveRecord(ctx context.Context, key attendance.Key, rec attendance.Record, entry attendance.HistoryEntry) error {
	recPayload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding attendance record")
	}
	entryPayload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encoding history entry")
	}

	// record set and ledger append commit together
	pipe := repo.rdb.TxPipeline()
	pipe.Set(ctx, recPrefix+key.String(), recPayload, 0)
	pipe.RPush(ctx, histPrefix+key.String(), entryPayload)
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "writing attendance record")
}

func (repo *attendanceRepository) ListHistory(ctx context.Context, key attendance.Key) ([]attendance.HistoryEntry, error) {
	payloads, err := repo.rdb.LRange(ctx, histPrefix+key.String(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "reading attendance history")
	}

	entries := make([]attendance.HistoryEntry, 0, len(payloads))
	for _, payload := range payloads {
		entry, decErr := decodeHistoryEntry([]byte(payload))
		if decErr != nil {
			repo.quarantine(ctx, key, payload)
			return nil, core.NewMalformedStateError(key.String(), "stored history entry fails validation", decErr)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// quarantine copies an invalid stored payload aside for manual review.
// SADD keeps the copy idempotent across repeated failing reads; the
// original entry stays put so the failure keeps surfacing.
func (repo *attendanceRepository) quarantine(ctx context.Context, key attendance.Key, payload string) {
	_ = repo.rdb.SAdd(ctx, quarantinePrefix+key.String(), payload).Err()
}

func decodeRecord(payload []byte) (attendance.Record, error) {
	var rec attendance.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return attendance.Record{}, errors.Wrap(err, "decoding record")
	}
	if err := rec.Validate(); err != nil {
		return attendance.Record{}, err
	}
	return rec, nil
}

func decodeHistoryEntry(payload []byte) (attendance.HistoryEntry, error) {
	var entry attendance.HistoryEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return attendance.HistoryEntry{}, errors.Wrap(err, "decoding history entry")
	}
	if err := entry.Validate(); err != nil {
		return attendance.HistoryEntry{}, err
	}
	return entry, nil
}
