package inmemdb

import (
	"context"

	"github.com/revolck/advancemais-front-sub011/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db.att}
}

func (repo *attendanceRepository) GetRecord(_ context.Context, key attendance.Key) (attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if rec, ok := repo.db.records[key.String()]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) SaveRecord(_ context.Context, key attendance.Key, rec attendance.Record, entry attendance.HistoryEntry) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// single critical section: record and ledger entry land together
	k := key.String()
	repo.db.records[k] = &rec
	repo.db.history[k] = append(repo.db.history[k], entry)
	return nil
}

func (repo *attendanceRepository) ListHistory(_ context.Context, key attendance.Key) ([]attendance.HistoryEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stored := repo.db.history[key.String()]
	entries := make([]attendance.HistoryEntry, len(stored))
	copy(entries, stored)
	return entries, nil
}
