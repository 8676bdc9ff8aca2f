package inmemdb

import (
	"sync"

	"github.com/revolck/advancemais-front-sub011/core/attendance"
)

type (
	DB struct {
		att *attendanceTable
	}

	attendanceTable struct {
		mutex   sync.RWMutex
		records map[string]*attendance.Record
		history map[string][]attendance.HistoryEntry
	}
)

func Open() (*DB, error) {
	db := &DB{
		att: &attendanceTable{
			records: make(map[string]*attendance.Record),
			history: make(map[string][]attendance.HistoryEntry),
		},
	}
	return db, nil
}
