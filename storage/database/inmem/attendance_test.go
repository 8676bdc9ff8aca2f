package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/revolck/advancemais-front-sub011/core/attendance"
)

var testKey = attendance.Key{CourseID: "c1", ClassID: "t1", LessonID: "l1", StudentID: "s1"}

func testRecord(status attendance.Status, reason string) attendance.Record {
	return attendance.Record{
		Status:     status,
		Reason:     null.NewString(reason, reason != ""),
		Source:     attendance.SourceManual,
		RecordedAt: time.Now().UTC(),
	}
}

func testEntry(id string, from, to attendance.Status) attendance.HistoryEntry {
	return attendance.HistoryEntry{
		ID:         id,
		FromStatus: from,
		ToStatus:   to,
		ChangedAt:  time.Now().UTC(),
		ActorRole:  attendance.RoleAdmin,
	}
}

func TestAttendanceRepository(t *testing.T) {
	db, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	repo := NewAttendanceRepository(db)
	ctx := context.Background()

	if _, err = repo.GetRecord(ctx, testKey); errors.Cause(err) != attendance.ErrNotFound {
		t.Fatalf("GetRecord() on empty store error = %v, want ErrNotFound", err)
	}

	rec := testRecord(attendance.StatusPresent, "")
	entry := testEntry("e1", attendance.StatusPending, attendance.StatusPresent)
	if err = repo.SaveRecord(ctx, testKey, rec, entry); err != nil {
		t.Fatalf("SaveRecord() error = %v", err)
	}

	got, err := repo.GetRecord(ctx, testKey)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if got != rec {
		t.Errorf("GetRecord() = %+v, want %+v", got, rec)
	}

	// second save replaces the record and appends to the ledger
	rec2 := testRecord(attendance.StatusAbsent, "no-show")
	entry2 := testEntry("e2", attendance.StatusPresent, attendance.StatusAbsent)
	if err = repo.SaveRecord(ctx, testKey, rec2, entry2); err != nil {
		t.Fatalf("SaveRecord() error = %v", err)
	}

	got, _ = repo.GetRecord(ctx, testKey)
	if got != rec2 {
		t.Errorf("GetRecord() after overwrite = %+v, want %+v", got, rec2)
	}

	entries, err := repo.ListHistory(ctx, testKey)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListHistory() length = %d, want 2", len(entries))
	}
	if entries[0].ID != "e1" || entries[1].ID != "e2" {
		t.Errorf("ListHistory() order = [%s %s], want insertion order [e1 e2]", entries[0].ID, entries[1].ID)
	}

	// other keys remain untouched
	other := testKey
	other.StudentID = "s2"
	if _, err = repo.GetRecord(ctx, other); errors.Cause(err) != attendance.ErrNotFound {
		t.Errorf("GetRecord(other) error = %v, want ErrNotFound", err)
	}
	if entries, _ = repo.ListHistory(ctx, other); len(entries) != 0 {
		t.Errorf("ListHistory(other) length = %d, want 0", len(entries))
	}
}

func TestAttendanceRepository_historyCopyIsolated(t *testing.T) {
	db, _ := Open()
	repo := NewAttendanceRepository(db)
	ctx := context.Background()

	_ = repo.SaveRecord(ctx, testKey, testRecord(attendance.StatusPresent, ""), testEntry("e1", attendance.StatusPending, attendance.StatusPresent))

	entries, _ := repo.ListHistory(ctx, testKey)
	entries[0].ID = "mutated"

	fresh, _ := repo.ListHistory(ctx, testKey)
	if fresh[0].ID != "e1" {
		t.Error("ListHistory() must return a copy; caller mutation leaked into the store")
	}
}
