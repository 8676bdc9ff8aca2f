package attendance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/revolck/advancemais-front-sub011/core"
)

// memRepo is a minimal in-memory Repository for service tests.
type memRepo struct {
	mu      sync.Mutex
	records map[string]Record
	history map[string][]HistoryEntry
	readErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		records: make(map[string]Record),
		history: make(map[string][]HistoryEntry),
	}
}

func (r *memRepo) GetRecord(_ context.Context, key Key) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return Record{}, r.readErr
	}
	if rec, ok := r.records[key.String()]; ok {
		return rec, nil
	}
	return Record{}, ErrNotFound
}

func (r *memRepo) SaveRecord(_ context.Context, key Key, rec Record, entry HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[key.String()] = rec
	r.history[key.String()] = append(r.history[key.String()], entry)
	return nil
}

func (r *memRepo) ListHistory(_ context.Context, key Key) ([]HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	entries := make([]HistoryEntry, len(r.history[key.String()]))
	copy(entries, r.history[key.String()])
	return entries, nil
}

var testKey = Key{CourseID: "c1", ClassID: "t1", LessonID: "l1", StudentID: "s1"}

func setupService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	return NewService(repo, HashProvider{}, 0), repo
}

func upsertReq(status Status, reason string, role Role) UpsertAttendance {
	return UpsertAttendance{
		CourseID:  testKey.CourseID,
		ClassID:   testKey.ClassID,
		LessonID:  testKey.LessonID,
		StudentID: testKey.StudentID,
		Status:    status,
		Reason:    reason,
		ActorRole: role,
		ActorName: "Test Actor",
	}
}

func TestService_GetRecord_implicitPending(t *testing.T) {
	svc, _ := setupService(t)

	rec, err := svc.GetRecord(context.Background(), testKey)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("GetRecord() status = %v, want PENDING", rec.Status)
	}
	if rec.Reason.Valid {
		t.Errorf("GetRecord() reason = %v, want null", rec.Reason)
	}
}

func TestService_Upsert_absentRequiresReason(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	for _, reason := range []string{"", "   ", "\t\n"} {
		_, err := svc.Upsert(ctx, upsertReq(StatusAbsent, reason, RoleAdmin))
		if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
			t.Errorf("Upsert(ABSENT, %q) error = %v, want *core.ValidationError", reason, err)
		}
	}
	if len(repo.history[testKey.String()]) != 0 {
		t.Error("rejected upserts must not append history entries")
	}

	// the rule holds regardless of the prior state
	if _, err := svc.Upsert(ctx, upsertReq(StatusPresent, "", RoleStudent)); err != nil {
		t.Fatalf("Upsert(PRESENT) error = %v", err)
	}
	_, err := svc.Upsert(ctx, upsertReq(StatusAbsent, "", RoleAdmin))
	if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
		t.Errorf("Upsert(ABSENT, empty) on decided record error = %v, want *core.ValidationError", err)
	}
}

func TestService_Upsert_authorization(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	// a PENDING record is not locked: any actor may make the first decision
	if _, err := svc.Upsert(ctx, upsertReq(StatusPresent, "", RoleStudent)); err != nil {
		t.Fatalf("first decision error = %v", err)
	}

	// now locked: a student cannot change it
	_, err := svc.Upsert(ctx, upsertReq(StatusExcused, "", RoleStudent))
	if _, ok := errors.Cause(err).(*core.AuthorizationError); !ok {
		t.Fatalf("override as student error = %v, want *core.AuthorizationError", err)
	}

	// an admin can
	rec, err := svc.Upsert(ctx, upsertReq(StatusAbsent, "no-show confirmed by instructor", RoleAdmin))
	if err != nil {
		t.Fatalf("override as admin error = %v", err)
	}
	if rec.Status != StatusAbsent {
		t.Errorf("override status = %v, want ABSENT", rec.Status)
	}

	entries, err := svc.ListHistory(ctx, testKey)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history length = %d, want 2", len(entries))
	}
	if entries[0].FromStatus != StatusPresent || entries[0].ToStatus != StatusAbsent {
		t.Errorf("newest entry = %v -> %v, want PRESENT -> ABSENT", entries[0].FromStatus, entries[0].ToStatus)
	}
	if entries[0].ActorRole != RoleAdmin {
		t.Errorf("newest entry actor role = %v, want ADMIN", entries[0].ActorRole)
	}
}

func TestService_Upsert_moderatorOnUnsetRecord(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	// an unset record is still PENDING, so no override authority is needed
	rec, err := svc.Upsert(ctx, upsertReq(StatusAbsent, "no-show confirmed by instructor", RoleModerator))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if rec.Status != StatusAbsent || rec.Source != SourceManual {
		t.Errorf("record = %+v, want manual ABSENT", rec)
	}

	entries, _ := svc.ListHistory(ctx, testKey)
	if len(entries) != 1 {
		t.Fatalf("history length = %d, want 1", len(entries))
	}
	if entries[0].FromStatus != StatusPending || entries[0].ToStatus != StatusAbsent {
		t.Errorf("entry = %v -> %v, want PENDING -> ABSENT", entries[0].FromStatus, entries[0].ToStatus)
	}
}

func TestService_Upsert_noop(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, upsertReq(StatusAbsent, "sick", RoleAdmin))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	second, err := svc.Upsert(ctx, upsertReq(StatusAbsent, "  sick  ", RoleAdmin))
	if err != nil {
		t.Fatalf("repeat Upsert() error = %v", err)
	}

	if second != first {
		t.Errorf("repeat upsert = %+v, want unchanged %+v", second, first)
	}
	if got := len(repo.history[testKey.String()]); got != 1 {
		t.Errorf("history length = %d, want 1 (no-op must not log)", got)
	}

	// a different reason on the same status is a new decision
	if _, err = svc.Upsert(ctx, upsertReq(StatusAbsent, "family emergency", RoleAdmin)); err != nil {
		t.Fatalf("reason change Upsert() error = %v", err)
	}
	if got := len(repo.history[testKey.String()]); got != 2 {
		t.Errorf("history length = %d, want 2 after reason change", got)
	}
}

func TestService_Upsert_reasonNormalization(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	// PRESENT discards any supplied reason
	rec, err := svc.Upsert(ctx, upsertReq(StatusPresent, "was on camera", RoleInstructor))
	if err != nil {
		t.Fatalf("Upsert(PRESENT) error = %v", err)
	}
	if rec.Reason.Valid {
		t.Errorf("PRESENT reason = %v, want null", rec.Reason)
	}

	// EXCUSED keeps a trimmed reason, or none at all
	rec, err = svc.Upsert(ctx, upsertReq(StatusExcused, "  medical leave  ", RoleAdmin))
	if err != nil {
		t.Fatalf("Upsert(EXCUSED) error = %v", err)
	}
	if !rec.Reason.Valid || rec.Reason.String != "medical leave" {
		t.Errorf("EXCUSED reason = %v, want %q", rec.Reason, "medical leave")
	}

	rec, err = svc.Upsert(ctx, upsertReq(StatusExcused, "   ", RoleAdmin))
	if err != nil {
		t.Fatalf("Upsert(EXCUSED, blank) error = %v", err)
	}
	if rec.Reason.Valid {
		t.Errorf("EXCUSED blank reason = %v, want null", rec.Reason)
	}
}

func TestService_Upsert_noPathBackToPending(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, upsertReq(StatusPresent, "", RoleAdmin)); err != nil {
		t.Fatalf("Upsert(PRESENT) error = %v", err)
	}
	_, err := svc.Upsert(ctx, upsertReq(StatusPending, "", RoleAdmin))
	if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
		t.Errorf("Upsert(PENDING) on decided record error = %v, want *core.ValidationError", err)
	}
}

func TestService_Upsert_invalidStatus(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Upsert(context.Background(), upsertReq(Status("MAYBE"), "", RoleAdmin))
	if _, ok := errors.Cause(err).(*core.ValidationError); !ok {
		t.Errorf("Upsert(MAYBE) error = %v, want *core.ValidationError", err)
	}
}

func TestService_Upsert_malformedStateSurfaces(t *testing.T) {
	svc, repo := setupService(t)
	repo.readErr = core.NewMalformedStateError(testKey.String(), "stored record fails validation", nil)

	_, err := svc.Upsert(context.Background(), upsertReq(StatusPresent, "", RoleAdmin))
	if _, ok := errors.Cause(err).(*core.MalformedStateError); !ok {
		t.Errorf("Upsert() error = %v, want *core.MalformedStateError", err)
	}
}

func TestService_ListHistory_newestFirst(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	base := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	steps := []struct {
		at     time.Time
		status Status
		reason string
	}{
		{base, StatusPresent, ""},
		{base.Add(time.Hour), StatusAbsent, "left early"},
		{base.Add(2 * time.Hour), StatusExcused, "medical leave"},
	}
	for _, step := range steps {
		at := step.at
		NowFunc = func() time.Time { return at }
		if _, err := svc.Upsert(ctx, upsertReq(step.status, step.reason, RoleAdmin)); err != nil {
			t.Fatalf("Upsert(%v) error = %v", step.status, err)
		}
	}
	NowFunc = time.Now

	entries, err := svc.ListHistory(ctx, testKey)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("history length = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ChangedAt.After(entries[i-1].ChangedAt) {
			t.Errorf("history not newest-first at index %d: %v before %v", i, entries[i-1].ChangedAt, entries[i].ChangedAt)
		}
	}
	if entries[0].ToStatus != StatusExcused {
		t.Errorf("newest entry status = %v, want EXCUSED", entries[0].ToStatus)
	}
}

// Concurrent upserts against one key must serialize: every accepted
// write appends exactly one ledger entry and the record always matches
// the newest entry.
func TestService_Upsert_concurrentSameKey(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			req := upsertReq(StatusAbsent, fmt.Sprintf("reason %d", i), RoleAdmin)
			if _, err := svc.Upsert(ctx, req); err != nil {
				t.Errorf("concurrent Upsert(%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	// all reasons are distinct, so no write can be a no-op
	entries := repo.history[testKey.String()]
	if len(entries) != writers {
		t.Fatalf("history length = %d, want %d", len(entries), writers)
	}
	last := entries[len(entries)-1]
	rec := repo.records[testKey.String()]
	if rec.Status != last.ToStatus || rec.Reason != last.ToReason {
		t.Errorf("record %+v does not match newest ledger entry %+v", rec, last)
	}
}

func TestService_Upsert_distinctKeysIndependent(t *testing.T) {
	svc, repo := setupService(t)
	ctx := context.Background()

	const students = 8
	var wg sync.WaitGroup
	wg.Add(students)
	for i := 0; i < students; i++ {
		go func(i int) {
			defer wg.Done()
			req := upsertReq(StatusPresent, "", RoleInstructor)
			req.StudentID = fmt.Sprintf("s%d", i)
			if _, err := svc.Upsert(ctx, req); err != nil {
				t.Errorf("Upsert(student %d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := len(repo.records); got != students {
		t.Errorf("records = %d, want %d", got, students)
	}
}
