package attendance

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/revolck/advancemais-front-sub011/core"
)

var (
	// ErrNotFound is returned by repositories when no record exists for a key.
	ErrNotFound = errors.New("attendance record not found")

	errReasonRequired  = "a reason is required for an absence"
	errRecordLocked    = "attendance already recorded and cannot be changed"
	errPendingRollback = "a decided record cannot return to PENDING"
)

type (
	// Repository is the durable keyed store behind the service.
	// SaveRecord must persist the record and append the history entry as
	// one atomic unit: a reader must never observe one without the other.
	// ListHistory returns entries in insertion order; read-time ordering
	// is the service's concern.
	Repository interface {
		GetRecord(ctx context.Context, key Key) (Record, error)
		SaveRecord(ctx context.Context, key Key, rec Record, entry HistoryEntry) error
		ListHistory(ctx context.Context, key Key) ([]HistoryEntry, error)
	}

	Service struct {
		repo     Repository
		provider Provider
		window   int // presence window in days

		mutex sync.Mutex
		locks map[string]*sync.Mutex
	}
)

func NewService(repo Repository, provider Provider, presenceWindowDays int) *Service {
	if presenceWindowDays <= 0 {
		presenceWindowDays = DefaultPresenceWindowDays
	}
	return &Service{
		repo:     repo,
		provider: provider,
		window:   presenceWindowDays,
		locks:    make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing upserts for key. Upserts against
// different keys proceed independently. Locks are never reclaimed; the
// map is bounded by the number of distinct attendance keys seen.
func (svc *Service) keyLock(key Key) *sync.Mutex {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	lock, ok := svc.locks[key.String()]
	if !ok {
		lock = new(sync.Mutex)
		svc.locks[key.String()] = lock
	}
	return lock
}

// GetRecord returns the persisted record for key, or the implicit
// PENDING record when nothing has been decided yet.
func (svc *Service) GetRecord(ctx context.Context, key Key) (Record, error) {
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	rec, err := svc.repo.GetRecord(ctx, key)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Record{Status: StatusPending, Source: SourceAutomatic}, nil
		}
		return Record{}, errors.Wrap(err, "reading attendance record")
	}
	return rec, nil
}

// ListHistory returns the audit ledger for key, newest first.
// Ties on ChangedAt keep their insertion order.
func (svc *Service) ListHistory(ctx context.Context, key Key) ([]HistoryEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	entries, err := svc.repo.ListHistory(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "reading attendance history")
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ChangedAt.After(entries[j].ChangedAt)
	})
	return entries, nil
}

// Suggest computes the recommended status for the queried key using the
// configured evidence provider. The result is informational only.
func (svc *Service) Suggest(sq SuggestionQuery) (Status, Evidence) {
	timing := sq.timing()
	ev := svc.provider.Evidence(sq.LessonID, sq.StudentID, timing)

	window := svc.window
	if sq.PresenceWindowDays > 0 {
		window = sq.PresenceWindowDays
	}
	return SuggestStatus(timing, ev, window), ev
}

// Upsert applies a manual attendance decision. The read-modify-write
// sequence is serialized per key so two concurrent calls cannot both
// pass the authorization and no-op checks against a stale read.
func (svc *Service) Upsert(ctx context.Context, ua UpsertAttendance) (Record, error) {
	key := ua.key()
	if err := key.Validate(); err != nil {
		return Record{}, err
	}
	if !ua.Status.Valid() {
		return Record{}, core.NewValidationError(
			errors.New("unknown status"),
			core.FieldError{Field: "status", Error: "unknown status"},
		)
	}

	lock := svc.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := svc.repo.GetRecord(ctx, key)
	var existed bool
	switch {
	case err == nil:
		existed = true
	case errors.Cause(err) == ErrNotFound:
		existing = Record{Status: StatusPending}
	default:
		return Record{}, errors.Wrap(err, "reading attendance record")
	}

	// a record that has left PENDING is locked
	if existing.Status != StatusPending && !ua.ActorRole.CanOverride() {
		return Record{}, core.NewAuthorizationError(errRecordLocked)
	}

	var reason null.String
	switch ua.Status {
	case StatusAbsent:
		trimmed := core.CleanString(ua.Reason)
		if trimmed == "" {
			return Record{}, core.NewValidationError(
				errors.New(errReasonRequired),
				core.FieldError{Field: "reason", Error: errReasonRequired},
			)
		}
		reason = null.StringFrom(trimmed)
	case StatusExcused:
		if trimmed := core.CleanString(ua.Reason); trimmed != "" {
			reason = null.StringFrom(trimmed)
		}
	case StatusPending:
		if existing.Status != StatusPending {
			return Record{}, core.NewValidationError(
				errors.New(errPendingRollback),
				core.FieldError{Field: "status", Error: errPendingRollback},
			)
		}
	}
	// PENDING / PRESENT: the persisted reason is always null

	if existed && ua.Status == existing.Status && reason == existing.Reason {
		return existing, nil // no write, no history entry
	}

	now := NowFunc().UTC()
	rec := Record{
		Status:     ua.Status,
		Reason:     reason,
		Source:     SourceManual,
		RecordedAt: now,
	}
	entry := HistoryEntry{
		ID:             uuid.New().String(),
		FromStatus:     existing.Status,
		ToStatus:       rec.Status,
		FromReason:     existing.Reason,
		ToReason:       rec.Reason,
		ChangedAt:      now,
		ActorRole:      ua.ActorRole,
		ActorName:      null.NewString(ua.ActorName, ua.ActorName != ""),
		OverrideReason: null.NewString(ua.OverrideReason, ua.OverrideReason != ""),
	}
	if err = svc.repo.SaveRecord(ctx, key, rec, entry); err != nil {
		return Record{}, errors.Wrap(err, "saving attendance record")
	}
	return rec, nil
}
