package attendance

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/revolck/advancemais-front-sub011/core"
)

// Modality is the delivery mode of a lesson.
type Modality string

const (
	ModalityOnSite  Modality = "ON_SITE"
	ModalityOnline  Modality = "ONLINE"
	ModalityLive    Modality = "LIVE"
	ModalityBlended Modality = "BLENDED"
)

var AllModalities = []Modality{ModalityOnSite, ModalityOnline, ModalityLive, ModalityBlended}

func (m Modality) Valid() bool {
	for _, known := range AllModalities {
		if m == known {
			return true
		}
	}
	return false
}

// Status is an attendance decision. PENDING is the only valid initial
// state; EXCUSED is only reachable through a manual action.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusExcused Status = "EXCUSED"
)

var AllStatuses = []Status{StatusPending, StatusPresent, StatusAbsent, StatusExcused}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Source tells whether a record was decided by the suggestion pipeline
// or by a human action.
type Source string

const (
	SourceAutomatic Source = "AUTOMATIC"
	SourceManual    Source = "MANUAL"
)

func (s Source) Valid() bool { return s == SourceAutomatic || s == SourceManual }

// Role is an actor role known to the platform.
type Role string

const (
	RoleAdmin            Role = "ADMIN"
	RoleModerator        Role = "MODERATOR"
	RolePedagogicalStaff Role = "PEDAGOGICAL_STAFF"
	RoleInstructor       Role = "INSTRUCTOR"
	RoleStudent          Role = "STUDENT"
	RoleCompany          Role = "COMPANY"
)

var AllRoles = []Role{RoleAdmin, RoleModerator, RolePedagogicalStaff, RoleInstructor, RoleStudent, RoleCompany}

// overrideRoles is the closed set of roles allowed to change a record
// once it has left PENDING.
var overrideRoles = map[Role]struct{}{
	RoleAdmin:            {},
	RoleModerator:        {},
	RolePedagogicalStaff: {},
}

func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// CanOverride reports whether the role may change an already-decided record.
func (r Role) CanOverride() bool {
	_, ok := overrideRoles[r]
	return ok
}

// Key identifies one attendance fact. Two records sharing all four
// components denote the same fact and must never coexist.
type Key struct {
	CourseID  string `json:"course_id"`
	ClassID   string `json:"class_id"`
	LessonID  string `json:"lesson_id"`
	StudentID string `json:"student_id"`
}

func (k Key) Validate() error {
	var flds []core.FieldError
	for _, req := range []struct{ field, val string }{
		{"course_id", k.CourseID},
		{"class_id", k.ClassID},
		{"lesson_id", k.LessonID},
		{"student_id", k.StudentID},
	} {
		if strings.TrimSpace(req.val) == "" {
			flds = append(flds, core.FieldError{Field: req.field, Error: "this field is required"})
		}
	}
	if flds != nil {
		return core.NewValidationError(errors.New("incomplete attendance key"), flds...)
	}
	return nil
}

// String joins the key components for use in keyed stores.
func (k Key) String() string {
	return strings.Join([]string{k.CourseID, k.ClassID, k.LessonID, k.StudentID}, ":")
}

// LessonTiming is read-only input supplied by the lesson catalog.
// A zero StartAt means the start instant is unknown.
type LessonTiming struct {
	Modality        Modality  `json:"modality"`
	StartAt         time.Time `json:"start_at"`
	EndAt           null.Time `json:"end_at"`
	DurationMinutes null.Int  `json:"duration_minutes"`
}

// EffectiveEnd resolves the instant the lesson is considered over:
// EndAt when set, else StartAt plus the duration when known, else StartAt.
// ok is false when no end can be determined.
func (lt LessonTiming) EffectiveEnd() (end time.Time, ok bool) {
	if lt.EndAt.Valid {
		return lt.EndAt.Time, true
	}
	if lt.StartAt.IsZero() {
		return time.Time{}, false
	}
	if lt.DurationMinutes.Valid {
		return lt.StartAt.Add(time.Duration(lt.DurationMinutes.Int) * time.Minute), true
	}
	return lt.StartAt, true
}

// Evidence carries the presence signals for a (lesson, student) pair.
// It is informational only and is never persisted with the record.
type Evidence struct {
	LastLoginAt      null.Time `json:"last_login_at"`
	LiveWatchMinutes null.Int  `json:"live_watch_minutes"`
}

// Record is the authoritative attendance decision for one key.
type Record struct {
	Status     Status      `json:"status"`
	Reason     null.String `json:"reason,omitempty"`
	Source     Source      `json:"source"`
	RecordedAt time.Time   `json:"recorded_at"` // UTC
}

// Validate checks the data-model invariants. Storage adapters also run
// it against loaded rows, where a failure means the stored state is
// malformed rather than the request.
func (r Record) Validate() error {
	var flds []core.FieldError
	if !r.Status.Valid() {
		flds = append(flds, core.FieldError{Field: "status", Error: "unknown status"})
	}
	if !r.Source.Valid() {
		flds = append(flds, core.FieldError{Field: "source", Error: "unknown source"})
	}
	switch r.Status {
	case StatusAbsent:
		if !r.Reason.Valid || strings.TrimSpace(r.Reason.String) == "" {
			flds = append(flds, core.FieldError{Field: "reason", Error: "a reason is required for an absence"})
		}
	case StatusPending, StatusPresent:
		if r.Reason.Valid {
			flds = append(flds, core.FieldError{Field: "reason", Error: "reason must be empty for this status"})
		}
	}
	if r.RecordedAt.IsZero() {
		flds = append(flds, core.FieldError{Field: "recorded_at", Error: "this field is required"})
	}
	if flds != nil {
		return core.NewValidationError(errors.New("invalid attendance record"), flds...)
	}
	return nil
}

// HistoryEntry is one accepted status transition. Entries are append-only;
// the ledger is the only place prior decisions remain visible after an
// override.
type HistoryEntry struct {
	ID             string      `json:"id"`
	FromStatus     Status      `json:"from_status"`
	ToStatus       Status      `json:"to_status"`
	FromReason     null.String `json:"from_reason,omitempty"`
	ToReason       null.String `json:"to_reason,omitempty"`
	ChangedAt      time.Time   `json:"changed_at"` // UTC
	ActorRole      Role        `json:"actor_role,omitempty"`
	ActorName      null.String `json:"actor_name,omitempty"`
	OverrideReason null.String `json:"override_reason,omitempty"`
}

func (e HistoryEntry) Validate() error {
	var flds []core.FieldError
	if strings.TrimSpace(e.ID) == "" {
		flds = append(flds, core.FieldError{Field: "id", Error: "this field is required"})
	}
	if !e.FromStatus.Valid() {
		flds = append(flds, core.FieldError{Field: "from_status", Error: "unknown status"})
	}
	if !e.ToStatus.Valid() {
		flds = append(flds, core.FieldError{Field: "to_status", Error: "unknown status"})
	}
	if e.ActorRole != "" && !e.ActorRole.Valid() {
		flds = append(flds, core.FieldError{Field: "actor_role", Error: "unknown role"})
	}
	if e.ChangedAt.IsZero() {
		flds = append(flds, core.FieldError{Field: "changed_at", Error: "this field is required"})
	}
	if flds != nil {
		return core.NewValidationError(errors.New("invalid history entry"), flds...)
	}
	return nil
}
