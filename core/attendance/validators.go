package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/revolck/advancemais-front-sub011/core"
)

// UpsertAttendance contains a manual attendance decision for one key.
// Actor fields come from the session context, never from the payload.
type UpsertAttendance struct {
	CourseID  string `json:"course_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
	LessonID  string `json:"lesson_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	Status    Status `json:"status" validate:"required,oneof=PENDING PRESENT ABSENT EXCUSED"`
	Reason    string `json:"reason"`

	ActorRole      Role   `json:"-"`
	ActorName      string `json:"-"`
	OverrideReason string `json:"override_reason"`
}

func (ua *UpsertAttendance) Validate(validate *validator.Validate) error {
	ua.CourseID = core.CleanString(ua.CourseID)
	ua.ClassID = core.CleanString(ua.ClassID)
	ua.LessonID = core.CleanString(ua.LessonID)
	ua.StudentID = core.CleanString(ua.StudentID)
	ua.Reason = core.CleanString(ua.Reason)
	ua.ActorName = core.CleanString(ua.ActorName)
	ua.OverrideReason = core.CleanString(ua.OverrideReason)
	return validate.Struct(ua)
}

func (ua UpsertAttendance) key() Key {
	return Key{
		CourseID:  ua.CourseID,
		ClassID:   ua.ClassID,
		LessonID:  ua.LessonID,
		StudentID: ua.StudentID,
	}
}

// SuggestionQuery asks for a recommendation for one key given the
// lesson's timing as supplied by the lesson catalog.
type SuggestionQuery struct {
	CourseID  string   `json:"course_id" validate:"required"`
	ClassID   string   `json:"class_id" validate:"required"`
	LessonID  string   `json:"lesson_id" validate:"required"`
	StudentID string   `json:"student_id" validate:"required"`
	Modality  Modality `json:"modality" validate:"required,oneof=ON_SITE ONLINE LIVE BLENDED"`

	StartAt            null.Time `json:"start_at"`
	EndAt              null.Time `json:"end_at"`
	DurationMinutes    null.Int  `json:"duration_minutes"`
	PresenceWindowDays int       `json:"presence_window_days" validate:"omitempty,min=1"`
}

func (sq *SuggestionQuery) Validate(validate *validator.Validate) error {
	sq.CourseID = core.CleanString(sq.CourseID)
	sq.ClassID = core.CleanString(sq.ClassID)
	sq.LessonID = core.CleanString(sq.LessonID)
	sq.StudentID = core.CleanString(sq.StudentID)
	return validate.Struct(sq)
}

func (sq SuggestionQuery) key() Key {
	return Key{
		CourseID:  sq.CourseID,
		ClassID:   sq.ClassID,
		LessonID:  sq.LessonID,
		StudentID: sq.StudentID,
	}
}

func (sq SuggestionQuery) timing() LessonTiming {
	var start time.Time
	if sq.StartAt.Valid {
		start = sq.StartAt.Time
	}
	return LessonTiming{
		Modality:        sq.Modality,
		StartAt:         start,
		EndAt:           sq.EndAt,
		DurationMinutes: sq.DurationMinutes,
	}
}
