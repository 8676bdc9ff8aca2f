package attendance

import (
	"math"
	"time"
)

const (
	// DefaultPresenceWindowDays bounds how long after an asynchronous
	// lesson ends a login still counts as presence.
	DefaultPresenceWindowDays = 7

	// endTolerance keeps a lesson "not concluded" for a short while past
	// its effective end, so a same-moment evaluation stays PENDING.
	endTolerance = 10 * time.Minute

	liveWatchFraction      = 0.7
	liveWatchCapMinutes    = 45
	defaultDurationMinutes = 60
)

var NowFunc = time.Now // mockable

// SuggestStatus maps lesson timing and presence evidence to a
// recommended status. The result is informational only and is never
// persisted as fact. Pure: no side effects, never errors.
//
// EXCUSED is never suggested; excusing a student requires human judgment.
func SuggestStatus(timing LessonTiming, ev Evidence, presenceWindowDays ...int) Status {
	window := DefaultPresenceWindowDays
	if len(presenceWindowDays) > 0 && presenceWindowDays[0] > 0 {
		window = presenceWindowDays[0]
	}

	end, ok := timing.EffectiveEnd()
	if !ok {
		return StatusPending
	}
	if NowFunc().Before(end.Add(endTolerance)) {
		return StatusPending // lesson has not concluded yet
	}

	// no digital signal exists for physical attendance; a human must
	// confirm it
	if timing.Modality == ModalityOnSite {
		return StatusPending
	}

	if timing.Modality == ModalityLive {
		duration := float64(defaultDurationMinutes)
		if timing.DurationMinutes.Valid {
			duration = float64(timing.DurationMinutes.Int)
		}
		required := math.Round(duration * liveWatchFraction)
		if required > liveWatchCapMinutes {
			required = liveWatchCapMinutes
		}
		if ev.LiveWatchMinutes.Valid && float64(ev.LiveWatchMinutes.Int) >= required {
			return StatusPresent
		}
		return StatusAbsent
	}

	// ONLINE / BLENDED: graded on whether the student logged in within
	// the grace window after the lesson concluded, [end, end+window]
	// inclusive.
	if !ev.LastLoginAt.Valid {
		return StatusPending
	}
	login := ev.LastLoginAt.Time
	deadline := end.Add(time.Duration(window) * 24 * time.Hour)
	if !login.Before(end) && !login.After(deadline) {
		return StatusPresent
	}
	return StatusAbsent
}
