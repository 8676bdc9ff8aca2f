package attendance

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/volatiletech/null/v8"
)

// Provider derives presence evidence for a (lesson, student) pair.
// Implementations must be pure and deterministic: same inputs, same
// evidence. The suggestion engine never depends on how evidence is
// derived, so a real telemetry source can replace any implementation
// without touching other components.
type Provider interface {
	Evidence(lessonID, studentID string, timing LessonTiming) Evidence
}

// HashProvider fabricates deterministic evidence from a stable hash of
// the lesson/student pair. It stands in for the platform's telemetry
// pipeline (login events, live-session watch time) until that pipeline
// exists.
type HashProvider struct{}

var _ Provider = HashProvider{}

const loginOffsetWindow = 72 * 60 * 60 // seconds either side of the lesson end

func (HashProvider) Evidence(lessonID, studentID string, timing LessonTiming) Evidence {
	end, ok := timing.EffectiveEnd()
	if !ok {
		return Evidence{}
	}

	sum := sha256.Sum256([]byte(lessonID + "::" + studentID))
	loginSeed := binary.BigEndian.Uint64(sum[:8])
	watchSeed := binary.BigEndian.Uint64(sum[8:16])

	// last login lands within +-72h of the lesson's effective end
	offset := time.Duration(int64(loginSeed%(2*loginOffsetWindow+1))-loginOffsetWindow) * time.Second

	duration := int64(defaultDurationMinutes)
	if timing.DurationMinutes.Valid {
		duration = int64(timing.DurationMinutes.Int)
	}
	if duration < 0 {
		duration = 0
	}

	return Evidence{
		LastLoginAt:      null.TimeFrom(end.Add(offset)),
		LiveWatchMinutes: null.IntFrom(int(watchSeed % uint64(duration+1))),
	}
}
