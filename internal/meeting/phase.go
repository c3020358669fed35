package meeting

import "time"

// Phase is the derived lifecycle state of an assembly. It is never
// persisted; callers recompute it from the schedule and a clock reading.
type Phase string

const (
	PhaseScheduled  Phase = "scheduled"
	PhaseAvailable  Phase = "available"
	PhaseInProgress Phase = "inProgress"
	PhaseFinished   Phase = "finished"
)

const (
	// DefaultDurationMinutes applies when a meeting has no estimated
	// duration.
	DefaultDurationMinutes = 240

	// JoinWindow is how long before the scheduled start the join action
	// opens.
	JoinWindow = 60 * time.Minute
)

type Schedule struct {
	ScheduledAt              time.Time
	EstimatedDurationMinutes int
}

func (s Schedule) effectiveDuration() time.Duration {
	minutes := s.EstimatedDurationMinutes
	if minutes <= 0 {
		minutes = DefaultDurationMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// End is the instant the meeting is considered over.
func (s Schedule) End() time.Time {
	return s.ScheduledAt.Add(s.effectiveDuration())
}

// Classify derives the phase of a meeting at the given instant. The clock
// is an explicit parameter; a valid ScheduledAt is a caller precondition.
func Classify(schedule Schedule, now time.Time) Phase {
	start := schedule.ScheduledAt
	switch {
	case now.Before(start.Add(-JoinWindow)):
		return PhaseScheduled
	case now.Before(start):
		return PhaseAvailable
	case now.Before(schedule.End()):
		return PhaseInProgress
	default:
		return PhaseFinished
	}
}

// CanJoin reports whether the join action is permitted in the phase.
func CanJoin(phase Phase) bool {
	return phase == PhaseAvailable || phase == PhaseInProgress
}
