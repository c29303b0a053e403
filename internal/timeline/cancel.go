package timeline

import (
	"time"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// closedOnCancellation lists the phases a cancelled challenge must stop
// accepting work in. Review-type phases are left for the review subsystem.
var closedOnCancellation = map[string]bool{
	phase.NameRegistration:         true,
	phase.NameSubmission:           true,
	phase.NameCheckpointSubmission: true,
}

// CloseOnCancellation returns a copy of instances with every open
// Registration, Submission and Checkpoint Submission phase closed at now.
// Applying it twice is the same as applying it once.
func CloseOnCancellation(instances []phase.Instance, now time.Time) []phase.Instance {
	out := phase.CloneAll(instances)
	for i := range out {
		in := &out[i]
		if !in.IsOpen || !closedOnCancellation[in.Name] {
			continue
		}
		in.IsOpen = false
		in.ActualEnd = phase.TimePtr(now)
	}
	return out
}
