package orchestrator

// TaskStatus is the lifecycle state of a task as reported by the engine.
type TaskStatus string

const (
	StatusUnknown   TaskStatus = "Unknown"
	StatusRequested TaskStatus = "Requested"
	StatusRunning   TaskStatus = "Running"
	StatusStopped   TaskStatus = "Stopped"
	StatusDone      TaskStatus = "Done"
	StatusError     TaskStatus = "Error"
)

// engineStatuses maps the engine's status strings. Matching is exact and
// case-sensitive; anything else is StatusUnknown.
var engineStatuses = map[string]TaskStatus{
	"Requested":      StatusRequested,
	"Queued":         StatusRequested,
	"Running":        StatusRunning,
	"Stop Requested": StatusRunning,
	"Stopped":        StatusStopped,
	"Interrupted":    StatusStopped,
	"Done":           StatusDone,
	"Error":          StatusError,
}

// ParseTaskStatus maps an engine status string to a TaskStatus.
func ParseTaskStatus(s string) TaskStatus {
	if status, ok := engineStatuses[s]; ok {
		return status
	}
	return StatusUnknown
}

// IsTerminal reports whether the task will not change state on its own.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusDone, StatusStopped, StatusError:
		return true
	default:
		return false
	}
}

func (s TaskStatus) String() string {
	return string(s)
}
