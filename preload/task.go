package preload

import "fmt"

// Priority orders preload work by distance from the current index.
type Priority uint8

// Priorities from least to most urgent.
const (
	Low Priority = iota
	Medium
	High
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Priority(%d)", p)
	}
}

// PriorityFor returns the priority of an index at the given distance from
// the current one.
func PriorityFor(distance int) Priority {
	if distance < 0 {
		distance = -distance
	}
	switch distance {
	case 1:
		return High
	case 2:
		return Medium
	default:
		return Low
	}
}

// State is the lifecycle of a Task.
type State uint8

// Task states.
const (
	Queued State = iota
	Loading
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Loading:
		return "loading"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Task is the preload record for one index.
type Task struct {
	Index    int
	Priority Priority
	State    State
	Err      error
}

// pending reports whether the task is queued or loading.
func (t *Task) pending() bool {
	return t.State == Queued || t.State == Loading
}
