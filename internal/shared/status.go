package shared

// Status classifies how complete a computed report is.
type Status string

// Report statuses, ordered from best to worst.
const (
	StatusComplete Status = "complete"
	StatusDegraded Status = "degraded"
	StatusEmpty    Status = "empty"
)

func (s Status) rank() int {
	switch s {
	case StatusComplete:
		return 0
	case StatusDegraded:
		return 1
	case StatusEmpty:
		return 2
	default:
		return 0
	}
}

func (s Status) String() string { return string(s) }

// IsValid reports whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusComplete, StatusDegraded, StatusEmpty:
		return true
	default:
		return false
	}
}

// Worst returns the least complete of the supplied statuses.
func Worst(statuses ...Status) Status {
	out := StatusComplete
	for _, s := range statuses {
		if s.rank() > out.rank() {
			out = s
		}
	}
	return out
}
