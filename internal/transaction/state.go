package transaction

// State is the lifecycle state the appliance reports for a transaction.
type State string

const (
	StateOpen       State = "OPEN"
	StateValidating State = "VALIDATING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether s can no longer change. Unknown states are
// treated as terminal.
func (s State) Terminal() bool {
	switch s {
	case StateOpen, StateValidating, "":
		return false
	default:
		return true
	}
}

func (s State) String() string {
	if s == "" {
		return "UNKNOWN"
	}
	return string(s)
}
