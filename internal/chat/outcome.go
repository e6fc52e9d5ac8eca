package chat

// OutcomeKind tells how an exchange ended.
type OutcomeKind int

const (
	OutcomeResolved OutcomeKind = iota + 1
	OutcomeFailed
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResolved:
		return "resolved"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the settled result of a Turn. Reply is set for resolved turns,
// Err for the others.
type Outcome struct {
	Kind  OutcomeKind
	Reply string
	Err   error
}

// Visible reports whether the failure should be shown to the user.
// Cancelled exchanges never are.
func (o Outcome) Visible() bool {
	return o.Kind == OutcomeFailed
}
