package calls

// Status is the lifecycle stage of a call record.
type Status string

const (
	StatusInitiating        Status = "initiating"
	StatusCalling           Status = "calling"
	StatusAnalyzing         Status = "analyzing"
	StatusPreparingFollowup Status = "preparing_followup"
	StatusSendingSMS        Status = "sending_sms"
	StatusAddingToCRM       Status = "adding_to_crm"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// forward is the only order a record may advance in.
var forward = []Status{
	StatusInitiating,
	StatusCalling,
	StatusAnalyzing,
	StatusPreparingFollowup,
	StatusSendingSMS,
	StatusAddingToCRM,
	StatusCompleted,
}

func (s Status) Valid() bool {
	if s == StatusFailed {
		return true
	}
	for _, f := range forward {
		if f == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Next returns the immediate forward successor of s.
func (s Status) Next() (Status, bool) {
	for i := 0; i < len(forward)-1; i++ {
		if forward[i] == s {
			return forward[i+1], true
		}
	}
	return "", false
}

// CanTransition reports whether from -> to is a legal single step: the next
// forward state, or FAILED from any non-terminal state.
func CanTransition(from, to Status) bool {
	if !from.Valid() || from.Terminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

// NonTerminal lists every status a record can still leave.
func NonTerminal() []Status {
	return append([]Status(nil), forward[:len(forward)-1]...)
}
