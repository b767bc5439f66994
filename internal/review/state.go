package review

type State string

const (
	StateDrafted       State = "DRAFTED"
	StatePendingReview State = "PENDING_REVIEW"
	StateApplied       State = "APPLIED"
	StateDiscarded     State = "DISCARDED"
)

type Event string

const (
	EventStage     Event = "stage"
	EventBypass    Event = "bypass"
	EventConfirm   Event = "confirm"
	EventCancel    Event = "cancel"
	EventSupersede Event = "supersede"
)

// transitions lists every legal move; anything absent is rejected.
var transitions = map[State]map[Event]State{
	StateDrafted: {
		EventStage:     StatePendingReview,
		EventBypass:    StateApplied,
		EventSupersede: StateDiscarded,
	},
	StatePendingReview: {
		EventConfirm:   StateApplied,
		EventCancel:    StateDiscarded,
		EventSupersede: StateDiscarded,
	},
}

func nextState(from State, event Event) (State, error) {
	to, ok := transitions[from][event]
	if !ok {
		return from, invalidTransition(from, event)
	}
	return to, nil
}

// Open reports whether a review in this state can still be superseded.
func (s State) Open() bool {
	_, ok := transitions[s][EventSupersede]
	return ok
}
