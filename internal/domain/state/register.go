package state

import "context"

// Register is a compare-and-swap status cell keyed by entity id.
// Transition moves id from one status to another only if the stored status
// equals from; the boolean reports whether this caller performed the move.
type Register[S ~string] interface {
	Transition(ctx context.Context, id string, from, to S) (bool, error)
	TransitionWith(ctx context.Context, id string, from, to S, assigns ...Assign) (bool, error)
}

// Assign is an extra column assignment applied atomically with a transition.
type Assign struct {
	Column string
	Value  interface{}
}

// Set builds an Assign.
func Set(column string, value interface{}) Assign {
	return Assign{Column: column, Value: value}
}
