package lifecycle

import (
	"fmt"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/lifecycle/entity"
)

// transitions lists the legal successors of every workflow state.
var transitions = map[entity.State][]entity.State{
	entity.StateNone:       {entity.StateSubmitting},
	entity.StateSubmitting: {entity.StatePending, entity.StateNone},
	entity.StatePending:    {entity.StateReviewing},
	entity.StateReviewing:  {entity.StateApproved, entity.StateRejected},
	entity.StateApproved:   nil,
	entity.StateRejected:   nil,
}

func canTransition(from, to entity.State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// reviewPath returns the states to step through to move from the current
// review state to target, target included. An observed status may be ahead
// of the next legal state when a poll misses an intermediate update; the
// missing states are walked in order so every exit action still runs. An
// empty path means target is the current state.
func reviewPath(from, to entity.State) ([]entity.State, error) {
	if from == to {
		return nil, nil
	}
	var path []entity.State
	cur := from
	for cur != to {
		next, ok := stepToward(cur, to)
		if !ok {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		path = append(path, next)
		cur = next
	}
	return path, nil
}

func stepToward(cur, to entity.State) (entity.State, bool) {
	if canTransition(cur, to) {
		return to, true
	}
	switch cur {
	case entity.StatePending:
		if to == entity.StateApproved || to == entity.StateRejected {
			return entity.StateReviewing, true
		}
	}
	return "", false
}
