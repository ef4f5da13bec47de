package domain

// Transition is a named, role-gated operation that moves a booking from
// one status to another.
type Transition string

const (
	TransitionCreate   Transition = "create"
	TransitionAccept   Transition = "accept"
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
)

func ParseTransition(s string) (Transition, bool) {
	switch Transition(s) {
	case TransitionAccept, TransitionStart, TransitionComplete, TransitionCancel:
		return Transition(s), true
	default:
		return "", false
	}
}

// graph defines every legal edge. Terminal states have no entry, so any
// transition attempted from them is invalid.
var graph = map[Status]map[Transition]Status{
	StatusPending: {
		TransitionAccept: StatusAccepted,
		TransitionCancel: StatusCancelled,
	},
	StatusAccepted: {
		TransitionStart:  StatusInProgress,
		TransitionCancel: StatusCancelled,
	},
	StatusInProgress: {
		TransitionComplete: StatusCompleted,
		TransitionCancel:   StatusCancelled,
	},
}

// permissions is the static role table checked before the conditional
// write. Cancel is open to both parties; everything else is the
// provider's move.
var permissions = map[Transition][]Role{
	TransitionAccept:   {RoleProvider},
	TransitionStart:    {RoleProvider},
	TransitionComplete: {RoleProvider},
	TransitionCancel:   {RoleRequester, RoleProvider},
}

// NextStatus resolves the target status for applying t from the given
// status. The second return is false when the edge is not in the graph.
func NextStatus(from Status, t Transition) (Status, bool) {
	edges, ok := graph[from]
	if !ok {
		return "", false
	}
	to, ok := edges[t]
	return to, ok
}

// AllowedTransitions lists the transitions defined from the given
// status, in a stable order. Empty for terminal states.
func AllowedTransitions(from Status) []Transition {
	edges, ok := graph[from]
	if !ok {
		return nil
	}
	ordered := []Transition{TransitionAccept, TransitionStart, TransitionComplete, TransitionCancel}
	out := make([]Transition, 0, len(edges))
	for _, t := range ordered {
		if _, ok := edges[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// RoleAllowed reports whether the role may request the transition at
// all, independent of booking state.
func RoleAllowed(t Transition, r Role) bool {
	for _, allowed := range permissions[t] {
		if allowed == r {
			return true
		}
	}
	return false
}
