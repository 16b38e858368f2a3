// Package statemachine centralizes the Course bookingStatus transitions and
// action gating that the teacher repo spread across inline string checks
// in its handlers (hold.Status != "active", bookingRow.Status != "active").
package statemachine

import "github.com/coursereg/registrar/internal/domain"

// Status is the typed bookingStatus enum.
type Status string

const (
	Closed        Status = "CLOSED"
	Open          Status = "OPEN"
	WaitlistOnly  Status = "WAITLIST_ONLY"
	Started       Status = "STARTED"
	Completed     Status = "COMPLETED"
)

// transitions is the adjacency table from spec.md §4.3. A transition not
// present here is rejected.
var transitions = map[Status]map[Status]bool{
	Closed:       {Open: true, WaitlistOnly: true},
	Open:         {WaitlistOnly: true, Started: true},
	WaitlistOnly: {Started: true},
	Started:      {Completed: true},
	Completed:    {},
}

// Machine validates and performs Course state transitions.
type Machine struct{}

func NewMachine() *Machine { return &Machine{} }

// CanTransition reports whether from -> to is an allowed edge.
func (m *Machine) CanTransition(from, to Status) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Transition validates the edge and returns the new status, or a
// StateViolation error citing the current status.
func (m *Machine) Transition(from, to Status) (Status, error) {
	if !m.CanTransition(from, to) {
		return from, domain.StateViolation("cannot transition from " + string(from) + " to " + string(to))
	}
	return to, nil
}

// ApplyRoute is what the gating matrix says `apply` should do, absent
// autoRegister.
type ApplyRoute string

const (
	RouteBookDirect ApplyRoute = "BOOK_DIRECT"
	RouteWaitlist   ApplyRoute = "WAITLIST"
	RouteReject     ApplyRoute = "REJECT"
)

// ApplyRouteFor implements the §4.3 gating matrix. seatsAvailable is only
// consulted when status == Open.
func ApplyRouteFor(status Status, autoRegister bool, seatsAvailable bool) ApplyRoute {
	if autoRegister {
		// autoRegister always waitlists regardless of state, including on an
		// OPEN course with free seats and on a COMPLETED course.
		return RouteWaitlist
	}
	switch status {
	case Closed, WaitlistOnly, Started:
		return RouteWaitlist
	case Open:
		if seatsAvailable {
			return RouteBookDirect
		}
		return RouteWaitlist
	case Completed:
		return RouteReject
	default:
		return RouteReject
	}
}

// BookSeatAllowed reports whether bookSeat's explicit seat choice is
// permitted in the given status. WAITLIST_ONLY redirects to enqueue
// (the caller should route to Waitlist.enqueue instead); COMPLETED rejects.
func BookSeatAllowed(status Status) bool {
	switch status {
	case Open, Closed, Started:
		return true
	default:
		return false
	}
}
