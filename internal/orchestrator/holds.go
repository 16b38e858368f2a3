package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/coursereg/registrar/internal/statemachine"
	"github.com/rs/zerolog/log"
)

// defaultHoldTTL mirrors the teacher's defaultHoldTTLSeconds (300s) for a
// pre-open hold taken via bookSeat while the course is CLOSED (spec.md §9's
// "bookSeat allowed in CLOSED (pre-open hold)" open question). This
// generalizes the teacher's seat_holds table into a TTL wrapped around a
// real ENROLLED booking, since this engine has no separate staging state
// between "free" and "booked".
const defaultHoldTTL = 5 * time.Minute

type pendingHold struct {
	studentID string
	courseID  string
	expiresAt time.Time
}

// HoldTracker is the in-process registry of pre-open holds awaiting
// expiry, adapted from the teacher's internal/workers/expire_holds.go
// (there a Postgres seat_holds table scanned by a ticker; here an
// in-memory set scanned the same way by Orchestrator.ExpireHolds).
type HoldTracker struct {
	mu    sync.Mutex
	holds map[string]pendingHold // keyed by courseID+"/"+studentID
}

func NewHoldTracker() *HoldTracker {
	return &HoldTracker{holds: make(map[string]pendingHold)}
}

func holdKey(courseID, studentID string) string { return courseID + "/" + studentID }

func (t *HoldTracker) put(courseID, studentID string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.holds[holdKey(courseID, studentID)] = pendingHold{
		studentID: studentID,
		courseID:  courseID,
		expiresAt: time.Now().Add(ttl),
	}
}

func (t *HoldTracker) remove(courseID, studentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.holds, holdKey(courseID, studentID))
}

func (t *HoldTracker) expired(now time.Time) []pendingHold {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []pendingHold
	for k, h := range t.holds {
		if !h.expiresAt.After(now) {
			out = append(out, h)
			delete(t.holds, k)
		}
	}
	return out
}

// BookSeatWithHold books seatNumber exactly like BookSeat, but if the
// course is still CLOSED the booking is tracked as a timed pre-open hold
// that auto-expires via ExpireHolds.
func (o *Orchestrator) BookSeatWithHold(ctx context.Context, studentID, courseID, seatNumber string) (AllocationResult, error) {
	result, err := o.BookSeat(ctx, studentID, courseID, seatNumber)
	if err != nil || !result.Success {
		return result, err
	}
	course, cerr := o.repo.GetCourse(ctx, courseID)
	if cerr == nil && statemachine.Status(course.Seats.BookingStatus) == statemachine.Closed {
		o.holds.put(courseID, studentID, defaultHoldTTL)
	}
	return result, err
}

// ExpireHolds releases any pre-open hold past its TTL, via the same Drop
// path a student's own cancellation would take (release seat, then invoke
// the Vacancy Filler). Intended to be called on a ticker from cmd/registrar,
// matching the teacher's 30-second HoldExpiryWorker loop.
func (o *Orchestrator) ExpireHolds(ctx context.Context) {
	for _, h := range o.holds.expired(time.Now()) {
		if _, err := o.Drop(ctx, h.studentID, h.courseID); err != nil {
			log.Warn().Err(err).Str("course_id", h.courseID).Str("student_id", h.studentID).Msg("orchestrator: failed to expire hold")
		}
	}
}

// CancelHold removes a tracked pre-open hold without dropping the booking.
// The drop handlers call it before Drop so that a student's own drop
// leaves no stale hold behind. OpenBooking does not call it, so a hold
// taken while the course was CLOSED still expires via ExpireHolds after
// the course opens.
func (o *Orchestrator) CancelHold(courseID, studentID string) {
	o.holds.remove(courseID, studentID)
}
