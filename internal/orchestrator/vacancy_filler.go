package orchestrator

import (
	"context"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/eventbus"
)

// FillVacancy runs one Vacancy Filler iteration for courseID (§4.5): pop
// the top waitlist candidate, attempt to book a free seat for them, and
// either mark them allocated and return their seat, or revert-and-stop.
//
// This deliberately replaces the teacher's promoter.go
// (ProcessWaitlistForEvent), which loops through the *entire* waitlist per
// run; the spec's one-revert-then-stop rule is a spec-mandated behaviour
// change to avoid head-of-line livelock (spec.md §4.5). Callers that want
// to drain the whole waitlist (openBooking) call FillVacancy in a loop
// until it returns "".
func (o *Orchestrator) FillVacancy(ctx context.Context, courseID string) (string, error) {
	course, err := o.repo.GetCourse(ctx, courseID)
	if err != nil {
		return "", err
	}

	occupied, err := o.occupiedSeats(ctx, courseID)
	if err != nil {
		return "", err
	}
	if len(occupied) >= course.Seats.TotalSeats() {
		return "", nil
	}

	entry, ok := o.wl.PopTop(courseID)
	if !ok {
		return "", nil
	}

	seat := ""
	if entry.PreferredSeat != "" {
		if _, taken := occupied[normalizeSeat(entry.PreferredSeat)]; !taken {
			seat = normalizeSeat(entry.PreferredSeat)
		}
	}
	if seat == "" {
		seat = lexicographicallyFirstFree(course.Seats.Rows, course.Seats.SeatsPerRow, occupied)
	}
	if seat == "" {
		_ = o.wl.RevertToWaiting(entry.StudentID, courseID)
		return "", nil
	}

	result, err := o.BookSeat(ctx, entry.StudentID, courseID, seat)
	if err != nil || !result.Success {
		// Failure modes (lost lock, concurrent booking of the same seat):
		// one revert, immediate termination. The next trigger drives further
		// progress.
		_ = o.wl.RevertToWaiting(entry.StudentID, courseID)
		return "", nil
	}

	_ = o.wl.MarkAllocated(entry.StudentID, courseID)

	o.appendEvent(ctx, courseID, domain.EventAutoAllocated, entry.StudentID, map[string]any{"seatNumber": seat})
	o.bus.PublishCourse(courseID, eventbus.Envelope{
		Type:      eventbus.StudentAutoEnrolled,
		StudentID: entry.StudentID,
		Payload:   map[string]any{"seatNumber": seat, "studentId": entry.StudentID},
	})

	if o.notifier != nil {
		if student, serr := o.repo.GetStudent(ctx, entry.StudentID); serr == nil {
			o.notifier.NotifySeatConfirmed(ctx, student, course, seat)
		}
	}

	return seat, nil
}
