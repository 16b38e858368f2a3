// Package waitlist implements the per-course priority queue described in
// spec.md §4.2. Each course gets its own mutex-guarded entry set, grounded
// on the teacher's per-row critical-section idiom in holds.go/bookings.go
// (there a Postgres row lock; here a Go mutex, since the waitlist is an
// in-process structure rather than a table).
package waitlist

import (
	"sort"
	"sync"
	"time"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/scoring"
	"github.com/google/uuid"
)

const popTopMaxAttempts = 3

// Waitlist is the top-level component; it owns one courseQueue per course.
type Waitlist struct {
	mu      sync.Mutex
	courses map[string]*courseQueue
	scorer  *scoring.Engine
}

type courseQueue struct {
	mu      sync.Mutex
	entries map[string]*domain.WaitlistEntry // keyed by studentID
}

func New(scorer *scoring.Engine) *Waitlist {
	return &Waitlist{
		courses: make(map[string]*courseQueue),
		scorer:  scorer,
	}
}

func (w *Waitlist) queueFor(courseID string) *courseQueue {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.courses[courseID]
	if !ok {
		q = &courseQueue{entries: make(map[string]*domain.WaitlistEntry)}
		w.courses[courseID] = q
	}
	return q
}

// ordered returns WAITING entries for the course, sorted by the strict
// comparison (compositeScore DESC, appliedAt ASC, id ASC). Caller must hold
// q.mu.
func (q *courseQueue) ordered() []*domain.WaitlistEntry {
	out := make([]*domain.WaitlistEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.Status == domain.WaitlistWaiting {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		if !a.AppliedAt.Equal(b.AppliedAt) {
			return a.AppliedAt.Before(b.AppliedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// Enqueue recomputes the score and upserts a WaitlistEntry to WAITING,
// returning the entry and its 1-indexed position.
func (w *Waitlist) Enqueue(student domain.Student, course domain.Course, preferredSeat string, appliedAt time.Time) (domain.WaitlistEntry, int, error) {
	q := w.queueFor(course.ID)
	q.mu.Lock()
	defer q.mu.Unlock()

	comps, composite := w.scorer.Score(student, course, appliedAt)

	entry := q.entries[student.ID]
	if entry == nil {
		entry = &domain.WaitlistEntry{
			ID:        uuid.NewString(),
			CourseID:  course.ID,
			StudentID: student.ID,
			AppliedAt: appliedAt,
		}
		q.entries[student.ID] = entry
	}
	entry.PreferredSeat = preferredSeat
	entry.GPAScore = comps.GPAScore
	entry.InterestScore = comps.InterestScore
	entry.TimeScore = comps.TimeScore
	entry.YearScore = comps.YearScore
	entry.PrereqScore = comps.PrereqScore
	entry.CompositeScore = composite
	entry.Status = domain.WaitlistWaiting

	pos := 1
	for _, e := range q.ordered() {
		if e.StudentID == student.ID {
			break
		}
		pos++
	}
	return *entry, pos, nil
}

// Cancel transitions WAITING -> CANCELLED. Idempotent; reports whether a
// change occurred.
func (w *Waitlist) Cancel(studentID, courseID string) bool {
	q := w.queueFor(courseID)
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[studentID]
	if !ok || entry.Status != domain.WaitlistWaiting {
		return false
	}
	entry.Status = domain.WaitlistCancelled
	return true
}

// PeekTop returns up to n WAITING entries in priority order, without
// mutation.
func (w *Waitlist) PeekTop(courseID string, n int) []domain.WaitlistEntry {
	q := w.queueFor(courseID)
	q.mu.Lock()
	defer q.mu.Unlock()

	ordered := q.ordered()
	if n > len(ordered) {
		n = len(ordered)
	}
	out := make([]domain.WaitlistEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, *ordered[i])
	}
	return out
}

// PopTop atomically picks the highest-priority WAITING entry and
// transitions it to PROCESSING. The queue's mutex makes the CAS trivially
// atomic; a small bounded retry mirrors the teacher's
// createBookingMaxRetries/backoff loop for callers re-popping after a
// revert.
func (w *Waitlist) PopTop(courseID string) (domain.WaitlistEntry, bool) {
	q := w.queueFor(courseID)

	for attempt := 0; attempt < popTopMaxAttempts; attempt++ {
		q.mu.Lock()
		ordered := q.ordered()
		if len(ordered) == 0 {
			q.mu.Unlock()
			return domain.WaitlistEntry{}, false
		}
		top := ordered[0]
		if top.Status != domain.WaitlistWaiting {
			q.mu.Unlock()
			continue
		}
		top.Status = domain.WaitlistProcessing
		result := *top
		q.mu.Unlock()
		return result, true
	}
	return domain.WaitlistEntry{}, false
}

// MarkAllocated transitions PROCESSING -> ALLOCATED.
func (w *Waitlist) MarkAllocated(studentID, courseID string) error {
	q := w.queueFor(courseID)
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[studentID]
	if !ok || entry.Status != domain.WaitlistProcessing {
		return domain.StateViolation("waitlist entry not in PROCESSING state")
	}
	entry.Status = domain.WaitlistAllocated
	return nil
}

// ForceAllocate transitions a WAITING entry directly to ALLOCATED, used when
// bookSeat books a seat for a student who was still waiting on this course
// (spec.md's bookSeat step 5: "transition any WAITING waitlist entry for
// this (student, course) to ALLOCATED"), bypassing the PopTop/MarkAllocated
// pair since there was no vacancy-filler pop to confirm.
func (w *Waitlist) ForceAllocate(studentID, courseID string) error {
	q := w.queueFor(courseID)
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[studentID]
	if !ok || entry.Status != domain.WaitlistWaiting {
		return domain.StateViolation("waitlist entry not in WAITING state")
	}
	entry.Status = domain.WaitlistAllocated
	return nil
}

// RevertToWaiting transitions PROCESSING -> WAITING, used when a downstream
// booking attempt fails.
func (w *Waitlist) RevertToWaiting(studentID, courseID string) error {
	q := w.queueFor(courseID)
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[studentID]
	if !ok || entry.Status != domain.WaitlistProcessing {
		return domain.StateViolation("waitlist entry not in PROCESSING state")
	}
	entry.Status = domain.WaitlistWaiting
	return nil
}

// Size returns the count of WAITING entries for the course.
func (w *Waitlist) Size(courseID string) int {
	q := w.queueFor(courseID)
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ordered())
}

// EntryFor returns the entry for (student, course), if any, whatever its
// status (terminal ALLOCATED and CANCELLED entries included).
func (w *Waitlist) EntryFor(studentID, courseID string) (domain.WaitlistEntry, bool) {
	q := w.queueFor(courseID)
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[studentID]
	if !ok {
		return domain.WaitlistEntry{}, false
	}
	return *e, true
}
