// Package orchestrator implements the Allocation Orchestrator (§4.4) and
// the Vacancy Filler (§4.5), the top-level API the HTTP/WS layer calls
// into. Grounded on the teacher's bookings.go (CreateBooking's
// retry/backoff transaction shape), holds.go, and cancellations.go
// (CancelBooking).
package orchestrator

import (
	"context"
	"time"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/eventbus"
	"github.com/coursereg/registrar/internal/projector"
	"github.com/coursereg/registrar/internal/scoring"
	"github.com/coursereg/registrar/internal/statemachine"
	"github.com/coursereg/registrar/internal/storage"
	"github.com/coursereg/registrar/internal/waitlist"
	"github.com/rs/zerolog/log"
)

// Status is AllocationResult.status.
type Status string

const (
	StatusEnrolled   Status = "ENROLLED"
	StatusWaitlisted Status = "WAITLISTED"
	StatusDropped    Status = "DROPPED"
	StatusRejected   Status = "REJECTED"
	StatusPending    Status = "PENDING"
)

// AllocationResult is the shape returned by apply/bookSeat/drop (§6).
type AllocationResult struct {
	StudentID        string   `json:"studentId"`
	CourseID         string   `json:"courseId"`
	Success          bool     `json:"success"`
	Status           Status   `json:"status"`
	Message          string   `json:"message"`
	WaitlistPosition *int     `json:"waitlistPosition,omitempty"`
	Score            *float64 `json:"score,omitempty"`
	SeatNumber       string   `json:"seatNumber,omitempty"`
	VacancyFilledBy  string   `json:"vacancyFilledBy,omitempty"`
}

// WaitlistedCourse and EnrolledCourse back getStudentStatus's response.
type EnrolledCourse struct {
	CourseID   string `json:"courseId"`
	SeatNumber string `json:"seatNumber"`
}

type WaitlistedCourse struct {
	CourseID string  `json:"courseId"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// StudentStatus is getStudentStatus's response shape.
type StudentStatus struct {
	StudentID  string             `json:"studentId"`
	Enrolled   []EnrolledCourse   `json:"enrolled"`
	Waitlisted []WaitlistedCourse `json:"waitlisted"`
}

// Notifier sends a side-channel notification (email) when a waitlisted
// student is auto-enrolled; see internal/notify.
type Notifier interface {
	NotifySeatConfirmed(ctx context.Context, student domain.Student, course domain.Course, seatNumber string)
}

// Orchestrator is the top-level API. It is safe for concurrent use: all
// mutating calls go through repo.WithCourseLock (keyed-mutex in memory,
// SERIALIZABLE-with-retry in Postgres, per §5).
type Orchestrator struct {
	repo     storage.Repository
	scorer   *scoring.Engine
	wl       *waitlist.Waitlist
	sm       *statemachine.Machine
	bus      *eventbus.Bus
	proj     *projector.Projector
	notifier Notifier
	holds    *HoldTracker
}

func New(repo storage.Repository, scorer *scoring.Engine, wl *waitlist.Waitlist, bus *eventbus.Bus, proj *projector.Projector, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		scorer:   scorer,
		wl:       wl,
		sm:       statemachine.NewMachine(),
		bus:      bus,
		proj:     proj,
		notifier: notifier,
		holds:    NewHoldTracker(),
	}
}

// Apply implements apply(studentId, courseId, preferredSeat?, autoRegister?).
func (o *Orchestrator) Apply(ctx context.Context, studentID, courseID, preferredSeat string, autoRegister bool) (AllocationResult, error) {
	student, err := o.repo.GetStudent(ctx, studentID)
	if err != nil {
		return failureResult(studentID, courseID, StatusRejected, "student not found"), err
	}
	course, err := o.repo.GetCourse(ctx, courseID)
	if err != nil {
		return failureResult(studentID, courseID, StatusRejected, "course not found"), err
	}

	if existing, ok, _ := o.repo.GetEnrollment(ctx, courseID, studentID); ok && existing.Status == domain.EnrollmentEnrolled {
		return failureResult(studentID, courseID, StatusRejected, "already enrolled in this course"), domain.Conflict("already enrolled")
	}

	status := statemachine.Status(course.Seats.BookingStatus)
	seatsAvailable, err := o.hasAvailableSeat(ctx, course)
	if err != nil {
		return failureResult(studentID, courseID, StatusRejected, "storage unavailable"), err
	}

	route := statemachine.ApplyRouteFor(status, autoRegister, seatsAvailable)

	var result AllocationResult
	switch route {
	case statemachine.RouteReject:
		result = failureResult(studentID, courseID, StatusRejected, "course registration has ended")
		o.appendEvent(ctx, courseID, domain.EventApplied, studentID, map[string]any{"route": "REJECT"})
		return result, domain.StateViolation("course is COMPLETED")
	case statemachine.RouteBookDirect:
		result, err = o.bookSeatDirect(ctx, student, course, preferredSeat)
	default: // RouteWaitlist
		result, err = o.enqueueWaitlist(ctx, student, course, preferredSeat)
	}

	o.appendEvent(ctx, courseID, domain.EventApplied, studentID, map[string]any{
		"route":      string(route),
		"autoRegister": autoRegister,
	})
	o.bus.PublishCourse(courseID, eventbus.Envelope{Type: eventbus.Applied, StudentID: studentID, Payload: map[string]any{"studentId": studentID}})

	return result, err
}

func (o *Orchestrator) hasAvailableSeat(ctx context.Context, course domain.Course) (bool, error) {
	active, err := o.repo.ActiveBookings(ctx, course.ID)
	if err != nil {
		return false, domain.Unavailable("failed to read active bookings")
	}
	return len(active) < course.Seats.TotalSeats(), nil
}

func (o *Orchestrator) occupiedSeats(ctx context.Context, courseID string) (map[string]struct{}, error) {
	active, err := o.repo.ActiveBookings(ctx, courseID)
	if err != nil {
		return nil, domain.Unavailable("failed to read active bookings")
	}
	occ := make(map[string]struct{}, len(active))
	for _, b := range active {
		occ[b.SeatNumber] = struct{}{}
	}
	return occ, nil
}

// bookSeatDirect implements apply's OPEN+seats-available tie-breaking
// policy: preferredSeat if given and free, else the lexicographically
// first free seat.
func (o *Orchestrator) bookSeatDirect(ctx context.Context, student domain.Student, course domain.Course, preferredSeat string) (AllocationResult, error) {
	occupied, err := o.occupiedSeats(ctx, course.ID)
	if err != nil {
		return failureResult(student.ID, course.ID, StatusRejected, "storage unavailable"), err
	}

	seat := ""
	if preferredSeat != "" {
		if _, taken := occupied[normalizeSeat(preferredSeat)]; !taken {
			seat = normalizeSeat(preferredSeat)
		}
	}
	if seat == "" {
		seat = lexicographicallyFirstFree(course.Seats.Rows, course.Seats.SeatsPerRow, occupied)
	}
	if seat == "" {
		return o.enqueueWaitlist(ctx, student, course, preferredSeat)
	}
	return o.BookSeat(ctx, student.ID, course.ID, seat)
}

func normalizeSeat(s string) string {
	row, col, err := parseSeatNumber(s)
	if err != nil {
		return s
	}
	return seatLabel(row, col)
}

func (o *Orchestrator) enqueueWaitlist(ctx context.Context, student domain.Student, course domain.Course, preferredSeat string) (AllocationResult, error) {
	entry, position, err := o.wl.Enqueue(student, course, preferredSeat, time.Now())
	if err != nil {
		return failureResult(student.ID, course.ID, StatusRejected, "failed to enqueue"), err
	}
	score := entry.CompositeScore
	o.bus.PublishCourse(course.ID, eventbus.Envelope{
		Type: eventbus.WaitlistUpdated,
		Payload: map[string]any{
			"size": o.wl.Size(course.ID),
		},
	})
	return AllocationResult{
		StudentID:        student.ID,
		CourseID:         course.ID,
		Success:          true,
		Status:           StatusWaitlisted,
		Message:          "added to waitlist",
		WaitlistPosition: &position,
		Score:            &score,
	}, nil
}

// BookSeat implements bookSeat(studentId, courseId, seatNumber).
func (o *Orchestrator) BookSeat(ctx context.Context, studentID, courseID, seatNumber string) (AllocationResult, error) {
	course, err := o.repo.GetCourse(ctx, courseID)
	if err != nil {
		return failureResult(studentID, courseID, StatusRejected, "course not found"), err
	}
	student, err := o.repo.GetStudent(ctx, studentID)
	if err != nil {
		return failureResult(studentID, courseID, StatusRejected, "student not found"), err
	}

	status := statemachine.Status(course.Seats.BookingStatus)
	if status == statemachine.WaitlistOnly {
		return o.enqueueWaitlist(ctx, student, course, seatNumber)
	}
	if !statemachine.BookSeatAllowed(status) {
		return failureResult(studentID, courseID, StatusRejected, "course registration has ended"), domain.StateViolation("course is " + string(status))
	}

	seat := normalizeSeat(seatNumber)
	row, column, err := parseSeatNumber(seatNumber)
	if err != nil {
		return failureResult(studentID, courseID, StatusRejected, "malformed seat number"), err
	}

	var result AllocationResult
	txErr := o.repo.WithCourseLock(ctx, courseID, func(tx storage.Tx) error {
		if _, taken, _ := tx.ActiveBookingBySeat(ctx, courseID, seat); taken {
			return domain.Conflict("seat already booked: " + seat)
		}
		if _, has, _ := tx.ActiveBookingByStudent(ctx, courseID, studentID); has {
			return domain.Conflict("student already has an active booking in this course")
		}

		now := time.Now()
		if err := tx.InsertBooking(ctx, domain.SeatBooking{
			CourseID:   courseID,
			StudentID:  studentID,
			SeatNumber: seat,
			Row:        row,
			Column:     column,
			IsActive:   true,
			CreatedAt:  now,
		}); err != nil {
			return domain.Unavailable("failed to insert booking")
		}

		if err := tx.UpsertEnrollment(ctx, domain.Enrollment{
			CourseID:   courseID,
			StudentID:  studentID,
			Status:     domain.EnrollmentEnrolled,
			SeatNumber: seat,
			EnrolledAt: &now,
		}); err != nil {
			return domain.Unavailable("failed to upsert enrollment")
		}

		if err := tx.AppendEvent(ctx, domain.RegistrationEvent{
			Type:      domain.EventSeatBooked,
			CourseID:  courseID,
			StudentID: studentID,
			Timestamp: now,
			Metadata:  map[string]any{"seatNumber": seat},
		}); err != nil {
			return domain.Unavailable("failed to append event")
		}

		result = AllocationResult{
			StudentID:  studentID,
			CourseID:   courseID,
			Success:    true,
			Status:     StatusEnrolled,
			Message:    "seat booked",
			SeatNumber: seat,
		}
		return nil
	})

	if txErr != nil {
		if derr, ok := domain.As(txErr); ok {
			return failureResult(studentID, courseID, StatusRejected, derr.Message), txErr
		}
		return failureResult(studentID, courseID, StatusRejected, "storage unavailable"), domain.Unavailable("storage error")
	}

	// Outside the lock: retire any non-terminal waitlist entry for this
	// (student, course), matching bookSeat's step 5 ("transition any WAITING
	// waitlist entry for this (student, course) to ALLOCATED").
	if entry, ok := o.wl.EntryFor(studentID, courseID); ok {
		switch entry.Status {
		case domain.WaitlistWaiting:
			_ = o.wl.ForceAllocate(studentID, courseID)
		case domain.WaitlistProcessing:
			_ = o.wl.MarkAllocated(studentID, courseID)
		}
	}

	o.bus.PublishCourse(courseID, eventbus.Envelope{
		Type:      eventbus.SeatBooked,
		StudentID: studentID,
		Payload:   map[string]any{"seatNumber": seat, "studentId": studentID},
	})

	return result, nil
}

// Drop implements drop(studentId, courseId).
func (o *Orchestrator) Drop(ctx context.Context, studentID, courseID string) (AllocationResult, error) {
	enrollment, ok, err := o.repo.GetEnrollment(ctx, courseID, studentID)
	if err != nil {
		return failureResult(studentID, courseID, StatusRejected, "storage unavailable"), err
	}
	if !ok || enrollment.Status != domain.EnrollmentEnrolled {
		return failureResult(studentID, courseID, StatusRejected, "not enrolled in this course"), domain.NotFound("not enrolled")
	}

	releasedSeat := enrollment.SeatNumber
	var bookingID string

	txErr := o.repo.WithCourseLock(ctx, courseID, func(tx storage.Tx) error {
		booking, has, err := tx.ActiveBookingByStudent(ctx, courseID, studentID)
		if err != nil {
			return domain.Unavailable("failed to load booking")
		}
		if !has {
			return domain.NotFound("no active booking to drop")
		}
		bookingID = booking.ID

		now := time.Now()
		if err := tx.UpsertEnrollment(ctx, domain.Enrollment{
			CourseID:  courseID,
			StudentID: studentID,
			Status:    domain.EnrollmentDropped,
			DroppedAt: &now,
		}); err != nil {
			return domain.Unavailable("failed to update enrollment")
		}
		if err := tx.DeactivateBooking(ctx, bookingID); err != nil {
			return domain.Unavailable("failed to release seat")
		}
		if err := tx.AppendEvent(ctx, domain.RegistrationEvent{
			Type:      domain.EventDropped,
			CourseID:  courseID,
			StudentID: studentID,
			Timestamp: now,
			Metadata:  map[string]any{"seatNumber": releasedSeat},
		}); err != nil {
			return domain.Unavailable("failed to append event")
		}
		return nil
	})
	if txErr != nil {
		if derr, ok := domain.As(txErr); ok {
			return failureResult(studentID, courseID, StatusRejected, derr.Message), txErr
		}
		return failureResult(studentID, courseID, StatusRejected, "storage unavailable"), domain.Unavailable("storage error")
	}

	o.bus.PublishCourse(courseID, eventbus.Envelope{
		Type:    eventbus.SeatReleased,
		Payload: map[string]any{"seatNumber": releasedSeat},
	})

	result := AllocationResult{
		StudentID: studentID,
		CourseID:  courseID,
		Success:   true,
		Status:    StatusDropped,
		Message:   "dropped",
	}

	filledBy, err := o.FillVacancy(ctx, courseID)
	if err != nil {
		log.Warn().Err(err).Str("course_id", courseID).Msg("orchestrator: vacancy filler error after drop")
	}
	if filledBy != "" {
		result.VacancyFilledBy = filledBy
	}

	return result, nil
}

// OpenBooking implements openBooking(courseId).
func (o *Orchestrator) OpenBooking(ctx context.Context, courseID string) error {
	now := time.Now()
	alreadyOpen := false
	err := o.repo.WithCourseLock(ctx, courseID, func(tx storage.Tx) error {
		course, err := tx.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		newStatus, terr := o.sm.Transition(statemachine.Status(course.Seats.BookingStatus), statemachine.Open)
		if terr != nil {
			// idempotent: re-opening an already-OPEN course is a no-op success
			if statemachine.Status(course.Seats.BookingStatus) == statemachine.Open {
				alreadyOpen = true
				return nil
			}
			return terr
		}
		cfg := course.Seats
		cfg.BookingStatus = string(newStatus)
		cfg.BookingOpensAt = &now
		if err := tx.UpdateSeatConfig(ctx, cfg); err != nil {
			return domain.Unavailable("failed to update seat config")
		}
		return tx.AppendEvent(ctx, domain.RegistrationEvent{
			Type:      domain.EventBookingStatusChanged,
			CourseID:  courseID,
			Timestamp: now,
			Metadata:  map[string]any{"bookingStatus": string(newStatus)},
		})
	})
	if err != nil {
		return err
	}
	if alreadyOpen {
		return nil
	}

	o.bus.PublishCourse(courseID, eventbus.Envelope{
		Type:    eventbus.BookingStatusChanged,
		Payload: map[string]any{"bookingStatus": string(statemachine.Open)},
	})

	for {
		filled, ferr := o.FillVacancy(ctx, courseID)
		if ferr != nil {
			log.Warn().Err(ferr).Str("course_id", courseID).Msg("orchestrator: vacancy filler error during open-booking drain")
			break
		}
		if filled == "" {
			break
		}
	}
	return nil
}

// CloseBooking implements closeBooking(courseId): transitions to
// WAITLIST_ONLY, not CLOSED — an intentional asymmetry preserved verbatim
// per spec.md §9.
func (o *Orchestrator) CloseBooking(ctx context.Context, courseID string) error {
	now := time.Now()
	err := o.repo.WithCourseLock(ctx, courseID, func(tx storage.Tx) error {
		course, err := tx.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		newStatus, terr := o.sm.Transition(statemachine.Status(course.Seats.BookingStatus), statemachine.WaitlistOnly)
		if terr != nil {
			return terr
		}
		cfg := course.Seats
		cfg.BookingStatus = string(newStatus)
		if err := tx.UpdateSeatConfig(ctx, cfg); err != nil {
			return domain.Unavailable("failed to update seat config")
		}
		return tx.AppendEvent(ctx, domain.RegistrationEvent{
			Type:      domain.EventBookingStatusChanged,
			CourseID:  courseID,
			Timestamp: now,
			Metadata:  map[string]any{"bookingStatus": string(newStatus)},
		})
	})
	if err != nil {
		return err
	}
	o.bus.PublishCourse(courseID, eventbus.Envelope{
		Type:    eventbus.BookingStatusChanged,
		Payload: map[string]any{"bookingStatus": string(statemachine.WaitlistOnly)},
	})
	return nil
}

// GetClassroomState delegates to the Projector.
func (o *Orchestrator) GetClassroomState(ctx context.Context, courseID string) (projector.ClassroomState, error) {
	return o.proj.Snapshot(ctx, courseID)
}

// GetStudentStatus returns enrolled courses and waitlisted courses with
// position and score. It returns no preference list, and a waitlist
// entry's preferredSeat is not included in WaitlistedCourse.
func (o *Orchestrator) GetStudentStatus(ctx context.Context, studentID string) (StudentStatus, error) {
	enrollments, err := o.repo.EnrollmentsForStudent(ctx, studentID)
	if err != nil {
		return StudentStatus{}, domain.Unavailable("failed to load enrollments")
	}

	out := StudentStatus{StudentID: studentID}
	for _, e := range enrollments {
		if e.Status == domain.EnrollmentEnrolled {
			out.Enrolled = append(out.Enrolled, EnrolledCourse{CourseID: e.CourseID, SeatNumber: e.SeatNumber})
		}
	}

	courses, err := o.repo.ListCourses(ctx)
	if err != nil {
		return out, nil
	}
	for _, c := range courses {
		if entry, ok := o.wl.EntryFor(studentID, c.ID); ok && entry.Status == domain.WaitlistWaiting {
			pos := 1
			for _, other := range o.wl.PeekTop(c.ID, 1<<20) {
				if other.StudentID == studentID {
					break
				}
				pos++
			}
			out.Waitlisted = append(out.Waitlisted, WaitlistedCourse{
				CourseID: c.ID,
				Position: pos,
				Score:    entry.CompositeScore,
			})
		}
	}
	return out, nil
}

func (o *Orchestrator) appendEvent(ctx context.Context, courseID string, t domain.EventType, studentID string, metadata map[string]any) {
	_ = o.repo.WithCourseLock(ctx, courseID, func(tx storage.Tx) error {
		return tx.AppendEvent(ctx, domain.RegistrationEvent{
			Type:      t,
			CourseID:  courseID,
			StudentID: studentID,
			Timestamp: time.Now(),
			Metadata:  metadata,
		})
	})
}

func failureResult(studentID, courseID string, status Status, message string) AllocationResult {
	return AllocationResult{
		StudentID: studentID,
		CourseID:  courseID,
		Success:   status != StatusRejected,
		Status:    status,
		Message:   message,
	}
}
