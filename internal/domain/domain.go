// Package domain holds the core entities of the registration engine:
// students, courses, seat configs, bookings, enrollments, waitlist entries
// and the audit event log. Types here are plain value objects; the
// behaviour that mutates them lives in scoring, waitlist, statemachine,
// and orchestrator.
package domain

import "time"

// Difficulty mirrors course.difficulty.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// EnrollmentStatus is the course-level membership status of a student.
type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "PENDING"
	EnrollmentEnrolled EnrollmentStatus = "ENROLLED"
	EnrollmentDropped  EnrollmentStatus = "DROPPED"
	EnrollmentRejected EnrollmentStatus = "REJECTED"
)

// WaitlistStatus is the lifecycle of a WaitlistEntry.
type WaitlistStatus string

const (
	WaitlistWaiting    WaitlistStatus = "WAITING"
	WaitlistProcessing WaitlistStatus = "PROCESSING"
	WaitlistAllocated  WaitlistStatus = "ALLOCATED"
	WaitlistCancelled  WaitlistStatus = "CANCELLED"
)

// EventType enumerates RegistrationEvent.type.
type EventType string

const (
	EventApplied               EventType = "APPLIED"
	EventSeatBooked            EventType = "SEAT_BOOKED"
	EventSeatReleased          EventType = "SEAT_RELEASED"
	EventDropped               EventType = "DROPPED"
	EventAutoAllocated         EventType = "AUTO_ALLOCATED"
	EventStudentAutoEnrolled   EventType = "STUDENT_AUTO_ENROLLED"
	EventWaitlistUpdated       EventType = "WAITLIST_UPDATED"
	EventBookingStatusChanged  EventType = "BOOKING_STATUS_CHANGED"
)

// Student is immutable in the core; other subsystems may mutate it.
type Student struct {
	ID           string
	RollNumber   string
	Email        string
	Name         string
	GPA          float64
	YearOfStudy  int
	Branch       string
	Interests    []string
	CompletedIDs []string // external course ids already completed
}

// Course is the classification and admission-hint envelope around a SeatConfig.
type Course struct {
	ID                string
	Name              string
	Category          string
	Difficulty        Difficulty
	MinGPARecommended float64
	Prerequisites     []string
	Keywords          []string
	Weekdays          []string
	StartTime         string
	EndTime           string
	Seats             SeatConfig
}

// SeatConfig is the capacity and lifecycle envelope of a course's room.
// bookingStatus lives here as a plain string so the statemachine package
// owns the only typed representation (statemachine.Status); storage layers
// persist it as text.
type SeatConfig struct {
	CourseID       string
	Rows           int
	SeatsPerRow    int
	BookingStatus  string
	BookingOpensAt *time.Time
	BookingCloseAt *time.Time
}

func (s SeatConfig) TotalSeats() int {
	return s.Rows * s.SeatsPerRow
}

// SeatBooking is an active or historical claim on a seat.
type SeatBooking struct {
	ID         string
	CourseID   string
	StudentID  string
	SeatNumber string
	Row        int
	Column     int
	IsActive   bool
	CreatedAt  time.Time
}

// Enrollment is the seat-agnostic course membership view of a student.
type Enrollment struct {
	CourseID   string
	StudentID  string
	Status     EnrollmentStatus
	SeatNumber string
	EnrolledAt *time.Time
	DroppedAt  *time.Time
}

// WaitlistEntry is a pending claim ordered by composite priority score.
type WaitlistEntry struct {
	ID              string
	CourseID        string
	StudentID       string
	AppliedAt       time.Time
	PreferredSeat   string
	GPAScore        float64
	InterestScore   float64
	TimeScore       float64
	YearScore       float64
	PrereqScore     float64
	CompositeScore  float64
	Status          WaitlistStatus
}

// RegistrationEvent is an append-only audit log row.
type RegistrationEvent struct {
	ID        string
	Type      EventType
	CourseID  string
	StudentID string
	Timestamp time.Time
	Metadata  map[string]any
}
