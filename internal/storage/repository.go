// Package storage defines the abstract Repository the core persists
// through (§2, "Repository"). Two implementations satisfy it: an in-memory
// one (package memory, default and test backend) and a Postgres-backed one
// (package postgres) built on pgx/v5, following the teacher's connection
// and transaction idioms.
package storage

import (
	"context"
	"time"

	"github.com/coursereg/registrar/internal/domain"
)

// Tx is a unit-of-work scoped to one course's SeatConfig. Implementations
// provide this as either a Go closure under a keyed mutex (memory) or a
// literal pgx.Tx (postgres); both give callers the same sequential-steps
// contract described in spec.md §5.
type Tx interface {
	GetCourse(ctx context.Context, courseID string) (domain.Course, error)
	GetStudent(ctx context.Context, studentID string) (domain.Student, error)
	GetEnrollment(ctx context.Context, courseID, studentID string) (domain.Enrollment, bool, error)
	UpsertEnrollment(ctx context.Context, e domain.Enrollment) error
	ActiveBookingBySeat(ctx context.Context, courseID, seatNumber string) (domain.SeatBooking, bool, error)
	ActiveBookingByStudent(ctx context.Context, courseID, studentID string) (domain.SeatBooking, bool, error)
	ActiveBookings(ctx context.Context, courseID string) ([]domain.SeatBooking, error)
	InsertBooking(ctx context.Context, b domain.SeatBooking) error
	DeactivateBooking(ctx context.Context, bookingID string) error
	UpdateSeatConfig(ctx context.Context, cfg domain.SeatConfig) error
	AppendEvent(ctx context.Context, e domain.RegistrationEvent) error
}

// Repository is the top-level abstract persistence contract consumed by
// the Orchestrator. WithCourseLock runs fn inside a transaction scoped to
// courseID's SeatConfig, matching the critical-section rules of §5.
type Repository interface {
	GetCourse(ctx context.Context, courseID string) (domain.Course, error)
	GetStudent(ctx context.Context, studentID string) (domain.Student, error)
	ListCourses(ctx context.Context) ([]domain.Course, error)
	GetEnrollment(ctx context.Context, courseID, studentID string) (domain.Enrollment, bool, error)
	EnrollmentsForStudent(ctx context.Context, studentID string) ([]domain.Enrollment, error)
	ActiveBookings(ctx context.Context, courseID string) ([]domain.SeatBooking, error)

	// ListEvents returns the audit log in [from, to), for the analytics
	// summary endpoint (adapted from the teacher's GetTotalBookingsAnalytics).
	ListEvents(ctx context.Context, from, to time.Time) ([]domain.RegistrationEvent, error)

	// WithCourseLock scopes fn to courseID's SeatConfig lock. Implementations
	// hold the lock while fn runs and release it before WithCourseLock
	// returns, per §5's "all locks released
	// before external network or disk I/O" rule — callers must not perform
	// Event Bus publishes or network I/O inside fn.
	WithCourseLock(ctx context.Context, courseID string, fn func(tx Tx) error) error
}
