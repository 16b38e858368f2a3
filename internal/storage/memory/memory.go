// Package memory is the default and test-backend Repository
// implementation: an in-memory store guarded by a keyed mutex map
// (map[courseID]*sync.Mutex), one per course, matching the Postgres
// implementation's per-course SERIALIZABLE-transaction-with-retry
// semantics (internal/storage/postgres) without needing a database.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/storage"
	"github.com/google/uuid"
)

type bookingKey struct {
	courseID, studentID string
}

// Store is the in-memory Repository.
type Store struct {
	mu sync.Mutex // guards the maps below and locks; courseLocks guards fn execution

	students map[string]domain.Student
	courses  map[string]domain.Course

	enrollments map[bookingKey]domain.Enrollment
	bookings    map[string]domain.SeatBooking // by booking id
	events      []domain.RegistrationEvent

	courseLocks map[string]*sync.Mutex
}

func New() *Store {
	return &Store{
		students:    make(map[string]domain.Student),
		courses:     make(map[string]domain.Course),
		enrollments: make(map[bookingKey]domain.Enrollment),
		bookings:    make(map[string]domain.SeatBooking),
		courseLocks: make(map[string]*sync.Mutex),
	}
}

// Seed helpers for tests and bootstrapping.

func (s *Store) SeedStudent(st domain.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
}

func (s *Store) SeedCourse(c domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

func (s *Store) lockFor(courseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.courseLocks[courseID]
	if !ok {
		l = &sync.Mutex{}
		s.courseLocks[courseID] = l
	}
	return l
}

func (s *Store) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[courseID]
	if !ok {
		return domain.Course{}, domain.NotFound("course not found: " + courseID)
	}
	return c, nil
}

func (s *Store) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return domain.Student{}, domain.NotFound("student not found: " + studentID)
	}
	return st, nil
}

func (s *Store) ListCourses(ctx context.Context) ([]domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) GetEnrollment(ctx context.Context, courseID, studentID string) (domain.Enrollment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[bookingKey{courseID, studentID}]
	return e, ok, nil
}

func (s *Store) EnrollmentsForStudent(ctx context.Context, studentID string) ([]domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Enrollment, 0)
	for k, e := range s.enrollments {
		if k.studentID == studentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ActiveBookings(ctx context.Context, courseID string) ([]domain.SeatBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SeatBooking, 0)
	for _, b := range s.bookings {
		if b.CourseID == courseID && b.IsActive {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context, from, to time.Time) ([]domain.RegistrationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RegistrationEvent, 0)
	for _, e := range s.events {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// WithCourseLock acquires the per-course mutex and runs fn against a tx
// view of this store. Unlike the Postgres implementation there is no
// rollback: the tx methods mutate the store directly, but all of them are
// only reachable while the course lock is held, so a returned error simply
// leaves whatever partial writes already happened — callers in
// internal/orchestrator are written so that the only fallible steps run
// before any mutation (validate-then-write), matching the teacher's
// validate-inside-the-transaction pattern.
func (s *Store) WithCourseLock(ctx context.Context, courseID string, fn func(tx storage.Tx) error) error {
	lock := s.lockFor(courseID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{store: s}
	return fn(tx)
}

type memTx struct {
	store *Store
}

func (t *memTx) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	return t.store.GetCourse(ctx, courseID)
}

func (t *memTx) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	return t.store.GetStudent(ctx, studentID)
}

func (t *memTx) GetEnrollment(ctx context.Context, courseID, studentID string) (domain.Enrollment, bool, error) {
	return t.store.GetEnrollment(ctx, courseID, studentID)
}

func (t *memTx) UpsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.enrollments[bookingKey{e.CourseID, e.StudentID}] = e
	return nil
}

func (t *memTx) ActiveBookingBySeat(ctx context.Context, courseID, seatNumber string) (domain.SeatBooking, bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, b := range t.store.bookings {
		if b.CourseID == courseID && b.SeatNumber == seatNumber && b.IsActive {
			return b, true, nil
		}
	}
	return domain.SeatBooking{}, false, nil
}

func (t *memTx) ActiveBookingByStudent(ctx context.Context, courseID, studentID string) (domain.SeatBooking, bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, b := range t.store.bookings {
		if b.CourseID == courseID && b.StudentID == studentID && b.IsActive {
			return b, true, nil
		}
	}
	return domain.SeatBooking{}, false, nil
}

func (t *memTx) ActiveBookings(ctx context.Context, courseID string) ([]domain.SeatBooking, error) {
	return t.store.ActiveBookings(ctx, courseID)
}

func (t *memTx) InsertBooking(ctx context.Context, b domain.SeatBooking) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	t.store.bookings[b.ID] = b
	return nil
}

func (t *memTx) DeactivateBooking(ctx context.Context, bookingID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	b, ok := t.store.bookings[bookingID]
	if !ok {
		return domain.NotFound("booking not found: " + bookingID)
	}
	b.IsActive = false
	t.store.bookings[bookingID] = b
	return nil
}

func (t *memTx) UpdateSeatConfig(ctx context.Context, cfg domain.SeatConfig) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.courses[cfg.CourseID]
	if !ok {
		return domain.NotFound("course not found: " + cfg.CourseID)
	}
	c.Seats = cfg
	t.store.courses[cfg.CourseID] = c
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, e domain.RegistrationEvent) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	t.store.events = append(t.store.events, e)
	return nil
}
