// Package postgres is the production Repository implementation, built on
// pgx/v5 + pgxpool following the teacher's connection and transaction
// idioms (internal/api/handlers/bookings.go's CreateBooking): a
// SERIALIZABLE transaction per call, retried with exponential backoff on
// Postgres serialization-failure codes 40001/40P01. The teacher's
// sqlc-generated internal/db package is not reused (it wasn't part of the
// retrieved copy); this package issues pgx SQL directly instead.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
)

// Store is the Postgres-backed Repository.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func (s *Store) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.category, c.difficulty, c.min_gpa_recommended,
		       c.prerequisites, c.keywords, c.weekdays, c.start_time, c.end_time,
		       sc.rows, sc.seats_per_row, sc.booking_status, sc.booking_opens_at, sc.booking_closes_at
		FROM courses c JOIN seat_configs sc ON sc.course_id = c.id
		WHERE c.id = $1`, courseID)
	return scanCourse(row)
}

func scanCourse(row pgx.Row) (domain.Course, error) {
	var c domain.Course
	var opens, closes *time.Time
	if err := row.Scan(&c.ID, &c.Name, &c.Category, &c.Difficulty, &c.MinGPARecommended,
		&c.Prerequisites, &c.Keywords, &c.Weekdays, &c.StartTime, &c.EndTime,
		&c.Seats.Rows, &c.Seats.SeatsPerRow, &c.Seats.BookingStatus, &opens, &closes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Course{}, domain.NotFound("course not found")
		}
		return domain.Course{}, domain.Unavailable("failed to load course")
	}
	c.Seats.CourseID = c.ID
	c.Seats.BookingOpensAt = opens
	c.Seats.BookingCloseAt = closes
	return c, nil
}

func (s *Store) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	var st domain.Student
	row := s.pool.QueryRow(ctx, `
		SELECT id, roll_number, email, name, gpa, year_of_study, branch, interests, completed_ids
		FROM students WHERE id = $1`, studentID)
	if err := row.Scan(&st.ID, &st.RollNumber, &st.Email, &st.Name, &st.GPA, &st.YearOfStudy,
		&st.Branch, &st.Interests, &st.CompletedIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Student{}, domain.NotFound("student not found")
		}
		return domain.Student{}, domain.Unavailable("failed to load student")
	}
	return st, nil
}

func (s *Store) ListCourses(ctx context.Context) ([]domain.Course, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.category, c.difficulty, c.min_gpa_recommended,
		       c.prerequisites, c.keywords, c.weekdays, c.start_time, c.end_time,
		       sc.rows, sc.seats_per_row, sc.booking_status, sc.booking_opens_at, sc.booking_closes_at
		FROM courses c JOIN seat_configs sc ON sc.course_id = c.id ORDER BY c.id`)
	if err != nil {
		return nil, domain.Unavailable("failed to list courses")
	}
	defer rows.Close()

	var out []domain.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) GetEnrollment(ctx context.Context, courseID, studentID string) (domain.Enrollment, bool, error) {
	var e domain.Enrollment
	row := s.pool.QueryRow(ctx, `
		SELECT course_id, student_id, status, seat_number, enrolled_at, dropped_at
		FROM enrollments WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	if err := row.Scan(&e.CourseID, &e.StudentID, &e.Status, &e.SeatNumber, &e.EnrolledAt, &e.DroppedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Enrollment{}, false, nil
		}
		return domain.Enrollment{}, false, domain.Unavailable("failed to load enrollment")
	}
	return e, true, nil
}

func (s *Store) EnrollmentsForStudent(ctx context.Context, studentID string) ([]domain.Enrollment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT course_id, student_id, status, seat_number, enrolled_at, dropped_at
		FROM enrollments WHERE student_id = $1`, studentID)
	if err != nil {
		return nil, domain.Unavailable("failed to list enrollments")
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		var e domain.Enrollment
		if err := rows.Scan(&e.CourseID, &e.StudentID, &e.Status, &e.SeatNumber, &e.EnrolledAt, &e.DroppedAt); err != nil {
			return nil, domain.Unavailable("failed to scan enrollment")
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) ActiveBookings(ctx context.Context, courseID string) ([]domain.SeatBooking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, course_id, student_id, seat_number, row, "column", is_active, created_at
		FROM seat_bookings WHERE course_id = $1 AND is_active = true`, courseID)
	if err != nil {
		return nil, domain.Unavailable("failed to list active bookings")
	}
	defer rows.Close()
	return scanBookings(rows)
}

func scanBookings(rows pgx.Rows) ([]domain.SeatBooking, error) {
	var out []domain.SeatBooking
	for rows.Next() {
		var b domain.SeatBooking
		if err := rows.Scan(&b.ID, &b.CourseID, &b.StudentID, &b.SeatNumber, &b.Row, &b.Column, &b.IsActive, &b.CreatedAt); err != nil {
			return nil, domain.Unavailable("failed to scan booking")
		}
		out = append(out, b)
	}
	return out, nil
}

// WithCourseLock opens a SERIALIZABLE transaction, locks the course's
// seat_configs row with SELECT ... FOR UPDATE, and retries the whole
// callback on 40001/40P01 with the teacher's exact doubling backoff.
func (s *Store) WithCourseLock(ctx context.Context, courseID string, fn func(tx storage.Tx) error) error {
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.runOnce(ctx, courseID, fn)
		if err == nil {
			return nil
		}
		if isSerializationFailure(err) {
			log.Warn().Str("course_id", courseID).Int("attempt", attempt).Msg("storage: serialization failure, retrying")
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		return err
	}
	return domain.Unavailable("could not complete operation due to concurrent conflicts; please retry")
}

func (s *Store) runOnce(ctx context.Context, courseID string, fn func(tx storage.Tx) error) (err error) {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return domain.Unavailable("failed to start transaction")
	}
	rolledBack := false
	rollback := func() {
		if !rolledBack {
			_ = pgxTx.Rollback(ctx)
			rolledBack = true
		}
	}
	defer rollback()

	if _, err := pgxTx.Exec(ctx, `SELECT 1 FROM seat_configs WHERE course_id = $1 FOR UPDATE`, courseID); err != nil {
		return err
	}

	tx := &pgTx{conn: pgxTx}
	if err := fn(tx); err != nil {
		return err
	}

	if err := pgxTx.Commit(ctx); err != nil {
		rolledBack = true
		return err
	}
	return nil
}

type pgTx struct {
	conn pgx.Tx
}

func (t *pgTx) GetCourse(ctx context.Context, courseID string) (domain.Course, error) {
	row := t.conn.QueryRow(ctx, `
		SELECT c.id, c.name, c.category, c.difficulty, c.min_gpa_recommended,
		       c.prerequisites, c.keywords, c.weekdays, c.start_time, c.end_time,
		       sc.rows, sc.seats_per_row, sc.booking_status, sc.booking_opens_at, sc.booking_closes_at
		FROM courses c JOIN seat_configs sc ON sc.course_id = c.id
		WHERE c.id = $1`, courseID)
	return scanCourse(row)
}

func (t *pgTx) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	var st domain.Student
	row := t.conn.QueryRow(ctx, `
		SELECT id, roll_number, email, name, gpa, year_of_study, branch, interests, completed_ids
		FROM students WHERE id = $1`, studentID)
	if err := row.Scan(&st.ID, &st.RollNumber, &st.Email, &st.Name, &st.GPA, &st.YearOfStudy,
		&st.Branch, &st.Interests, &st.CompletedIDs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Student{}, domain.NotFound("student not found")
		}
		return domain.Student{}, err
	}
	return st, nil
}

func (t *pgTx) GetEnrollment(ctx context.Context, courseID, studentID string) (domain.Enrollment, bool, error) {
	var e domain.Enrollment
	row := t.conn.QueryRow(ctx, `
		SELECT course_id, student_id, status, seat_number, enrolled_at, dropped_at
		FROM enrollments WHERE course_id = $1 AND student_id = $2 FOR UPDATE`, courseID, studentID)
	if err := row.Scan(&e.CourseID, &e.StudentID, &e.Status, &e.SeatNumber, &e.EnrolledAt, &e.DroppedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Enrollment{}, false, nil
		}
		return domain.Enrollment{}, false, err
	}
	return e, true, nil
}

func (t *pgTx) UpsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	_, err := t.conn.Exec(ctx, `
		INSERT INTO enrollments (course_id, student_id, status, seat_number, enrolled_at, dropped_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (course_id, student_id) DO UPDATE SET
			status = EXCLUDED.status, seat_number = EXCLUDED.seat_number,
			enrolled_at = EXCLUDED.enrolled_at, dropped_at = EXCLUDED.dropped_at`,
		e.CourseID, e.StudentID, e.Status, e.SeatNumber, e.EnrolledAt, e.DroppedAt)
	return err
}

func (t *pgTx) ActiveBookingBySeat(ctx context.Context, courseID, seatNumber string) (domain.SeatBooking, bool, error) {
	var b domain.SeatBooking
	row := t.conn.QueryRow(ctx, `
		SELECT id, course_id, student_id, seat_number, row, "column", is_active, created_at
		FROM seat_bookings WHERE course_id = $1 AND seat_number = $2 AND is_active = true FOR UPDATE`, courseID, seatNumber)
	if err := row.Scan(&b.ID, &b.CourseID, &b.StudentID, &b.SeatNumber, &b.Row, &b.Column, &b.IsActive, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SeatBooking{}, false, nil
		}
		return domain.SeatBooking{}, false, err
	}
	return b, true, nil
}

func (t *pgTx) ActiveBookingByStudent(ctx context.Context, courseID, studentID string) (domain.SeatBooking, bool, error) {
	var b domain.SeatBooking
	row := t.conn.QueryRow(ctx, `
		SELECT id, course_id, student_id, seat_number, row, "column", is_active, created_at
		FROM seat_bookings WHERE course_id = $1 AND student_id = $2 AND is_active = true FOR UPDATE`, courseID, studentID)
	if err := row.Scan(&b.ID, &b.CourseID, &b.StudentID, &b.SeatNumber, &b.Row, &b.Column, &b.IsActive, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SeatBooking{}, false, nil
		}
		return domain.SeatBooking{}, false, err
	}
	return b, true, nil
}

func (t *pgTx) ActiveBookings(ctx context.Context, courseID string) ([]domain.SeatBooking, error) {
	rows, err := t.conn.Query(ctx, `
		SELECT id, course_id, student_id, seat_number, row, "column", is_active, created_at
		FROM seat_bookings WHERE course_id = $1 AND is_active = true`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (t *pgTx) InsertBooking(ctx context.Context, b domain.SeatBooking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := t.conn.Exec(ctx, `
		INSERT INTO seat_bookings (id, course_id, student_id, seat_number, row, "column", is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		b.ID, b.CourseID, b.StudentID, b.SeatNumber, b.Row, b.Column, b.IsActive)
	return err
}

func (t *pgTx) DeactivateBooking(ctx context.Context, bookingID string) error {
	tag, err := t.conn.Exec(ctx, `UPDATE seat_bookings SET is_active = false WHERE id = $1`, bookingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("booking not found: " + bookingID)
	}
	return nil
}

func (t *pgTx) UpdateSeatConfig(ctx context.Context, cfg domain.SeatConfig) error {
	_, err := t.conn.Exec(ctx, `
		UPDATE seat_configs SET rows = $2, seats_per_row = $3, booking_status = $4,
			booking_opens_at = $5, booking_closes_at = $6
		WHERE course_id = $1`,
		cfg.CourseID, cfg.Rows, cfg.SeatsPerRow, cfg.BookingStatus, cfg.BookingOpensAt, cfg.BookingCloseAt)
	return err
}

func (t *pgTx) AppendEvent(ctx context.Context, e domain.RegistrationEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := t.conn.Exec(ctx, `
		INSERT INTO registration_events (id, type, course_id, student_id, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Type, e.CourseID, e.StudentID, e.Timestamp, e.Metadata)
	return err
}

// ListEvents returns the audit log in [from, to), used by the analytics
// summary endpoint (adapted from the teacher's GetTotalBookingsAnalytics).
func (s *Store) ListEvents(ctx context.Context, from, to time.Time) ([]domain.RegistrationEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, course_id, student_id, timestamp, metadata
		FROM registration_events WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp`, from, to)
	if err != nil {
		return nil, domain.Unavailable("failed to list events")
	}
	defer rows.Close()

	var out []domain.RegistrationEvent
	for rows.Next() {
		var e domain.RegistrationEvent
		if err := rows.Scan(&e.ID, &e.Type, &e.CourseID, &e.StudentID, &e.Timestamp, &e.Metadata); err != nil {
			return nil, domain.Unavailable("failed to scan event")
		}
		out = append(out, e)
	}
	return out, nil
}
