// Package projector implements the Classroom Projector (§4.7): a full
// seat-grid snapshot read from the Repository, plus incremental
// event-driven mutation of a cached copy for subscribers. Grounded on the
// teacher's handlers/seats.go (GetSeats builds a seat list with
// SeatNo/Status/BookingID from the store) for the snapshot path.
package projector

import (
	"context"
	"fmt"
	"time"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/eventbus"
	"github.com/coursereg/registrar/internal/storage"
)

// Seat is one position in the grid.
type Seat struct {
	SeatNumber  string `json:"seatNumber"`
	Row         int    `json:"row"`
	Column      int    `json:"column"`
	IsOccupied  bool   `json:"isOccupied"`
	StudentID   string `json:"studentId,omitempty"`
	StudentName string `json:"studentName,omitempty"`
}

// ClassroomState is the projector's output shape (§4.7).
type ClassroomState struct {
	CourseID       string    `json:"courseId"`
	CourseName     string    `json:"courseName"`
	TotalSeats     int       `json:"totalSeats"`
	AvailableSeats int       `json:"availableSeats"`
	OccupiedSeats  int       `json:"occupiedSeats"`
	BookingStatus  string    `json:"bookingStatus"`
	LastUpdated    time.Time `json:"lastUpdated"`
	Seats          []Seat    `json:"seats"`
}

// Projector reads a snapshot from the Repository. It keeps no cached
// projection of its own: incremental Event Bus envelopes are applied by the
// package-level Apply to a snapshot the caller holds.
type Projector struct {
	repo  storage.Repository
	names studentNamer
}

// studentNamer resolves a studentId to a display name; cmd/registrar
// satisfies it with a small adapter over storage.Repository.GetStudent.
type studentNamer interface {
	StudentName(ctx context.Context, studentID string) string
}

func New(repo storage.Repository, names studentNamer) *Projector {
	return &Projector{repo: repo, names: names}
}

// Snapshot builds the full seat-grid snapshot for courseID, enumerating
// seats in canonical order (row A.., column 1..).
func (p *Projector) Snapshot(ctx context.Context, courseID string) (ClassroomState, error) {
	course, err := p.repo.GetCourse(ctx, courseID)
	if err != nil {
		return ClassroomState{}, err
	}
	active, err := p.repo.ActiveBookings(ctx, courseID)
	if err != nil {
		return ClassroomState{}, err
	}

	bySeat := make(map[string]domain.SeatBooking, len(active))
	for _, b := range active {
		bySeat[b.SeatNumber] = b
	}

	seats := make([]Seat, 0, course.Seats.TotalSeats())
	for r := 0; r < course.Seats.Rows; r++ {
		rowLabel := rowLetter(r)
		for c := 1; c <= course.Seats.SeatsPerRow; c++ {
			seatNo := fmt.Sprintf("%s%d", rowLabel, c)
			seat := Seat{SeatNumber: seatNo, Row: r, Column: c}
			if b, ok := bySeat[seatNo]; ok {
				seat.IsOccupied = true
				seat.StudentID = b.StudentID
				if p.names != nil {
					seat.StudentName = p.names.StudentName(ctx, b.StudentID)
				}
			}
			seats = append(seats, seat)
		}
	}

	return ClassroomState{
		CourseID:       course.ID,
		CourseName:     course.Name,
		TotalSeats:     course.Seats.TotalSeats(),
		AvailableSeats: course.Seats.TotalSeats() - len(active),
		OccupiedSeats:  len(active),
		BookingStatus:  course.Seats.BookingStatus,
		LastUpdated:    time.Now(),
		Seats:          seats,
	}, nil
}

// rowLetter maps a zero-based row index to its letter label; seeded
// configs use at most 13 rows so a single letter (A-Z) always suffices.
func rowLetter(row int) string {
	return string(rune('A' + row))
}

// Apply mutates snap in place according to env, matching the projector's
// incremental-update contract: SEAT_BOOKED flips isOccupied and fills
// identity; SEAT_RELEASED clears the seat unless payload.fromWaitlist
// (in which case the paired STUDENT_AUTO_ENROLLED envelope does the
// re-fill); BOOKING_STATUS_CHANGED updates only the status field.
func Apply(snap *ClassroomState, env eventbus.Envelope) {
	switch env.Type {
	case eventbus.SeatBooked, eventbus.StudentAutoEnrolled:
		seatNo, _ := env.Payload["seatNumber"].(string)
		studentID, _ := env.Payload["studentId"].(string)
		for i := range snap.Seats {
			if snap.Seats[i].SeatNumber == seatNo {
				if !snap.Seats[i].IsOccupied {
					snap.OccupiedSeats++
					snap.AvailableSeats--
				}
				snap.Seats[i].IsOccupied = true
				snap.Seats[i].StudentID = studentID
				break
			}
		}
	case eventbus.SeatReleased:
		seatNo, _ := env.Payload["seatNumber"].(string)
		fromWaitlist, _ := env.Payload["fromWaitlist"].(bool)
		if fromWaitlist {
			return
		}
		for i := range snap.Seats {
			if snap.Seats[i].SeatNumber == seatNo {
				if snap.Seats[i].IsOccupied {
					snap.OccupiedSeats--
					snap.AvailableSeats++
				}
				snap.Seats[i].IsOccupied = false
				snap.Seats[i].StudentID = ""
				snap.Seats[i].StudentName = ""
				break
			}
		}
	case eventbus.BookingStatusChanged:
		if status, ok := env.Payload["bookingStatus"].(string); ok {
			snap.BookingStatus = status
		}
	}
	snap.LastUpdated = env.Timestamp
}
