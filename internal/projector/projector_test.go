package projector

import (
	"context"
	"testing"
	"time"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/eventbus"
	"github.com/coursereg/registrar/internal/storage"
	"github.com/coursereg/registrar/internal/storage/memory"
)

type fakeNamer struct{ names map[string]string }

func (f fakeNamer) StudentName(ctx context.Context, studentID string) string {
	return f.names[studentID]
}

func TestSnapshotEnumeratesSeatsInCanonicalOrder(t *testing.T) {
	repo := memory.New()
	repo.SeedCourse(domain.Course{
		ID: "CS101", Name: "Distributed Systems",
		Seats: domain.SeatConfig{CourseID: "CS101", Rows: 2, SeatsPerRow: 2, BookingStatus: "OPEN"},
	})
	p := New(repo, nil)

	snap, err := p.Snapshot(context.Background(), "CS101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOrder := []string{"A1", "A2", "B1", "B2"}
	if len(snap.Seats) != len(wantOrder) {
		t.Fatalf("expected %d seats, got %d", len(wantOrder), len(snap.Seats))
	}
	for i, want := range wantOrder {
		if snap.Seats[i].SeatNumber != want {
			t.Errorf("seat %d: expected %s, got %s", i, want, snap.Seats[i].SeatNumber)
		}
	}
	if snap.TotalSeats != 4 || snap.AvailableSeats != 4 || snap.OccupiedSeats != 0 {
		t.Errorf("expected an all-free 4-seat snapshot, got %+v", snap)
	}
}

func TestSnapshotMarksOccupiedSeatsWithStudentIdentity(t *testing.T) {
	repo := memory.New()
	repo.SeedCourse(domain.Course{
		ID: "CS101", Seats: domain.SeatConfig{CourseID: "CS101", Rows: 1, SeatsPerRow: 2, BookingStatus: "OPEN"},
	})
	repo.SeedStudent(domain.Student{ID: "stu-1", Name: "Asha Rao"})
	ctx := context.Background()
	repo.WithCourseLock(ctx, "CS101", func(tx storage.Tx) error {
		return tx.InsertBooking(ctx, domain.SeatBooking{CourseID: "CS101", StudentID: "stu-1", SeatNumber: "A1", IsActive: true})
	})

	p := New(repo, fakeNamer{names: map[string]string{"stu-1": "Asha Rao"}})
	snap, err := p.Snapshot(ctx, "CS101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.OccupiedSeats != 1 || snap.AvailableSeats != 1 {
		t.Errorf("expected one occupied seat, got %+v", snap)
	}
	if snap.Seats[0].StudentID != "stu-1" || snap.Seats[0].StudentName != "Asha Rao" {
		t.Errorf("expected seat A1 to carry the booking student's identity, got %+v", snap.Seats[0])
	}
}

// TestApplyIncrementalMatchesFullSnapshot is the testable consistency
// property: applying a SEAT_BOOKED envelope to a cached snapshot must reach
// the same occupancy state as re-reading a fresh Snapshot after the
// underlying booking actually happened.
func TestApplyIncrementalMatchesFullSnapshot(t *testing.T) {
	repo := memory.New()
	repo.SeedCourse(domain.Course{
		ID: "CS101", Seats: domain.SeatConfig{CourseID: "CS101", Rows: 1, SeatsPerRow: 2, BookingStatus: "OPEN"},
	})
	ctx := context.Background()
	p := New(repo, nil)

	before, err := p.Snapshot(ctx, "CS101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	repo.WithCourseLock(ctx, "CS101", func(tx storage.Tx) error {
		return tx.InsertBooking(ctx, domain.SeatBooking{CourseID: "CS101", StudentID: "stu-1", SeatNumber: "A1", IsActive: true})
	})

	Apply(&before, eventbus.Envelope{
		Type:      eventbus.SeatBooked,
		CourseID:  "CS101",
		Timestamp: time.Now(),
		Payload:   map[string]any{"seatNumber": "A1", "studentId": "stu-1"},
	})

	after, err := p.Snapshot(ctx, "CS101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if before.OccupiedSeats != after.OccupiedSeats || before.AvailableSeats != after.AvailableSeats {
		t.Errorf("incremental apply diverged from full snapshot: incremental=%+v full=%+v", before, after)
	}
	var incSeat, fullSeat Seat
	for _, s := range before.Seats {
		if s.SeatNumber == "A1" {
			incSeat = s
		}
	}
	for _, s := range after.Seats {
		if s.SeatNumber == "A1" {
			fullSeat = s
		}
	}
	if incSeat.IsOccupied != fullSeat.IsOccupied || incSeat.StudentID != fullSeat.StudentID {
		t.Errorf("incremental seat state %+v diverged from full snapshot seat state %+v", incSeat, fullSeat)
	}
}

func TestApplySeatReleasedSkipsWhenFromWaitlist(t *testing.T) {
	snap := ClassroomState{Seats: []Seat{{SeatNumber: "A1", IsOccupied: true, StudentID: "stu-1"}}, OccupiedSeats: 1, AvailableSeats: 0}
	Apply(&snap, eventbus.Envelope{
		Type:    eventbus.SeatReleased,
		Payload: map[string]any{"seatNumber": "A1", "fromWaitlist": true},
	})
	if !snap.Seats[0].IsOccupied {
		t.Error("expected a fromWaitlist release to leave the seat marked occupied pending the paired auto-enroll envelope")
	}
}

func TestApplyBookingStatusChangedUpdatesStatusOnly(t *testing.T) {
	snap := ClassroomState{BookingStatus: "OPEN"}
	Apply(&snap, eventbus.Envelope{
		Type:    eventbus.BookingStatusChanged,
		Payload: map[string]any{"bookingStatus": "WAITLIST_ONLY"},
	})
	if snap.BookingStatus != "WAITLIST_ONLY" {
		t.Errorf("expected BookingStatus updated to WAITLIST_ONLY, got %s", snap.BookingStatus)
	}
}
