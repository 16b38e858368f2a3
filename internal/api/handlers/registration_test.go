package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/eventbus"
	"github.com/coursereg/registrar/internal/orchestrator"
	"github.com/coursereg/registrar/internal/projector"
	"github.com/coursereg/registrar/internal/scoring"
	"github.com/coursereg/registrar/internal/storage/memory"
	"github.com/coursereg/registrar/internal/waitlist"
	"github.com/gin-gonic/gin"
)

func newTestHandler(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()
	repo := memory.New()
	scorer := scoring.NewEngine(scoring.DefaultWeights())
	wl := waitlist.New(scorer)
	bus := eventbus.New()
	proj := projector.New(repo, fakeNamerForHandlers{repo: repo})
	orch := orchestrator.New(repo, scorer, wl, bus, proj, stubNotifierForHandlers{})

	repo.SeedCourse(domain.Course{
		ID: "CS101", Name: "Distributed Systems", Category: "core", Difficulty: domain.Advanced,
		Seats: domain.SeatConfig{CourseID: "CS101", Rows: 1, SeatsPerRow: 1, BookingStatus: "OPEN"},
	})
	repo.SeedStudent(domain.Student{ID: "stu-1", GPA: 8.0, YearOfStudy: 3, Branch: "CSE"})

	return New(orch, repo, wl), repo
}

type fakeNamerForHandlers struct{ repo *memory.Store }

func (n fakeNamerForHandlers) StudentName(ctx context.Context, studentID string) string {
	return studentID
}

type stubNotifierForHandlers struct{}

func (stubNotifierForHandlers) NotifySeatConfirmed(ctx context.Context, student domain.Student, course domain.Course, seatNumber string) {
}

func postBookSeat(h *Handler, idempotencyKey string) *httptest.ResponseRecorder {
	body := `{"studentId":"stu-1","courseId":"CS101","seatNumber":"A1"}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/registration/book-seat", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		c.Request.Header.Set("Idempotency-Key", idempotencyKey)
	}
	h.BookSeat(c)
	return w
}

func TestBookSeatRepeatedWithSameIdempotencyKeyReturnsCachedResult(t *testing.T) {
	h, _ := newTestHandler(t)

	first := postBookSeat(h, "retry-key-1")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	var firstResult orchestrator.AllocationResult
	if err := json.Unmarshal(first.Body.Bytes(), &firstResult); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	second := postBookSeat(h, "retry-key-1")
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d: %s", second.Code, second.Body.String())
	}
	var secondResult orchestrator.AllocationResult
	if err := json.Unmarshal(second.Body.Bytes(), &secondResult); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if firstResult != secondResult {
		t.Errorf("expected a replayed Idempotency-Key to return the identical result, got %+v vs %+v", firstResult, secondResult)
	}
}

func TestBookSeatWithoutIdempotencyKeyIsNotCached(t *testing.T) {
	h, _ := newTestHandler(t)

	first := postBookSeat(h, "")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}

	// Without an Idempotency-Key, the same seat is already taken, so a
	// second identical request must fail rather than replay a cached result.
	second := postBookSeat(h, "")
	if second.Code == http.StatusOK {
		t.Error("expected the second uncached identical booking to fail, since the seat is already taken")
	}
}
