// Package handlers implements the HTTP surface of §6, adapted from the
// teacher's internal/api/handlers/bookings.go request/response shape and
// gin.H error idiom, rewired against internal/orchestrator instead of the
// teacher's sqlc-generated queries.
package handlers

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/coursereg/registrar/internal/orchestrator"
	"github.com/coursereg/registrar/internal/storage"
	"github.com/coursereg/registrar/internal/waitlist"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	orch *orchestrator.Orchestrator
	repo storage.Repository
	wl   *waitlist.Waitlist

	idempotencyMu    sync.Mutex
	idempotencyCache map[string]orchestrator.AllocationResult
}

func New(orch *orchestrator.Orchestrator, repo storage.Repository, wl *waitlist.Waitlist) *Handler {
	return &Handler{orch: orch, repo: repo, wl: wl, idempotencyCache: make(map[string]orchestrator.AllocationResult)}
}

// idempotencyKeyFor returns the request's Idempotency-Key header combined
// with the course, scoping replays to a single course the way the teacher's
// GetBookingByEventAndIdempotency scopes a key to a single event.
func idempotencyKeyFor(c *gin.Context, courseID string) string {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		return ""
	}
	return courseID + "/" + key
}

type applyRequest struct {
	StudentID     string `json:"studentId" binding:"required"`
	CourseID      string `json:"courseId" binding:"required"`
	PreferredSeat string `json:"preferredSeat"`
	AutoRegister  bool   `json:"autoRegister"`
}

func (h *Handler) Apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.InputInvalid(err.Error()))
		return
	}
	result, err := h.orch.Apply(c.Request.Context(), req.StudentID, req.CourseID, req.PreferredSeat, req.AutoRegister)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type bookSeatRequest struct {
	StudentID  string `json:"studentId" binding:"required"`
	CourseID   string `json:"courseId" binding:"required"`
	SeatNumber string `json:"seatNumber" binding:"required"`
}

func (h *Handler) BookSeat(c *gin.Context) {
	var req bookSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.InputInvalid(err.Error()))
		return
	}

	idemKey := idempotencyKeyFor(c, req.CourseID)
	if idemKey != "" {
		h.idempotencyMu.Lock()
		cached, ok := h.idempotencyCache[idemKey]
		h.idempotencyMu.Unlock()
		if ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	result, err := h.orch.BookSeatWithHold(c.Request.Context(), req.StudentID, req.CourseID, req.SeatNumber)
	if err != nil {
		writeError(c, err)
		return
	}

	if idemKey != "" {
		h.idempotencyMu.Lock()
		h.idempotencyCache[idemKey] = result
		h.idempotencyMu.Unlock()
	}

	c.JSON(http.StatusOK, result)
}

type dropRequest struct {
	StudentID string `json:"studentId" binding:"required"`
	CourseID  string `json:"courseId" binding:"required"`
}

func (h *Handler) Drop(c *gin.Context) {
	var req dropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.InputInvalid(err.Error()))
		return
	}
	h.orch.CancelHold(req.CourseID, req.StudentID)
	result, err := h.orch.Drop(c.Request.Context(), req.StudentID, req.CourseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelBooking is a RESTful alias for Drop (DELETE
// /bookings/:courseId?studentId=...), matching the teacher's
// two-routes-one-handler convention in cancellations.go.
func (h *Handler) CancelBooking(c *gin.Context) {
	courseID := c.Param("courseId")
	studentID := c.Query("studentId")
	if studentID == "" {
		writeError(c, domain.InputInvalid("studentId query parameter is required"))
		return
	}
	h.orch.CancelHold(courseID, studentID)
	result, err := h.orch.Drop(c.Request.Context(), studentID, courseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetClassroom(c *gin.Context) {
	courseID := c.Param("courseId")
	state, err := h.orch.GetClassroomState(c.Request.Context(), courseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) GetStudentStatus(c *gin.Context) {
	studentID := c.Param("studentId")
	status, err := h.orch.GetStudentStatus(c.Request.Context(), studentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) GetWaitlist(c *gin.Context) {
	courseID := c.Param("courseId")
	limit := 1 << 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			limit = n
		}
	}
	entries := h.wl.PeekTop(courseID, limit)
	c.JSON(http.StatusOK, gin.H{
		"totalWaitlisted": h.wl.Size(courseID),
		"entries":         entries,
	})
}

func (h *Handler) OpenBooking(c *gin.Context) {
	courseID := c.Param("courseId")
	if err := h.orch.OpenBooking(c.Request.Context(), courseID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "booking opened"})
}

func (h *Handler) CloseBooking(c *gin.Context) {
	courseID := c.Param("courseId")
	if err := h.orch.CloseBooking(c.Request.Context(), courseID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "booking closed"})
}

// courseSummary is the shape returned by GET /courses.
type courseSummary struct {
	CourseID       string `json:"courseId"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	Difficulty     string `json:"difficulty"`
	BookingStatus  string `json:"bookingStatus"`
	TotalSeats     int    `json:"totalSeats"`
	AvailableSeats int    `json:"availableSeats"`
}

func (h *Handler) ListCourses(c *gin.Context) {
	ctx := c.Request.Context()
	courses, err := h.repo.ListCourses(ctx)
	if err != nil {
		writeError(c, domain.Unavailable("failed to list courses"))
		return
	}
	out := make([]courseSummary, 0, len(courses))
	for _, course := range courses {
		active, err := h.repo.ActiveBookings(ctx, course.ID)
		if err != nil {
			writeError(c, domain.Unavailable("failed to load active bookings"))
			return
		}
		total := course.Seats.TotalSeats()
		out = append(out, courseSummary{
			CourseID:       course.ID,
			Name:           course.Name,
			Category:       course.Category,
			Difficulty:     string(course.Difficulty),
			BookingStatus:  course.Seats.BookingStatus,
			TotalSeats:     total,
			AvailableSeats: total - len(active),
		})
	}
	c.JSON(http.StatusOK, out)
}
