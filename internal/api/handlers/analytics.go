package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/gin-gonic/gin"
)

// analyticsResponse mirrors the teacher's AnalyticsResponse shape
// (GetTotalBookingsAnalytics), rebuilt over the event log kept by
// storage.Repository.ListEvents instead of the teacher's dedicated sqlc
// aggregate queries.
type analyticsResponse struct {
	Range     timeRange            `json:"range"`
	Totals    analyticsTotals      `json:"totals"`
	ByDay     []bookingsPerDay     `json:"by_day"`
	TopCourses []topCourse         `json:"top_courses"`
	ByStatus  []statusCount        `json:"by_status"`
}

type timeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type analyticsTotals struct {
	TotalBooked       int64 `json:"total_booked"`
	TotalDropped      int64 `json:"total_dropped"`
	TotalAutoAllocated int64 `json:"total_auto_allocated"`
	TotalApplied      int64 `json:"total_applied"`
}

type bookingsPerDay struct {
	Day      time.Time `json:"day"`
	Bookings int64     `json:"bookings"`
	Drops    int64     `json:"drops"`
}

type topCourse struct {
	CourseID string `json:"courseId"`
	Bookings int64  `json:"bookings"`
}

type statusCount struct {
	EventType string `json:"eventType"`
	Count     int64  `json:"count"`
}

// GetAnalytics implements GET /api/registration/analytics?from=&to=&topN=
// (supplemented endpoint; teacher's GetTotalBookingsAnalytics).
func (h *Handler) GetAnalytics(c *gin.Context) {
	now := time.Now().UTC()
	from, err := parseDateOrDatetime(c.Query("from"), now.AddDate(0, 0, -30))
	if err != nil {
		writeError(c, domain.InputInvalid("invalid from param"))
		return
	}
	to, err := parseDateOrDatetime(c.Query("to"), now)
	if err != nil {
		writeError(c, domain.InputInvalid("invalid to param"))
		return
	}

	topN := 10
	if v := c.Query("topN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topN = n
		}
	}

	events, err := h.repo.ListEvents(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, domain.Unavailable("failed to load analytics"))
		return
	}

	totals := analyticsTotals{}
	byDay := make(map[string]*bookingsPerDay)
	byCourse := make(map[string]int64)
	byType := make(map[domain.EventType]int64)

	for _, e := range events {
		byType[e.Type]++
		switch e.Type {
		case domain.EventSeatBooked, domain.EventAutoAllocated:
			totals.TotalBooked++
			if e.Type == domain.EventAutoAllocated {
				totals.TotalAutoAllocated++
			}
			byCourse[e.CourseID]++
		case domain.EventDropped:
			totals.TotalDropped++
		case domain.EventApplied:
			totals.TotalApplied++
		}

		day := e.Timestamp.UTC().Truncate(24 * time.Hour).Format("2006-01-02")
		point, ok := byDay[day]
		if !ok {
			point = &bookingsPerDay{Day: e.Timestamp.UTC().Truncate(24 * time.Hour)}
			byDay[day] = point
		}
		switch e.Type {
		case domain.EventSeatBooked, domain.EventAutoAllocated:
			point.Bookings++
		case domain.EventDropped:
			point.Drops++
		}
	}

	dayPoints := make([]bookingsPerDay, 0, len(byDay))
	for _, p := range byDay {
		dayPoints = append(dayPoints, *p)
	}
	sort.Slice(dayPoints, func(i, j int) bool { return dayPoints[i].Day.Before(dayPoints[j].Day) })

	topCourses := make([]topCourse, 0, len(byCourse))
	for id, n := range byCourse {
		topCourses = append(topCourses, topCourse{CourseID: id, Bookings: n})
	}
	sort.Slice(topCourses, func(i, j int) bool { return topCourses[i].Bookings > topCourses[j].Bookings })
	if len(topCourses) > topN {
		topCourses = topCourses[:topN]
	}

	statusCounts := make([]statusCount, 0, len(byType))
	for t, n := range byType {
		statusCounts = append(statusCounts, statusCount{EventType: string(t), Count: n})
	}
	sort.Slice(statusCounts, func(i, j int) bool { return statusCounts[i].EventType < statusCounts[j].EventType })

	c.JSON(http.StatusOK, analyticsResponse{
		Range:      timeRange{From: from, To: to},
		Totals:     totals,
		ByDay:      dayPoints,
		TopCourses: topCourses,
		ByStatus:   statusCounts,
	})
}

// parseDateOrDatetime accepts ISO datetime or date-only (YYYY-MM-DD),
// unchanged from the teacher's analytics.go helper.
func parseDateOrDatetime(s string, defaultVal time.Time) (time.Time, error) {
	if s == "" {
		return defaultVal, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, &time.ParseError{Layout: "RFC3339 or 2006-01-02", Value: s, LayoutElem: "", ValueElem: ""}
}
