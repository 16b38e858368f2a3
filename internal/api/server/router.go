package server

import (
	"net/http"
	"time"

	"github.com/coursereg/registrar/internal/api/handlers"
	"github.com/coursereg/registrar/internal/api/middleware"
	"github.com/coursereg/registrar/internal/api/ws"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the /api/registration surface (§6) plus the streaming
// endpoint, following the teacher's route-group-per-concern layout.
func NewRouter(h *handlers.Handler, auth *handlers.AuthHandler, wsHandler *ws.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth/admin/login", auth.AdminLogin)

	reg := router.Group("/api/registration")
	{
		reg.POST("/apply", h.Apply)
		reg.POST("/book-seat", h.BookSeat)
		reg.POST("/drop", h.Drop)
		reg.DELETE("/bookings/:courseId", h.CancelBooking)
		reg.GET("/classroom/:courseId", h.GetClassroom)
		reg.GET("/student/:studentId/status", h.GetStudentStatus)
		reg.GET("/waitlist/:courseId", h.GetWaitlist)
		reg.GET("/courses", h.ListCourses)
		reg.GET("/analytics", middleware.AuthMiddleware(), middleware.AdminMiddleware(), h.GetAnalytics)
		reg.POST("/course/:courseId/open-booking", middleware.AuthMiddleware(), middleware.AdminMiddleware(), h.OpenBooking)
		reg.POST("/course/:courseId/close-booking", middleware.AuthMiddleware(), middleware.AdminMiddleware(), h.CloseBooking)
	}

	router.GET("/stream", wsHandler.Serve)

	return router
}
