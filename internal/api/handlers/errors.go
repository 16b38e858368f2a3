package handlers

import (
	"net/http"
	"strings"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/gin-gonic/gin"
)

// writeError maps a domain.Error to the HTTP status table in spec.md §6/§7
// and writes the exit envelope {success:false, status, message}. Adapted
// from the teacher's gin.H-error idiom throughout
// internal/api/handlers/*.go.
func writeError(c *gin.Context, err error) {
	derr, ok := domain.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "status": "FAILED", "message": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch derr.Kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindStateViolation:
		if strings.Contains(derr.Message, "COMPLETED") {
			status = http.StatusGone
		} else {
			status = http.StatusConflict
		}
	case domain.KindUnavailable:
		status = http.StatusServiceUnavailable
	case domain.KindInputInvalid:
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{"success": false, "status": "REJECTED", "message": derr.Message})
}
