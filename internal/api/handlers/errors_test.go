package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coursereg/registrar/internal/domain"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func recordWriteError(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	writeError(c, err)
	return w
}

func TestWriteErrorStatusCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.NotFound("course not found"), http.StatusNotFound},
		{"conflict", domain.Conflict("seat already taken"), http.StatusConflict},
		{"state violation", domain.StateViolation("course is CLOSED"), http.StatusConflict},
		{"state violation on completed course", domain.StateViolation("course is COMPLETED"), http.StatusGone},
		{"unavailable", domain.Unavailable("database unreachable"), http.StatusServiceUnavailable},
		{"input invalid", domain.InputInvalid("studentId is required"), http.StatusBadRequest},
		{"non-domain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := recordWriteError(c.err)
			if w.Code != c.want {
				t.Errorf("expected status %d, got %d", c.want, w.Code)
			}
		})
	}
}

func TestWriteErrorResponseEnvelope(t *testing.T) {
	w := recordWriteError(domain.Conflict("seat already taken"))

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body["success"])
	}
	if body["status"] != "REJECTED" {
		t.Errorf("expected status=REJECTED, got %v", body["status"])
	}
	if body["message"] != "seat already taken" {
		t.Errorf("expected message passthrough, got %v", body["message"])
	}
}

func TestWriteErrorNonDomainErrorUsesFailedStatus(t *testing.T) {
	w := recordWriteError(errors.New("unexpected"))

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "FAILED" {
		t.Errorf("expected status=FAILED for a non-domain error, got %v", body["status"])
	}
}
