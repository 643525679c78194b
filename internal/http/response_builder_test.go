package http

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		JSON(map[string]int{"created": 2}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != contentTypeJSON {
		t.Errorf("Content-Type = %q, want %q", got, contentTypeJSON)
	}
	if got := w.Header().Get("X-Test"); got != "1" {
		t.Errorf("X-Test = %q, want 1", got)
	}
	if got := w.Body.String(); got != "{\"created\":2}\n" {
		t.Errorf("Body = %q", got)
	}
}

func TestResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().JSON(math.Inf(1)).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestPlainTextResponses(t *testing.T) {
	tests := []struct {
		name   string
		build  *ResponseBuilder
		status int
		body   string
	}{
		{"unauthorized", UnauthorizedResponse(), http.StatusUnauthorized, "Unauthorized"},
		{"cron failed", CronFailedResponse(), http.StatusInternalServerError, "Cron failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.build.Write(w)
			if w.Code != tt.status {
				t.Errorf("Status code = %d, want %d", w.Code, tt.status)
			}
			if w.Body.String() != tt.body {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		build  *ResponseBuilder
		status int
	}{
		{"bad request", ErrorResponse(http.StatusBadRequest, "bad"), http.StatusBadRequest},
		{"not found", NotFoundError("missing"), http.StatusNotFound},
		{"unprocessable", ErrorResponse(http.StatusUnprocessableEntity, "broken"), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.build.Write(w)
			if w.Code != tt.status {
				t.Errorf("Status code = %d, want %d", w.Code, tt.status)
			}
			if w.Header().Get("Content-Type") != contentTypeJSON {
				t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
			}
		})
	}
}
