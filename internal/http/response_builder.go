// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing responses so
// every handler sets status, content type and body the same way.

package http

import (
	"encoding/json"
	"net/http"
)

const (
	contentTypeJSON     = "application/json; charset=utf-8"
	contentTypeText     = "text/plain; charset=utf-8"
	contentTypeCalendar = "text/calendar; charset=utf-8"
)

// ResponseBuilder provides a fluent API for building responses.
type ResponseBuilder struct {
	statusCode int
	body       []byte
	headers    map[string]string
	err        error
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a response header.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the body. An encoding failure turns the response into
// a 500 when written.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		b.err = err
		return b
	}
	b.body = append(data, '\n')
	b.headers["Content-Type"] = contentTypeJSON
	return b
}

// Text sets a plain text body, written as is.
func (b *ResponseBuilder) Text(s string) *ResponseBuilder {
	b.body = []byte(s)
	b.headers["Content-Type"] = contentTypeText
	return b
}

// Calendar sets an iCalendar body.
func (b *ResponseBuilder) Calendar(ics string) *ResponseBuilder {
	b.body = []byte(ics)
	b.headers["Content-Type"] = contentTypeCalendar
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		w.Header().Set("Content-Type", contentTypeText)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
		return
	}

	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error response {"error": message}.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// UnauthorizedResponse is the plain 401 the cron caller expects.
func UnauthorizedResponse() *ResponseBuilder {
	return NewResponse().Status(http.StatusUnauthorized).Text("Unauthorized")
}

// CronFailedResponse is the plain 500 for a run that could not start.
func CronFailedResponse() *ResponseBuilder {
	return NewResponse().Status(http.StatusInternalServerError).Text("Cron failed")
}
