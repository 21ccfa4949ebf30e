package router

import (
	"fmt"
	"net/http"
)

// Response is the outcome of routing a request. Responses are created fresh
// for every call.
type Response struct {
	StatusCode int    `json:"statusCode"`
	MimeType   string `json:"mimeType,omitempty"`
	Value      any    `json:"value"`
}

// OK creates a successful response carrying value.
func OK(value any, mimeType string) Response {
	return Response{
		StatusCode: http.StatusOK,
		MimeType:   mimeType,
		Value:      value,
	}
}

// NotFound creates the response used when no target matches req. The value
// names the request so the miss can be traced back to it.
func NotFound(req Request) Response {
	return Response{
		StatusCode: http.StatusNotFound,
		MimeType:   "text/plain",
		Value:      fmt.Sprintf("%s not found (request %s)", req.Address(), req.ID()),
	}
}

// Failure creates a server error response for req.
func Failure(req Request, err error) Response {
	return Response{
		StatusCode: http.StatusInternalServerError,
		MimeType:   "text/plain",
		Value:      fmt.Sprintf("%s failed (request %s): %v", req.Address(), req.ID(), err),
	}
}

// Found reports whether the response is anything other than a routing miss.
func (r Response) Found() bool {
	return r.StatusCode != http.StatusNotFound
}

// Successful reports whether the status code is in the 2xx range.
func (r Response) Successful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
