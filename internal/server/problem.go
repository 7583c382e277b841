package server

import (
	"encoding/json"
	"net/http"
)

// Problem types returned in the "type" member of error responses. Each
// points at the RFC section defining the status.
const (
	ProblemTypeNotFound    = "https://www.rfc-editor.org/rfc/rfc9110#status.404"
	ProblemTypeBadRequest  = "https://www.rfc-editor.org/rfc/rfc9110#status.400"
	ProblemTypeConflict    = "https://www.rfc-editor.org/rfc/rfc9110#status.409"
	ProblemTypeRateLimited = "https://www.rfc-editor.org/rfc/rfc6585#section-4"
	ProblemTypeInternal    = "https://www.rfc-editor.org/rfc/rfc9110#status.500"
)

// Problem is an RFC 7807 error body. Every non-2xx API response carries one.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes p as application/problem+json. A missing Title is
// filled from the status code.
func WriteProblem(w http.ResponseWriter, p Problem) {
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func problem(w http.ResponseWriter, typ string, status int, detail, instance string) {
	WriteProblem(w, Problem{Type: typ, Status: status, Detail: detail, Instance: instance})
}

func NotFound(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeNotFound, http.StatusNotFound, detail, instance)
}

func BadRequest(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeBadRequest, http.StatusBadRequest, detail, instance)
}

// Conflict reports a duplicate, such as an existing location name.
func Conflict(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeConflict, http.StatusConflict, detail, instance)
}

// RateLimited is written by the RateLimit middleware.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeRateLimited, http.StatusTooManyRequests, detail, instance)
}

// InternalError hides the cause; handlers log it before calling.
func InternalError(w http.ResponseWriter, detail, instance string) {
	problem(w, ProblemTypeInternal, http.StatusInternalServerError, detail, instance)
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
