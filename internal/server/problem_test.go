package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProblemHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string, string)
		status int
		typ    string
		title  string
	}{
		{"not found", NotFound, http.StatusNotFound, ProblemTypeNotFound, "Not Found"},
		{"bad request", BadRequest, http.StatusBadRequest, ProblemTypeBadRequest, "Bad Request"},
		{"conflict", Conflict, http.StatusConflict, ProblemTypeConflict, "Conflict"},
		{"rate limited", RateLimited, http.StatusTooManyRequests, ProblemTypeRateLimited, "Too Many Requests"},
		{"internal", InternalError, http.StatusInternalServerError, ProblemTypeInternal, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "device 3C:EF:8C:00:11:22", "/api/v1/devices/3C:EF:8C:00:11:22/monitored")

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("content-type = %q, want application/problem+json", ct)
			}
			var p Problem
			if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
				t.Fatalf("decode: %v", err)
			}
			want := Problem{
				Type:     tt.typ,
				Title:    tt.title,
				Status:   tt.status,
				Detail:   "device 3C:EF:8C:00:11:22",
				Instance: "/api/v1/devices/3C:EF:8C:00:11:22/monitored",
			}
			if p != want {
				t.Errorf("problem = %+v, want %+v", p, want)
			}
		})
	}
}

func TestProblemTypes_DistinctRFCReferences(t *testing.T) {
	types := []string{ProblemTypeNotFound, ProblemTypeBadRequest, ProblemTypeConflict, ProblemTypeRateLimited, ProblemTypeInternal}
	seen := map[string]bool{}
	for _, typ := range types {
		if !strings.HasPrefix(typ, "https://www.rfc-editor.org/rfc/") {
			t.Errorf("type %q does not reference an RFC", typ)
		}
		if seen[typ] {
			t.Errorf("type %q used for more than one problem", typ)
		}
		seen[typ] = true
	}
}

func TestWriteProblem_KeepsExplicitTitle(t *testing.T) {
	w := httptest.NewRecorder()
	WriteProblem(w, Problem{Type: ProblemTypeBadRequest, Title: "Invalid subnet", Status: http.StatusBadRequest})

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw["title"] != "Invalid subnet" {
		t.Errorf("title = %v, want Invalid subnet", raw["title"])
	}
	if _, ok := raw["detail"]; ok {
		t.Error("empty detail was not omitted")
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
	if body := strings.TrimSpace(w.Body.String()); body != `{"status":"started"}` {
		t.Errorf("body = %s", body)
	}
}
