package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func TestSPAHandler(t *testing.T) {
	root := fstest.MapFS{
		"index.html": {Data: []byte("<html>riata</html>")},
		"app.js":     {Data: []byte("console.log('hi')")},
	}
	h := newSPAHandler(root)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/", http.StatusOK, "riata"},
		{"/app.js", http.StatusOK, "console.log"},
		{"/profile/summary", http.StatusOK, "riata"},
		{"/api/unknown", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestEmbeddedIndex(t *testing.T) {
	rr := httptest.NewRecorder()
	SPAHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "RIATA") {
		t.Fatalf("status = %d body = %q", rr.Code, rr.Body.String())
	}
}
