package authbridge

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJoinSetsRequiredHeaders(t *testing.T) {
	var gotContentType, gotUserAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient()
	c.URL = srv.URL

	if err := c.Join("tok-1", "prof-1", "session-1"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if gotContentType != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q, want %q", gotContentType, "application/json; charset=utf-8")
	}
	if gotUserAgent != "Java/1.6.0_27" {
		t.Fatalf("User-Agent = %q, want %q", gotUserAgent, "Java/1.6.0_27")
	}
}

func TestJoinReturnsErrorOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient()
	c.URL = srv.URL

	if err := c.Join("tok-1", "prof-1", "session-1"); err == nil {
		t.Fatalf("expected error on 403 response")
	}
}
