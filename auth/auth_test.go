package auth

import (
	"net/http"
	"testing"
)

func TestBasicAuth_Apply(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://dav.example.org/", nil)
	a := NewBasicAuth("alice", "secret")
	if err := a.Apply(req); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	user, pass, ok := req.BasicAuth()
	if !ok || user != "alice" || pass != "secret" {
		t.Errorf("BasicAuth() = (%q, %q, %v), want (alice, secret, true)", user, pass, ok)
	}
}

func TestBearerAuth_Apply(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://dav.example.org/", nil)
	a := NewBearerAuth(StaticBearerToken("tok-123"))
	if err := a.Apply(req); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", got)
	}
}
