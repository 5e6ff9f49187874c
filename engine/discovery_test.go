package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// scriptedResponse is one canned HTTP response a scriptedTransport replays
// in order, regardless of which request asked for it — tests assert the
// expected request sequence separately via requests.
type scriptedResponse struct {
	status  int
	headers map[string]string
	body    string
}

type scriptedTransport struct {
	t         *testing.T
	responses []scriptedResponse
	requests  []*http.Request
}

func (s *scriptedTransport) Do(req *http.Request) (*http.Response, error) {
	s.requests = append(s.requests, req)
	if req.Body != nil {
		io.Copy(io.Discard, req.Body)
	}
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		s.t.Fatalf("unexpected request #%d: %s %s", idx, req.Method, req.URL)
	}
	sr := s.responses[idx]

	rec := httptest.NewRecorder()
	for k, v := range sr.headers {
		rec.Header().Set(k, v)
	}
	if sr.body != "" {
		rec.Header().Set("Content-Type", "application/xml")
	}
	rec.WriteHeader(sr.status)
	if sr.body != "" {
		rec.WriteString(sr.body)
	}
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

const minimalAddressBookListing = `<?xml version="1.0" encoding="UTF-8"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav" xmlns:CS="http://calendarserver.org/ns/">
<response>
  <href>/addressbooks/me/</href>
  <propstat><prop><resourcetype><collection/></resourcetype></prop><status>HTTP/1.1 200 OK</status></propstat>
</response>
<response>
  <href>/addressbooks/me/default/</href>
  <propstat>
    <prop>
      <resourcetype><C:addressbook/><collection/></resourcetype>
      <displayname>Default</displayname>
      <CS:getctag>ctag-1</CS:getctag>
      <sync-token>https://dav.example.org/sync/1</sync-token>
    </prop>
    <status>HTTP/1.1 200 OK</status>
  </propstat>
</response>
</multistatus>`

// TestDiscover_WellKnownFallbackAndRedirect exercises spec.md §8 scenario 1:
// the initial PROPFIND 404s, the well-known retry 301s to a new base, and
// discovery continues from the redirect target.
func TestDiscover_WellKnownFallbackAndRedirect(t *testing.T) {
	principalResponse := `<?xml version="1.0" encoding="UTF-8"?>
<multistatus xmlns="DAV:">
<response>
  <href>/principals/me/</href>
  <propstat><prop><current-user-principal><href>/principals/me/</href></current-user-principal></prop>
  <status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	homeSetResponse := `<?xml version="1.0" encoding="UTF-8"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
<response>
  <href>/principals/me/</href>
  <propstat><prop><C:addressbook-home-set><href>/addressbooks/me/</href></C:addressbook-home-set></prop>
  <status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	tr := &scriptedTransport{t: t, responses: []scriptedResponse{
		{status: http.StatusNotFound},
		{status: http.StatusMovedPermanently, headers: map[string]string{"Location": "https://dav.example.org/principals/me/"}},
		{status: http.StatusMultiStatus, body: principalResponse},
		{status: http.StatusMultiStatus, body: homeSetResponse},
		{status: http.StatusMultiStatus, body: minimalAddressBookListing},
	}}

	e := New(Config{AccountID: "acct1", ServerURL: "https://example.org/carddav"}, tr, nil, nil, nil)

	base, books, err := e.discover(context.Background())
	if err != nil {
		t.Fatalf("discover() error = %v", err)
	}
	if base != "https://dav.example.org/principals/me/" {
		t.Errorf("base = %q, want redirect target adopted as new base", base)
	}
	if len(books) != 1 || books[0].URL != "/addressbooks/me/default/" {
		t.Fatalf("books = %+v, want one book at /addressbooks/me/default/", books)
	}

	if len(tr.requests) != 5 {
		t.Fatalf("issued %d requests, want 5", len(tr.requests))
	}
	if tr.requests[0].URL.Path != "/carddav" {
		t.Errorf("request 0 path = %q, want /carddav", tr.requests[0].URL.Path)
	}
	if tr.requests[1].URL.Path != "/.well-known/carddav" {
		t.Errorf("request 1 path = %q, want /.well-known/carddav", tr.requests[1].URL.Path)
	}
	if tr.requests[2].URL.String() != "https://dav.example.org/principals/me/" {
		t.Errorf("request 2 url = %q, want the redirect target", tr.requests[2].URL.String())
	}
}

// TestDiscover_CircularRedirectAborts covers the same-path-redirect branch
// of spec.md §7: a well-known URI that redirects to itself is rejected.
func TestDiscover_CircularRedirectAborts(t *testing.T) {
	tr := &scriptedTransport{t: t, responses: []scriptedResponse{
		{status: http.StatusMovedPermanently, headers: map[string]string{"Location": "https://example.org/.well-known/carddav"}},
	}}
	e := New(Config{AccountID: "acct1", ServerURL: "https://example.org"}, tr, nil, nil, nil)

	_, _, err := e.discover(context.Background())
	if err == nil {
		t.Fatal("discover() succeeded, want circular-redirect error")
	}
}

// TestDiscover_NonWellKnownRedirectAborts covers §7's "any other cross-path
// redirect aborts with 301" rule.
func TestDiscover_NonWellKnownRedirectAborts(t *testing.T) {
	tr := &scriptedTransport{t: t, responses: []scriptedResponse{
		{status: http.StatusMovedPermanently, headers: map[string]string{"Location": "https://example.org/elsewhere/"}},
	}}
	e := New(Config{AccountID: "acct1", ServerURL: "https://example.org/carddav"}, tr, nil, nil, nil)

	_, _, err := e.discover(context.Background())
	if err == nil {
		t.Fatal("discover() succeeded, want unsafe-redirect error")
	}
}
