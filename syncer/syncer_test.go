package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carddavsync/engine/engine"
	"github.com/carddavsync/engine/syncstate"
	"github.com/carddavsync/engine/vcard"
)

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

type fakeStore struct {
	applied                                          bool
	appliedAdditions, appliedMods, appliedRemovals   []*vcard.Contact
	localAdditions, localModifications, localRemoval []LocalContact
	localIDsByGUID                                   map[string]string
}

func (f *fakeStore) LocalChanges() ([]LocalContact, []LocalContact, []LocalContact, error) {
	return f.localAdditions, f.localModifications, f.localRemoval, nil
}

func (f *fakeStore) ApplyRemote(additions, modifications, removals []*vcard.Contact) error {
	f.applied = true
	f.appliedAdditions = additions
	f.appliedMods = modifications
	f.appliedRemovals = removals
	return nil
}

func (f *fakeStore) ResolveLocalID(guid string) (string, bool) {
	id, ok := f.localIDsByGUID[guid]
	return id, ok
}

// TestSync_AppliesRemoteAndUpsyncsLocal exercises the façade end-to-end: a
// first-time discovery+downsync that yields one addition, applied to the
// store, followed by an upsync of one locally-originated addition against
// the address book the downsync touched.
func TestSync_AppliesRemoteAndUpsyncsLocal(t *testing.T) {
	principalResponse := `<?xml version="1.0"?>
<multistatus xmlns="DAV:">
<response>
  <href>/principals/me/</href>
  <propstat><prop><current-user-principal><href>/principals/me/</href></current-user-principal></prop>
  <status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	homeSetResponse := `<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
<response>
  <href>/principals/me/</href>
  <propstat><prop><C:addressbook-home-set><href>/addressbooks/me/</href></C:addressbook-home-set></prop>
  <status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	listing := `<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav" xmlns:CS="http://calendarserver.org/ns/">
<response>
  <href>/addressbooks/me/default/</href>
  <propstat>
    <prop>
      <resourcetype><C:addressbook/><collection/></resourcetype>
      <CS:getctag>ctag-1</CS:getctag>
    </prop>
    <status>HTTP/1.1 200 OK</status>
  </propstat>
</response>
</multistatus>`

	etagListing := `<?xml version="1.0"?>
<multistatus xmlns="DAV:">
<response>
  <href>/addressbooks/me/default/a.vcf</href>
  <propstat><prop><getetag>"etag-a"</getetag></prop><status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	multigetResponse := `<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
<response>
  <href>/addressbooks/me/default/a.vcf</href>
  <propstat>
    <prop>
      <getetag>"etag-a"</getetag>
      <C:address-data>BEGIN:VCARD&#13;VERSION:3.0&#13;UID:uid-a&#13;FN:Alice&#13;END:VCARD&#13;</C:address-data>
    </prop>
    <status>HTTP/1.1 200 OK</status>
  </propstat>
</response>
</multistatus>`

	tr := &scriptedTransport{t: t, responses: []scriptedResponse{
		{status: http.StatusMultiStatus, body: principalResponse},
		{status: http.StatusMultiStatus, body: homeSetResponse},
		{status: http.StatusMultiStatus, body: listing},
		{status: http.StatusMultiStatus, body: etagListing},
		{status: http.StatusMultiStatus, body: multigetResponse},
		{status: http.StatusCreated, headers: map[string]string{"ETag": `"etag-new"`}},
	}}

	eng := engine.New(engine.Config{AccountID: "acct1", ServerURL: "https://example.org"}, tr, nil, nil, nil)
	store := &fakeStore{
		localAdditions: []LocalContact{{Contact: &vcard.Contact{}}},
	}
	s := New(eng, store, nil)
	state := syncstate.NewAccountState()

	result, upsyncResult, err := s.Sync(context.Background(), state)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !store.applied {
		t.Error("ApplyRemote was not called")
	}
	if result.DefaultAddressBookURL != "/addressbooks/me/default/" {
		t.Errorf("DefaultAddressBookURL = %q", result.DefaultAddressBookURL)
	}
	if upsyncResult.Applied != 1 {
		t.Errorf("upsyncResult.Applied = %d, want 1", upsyncResult.Applied)
	}
}

// TestSync_ResolvesLocalIDForPreviouslyUpsyncedContact covers spec.md §4.1
// step 7: a contact this round downsynced (because the store's own earlier
// upsync of it is now visible on the server) must arrive at ApplyRemote with
// its LocalID set, so the store can recognize it as an update to a contact
// it already owns rather than a brand-new one.
func TestSync_ResolvesLocalIDForPreviouslyUpsyncedContact(t *testing.T) {
	principalResponse := `<?xml version="1.0"?>
<multistatus xmlns="DAV:">
<response>
  <href>/principals/me/</href>
  <propstat><prop><current-user-principal><href>/principals/me/</href></current-user-principal></prop>
  <status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	homeSetResponse := `<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
<response>
  <href>/principals/me/</href>
  <propstat><prop><C:addressbook-home-set><href>/addressbooks/me/</href></C:addressbook-home-set></prop>
  <status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	listing := `<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav" xmlns:CS="http://calendarserver.org/ns/">
<response>
  <href>/addressbooks/me/default/</href>
  <propstat>
    <prop>
      <resourcetype><C:addressbook/><collection/></resourcetype>
      <CS:getctag>ctag-1</CS:getctag>
    </prop>
    <status>HTTP/1.1 200 OK</status>
  </propstat>
</response>
</multistatus>`

	etagListing := `<?xml version="1.0"?>
<multistatus xmlns="DAV:">
<response>
  <href>/addressbooks/me/default/a.vcf</href>
  <propstat><prop><getetag>"etag-a"</getetag></prop><status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	multigetResponse := `<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
<response>
  <href>/addressbooks/me/default/a.vcf</href>
  <propstat>
    <prop>
      <getetag>"etag-a"</getetag>
      <C:address-data>BEGIN:VCARD&#13;VERSION:3.0&#13;UID:uid-a&#13;FN:Alice&#13;END:VCARD&#13;</C:address-data>
    </prop>
    <status>HTTP/1.1 200 OK</status>
  </propstat>
</response>
</multistatus>`

	tr := &scriptedTransport{t: t, responses: []scriptedResponse{
		{status: http.StatusMultiStatus, body: principalResponse},
		{status: http.StatusMultiStatus, body: homeSetResponse},
		{status: http.StatusMultiStatus, body: listing},
		{status: http.StatusMultiStatus, body: etagListing},
		{status: http.StatusMultiStatus, body: multigetResponse},
	}}

	eng := engine.New(engine.Config{AccountID: "acct1", ServerURL: "https://example.org"}, tr, nil, nil, nil)
	store := &fakeStore{localIDsByGUID: map[string]string{syncstate.BuildGUID("acct1", "/addressbooks/me/default/", "uid-a"): "local-42"}}
	s := New(eng, store, nil)
	state := syncstate.NewAccountState()

	if _, _, err := s.Sync(context.Background(), state); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if len(store.appliedAdditions) != 1 {
		t.Fatalf("appliedAdditions = %d, want 1", len(store.appliedAdditions))
	}
	if got := store.appliedAdditions[0].LocalID; got != "local-42" {
		t.Errorf("LocalID = %q, want local-42 (resolved from store)", got)
	}
}

// TestSync_NoDefaultAddressBookSkipsUpsync covers the case where a round
// has zero delta activity: there is no default address book to target, so
// local changes (if any) are not upsynced this round.
func TestSync_NoDefaultAddressBookSkipsUpsync(t *testing.T) {
	principalResponse := `<?xml version="1.0"?>
<multistatus xmlns="DAV:">
<response>
  <href>/principals/me/</href>
  <propstat><prop><current-user-principal><href>/principals/me/</href></current-user-principal></prop>
  <status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	homeSetResponse := `<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav">
<response>
  <href>/principals/me/</href>
  <propstat><prop><C:addressbook-home-set><href>/addressbooks/me/</href></C:addressbook-home-set></prop>
  <status>HTTP/1.1 200 OK</status></propstat>
</response>
</multistatus>`

	listing := `<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:carddav" xmlns:CS="http://calendarserver.org/ns/">
<response>
  <href>/addressbooks/me/default/</href>
  <propstat>
    <prop>
      <resourcetype><C:addressbook/><collection/></resourcetype>
      <sync-token>https://dav.example.org/sync/1</sync-token>
    </prop>
    <status>HTTP/1.1 200 OK</status>
  </propstat>
</response>
</multistatus>`

	tr := &scriptedTransport{t: t, responses: []scriptedResponse{
		{status: http.StatusMultiStatus, body: principalResponse},
		{status: http.StatusMultiStatus, body: homeSetResponse},
		{status: http.StatusMultiStatus, body: listing},
	}}

	eng := engine.New(engine.Config{AccountID: "acct1", ServerURL: "https://example.org"}, tr, nil, nil, nil)
	store := &fakeStore{}
	s := New(eng, store, nil)
	state := syncstate.NewAccountState()
	state.AddressBookSyncTokens["/addressbooks/me/default/"] = "https://dav.example.org/sync/1"

	result, upsyncResult, err := s.Sync(context.Background(), state)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.DefaultAddressBookURL != "" {
		t.Errorf("DefaultAddressBookURL = %q, want empty (no delta activity)", result.DefaultAddressBookURL)
	}
	if upsyncResult.Applied != 0 {
		t.Errorf("Applied = %d, want 0", upsyncResult.Applied)
	}
	if len(tr.requests) != 3 {
		t.Errorf("issued %d requests, want exactly 3 (no upsync attempted)", len(tr.requests))
	}
}
