package carddav

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/carddavsync/engine/internal/webdav"
)

// RequestGenerator constructs authenticated CardDAV requests. It is
// stateless per call: every method takes the full set of inputs it needs
// and returns either a decoded multistatus or a raw *http.Response for the
// PUT/DELETE upsync operations, which carry no XML body of their own.
//
// This is a direct Go rendering of spec.md §4.3's RequestGenerator.
type RequestGenerator struct {
	client *webdav.Client
}

// NewRequestGenerator builds a RequestGenerator using auth for every
// outgoing request. auth may be nil for anonymous servers (tests only).
func NewRequestGenerator(httpClient webdav.HTTPClient, auth webdav.AuthProvider) *RequestGenerator {
	return &RequestGenerator{client: webdav.NewClient(httpClient, auth)}
}

func resolve(base, ref string) (string, error) {
	if ref == "" {
		return base, nil
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("carddav: invalid base URL %q: %w", base, err)
	}
	u := webdav.ResolveHref(b, ref)
	return u.String(), nil
}

// CurrentUserInformation performs PROPFIND depth:0 for current-user-principal
// against baseURL (spec.md §4.1 step 2).
func (g *RequestGenerator) CurrentUserInformation(ctx context.Context, baseURL string) (*webdav.Multistatus, error) {
	body := newPropfind(withCurrentUserPrincipal, withAddressbookInfoProps)
	return g.client.Propfind(ctx, baseURL, webdav.DepthZero, body)
}

// CurrentUserInformationRaw issues the same PROPFIND as
// CurrentUserInformation but returns the raw, unmapped *http.Response
// instead of a decoded multistatus. The discovery state machine needs
// this to distinguish 404/405 (fallback), a same-path redirect (circular,
// abort) and a cross-path redirect (adopt as new base) — distinctions
// that collapse once a response is mapped to a generic error (spec.md
// §4.1 step 2, §7 redirect rules). The caller must supply an http.Client
// whose CheckRedirect returns http.ErrUseLastResponse so redirects reach
// here unfollowed; see the client setup in cmd/carddavsyncd/main.go.
func (g *RequestGenerator) CurrentUserInformationRaw(ctx context.Context, url string) (*http.Response, error) {
	body := newPropfind(withCurrentUserPrincipal, withAddressbookInfoProps)
	req, err := g.client.NewXMLRequest(ctx, "PROPFIND", url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", webdav.DepthZero.String())
	return g.client.RawDo(req)
}

// AddressbookURLs performs PROPFIND depth:0 for addressbook-home-set
// against the principal path (spec.md §4.1 step 3).
func (g *RequestGenerator) AddressbookURLs(ctx context.Context, base, principalPath string) (*webdav.Multistatus, error) {
	u, err := resolve(base, principalPath)
	if err != nil {
		return nil, err
	}
	body := newPropfind(withAddressbookHomeSet)
	return g.client.Propfind(ctx, u, webdav.DepthZero, body)
}

// AddressbooksInformation performs PROPFIND depth:1 for resourcetype,
// displayname, getctag and sync-token against the home-set URL (spec.md
// §4.1 step 4).
func (g *RequestGenerator) AddressbooksInformation(ctx context.Context, base, homeSetPath string) (*webdav.Multistatus, error) {
	u, err := resolve(base, homeSetPath)
	if err != nil {
		return nil, err
	}
	body := newPropfind(withAddressbookInfoProps)
	return g.client.Propfind(ctx, u, webdav.DepthOne, body)
}

// AddressbookSelfInformation performs PROPFIND depth:0 against path,
// requesting the same properties as AddressbooksInformation. Used when the
// framework supplies an address-book path directly and the engine must
// check whether it names a single address book before falling back to
// treating it as a home-set (spec.md §4.1 step 1).
func (g *RequestGenerator) AddressbookSelfInformation(ctx context.Context, base, path string) (*webdav.Multistatus, error) {
	u, err := resolve(base, path)
	if err != nil {
		return nil, err
	}
	body := newPropfind(withAddressbookInfoProps)
	return g.client.Propfind(ctx, u, webdav.DepthZero, body)
}

// SyncTokenDelta issues a REPORT sync-collection with the cached sync
// token (spec.md §4.1 step 5, sync-token branch).
func (g *RequestGenerator) SyncTokenDelta(ctx context.Context, base, addressBookURL, syncToken string) (*webdav.Multistatus, error) {
	u, err := resolve(base, addressBookURL)
	if err != nil {
		return nil, err
	}
	body := &syncCollectionRequest{SyncToken: syncToken, SyncLevel: "1"}
	body.Prop.GetETag = &struct{}{}
	return g.client.Report(ctx, u, webdav.DepthZero, body)
}

// ContactETags issues a REPORT addressbook-query for getetag on every
// resource in the address book (spec.md §4.1 step 5, manual-diff branch).
func (g *RequestGenerator) ContactETags(ctx context.Context, base, addressBookURL string) (*webdav.Multistatus, error) {
	u, err := resolve(base, addressBookURL)
	if err != nil {
		return nil, err
	}
	body := &addressbookQueryRequest{}
	body.Prop.GetETag = &struct{}{}
	return g.client.Report(ctx, u, webdav.DepthOne, body)
}

// ContactMultiget issues a REPORT addressbook-multiget returning
// address-data and getetag for the given URIs (spec.md §4.1 step 6).
func (g *RequestGenerator) ContactMultiget(ctx context.Context, base, addressBookURL string, uris []string) (*webdav.Multistatus, error) {
	u, err := resolve(base, addressBookURL)
	if err != nil {
		return nil, err
	}
	body := &addressbookMultigetRequest{Href: uris}
	body.Prop.GetETag = &struct{}{}
	body.Prop.AddressData = &struct{}{}
	return g.client.Report(ctx, u, webdav.DepthOne, body)
}

// UpsyncAddMod PUTs vcard to uri. An empty ifMatchETag means "this is a
// creation" and is sent as If-None-Match: *; a non-empty one means "this is
// an update" and is sent as If-Match: <etag> for optimistic concurrency
// (spec.md §4.4).
func (g *RequestGenerator) UpsyncAddMod(ctx context.Context, base, uri, ifMatchETag, vcard string) (*http.Response, error) {
	u, err := resolve(base, uri)
	if err != nil {
		return nil, err
	}
	req, err := g.client.NewRequest(ctx, http.MethodPut, u, strings.NewReader(vcard))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/vcard; charset=utf-8")
	if ifMatchETag == "" {
		req.Header.Set("If-None-Match", "*")
	} else {
		req.Header.Set("If-Match", ifMatchETag)
	}
	return g.client.Do(req)
}

// UpsyncDeletion DELETEs uri with If-Match set to the last-observed ETag
// (spec.md §4.4).
func (g *RequestGenerator) UpsyncDeletion(ctx context.Context, base, uri, etag string) (*http.Response, error) {
	u, err := resolve(base, uri)
	if err != nil {
		return nil, err
	}
	req, err := g.client.NewRequest(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return nil, err
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}
	return g.client.Do(req)
}
