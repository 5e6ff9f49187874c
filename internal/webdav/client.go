package webdav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// AuthProvider applies authentication to an outgoing request. It is
// implemented by the auth package; kept as a narrow interface here so this
// package never depends on credential storage or token refresh policy.
type AuthProvider interface {
	Apply(req *http.Request) error
}

// HTTPClient performs HTTP requests. It's implemented by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a minimal WebDAV client: it knows how to build authenticated
// PROPFIND/REPORT/PUT/DELETE requests and how to turn a multistatus
// response body into typed structures. Everything protocol-specific
// (CardDAV XML bodies) lives one layer up, in the carddav package.
type Client struct {
	HTTP HTTPClient
	Auth AuthProvider
}

// NewClient returns a Client using http.DefaultClient when c is nil.
func NewClient(c HTTPClient, auth AuthProvider) *Client {
	if c == nil {
		c = http.DefaultClient
	}
	return &Client{HTTP: c, Auth: auth}
}

// ResolveHref joins a possibly-relative path against base.
func ResolveHref(base *url.URL, p string) *url.URL {
	if p == "" {
		return base
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		if u, err := url.Parse(p); err == nil {
			return u
		}
	}
	resolved := *base
	if strings.HasPrefix(p, "/") {
		resolved.Path = p
	} else {
		resolved.Path = path.Join(base.Path, p)
	}
	return &resolved
}

// NewXMLRequest builds a request whose body is the XML encoding of v.
func (c *Client) NewXMLRequest(ctx context.Context, method, url string, v interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	if c.Auth != nil {
		if err := c.Auth.Apply(req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// NewRequest builds a request with no XML encoding step (GET/PUT/DELETE).
func (c *Client) NewRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if c.Auth != nil {
		if err := c.Auth.Apply(req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// RawDo performs the request with no status-code interpretation at all;
// the caller is responsible for inspecting resp.StatusCode itself. This
// exists for discovery's well-known-URI redirect handling (spec.md §4.1
// step 2), which needs to see 3xx responses and their Location header
// rather than have them mapped to an error.
func (c *Client) RawDo(req *http.Request) (*http.Response, error) {
	return c.HTTP.Do(req)
}

// Do performs the request and maps any non-2xx response to an *HTTPError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "text/plain"
		}

		var wrapped error
		t, _, _ := mime.ParseMediaType(contentType)
		switch {
		case t == "application/xml" || t == "text/xml":
			var davErr Error
			if decErr := xml.NewDecoder(resp.Body).Decode(&davErr); decErr == nil {
				wrapped = &davErr
			}
		case strings.HasPrefix(t, "text/"):
			lr := io.LimitedReader{R: resp.Body, N: 1024}
			var buf bytes.Buffer
			io.Copy(&buf, &lr)
			if s := strings.TrimSpace(buf.String()); s != "" {
				wrapped = fmt.Errorf("%s", s)
			}
		}
		return nil, &HTTPError{Code: resp.StatusCode, Err: wrapped}
	}
	return resp, nil
}

// DoMultiStatus performs req and decodes a 207 Multi-Status body.
func (c *Client) DoMultiStatus(req *http.Request) (*Multistatus, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return DecodeMultistatus(resp)
}

// DecodeMultistatus decodes a 207 Multi-Status body out of an already
// status-checked response. Exported so callers that issue their own raw
// request (engine's redirect-aware discovery step, spec.md §4.1 step 2)
// can reuse the same decoding path Client.DoMultiStatus uses internally.
func DecodeMultistatus(resp *http.Response) (*Multistatus, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("webdav: expected 207 Multi-Status, got %s", resp.Status)
	}

	var ms Multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("webdav: decoding multistatus: %w", err)
	}
	return &ms, nil
}

// Propfind issues a PROPFIND request at the given depth.
func (c *Client) Propfind(ctx context.Context, url string, depth Depth, body interface{}) (*Multistatus, error) {
	req, err := c.NewXMLRequest(ctx, "PROPFIND", url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Depth", depth.String())
	return c.DoMultiStatus(req)
}

// Report issues a REPORT request (addressbook-query, addressbook-multiget
// or sync-collection).
func (c *Client) Report(ctx context.Context, url string, depth Depth, body interface{}) (*Multistatus, error) {
	req, err := c.NewXMLRequest(ctx, "REPORT", url, body)
	if err != nil {
		return nil, err
	}
	if depth != DepthZero {
		req.Header.Set("Depth", depth.String())
	}
	return c.DoMultiStatus(req)
}
