package webdav

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrNotFound is returned by Response.DecodeProp when no propstat carries
// the requested property with a successful status.
var ErrNotFound = errors.New("webdav: property not found")

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// CanonicalPath normalizes an href that may be absolute or path-relative
// into a path-only, percent-decoded form suitable for equality comparison
// with stored URIs. This is the href-normalization contract of the reply
// parser: servers are free to return either form and clients must not care.
func CanonicalPath(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	p := u.EscapedPath()
	decoded, err := url.PathUnescape(p)
	if err != nil {
		decoded = p
	}
	if decoded == "" {
		decoded = "/"
	}
	if !strings.HasPrefix(decoded, "/") {
		decoded = "/" + decoded
	}
	cleaned := path.Clean(decoded)
	if strings.HasSuffix(decoded, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned, nil
}

// SamePath reports whether two hrefs refer to the same resource once
// canonicalized. Malformed hrefs never compare equal.
func SamePath(a, b string) bool {
	ca, err := CanonicalPath(a)
	if err != nil {
		return false
	}
	cb, err := CanonicalPath(b)
	if err != nil {
		return false
	}
	return ca == cb
}
