// Package webdav provides the low-level WebDAV XML and HTTP plumbing shared
// by the carddav package: depth headers, multistatus decoding and a thin
// HTTP client that knows how to turn a non-2xx response into an error.
package webdav

import "fmt"

// Depth indicates whether a request applies to a resource's members, as
// defined in RFC 4918 section 10.2.
type Depth int

const (
	// DepthZero indicates that the request applies only to the resource.
	DepthZero Depth = 0
	// DepthOne indicates that the request applies to the resource and its
	// internal members only.
	DepthOne Depth = 1
	// DepthInfinity indicates that the request applies to the resource and
	// all of its members, recursively.
	DepthInfinity Depth = -1
)

// String formats the depth for use as an HTTP header value.
func (d Depth) String() string {
	switch d {
	case DepthZero:
		return "0"
	case DepthOne:
		return "1"
	case DepthInfinity:
		return "infinity"
	}
	panic(fmt.Sprintf("webdav: invalid depth %d", int(d)))
}
