package webdav

import (
	"encoding/xml"
	"fmt"
	"io"
)

// RawXMLValue delays XML decoding of a DAV:prop child so callers can pick
// out only the properties they understand without a full schema.
//
// https://tools.ietf.org/html/rfc4918#section-14.18
type RawXMLValue struct {
	tok      xml.Token
	children []RawXMLValue
}

// UnmarshalXML implements xml.Unmarshaler.
func (val *RawXMLValue) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	val.tok = start
	val.children = nil

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			child := RawXMLValue{}
			if err := child.UnmarshalXML(d, tok); err != nil {
				return err
			}
			val.children = append(val.children, child)
		case xml.EndElement:
			return nil
		default:
			val.children = append(val.children, RawXMLValue{tok: xml.CopyToken(tok)})
		}
	}
}

// MarshalXML implements xml.Marshaler.
func (val *RawXMLValue) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	switch tok := val.tok.(type) {
	case xml.StartElement:
		if err := e.EncodeToken(tok); err != nil {
			return err
		}
		for _, child := range val.children {
			if err := child.MarshalXML(e, xml.StartElement{}); err != nil {
				return err
			}
		}
		return e.EncodeToken(tok.End())
	case xml.EndElement:
		panic("webdav: unexpected end element")
	default:
		return e.EncodeToken(tok)
	}
}

// TokenReader returns a stream of tokens for the XML value, as if it were
// a standalone document rooted at this element.
func (val *RawXMLValue) TokenReader() xml.TokenReader {
	return &rawXMLValueReader{val: val}
}

// Decode decodes the raw value into v.
func (val *RawXMLValue) Decode(v interface{}) error {
	return xml.NewTokenDecoder(val.TokenReader()).Decode(v)
}

type rawXMLValueReader struct {
	val         *RawXMLValue
	start, end  bool
	child       int
	childReader xml.TokenReader
}

func (tr *rawXMLValueReader) Token() (xml.Token, error) {
	if tr.end {
		return nil, io.EOF
	}

	start, ok := tr.val.tok.(xml.StartElement)
	if !ok {
		tr.end = true
		return tr.val.tok, nil
	}

	if !tr.start {
		tr.start = true
		return start, nil
	}

	for tr.child < len(tr.val.children) {
		if tr.childReader == nil {
			tr.childReader = tr.val.children[tr.child].TokenReader()
		}

		tok, err := tr.childReader.Token()
		if err == io.EOF {
			tr.childReader = nil
			tr.child++
			continue
		}
		return tok, err
	}

	tr.end = true
	return start.End(), nil
}

// Multistatus is the top-level response to a PROPFIND or REPORT request.
//
// https://tools.ietf.org/html/rfc4918#section-14.16
type Multistatus struct {
	XMLName             xml.Name   `xml:"DAV: multistatus"`
	Responses           []Response `xml:"DAV: response"`
	ResponseDescription string     `xml:"DAV: responsedescription,omitempty"`
	SyncToken           string     `xml:"DAV: sync-token,omitempty"`
}

// Response describes the result of an operation against a single resource.
//
// https://tools.ietf.org/html/rfc4918#section-14.24
type Response struct {
	XMLName   xml.Name   `xml:"DAV: response"`
	Href      string     `xml:"DAV: href"`
	Status    string     `xml:"DAV: status,omitempty"`
	Propstats []Propstat `xml:"DAV: propstat"`
}

// Path returns the response's href, normalized to a path-only, percent
// decoded form so it can be compared against stored URIs.
func (r *Response) Path() (string, error) {
	return CanonicalPath(r.Href)
}

// DecodeProp finds the first successful propstat carrying v's element and
// decodes it. It returns ErrNotFound if no propstat has a 2xx status for
// this property.
func (r *Response) DecodeProp(v interface{}) error {
	for i := range r.Propstats {
		ps := &r.Propstats[i]
		if ps.Status != "" && !is2xx(ps.Status) {
			continue
		}
		for j := range ps.Prop.children {
			child := &ps.Prop.children[j]
			if _, ok := child.tok.(xml.StartElement); !ok {
				continue
			}
			if err := child.Decode(v); err == nil {
				return nil
			}
		}
	}
	return ErrNotFound
}

func is2xx(status string) bool {
	if status == "" {
		return true
	}
	var proto string
	var code int
	if _, err := fmt.Sscanf(status, "%s %d", &proto, &code); err != nil {
		return false
	}
	return code/100 == 2
}

// Propstat groups one or more properties together with the status returned
// for them.
//
// https://tools.ietf.org/html/rfc4918#section-14.22
type Propstat struct {
	XMLName xml.Name    `xml:"DAV: propstat"`
	Prop    RawXMLValue `xml:"DAV: prop"`
	Status  string      `xml:"DAV: status"`
}

// Error is the body of a WebDAV error response.
//
// https://tools.ietf.org/html/rfc4918#section-16
type Error struct {
	XMLName xml.Name      `xml:"DAV: error"`
	Raw     []RawXMLValue `xml:",any"`
}

func (err *Error) Error() string {
	return "webdav: server returned a DAV:error response"
}

// HTTPError is returned for any non-2xx, non-multistatus HTTP response.
type HTTPError struct {
	Code int
	Err  error
}

func (err *HTTPError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("webdav: HTTP error %d: %v", err.Code, err.Err)
	}
	return fmt.Sprintf("webdav: HTTP error %d", err.Code)
}

func (err *HTTPError) Unwrap() error { return err.Err }
