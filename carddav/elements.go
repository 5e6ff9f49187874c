package carddav

import "encoding/xml"

// Namespaces used on the wire. RFC 6352 defines the carddav namespace; the
// getctag property is a CalendarServer extension widely supported by
// CardDAV servers (Radicale, iCloud, Fastmail, ...); DAV: is RFC 4918.
const (
	nsDAV        = "DAV:"
	nsCardDAV    = "urn:ietf:params:xml:ns:carddav"
	nsCalendarSrv = "http://calendarserver.org/ns/"
)

// --- PROPFIND request bodies -----------------------------------------

type propfindRequest struct {
	XMLName xml.Name     `xml:"DAV: propfind"`
	Prop    propfindProp `xml:"DAV: prop"`
}

type propfindProp struct {
	CurrentUserPrincipal *struct{} `xml:"DAV: current-user-principal"`
	AddressbookHomeSet   *struct{} `xml:"urn:ietf:params:xml:ns:carddav addressbook-home-set"`
	ResourceType         *struct{} `xml:"DAV: resourcetype"`
	DisplayName          *struct{} `xml:"DAV: displayname"`
	GetCTag              *struct{} `xml:"http://calendarserver.org/ns/ getctag"`
	SyncToken            *struct{} `xml:"DAV: sync-token"`
	GetETag              *struct{} `xml:"DAV: getetag"`
}

func newPropfind(props ...func(*propfindProp)) *propfindRequest {
	var p propfindProp
	for _, f := range props {
		f(&p)
	}
	return &propfindRequest{Prop: p}
}

func withCurrentUserPrincipal(p *propfindProp) { p.CurrentUserPrincipal = &struct{}{} }
func withAddressbookHomeSet(p *propfindProp)   { p.AddressbookHomeSet = &struct{}{} }
func withAddressbookInfoProps(p *propfindProp) {
	p.ResourceType = &struct{}{}
	p.DisplayName = &struct{}{}
	p.GetCTag = &struct{}{}
	p.SyncToken = &struct{}{}
}

// --- decoded prop values ------------------------------------------------

type currentUserPrincipalProp struct {
	XMLName xml.Name `xml:"DAV: current-user-principal"`
	Href    string   `xml:"DAV: href"`
}

type addressbookHomeSetProp struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav addressbook-home-set"`
	Href    string   `xml:"DAV: href"`
}

type resourceTypeProp struct {
	XMLName      xml.Name  `xml:"DAV: resourcetype"`
	Addressbook  *struct{} `xml:"urn:ietf:params:xml:ns:carddav addressbook"`
	Collection   *struct{} `xml:"DAV: collection"`
}

type displayNameProp struct {
	XMLName xml.Name `xml:"DAV: displayname"`
	Name    string   `xml:",chardata"`
}

type getCTagProp struct {
	XMLName xml.Name `xml:"http://calendarserver.org/ns/ getctag"`
	CTag    string   `xml:",chardata"`
}

type syncTokenProp struct {
	XMLName xml.Name `xml:"DAV: sync-token"`
	Token   string   `xml:",chardata"`
}

type getETagProp struct {
	XMLName xml.Name `xml:"DAV: getetag"`
	ETag    string   `xml:",chardata"`
}

type addressDataProp struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav address-data"`
	Data    string   `xml:",chardata"`
}

// --- REPORT request bodies ----------------------------------------------

type syncCollectionRequest struct {
	XMLName   xml.Name `xml:"DAV: sync-collection"`
	SyncToken string   `xml:"DAV: sync-token"`
	SyncLevel string   `xml:"DAV: sync-level"`
	Prop      struct {
		GetETag *struct{} `xml:"DAV: getetag"`
	} `xml:"DAV: prop"`
}

type addressbookQueryRequest struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav addressbook-query"`
	Prop    struct {
		GetETag *struct{} `xml:"DAV: getetag"`
	} `xml:"DAV: prop"`
}

type addressbookMultigetRequest struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav addressbook-multiget"`
	Prop    struct {
		GetETag     *struct{} `xml:"DAV: getetag"`
		AddressData *struct{} `xml:"urn:ietf:params:xml:ns:carddav address-data"`
	} `xml:"DAV: prop"`
	Href []string `xml:"DAV: href"`
}
