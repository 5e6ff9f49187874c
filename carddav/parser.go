package carddav

import (
	"fmt"

	"github.com/carddavsync/engine/internal/webdav"
)

// ReplyParser turns decoded multistatus XML into the typed values the
// engine reconciles against persistent state (spec.md §4.5). It holds no
// state of its own; every method is a pure function of its inputs.
type ReplyParser struct{}

// NewReplyParser returns a ReplyParser. It exists only for symmetry with
// RequestGenerator and to leave room for future options (e.g. lenient
// parsing toggles) without breaking callers.
func NewReplyParser() *ReplyParser { return &ReplyParser{} }

// ParseUserPrincipal extracts current-user-principal from a PROPFIND
// response against the server root. Some servers fold addressbook
// information into the same response when the principal happens to also
// satisfy the addressbook-home-set query; ParseAddressbookInformation is
// attempted opportunistically so the engine can skip a round trip
// (spec.md §4.1 step 3).
func (p *ReplyParser) ParseUserPrincipal(ms *webdav.Multistatus) (*UserPrincipalResult, error) {
	if len(ms.Responses) == 0 {
		return nil, fmt.Errorf("carddav: current-user-principal response has no entries")
	}

	var principal currentUserPrincipalProp
	var found bool
	for i := range ms.Responses {
		if err := ms.Responses[i].DecodeProp(&principal); err == nil {
			found = true
			break
		}
	}
	if !found || principal.Href == "" {
		return nil, fmt.Errorf("carddav: no current-user-principal in response")
	}

	path, err := webdav.CanonicalPath(principal.Href)
	if err != nil {
		return nil, fmt.Errorf("carddav: invalid current-user-principal href: %w", err)
	}

	result := &UserPrincipalResult{PrincipalPath: path}
	if books, err := p.ParseAddressbookInformation(ms, path); err == nil && len(books) > 0 {
		result.AddressBooks = books
	}
	return result, nil
}

// ParseAddressbookHome extracts addressbook-home-set from a PROPFIND
// response against the principal path (spec.md §4.1 step 3).
func (p *ReplyParser) ParseAddressbookHome(ms *webdav.Multistatus) (string, error) {
	for i := range ms.Responses {
		var home addressbookHomeSetProp
		if err := ms.Responses[i].DecodeProp(&home); err == nil && home.Href != "" {
			return webdav.CanonicalPath(home.Href)
		}
	}
	return "", fmt.Errorf("carddav: no addressbook-home-set in response")
}

// ParseAddressbookInformation extracts one AddressBookInfo per response
// whose resourcetype includes carddav:addressbook. queriedPath is the
// home-set path the PROPFIND was issued against; a response whose href
// canonicalizes to queriedPath itself is skipped, guarding against
// servers that echo the collection resource alongside its children
// (spec.md §4.1 step 4, href-cycle note).
func (p *ReplyParser) ParseAddressbookInformation(ms *webdav.Multistatus, queriedPath string) ([]AddressBookInfo, error) {
	var out []AddressBookInfo
	for i := range ms.Responses {
		r := &ms.Responses[i]

		var rt resourceTypeProp
		if err := r.DecodeProp(&rt); err != nil || rt.Addressbook == nil {
			continue
		}

		hrefPath, err := r.Path()
		if err != nil {
			continue
		}
		if queriedPath != "" && hrefPath == queriedPath {
			continue
		}

		info := AddressBookInfo{URL: hrefPath}

		var dn displayNameProp
		if err := r.DecodeProp(&dn); err == nil {
			info.DisplayName = dn.Name
		}
		var ctag getCTagProp
		if err := r.DecodeProp(&ctag); err == nil {
			info.CTag = ctag.CTag
		}
		var st syncTokenProp
		if err := r.DecodeProp(&st); err == nil {
			info.SyncToken = st.Token
		}

		out = append(out, info)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("carddav: no addressbook resources in response")
	}
	return out, nil
}

// ParseSyncTokenDelta extracts the changed/removed resources and the new
// sync token from a sync-collection REPORT response (spec.md §4.1 step 5,
// sync-token branch). Per RFC 6578, a 404 status on a response marks a
// removal; any other successful status marks a change whose exact nature
// (addition vs. modification) the engine determines by consulting its own
// prior-state map, since the wire protocol carries no such distinction.
func (p *ReplyParser) ParseSyncTokenDelta(ms *webdav.Multistatus) (contacts []ContactInfo, newSyncToken string, err error) {
	for i := range ms.Responses {
		r := &ms.Responses[i]

		hrefPath, perr := r.Path()
		if perr != nil {
			continue
		}

		if isRemoval(r) {
			contacts = append(contacts, ContactInfo{URI: hrefPath, Kind: Deletion})
			continue
		}

		var etag getETagProp
		if decErr := r.DecodeProp(&etag); decErr != nil {
			continue
		}
		contacts = append(contacts, ContactInfo{URI: hrefPath, ETag: etag.ETag, Kind: Modification})
	}

	if ms.SyncToken == "" {
		return contacts, "", fmt.Errorf("carddav: sync-collection response carries no sync-token")
	}
	return contacts, ms.SyncToken, nil
}

func isRemoval(r *webdav.Response) bool {
	if r.Status == "" {
		return false
	}
	var proto string
	var code int
	if _, err := fmt.Sscanf(r.Status, "%s %d", &proto, &code); err != nil {
		return false
	}
	return code == 404
}

// ParseContactETags extracts a full ETag listing from an
// addressbook-query REPORT response (spec.md §4.1 step 5, manual-diff
// branch). Every entry is tagged Modification; the engine diffs this
// listing against its own stored ETags to classify additions, changes and
// removals.
func (p *ReplyParser) ParseContactETags(ms *webdav.Multistatus) ([]ContactInfo, error) {
	var out []ContactInfo
	for i := range ms.Responses {
		r := &ms.Responses[i]

		hrefPath, err := r.Path()
		if err != nil {
			continue
		}
		var etag getETagProp
		if err := r.DecodeProp(&etag); err != nil {
			continue
		}
		out = append(out, ContactInfo{URI: hrefPath, ETag: etag.ETag, Kind: Modification})
	}
	return out, nil
}

// ParseContactData extracts full vCard bodies from an
// addressbook-multiget REPORT response, keyed by canonicalized URI
// (spec.md §4.1 step 6).
func (p *ReplyParser) ParseContactData(ms *webdav.Multistatus) (map[string]FullContactInformation, error) {
	out := make(map[string]FullContactInformation, len(ms.Responses))
	for i := range ms.Responses {
		r := &ms.Responses[i]

		hrefPath, err := r.Path()
		if err != nil {
			continue
		}

		var etag getETagProp
		if err := r.DecodeProp(&etag); err != nil {
			continue
		}
		var data addressDataProp
		if err := r.DecodeProp(&data); err != nil {
			continue
		}

		out[hrefPath] = FullContactInformation{URI: hrefPath, ETag: etag.ETag, VCard: data.Data}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("carddav: multiget response carries no address-data")
	}
	return out, nil
}
