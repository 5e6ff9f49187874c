// Package syncstate holds the persistent sync-state maps that survive
// across sync runs (spec.md §3). The engine owns these maps exclusively
// for the duration of one sync round; the store's only job is to load them
// at the start of a round and save them at the end.
package syncstate

import "github.com/carddavsync/engine/vcard"

// AccountState is the full set of persistent maps for one account,
// enumerated in spec.md §3.
type AccountState struct {
	// AddressBookCTags maps address-book URL -> last observed CTag.
	AddressBookCTags map[string]string
	// AddressBookSyncTokens maps address-book URL -> last observed sync token.
	AddressBookSyncTokens map[string]string
	// AddressBookContactGUIDs maps address-book URL -> set of GUIDs it contains.
	AddressBookContactGUIDs map[string]map[string]struct{}
	// ContactUIDs maps GUID -> server-side UID (the vCard UID: value).
	ContactUIDs map[string]string
	// ContactURIs maps GUID -> server href.
	ContactURIs map[string]string
	// ContactETags maps GUID -> last observed ETag.
	ContactETags map[string]string
	// ContactIDs maps GUID -> local contact-store identifier.
	ContactIDs map[string]string
	// ContactUnsupportedProperties maps GUID -> UnsupportedProperties.
	ContactUnsupportedProperties map[string]vcard.UnsupportedProperties
}

// NewAccountState returns an AccountState with every map initialized
// empty, ready for a first sync.
func NewAccountState() *AccountState {
	return &AccountState{
		AddressBookCTags:             make(map[string]string),
		AddressBookSyncTokens:        make(map[string]string),
		AddressBookContactGUIDs:      make(map[string]map[string]struct{}),
		ContactUIDs:                  make(map[string]string),
		ContactURIs:                  make(map[string]string),
		ContactETags:                 make(map[string]string),
		ContactIDs:                   make(map[string]string),
		ContactUnsupportedProperties: make(map[string]vcard.UnsupportedProperties),
	}
}

// AddGUID records g as belonging to address book u, creating the set if
// this is the first contact observed for u.
func (s *AccountState) AddGUID(addressBookURL, guid string) {
	set, ok := s.AddressBookContactGUIDs[addressBookURL]
	if !ok {
		set = make(map[string]struct{})
		s.AddressBookContactGUIDs[addressBookURL] = set
	}
	set[guid] = struct{}{}
}

// RemoveGUID deletes every per-GUID entry atomically (spec.md §3
// invariant: "removing a contact removes all per-GUID entries
// atomically"), including its membership in addressBookURL's GUID set.
func (s *AccountState) RemoveGUID(addressBookURL, guid string) {
	delete(s.ContactUIDs, guid)
	delete(s.ContactURIs, guid)
	delete(s.ContactETags, guid)
	delete(s.ContactIDs, guid)
	delete(s.ContactUnsupportedProperties, guid)
	if set, ok := s.AddressBookContactGUIDs[addressBookURL]; ok {
		delete(set, guid)
	}
}

// RekeyGUID atomically moves every per-GUID entry from oldGUID to
// newGUID, used by legacy GUID migration (spec.md §9).
func (s *AccountState) RekeyGUID(addressBookURL, oldGUID, newGUID string) {
	if uid, ok := s.ContactUIDs[oldGUID]; ok {
		s.ContactUIDs[newGUID] = uid
		delete(s.ContactUIDs, oldGUID)
	}
	if uri, ok := s.ContactURIs[oldGUID]; ok {
		s.ContactURIs[newGUID] = uri
		delete(s.ContactURIs, oldGUID)
	}
	if etag, ok := s.ContactETags[oldGUID]; ok {
		s.ContactETags[newGUID] = etag
		delete(s.ContactETags, oldGUID)
	}
	if id, ok := s.ContactIDs[oldGUID]; ok {
		s.ContactIDs[newGUID] = id
		delete(s.ContactIDs, oldGUID)
	}
	if up, ok := s.ContactUnsupportedProperties[oldGUID]; ok {
		s.ContactUnsupportedProperties[newGUID] = up
		delete(s.ContactUnsupportedProperties, oldGUID)
	}
	if set, ok := s.AddressBookContactGUIDs[addressBookURL]; ok {
		if _, present := set[oldGUID]; present {
			delete(set, oldGUID)
			set[newGUID] = struct{}{}
		}
	}
}

// Store persists and reloads AccountState across sync runs. The enclosing
// job framework owns the opaque blob; this package only knows how to
// (de)serialize it into the maps the engine needs.
type Store interface {
	Load(accountID string) (*AccountState, error)
	Save(accountID string, state *AccountState) error
}
