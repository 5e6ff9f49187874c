package syncer

import (
	"reflect"

	"github.com/carddavsync/engine/vcard"
)

// DefaultSignificantDifferences is the reference significant_differences
// predicate (spec.md §4.4, §9 Resolved Open Question #3): two contacts
// sharing a UID are considered the same edit, not a real local change, when
// every supported field matches. The Modifiable marker and GUID are
// identity/metadata, not content, and are excluded; Revision is a
// server-stamped timestamp that legitimately changes on every downsync and
// would make this predicate always report "different" if compared.
func DefaultSignificantDifferences(local, downsynced *vcard.Contact) bool {
	if local == nil || downsynced == nil {
		return local != downsynced
	}

	if local.Name.Value != downsynced.Name.Value ||
		local.DisplayLabel.Value != downsynced.DisplayLabel.Value ||
		local.Nickname.Value != downsynced.Nickname.Value ||
		local.Gender.Value != downsynced.Gender.Value ||
		local.Organization.Value != downsynced.Organization.Value ||
		local.Title.Value != downsynced.Title.Value ||
		local.Role.Value != downsynced.Role.Value {
		return true
	}
	if !equalTime(local.Birthday.Value, downsynced.Birthday.Value) {
		return true
	}

	if !reflect.DeepEqual(emailValues(local.Emails), emailValues(downsynced.Emails)) {
		return true
	}
	if !reflect.DeepEqual(phoneValues(local.Phones), phoneValues(downsynced.Phones)) {
		return true
	}
	if !reflect.DeepEqual(addressValues(local.Addresses), addressValues(downsynced.Addresses)) {
		return true
	}
	if !reflect.DeepEqual(urlValues(local.URLs), urlValues(downsynced.URLs)) {
		return true
	}
	if !reflect.DeepEqual(photoValues(local.Photos), photoValues(downsynced.Photos)) {
		return true
	}
	return false
}

func equalTime(a, b *vcard.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.RawValue == b.RawValue
}

func emailValues(d []vcard.Detail[vcard.Email]) []vcard.Email {
	out := make([]vcard.Email, len(d))
	for i, v := range d {
		out[i] = v.Value
	}
	return out
}

func phoneValues(d []vcard.Detail[vcard.Phone]) []vcard.Phone {
	out := make([]vcard.Phone, len(d))
	for i, v := range d {
		out[i] = v.Value
	}
	return out
}

func addressValues(d []vcard.Detail[vcard.Address]) []vcard.Address {
	out := make([]vcard.Address, len(d))
	for i, v := range d {
		out[i] = v.Value
	}
	return out
}

func urlValues(d []vcard.Detail[vcard.URL]) []vcard.URL {
	out := make([]vcard.URL, len(d))
	for i, v := range d {
		out[i] = v.Value
	}
	return out
}

func photoValues(d []vcard.Detail[vcard.Photo]) []vcard.Photo {
	out := make([]vcard.Photo, len(d))
	for i, v := range d {
		out[i] = v.Value
	}
	return out
}
