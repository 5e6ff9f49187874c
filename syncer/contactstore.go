// Package syncer implements the Syncer façade (spec.md §2, §6's "Inputs
// from the framework"): it bridges the engine's GUID-keyed world to a
// local contact store keyed by whatever identifier that store uses, and
// supplies the default significant_differences predicate the engine needs
// to filter spurious upsync echoes (spec.md §4.4).
package syncer

import "github.com/carddavsync/engine/vcard"

// ContactStore is the local-side collaborator the embedding application
// provides. The Syncer never assumes anything about how contacts are
// persisted locally; it only needs to read what changed since the last
// sync and apply what the server reported (spec.md §6's "local A/M/R
// lists" and "local store" references).
type ContactStore interface {
	// LocalChanges returns everything the embedder wants upsynced this
	// round: contacts created, modified, or deleted locally since the
	// last sync.
	LocalChanges() (additions []LocalContact, modifications []LocalContact, removals []LocalContact, err error)

	// ApplyRemote persists the server's A/M/R into the local store. A
	// removal carries only GUID, plus LocalID when ResolveLocalID knows
	// one (spec.md §4.1 step 7's "stub" for a deletion the engine never
	// fetched a full record for).
	ApplyRemote(additions, modifications, removals []*vcard.Contact) error

	// ResolveLocalID returns the store's own identifier for guid, if the
	// contact is already known locally (spec.md §4.1 step 7: "if the GUID
	// already maps to a local id, set that id on the contact").
	ResolveLocalID(guid string) (string, bool)
}

// LocalContact pairs a Contact with the unsupported vCard lines the
// converter set aside on its last import, and the GUID the engine
// assigned it (empty for a brand-new local addition).
type LocalContact struct {
	GUID        string
	Contact     *vcard.Contact
	Unsupported vcard.UnsupportedProperties
}
