// Package vcard implements the bidirectional bridge between vCard 3.0 text
// and the local Contact model: VCardConverter per spec.md §4.2.
//
// It never talks to the network or to persistent sync state; it only knows
// how to turn bytes into a Contact (plus whatever it doesn't understand)
// and back.
package vcard

// Detail wraps a value with a "modifiable" marker for downstream UI, per
// spec.md §3 ("each field carries a modifiable marker"). The marker has no
// effect on import/export semantics; it exists purely as metadata the
// local contact store surfaces to end users.
type Detail[T any] struct {
	Value      T
	Modifiable bool
}

func modifiable[T any](v T) Detail[T] { return Detail[T]{Value: v, Modifiable: true} }

// Gender is a coarse gender marker. Unspecified is filtered out of vCard
// export (spec.md §4.2 export contract).
type Gender int

const (
	GenderUnspecified Gender = iota
	GenderMale
	GenderFemale
	GenderOther
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "M"
	case GenderFemale:
		return "F"
	case GenderOther:
		return "O"
	default:
		return "U"
	}
}

func parseGender(s string) Gender {
	switch s {
	case "M":
		return GenderMale
	case "F":
		return GenderFemale
	case "O":
		return GenderOther
	default:
		return GenderUnspecified
	}
}

// Name is the structured-name portion of a Contact (vCard N).
type Name struct {
	FamilyName      string
	GivenName       string
	AdditionalNames string
	HonorificPrefix string
	HonorificSuffix string
}

func (n Name) empty() bool {
	return n.FamilyName == "" && n.GivenName == "" && n.AdditionalNames == "" &&
		n.HonorificPrefix == "" && n.HonorificSuffix == ""
}

// Email is one EMAIL entry.
type Email struct {
	Address   string
	Type      string // e.g. "home", "work"; empty if unspecified.
	Preferred bool
}

// Phone is one TEL entry.
type Phone struct {
	Number    string
	Type      string
	Preferred bool
}

// Address is one ADR entry.
type Address struct {
	Street     string
	Locality   string
	Region     string
	PostalCode string
	Country    string
	Type       string
	Preferred  bool
}

// URL is one URL entry.
type URL struct {
	Value string
	Type  string
}

// Photo is one PHOTO entry, decoded by the avatar importer (spec.md §4.2
// import contract: "use a standardized avatar importer; if it yields an
// empty avatar, drop the property entirely").
type Photo struct {
	Data     []byte
	MIMEType string
}

// Contact is the semantic record the engine reconciles: spec.md §3's
// "semantic record with name parts, display label, nickname, birthday,
// gender, organization, title, role, timestamp, guid, and ordered
// collections of emails, phone numbers, addresses, URLs, photos".
type Contact struct {
	GUID string

	// LocalID is the contact store's own identifier for this GUID, if one
	// is already known (spec.md §4.1 step 7: "if the GUID already maps to
	// a local id, set that id on the contact"). Empty for a contact the
	// local store has never seen. The converter never sets this; it's
	// populated by the Syncer façade from ContactStore.ResolveLocalID
	// immediately before ApplyRemote.
	LocalID string

	Name         Detail[Name]
	DisplayLabel Detail[string]
	Nickname     Detail[string]
	Birthday     Detail[*Time]
	Gender       Detail[Gender]
	Organization Detail[string]
	Title        Detail[string]
	Role         Detail[string]
	Revision     Detail[*Time]

	Emails    []Detail[Email]
	Phones    []Detail[Phone]
	Addresses []Detail[Address]
	URLs      []Detail[URL]
	Photos    []Detail[Photo]
}

// Time is a minimal, timezone-naive date or date-time wrapper so this
// package doesn't force a choice of precision (vCard BDAY is frequently
// date-only) onto callers. Layout follows the vCard 3.0 value actually
// observed on import; Export re-emits it verbatim via RawValue when set.
type Time struct {
	RawValue string
}
