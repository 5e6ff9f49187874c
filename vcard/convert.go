package vcard

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	govcard "github.com/emersion/go-vcard"
)

// UnsupportedProperties is the ordered sequence of opaque vCard text lines
// a converter does not model structurally, but must re-emit verbatim on
// upload (spec.md §3, §4.2).
type UnsupportedProperties []string

// supportedFields are the vCard properties VCardConverter round-trips
// structurally; everything else is cached verbatim (spec.md §4.2).
var supportedFields = map[string]bool{
	govcard.FieldVersion:       true,
	govcard.FieldProductID:     true,
	govcard.FieldRevision:      true,
	govcard.FieldName:          true,
	govcard.FieldFormattedName: true,
	govcard.FieldNickname:      true,
	govcard.FieldBirthday:      true,
	fieldGender:                true,
	govcard.FieldEmail:         true,
	govcard.FieldTelephone:     true,
	govcard.FieldAddress:       true,
	govcard.FieldURL:           true,
	govcard.FieldPhoto:         true,
	govcard.FieldOrganization:  true,
	govcard.FieldTitle:         true,
	govcard.FieldRole:          true,
	govcard.FieldUID:           true,
}

// fieldGender is a vCard 3.0 extension (vCard 4's GENDER has no 3.0
// counterpart); the original source stores it as X-GENDER.
const fieldGender = "X-GENDER"

// VCardConverter implements spec.md §4.2's import/export contract.
type VCardConverter struct{}

// NewVCardConverter returns a stateless VCardConverter. A converter has no
// per-contact state of its own: its only scratch state is the unsupported
// property buffer built and returned within a single Import call.
func NewVCardConverter() *VCardConverter { return &VCardConverter{} }

// Import parses vcardText into a Contact plus its UnsupportedProperties.
// Exactly one vCard document is expected; a second document, or none,
// is an error.
func (c *VCardConverter) Import(vcardText string) (*Contact, UnsupportedProperties, error) {
	// A bare CR ends a line just as CRLF does.
	vcardText = strings.NewReplacer("\r\n", "\r\n", "\r", "\r\n").Replace(vcardText)
	dec := govcard.NewDecoder(strings.NewReader(vcardText))
	card, err := dec.Decode()
	if err != nil {
		return nil, nil, fmt.Errorf("vcard: decoding document: %w", err)
	}
	if _, err := dec.Decode(); err != io.EOF {
		return nil, nil, fmt.Errorf("vcard: expected exactly one document")
	}

	dedupFirstOccurrence(card, govcard.FieldBirthday)
	dedupFirstOccurrence(card, govcard.FieldRevision)
	dedupFirstOccurrence(card, govcard.FieldUID)
	dedupFirstOccurrence(card, fieldGender)

	contact := &Contact{}

	if uid := card.Get(govcard.FieldUID); uid != nil {
		contact.GUID = uid.Value
	}

	name := card.Name()
	var structured Name
	if name != nil {
		structured = Name{
			FamilyName:      name.FamilyName,
			GivenName:       name.GivenName,
			AdditionalNames: name.AdditionalName,
			HonorificPrefix: name.HonorificPrefix,
			HonorificSuffix: name.HonorificSuffix,
		}
	}

	displayLabel := card.Value(govcard.FieldFormattedName)
	nickname := card.Value(govcard.FieldNickname)

	if structured.empty() {
		switch {
		case displayLabel != "":
			structured = decomposeLabel(displayLabel)
		case nickname != "":
			structured = decomposeLabel(nickname)
		}
		// If neither is present the contact stays unnamed; this is a
		// warning-level condition the caller logs, not an error.
	}

	contact.Name = modifiable(structured)
	contact.DisplayLabel = modifiable(displayLabel)
	contact.Nickname = modifiable(nickname)

	if bday := card.Get(govcard.FieldBirthday); bday != nil && bday.Value != "" {
		t := &Time{RawValue: bday.Value}
		contact.Birthday = modifiable(t)
	} else {
		contact.Birthday = modifiable[*Time](nil)
	}

	if rev := card.Get(govcard.FieldRevision); rev != nil && rev.Value != "" {
		t := &Time{RawValue: rev.Value}
		contact.Revision = modifiable(t)
	} else {
		contact.Revision = modifiable[*Time](nil)
	}

	gender := GenderUnspecified
	if g := card.Value(fieldGender); g != "" {
		gender = parseGender(g)
	}
	contact.Gender = modifiable(gender)

	contact.Organization = modifiable(firstSemicolonField(card.Value(govcard.FieldOrganization)))
	contact.Title = modifiable(card.Value(govcard.FieldTitle))
	contact.Role = modifiable(card.Value(govcard.FieldRole))

	for _, f := range card[govcard.FieldEmail] {
		contact.Emails = append(contact.Emails, modifiable(Email{
			Address:   f.Value,
			Type:      primaryType(f.Params),
			Preferred: isPreferred(f.Params),
		}))
	}

	for _, f := range card[govcard.FieldTelephone] {
		contact.Phones = append(contact.Phones, modifiable(Phone{
			Number:    f.Value,
			Type:      primaryType(f.Params),
			Preferred: isPreferred(f.Params),
		}))
	}

	for _, addr := range card.Addresses() {
		contact.Addresses = append(contact.Addresses, modifiable(Address{
			Street:     addr.StreetAddress,
			Locality:   addr.Locality,
			Region:     addr.Region,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Type:       primaryType(addr.Params),
			Preferred:  isPreferred(addr.Params),
		}))
	}

	for _, f := range card[govcard.FieldURL] {
		contact.URLs = append(contact.URLs, modifiable(URL{
			Value: f.Value,
			Type:  primaryType(f.Params),
		}))
	}

	for _, f := range card[govcard.FieldPhoto] {
		if photo, ok := importAvatar(f); ok {
			contact.Photos = append(contact.Photos, modifiable(photo))
		}
		// An empty avatar is dropped entirely (spec.md §4.2).
	}

	// The decoded card is a map, so walk the document's own lines to keep
	// unsupported properties in the order they appear there.
	var unsupported UnsupportedProperties
	taken := make(map[string]int)
	for _, line := range strings.Split(vcardText, "\n") {
		end := strings.IndexAny(line, ":;")
		if end <= 0 || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		key := strings.ToUpper(line[:end])
		if dot := strings.LastIndex(key, "."); dot >= 0 {
			key = key[dot+1:]
		}
		if fields := card[key]; !supportedFields[key] && taken[key] < len(fields) {
			unsupported = append(unsupported, formatUnsupportedLine(key, fields[taken[key]]))
			taken[key]++
		}
	}

	return contact, unsupported, nil
}

// Export serializes contact and its unsupported properties back to vCard
// 3.0 text.
func (c *VCardConverter) Export(contact *Contact, unsupported UnsupportedProperties) (string, error) {
	card := govcard.Card{}
	card.AddValue(govcard.FieldVersion, "3.0")

	// FN and N are mandatory vCard 3.0 properties; synthesize whichever is
	// missing from the other, and force-add both even if the contact is
	// fully unnamed (an empty FN / an all-empty N), matching the original
	// converter's unconditional contactProcessed() fixup.
	displayLabel := contact.DisplayLabel.Value
	name := contact.Name.Value
	if displayLabel == "" && !name.empty() {
		displayLabel = synthesizeLabel(name)
	}
	if name.empty() && displayLabel != "" {
		name = decomposeLabel(displayLabel)
	}

	card.AddValue(govcard.FieldFormattedName, displayLabel)
	card.AddValue(govcard.FieldName, fmt.Sprintf("%s;%s;%s;%s;%s",
		name.FamilyName, name.GivenName, name.AdditionalNames,
		name.HonorificPrefix, name.HonorificSuffix))

	if contact.Nickname.Value != "" {
		card.AddValue(govcard.FieldNickname, contact.Nickname.Value)
	}
	if contact.Birthday.Value != nil {
		card.AddValue(govcard.FieldBirthday, contact.Birthday.Value.RawValue)
	}
	if contact.Revision.Value != nil {
		card.AddValue(govcard.FieldRevision, contact.Revision.Value.RawValue)
	}
	if contact.Gender.Value != GenderUnspecified {
		card.AddValue(fieldGender, contact.Gender.Value.String())
	}
	if contact.Organization.Value != "" {
		card.AddValue(govcard.FieldOrganization, contact.Organization.Value)
	}
	if contact.Title.Value != "" {
		card.AddValue(govcard.FieldTitle, contact.Title.Value)
	}
	if contact.Role.Value != "" {
		card.AddValue(govcard.FieldRole, contact.Role.Value)
	}
	if contact.GUID != "" {
		card.AddValue(govcard.FieldUID, contact.GUID)
	}

	for _, e := range contact.Emails {
		card.Add(govcard.FieldEmail, fieldWithParams(e.Value.Address, e.Value.Type, e.Value.Preferred))
	}
	for _, p := range contact.Phones {
		card.Add(govcard.FieldTelephone, fieldWithParams(p.Value.Number, p.Value.Type, p.Value.Preferred))
	}
	for _, a := range contact.Addresses {
		v := a.Value
		card.Add(govcard.FieldAddress, fieldWithParams(
			fmt.Sprintf(";;%s;%s;%s;%s;%s", v.Street, v.Locality, v.Region, v.PostalCode, v.Country),
			v.Type, v.Preferred))
	}
	for _, u := range contact.URLs {
		card.Add(govcard.FieldURL, fieldWithParams(u.Value.Value, u.Value.Type, false))
	}
	for _, p := range contact.Photos {
		card.Add(govcard.FieldPhoto, exportAvatar(p.Value))
	}

	var buf bytes.Buffer
	if err := govcard.NewEncoder(&buf).Encode(card); err != nil {
		return "", fmt.Errorf("vcard: encoding document: %w", err)
	}

	return spliceUnsupported(buf.String(), unsupported), nil
}

func dedupFirstOccurrence(card govcard.Card, key string) {
	fields := card[key]
	if len(fields) > 1 {
		card[key] = fields[:1]
	}
}

func primaryType(params govcard.Params) string {
	types := params.Types()
	if len(types) == 0 {
		return ""
	}
	return strings.ToLower(types[0])
}

func isPreferred(params govcard.Params) bool {
	return params.Get("PREF") == "1"
}

func firstSemicolonField(v string) string {
	parts := strings.SplitN(v, ";", 2)
	return parts[0]
}

// decomposeLabel splits a display label into a Name: first token as given
// name, last token as family name, using the whole label as the given
// name when it has only one token (spec.md §4.2 import and export
// contracts, and scenario 6: "Jane Q Public" decomposes to
// N:Public;Jane;;;, dropping the middle token).
func decomposeLabel(label string) Name {
	tokens := strings.Fields(label)
	switch len(tokens) {
	case 0:
		return Name{}
	case 1:
		return Name{GivenName: tokens[0]}
	default:
		return Name{
			GivenName:  tokens[0],
			FamilyName: tokens[len(tokens)-1],
		}
	}
}

// synthesizeLabel is decomposeLabel's inverse for export: it builds a
// display label out of whatever name parts are present.
func synthesizeLabel(n Name) string {
	parts := []string{n.HonorificPrefix, n.GivenName, n.AdditionalNames, n.FamilyName, n.HonorificSuffix}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

func fieldWithParams(value, typ string, preferred bool) *govcard.Field {
	f := &govcard.Field{Value: value}
	if typ != "" {
		f.Params = govcard.Params{govcard.ParamType: []string{strings.ToUpper(typ)}}
	}
	if preferred {
		if f.Params == nil {
			f.Params = govcard.Params{}
		}
		f.Params.Set("PREF", "1")
	}
	return f
}

func importAvatar(f *govcard.Field) (Photo, bool) {
	if f.Value == "" {
		return Photo{}, false
	}
	data, err := base64.StdEncoding.DecodeString(f.Value)
	if err != nil || len(data) == 0 {
		return Photo{}, false
	}
	mimeType := "image/jpeg"
	if t := primaryType(f.Params); t != "" {
		mimeType = "image/" + strings.ToLower(t)
	}
	return Photo{Data: data, MIMEType: mimeType}, true
}

func exportAvatar(p Photo) *govcard.Field {
	f := &govcard.Field{Value: base64.StdEncoding.EncodeToString(p.Data)}
	f.Params = govcard.Params{"ENCODING": []string{"b"}}
	if p.MIMEType != "" {
		subtype := strings.ToUpper(strings.TrimPrefix(p.MIMEType, "image/"))
		f.Params.Set(govcard.ParamType, subtype)
	}
	return f
}

// formatUnsupportedLine renders a single field as its verbatim vCard line
// by round-tripping it through a single-property document and stripping
// the BEGIN/VERSION/END scaffolding (spec.md §4.2 import contract).
func formatUnsupportedLine(key string, f *govcard.Field) string {
	scratch := govcard.Card{govcard.FieldVersion: []*govcard.Field{{Value: "3.0"}}}
	scratch.Add(key, f)

	var buf bytes.Buffer
	if err := govcard.NewEncoder(&buf).Encode(scratch); err != nil {
		return fmt.Sprintf("%s:%s", key, f.Value)
	}

	for _, line := range strings.Split(buf.String(), "\r\n") {
		if line == "" || strings.HasPrefix(line, "BEGIN:") ||
			strings.HasPrefix(line, "VERSION:") || strings.HasPrefix(line, "END:") {
			continue
		}
		return line
	}
	return fmt.Sprintf("%s:%s", key, f.Value)
}

// spliceUnsupported inserts each unsupported-property line verbatim
// immediately before the terminal END:VCARD line, preserving order
// (spec.md §4.2 export contract).
func spliceUnsupported(encoded string, unsupported UnsupportedProperties) string {
	if len(unsupported) == 0 {
		return encoded
	}
	const marker = "END:VCARD"
	idx := strings.LastIndex(encoded, marker)
	if idx < 0 {
		return encoded
	}
	var b strings.Builder
	b.WriteString(encoded[:idx])
	for _, line := range unsupported {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString(encoded[idx:])
	return b.String()
}
