package vcard

import (
	"strings"
	"testing"
)

func TestImport_BasicFields(t *testing.T) {
	const raw = "BEGIN:VCARD\r\n" +
		"VERSION:3.0\r\n" +
		"UID:abc-123\r\n" +
		"FN:Jane Q Public\r\n" +
		"N:Public;Jane;Q;;\r\n" +
		"EMAIL;TYPE=home;PREF=1:jane@example.org\r\n" +
		"TEL;TYPE=cell:+15551234567\r\n" +
		"END:VCARD\r\n"

	c := NewVCardConverter()
	contact, unsupported, err := c.Import(raw)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(unsupported) != 0 {
		t.Errorf("unsupported = %v, want none", unsupported)
	}
	if contact.GUID != "abc-123" {
		t.Errorf("GUID = %q, want abc-123", contact.GUID)
	}
	if contact.DisplayLabel.Value != "Jane Q Public" {
		t.Errorf("DisplayLabel = %q", contact.DisplayLabel.Value)
	}
	if !contact.DisplayLabel.Modifiable {
		t.Errorf("DisplayLabel not marked modifiable")
	}
	if contact.Name.Value.GivenName != "Jane" || contact.Name.Value.FamilyName != "Public" {
		t.Errorf("Name = %+v", contact.Name.Value)
	}
	if len(contact.Emails) != 1 || contact.Emails[0].Value.Address != "jane@example.org" || !contact.Emails[0].Value.Preferred {
		t.Errorf("Emails = %+v", contact.Emails)
	}
	if len(contact.Phones) != 1 || contact.Phones[0].Value.Number != "+15551234567" {
		t.Errorf("Phones = %+v", contact.Phones)
	}
}

func TestImport_RejectsMultipleDocuments(t *testing.T) {
	const raw = "BEGIN:VCARD\r\nVERSION:3.0\r\nUID:a\r\nEND:VCARD\r\n" +
		"BEGIN:VCARD\r\nVERSION:3.0\r\nUID:b\r\nEND:VCARD\r\n"

	c := NewVCardConverter()
	if _, _, err := c.Import(raw); err == nil {
		t.Fatalf("Import() with two documents succeeded, want error")
	}
}

func TestImport_DedupsDuplicateUID(t *testing.T) {
	const raw = "BEGIN:VCARD\r\nVERSION:3.0\r\nUID:first\r\nUID:second\r\nEND:VCARD\r\n"

	c := NewVCardConverter()
	contact, _, err := c.Import(raw)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if contact.GUID != "first" {
		t.Errorf("GUID = %q, want first (first occurrence wins)", contact.GUID)
	}
}

func TestImport_SynthesizesNameFromLabelSingleToken(t *testing.T) {
	const raw = "BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Madonna\r\nEND:VCARD\r\n"

	c := NewVCardConverter()
	contact, _, err := c.Import(raw)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if contact.Name.Value.GivenName != "Madonna" || contact.Name.Value.FamilyName != "" {
		t.Errorf("Name = %+v, want single-token given name", contact.Name.Value)
	}
}

func TestRoundTrip_UnsupportedPropertyPreservation(t *testing.T) {
	const raw = "BEGIN:VCARD\r\n" +
		"VERSION:3.0\r\n" +
		"UID:abc\r\n" +
		"FN:Jane Public\r\n" +
		"X-CUSTOM-FIELD:foo\r\n" +
		"X-OTHER:bar\r\n" +
		"END:VCARD\r\n"

	c := NewVCardConverter()
	contact, unsupported, err := c.Import(raw)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(unsupported) != 2 {
		t.Fatalf("unsupported = %v, want 2 entries", unsupported)
	}

	out, err := c.Export(contact, unsupported)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	endIdx := strings.Index(out, "END:VCARD")
	if endIdx < 0 {
		t.Fatalf("output missing END:VCARD: %q", out)
	}
	custom := strings.Index(out, "X-CUSTOM-FIELD:foo")
	other := strings.Index(out, "X-OTHER:bar")
	if custom < 0 || other < 0 {
		t.Fatalf("output missing unsupported properties: %q", out)
	}
	if custom > other || other > endIdx {
		t.Errorf("unsupported properties not in order immediately before END:VCARD: %q", out)
	}
}

func TestExport_SynthesizesNAndFNWhenMissing(t *testing.T) {
	contact := &Contact{
		GUID:         "abc",
		DisplayLabel: modifiable("Jane Q Public"),
	}

	c := NewVCardConverter()
	out, err := c.Export(contact, nil)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(out, "FN:Jane Q Public") {
		t.Errorf("output missing synthesized FN: %q", out)
	}
	if !strings.Contains(out, "N:Public;Jane;;;") {
		t.Errorf("output missing synthesized N: %q", out)
	}
}

func TestExport_ForceAddsEmptyFNAndNWhenFullyUnnamed(t *testing.T) {
	contact := &Contact{GUID: "abc"}

	c := NewVCardConverter()
	out, err := c.Export(contact, nil)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !strings.Contains(out, "FN:\r\n") {
		t.Errorf("output missing empty FN: %q", out)
	}
	if !strings.Contains(out, "N:;;;;\r\n") {
		t.Errorf("output missing empty N: %q", out)
	}
}

func TestExport_FiltersUnspecifiedGender(t *testing.T) {
	contact := &Contact{
		GUID:         "abc",
		DisplayLabel: modifiable("Jane Public"),
		Gender:       modifiable(GenderUnspecified),
	}

	c := NewVCardConverter()
	out, err := c.Export(contact, nil)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.Contains(out, "X-GENDER") {
		t.Errorf("output should not contain X-GENDER when unspecified: %q", out)
	}
}
