package syncstate

import "testing"

func TestBuildGUID(t *testing.T) {
	got := BuildGUID("acct1", "/addressbooks/alice/book1/", "uid-1")
	want := "acct1:AB:/addressbooks/alice/book1/:uid-1"
	if got != want {
		t.Errorf("BuildGUID() = %q, want %q", got, want)
	}
}

func TestBuildGUID_DistinctAcrossAddressBooks(t *testing.T) {
	a := BuildGUID("acct1", "/addressbooks/alice/book1/", "shared-uid")
	b := BuildGUID("acct1", "/addressbooks/alice/book2/", "shared-uid")
	if a == b {
		t.Errorf("expected distinct GUIDs for the same UID in different address books, got %q == %q", a, b)
	}
}

func TestIsLegacyGUID(t *testing.T) {
	if !IsLegacyGUID("acct1:uid-1") {
		t.Errorf("expected acct1:uid-1 to be legacy")
	}
	if IsLegacyGUID("acct1:AB:/ab/:uid-1") {
		t.Errorf("expected acct1:AB:/ab/:uid-1 to not be legacy")
	}
}

func TestMigrateLegacyGUID(t *testing.T) {
	got := MigrateLegacyGUID("acct1:uid-1", "/addressbooks/alice/book1/")
	want := "acct1:AB:/addressbooks/alice/book1/:uid-1"
	if got != want {
		t.Errorf("MigrateLegacyGUID() = %q, want %q", got, want)
	}

	current := "acct1:AB:/addressbooks/alice/book1/:uid-1"
	if got := MigrateLegacyGUID(current, "/addressbooks/alice/book1/"); got != current {
		t.Errorf("MigrateLegacyGUID() on current GUID = %q, want no-op %q", got, current)
	}
}
