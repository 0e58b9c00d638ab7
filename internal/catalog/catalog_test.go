package catalog

import "testing"

func TestAll(t *testing.T) {
	all := All()
	if len(all) != 15 {
		t.Fatalf("expected 15 categories, got %d", len(all))
	}

	seen := make(map[string]bool)
	for _, c := range all {
		if c.Name == "" || c.Description == "" {
			t.Errorf("category %+v has an empty field", c)
		}
		if seen[c.Name] {
			t.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = true
	}
}

func TestAllReturnsCopy(t *testing.T) {
	a := All()
	a[0].Name = "mutated"
	if All()[0].Name == "mutated" {
		t.Fatal("All() exposed the backing slice")
	}
}

func TestLookup(t *testing.T) {
	c, ok := Lookup("Financial Outlook")
	if !ok {
		t.Fatal("expected Financial Outlook to exist")
	}
	if c.Description != "saving, spending or investing" {
		t.Errorf("unexpected description %q", c.Description)
	}

	if _, ok := Lookup("financial outlook"); ok {
		t.Error("lookup must be exact")
	}
}
