package types

import "testing"

func TestContentHashStableAndSixteenHex(t *testing.T) {
	h1 := ContentHash("hello")
	h2 := ContentHash("hello")
	if h1 != h2 {
		t.Fatalf("ContentHash not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%q)", len(h1), h1)
	}
	if ContentHash("hello") == ContentHash("world") {
		t.Fatalf("expected different hashes for different content")
	}
}

func TestTokenCountEstimate(t *testing.T) {
	cases := map[string]int{
		"":      0,
		"ab":    1,
		"abcd":  1,
		"abcde": 2,
	}
	for in, want := range cases {
		if got := TokenCountEstimate(in); got != want {
			t.Errorf("TokenCountEstimate(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestValidateDims(t *testing.T) {
	if err := ValidateDims(0, 1024); err != nil {
		t.Fatalf("unpinned dims should accept anything: %v", err)
	}
	if err := ValidateDims(1024, 1024); err != nil {
		t.Fatalf("matching dims should not error: %v", err)
	}
	if err := ValidateDims(1024, 512); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleUser.Valid() || !RoleAssistant.Valid() || !RoleSystem.Valid() || !RoleChunk.Valid() {
		t.Fatalf("expected canonical roles to be valid")
	}
	if Role("bogus").Valid() {
		t.Fatalf("expected unknown role to be invalid")
	}
}
