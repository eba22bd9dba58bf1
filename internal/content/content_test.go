package content

import (
	"os"
	"path/filepath"
	"testing"
)

const testDeck = `[
  {"id": 1, "area_id": 1, "type": "management", "points": 5},
  {"id": 2, "area_id": 2, "type": "crisis", "points": 10}
]`

const testRules = `{
  "max_players": 4,
  "quorum": 4,
  "roles": ["director", "finance", "operations", "communications", "observer"],
  "areas": [{"id": 1, "name": "Operations", "cases": 6}, {"id": 2, "name": "Crisis", "cases": 4}]
}`

func writeContentDir(t *testing.T, withInvites bool) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "deck.json"), []byte(testDeck), 0o600); err != nil {
		t.Fatalf("write deck: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rules.json"), []byte(testRules), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if withInvites {
		invites := "https://game.example/join/a\n\nhttps://game.example/join/b\n"
		if err := os.WriteFile(filepath.Join(dir, "invites.txt"), []byte(invites), 0o600); err != nil {
			t.Fatalf("write invites: %v", err)
		}
	}
	return dir
}

func TestLoadProvidesDeckAndRules(t *testing.T) {
	p, err := Load(writeContentDir(t, false))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	deck := p.CardDeck()
	if len(deck) != 2 || deck[0].ID != 1 || deck[1].Points != 10 {
		t.Fatalf("unexpected deck %+v", deck)
	}

	rules := p.RuleSet()
	if rules.Quorum != 4 || len(rules.Roles) != 5 || len(rules.Areas) != 2 {
		t.Fatalf("unexpected rules %+v", rules)
	}

	// The returned deck is a copy.
	deck[0].ID = 99
	if p.CardDeck()[0].ID != 1 {
		t.Fatal("deck copy leaked internal state")
	}
}

func TestLoadFailsOnMissingDeck(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rules.json"), []byte(testRules), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for missing deck")
	}
}

func TestLoadFailsOnMalformedRules(t *testing.T) {
	dir := writeContentDir(t, false)
	if err := os.WriteFile(filepath.Join(dir, "rules.json"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed rules")
	}
}

func TestLoadFailsOnEmptyDeck(t *testing.T) {
	dir := writeContentDir(t, false)
	if err := os.WriteFile(filepath.Join(dir, "deck.json"), []byte("[]"), 0o600); err != nil {
		t.Fatalf("write deck: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for empty deck")
	}
}

func TestPopInviteLink(t *testing.T) {
	p, err := Load(writeContentDir(t, true))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	first, ok := p.PopInviteLink()
	if !ok || first != "https://game.example/join/a" {
		t.Fatalf("unexpected first link %q ok=%v", first, ok)
	}
	second, ok := p.PopInviteLink()
	if !ok || second != "https://game.example/join/b" {
		t.Fatalf("unexpected second link %q ok=%v", second, ok)
	}
	if _, ok := p.PopInviteLink(); ok {
		t.Fatal("expected exhausted invite links")
	}
}

func TestPopInviteLinkWithoutFile(t *testing.T) {
	p, err := Load(writeContentDir(t, false))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := p.PopInviteLink(); ok {
		t.Fatal("expected no invite links")
	}
}
