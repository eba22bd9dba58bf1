// Package content loads the static game resources: card deck, rule set and
// invite links.
//
// Resources load once at startup; a missing or malformed deck or rule file is
// a construction error and startup-fatal. After construction the provider is
// read-only except for the invite cursor.
package content

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/praxisplay/gameroom/internal/session"
)

const (
	deckFile    = "deck.json"
	rulesFile   = "rules.json"
	invitesFile = "invites.txt"
)

// AreaDef describes one board area in the rule set.
type AreaDef struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Cases int    `json:"cases"`
}

// Rules is the static rule set loaded at startup.
type Rules struct {
	MaxPlayers int       `json:"max_players"`
	Quorum     int       `json:"quorum"`
	Roles      []string  `json:"roles"`
	Areas      []AreaDef `json:"areas"`
}

// Provider serves the loaded resources.
type Provider struct {
	deck  []session.Card
	rules Rules

	mu      sync.Mutex
	invites []string
}

// Load reads the card deck, rule set and optional invite links from dir.
func Load(dir string) (*Provider, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("content directory is required")
	}

	deck, err := loadDeck(filepath.Join(dir, deckFile))
	if err != nil {
		return nil, err
	}
	rules, err := loadRules(filepath.Join(dir, rulesFile))
	if err != nil {
		return nil, err
	}
	invites, err := loadInvites(filepath.Join(dir, invitesFile))
	if err != nil {
		return nil, err
	}

	return &Provider{deck: deck, rules: rules, invites: invites}, nil
}

// CardDeck returns a copy of the loaded card deck.
func (p *Provider) CardDeck() []session.Card {
	deck := make([]session.Card, len(p.deck))
	copy(deck, p.deck)
	return deck
}

// RuleSet returns the loaded rule set.
func (p *Provider) RuleSet() Rules {
	return p.rules
}

// PopInviteLink hands out the next unused invite link. It reports false when
// none remain.
func (p *Provider) PopInviteLink() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.invites) == 0 {
		return "", false
	}
	link := p.invites[0]
	p.invites = p.invites[1:]
	return link, true
}

func loadDeck(path string) ([]session.Card, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read card deck: %w", err)
	}
	var deck []session.Card
	if err := json.Unmarshal(payload, &deck); err != nil {
		return nil, fmt.Errorf("decode card deck: %w", err)
	}
	if len(deck) == 0 {
		return nil, fmt.Errorf("card deck %s is empty", path)
	}
	return deck, nil
}

func loadRules(path string) (Rules, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rule set: %w", err)
	}
	var rules Rules
	if err := json.Unmarshal(payload, &rules); err != nil {
		return Rules{}, fmt.Errorf("decode rule set: %w", err)
	}
	return rules, nil
}

// loadInvites reads one link per line; the file is optional.
func loadInvites(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open invite links: %w", err)
	}
	defer file.Close()

	var invites []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			invites = append(invites, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read invite links: %w", err)
	}
	return invites, nil
}
