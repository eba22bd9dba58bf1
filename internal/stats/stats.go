// Package stats persists aggregate play counters in a single JSON document.
//
// Writes are all-or-nothing: the document is written to a temp file in the
// same directory and renamed over the target. A document that fails to decode
// is quarantined under a timestamped name and replaced by a blank one, so a
// corrupt file never wedges the service.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Stats is the aggregate counter document.
type Stats struct {
	SessionsStarted   int64     `json:"sessions_started"`
	SessionsCompleted int64     `json:"sessions_completed"`
	AnswersSubmitted  int64     `json:"answers_submitted"`
	CardsUnlocked     int64     `json:"cards_unlocked"`
	RoomsCreated      int64     `json:"rooms_created"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Store is a file-backed stats document with atomic update semantics.
type Store struct {
	path  string
	clock func() time.Time

	mu sync.Mutex
}

// NewStore creates a store for the document at path. The file is created on
// first save.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("stats path is required")
	}
	return &Store{path: filepath.Clean(path), clock: time.Now}, nil
}

// Load reads the current document. A missing file yields a blank document; a
// corrupt file is quarantined and also yields a blank document.
func (s *Store) Load() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save writes the document with write-to-temp-then-rename semantics.
func (s *Store) Save(doc Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(doc)
}

// UpdateAtomically loads the document, applies the mutator, and saves only
// when the mutator reports a change. The whole cycle runs under the store
// lock so concurrent updates never lose counts.
func (s *Store) UpdateAtomically(mutator func(*Stats) bool) error {
	if mutator == nil {
		return fmt.Errorf("stats mutator is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	if !mutator(&doc) {
		return nil
	}
	doc.UpdatedAt = s.clock().UTC()
	return s.saveLocked(doc)
}

func (s *Store) loadLocked() (Stats, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stats{}, nil
		}
		return Stats{}, fmt.Errorf("read stats: %w", err)
	}

	var doc Stats
	if err := json.Unmarshal(payload, &doc); err != nil {
		quarantine := fmt.Sprintf("%s.corrupt-%d", s.path, s.clock().UnixNano())
		if renameErr := os.Rename(s.path, quarantine); renameErr != nil {
			return Stats{}, fmt.Errorf("quarantine corrupt stats: %w", renameErr)
		}
		log.Printf("stats file quarantined path=%s quarantine=%s err=%v", s.path, quarantine, err)
		return Stats{}, nil
	}
	return doc, nil
}

func (s *Store) saveLocked(doc Stats) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp stats file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp stats file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp stats file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename stats file: %w", err)
	}
	return nil
}
