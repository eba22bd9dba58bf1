// Package bbolt provides a BoltDB-backed archive and telemetry store.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/praxisplay/gameroom/internal/platform/id"
	"github.com/praxisplay/gameroom/internal/storage"
)

const (
	archiveBucket   = "session_archive"
	telemetryBucket = "telemetry"
)

// Store provides a BoltDB-backed archive store.
type Store struct {
	db          *bbolt.DB
	idGenerator func() (string, error)
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db, idGenerator: id.NewID}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutSessionRecord persists an archived session summary.
func (s *Store) PutSessionRecord(ctx context.Context, record storage.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("session record id is required")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(archiveBucket))
		if bucket == nil {
			return fmt.Errorf("session archive bucket is missing")
		}
		return bucket.Put(archiveKey(record.RoomID, record.ID), payload)
	})
}

// GetSessionRecord fetches an archived session summary by record ID.
//
// Records are keyed by room for range scans, so lookup by bare ID walks the
// bucket. Archive reads are an operator path, not a hot path.
func (s *Store) GetSessionRecord(ctx context.Context, recordID string) (storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionRecord{}, err
	}
	if s == nil || s.db == nil {
		return storage.SessionRecord{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(recordID) == "" {
		return storage.SessionRecord{}, fmt.Errorf("session record id is required")
	}

	var record storage.SessionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(archiveBucket))
		if bucket == nil {
			return fmt.Errorf("session archive bucket is missing")
		}
		cursor := bucket.Cursor()
		for key, payload := cursor.First(); key != nil; key, payload = cursor.Next() {
			var candidate storage.SessionRecord
			if err := json.Unmarshal(payload, &candidate); err != nil {
				return fmt.Errorf("unmarshal session record: %w", err)
			}
			if candidate.ID == recordID {
				record = candidate
				return nil
			}
		}
		return storage.ErrNotFound
	})
	if err != nil {
		return storage.SessionRecord{}, err
	}

	return record, nil
}

// ListSessionRecords returns archived summaries for a room in insertion order.
func (s *Store) ListSessionRecords(ctx context.Context, roomID string) ([]storage.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(roomID) == "" {
		return nil, fmt.Errorf("room id is required")
	}

	prefix := []byte(roomID + "/")
	var records []storage.SessionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(archiveBucket))
		if bucket == nil {
			return fmt.Errorf("session archive bucket is missing")
		}
		cursor := bucket.Cursor()
		for key, payload := cursor.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, payload = cursor.Next() {
			var record storage.SessionRecord
			if err := json.Unmarshal(payload, &record); err != nil {
				return fmt.Errorf("unmarshal session record: %w", err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// AppendTelemetryEvent persists a telemetry event, generating an id when absent.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		generated, err := s.idGenerator()
		if err != nil {
			return fmt.Errorf("generate telemetry id: %w", err)
		}
		event.ID = generated
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal telemetry event: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(telemetryBucket))
		if bucket == nil {
			return fmt.Errorf("telemetry bucket is missing")
		}
		sequence, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("telemetry sequence: %w", err)
		}
		return bucket.Put(telemetryKey(sequence, event.ID), payload)
	})
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(archiveBucket)); err != nil {
			return fmt.Errorf("create session archive bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(telemetryBucket)); err != nil {
			return fmt.Errorf("create telemetry bucket: %w", err)
		}
		return nil
	})
}

func archiveKey(roomID, recordID string) []byte {
	return []byte(roomID + "/" + recordID)
}

func telemetryKey(sequence uint64, eventID string) []byte {
	return fmt.Appendf(nil, "%016d/%s", sequence, eventID)
}
