// Package storage defines persistence interfaces for gameroom records.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// SessionRecord is the archived summary of a finished game session.
type SessionRecord struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	TeamID      string    `json:"team_id"`
	TotalScore  int       `json:"total_score"`
	FinalStep   string    `json:"final_step"`
	PlayerCount int       `json:"player_count"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// TelemetryEvent is an operational event recorded for later inspection.
type TelemetryEvent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Severity  string    `json:"severity"`
	RoomID    string    `json:"room_id,omitempty"`
	TeamID    string    `json:"team_id,omitempty"`
	UserID    int64     `json:"user_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ArchiveStore persists session summaries.
type ArchiveStore interface {
	PutSessionRecord(ctx context.Context, record SessionRecord) error
	GetSessionRecord(ctx context.Context, id string) (SessionRecord, error)
	ListSessionRecords(ctx context.Context, roomID string) ([]SessionRecord, error)
}

// TelemetryStore appends operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
}
