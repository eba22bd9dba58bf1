// Package notice defines the notification record attached to rooms and sessions.
package notice

import (
	"fmt"
	"strings"
	"time"
)

// Notification is a message posted to a room or session notice board.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	SenderID  int64     `json:"sender_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize fills in a generated id and timestamp when absent and trims text
// fields.
func Normalize(n Notification, idGenerator func() (string, error), clock func() time.Time) (Notification, error) {
	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)
	if strings.TrimSpace(n.ID) == "" {
		if idGenerator == nil {
			return Notification{}, fmt.Errorf("notification id generator is required")
		}
		generated, err := idGenerator()
		if err != nil {
			return Notification{}, fmt.Errorf("generate notification id: %w", err)
		}
		n.ID = generated
	}
	if n.CreatedAt.IsZero() {
		if clock == nil {
			clock = time.Now
		}
		n.CreatedAt = clock().UTC()
	}
	return n, nil
}

// Append adds n to the list unless a notification with the same id is already
// present. It reports whether the list changed.
func Append(list []Notification, n Notification) ([]Notification, bool) {
	for _, existing := range list {
		if existing.ID == n.ID {
			return list, false
		}
	}
	return append(list, n), true
}

// Remove deletes the notification with the given id, reporting whether it was
// present.
func Remove(list []Notification, id string) ([]Notification, bool) {
	for i, existing := range list {
		if existing.ID == id {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}
