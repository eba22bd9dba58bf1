// Package user defines the stable user identity shared by rooms, teams and sessions.
package user

import "strings"

// Role tags carried by a user. Matching is case-insensitive.
const (
	TagAdministrator = "administrator"
	TagObserver      = "observer"
	TagPlayer        = "player"
)

// User identifies a participant. Identity is the numeric ID; a real user never
// has ID zero.
type User struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

// HasTag reports whether the user carries the given role tag, ignoring case.
func (u User) HasTag(tag string) bool {
	for _, role := range u.Roles {
		if strings.EqualFold(role, tag) {
			return true
		}
	}
	return false
}

// IsAdministrator reports whether the user carries the administrator tag.
func (u User) IsAdministrator() bool {
	return u.HasTag(TagAdministrator)
}

// IsObserver reports whether the user carries the observer tag.
func (u User) IsObserver() bool {
	return u.HasTag(TagObserver)
}
