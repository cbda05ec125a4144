package models

// SessionStatus is the status reported by a presence session.
type SessionStatus string

const (
	// StatusOnline is the only status that counts towards presence.
	StatusOnline  SessionStatus = "online"
	StatusOffline SessionStatus = "offline"
)

// SessionRecord is a time-bounded presence claim for an organization.
// ExpiresAt is epoch milliseconds.
type SessionRecord struct {
	Organization string        `json:"name"`
	Status       SessionStatus `json:"status"`
	ExpiresAt    int64         `json:"expiresAt"`
}
