package domain

import "time"

// Link is a single-use passwordless login link. It is created once and either consumed
// (fetched and deleted in one step) or expires unconsumed.
type Link struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the link is past its expiry at now.
func (l *Link) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
