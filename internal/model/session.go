package model

import "time"

// SessionTTL is the lifetime of an admin session from the moment of login.
const SessionTTL = 24 * time.Hour

// AdminSession is a short-lived bearer credential minted after a successful
// password login. The token itself is returned exactly once by the login
// endpoint and is never included in any other response.
type AdminSession struct {
	Token     string    `json:"-" db:"token"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// Expired reports whether the session is no longer valid at the given
// instant. A session is valid only while ExpiresAt is strictly in the
// future.
func (s *AdminSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
