package model

import "time"

// MaxNameLength is the longest user-supplied label accepted for API keys
// and webhooks.
const MaxNameLength = 100

// API key permission levels. Unknown values are dropped at creation time,
// not rejected.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// APIKey represents a long-lived credential usable by external integrations
// in lieu of an admin session. The raw key is never stored; only a SHA-256
// hash for lookup and a masked form for identification are persisted.
type APIKey struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	KeyHash     string     `json:"-" db:"key_hash"`         // SHA-256 hash, never expose
	KeyMask     string     `json:"key_mask" db:"key_mask"` // prefix...suffix for identification
	Permissions []string   `json:"permissions" db:"-"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// HasPermission reports whether the key carries the named permission.
func (k *APIKey) HasPermission(perm string) bool {
	for _, p := range k.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// NormalizePermissions filters perms down to the known permission levels,
// dropping unknown values and duplicates. An empty result defaults to
// read-only access.
func NormalizePermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	seen := make(map[string]bool, len(perms))
	for _, p := range perms {
		switch p {
		case PermissionRead, PermissionWrite, PermissionAdmin:
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	if len(out) == 0 {
		out = []string{PermissionRead}
	}
	return out
}
