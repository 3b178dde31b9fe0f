package models

// Role names a membership category governing admission policy. One store
// may hold records for both roles; the policies reading them are disjoint.
type Role string

const (
	RoleBlacklist Role = "blacklist"
	RoleWhitelist Role = "whitelist"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleBlacklist || r == RoleWhitelist
}

// RoleRecord is a single (user, role) membership fact. Presence of the
// record is the only truth signal; there is no separate "active" flag.
type RoleRecord struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
	// Username is the display handle at the time of the action. It is
	// mutable on the platform side and never authoritative.
	Username string `json:"username,omitempty"`
	// Reason is optional free text recorded by the admin who added the user.
	Reason string `json:"reason,omitempty"`
}
