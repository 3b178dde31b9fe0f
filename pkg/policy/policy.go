// Package policy derives ban decisions from role membership. "Banned" is
// never stored; it is computed from record presence and the policy's
// polarity, so the store cannot hold contradictory states.
package policy

import (
	"fmt"

	"github.com/pacificderg/autoblock-bot/pkg/models"
	"github.com/pacificderg/autoblock-bot/pkg/store"
)

// Mode is the closed set of policy polarities.
type Mode int

const (
	// Denylist: a user is banned exactly when a record exists.
	Denylist Mode = iota
	// Allowlist: a user is banned exactly when no record exists.
	Allowlist
)

func (m Mode) String() string {
	if m == Allowlist {
		return "allowlist"
	}
	return "denylist"
}

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "denylist", "blacklist":
		return Denylist, nil
	case "allowlist", "whitelist":
		return Allowlist, nil
	}
	return 0, fmt.Errorf("unknown policy mode %q", s)
}

// Policy is a stateless strategy bound to a role name and a polarity. It
// owns no data; every call reads the store.
type Policy struct {
	Role models.Role
	Mode Mode
}

// IsMember reports whether a record exists for the user under this policy's
// role.
func (p Policy) IsMember(userID int64) (bool, error) {
	rec, err := store.Get(userID, p.Role)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Lookup returns the user's record, or nil when absent.
func (p Policy) Lookup(userID int64) (*models.RoleRecord, error) {
	return store.Get(userID, p.Role)
}

// IsBanned derives the ban decision: polarity XOR membership.
func (p Policy) IsBanned(userID int64) (bool, error) {
	member, err := p.IsMember(userID)
	if err != nil {
		return false, err
	}
	return (p.Mode == Allowlist) != member, nil
}

// Add records membership for the user. A re-add overwrites the prior
// record, so the reason may change.
func (p Policy) Add(userID int64, username, reason string) error {
	return store.Put(models.RoleRecord{
		UserID:   userID,
		Role:     p.Role,
		Username: username,
		Reason:   reason,
	})
}

// Remove deletes the user's membership record. Removing a non-member is a
// no-op.
func (p Policy) Remove(userID int64) error {
	return store.Delete(userID, p.Role)
}
