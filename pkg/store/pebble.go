package store

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/pacificderg/autoblock-bot/pkg/logger"
	"github.com/pacificderg/autoblock-bot/pkg/models"
)

// Role records are written under two keys so membership can be resolved by
// user and enumerated by role without a scan:
//
//	user:<id>:role:<role>   point lookups for admission and commands
//	role:<role>:user:<id>   secondary index for the export generator
//
// Both keys carry the same JSON record, mirroring a pk/sk table with a
// role-keyed secondary index.

var (
	db     *pebble.DB
	dbPath string
)

// Open opens (or creates) the Pebble database at the given path and keeps a
// package-level handle. Every operation goes straight to the DB; admission
// decisions must see the latest moderation state, so nothing is cached.
func Open(path string) error {
	var err error
	logger.Info("opening_role_store", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("role_store_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	return nil
}

// Close closes the opened DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	dbPath = ""
	return nil
}

// Ready reports whether the store is opened.
func Ready() bool {
	return db != nil
}

func userKey(userID int64, role models.Role) []byte {
	return []byte(fmt.Sprintf("user:%d:role:%s", userID, role))
}

func roleKey(userID int64, role models.Role) []byte {
	return []byte(fmt.Sprintf("role:%s:user:%d", role, userID))
}

// Get returns the record for (userID, role), or nil when absent. A miss is
// an expected outcome, not an error.
func Get(userID int64, role models.Role) (*models.RoleRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("role store not opened; call store.Open first")
	}
	v, closer, err := db.Get(userKey(userID, role))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var rec models.RoleRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("corrupt role record for user %d role %s: %w", userID, role, err)
	}
	return &rec, nil
}

// Put upserts the record, overwriting any existing record for the same
// (user, role) key. Both the primary and the index key are written with a
// synced batch so the export view never drifts from the decision view.
func Put(rec models.RoleRecord) error {
	if db == nil {
		return fmt.Errorf("role store not opened; call store.Open first")
	}
	if !rec.Role.Valid() {
		return fmt.Errorf("unknown role %q", rec.Role)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal role record: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(userKey(rec.UserID, rec.Role), data, nil); err != nil {
		return err
	}
	if err := b.Set(roleKey(rec.UserID, rec.Role), data, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("role_record_put_failed", "user", rec.UserID, "role", rec.Role, "error", err)
		return err
	}
	logger.Info("role_record_put", "user", rec.UserID, "role", rec.Role)
	return nil
}

// Delete removes the record for (userID, role). Deleting an absent record
// is a no-op.
func Delete(userID int64, role models.Role) error {
	if db == nil {
		return fmt.Errorf("role store not opened; call store.Open first")
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Delete(userKey(userID, role), nil); err != nil {
		return err
	}
	if err := b.Delete(roleKey(userID, role), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("role_record_delete_failed", "user", userID, "role", role, "error", err)
		return err
	}
	logger.Info("role_record_deleted", "user", userID, "role", role)
	return nil
}

// ListByRole enumerates all records holding the given role via the
// secondary index. The result is finite and ordered by user id string.
func ListByRole(role models.Role) ([]models.RoleRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("role store not opened; call store.Open first")
	}
	prefix := []byte(fmt.Sprintf("role:%s:user:", role))
	upper := append(append([]byte{}, prefix...), 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.RoleRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec models.RoleRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("corrupt index record at %q: %w", iter.Key(), err)
		}
		out = append(out, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
