// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/specvault/specvault/services/versioning/datatypes"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when a version or approval row does not exist.
	ErrNotFound = errors.New("version not found")

	// ErrVersionPending is returned when a publish is attempted while the
	// project already has a version awaiting review.
	ErrVersionPending = errors.New("project already has a pending version")

	// ErrVersionExists is returned when the target version number collides
	// with an existing row that is not REJECTED (rejected rows recycle
	// instead of colliding).
	ErrVersionExists = errors.New("version number already exists")
)

// Key layout. Version ids are uuids; project ids are opaque upstream
// identifiers validated at the API boundary to exclude ':' (the datatypes
// Project schema), so no id can alias across key prefixes. Reviewer ids are
// only ever the trailing key segment.
//
//	version:<versionID>                    ProjectVersion row (JSON)
//	vnum:<projectID>:<version>             versionID
//	pending:<projectID>                    versionID of the PENDING row
//	lock:<projectID>                       presence = project locked
//	approval:<versionID>:<reviewerID>      VersionApproval row (JSON)
const (
	prefixVersion  = "version:"
	prefixNumber   = "vnum:"
	prefixPending  = "pending:"
	prefixLock     = "lock:"
	prefixApproval = "approval:"
)

// VersionStore persists ProjectVersion rows, the project lock flag, and the
// reviewer audit trail.
//
// All state transitions that the lifecycle requires to be atomic are single
// badger transactions here.
type VersionStore struct {
	db *DB
}

// NewVersionStore creates a store backed by the given database.
func NewVersionStore(db *DB) *VersionStore {
	return &VersionStore{db: db}
}

// CreatePending atomically records a new PENDING version and locks the
// project.
//
// Description:
//
//	Inside one transaction:
//	- rejects if the project already has a PENDING version;
//	- if a row already exists at (projectID, version): recycles it when
//	  REJECTED (the stored row keeps its original id; everything else is
//	  overwritten from v), errors otherwise;
//	- writes the row, the number index, the pending marker, and the lock.
//
// Inputs:
//
//	ctx - Cancellation.
//	v - The fully-populated candidate row. Status must be StatusPending.
//
// Outputs:
//
//	*datatypes.ProjectVersion - The stored row. Differs from v only in ID
//	                            when a REJECTED row was recycled.
//	error - ErrVersionPending, ErrVersionExists, or a wrapped badger error.
//
// Thread Safety: Safe for concurrent use; concurrent publishes for the same
// project serialize on the badger transaction conflict check.
func (s *VersionStore) CreatePending(ctx context.Context, v *datatypes.ProjectVersion) (*datatypes.ProjectVersion, error) {
	if v.Status != datatypes.StatusPending {
		return nil, fmt.Errorf("create pending: row has status %s", v.Status)
	}

	stored := *v
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(prefixPending + v.ProjectID)); err == nil {
			return ErrVersionPending
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check pending marker: %w", err)
		}

		numberKey := []byte(prefixNumber + v.ProjectID + ":" + v.Version)
		item, err := txn.Get(numberKey)
		switch {
		case err == nil:
			// The version number is taken. Only a REJECTED row may be
			// recycled in place; its id survives, its content does not.
			existingID, err := itemValue(item)
			if err != nil {
				return err
			}
			var existing datatypes.ProjectVersion
			if err := getJSON(txn, prefixVersion+string(existingID), &existing); err != nil {
				return fmt.Errorf("load colliding version: %w", err)
			}
			if existing.Status != datatypes.StatusRejected {
				return ErrVersionExists
			}
			stored.ID = existing.ID
		case errors.Is(err, badger.ErrKeyNotFound):
			// New version number, new row.
		default:
			return fmt.Errorf("check version number: %w", err)
		}

		if err := setJSON(txn, prefixVersion+stored.ID, &stored); err != nil {
			return err
		}
		if err := txn.Set(numberKey, []byte(stored.ID)); err != nil {
			return fmt.Errorf("set number index: %w", err)
		}
		if err := txn.Set([]byte(prefixPending+v.ProjectID), []byte(stored.ID)); err != nil {
			return fmt.Errorf("set pending marker: %w", err)
		}
		if err := txn.Set([]byte(prefixLock+v.ProjectID), []byte("1")); err != nil {
			return fmt.Errorf("set project lock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Finalize atomically writes a version's terminal state, upserts the
// reviewer's approval row, clears the pending marker, and unlocks the
// project.
//
// Description:
//
//	The approval row is keyed (versionID, reviewerID): a reviewer re-acting
//	on the same version updates their existing row (id and createdAt are
//	preserved) instead of appending a duplicate.
//
// Inputs:
//
//	ctx - Cancellation.
//	v - The row with its terminal status and reviewer fields already set.
//	approval - The reviewer's decision to record.
//
// Outputs:
//
//	error - Non-nil if the transaction fails; nothing is partially applied.
func (s *VersionStore) Finalize(ctx context.Context, v *datatypes.ProjectVersion, approval *datatypes.VersionApproval) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixVersion+v.ID, v); err != nil {
			return err
		}

		approvalKey := prefixApproval + approval.VersionID + ":" + approval.ReviewerID
		var existing datatypes.VersionApproval
		if err := getJSON(txn, approvalKey, &existing); err == nil {
			approval.ID = existing.ID
			approval.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setJSON(txn, approvalKey, approval); err != nil {
			return err
		}

		if err := txn.Delete([]byte(prefixPending + v.ProjectID)); err != nil {
			return fmt.Errorf("clear pending marker: %w", err)
		}
		if err := txn.Delete([]byte(prefixLock + v.ProjectID)); err != nil {
			return fmt.Errorf("clear project lock: %w", err)
		}
		return nil
	})
}

// Unlock clears the project lock, but only while no version is PENDING.
// Used to re-assert the unlock on idempotent repeat approve/reject calls: a
// stale duplicate review of an old version must not release the lock held
// by a newer PENDING one.
func (s *VersionStore) Unlock(ctx context.Context, projectID string) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixPending + projectID))
		if err == nil {
			// The lock belongs to the current PENDING version; leave it.
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check pending marker: %w", err)
		}
		if err := txn.Delete([]byte(prefixLock + projectID)); err != nil {
			return fmt.Errorf("clear project lock: %w", err)
		}
		return nil
	})
}

// GetVersion loads a version row by id. Returns ErrNotFound if absent.
func (s *VersionStore) GetVersion(ctx context.Context, id string) (*datatypes.ProjectVersion, error) {
	var v datatypes.ProjectVersion
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixVersion+id, &v)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetByNumber loads a version row by (projectID, version string). Returns
// ErrNotFound if absent.
func (s *VersionStore) GetByNumber(ctx context.Context, projectID, version string) (*datatypes.ProjectVersion, error) {
	var v datatypes.ProjectVersion
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNumber + projectID + ":" + version))
		if err != nil {
			return err
		}
		id, err := itemValue(item)
		if err != nil {
			return err
		}
		return getJSON(txn, prefixVersion+string(id), &v)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Pending returns the project's PENDING version, or nil when there is none.
func (s *VersionStore) Pending(ctx context.Context, projectID string) (*datatypes.ProjectVersion, error) {
	var v datatypes.ProjectVersion
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixPending + projectID))
		if err != nil {
			return err
		}
		id, err := itemValue(item)
		if err != nil {
			return err
		}
		return getJSON(txn, prefixVersion+string(id), &v)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// LatestApproved returns the semver-highest APPROVED version of a project,
// or nil when no approved release exists. Rows are compared by their numeric
// components, not key order, so 0.10.0 ranks above 0.9.0.
func (s *VersionStore) LatestApproved(ctx context.Context, projectID string) (*datatypes.ProjectVersion, error) {
	versions, err := s.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Status == datatypes.StatusApproved {
			return v, nil
		}
	}
	return nil, nil
}

// List returns all of a project's version rows, newest version first.
func (s *VersionStore) List(ctx context.Context, projectID string) ([]*datatypes.ProjectVersion, error) {
	var out []*datatypes.ProjectVersion
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := []byte(prefixNumber + projectID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			id, err := itemValue(it.Item())
			if err != nil {
				return err
			}
			var v datatypes.ProjectVersion
			if err := getJSON(txn, prefixVersion+string(id), &v); err != nil {
				return fmt.Errorf("load version %s: %w", id, err)
			}
			out = append(out, &v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Major != b.Major {
			return a.Major > b.Major
		}
		if a.Minor != b.Minor {
			return a.Minor > b.Minor
		}
		return a.Patch > b.Patch
	})
	return out, nil
}

// IsLocked reports whether the project's edit lock is set.
func (s *VersionStore) IsLocked(ctx context.Context, projectID string) (bool, error) {
	locked := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixLock + projectID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		locked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return locked, nil
}

// Approvals returns the reviewer audit trail for a version, oldest first.
func (s *VersionStore) Approvals(ctx context.Context, versionID string) ([]*datatypes.VersionApproval, error) {
	var out []*datatypes.VersionApproval
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := []byte(prefixApproval + versionID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			var a datatypes.VersionApproval
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &a)
			}); err != nil {
				return fmt.Errorf("decode approval: %w", err)
			}
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// itemValue copies an item's value out of the transaction.
func itemValue(item *badger.Item) ([]byte, error) {
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("read value: %w", err)
	}
	return val, nil
}

func getJSON(txn *badger.Txn, key string, out interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		return nil
	})
}

func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
