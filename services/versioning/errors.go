// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

package versioning

import "errors"

// Sentinel errors for lifecycle operations. All of them are recoverable at
// the caller's discretion; the service never logs and never terminates the
// process over them.
var (
	// ErrNoFeatures is returned when publishing a project with zero
	// features. An empty project has nothing to release.
	ErrNoFeatures = errors.New("project has no features to publish")

	// ErrNoChanges is returned when the current tree is indistinguishable
	// from the last approved snapshot. No-op publishes are disallowed to
	// prevent version-number churn.
	ErrNoChanges = errors.New("no changes detected since the last approved version")

	// ErrInvalidTransition is returned when approve/reject is called on a
	// version whose state does not permit it, e.g. rejecting an APPROVED
	// version. The intentionally idempotent repeats (approve on APPROVED,
	// reject on REJECTED) are no-op successes, not this error.
	ErrInvalidTransition = errors.New("version is not in a state that permits this transition")

	// ErrRejectionMessageRequired is returned when reject is called without
	// a message. Reviewers must tell the author what to fix.
	ErrRejectionMessageRequired = errors.New("rejection requires a non-empty message")
)
