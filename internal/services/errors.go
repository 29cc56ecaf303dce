// Package services implements the domain rules of Loreline on top of the
// storage layer: the variable store (definitions, stack and replace values)
// and the suite registry (suites, items, triggers).
//
// All validation failures are returned as errors, never panics; callers are
// expected to surface them as soft failures.
package services

import "errors"

var (
	// ErrDuplicateName is returned when a variable name collides with
	// another definition.
	ErrDuplicateName = errors.New("variable name already in use")

	// ErrDuplicateTag is returned when a variable tag collides with
	// another definition.
	ErrDuplicateTag = errors.New("variable tag already in use")

	// ErrInvalidName is returned for empty or non-identifier names.
	ErrInvalidName = errors.New("invalid variable name")

	// ErrInvalidTag is returned for empty tags.
	ErrInvalidTag = errors.New("invalid variable tag")

	// ErrInvalidMode is returned for unrecognized variable modes.
	ErrInvalidMode = errors.New("invalid variable mode")

	// ErrWrongMode is returned when a stack operation is applied to a
	// replace variable or vice versa.
	ErrWrongMode = errors.New("operation not valid for variable mode")

	// ErrEntryNotFound is returned when an entry id is absent.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrBadPermutation is returned when a reorder request is not a
	// permutation of the existing id set.
	ErrBadPermutation = errors.New("reorder ids are not a permutation of existing ids")

	// ErrHistoryBoundary is returned when history navigation has nowhere
	// to move.
	ErrHistoryBoundary = errors.New("no history entry in that direction")

	// ErrHistoryIndex is returned for out-of-range history indices.
	ErrHistoryIndex = errors.New("history index out of range")

	// ErrDuplicateItem is returned when an item-add operation violates a
	// per-type uniqueness rule.
	ErrDuplicateItem = errors.New("duplicate item for suite")

	// ErrItemNotFound is returned when a suite item id is absent.
	ErrItemNotFound = errors.New("item not found")

	// ErrReorderMismatch is returned when a suite item reorder does not
	// cover the current item count.
	ErrReorderMismatch = errors.New("reorder id count does not match item count")
)
