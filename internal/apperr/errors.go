// Package apperr defines sentinel errors shared across the docalign pipeline.
package apperr

import "errors"

var (
	// ErrDrift is returned by validate when source and docs are out of
	// alignment. The CLI maps it to exit code 1.
	ErrDrift = errors.New("documentation drift detected")

	// ErrDuplicates is returned by a strict duplication scan that found
	// at least one duplicate group. The CLI maps it to exit code 1.
	ErrDuplicates = errors.New("duplicate documentation detected")

	// ErrArchiveConflict is returned when every disambiguating suffix for
	// an archive target is already taken.
	ErrArchiveConflict = errors.New("archive target conflict")
)
