package sonde

import "errors"

var (
	// ErrConfiguration is returned for invalid inputs: an empty profile, a missing
	// data column, an inconsistent scenario.
	ErrConfiguration = errors.New("configuration error")
	// ErrComputation is returned when a required quantity is absent from a data source,
	// e.g. a wind component missing from a decoded weather level set.
	ErrComputation = errors.New("computation error")
)
