package domain

import "errors"

var (
	// ErrNotFound is returned when a field has no recorded readings.
	ErrNotFound = errors.New("not found")

	// ErrInvalidReading marks payloads that cannot become a Reading.
	ErrInvalidReading = errors.New("invalid reading")
)
