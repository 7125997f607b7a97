package types

import "errors"

// Tuid-related errors
var (
	// ErrInvalidTuidLength is returned when a Tuid string or byte slice has incorrect length
	ErrInvalidTuidLength = errors.New("invalid TUID length")

	// ErrInvalidTuidCharacter is returned when a Tuid string contains invalid characters
	ErrInvalidTuidCharacter = errors.New("invalid TUID character")

	// ErrInvalidTimeType is returned when parsing an unknown timeline type name
	ErrInvalidTimeType = errors.New("invalid time type")
)
