package loot

import "errors"

// NoJSONFoundError is returned when the input contains nothing that looks
// like JSON.
type NoJSONFoundError struct {
	// Text is the input that was searched.
	Text string
}

func (e *NoJSONFoundError) Error() string {
	return "no JSON found in text"
}

// ErrUnparsable is returned when every candidate substring failed to parse
// even after repair.
var ErrUnparsable = errors.New("JSON could not be parsed after repair")

// ErrInvalid is returned when the extracted value failed schema
// validation; the Result still carries the value and the validation
// errors.
var ErrInvalid = errors.New("JSON does not match the schema")
