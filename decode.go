package loot

import "github.com/go-viper/mapstructure/v2"

// Opt creates a pointer to the given value.
func Opt[T any](v T) *T {
	return &v
}

// Decode decodes a parsed JSON value into the provided struct, matching
// fields by their json tag names.
func Decode(value any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(value)
}
