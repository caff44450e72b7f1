// Package loot extracts, repairs, validates, and incrementally parses JSON
// embedded in unstructured text, typically the output of large language
// models that wrap JSON in prose or markdown fences, or emit almost-JSON
// with trailing commas, single quotes, comments, bare keys, or sentinel
// values like undefined and NaN.
package loot

import (
	"encoding/json"
	"strings"

	xjson "github.com/charmbracelet/x/json"

	"charm.land/loot/repair"
)

// ParseState reports how a value was obtained from text.
type ParseState string

const (
	// ParseStateUndefined means the input was empty.
	ParseStateUndefined ParseState = "undefined"

	// ParseStateSuccessful means the JSON parsed without repair.
	ParseStateSuccessful ParseState = "successful"

	// ParseStateRepaired means the JSON parsed after repair.
	ParseStateRepaired ParseState = "repaired"

	// ParseStateFailed means the JSON could not be parsed even after
	// repair.
	ParseStateFailed ParseState = "failed"
)

// Result is the outcome of a Loot call.
type Result struct {
	// Value is the extracted value (map, slice, or primitive).
	Value any

	// Raw is the candidate substring the value was parsed from.
	Raw string

	// State reports whether parsing needed repair.
	State ParseState

	// Repairs lists what the repairer changed, when repair was needed.
	Repairs []repair.Log

	// Validation is set when a schema was supplied.
	Validation *ValidationResult
}

// LootOption configures a Loot call.
type LootOption func(*lootOptions)

type lootOptions struct {
	schema     *Schema
	silent     bool
	repairOpts []repair.Option
}

// WithSchema validates the extracted value against schema and records the
// outcome on the Result.
func WithSchema(schema *Schema) LootOption {
	return func(o *lootOptions) { o.schema = schema }
}

// Silent makes Loot return a zero-state Result instead of an error when
// nothing usable is found.
func Silent() LootOption {
	return func(o *lootOptions) { o.silent = true }
}

// WithRepairRules overrides which repair rules apply to candidates that do
// not parse directly.
func WithRepairRules(rules repair.Rules) LootOption {
	return func(o *lootOptions) {
		o.repairOpts = append(o.repairOpts, repair.WithRules(rules))
	}
}

// Loot finds the most likely JSON payload in text, repairing it when
// needed and validating it when a schema was supplied.
func Loot(text string, opts ...LootOption) (*Result, error) {
	var o lootOptions
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(text) == "" {
		if o.silent {
			return &Result{State: ParseStateUndefined}, nil
		}
		return nil, &NoJSONFoundError{Text: text}
	}

	candidates := FindCandidates(text)
	if len(candidates) == 0 {
		if o.silent {
			return &Result{State: ParseStateUndefined}, nil
		}
		return nil, &NoJSONFoundError{Text: text}
	}

	result := &Result{State: ParseStateFailed, Raw: candidates[0]}
	for _, candidate := range candidates {
		value, state, logs := parseCandidate(candidate, o.repairOpts)
		if state == ParseStateFailed {
			continue
		}
		result = &Result{
			Value:   value,
			Raw:     candidate,
			State:   state,
			Repairs: logs,
		}
		break
	}

	if result.State == ParseStateFailed {
		if o.silent {
			return result, nil
		}
		return result, ErrUnparsable
	}

	if o.schema != nil {
		result.Validation = Validate(result.Value, o.schema)
		if !result.Validation.Valid && !o.silent {
			return result, ErrInvalid
		}
	}

	return result, nil
}

func parseCandidate(candidate string, opts []repair.Option) (any, ParseState, []repair.Log) {
	if xjson.IsValid(candidate) {
		var value any
		if err := json.Unmarshal([]byte(candidate), &value); err == nil {
			return value, ParseStateSuccessful, nil
		}
	}

	repaired, logs := repair.RepairWithLog(candidate, opts...)
	var value any
	if err := json.Unmarshal([]byte(repaired), &value); err != nil {
		return nil, ParseStateFailed, logs
	}
	return value, ParseStateRepaired, logs
}

// ParsePartial parses potentially malformed or truncated JSON text: a
// direct parse first, then a repair pass.
func ParsePartial(text string) (any, ParseState) {
	if text == "" {
		return nil, ParseStateUndefined
	}
	value, state, _ := parseCandidate(text, nil)
	return value, state
}

// LootAs extracts JSON from text and decodes it into T.
func LootAs[T any](text string, opts ...LootOption) (T, error) {
	var out T
	result, err := Loot(text, opts...)
	if err != nil {
		return out, err
	}
	if err := Decode(result.Value, &out); err != nil {
		return out, err
	}
	return out, nil
}
