package loot

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"charm.land/loot/internal/jsonext"
)

// ValidationError describes a single failed schema keyword at a dotted
// path into the value ("(root)" for the top level).
type ValidationError struct {
	Path     string `json:"path"`
	Message  string `json:"message"`
	Keyword  string `json:"keyword"`
	Expected any    `json:"expected,omitempty"`
	Actual   any    `json:"actual,omitempty"`
}

// ValidationResult is the outcome of validating a value against a Schema.
// Data carries the validated value through so callers can keep a single
// handle on both.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Data   any               `json:"data,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validator checks parsed values against a Schema. Validation is a total
// function: it never panics and never errors, it only accumulates
// ValidationError entries. A Validator must not be shared across
// concurrent Validate calls; per-call state is reset at entry.
type Validator struct {
	root *Schema
	defs map[string]*Schema
	path []string
	errs []ValidationError
}

// NewValidator returns an empty Validator. Instances are cheap; create one
// per concurrent validation.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks value against schema and its definitions.
func Validate(value any, schema *Schema) *ValidationResult {
	return NewValidator().Validate(value, schema)
}

// Validate checks value against schema, resetting any state left over from
// a previous call.
func (v *Validator) Validate(value any, schema *Schema) *ValidationResult {
	v.root = schema
	v.defs = nil
	v.path = v.path[:0]
	v.errs = nil
	if schema != nil {
		v.defs = schema.Definitions
	}

	v.walk(value, schema)

	return &ValidationResult{
		Valid:  len(v.errs) == 0,
		Data:   value,
		Errors: v.errs,
	}
}

func (v *Validator) walk(value any, schema *Schema) {
	if schema == nil {
		return
	}

	// $ref fully replaces the node; sibling keywords are ignored.
	if schema.Ref != "" {
		resolved := v.resolveRef(schema.Ref)
		if resolved == nil {
			v.addError("$ref", fmt.Sprintf("unable to resolve reference %q", schema.Ref), schema.Ref, nil)
			return
		}
		v.walk(value, resolved)
		return
	}

	v.applyComposition(value, schema)
	v.applyConditional(value, schema)

	if len(schema.Type) > 0 && !typeMatches(schema.Type, value) {
		v.addError("type", fmt.Sprintf("expected %s, got %s", strings.Join(schema.Type, " or "), shapeOf(value)), schema.Type, shapeOf(value))
	}

	if schema.Const != nil && !deepEqual(value, schema.Const) {
		v.addError("const", "value does not equal the const", schema.Const, value)
	}

	if len(schema.Enum) > 0 {
		found := false
		for _, member := range schema.Enum {
			if deepEqual(value, member) {
				found = true
				break
			}
		}
		if !found {
			v.addError("enum", "value is not one of the allowed values", schema.Enum, value)
		}
	}

	switch val := value.(type) {
	case string:
		v.validateString(val, schema)
	case map[string]any:
		v.validateObject(val, schema)
	case []any:
		v.validateArray(val, schema)
	default:
		if f, ok := jsonext.Float(value); ok {
			v.validateNumber(f, schema)
		}
	}
}

// passes runs an isolated validation whose errors never reach v's list.
func (v *Validator) passes(value any, schema *Schema) bool {
	child := &Validator{root: v.root, defs: v.defs}
	child.walk(value, schema)
	return len(child.errs) == 0
}

func (v *Validator) applyComposition(value any, schema *Schema) {
	for _, sub := range schema.AllOf {
		v.walk(value, sub)
	}

	if len(schema.AnyOf) > 0 {
		matched := false
		for _, sub := range schema.AnyOf {
			if v.passes(value, sub) {
				matched = true
				break
			}
		}
		if !matched {
			v.addError("anyOf", "value does not match any of the schemas", nil, nil)
		}
	}

	if len(schema.OneOf) > 0 {
		matches := 0
		for _, sub := range schema.OneOf {
			if v.passes(value, sub) {
				matches++
			}
		}
		if matches != 1 {
			v.addError("oneOf", fmt.Sprintf("value matches %d schemas, expected exactly one", matches), 1, matches)
		}
	}

	if schema.Not != nil && v.passes(value, schema.Not) {
		v.addError("not", "value matches the schema it must not match", nil, nil)
	}
}

func (v *Validator) applyConditional(value any, schema *Schema) {
	if schema.If == nil {
		return
	}
	if v.passes(value, schema.If) {
		if schema.Then != nil {
			v.walk(value, schema.Then)
		}
	} else if schema.Else != nil {
		v.walk(value, schema.Else)
	}
}

func (v *Validator) validateString(s string, schema *Schema) {
	length := utf8.RuneCountInString(s)

	if schema.MinLength != nil && length < *schema.MinLength {
		v.addError("minLength", fmt.Sprintf("string is shorter than %d characters", *schema.MinLength), *schema.MinLength, length)
	}
	if schema.MaxLength != nil && length > *schema.MaxLength {
		v.addError("maxLength", fmt.Sprintf("string is longer than %d characters", *schema.MaxLength), *schema.MaxLength, length)
	}

	if schema.Pattern != "" {
		// An invalid pattern means the rule does not apply, never an error.
		if re, err := regexp.Compile(schema.Pattern); err == nil && !re.MatchString(s) {
			v.addError("pattern", fmt.Sprintf("string does not match pattern %q", schema.Pattern), schema.Pattern, s)
		}
	}

	if schema.Format != "" && !formatOK(schema.Format, s) {
		v.addError("format", fmt.Sprintf("string is not a valid %s", schema.Format), schema.Format, s)
	}
}

var uriSchemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)

func formatOK(format, s string) bool {
	switch format {
	case "date":
		_, err := time.Parse("2006-01-02", s)
		return err == nil
	case "date-time":
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return true
		}
		_, err := time.Parse("2006-01-02T15:04:05", s)
		return err == nil
	case "email":
		at := strings.IndexByte(s, '@')
		return at > 0 && at < len(s)-1 &&
			strings.Count(s, "@") == 1 &&
			!strings.ContainsAny(s, " \t\n")
	case "uri":
		return uriSchemeRe.MatchString(s)
	case "uuid":
		if len(s) != 36 {
			return false
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return false
		}
		return u.Variant() == uuid.RFC4122 && u.Version() >= 1 && u.Version() <= 5
	default:
		// Unknown formats are not validated.
		return true
	}
}

func (v *Validator) validateNumber(f float64, schema *Schema) {
	if schema.Minimum != nil && f < *schema.Minimum {
		v.addError("minimum", fmt.Sprintf("value is less than %v", *schema.Minimum), *schema.Minimum, f)
	}
	if schema.Maximum != nil && f > *schema.Maximum {
		v.addError("maximum", fmt.Sprintf("value is greater than %v", *schema.Maximum), *schema.Maximum, f)
	}
	if schema.ExclusiveMinimum != nil && f <= *schema.ExclusiveMinimum {
		v.addError("exclusiveMinimum", fmt.Sprintf("value is not greater than %v", *schema.ExclusiveMinimum), *schema.ExclusiveMinimum, f)
	}
	if schema.ExclusiveMaximum != nil && f >= *schema.ExclusiveMaximum {
		v.addError("exclusiveMaximum", fmt.Sprintf("value is not less than %v", *schema.ExclusiveMaximum), *schema.ExclusiveMaximum, f)
	}

	if schema.MultipleOf != nil && *schema.MultipleOf != 0 {
		// Tolerance absorbs binary floating-point error on either side of
		// the divisor.
		rem := math.Abs(math.Mod(f, *schema.MultipleOf))
		if rem > 1e-10 && math.Abs(rem-math.Abs(*schema.MultipleOf)) > 1e-10 {
			v.addError("multipleOf", fmt.Sprintf("value is not a multiple of %v", *schema.MultipleOf), *schema.MultipleOf, f)
		}
	}
}

func (v *Validator) validateObject(m map[string]any, schema *Schema) {
	for _, key := range schema.Required {
		if _, ok := m[key]; !ok {
			v.push(key)
			v.addError("required", fmt.Sprintf("missing required property %q", key), key, nil)
			v.pop()
		}
	}

	if schema.PropertyNames != nil {
		for key := range m {
			// One error per offending key, not one per inner failure.
			if !v.passes(key, schema.PropertyNames) {
				v.addError("propertyNames", fmt.Sprintf("property name %q is not valid", key), nil, key)
			}
		}
	}

	for key, sub := range schema.Properties {
		if val, ok := m[key]; ok {
			v.push(key)
			v.walk(val, sub)
			v.pop()
		}
	}

	for pattern, sub := range schema.PatternProperties {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		for key, val := range m {
			if re.MatchString(key) {
				v.push(key)
				v.walk(val, sub)
				v.pop()
			}
		}
	}

	if schema.AdditionalProperties != nil {
		for key, val := range m {
			if _, declared := schema.Properties[key]; declared {
				continue
			}
			if matchesAnyPattern(key, schema.PatternProperties) {
				continue
			}
			if schema.AdditionalProperties.Schema != nil {
				v.push(key)
				v.walk(val, schema.AdditionalProperties.Schema)
				v.pop()
			} else if !schema.AdditionalProperties.Allowed() {
				v.push(key)
				v.addError("additionalProperties", fmt.Sprintf("additional property %q is not allowed", key), nil, key)
				v.pop()
			}
		}
	}
}

func matchesAnyPattern(key string, patterns map[string]*Schema) bool {
	for pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

func (v *Validator) validateArray(a []any, schema *Schema) {
	if schema.MinItems != nil && len(a) < *schema.MinItems {
		v.addError("minItems", fmt.Sprintf("array has fewer than %d items", *schema.MinItems), *schema.MinItems, len(a))
	}
	if schema.MaxItems != nil && len(a) > *schema.MaxItems {
		v.addError("maxItems", fmt.Sprintf("array has more than %d items", *schema.MaxItems), *schema.MaxItems, len(a))
	}

	if schema.UniqueItems {
		seen := make(map[string]int, len(a))
		for i, el := range a {
			key := jsonext.Canonical(el)
			if first, dup := seen[key]; dup {
				v.addError("uniqueItems", fmt.Sprintf("items %d and %d are equal", first, i), nil, el)
				break
			}
			seen[key] = i
		}
	}

	if schema.Contains != nil {
		found := false
		for _, el := range a {
			if v.passes(el, schema.Contains) {
				found = true
				break
			}
		}
		if !found {
			v.addError("contains", "no item matches the contains schema", nil, nil)
		}
	}

	if schema.Items != nil {
		if schema.Items.Single != nil {
			for i, el := range a {
				v.push(strconv.Itoa(i))
				v.walk(el, schema.Items.Single)
				v.pop()
			}
		} else {
			// Positional tuple; elements beyond the tuple are unconstrained.
			n := min(len(a), len(schema.Items.Tuple))
			for i := range n {
				v.push(strconv.Itoa(i))
				v.walk(a[i], schema.Items.Tuple[i])
				v.pop()
			}
		}
	}
}

func (v *Validator) resolveRef(ref string) *Schema {
	if ref == "#" {
		return v.root
	}
	if name, ok := strings.CutPrefix(ref, "#/definitions/"); ok {
		if s, ok := v.defs[jsonPointerUnescape(name)]; ok {
			return s
		}
		return nil
	}
	if s, ok := v.defs[ref]; ok {
		return s
	}
	if path, ok := strings.CutPrefix(ref, "#/"); ok {
		return resolvePointer(v.root, path)
	}
	return nil
}

// resolvePointer walks a /-delimited JSON-pointer path over the schema
// tree.
func resolvePointer(root *Schema, path string) *Schema {
	current := root
	segments := strings.Split(path, "/")
	for i := 0; i < len(segments) && current != nil; i++ {
		seg := jsonPointerUnescape(segments[i])
		switch seg {
		case "definitions", "properties", "patternProperties":
			if i+1 >= len(segments) {
				return nil
			}
			i++
			key := jsonPointerUnescape(segments[i])
			switch seg {
			case "definitions":
				current = current.Definitions[key]
			case "properties":
				current = current.Properties[key]
			case "patternProperties":
				current = current.PatternProperties[key]
			}
		case "items":
			if current.Items == nil {
				return nil
			}
			if current.Items.Single != nil {
				current = current.Items.Single
				continue
			}
			if i+1 >= len(segments) {
				return nil
			}
			i++
			idx, err := strconv.Atoi(segments[i])
			if err != nil || idx < 0 || idx >= len(current.Items.Tuple) {
				return nil
			}
			current = current.Items.Tuple[idx]
		case "allOf", "anyOf", "oneOf":
			var list []*Schema
			switch seg {
			case "allOf":
				list = current.AllOf
			case "anyOf":
				list = current.AnyOf
			case "oneOf":
				list = current.OneOf
			}
			if i+1 >= len(segments) {
				return nil
			}
			i++
			idx, err := strconv.Atoi(segments[i])
			if err != nil || idx < 0 || idx >= len(list) {
				return nil
			}
			current = list[idx]
		case "not":
			current = current.Not
		case "if":
			current = current.If
		case "then":
			current = current.Then
		case "else":
			current = current.Else
		case "contains":
			current = current.Contains
		case "propertyNames":
			current = current.PropertyNames
		case "additionalProperties":
			if current.AdditionalProperties == nil {
				return nil
			}
			current = current.AdditionalProperties.Schema
		default:
			return nil
		}
	}
	return current
}

func jsonPointerUnescape(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	return strings.ReplaceAll(s, "~0", "~")
}

func (v *Validator) push(segment string) {
	v.path = append(v.path, segment)
}

func (v *Validator) pop() {
	v.path = v.path[:len(v.path)-1]
}

func (v *Validator) addError(keyword, message string, expected, actual any) {
	path := "(root)"
	if len(v.path) > 0 {
		path = strings.Join(v.path, ".")
	}
	v.errs = append(v.errs, ValidationError{
		Path:     path,
		Message:  message,
		Keyword:  keyword,
		Expected: expected,
		Actual:   actual,
	})
}

func typeMatches(types SchemaType, value any) bool {
	for _, t := range types {
		if shapeMatches(t, value) {
			return true
		}
	}
	return false
}

func shapeMatches(t string, value any) bool {
	switch t {
	case "null":
		return value == nil
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := jsonext.Float(value)
		return ok
	case "integer":
		return jsonext.IsIntegral(value)
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	}
	return false
}

func shapeOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if jsonext.IsIntegral(value) {
		return "integer"
	}
	if _, ok := jsonext.Float(value); ok {
		return "number"
	}
	return "unknown"
}

// deepEqual compares two values structurally, with numeric equality across
// Go numeric kinds and no other type coercion.
func deepEqual(a, b any) bool {
	if af, ok := jsonext.Float(a); ok {
		bf, ok := jsonext.Float(b)
		return ok && af == bf
	}

	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bval, ok := bv[k]
			if !ok || !deepEqual(v, bval) {
				return false
			}
		}
		return true
	}
	return false
}
