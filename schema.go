package loot

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"
)

// Schema describes the subset of JSON Schema the validator understands:
// type constraints, string/number/object/array rules, composition
// (allOf/anyOf/oneOf/not), conditionals (if/then/else), and reference
// resolution ($ref/definitions).
type Schema struct {
	Type        SchemaType `json:"type,omitempty"`
	Description string     `json:"description,omitempty"`

	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties *BoolOrSchema      `json:"additionalProperties,omitempty"`
	PatternProperties    map[string]*Schema `json:"patternProperties,omitempty"`
	PropertyNames        *Schema            `json:"propertyNames,omitempty"`

	Items       *Items  `json:"items,omitempty"`
	MinItems    *int    `json:"minItems,omitempty"`
	MaxItems    *int    `json:"maxItems,omitempty"`
	UniqueItems bool    `json:"uniqueItems,omitempty"`
	Contains    *Schema `json:"contains,omitempty"`

	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Format    string `json:"format,omitempty"`

	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"exclusiveMinimum,omitempty"`
	ExclusiveMaximum *float64 `json:"exclusiveMaximum,omitempty"`
	MultipleOf       *float64 `json:"multipleOf,omitempty"`

	Enum  []any `json:"enum,omitempty"`
	Const any   `json:"const,omitempty"`

	AllOf []*Schema `json:"allOf,omitempty"`
	AnyOf []*Schema `json:"anyOf,omitempty"`
	OneOf []*Schema `json:"oneOf,omitempty"`
	Not   *Schema   `json:"not,omitempty"`

	If   *Schema `json:"if,omitempty"`
	Then *Schema `json:"then,omitempty"`
	Else *Schema `json:"else,omitempty"`

	Ref         string             `json:"$ref,omitempty"`
	Definitions map[string]*Schema `json:"definitions,omitempty"`
}

// SchemaType holds the "type" keyword, which JSON Schema allows to be a
// single name or a list of names.
type SchemaType []string

// MarshalJSON writes a single type name as a bare string and multiple
// names as an array.
func (t SchemaType) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// UnmarshalJSON accepts either a bare string or an array of strings.
func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = SchemaType{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = SchemaType(many)
	return nil
}

// Contains reports whether name is one of the listed type names.
func (t SchemaType) Contains(name string) bool {
	return slices.Contains(t, name)
}

// BoolOrSchema holds the "additionalProperties" keyword, which is either a
// boolean or a nested schema. Exactly one of Bool and Schema is set.
type BoolOrSchema struct {
	Bool   *bool
	Schema *Schema
}

// MarshalJSON writes whichever side is set.
func (b BoolOrSchema) MarshalJSON() ([]byte, error) {
	if b.Bool != nil {
		return json.Marshal(*b.Bool)
	}
	return json.Marshal(b.Schema)
}

// UnmarshalJSON accepts a boolean or a schema object.
func (b *BoolOrSchema) UnmarshalJSON(data []byte) error {
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		b.Bool = &flag
		b.Schema = nil
		return nil
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b.Bool = nil
	b.Schema = &s
	return nil
}

// Allowed reports whether additional properties are permitted at all.
func (b *BoolOrSchema) Allowed() bool {
	return b == nil || b.Bool == nil || *b.Bool
}

// Items holds the "items" keyword: a single schema applied to every
// element, or a tuple of schemas applied positionally.
type Items struct {
	Single *Schema
	Tuple  []*Schema
}

// SingleItem wraps a schema as a non-tuple Items value.
func SingleItem(s *Schema) *Items {
	return &Items{Single: s}
}

// TupleItems wraps schemas as a positional Items value.
func TupleItems(schemas ...*Schema) *Items {
	return &Items{Tuple: schemas}
}

// MarshalJSON writes a single schema or a schema array.
func (it Items) MarshalJSON() ([]byte, error) {
	if it.Single != nil {
		return json.Marshal(it.Single)
	}
	return json.Marshal(it.Tuple)
}

// UnmarshalJSON accepts a schema object or an array of schemas.
func (it *Items) UnmarshalJSON(data []byte) error {
	var tuple []*Schema
	if err := json.Unmarshal(data, &tuple); err == nil {
		it.Single = nil
		it.Tuple = tuple
		return nil
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	it.Single = &s
	it.Tuple = nil
	return nil
}

// SchemaToMap converts a Schema to its plain map representation, the shape
// callers need when embedding it in a larger JSON document.
func SchemaToMap(s *Schema) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// ParseSchema parses a JSON Schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SchemaFor generates a Schema from a Go type, so extracted values can be
// validated against the struct they will eventually be decoded into.
// Field names come from json tags (falling back to snake_case), omitempty
// makes a field optional, and `description`/`enum` tags carry through.
func SchemaFor[T any]() *Schema {
	var v T
	s := generateSchema(reflect.TypeOf(v), nil, make(map[reflect.Type]bool))
	return &s
}

func generateSchema(t, parent reflect.Type, visited map[reflect.Type]bool) Schema {
	if t == nil {
		return Schema{Type: SchemaType{"object"}}
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if visited[t] {
		return Schema{Type: SchemaType{"object"}}
	}
	visited[t] = true
	defer delete(visited, t)

	switch t.Kind() {
	case reflect.String:
		return Schema{Type: SchemaType{"string"}}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Schema{Type: SchemaType{"integer"}}
	case reflect.Float32, reflect.Float64:
		return Schema{Type: SchemaType{"number"}}
	case reflect.Bool:
		return Schema{Type: SchemaType{"boolean"}}
	case reflect.Slice, reflect.Array:
		itemSchema := generateSchema(t.Elem(), t, visited)
		return Schema{
			Type:  SchemaType{"array"},
			Items: SingleItem(&itemSchema),
		}
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			valueSchema := generateSchema(t.Elem(), t, visited)
			return Schema{
				Type: SchemaType{"object"},
				AdditionalProperties: &BoolOrSchema{
					Schema: &valueSchema,
				},
			}
		}
		return Schema{Type: SchemaType{"object"}}
	case reflect.Struct:
		schema := Schema{
			Type:       SchemaType{"object"},
			Properties: make(map[string]*Schema),
		}

		for i := range t.NumField() {
			field := t.Field(i)

			if !field.IsExported() {
				continue
			}

			jsonTag := field.Tag.Get("json")
			if jsonTag == "-" {
				continue
			}

			fieldName := field.Name
			required := true

			if jsonTag != "" {
				parts := strings.Split(jsonTag, ",")
				if parts[0] != "" {
					fieldName = parts[0]
				}

				if slices.Contains(parts[1:], "omitempty") {
					required = false
				}
			} else {
				fieldName = toSnakeCase(fieldName)
			}

			fieldSchema := generateSchema(field.Type, t, visited)

			if desc := field.Tag.Get("description"); desc != "" {
				fieldSchema.Description = desc
			}

			if enumTag := field.Tag.Get("enum"); enumTag != "" {
				enumValues := strings.Split(enumTag, ",")
				fieldSchema.Enum = make([]any, len(enumValues))
				for i, v := range enumValues {
					fieldSchema.Enum[i] = strings.TrimSpace(v)
				}
			}

			schema.Properties[fieldName] = &fieldSchema

			if required {
				schema.Required = append(schema.Required, fieldName)
			}
		}

		return schema
	case reflect.Interface:
		return Schema{Type: SchemaType{"object"}}
	default:
		return Schema{Type: SchemaType{"object"}}
	}
}

func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteByte('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
