// Package schema provides the algebraic JSON-Schema model used to describe
// tool, resource, and prompt parameters and return types.
//
// A Schema is a tagged union rather than a type hierarchy: callers switch on
// Kind instead of type-asserting interfaces, matching the flat-struct style
// the rest of this codebase uses for wire types.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Kind discriminates the variant of a Schema.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindEnum    Kind = "enum"
	KindOneOf   Kind = "oneOf"
)

// Schema is the algebraic JSON-Schema representation described in the data
// model: a tagged union carrying only the fields relevant to its Kind.
type Schema struct {
	Kind        Kind
	Title       string
	Description string
	Format      string
	Default     any
	HasDefault  bool

	// KindArray
	Items *Schema

	// KindObject
	Properties     []Property
	RequiredFields []string

	// KindEnum
	EnumValues []string

	// KindOneOf
	Variants []Schema
}

// Property is one named, ordered field of an object schema.
type Property struct {
	Name   string
	Schema Schema
}

// Describer lets a type supply its own schema instead of falling back to
// reflection. A code generator can emit these for exported types; a type
// may also implement it by hand.
type Describer interface {
	Schema() Schema
}

// String, Number, Boolean build the three scalar schemas.
func String(description string) Schema  { return Schema{Kind: KindString, Description: description} }
func Number(description string) Schema  { return Schema{Kind: KindNumber, Description: description} }
func Boolean(description string) Schema { return Schema{Kind: KindBoolean, Description: description} }

// Bytes builds a base64-encoded byte-buffer schema: string with format=byte.
func Bytes(description string) Schema {
	return Schema{Kind: KindString, Description: description, Format: "byte"}
}

// Array builds an array schema over the given item schema.
func Array(items Schema) Schema {
	return Schema{Kind: KindArray, Items: &items}
}

// Object builds an object schema. required must be a subset of the property
// names; property order is preserved because it affects client presentation.
func Object(properties []Property, required []string) Schema {
	return Schema{Kind: KindObject, Properties: properties, RequiredFields: required}
}

// Enum builds an enum schema from its canonical case labels. values must be
// non-empty per the data model invariant.
func Enum(values []string) Schema {
	if len(values) == 0 {
		panic("schema: enum must have at least one value")
	}
	return Schema{Kind: KindEnum, EnumValues: values}
}

// OneOf builds a tagged-union schema over its variants.
func OneOf(variants ...Schema) Schema {
	return Schema{Kind: KindOneOf, Variants: variants}
}

// WithDefault returns a copy of s carrying the given default value. The
// caller is responsible for the type-compatibility invariant.
func (s Schema) WithDefault(value any) Schema {
	s.Default = value
	s.HasDefault = true
	return s
}

// MergeDefault returns a schema identical to s but with its default value
// set (or replaced).
func MergeDefault(s Schema, value any) Schema {
	return s.WithDefault(value)
}

// WithoutRequired strips the required list, used to build "output schema"
// shapes where every field is present on the wire but not contractually
// required by it.
func WithoutRequired(s Schema) Schema {
	if s.Kind != KindObject {
		return s
	}
	s.RequiredFields = nil
	return s
}

// ForType derives a Schema for an arbitrary Go value following the
// derivation rules in the data model: Describer dispatch first, then a
// reflect.Kind switch, with string as the final fallback for anything
// unrecognized.
func ForType(v any, description string) Schema {
	if d, ok := v.(Describer); ok {
		s := d.Schema()
		if description != "" {
			s.Description = description
		}
		return s
	}
	return forReflectType(reflect.TypeOf(v), description)
}

func forReflectType(t reflect.Type, description string) Schema {
	if t == nil {
		return String(description)
	}

	// Nullable/optional wrappers: the wrapped schema, required flag cleared
	// by the caller (ParameterDescriptor.Required), not here.
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Number(description)
	case reflect.Bool:
		return Boolean(description)
	case reflect.String:
		return String(description)
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return Bytes(description)
		}
		items := forReflectType(t.Elem(), "")
		s := Array(items)
		s.Description = description
		return s
	case reflect.Struct:
		return structSchema(t, description)
	case reflect.Map:
		return Schema{Kind: KindObject, Description: description}
	default:
		return String(description)
	}
}

// structSchema derives an object schema from a struct's exported fields,
// preserving declaration order. A field is required unless it is a pointer
// or carries `json:",omitempty"`.
func structSchema(t reflect.Type, description string) Schema {
	var props []Property
	var required []string

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		name, omitempty := jsonFieldName(f)
		if name == "-" {
			continue
		}
		fieldSchema := forReflectType(f.Type, "")
		props = append(props, Property{Name: name, Schema: fieldSchema})
		if f.Type.Kind() != reflect.Ptr && !omitempty {
			required = append(required, name)
		}
	}

	s := Object(props, required)
	s.Description = description
	return s
}

func jsonFieldName(f reflect.StructField) (name string, omitempty bool) {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name, false
	}
	parts := splitComma(tag)
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

// WrapStructuredArray implements the return-type projection rule: an array
// of structured-object elements is wrapped as object{items: array} so
// clients see a structured output envelope. Arrays of primitives and arrays
// of content-block variants are returned unchanged.
func WrapStructuredArray(elem Schema) Schema {
	if elem.Kind != KindObject {
		return Array(elem)
	}
	return Object([]Property{{Name: "items", Schema: Array(elem)}}, []string{"items"})
}

// jsonSchemaDoc is the wire shape emitted by MarshalJSON; it mirrors draft-7
// JSON Schema closely enough for MCP clients.
type jsonSchemaDoc struct {
	Type                 string                    `json:"type,omitempty"`
	Title                string                    `json:"title,omitempty"`
	Description          string                    `json:"description,omitempty"`
	Format               string                    `json:"format,omitempty"`
	Default              any                       `json:"default,omitempty"`
	Items                *jsonSchemaDoc            `json:"items,omitempty"`
	Properties           map[string]jsonSchemaDoc  `json:"properties,omitempty"`
	PropertyOrder        []string                  `json:"-"`
	Required             []string                  `json:"required,omitempty"`
	Enum                 []string                  `json:"enum,omitempty"`
	OneOf                []jsonSchemaDoc           `json:"oneOf,omitempty"`
}

// MarshalJSON renders the schema as a JSON-Schema document.
func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toDoc())
}

func (s Schema) toDoc() jsonSchemaDoc {
	doc := jsonSchemaDoc{
		Title:       s.Title,
		Description: s.Description,
		Format:      s.Format,
	}
	if s.HasDefault {
		doc.Default = s.Default
	}

	switch s.Kind {
	case KindString:
		doc.Type = "string"
	case KindNumber:
		doc.Type = "number"
	case KindBoolean:
		doc.Type = "boolean"
	case KindArray:
		doc.Type = "array"
		if s.Items != nil {
			sub := s.Items.toDoc()
			doc.Items = &sub
		}
	case KindObject:
		doc.Type = "object"
		if len(s.Properties) > 0 {
			doc.Properties = make(map[string]jsonSchemaDoc, len(s.Properties))
			for _, p := range s.Properties {
				doc.Properties[p.Name] = p.Schema.toDoc()
			}
		}
		doc.Required = s.RequiredFields
	case KindEnum:
		doc.Type = "string"
		doc.Enum = s.EnumValues
	case KindOneOf:
		for _, v := range s.Variants {
			doc.OneOf = append(doc.OneOf, v.toDoc())
		}
	}
	return doc
}

// UnmarshalJSON restores a Schema from its JSON-Schema document, enough to
// make schema -> JSON -> schema a round trip for every schema this engine
// emits (object property order is not recoverable from a plain JSON object,
// so callers that need order-preserving round trips should keep the
// original Schema rather than re-derive it from JSON).
func (s *Schema) UnmarshalJSON(data []byte) error {
	var doc jsonSchemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("schema: decode: %w", err)
	}
	*s = fromDoc(doc)
	return nil
}

func fromDoc(doc jsonSchemaDoc) Schema {
	out := Schema{
		Title:       doc.Title,
		Description: doc.Description,
		Format:      doc.Format,
		Default:     doc.Default,
		HasDefault:  doc.Default != nil,
	}
	switch {
	case len(doc.Enum) > 0:
		out.Kind = KindEnum
		out.EnumValues = doc.Enum
	case len(doc.OneOf) > 0:
		out.Kind = KindOneOf
		for _, v := range doc.OneOf {
			out.Variants = append(out.Variants, fromDoc(v))
		}
	case doc.Type == "array":
		out.Kind = KindArray
		if doc.Items != nil {
			sub := fromDoc(*doc.Items)
			out.Items = &sub
		}
	case doc.Type == "object":
		out.Kind = KindObject
		names := make([]string, 0, len(doc.Properties))
		for name := range doc.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out.Properties = append(out.Properties, Property{Name: name, Schema: fromDoc(doc.Properties[name])})
		}
		out.RequiredFields = doc.Required
	case doc.Type == "boolean":
		out.Kind = KindBoolean
	case doc.Type == "number":
		out.Kind = KindNumber
	default:
		out.Kind = KindString
	}
	return out
}
