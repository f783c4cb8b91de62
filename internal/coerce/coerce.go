// Package coerce converts loose JSON-decoded argument maps into typed
// values per a tool or resource's declared parameter list, applying
// defaults before coercion runs.
package coerce

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	domainerrors "github.com/mcprt/server/internal/errors"
	"github.com/mcprt/server/internal/schema"
)

const domainName = "coerce"

// Sentinel error kinds, wrapped into DomainError following this codebase's
// sentinel+wrap idiom.
var (
	ErrInvalidArgumentType    = domainerrors.ErrBadRequest
	ErrMissingRequiredParam   = domainerrors.ErrBadRequest
	ErrInvalidEnumValue       = domainerrors.ErrBadRequest
)

// ParameterDescriptor describes one named parameter accepted by a tool,
// resource template, or prompt.
type ParameterDescriptor struct {
	Name       string
	Schema     schema.Schema
	Required   bool
	Default    any
	HasDefault bool
}

// Enrich fills in declared defaults for keys absent from args, returning a
// new map. It does not itself enforce required-ness; Extract does that at
// read time so the error always names the specific missing parameter.
func Enrich(args map[string]any, params []ParameterDescriptor) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, p := range params {
		if _, present := out[p.Name]; !present && p.HasDefault {
			out[p.Name] = p.Default
		}
	}
	return out
}

// MissingRequiredParameter builds the sentinel-wrapped error for an absent,
// default-less required parameter.
func MissingRequiredParameter(name string) error {
	return domainerrors.New(domainName, "Extract", ErrMissingRequiredParam, fmt.Errorf("missing required parameter")).
		WithContext("parameter", name)
}

// InvalidArgumentType builds the sentinel-wrapped error for a coercion
// mismatch.
func InvalidArgumentType(name, expected string, actual any) error {
	return domainerrors.New(domainName, "Extract", ErrInvalidArgumentType, fmt.Errorf("invalid argument type")).
		WithContext("parameter", name).
		WithContext("expected", expected).
		WithContext("actual", fmt.Sprintf("%v", actual))
}

// InvalidEnumValue builds the sentinel-wrapped error for an enum argument
// whose value does not match any declared case label.
func InvalidEnumValue(name string, labels []string, actual any) error {
	return domainerrors.New(domainName, "Extract", ErrInvalidEnumValue, fmt.Errorf("invalid enum value")).
		WithContext("parameter", name).
		WithContext("expected-labels", labels).
		WithContext("actual", fmt.Sprintf("%v", actual))
}

// Extract coerces a single named argument into a Go value of type T,
// following the target-kind coercion table. args should already have had
// Enrich applied.
func Extract[T any](args map[string]any, param ParameterDescriptor) (T, error) {
	var zero T
	raw, present := args[param.Name]
	if !present {
		if param.Required {
			return zero, MissingRequiredParameter(param.Name)
		}
		return zero, nil
	}

	coerced, err := coerceToSchema(param.Name, raw, param.Schema)
	if err != nil {
		return zero, err
	}

	typed, ok := coerced.(T)
	if !ok {
		return zero, InvalidArgumentType(param.Name, string(param.Schema.Kind), raw)
	}
	return typed, nil
}

// coerceToSchema applies the coercion table for a single schema kind.
func coerceToSchema(name string, raw any, s schema.Schema) (any, error) {
	switch s.Kind {
	case schema.KindNumber:
		return coerceNumber(name, raw)
	case schema.KindBoolean:
		return coerceBool(name, raw)
	case schema.KindString:
		if s.Format == "byte" {
			return coerceString(name, raw)
		}
		return coerceString(name, raw)
	case schema.KindEnum:
		return coerceEnum(name, raw, s.EnumValues)
	case schema.KindArray:
		return coerceArray(name, raw, *s.Items)
	case schema.KindObject:
		return coerceObject(name, raw)
	default:
		return raw, nil
	}
}

func coerceNumber(name string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, InvalidArgumentType(name, "number", raw)
		}
		return f, nil
	default:
		return 0, InvalidArgumentType(name, "number", raw)
	}
}

// CoerceInt additionally enforces that a float has no fractional part, per
// the integer-specific boundary case in the coercion table.
func CoerceInt(name string, raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, InvalidArgumentType(name, "integer", raw)
		}
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, InvalidArgumentType(name, "integer", raw)
		}
		return n, nil
	default:
		return 0, InvalidArgumentType(name, "integer", raw)
	}
}

func coerceBool(name string, raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, InvalidArgumentType(name, "boolean", raw)
	default:
		return false, InvalidArgumentType(name, "boolean", raw)
	}
}

func coerceString(name string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", InvalidArgumentType(name, "string", raw)
	}
	return s, nil
}

func coerceEnum(name string, raw any, labels []string) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", InvalidArgumentType(name, "enum", raw)
	}
	for _, label := range labels {
		if label == s {
			return s, nil
		}
	}
	return "", InvalidEnumValue(name, labels, raw)
}

func coerceArray(name string, raw any, elem schema.Schema) ([]any, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, InvalidArgumentType(name, "array", raw)
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		coerced, err := coerceToSchema(name, item, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, coerced)
	}
	return out, nil
}

func coerceObject(name string, raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	default:
		return nil, InvalidArgumentType(name, "object", raw)
	}
}

// ParseDate coerces an ISO-8601 string or numeric seconds-since-epoch into a
// time.Time, per the date row of the coercion table.
func ParseDate(name string, raw any) (time.Time, error) {
	switch v := raw.(type) {
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, InvalidArgumentType(name, "date", raw)
		}
		return t, nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	case time.Time:
		return v, nil
	default:
		return time.Time{}, InvalidArgumentType(name, "date", raw)
	}
}
