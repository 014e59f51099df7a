package util

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ValidationError describes the first schema violation found in a set of
// tool arguments.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives a JSON object schema from a Go struct using reflection.
// Non-pointer fields without omitempty become required in declaration order.
// The struct tags `description` and `default` are copied into the property.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	properties := make(map[string]any)
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}
		name := field.Name
		if parts := strings.Split(jsonTag, ","); parts[0] != "" {
			name = parts[0]
		}

		jsonType := getJSONType(field.Type)
		prop := map[string]any{"type": jsonType}
		if d := field.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		if d, ok := field.Tag.Lookup("default"); ok {
			prop["default"] = parseDefault(d, jsonType)
		}
		properties[name] = prop

		if !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr {
			required = append(required, name)
		}
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RequiredFields returns the schema's required list in declared order. Both
// []string (Go-built schemas) and []any (JSON-decoded schemas) are accepted.
func RequiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ValidateParameters validates params against a JSON object schema and returns
// the first violation. Checks run in a fixed order so the reported violation
// is deterministic: missing required fields in schema order, then type
// mismatches in sorted field order, then fields absent from the schema
// (unless "additionalProperties" is true). null satisfies only optional
// fields; a required field sent as null is a type mismatch.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	required := make(map[string]bool)
	for _, name := range RequiredFields(schema) {
		if _, ok := params[name]; !ok {
			return &ValidationError{Field: name, Message: "required field is missing"}
		}
		required[name] = true
	}

	properties, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var extra []string
	for _, name := range names {
		prop, ok := properties[name]
		if !ok {
			extra = append(extra, name)
			continue
		}
		propMap, ok := prop.(map[string]any)
		if !ok {
			continue
		}
		expected, _ := propMap["type"].(string)
		if params[name] == nil && required[name] {
			return &ValidationError{Field: name, Message: fmt.Sprintf("expected type %s, got null", expected)}
		}
		if !isValidType(params[name], expected) {
			return &ValidationError{
				Field:   name,
				Value:   params[name],
				Message: fmt.Sprintf("expected type %s, got %T", expected, params[name]),
			}
		}
	}

	if allow, _ := schema["additionalProperties"].(bool); !allow && len(extra) > 0 {
		return &ValidationError{Field: extra[0], Value: params[extra[0]], Message: "unexpected field"}
	}
	return nil
}

// ApplyDefaults fills absent or null optional fields from their schema
// "default".
// The input map is not modified.
func ApplyDefaults(params map[string]any, schema map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	properties, _ := schema["properties"].(map[string]any)
	for name, prop := range properties {
		if v, ok := out[name]; ok && v != nil {
			continue
		}
		if propMap, ok := prop.(map[string]any); ok {
			if d, ok := propMap["default"]; ok {
				out[name] = d
			}
		}
	}
	return out
}

func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

func parseDefault(raw, jsonType string) any {
	switch jsonType {
	case "integer":
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return float64(n)
		}
	case "number":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case "boolean":
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	}
	return raw
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isValidType checks a decoded JSON value against a JSON schema type name.
// null is accepted for any type; ValidateParameters rejects it for
// required fields.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}
	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
