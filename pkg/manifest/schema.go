package manifest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/folio/internal/assets"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError is a single schema violation.
type ValidationError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	return e.Path + ": " + e.Message
}

var (
	schemaOnce     sync.Once
	manifestSchema *gojsonschema.Schema
	entrySchema    *gojsonschema.Schema
	schemaErr      error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compile := func(name string) (*gojsonschema.Schema, error) {
			data, err := assets.GetSchema(name)
			if err != nil {
				return nil, fmt.Errorf("embedded schema %s: %w", name, err)
			}
			return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		}
		manifestSchema, schemaErr = compile(assets.ManifestSchemaName)
		if schemaErr != nil {
			return
		}
		entrySchema, schemaErr = compile(assets.EntrySchemaName)
	})
	return schemaErr
}

func validate(schema *gojsonschema.Schema, data interface{}) ([]ValidationError, error) {
	result, err := schema.Validate(gojsonschema.NewGoLoader(jsonify(data)))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	var errs []ValidationError
	for _, verr := range result.Errors() {
		field := verr.Field()
		if field == "" || field == "(root)" {
			field = "root"
		}
		errs = append(errs, ValidationError{Path: field, Message: verr.Description()})
	}
	return errs, nil
}

// validateDocument checks the top-level structure of a decoded manifest.
func validateDocument(data interface{}) ([]ValidationError, error) {
	if err := loadSchemas(); err != nil {
		return nil, err
	}
	return validate(manifestSchema, data)
}

// validateEntry checks a single publish entry.
func validateEntry(data interface{}) ([]ValidationError, error) {
	if err := loadSchemas(); err != nil {
		return nil, err
	}
	return validate(entrySchema, data)
}

func joinValidation(errs []ValidationError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// jsonify converts YAML-decoded values into shapes encoding/json accepts.
func jsonify(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = jsonify(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonify(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = jsonify(val)
		}
		return out
	default:
		return v
	}
}
