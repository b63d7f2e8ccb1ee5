package typeset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulmenhq/folio/pkg/logger"
)

// Environment variables carrying typesetter default overrides.
const (
	EnvDefaultsJSON = "FOLIO_PANDOC_DEFAULTS_JSON"
	EnvDefaultsFile = "FOLIO_PANDOC_DEFAULTS_FILE"
)

// LoadOverrides reads the override document from the inline variable or,
// failing that, the file variable. Unusable documents are logged and
// ignored.
func LoadOverrides(getenv func(string) string) map[string]interface{} {
	if inline := getenv(EnvDefaultsJSON); inline != "" {
		doc, err := decodeOverrides([]byte(inline))
		if err == nil {
			return doc
		}
		logger.Warn("ignoring "+EnvDefaultsJSON, logger.Err(err))
	}
	if path := getenv(EnvDefaultsFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("ignoring "+EnvDefaultsFile, logger.String("path", path), logger.Err(err))
			return nil
		}
		doc, err := decodeOverrides(data)
		if err != nil {
			logger.Warn("ignoring "+EnvDefaultsFile, logger.String("path", path), logger.Err(err))
			return nil
		}
		return doc
	}
	return nil
}

func decodeOverrides(data []byte) (map[string]interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return doc, nil
}

// ApplyOverrides merges raw into a copy of d.
//
// Sequences (lua_filters, extra_args) take a plain list, which replaces,
// or an object with replace, prepend, append and remove. Maps
// (metadata, variables) take an optional replace block followed by per-key
// updates: null deletes, a scalar or list sets, and for metadata an
// object merges like a sequence.
func ApplyOverrides(d Defaults, raw map[string]interface{}) Defaults {
	out := d.Clone()
	if len(raw) == 0 {
		return out
	}
	if v, ok := raw["lua_filters"]; ok {
		if seq, err := mergeSequence(out.LuaFilters, v); err == nil {
			out.LuaFilters = seq
		} else {
			logger.Warn("invalid lua_filters override", logger.Err(err))
		}
	}
	if v, ok := raw["metadata"]; ok {
		out.Metadata = mergeMetadata(out.Metadata, v)
	}
	if v, ok := raw["variables"]; ok {
		out.Variables = mergeVariables(out.Variables, v)
	}
	if v, ok := raw["header_path"]; ok {
		out.HeaderPath = ""
		if v != nil {
			out.HeaderPath = fmt.Sprint(v)
		}
	}
	if v, ok := raw["pdf_engine"]; ok {
		out.PDFEngine = ""
		if s, ok := v.(string); ok {
			out.PDFEngine = s
		}
	}
	if v, ok := raw["extra_args"]; ok {
		if seq, err := mergeSequence(out.ExtraArgs, v); err == nil {
			out.ExtraArgs = seq
		} else {
			logger.Warn("invalid extra_args override", logger.Err(err))
		}
	}
	return out
}

func coerceSequence(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	case map[string]interface{}:
		return nil, fmt.Errorf("a mapping cannot be used as a list")
	default:
		return []string{fmt.Sprint(t)}, nil
	}
}

func mergeSequence(base []string, override interface{}) ([]string, error) {
	values := append([]string(nil), base...)
	if override == nil {
		return values, nil
	}
	ops, ok := override.(map[string]interface{})
	if !ok {
		return coerceSequence(override)
	}
	if r, ok := ops["replace"]; ok {
		return coerceSequence(r)
	}
	if p, ok := ops["prepend"]; ok {
		pre, err := coerceSequence(p)
		if err != nil {
			return nil, err
		}
		values = append(pre, values...)
	}
	if a, ok := ops["append"]; ok {
		app, err := coerceSequence(a)
		if err != nil {
			return nil, err
		}
		values = append(values, app...)
	}
	if r, ok := ops["remove"]; ok {
		rm, err := coerceSequence(r)
		if err != nil {
			return nil, err
		}
		drop := make(map[string]bool, len(rm))
		for _, s := range rm {
			drop[s] = true
		}
		kept := values[:0]
		for _, s := range values {
			if !drop[s] {
				kept = append(kept, s)
			}
		}
		values = kept
	}
	return values, nil
}

func mergeMetadata(base map[string][]string, override interface{}) map[string][]string {
	ops, ok := override.(map[string]interface{})
	if !ok {
		if override != nil {
			logger.Warn("metadata override must be an object")
		}
		return base
	}
	result := base
	if block, ok := ops["replace"].(map[string]interface{}); ok {
		result = make(map[string][]string, len(block))
		for k, v := range block {
			if seq, err := coerceSequence(v); err == nil {
				result[k] = seq
			}
		}
	}
	for k, v := range ops {
		if k == "replace" {
			continue
		}
		if v == nil {
			delete(result, k)
			continue
		}
		var seq []string
		var err error
		if _, isMap := v.(map[string]interface{}); isMap {
			seq, err = mergeSequence(result[k], v)
		} else {
			seq, err = coerceSequence(v)
		}
		if err != nil {
			logger.Warn("invalid metadata override", logger.String("key", k), logger.Err(err))
			continue
		}
		result[k] = seq
	}
	return result
}

func mergeVariables(base map[string]string, override interface{}) map[string]string {
	ops, ok := override.(map[string]interface{})
	if !ok {
		if override != nil {
			logger.Warn("variables override must be an object")
		}
		return base
	}
	result := base
	if block, ok := ops["replace"].(map[string]interface{}); ok {
		result = make(map[string]string, len(block))
		for k, v := range block {
			result[k] = fmt.Sprint(v)
		}
	}
	for k, v := range ops {
		switch t := v.(type) {
		case nil:
			if k != "replace" {
				delete(result, k)
			}
		case map[string]interface{}:
			if k != "replace" {
				logger.Warn("nested variable overrides are not supported", logger.String("key", k))
			}
		case []interface{}:
			seq, _ := coerceSequence(t)
			result[k] = joinList(seq)
		default:
			if k != "replace" {
				result[k] = fmt.Sprint(t)
			}
		}
	}
	return result
}

func joinList(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
