package summary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var orderKeys = []string{"order", "summary", "chapters", "items"}

// LoadOrder reads a summary order manifest. Accepted forms are a YAML or
// JSON list, a map holding the list under order/summary/chapters/items,
// the same map in TOML, or plain text with one path per line.
func LoadOrder(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- order manifest named in publish.yml
	if err != nil {
		return nil, fmt.Errorf("read order manifest: %w", err)
	}
	return parseOrder(filepath.Ext(path), data), nil
}

func parseOrder(ext string, data []byte) []string {
	var doc interface{}
	switch strings.ToLower(ext) {
	case ".toml":
		var m map[string]interface{}
		if err := toml.Unmarshal(data, &m); err == nil {
			doc = m
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			doc = nil
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			doc = nil
		}
	}
	if entries := entriesFrom(doc); len(entries) > 0 {
		return entries
	}
	return parseOrderLines(string(data))
}

func entriesFrom(v interface{}) []string {
	var out []string
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]interface{}:
				for _, k := range []string{"path", "file", "src"} {
					if s, ok := it[k].(string); ok && s != "" {
						out = append(out, s)
						break
					}
				}
			}
		}
	case map[string]interface{}:
		for _, k := range orderKeys {
			switch nested := t[k].(type) {
			case []interface{}, map[string]interface{}:
				out = append(out, entriesFrom(nested)...)
			}
		}
	}
	return out
}

var inlineComment = regexp.MustCompile(`\s#.*$`)

func parseOrderLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		s = strings.TrimSpace(strings.TrimPrefix(s, "- "))
		s = strings.TrimSpace(inlineComment.ReplaceAllString(s, ""))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

var multiSlash = regexp.MustCompile(`/+`)

// NormalizeOrderKey lowercases p, converts separators to "/" and trims
// leading "./" and surrounding slashes.
func NormalizeOrderKey(p string) string {
	s := strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	s = multiSlash.ReplaceAllString(s, "/")
	s = strings.TrimPrefix(s, "./")
	return strings.ToLower(strings.Trim(s, "/"))
}

// orderIndex maps normalised keys to their first position.
type orderIndex map[string]int

func newOrderIndex(entries []string) orderIndex {
	idx := orderIndex{}
	for i, e := range entries {
		k := NormalizeOrderKey(e)
		if k == "" {
			continue
		}
		if _, seen := idx[k]; !seen {
			idx[k] = i
		}
	}
	return idx
}

// lookup tries p with and without the .md suffix and, for README/index
// files, the directory itself.
func (o orderIndex) lookup(p string) (int, bool) {
	if len(o) == 0 || p == "" {
		return 0, false
	}
	k := NormalizeOrderKey(p)
	candidates := []string{k, strings.TrimSuffix(k, ".md")}
	for _, suffix := range []string{"/readme.md", "/index.md", "/readme"} {
		if strings.HasSuffix(k, suffix) {
			candidates = append(candidates, strings.TrimSuffix(k, suffix))
		}
	}
	for _, c := range candidates {
		if i, ok := o[c]; ok && c != "" {
			return i, true
		}
	}
	return 0, false
}
