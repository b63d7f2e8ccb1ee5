package manifest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/folio/pkg/safeio"
	"gopkg.in/yaml.v3"
)

// SetBuildAt sets the build flag of the entry at index and reports
// whether the stored value changed.
func (m *Manifest) SetBuildAt(index int, build bool) bool {
	if index < 0 || index >= len(m.items) {
		return false
	}
	item := m.items[index]
	if item.Kind != yaml.MappingNode {
		return false
	}

	want := "false"
	if build {
		want = "true"
	}
	if v := mappingValue(item, "build"); v != nil {
		if cur, err := AsBool(scalarValue(v)); err == nil && cur == build {
			return false
		}
		v.Kind = yaml.ScalarNode
		v.Tag = "!!bool"
		v.Style = 0
		v.Value = want
		v.Content = nil
	} else {
		if !build {
			return false
		}
		item.Content = append(item.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "build"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: want},
		)
	}

	if fields, ok := m.entries[index].(map[string]interface{}); ok {
		fields["build"] = build
	}
	return true
}

// SetBuild sets the build flag on every entry whose path equals
// entryPath after cleaning. It reports whether any value changed.
func (m *Manifest) SetBuild(entryPath string, build bool) bool {
	want := filepath.ToSlash(filepath.Clean(entryPath))
	changed := false
	for i, raw := range m.entries {
		fields, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if filepath.ToSlash(filepath.Clean(str(fields["path"]))) != want {
			continue
		}
		if m.SetBuildAt(i, build) {
			changed = true
		}
	}
	return changed
}

func scalarValue(n *yaml.Node) interface{} {
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return n.Value
	}
	return v
}

// Marshal renders the manifest. Keys starting with "_" are dropped at
// the top level and inside publish entries.
func (m *Manifest) Marshal() ([]byte, error) {
	dropPrivateKeys(m.root)
	for _, item := range m.items {
		dropPrivateKeys(item)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.doc); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the manifest back to the file it was loaded from.
func (m *Manifest) Save() error {
	return m.SaveTo(m.Path)
}

// SaveTo writes the manifest atomically to path.
func (m *Manifest) SaveTo(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := safeio.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}

func dropPrivateKeys(n *yaml.Node) {
	if n == nil || n.Kind != yaml.MappingNode {
		return
	}
	kept := n.Content[:0]
	for i := 0; i+1 < len(n.Content); i += 2 {
		if strings.HasPrefix(n.Content[i].Value, "_") {
			continue
		}
		kept = append(kept, n.Content[i], n.Content[i+1])
	}
	n.Content = kept
}
