package formbind

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marcus/notecards/internal/markdown"
)

// Property is one frontmatter entry in document order.
type Property struct {
	Key   string
	Value any
	Raw   string // value as written, for editing
}

// ReadProperties returns the frontmatter entries of content in order.
func ReadProperties(content []byte) ([]Property, error) {
	front, _, ok := markdown.SplitFrontmatter(content)
	if !ok || len(bytes.TrimSpace(front)) == 0 {
		return nil, nil
	}
	mapping, _, err := parseMapping(front)
	if err != nil {
		return nil, err
	}

	props := make([]Property, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k, v := mapping.Content[i], mapping.Content[i+1]
		var value any
		if err := v.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k.Value, err)
		}
		props = append(props, Property{Key: k.Value, Value: value, Raw: rawValue(v)})
	}
	return props, nil
}

// SetProperty sets key to value, keeping the order of existing keys and
// appending new ones. Content without frontmatter gains a block.
func SetProperty(content []byte, key string, value any) ([]byte, error) {
	front, body, ok := markdown.SplitFrontmatter(content)

	doc := &yaml.Node{Kind: yaml.DocumentNode}
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if ok && len(bytes.TrimSpace(front)) > 0 {
		var err error
		mapping, doc, err = parseMapping(front)
		if err != nil {
			return nil, err
		}
	} else {
		doc.Content = []*yaml.Node{mapping}
		if !ok {
			body = content
		}
	}

	valNode := &yaml.Node{}
	if err := valNode.Encode(value); err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	plainDates(valNode)

	replaced := false
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = valNode
			replaced = true
			break
		}
	}
	if !replaced {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
		mapping.Content = append(mapping.Content, keyNode, valNode)
	}

	return assemble(doc, body)
}

// DeleteProperty removes key. It reports whether the key existed.
func DeleteProperty(content []byte, key string) ([]byte, bool, error) {
	front, body, ok := markdown.SplitFrontmatter(content)
	if !ok || len(bytes.TrimSpace(front)) == 0 {
		return content, false, nil
	}
	mapping, doc, err := parseMapping(front)
	if err != nil {
		return nil, false, err
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			out, err := assemble(doc, body)
			return out, true, err
		}
	}
	return content, false, nil
}

// ParseValue reads form input as a YAML scalar or flow collection, so
// "3" becomes a number and "[a, b]" a list. Dates stay text so they are
// written back as typed. Anything unparsable stays text.
func ParseValue(input string) any {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil || len(doc.Content) == 0 {
		return input
	}
	root := doc.Content[0]
	if root.Kind == yaml.MappingNode || root.ShortTag() == nullTag {
		return input
	}
	retag(root, timestampTag, strTag)

	var v any
	if err := root.Decode(&v); err != nil || v == nil {
		return input
	}
	return v
}

const (
	nullTag      = "!!null"
	strTag       = "!!str"
	timestampTag = "!!timestamp"
)

// retag rewrites the tag of every scalar under n tagged from.
func retag(n *yaml.Node, from, to string) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == from {
		n.Tag = to
		n.Style = 0
	}
	for _, c := range n.Content {
		retag(c, from, to)
	}
}

// plainDates turns string scalars holding a YAML date back into plain
// dates, so "2026-11-01" is written unquoted.
func plainDates(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == strTag && isDate(n.Value) {
		n.Tag = timestampTag
		n.Style = 0
	}
	for _, c := range n.Content {
		plainDates(c)
	}
}

func isDate(s string) bool {
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(s), &n); err != nil || len(n.Content) != 1 {
		return false
	}
	c := n.Content[0]
	return c.Kind == yaml.ScalarNode && c.Style == 0 && c.ShortTag() == timestampTag
}

func parseMapping(front []byte) (*yaml.Node, *yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(front, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("parse frontmatter: not a mapping")
	}
	return doc.Content[0], &doc, nil
}

func assemble(doc *yaml.Node, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	if len(doc.Content) > 0 && len(doc.Content[0].Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}
	buf.WriteString("---\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

func rawValue(n *yaml.Node) string {
	if n.Kind == yaml.ScalarNode {
		return n.Value
	}
	out, err := yaml.Marshal(n)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(out))
}

// writeFileAtomic replaces path with data via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	info, err := os.Stat(path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".formbind-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
