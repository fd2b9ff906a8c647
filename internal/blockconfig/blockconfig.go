// Package blockconfig parses the body of a cards code block into a query
// and its rendering options.
//
// Two layouts are accepted. The query first, then a line holding only
// "---", then YAML options:
//
//	TABLE status FROM "projects" WHERE status = "active"
//	---
//	columns: 2
//	image: cover
//
// or a pure YAML block carrying the query under the query key:
//
//	query: LIST FROM #book
//	columns: 4
package blockconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyQuery is returned when a block has no query text.
var ErrEmptyQuery = errors.New("block has no query")

const (
	MinColumns = 1
	MaxColumns = 6
)

// RenderConfig holds the per-block rendering options. Zero values mean
// "use the plugin default".
type RenderConfig struct {
	Columns       int      `yaml:"columns"`
	TitleProperty string   `yaml:"title"`
	ImageProperty string   `yaml:"image"`
	Properties    []string `yaml:"properties"`
	ShowTags      *bool    `yaml:"showTags"`
	CardHeight    int      `yaml:"cardHeight"`
	EmptyMessage  string   `yaml:"emptyMessage"`
	// DynamicUpdate false opts the block out of automatic refreshes.
	DynamicUpdate *bool `yaml:"dynamicUpdate"`

	// Width is the available render width, set by the caller.
	Width int `yaml:"-"`
}

// Block is a parsed cards block.
type Block struct {
	Query  string
	Config RenderConfig
}

// Defaults are the plugin-wide values applied to unset options.
type Defaults struct {
	Columns       int
	ImageProperty string
	ShowTags      bool
	CardHeight    int
}

type yamlBlock struct {
	Query        string `yaml:"query"`
	RenderConfig `yaml:",inline"`
}

// Parse splits source into query text and options.
func Parse(source string) (Block, error) {
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")

	if isYAMLBlock(lines) {
		var b Block
		if query, opts, ok := extractQuery(lines); ok {
			b.Query = query
			if text := strings.Join(opts, "\n"); strings.TrimSpace(text) != "" {
				if err := decode(text, &b.Config); err != nil {
					return Block{}, err
				}
			}
		} else {
			var yb yamlBlock
			if err := decode(source, &yb); err != nil {
				return Block{}, err
			}
			b = Block{Query: strings.TrimSpace(yb.Query), Config: yb.RenderConfig}
		}
		if b.Query == "" {
			return Block{}, ErrEmptyQuery
		}
		b.Config = clamp(b.Config)
		return b, nil
	}

	sep := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			sep = i
			break
		}
	}

	queryLines := lines
	var b Block
	if sep >= 0 {
		queryLines = lines[:sep]
		opts := strings.Join(lines[sep+1:], "\n")
		if strings.TrimSpace(opts) != "" {
			if err := decode(opts, &b.Config); err != nil {
				return Block{}, err
			}
		}
	}

	b.Query = strings.TrimSpace(strings.Join(queryLines, "\n"))
	if b.Query == "" {
		return Block{}, ErrEmptyQuery
	}
	b.Config = clamp(b.Config)
	return b, nil
}

// isYAMLBlock reports whether the first non-blank line opens a query key.
func isYAMLBlock(lines []string) bool {
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		return strings.HasPrefix(t, "query:")
	}
	return false
}

// extractQuery takes the query key out of a pure YAML block and returns the
// remaining option lines. A plain value is kept verbatim, so a "#tag" source
// is not read as a comment; indented lines below it continue the query.
// Quoted and block scalars are left to the decoder (ok is false).
func extractQuery(lines []string) (query string, opts []string, ok bool) {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[start]), "query:"))
	if value != "" && strings.ContainsAny(value[:1], `"'|>`) {
		return "", nil, false
	}

	parts := []string{value}
	end := start + 1
	for ; end < len(lines); end++ {
		l := lines[end]
		if strings.TrimSpace(l) == "" || (l[0] != ' ' && l[0] != '\t') {
			break
		}
		parts = append(parts, strings.TrimSpace(l))
	}
	opts = append(append(opts, lines[:start]...), lines[end:]...)
	return strings.TrimSpace(strings.Join(parts, "\n")), opts, true
}

func decode(text string, out any) error {
	dec := yaml.NewDecoder(bytes.NewBufferString(text))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid block options: %w", err)
	}
	return nil
}

func clamp(c RenderConfig) RenderConfig {
	if c.Columns != 0 {
		c.Columns = max(MinColumns, min(MaxColumns, c.Columns))
	}
	if c.CardHeight < 0 {
		c.CardHeight = 0
	}
	return c
}

// WithDefaults fills unset options from d.
func (c RenderConfig) WithDefaults(d Defaults) RenderConfig {
	if c.Columns == 0 {
		c.Columns = d.Columns
	}
	if c.Columns == 0 {
		c.Columns = 1
	}
	if c.ImageProperty == "" {
		c.ImageProperty = d.ImageProperty
	}
	if c.ShowTags == nil {
		show := d.ShowTags
		c.ShowTags = &show
	}
	if c.CardHeight == 0 {
		c.CardHeight = d.CardHeight
	}
	if c.EmptyMessage == "" {
		c.EmptyMessage = "No notes found"
	}
	return c
}

// Dynamic reports whether the block follows automatic refreshes.
func (c RenderConfig) Dynamic() bool {
	return c.DynamicUpdate == nil || *c.DynamicUpdate
}

// Tags reports whether card tags are shown.
func (c RenderConfig) Tags() bool {
	return c.ShowTags != nil && *c.ShowTags
}
