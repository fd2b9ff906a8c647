package dataview

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/marcus/notecards/internal/markdown"
)

// Page is the indexed metadata of one markdown note.
type Page struct {
	Path        string         `json:"path"` // vault-relative, slash separated
	Name        string         `json:"name"` // base name without extension
	Folder      string         `json:"folder"`
	Tags        []string       `json:"tags,omitempty"` // without the leading '#'
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Inline      map[string]any `json:"inline,omitempty"`
	ModTime     time.Time      `json:"mtime"`
	Size        int64          `json:"size"`
	Hash        uint64         `json:"hash"`
}

var (
	inlineFieldRe = regexp.MustCompile(`^\s*(?:[-*]\s+)?([\p{L}\p{N}_][\p{L}\p{N}_ -]*?)::\s*(.*?)\s*$`)
	tagRe         = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_/-]*[\p{L}_/-][\p{L}\p{N}_/-]*)`)
)

// ContentHash returns the hash used to detect unchanged files.
func ContentHash(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// ParsePage builds a Page from a note's content. relPath is vault-relative.
func ParsePage(relPath string, content []byte, modTime time.Time) (*Page, error) {
	relPath = path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	p := &Page{
		Path:    relPath,
		Name:    strings.TrimSuffix(path.Base(relPath), path.Ext(relPath)),
		Folder:  path.Dir(relPath),
		ModTime: modTime,
		Size:    int64(len(content)),
		Hash:    ContentHash(content),
	}
	if p.Folder == "." {
		p.Folder = ""
	}

	front, body, ok := markdown.SplitFrontmatter(content)
	if ok && len(bytes.TrimSpace(front)) > 0 {
		fm := make(map[string]any)
		if err := yaml.Unmarshal(front, &fm); err != nil {
			return nil, fmt.Errorf("parse frontmatter of %s: %w", relPath, err)
		}
		p.Frontmatter = fm
	}

	tags := newTagSet()
	if p.Frontmatter != nil {
		for _, t := range frontmatterTags(p.Frontmatter["tags"]) {
			tags.add(t)
		}
	}

	inline := make(map[string]any)
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	inFence := false
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := inlineFieldRe.FindStringSubmatch(line); m != nil {
			key := strings.TrimSpace(m[1])
			if _, exists := inline[key]; !exists {
				inline[key] = scalar(m[2])
			}
			continue
		}
		for _, m := range tagRe.FindAllStringSubmatch(line, -1) {
			tags.add(m[1])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", relPath, err)
	}
	if len(inline) > 0 {
		p.Inline = inline
	}
	p.Tags = tags.list()
	return p, nil
}

// scalar decodes an inline field value as a YAML scalar so numbers and
// booleans compare naturally. Anything else stays a string.
func scalar(raw string) any {
	if raw == "" {
		return ""
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case int, float64, bool:
		return v
	}
	return raw
}

func frontmatterTags(v any) []string {
	switch t := v.(type) {
	case string:
		return strings.FieldsFunc(t, func(r rune) bool { return r == ',' || r == ' ' })
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

type tagSet struct {
	seen  map[string]bool
	order []string
}

func newTagSet() *tagSet {
	return &tagSet{seen: make(map[string]bool)}
}

func (s *tagSet) add(tag string) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" || s.seen[strings.ToLower(tag)] {
		return
	}
	s.seen[strings.ToLower(tag)] = true
	s.order = append(s.order, tag)
}

func (s *tagSet) list() []string {
	return s.order
}

// HasTag reports whether the page carries tag or a nested child of it.
// Matching is case-insensitive.
func (p *Page) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimPrefix(tag, "#"))
	for _, t := range p.Tags {
		lt := strings.ToLower(t)
		if lt == tag || strings.HasPrefix(lt, tag+"/") {
			return true
		}
	}
	return false
}

// InFolder reports whether the page lives in folder or below it.
func (p *Page) InFolder(folder string) bool {
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" {
		return true
	}
	return p.Folder == folder || strings.HasPrefix(p.Folder, folder+"/")
}

// Field looks up a field by name. Frontmatter wins over inline fields;
// "file.<x>" and the bare file attributes resolve against the file itself.
func (p *Page) Field(name string) (any, bool) {
	if rest, ok := strings.CutPrefix(name, "file."); ok {
		v, ok := p.fileInfo()[rest]
		return v, ok
	}
	if v, ok := p.Frontmatter[name]; ok {
		return v, true
	}
	if v, ok := p.Inline[name]; ok {
		return v, true
	}
	return nil, false
}

// Title returns the title property if set, else the file name.
func (p *Page) Title(property string) string {
	if property != "" {
		if v, ok := p.Field(property); ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	if v, ok := p.Frontmatter["title"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return p.Name
}

func (p *Page) fileInfo() map[string]any {
	tags := make([]any, len(p.Tags))
	for i, t := range p.Tags {
		tags[i] = t
	}
	return map[string]any{
		"name":   p.Name,
		"path":   p.Path,
		"folder": p.Folder,
		"tags":   tags,
		"mtime":  p.ModTime,
		"size":   p.Size,
	}
}

// Env returns the variables visible to WHERE expressions.
func (p *Page) Env() map[string]any {
	env := make(map[string]any, len(p.Frontmatter)+len(p.Inline)+1)
	for k, v := range p.Inline {
		env[identifier(k)] = v
	}
	for k, v := range p.Frontmatter {
		env[identifier(k)] = v
	}
	env["file"] = p.fileInfo()
	return env
}

// identifier maps a field name to an expression-safe variable name.
func identifier(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, name)
}
