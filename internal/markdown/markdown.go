// Package markdown splits notes into frontmatter, prose and fenced code
// blocks.
package markdown

import (
	"bytes"
	"strings"
)

// SplitFrontmatter separates a leading YAML frontmatter block from the body.
// ok is false when the note has no frontmatter.
func SplitFrontmatter(content []byte) (front, body []byte, ok bool) {
	if !bytes.HasPrefix(content, []byte("---\n")) && !bytes.HasPrefix(content, []byte("---\r\n")) {
		return nil, content, false
	}
	rest := content[bytes.IndexByte(content, '\n')+1:]

	offset := 0
	for offset <= len(rest) {
		end := bytes.IndexByte(rest[offset:], '\n')
		var line []byte
		if end < 0 {
			line = rest[offset:]
		} else {
			line = rest[offset : offset+end]
		}
		if strings.TrimRight(string(line), "\r") == "---" {
			bodyStart := offset + len(line)
			if end >= 0 {
				bodyStart++
			}
			return rest[:offset], rest[bodyStart:], true
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return nil, content, false
}

// StripFrontmatter returns content without its frontmatter block.
func StripFrontmatter(content []byte) []byte {
	_, body, _ := SplitFrontmatter(content)
	return body
}

// SegmentKind distinguishes prose from fenced code.
type SegmentKind int

const (
	Prose SegmentKind = iota
	Fence
)

// Segment is a run of prose or one fenced code block.
type Segment struct {
	Kind SegmentKind
	Lang string // first word of the fence info string
	Text string // prose text, or the fence body without the fence lines
	Line int    // 1-based line where the segment starts
}

// Split breaks body into alternating prose and fenced code segments.
// An unterminated fence runs to the end of the document.
func Split(body string) []Segment {
	lines := strings.SplitAfter(body, "\n")
	var (
		segs     []Segment
		prose    strings.Builder
		proseAt  = 1
		fence    *Segment
		fenceBuf strings.Builder
		marker   string
	)

	flushProse := func(next int) {
		if prose.Len() > 0 {
			segs = append(segs, Segment{Kind: Prose, Text: prose.String(), Line: proseAt})
			prose.Reset()
		}
		proseAt = next
	}

	for i, raw := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)

		if fence != nil {
			if isClosingFence(trimmed, marker) {
				fence.Text = fenceBuf.String()
				segs = append(segs, *fence)
				fence = nil
				fenceBuf.Reset()
				proseAt = lineNo + 1
				continue
			}
			fenceBuf.WriteString(raw)
			continue
		}

		if m, info, ok := openingFence(raw); ok {
			flushProse(lineNo)
			lang, _, _ := strings.Cut(info, " ")
			fence = &Segment{Kind: Fence, Lang: strings.ToLower(lang), Line: lineNo}
			marker = m
			continue
		}
		if raw == "" {
			continue
		}
		prose.WriteString(raw)
	}

	if fence != nil {
		fence.Text = fenceBuf.String()
		segs = append(segs, *fence)
	}
	flushProse(0)
	return segs
}

// openingFence recognizes ``` or ~~~ (three or more) indented at most three
// spaces, returning the marker and the info string.
func openingFence(line string) (string, string, bool) {
	indent := len(line) - len(strings.TrimLeft(line, " "))
	if indent > 3 {
		return "", "", false
	}
	s := strings.TrimRight(line[indent:], "\r\n")
	if len(s) < 3 || (s[0] != '`' && s[0] != '~') {
		return "", "", false
	}
	n := 0
	for n < len(s) && s[n] == s[0] {
		n++
	}
	if n < 3 {
		return "", "", false
	}
	info := strings.TrimSpace(s[n:])
	if s[0] == '`' && strings.Contains(info, "`") {
		return "", "", false
	}
	return s[:n], info, true
}

func isClosingFence(trimmed, marker string) bool {
	if len(trimmed) < len(marker) || trimmed[0] != marker[0] {
		return false
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != marker[0] {
			return false
		}
	}
	return true
}
