package markdown

import (
	"testing"
)

func TestSplitFrontmatter(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		front string
		body  string
		ok    bool
	}{
		{"none", "hello", "", "hello", false},
		{"simple", "---\na: 1\n---\nbody", "a: 1\n", "body", true},
		{"crlf", "---\r\na: 1\r\n---\r\nbody", "a: 1\r\n", "body", true},
		{"unterminated", "---\na: 1\n", "", "---\na: 1\n", false},
		{"at eof", "---\na: 1\n---", "a: 1\n", "", true},
		{"empty", "---\n---\nbody", "", "body", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			front, body, ok := SplitFrontmatter([]byte(tc.in))
			if ok != tc.ok {
				t.Errorf("ok = %v, want %v", ok, tc.ok)
			}
			if string(front) != tc.front {
				t.Errorf("front = %q, want %q", front, tc.front)
			}
			if string(body) != tc.body {
				t.Errorf("body = %q, want %q", body, tc.body)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	doc := "# Title\n\nIntro\n\n```cards\nLIST FROM #book\n---\ncolumns: 2\n```\nBetween\n~~~~go\nfmt.Println(\"```\")\n~~~~\n````\nunterminated\n"

	segs := Split(doc)
	if len(segs) != 5 {
		t.Fatalf("got %d segments: %+v", len(segs), segs)
	}

	if segs[0].Kind != Prose || segs[0].Line != 1 || segs[0].Text != "# Title\n\nIntro\n\n" {
		t.Errorf("segment 0 = %+v", segs[0])
	}
	if segs[1].Kind != Fence || segs[1].Lang != "cards" || segs[1].Line != 5 {
		t.Errorf("segment 1 = %+v", segs[1])
	}
	if segs[1].Text != "LIST FROM #book\n---\ncolumns: 2\n" {
		t.Errorf("cards body = %q", segs[1].Text)
	}
	if segs[2].Kind != Prose || segs[2].Text != "Between\n" || segs[2].Line != 10 {
		t.Errorf("segment 2 = %+v", segs[2])
	}
	if segs[3].Lang != "go" || segs[3].Text != "fmt.Println(\"```\")\n" {
		t.Errorf("segment 3 = %+v", segs[3])
	}
	if segs[4].Kind != Fence || segs[4].Lang != "" || segs[4].Text != "unterminated\n" {
		t.Errorf("segment 4 = %+v", segs[4])
	}
}

func TestOpeningFence(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		info string
	}{
		{"```", true, ""},
		{"```cards extra", true, "cards extra"},
		{"   ~~~yaml", true, "yaml"},
		{"    ```", false, ""},
		{"``", false, ""},
		{"``` a`b", false, ""},
	}
	for _, tc := range tests {
		_, info, ok := openingFence(tc.line)
		if ok != tc.ok || info != tc.info {
			t.Errorf("openingFence(%q) = (%q, %v), want (%q, %v)", tc.line, info, ok, tc.info, tc.ok)
		}
	}
}
