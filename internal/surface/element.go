// Package surface provides the render targets that block processors draw
// into. An Element is a small tree of pre-styled text fragments; the preview
// pane mounts one Element per rendered block.
package surface

import (
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Element is a node in a render tree.
type Element struct {
	mu       sync.Mutex
	class    string
	text     string
	children []*Element
	parent   *Element
	detached bool
	removed  bool
}

// New creates an attached root element.
func New(class string) *Element {
	return &Element{class: class}
}

// NewDetached creates a scratch element that is not part of any visible
// tree. Callers must Remove it when done.
func NewDetached() *Element {
	return &Element{class: "detached", detached: true}
}

// Class returns the element's class name.
func (e *Element) Class() string {
	return e.class
}

// Text returns the element's own text, excluding children.
func (e *Element) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// SetText replaces the element's own text.
func (e *Element) SetText(text string) {
	e.mu.Lock()
	e.text = text
	e.mu.Unlock()
}

// CreateChild appends a new child element and returns it.
func (e *Element) CreateChild(class, text string) *Element {
	child := &Element{class: class, text: text}
	e.AppendChild(child)
	return child
}

// AppendChild moves child under e.
func (e *Element) AppendChild(child *Element) {
	if child == nil || child == e {
		return
	}
	if child.parent != nil {
		child.parent.removeChild(child)
	}

	e.mu.Lock()
	child.parent = e
	e.children = append(e.children, child)
	e.mu.Unlock()
}

func (e *Element) removeChild(child *Element) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.children {
		if c == child {
			e.children = append(e.children[:i], e.children[i+1:]...)
			break
		}
	}
	child.parent = nil
}

// Children returns a snapshot of the element's children.
func (e *Element) Children() []*Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Element, len(e.children))
	copy(out, e.children)
	return out
}

// Find returns the first descendant (depth first) with the given class.
func (e *Element) Find(class string) *Element {
	for _, c := range e.Children() {
		if c.class == class {
			return c
		}
		if found := c.Find(class); found != nil {
			return found
		}
	}
	return nil
}

// Empty removes all children and clears the element's text.
func (e *Element) Empty() {
	e.mu.Lock()
	children := e.children
	e.children = nil
	e.text = ""
	e.mu.Unlock()

	for _, c := range children {
		c.mu.Lock()
		c.parent = nil
		c.mu.Unlock()
	}
}

// Remove detaches the element from its parent and marks it removed.
func (e *Element) Remove() {
	if e.parent != nil {
		e.parent.removeChild(e)
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}

// Removed reports whether Remove has been called.
func (e *Element) Removed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removed
}

// Detached reports whether the element was created as scratch space.
func (e *Element) Detached() bool {
	return e.detached
}

// Clone returns a deep copy of e without a parent.
func (e *Element) Clone() *Element {
	e.mu.Lock()
	cp := &Element{class: e.class, text: e.text, detached: e.detached}
	children := make([]*Element, len(e.children))
	copy(children, e.children)
	e.mu.Unlock()

	for _, c := range children {
		cp.AppendChild(c.Clone())
	}
	return cp
}

// Render joins the element's text and its children's rendering, one
// fragment per line block.
func (e *Element) Render() string {
	var parts []string
	if t := e.Text(); t != "" {
		parts = append(parts, t)
	}
	for _, c := range e.Children() {
		if r := c.Render(); r != "" {
			parts = append(parts, r)
		}
	}
	return strings.Join(parts, "\n")
}

// PlainText returns the rendering with ANSI styling stripped.
func (e *Element) PlainText() string {
	return ansi.Strip(e.Render())
}
