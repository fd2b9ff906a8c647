package surface

import "testing"

func TestElement_TreeAndRender(t *testing.T) {
	root := New("block")
	root.CreateChild("title", "Projects")
	list := root.CreateChild("list", "")
	list.CreateChild("item", "alpha")
	list.CreateChild("item", "beta")

	want := "Projects\nalpha\nbeta"
	if got := root.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
	if root.Find("list") != list {
		t.Error("Find(list) did not return the list element")
	}
	if root.Find("missing") != nil {
		t.Error("Find(missing) should be nil")
	}
}

func TestElement_Remove(t *testing.T) {
	root := New("root")
	scratch := NewDetached()
	root.AppendChild(scratch)

	scratch.Remove()
	if !scratch.Removed() {
		t.Error("expected Removed() after Remove")
	}
	if len(root.Children()) != 0 {
		t.Error("removed element still attached to parent")
	}
	if !scratch.Detached() {
		t.Error("NewDetached element should report Detached")
	}
}

func TestElement_AppendMovesChild(t *testing.T) {
	a := New("a")
	b := New("b")
	c := a.CreateChild("c", "x")

	b.AppendChild(c)
	if len(a.Children()) != 0 || len(b.Children()) != 1 {
		t.Errorf("child not moved: a=%d b=%d", len(a.Children()), len(b.Children()))
	}
}

func TestElement_CloneAndEmpty(t *testing.T) {
	root := New("root")
	root.SetText("head")
	root.CreateChild("c", "\x1b[1mbold\x1b[0m")

	cp := root.Clone()
	root.Empty()

	if root.Render() != "" {
		t.Errorf("Empty left %q", root.Render())
	}
	if got := cp.PlainText(); got != "head\nbold" {
		t.Errorf("clone PlainText = %q", got)
	}
}
