package keymap

// DefaultBindings returns the default key bindings.
func DefaultBindings() []Binding {
	return []Binding{
		// Global bindings
		{Key: "q", Command: "quit", Context: "global"},
		{Key: "ctrl+c", Command: "quit", Context: "global"},
		{Key: "tab", Command: "next-plugin", Context: "global"},
		{Key: "shift+tab", Command: "prev-plugin", Context: "global"},
		{Key: "1", Command: "focus-plugin-1", Context: "global"},
		{Key: "2", Command: "focus-plugin-2", Context: "global"},
		{Key: "3", Command: "focus-plugin-3", Context: "global"},
		{Key: "4", Command: "focus-plugin-4", Context: "global"},
		{Key: "?", Command: "toggle-help", Context: "global"},
		{Key: "!", Command: "toggle-diagnostics", Context: "global"},
		{Key: "ctrl+h", Command: "toggle-footer", Context: "global"},
		{Key: "r", Command: "refresh-cards", Context: "global"},

		// Preview
		{Key: "n", Command: "next-note", Context: "preview"},
		{Key: "N", Command: "prev-note", Context: "preview"},
		{Key: "p", Command: "prev-note", Context: "preview"},
		{Key: "R", Command: "reload-note", Context: "preview"},
		{Key: "y", Command: "copy-path", Context: "preview"},
		{Key: "e", Command: "open-in-editor", Context: "preview"},

		// Cards
		{Key: "d", Command: "toggle-dynamic-updates", Context: "cards"},
		{Key: "+", Command: "increase-delay", Context: "cards"},
		{Key: "=", Command: "increase-delay", Context: "cards"},
		{Key: "-", Command: "decrease-delay", Context: "cards"},
		{Key: "D", Command: "toggle-debug", Context: "cards"},

		// Dataview
		{Key: "/", Command: "query", Context: "dataview"},
		{Key: "R", Command: "rescan", Context: "dataview"},

		// Properties (form binding)
		{Key: "e", Command: "edit-property", Context: "formbind"},
		{Key: "enter", Command: "edit-property", Context: "formbind"},
		{Key: "a", Command: "add-property", Context: "formbind"},
		{Key: "x", Command: "delete-property", Context: "formbind"},
		{Key: "R", Command: "reload-properties", Context: "formbind"},
	}
}
