package plugin

import "time"

// MarkdownView is a note preview that can be asked to re-render.
type MarkdownView interface {
	FilePath() string
	// RerenderPreview re-reads the note and re-runs its block processors.
	// full forces every block to render again even if its source is unchanged.
	RerenderPreview(full bool, reason RenderReason)
}

// Workspace is the host surface plugins talk to.
type Workspace interface {
	// ActiveMarkdownView returns the focused markdown view, if any.
	ActiveMarkdownView() (MarkdownView, bool)
	// Notify shows a transient message to the user.
	Notify(message string, d time.Duration)
}
