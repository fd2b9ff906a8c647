package preview

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// ListNotes returns the vault-relative paths of every markdown note under
// root, sorted. Directories named in ignore are skipped.
func ListNotes(root string, ignore []string) ([]string, error) {
	notes := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && (slices.Contains(ignore, d.Name()) || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		notes = append(notes, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(notes)
	return notes, nil
}

// ResolveNote maps a user-supplied note name to a listed note: an exact
// vault-relative path, the same path without ".md", or a unique base name.
func ResolveNote(notes []string, name string) (string, bool) {
	name = filepath.ToSlash(strings.TrimPrefix(name, "./"))
	if name == "" {
		return "", false
	}
	if !strings.HasSuffix(strings.ToLower(name), ".md") {
		name += ".md"
	}
	if slices.Contains(notes, name) {
		return name, true
	}
	var match string
	for _, n := range notes {
		if strings.EqualFold(filepath.Base(n), filepath.Base(name)) {
			if match != "" {
				return "", false
			}
			match = n
		}
	}
	return match, match != ""
}
