package dataview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/marcus/notecards/internal/surface"
)

// Result is the envelope returned by ExecuteQuery. On failure Value holds the
// error message.
type Result struct {
	Successful bool
	Value      any
}

// PageList is the value of a LIST query.
type PageList []*Page

// Row is one TABLE row.
type Row struct {
	Page   *Page
	Values []any
}

// Table is the value of a TABLE query.
type Table struct {
	Headers []string
	Rows    []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Run evaluates q against the index. origin is the vault-relative path of the
// note running the query; it is exposed to WHERE as "this". Fields that no
// matched page carries are reported as warnings.
func (ix *Index) Run(ctx context.Context, q *Query, origin string) (any, []string, error) {
	var this map[string]any
	if p, ok := ix.Page(origin); ok {
		this = p.Env()
	}

	var matched []*Page
	for _, p := range ix.Pages() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if !q.Source.matches(p) {
			continue
		}
		if q.where != nil {
			env := p.Env()
			env["this"] = this
			out, err := expr.Run(q.where, env)
			if err != nil {
				return nil, nil, fmt.Errorf("WHERE on %s: %w", p.Path, err)
			}
			if ok, _ := out.(bool); !ok {
				continue
			}
		}
		matched = append(matched, p)
	}

	if q.SortBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := fieldValue(matched[i], q.SortBy)
			b, _ := fieldValue(matched[j], q.SortBy)
			c := compareValues(a, b)
			if q.SortDesc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	warnings := unknownFields(q.Columns, matched)

	if q.Type == QueryList {
		return PageList(matched), warnings, nil
	}

	t := &Table{Headers: []string{"File"}}
	for _, c := range q.Columns {
		t.Headers = append(t.Headers, c.Header)
	}
	for _, p := range matched {
		row := Row{Page: p, Values: make([]any, len(q.Columns))}
		for i, c := range q.Columns {
			row.Values[i], _ = fieldValue(p, c.Field)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, warnings, nil
}

// ExecuteQuery parses and runs text for the note at origin. Diagnostics are
// written into el, which callers typically pass as a detached scratch
// element. The successful value is wrapped in a second Result envelope.
// Query problems are reported in the Result; the error return is reserved
// for cancellation.
func (ix *Index) ExecuteQuery(ctx context.Context, text, origin string, el *surface.Element) (Result, error) {
	q, err := ParseQuery(text)
	if err != nil {
		return Result{Successful: false, Value: err.Error()}, nil
	}

	value, warnings, err := ix.Run(ctx, q, origin)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		return Result{Successful: false, Value: err.Error()}, nil
	}
	if el != nil {
		for _, w := range warnings {
			el.CreateChild("dataview-warning", w)
		}
	}
	return Result{Successful: true, Value: Result{Successful: true, Value: value}}, nil
}

func (s Source) matches(p *Page) bool {
	if len(s.Folders) == 0 && len(s.Tags) == 0 {
		return true
	}
	for _, f := range s.Folders {
		if p.InFolder(f) {
			return true
		}
	}
	for _, t := range s.Tags {
		if p.HasTag(t) {
			return true
		}
	}
	return false
}

// fieldValue resolves a projected field. Dotted paths walk nested maps.
func fieldValue(p *Page, field string) (any, bool) {
	if v, ok := p.Field(field); ok {
		return v, true
	}
	head, rest, dotted := strings.Cut(field, ".")
	if !dotted {
		return nil, false
	}
	v, ok := p.Field(head)
	for ok && rest != "" {
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, false
		}
		var key string
		key, rest, _ = strings.Cut(rest, ".")
		v, ok = m[key]
	}
	return v, ok
}

func unknownFields(cols []Column, pages []*Page) []string {
	if len(pages) == 0 {
		return nil
	}
	var warnings []string
	for _, c := range cols {
		found := false
		for _, p := range pages {
			if _, ok := fieldValue(p, c.Field); ok {
				found = true
				break
			}
		}
		if !found {
			warnings = append(warnings, fmt.Sprintf("field %q is not set on any matching note", c.Field))
		}
	}
	return warnings
}

// compareValues orders nil last, numbers numerically, times chronologically
// and everything else by its string form.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(strings.ToLower(fmt.Sprint(a)), strings.ToLower(fmt.Sprint(b)))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
