package dataview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrSyntax marks a query that could not be parsed.
var ErrSyntax = errors.New("query syntax error")

// QueryType is the output shape of a query.
type QueryType string

const (
	QueryList  QueryType = "LIST"
	QueryTable QueryType = "TABLE"
)

// Column is one projected TABLE field.
type Column struct {
	Field  string
	Header string
}

// Source restricts a query to folders and tags; entries are OR-ed.
type Source struct {
	Folders []string
	Tags    []string
}

// Query is a parsed query.
type Query struct {
	Type     QueryType
	Columns  []Column
	Source   Source
	Where    string
	SortBy   string
	SortDesc bool
	Limit    int

	where *vm.Program
}

var clauseOrder = []string{"FROM", "WHERE", "SORT", "LIMIT"}

func syntaxErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// ParseQuery parses
//
//	LIST|TABLE [field [AS "Header"], ...] [FROM "folder" | #tag [OR ...]]
//	[WHERE expr] [SORT field [ASC|DESC]] [LIMIT n]
//
// Keywords are case-insensitive. WHERE is an expr-lang expression evaluated
// against the page's fields; a single '=' is read as equality.
func ParseQuery(text string) (*Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, syntaxErr("empty query")
	}

	head, rest := cutWord(text)
	q := &Query{Type: QueryType(strings.ToUpper(head))}
	if q.Type != QueryList && q.Type != QueryTable {
		return nil, syntaxErr("expected LIST or TABLE, got %q", head)
	}

	clauses, fields, err := splitClauses(rest)
	if err != nil {
		return nil, err
	}

	if f := strings.TrimSpace(fields); f != "" {
		cols, err := parseColumns(f)
		if err != nil {
			return nil, err
		}
		if q.Type == QueryList && len(cols) > 1 {
			return nil, syntaxErr("LIST takes at most one field")
		}
		q.Columns = cols
	}

	if src, ok := clauses["FROM"]; ok {
		if q.Source, err = parseSource(src); err != nil {
			return nil, err
		}
	}
	if w, ok := clauses["WHERE"]; ok {
		q.Where = strings.TrimSpace(w)
		if q.Where == "" {
			return nil, syntaxErr("WHERE needs an expression")
		}
		prog, err := expr.Compile(normalizeEquality(q.Where), expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, syntaxErr("WHERE: %v", err)
		}
		q.where = prog
	}
	if s, ok := clauses["SORT"]; ok {
		parts := strings.Fields(s)
		if len(parts) == 0 || len(parts) > 2 {
			return nil, syntaxErr("SORT expects a field and an optional direction")
		}
		q.SortBy = parts[0]
		if len(parts) == 2 {
			switch strings.ToUpper(parts[1]) {
			case "ASC":
			case "DESC":
				q.SortDesc = true
			default:
				return nil, syntaxErr("unknown sort direction %q", parts[1])
			}
		}
	}
	if l, ok := clauses["LIMIT"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(l))
		if err != nil || n < 0 {
			return nil, syntaxErr("LIMIT expects a non-negative number, got %q", strings.TrimSpace(l))
		}
		q.Limit = n
	}
	return q, nil
}

// cutWord splits off the first whitespace-delimited word.
func cutWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

// splitClauses finds the clause keywords outside quotes. Clauses must appear
// in order and at most once; text before the first keyword is the field list.
func splitClauses(s string) (map[string]string, string, error) {
	clauses := make(map[string]string)
	type mark struct {
		kw         string
		start, end int
	}
	var marks []mark
	next := 0

	var quote rune
	for i := 0; i < len(s); {
		r := rune(s[i])
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			i++
			continue
		}
		if r == '"' || r == '\'' {
			quote = r
			i++
			continue
		}
		if (i == 0 || isBoundary(rune(s[i-1]))) && next < len(clauseOrder) {
			matched := false
			for k := next; k < len(clauseOrder); k++ {
				kw := clauseOrder[k]
				end := i + len(kw)
				if end <= len(s) && strings.EqualFold(s[i:end], kw) && (end == len(s) || isBoundary(rune(s[end]))) {
					marks = append(marks, mark{kw: kw, start: i, end: end})
					next = k + 1
					i = end
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}
		i++
	}
	if quote != 0 {
		return nil, "", syntaxErr("unterminated quote")
	}

	fields := s
	if len(marks) > 0 {
		fields = s[:marks[0].start]
	}
	for i, m := range marks {
		end := len(s)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		clauses[m.kw] = s[m.end:end]
	}
	return clauses, fields, nil
}

func isBoundary(r rune) bool {
	return unicode.IsSpace(r)
}

func parseColumns(s string) ([]Column, error) {
	var cols []Column
	for _, part := range splitTopLevel(s, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, syntaxErr("empty field in field list")
		}
		col := Column{Field: part, Header: part}
		if i := indexFold(part, " AS "); i >= 0 {
			col.Field = strings.TrimSpace(part[:i])
			col.Header = unquote(strings.TrimSpace(part[i+4:]))
			if col.Field == "" || col.Header == "" {
				return nil, syntaxErr("malformed AS in %q", part)
			}
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func parseSource(s string) (Source, error) {
	var src Source
	s = strings.TrimSpace(s)
	if s == "" {
		return src, syntaxErr("FROM needs a folder or tag")
	}
	for _, term := range splitOr(s) {
		term = strings.TrimSpace(term)
		switch {
		case strings.HasPrefix(term, "#") && len(term) > 1:
			src.Tags = append(src.Tags, term[1:])
		case len(term) >= 2 && (term[0] == '"' || term[0] == '\'') && term[len(term)-1] == term[0]:
			src.Folders = append(src.Folders, term[1:len(term)-1])
		default:
			return src, syntaxErr("unsupported FROM source %q", term)
		}
	}
	return src, nil
}

// splitOr splits on the OR keyword outside quotes.
func splitOr(s string) []string {
	var parts []string
	var quote rune
	last := 0
	for i := 0; i < len(s); i++ {
		r := rune(s[i])
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case i+4 <= len(s) && isBoundary(r) && strings.EqualFold(s[i+1:i+3], "or") && isBoundary(rune(s[i+3])):
			parts = append(parts, s[last:i])
			last = i + 3
			i += 2
		}
	}
	return append(parts, s[last:])
}

// splitTopLevel splits on sep outside quotes and parentheses.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var quote rune
	depth, last := 0, 0
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
		case r == sep && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

func indexFold(s, sub string) int {
	return strings.Index(strings.ToUpper(s), strings.ToUpper(sub))
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// normalizeEquality rewrites a lone '=' outside quotes into '=='.
func normalizeEquality(s string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			b.WriteByte(c)
			continue
		}
		if c == '=' {
			prev := byte(0)
			if i > 0 {
				prev = s[i-1]
			}
			nextIsEq := i+1 < len(s) && s[i+1] == '='
			if prev != '=' && prev != '!' && prev != '<' && prev != '>' && !nextIsEq {
				b.WriteString("==")
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
