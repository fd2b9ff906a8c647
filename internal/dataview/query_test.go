package dataview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery(`table status, due AS "Due date" from "projects" or #work where status = "active" and priority >= 2 sort due desc limit 5`)
	require.NoError(t, err)

	assert.Equal(t, QueryTable, q.Type)
	assert.Equal(t, []Column{{Field: "status", Header: "status"}, {Field: "due", Header: "Due date"}}, q.Columns)
	assert.Equal(t, []string{"projects"}, q.Source.Folders)
	assert.Equal(t, []string{"work"}, q.Source.Tags)
	assert.Equal(t, `status = "active" and priority >= 2`, q.Where)
	assert.Equal(t, "due", q.SortBy)
	assert.True(t, q.SortDesc)
	assert.Equal(t, 5, q.Limit)
}

func TestParseQuery_KeywordsInsideQuotes(t *testing.T) {
	q, err := ParseQuery(`LIST FROM "where from" WHERE title = "sort limit"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"where from"}, q.Source.Folders)
	assert.Equal(t, `title = "sort limit"`, q.Where)
}

func TestParseQuery_Errors(t *testing.T) {
	bad := []string{
		"",
		"SELECT * FROM notes",
		"LIST a, b",
		`LIST FROM projects`,
		`LIST FROM "unterminated`,
		"LIST WHERE",
		"LIST WHERE status ==",
		"LIST SORT a sideways",
		"LIST LIMIT -1",
		"LIST LIMIT many",
		"TABLE a, , b",
	}
	for _, text := range bad {
		_, err := ParseQuery(text)
		assert.ErrorIs(t, err, ErrSyntax, "query %q", text)
	}
}

func TestNormalizeEquality(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a = 1`, `a == 1`},
		{`a == 1`, `a == 1`},
		{`a != 1`, `a != 1`},
		{`a <= 1`, `a <= 1`},
		{`a >= 1`, `a >= 1`},
		{`a = "x = y"`, `a == "x = y"`},
		{`a='b' and c=2`, `a=='b' and c==2`},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, normalizeEquality(tc.in), "input %q", tc.in)
	}
}
