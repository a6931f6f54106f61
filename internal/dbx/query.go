package dbx

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Where accumulates AND-ed conditions with positional arguments.
// Each condition uses "?" where its single argument goes.
//
//	var w dbx.Where
//	w.Add("role = ?", role)
//	w.Add("(title ILIKE ? OR description ILIKE ?)", pat, pat)
//	query := "SELECT ... FROM users" + w.SQL()
type Where struct {
	parts []string
	args  []any
}

// Add appends a condition. The number of "?" markers must match len(args).
func (w *Where) Add(cond string, args ...any) {
	var b strings.Builder
	i := 0
	for _, r := range cond {
		if r == '?' && i < len(args) {
			w.args = append(w.args, args[i])
			fmt.Fprintf(&b, "$%d", len(w.args))
			i++
			continue
		}
		b.WriteRune(r)
	}
	w.parts = append(w.parts, b.String())
}

// Next reserves a placeholder for an argument used outside the WHERE clause,
// such as LIMIT and OFFSET.
func (w *Where) Next(arg any) string {
	w.args = append(w.args, arg)
	return fmt.Sprintf("$%d", len(w.args))
}

// SQL renders " WHERE a AND b", or "" when there are no conditions.
func (w *Where) SQL() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

func (w *Where) Args() []any { return w.args }

// JSONStrings encodes a string list for a jsonb column; nil becomes [].
func JSONStrings(v []string) []byte {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return b
}

// ParseJSONStrings decodes a jsonb string list; empty input yields [].
func ParseJSONStrings(b []byte) ([]string, error) {
	out := []string{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode jsonb list: %w", err)
	}
	return out, nil
}

// TimePtr converts a nullable timestamp.
func TimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// StringPtr converts a nullable text column.
func StringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// NullString maps "" to NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
