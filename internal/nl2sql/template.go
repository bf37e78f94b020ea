package nl2sql

import (
	"fmt"
	"strings"
)

// Template is a prompt kept as data: fixed text with {field} placeholders and
// the ordered list of fields it expects.
type Template struct {
	Name   string
	Text   string
	Fields []string
}

// Render substitutes every field in one pass, so a value that itself
// contains "{...}" is never expanded again.
func (t Template) Render(values map[string]string) (string, error) {
	pairs := make([]string, 0, 2*len(t.Fields))
	for _, field := range t.Fields {
		value, ok := values[field]
		if !ok {
			return "", fmt.Errorf("render %s prompt: missing field %q", t.Name, field)
		}
		pairs = append(pairs, "{"+field+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(t.Text), nil
}
