// Package wikitext extracts structured boss records from wiki markup.
//
// The markup is human-edited and inconsistent; the scanner and extractor
// tolerate malformed constructs and unknown fields rather than rejecting
// whole pages.
package wikitext

import (
	"strconv"
	"strings"
)

// Param is a single template parameter. Positional parameters carry their
// 1-based index as Name ("1", "2", ...).
type Param struct {
	Name  string
	Value string
}

// Template is a named, parameter-bearing {{...}} construct.
type Template struct {
	Name   string
	Params []Param
}

// Get returns the value of the first parameter with the given
// case-insensitive name.
func (t Template) Get(name string) (string, bool) {
	for _, p := range t.Params {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// Templates scans markup and returns every top-level template in document
// order. Templates nested inside parameter values are left embedded in the
// value text; unbalanced braces are skipped.
func Templates(markup string) []Template {
	var out []Template
	for i := 0; i < len(markup)-1; {
		if markup[i] != '{' || markup[i+1] != '{' {
			i++
			continue
		}
		end, ok := matchBraces(markup, i)
		if !ok {
			i += 2
			continue
		}
		body := markup[i+2 : end-2]
		out = append(out, parseTemplate(body))
		i = end
	}
	return out
}

// matchBraces returns the index just past the "}}" matching the "{{" at
// start, accounting for nesting.
func matchBraces(s string, start int) (int, bool) {
	depth := 0
	for i := start; i < len(s)-1; i++ {
		switch {
		case s[i] == '{' && s[i+1] == '{':
			depth++
			i++
		case s[i] == '}' && s[i+1] == '}':
			depth--
			i++
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func parseTemplate(body string) Template {
	parts := splitTopLevel(body, '|')
	tpl := Template{Name: normalizeName(parts[0])}
	positional := 0
	for _, part := range parts[1:] {
		eq := indexTopLevel(part, '=')
		if eq < 0 {
			positional++
			tpl.Params = append(tpl.Params, Param{
				Name:  strconv.Itoa(positional),
				Value: strings.TrimSpace(part),
			})
			continue
		}
		tpl.Params = append(tpl.Params, Param{
			Name:  strings.TrimSpace(part[:eq]),
			Value: strings.TrimSpace(part[eq+1:]),
		})
	}
	return tpl
}

// splitTopLevel splits s on sep occurrences outside {{...}} and [[...]]
// nesting.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	var braces, brackets int
	last := 0
	for i := 0; i < len(s); i++ {
		if i < len(s)-1 {
			switch {
			case s[i] == '{' && s[i+1] == '{':
				braces++
				i++
				continue
			case s[i] == '}' && s[i+1] == '}':
				braces--
				i++
				continue
			case s[i] == '[' && s[i+1] == '[':
				brackets++
				i++
				continue
			case s[i] == ']' && s[i+1] == ']':
				brackets--
				i++
				continue
			}
		}
		if s[i] == sep && braces <= 0 && brackets <= 0 {
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

func indexTopLevel(s string, sep byte) int {
	var braces, brackets int
	for i := 0; i < len(s); i++ {
		if i < len(s)-1 {
			switch {
			case s[i] == '{' && s[i+1] == '{':
				braces++
				i++
				continue
			case s[i] == '}' && s[i+1] == '}':
				braces--
				i++
				continue
			case s[i] == '[' && s[i+1] == '[':
				brackets++
				i++
				continue
			case s[i] == ']' && s[i+1] == ']':
				brackets--
				i++
				continue
			}
		}
		if s[i] == sep && braces <= 0 && brackets <= 0 {
			return i
		}
	}
	return -1
}

func normalizeName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
