// Package format renders a form submission into notification email content.
package format

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode"

	"github.com/sungwon/lead-relay/internal/payload"
)

// Content is the composed email derived from one submission. It is built
// once and never mutated afterwards.
type Content struct {
	Subject  string
	HTMLBody string
	TextBody string
}

const (
	heading       = "New Trade-In Lead"
	subjectPrefix = "New Trade-In Lead –"
	noPhotosLine  = "No photos were attached to this submission."

	// tailField always renders after every other field, overriding the
	// lexicographic sort.
	tailField = "salesConsultant"
)

// excludedFields never render, regardless of their value. They are either
// transport plumbing (form-name) or spam-trap fields.
var excludedFields = map[string]struct{}{
	"form-name": {},
	"company":   {},
	"bot-field": {},
	"honeypot":  {},
}

var labelOverrides = map[string]string{
	tailField: "Sales Consultant",
}

type row struct {
	label string
	value string
}

// Build renders a submission and its file references into email content.
// It never fails: malformed or empty fields are omitted, and an empty
// submission still yields well-formed HTML and text.
func Build(sub payload.Submission, files []payload.FileReference) Content {
	rows := buildRows(sub)
	return Content{
		Subject:  buildSubject(sub),
		HTMLBody: buildHTML(rows, files),
		TextBody: buildText(rows, files),
	}
}

// buildRows enumerates fields in lexicographic key order, drops excluded
// and empty fields, and moves the tail field to the end.
func buildRows(sub payload.Submission) []row {
	keys := make([]string, 0, len(sub))
	for k := range sub {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows, tail []row
	for _, k := range keys {
		if _, skip := excludedFields[k]; skip {
			continue
		}
		field := sub[k]
		if field.IsEmpty() {
			continue
		}
		r := row{label: labelFor(k), value: field.String()}
		if k == tailField {
			tail = append(tail, r)
		} else {
			rows = append(rows, r)
		}
	}
	return append(rows, tail...)
}

// labelFor derives a display label from a field key: fixed overrides win,
// otherwise the key is split before each lowercase-to-uppercase transition
// and at underscores, and every word is capitalized.
func labelFor(key string) string {
	if label, ok := labelOverrides[key]; ok {
		return label
	}

	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}

	prevLower := false
	for _, r := range key {
		if r == '_' {
			flush()
			prevLower = false
			continue
		}
		if unicode.IsUpper(r) && prevLower {
			flush()
		}
		cur = append(cur, r)
		prevLower = unicode.IsLower(r)
	}
	flush()

	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// buildSubject interpolates year, make, and model into the fixed subject
// template, collapsing internal whitespace. Absent fields contribute
// nothing.
func buildSubject(sub payload.Submission) string {
	raw := fmt.Sprintf("%s %s %s %s",
		subjectPrefix,
		sub["year"].String(),
		sub["make"].String(),
		sub["model"].String(),
	)
	return strings.Join(strings.Fields(raw), " ")
}

func buildHTML(rows []row, files []payload.FileReference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>\n", heading)

	b.WriteString("<table cellpadding=\"6\" border=\"1\">\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>\n",
			html.EscapeString(r.label), html.EscapeString(r.value))
	}
	b.WriteString("</table>\n")

	b.WriteString("<h3>Photos</h3>\n")
	if len(files) == 0 {
		fmt.Fprintf(&b, "<p>%s</p>\n", noPhotosLine)
		return b.String()
	}

	b.WriteString("<ul>\n")
	for _, f := range files {
		name := f.Filename
		if name == "" {
			name = f.URL
		}
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n",
			html.EscapeString(f.URL), html.EscapeString(name))
	}
	b.WriteString("</ul>\n")
	return b.String()
}

func buildText(rows []row, files []payload.FileReference) string {
	var b strings.Builder
	b.WriteString(heading + "\n\n")

	for _, r := range rows {
		fmt.Fprintf(&b, "%s: %s\n", r.label, r.value)
	}

	b.WriteString("\nPhotos:\n")
	if len(files) == 0 {
		b.WriteString(noPhotosLine + "\n")
		return b.String()
	}
	for _, f := range files {
		b.WriteString(f.URL + "\n")
	}
	return b.String()
}
