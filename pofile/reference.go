package pofile

import (
	"strconv"
	"strings"
)

// Reference is one "#:" occurrence of a message.
//
// Source-code references carry a line number ("addons/sale/sale.py:42").
// Model references such as "model:mail.template,body_html:sale.tmpl" do
// not; their Line is 0 and Source holds the whole marker.
type Reference struct {
	Source string
	Line   int
}

func (r Reference) String() string {
	if r.Line > 0 {
		return r.Source + ":" + strconv.Itoa(r.Line)
	}
	return r.Source
}

// ParseReference normalises a single occurrence token.
func ParseReference(token string) Reference {
	idx := strings.LastIndex(token, ":")
	if idx <= 0 || idx == len(token)-1 {
		return Reference{Source: token}
	}
	line, err := strconv.Atoi(token[idx+1:])
	if err != nil || line <= 0 {
		return Reference{Source: token}
	}
	return Reference{Source: token[:idx], Line: line}
}

// Occurrences returns the entry's references, one per whitespace-separated
// token of its "#:" lines.
func (e *Entry) Occurrences() []Reference {
	var refs []Reference
	for _, line := range e.References {
		for _, token := range strings.Fields(line) {
			refs = append(refs, ParseReference(token))
		}
	}
	return refs
}
