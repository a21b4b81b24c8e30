// Package protect shields the machine-readable parts of a catalog string
// (printf placeholders, template expressions) from a natural-language
// translator and restores them afterwards.
//
// Protected spans are wrapped inline with a short marker tag, <x>…</x> by
// default. The translator is told to leave that tag alone, so the mapping
// back to the original text travels inside the text itself.
package protect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	po "github.com/akretion/translation-scripts/pofile"
)

// ErrMarkerCollision is returned by Mask when the source text already
// contains the marker tag; masking it would make Unmask lossy.
var ErrMarkerCollision = errors.New("source text already contains the marker tag")

// Rule selects which protection steps Mask applies.
type Rule uint8

const (
	// RulePlaceholder protects printf-style placeholders: %s, %d, %(name)s.
	RulePlaceholder Rule = 1 << iota
	// RuleTemplate protects template expressions such as {{ object.name }}.
	RuleTemplate

	// RuleAll enables every rule.
	RuleAll = RulePlaceholder | RuleTemplate
)

// ContentType tells the translator how to parse the text around the markers.
type ContentType int

const (
	ContentPlain ContentType = iota
	ContentMarkup
)

func (c ContentType) String() string {
	if c == ContentMarkup {
		return "markup"
	}
	return "plain"
}

// Defaults used by New when the corresponding Config field is empty.
const (
	DefaultTag           = "x"
	DefaultTemplateOpen  = "{{"
	DefaultTemplateClose = "}}"
	DefaultMarkupPrefix  = "model:mail.template,body_html"
)

// placeholderPattern matches a percent sign, an optional (name), optional
// flags/width/precision and one conversion character. "%%" matches as a unit.
var placeholderPattern = regexp.MustCompile(`%(?:\([^()\s]*\))?[-+#0]*\d*(?:\.\d+)?[sdifrxX%]`)

var tagPattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

// htmlElements lists element names a rich-text field may legitimately
// contain; the marker tag must not be one of them.
var htmlElements = map[string]bool{
	"a": true, "b": true, "i": true, "p": true, "q": true, "s": true, "u": true,
	"br": true, "em": true, "hr": true, "li": true, "ol": true, "ul": true,
	"td": true, "th": true, "tr": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "div": true, "img": true, "del": true,
	"ins": true, "sub": true, "sup": true, "span": true, "font": true,
	"code": true, "pre": true, "small": true, "strong": true, "table": true,
	"tbody": true, "thead": true, "center": true, "t": true,
}

// Config configures a Transformer. Zero values select the defaults.
type Config struct {
	// Tag is the marker element name (default "x").
	Tag string
	// Rules is the enabled rule set (default RuleAll).
	Rules Rule
	// TemplateOpen and TemplateClose delimit template expressions.
	TemplateOpen  string
	TemplateClose string
	// FirstTemplateOnly wraps only the first template expression of a
	// string instead of every non-overlapping one.
	FirstTemplateOnly bool
	// MarkupPrefixes are reference prefixes that mark rich-text fields.
	MarkupPrefixes []string
}

// Transformer masks and unmasks text. It holds no mutable state and is
// safe for concurrent use.
type Transformer struct {
	cfg   Config
	open  string
	close string
}

// New validates cfg and returns a Transformer.
func New(cfg Config) (*Transformer, error) {
	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	if cfg.Rules == 0 {
		cfg.Rules = RuleAll
	}
	if cfg.TemplateOpen == "" {
		cfg.TemplateOpen = DefaultTemplateOpen
	}
	if cfg.TemplateClose == "" {
		cfg.TemplateClose = DefaultTemplateClose
	}
	if cfg.MarkupPrefixes == nil {
		cfg.MarkupPrefixes = []string{DefaultMarkupPrefix}
	}

	if !tagPattern.MatchString(cfg.Tag) {
		return nil, fmt.Errorf("invalid marker tag %q: must be a lowercase element name", cfg.Tag)
	}
	if htmlElements[cfg.Tag] {
		return nil, fmt.Errorf("invalid marker tag %q: collides with an HTML element", cfg.Tag)
	}

	return &Transformer{
		cfg:   cfg,
		open:  "<" + cfg.Tag + ">",
		close: "</" + cfg.Tag + ">",
	}, nil
}

// Tag returns the marker element name the translator must ignore.
func (t *Transformer) Tag() string {
	return t.cfg.Tag
}

// Mask wraps every protected span of text in marker tags.
func (t *Transformer) Mask(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	if strings.Contains(text, t.open) || strings.Contains(text, t.close) {
		return "", ErrMarkerCollision
	}

	if t.cfg.Rules&RulePlaceholder != 0 {
		text = placeholderPattern.ReplaceAllStringFunc(text, t.wrap)
	}
	if t.cfg.Rules&RuleTemplate != 0 {
		text = t.wrapTemplates(text)
	}
	return text, nil
}

// Unmask removes every marker tag from text, leaving content untouched.
// Removal repeats until no tag is left, so Unmask is idempotent even for
// input like "<<x>x>".
func (t *Transformer) Unmask(text string) string {
	for strings.Contains(text, t.open) || strings.Contains(text, t.close) {
		text = strings.ReplaceAll(text, t.open, "")
		text = strings.ReplaceAll(text, t.close, "")
	}
	return text
}

// Classify returns ContentMarkup when one of refs comes from a rich-text
// field, ContentPlain otherwise.
func (t *Transformer) Classify(refs []po.Reference) ContentType {
	for _, ref := range refs {
		for _, prefix := range t.cfg.MarkupPrefixes {
			if prefix != "" && strings.HasPrefix(ref.Source, prefix) {
				return ContentMarkup
			}
		}
	}
	return ContentPlain
}

func (t *Transformer) wrap(s string) string {
	return t.open + s + t.close
}

// wrapTemplates wraps open…close spans. A closing delimiter is only
// searched for after its opening delimiter.
func (t *Transformer) wrapTemplates(text string) string {
	open, close := t.cfg.TemplateOpen, t.cfg.TemplateClose
	if !strings.Contains(text, open) || !strings.Contains(text, close) {
		return text
	}

	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, open)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(open):], close)
		if end < 0 {
			break
		}
		end += start + len(open) + len(close)

		b.WriteString(rest[:start])
		b.WriteString(t.wrap(rest[start:end]))
		rest = rest[end:]

		if t.cfg.FirstTemplateOnly {
			break
		}
	}
	b.WriteString(rest)
	return b.String()
}
