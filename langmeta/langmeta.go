// Package langmeta provides display metadata for catalog languages (native
// name and emoji flag) used by the CLI.
package langmeta

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Meta describes language display metadata.
type Meta struct {
	Name string
	Flag string
}

// canonicalize turns a POSIX locale ("pt_BR.UTF-8") into a BCP 47 code.
func canonicalize(lang string) string {
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	normalized := strings.ReplaceAll(lang, "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 && len(parts[1]) == 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Resolve returns the language's own name for itself and the flag of its
// region (the most likely one when the code has none). Unknown codes come
// back as their own name with no flag.
func Resolve(lang string) Meta {
	code := canonicalize(lang)
	if code == "" {
		return Meta{Name: lang}
	}
	tag, err := language.Parse(code)
	if err != nil {
		return Meta{Name: lang}
	}

	m := Meta{Name: display.Self.Name(tag)}
	if m.Name == "" {
		m.Name = lang
	}
	if region, conf := tag.Region(); conf != language.No {
		m.Flag = flagFromRegion(region.String())
	}
	return m
}

// flagFromRegion builds the regional-indicator pair for a two-letter region.
func flagFromRegion(region string) string {
	if len(region) != 2 || region == "ZZ" {
		return ""
	}
	var sb strings.Builder
	for _, r := range strings.ToUpper(region) {
		if r < 'A' || r > 'Z' {
			return ""
		}
		sb.WriteRune(0x1F1E6 + r - 'A')
	}
	return sb.String()
}
