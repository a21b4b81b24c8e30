package config

import (
	"path/filepath"
	"strings"
)

// isLangCode checks if a string looks like a locale code (fr, pt_BR, zh_Hant, es_419).
func isLangCode(s string) bool {
	base, region, hasRegion := strings.Cut(s, "_")
	if len(base) < 2 || len(base) > 3 || !isLower(base) {
		return false
	}
	if !hasRegion {
		return true
	}
	switch {
	case len(region) == 2 && isUpper(region):
		return true
	case len(region) == 3 && isDigits(region):
		return true
	case len(region) == 4 && isUpper(region[:1]) && isLower(region[1:]):
		return true
	}
	return false
}

func isLower(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func isUpper(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LangFromPath guesses a catalog's language from its location, for
// catalogs without a Language header. Both flat (i18n/fr.po) and nested
// (locale/fr/LC_MESSAGES/app.po) layouts are recognised.
func LangFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if isLangCode(name) {
		return name
	}

	dir := filepath.Dir(path)
	if filepath.Base(dir) != "LC_MESSAGES" {
		return ""
	}
	if lang := filepath.Base(filepath.Dir(dir)); isLangCode(lang) {
		return lang
	}
	return ""
}

// TargetLangFor picks the target language of a catalog: the explicit
// value, then the config, then the catalog header, then the file path.
func (c *Config) TargetLangFor(explicit, header, path string) string {
	for _, lang := range []string{explicit, c.TargetLang, header, LangFromPath(path)} {
		if lang = strings.TrimSpace(lang); lang != "" {
			return lang
		}
	}
	return ""
}
