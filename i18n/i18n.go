// Package i18n localises potm's own user-facing messages.
//
// It wraps gotext: catalogs are embedded from locales/{lang}/LC_MESSAGES/potm.po
// and selected once at startup by Init.
package i18n

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

//go:embed all:locales
var locales embed.FS

const domain = "potm"

var (
	po   *gotext.Locale
	lang = "en"
)

// Init selects the message language. An empty lang is detected from
// LANGUAGE, LC_ALL, LC_MESSAGES and LANG, in GNU gettext order.
func Init(l string) {
	if l == "" {
		l = detectLanguage()
	}
	lang = l

	po = gotext.NewLocaleFSWithPath(l, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Language returns the language passed to (or detected by) Init.
func Language() string {
	return lang
}

// T translates a string; untranslated strings pass through.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid, nil...)
}

// Tf translates a format string and applies args.
func Tf(format string, args ...any) string {
	return fmt.Sprintf(T(format), args...)
}

// N translates a string with plural forms.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		if idx := strings.IndexAny(val, ".@"); idx >= 0 {
			val = val[:idx]
		}
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return val
	}
	return "en"
}
