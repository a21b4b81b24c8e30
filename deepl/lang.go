package deepl

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// regionalTargets are the bases for which DeepL distinguishes target variants.
var regionalTargets = map[string]func(region, script string) string{
	"EN": func(region, _ string) string {
		if region == "GB" {
			return "EN-GB"
		}
		return "EN-US"
	},
	"PT": func(region, _ string) string {
		if region == "BR" {
			return "PT-BR"
		}
		return "PT-PT"
	},
	"ZH": func(region, script string) string {
		if script == "Hant" || region == "TW" || region == "HK" || region == "MO" {
			return "ZH-HANT"
		}
		return "ZH-HANS"
	},
}

func parseTag(code string) (language.Tag, error) {
	code = strings.TrimSpace(code)
	if i := strings.IndexAny(code, ".@"); i >= 0 {
		code = code[:i]
	}
	code = strings.ReplaceAll(code, "_", "-")
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return tag, nil
}

// SourceLang converts a locale such as "en_US" into a DeepL source code ("EN").
// Source languages never carry a region.
func SourceLang(code string) (string, error) {
	tag, err := parseTag(code)
	if err != nil {
		return "", err
	}
	base, _ := tag.Base()
	return strings.ToUpper(base.String()), nil
}

// TargetLang converts a locale into a DeepL target code. Only English,
// Portuguese and Chinese keep a variant ("pt_BR" is "PT-BR"); other
// regions are dropped ("fr_FR" is "FR").
func TargetLang(code string) (string, error) {
	tag, err := parseTag(code)
	if err != nil {
		return "", err
	}
	b, _ := tag.Base()
	base := strings.ToUpper(b.String())

	variant, ok := regionalTargets[base]
	if !ok {
		return base, nil
	}
	region, conf := tag.Region()
	r := ""
	if conf == language.Exact {
		r = region.String()
	}
	script, sconf := tag.Script()
	s := ""
	if sconf == language.Exact {
		s = script.String()
	}
	return variant(r, s), nil
}
