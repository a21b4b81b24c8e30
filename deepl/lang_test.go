package deepl

import "testing"

func TestSourceLang(t *testing.T) {
	tests := map[string]string{
		"en":         "EN",
		"en_US":      "EN",
		"pt_BR":      "PT",
		"fr-FR":      "FR",
		"de_DE.UTF8": "DE",
	}
	for in, want := range tests {
		got, err := SourceLang(in)
		if err != nil {
			t.Fatalf("SourceLang(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("SourceLang(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTargetLang(t *testing.T) {
	tests := map[string]string{
		"fr":      "FR",
		"fr_FR":   "FR",
		"fr_BE":   "FR",
		"de":      "DE",
		"en":      "EN-US",
		"en_GB":   "EN-GB",
		"pt":      "PT-PT",
		"pt_BR":   "PT-BR",
		"zh_CN":   "ZH-HANS",
		"zh_TW":   "ZH-HANT",
		"zh-Hant": "ZH-HANT",
		"es_419":  "ES",
	}
	for in, want := range tests {
		got, err := TargetLang(in)
		if err != nil {
			t.Fatalf("TargetLang(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("TargetLang(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLangInvalid(t *testing.T) {
	if _, err := TargetLang("not a language"); err == nil {
		t.Fatal("expected error for invalid code")
	}
}
