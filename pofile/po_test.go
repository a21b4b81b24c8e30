package pofile

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const sampleCatalog = `# Translation of Odoo Server.
msgid ""
msgstr ""
"Project-Id-Version: Odoo Server 16.0\n"
"Language: fr\n"

#. module: sale
#: model:mail.template,body_html:sale.email_template_edi_sale
msgid ""
"<div>\n"
"Dear {{ object.partner_id.name }}\n"
"</div>"
msgstr ""

#. module: sale
#: code:addons/sale/models/sale_order.py:0
#: addons/sale/models/sale_order.py:120 addons/sale/wizard/x.py:7
#, python-format
msgid "Order %s confirmed"
msgstr "Commande %s confirmée"

#, fuzzy, python-format
#| msgid "old count"
msgid "%d line"
msgid_plural "%d lines"
msgstr[0] "%d ligne"
msgstr[1] "%d lignes"

#~ msgid "Gone"
#~ msgstr "Parti"
`

func TestParseWriteRoundTrip(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if got := f.Language(); got != "fr" {
		t.Fatalf("Language() = %q, want fr", got)
	}
	if len(f.Entries) != 4 {
		t.Fatalf("entries len = %d, want 4", len(f.Entries))
	}

	tmpl := f.Entries[0]
	if want := "<div>\nDear {{ object.partner_id.name }}\n</div>"; tmpl.MsgID != want {
		t.Fatalf("multiline msgid = %q, want %q", tmpl.MsgID, want)
	}

	plural := f.EntryByMsgID("%d line")
	if plural == nil {
		t.Fatal("plural entry not found")
	}
	if !plural.IsFuzzy() || !plural.HasFlag("python-format") {
		t.Fatalf("plural flags = %v", plural.Flags)
	}
	if plural.PreviousMsgID != "old count" {
		t.Fatalf("PreviousMsgID = %q, want old count", plural.PreviousMsgID)
	}
	if !f.Entries[3].Obsolete || f.Entries[3].MsgStr != "Parti" {
		t.Fatalf("obsolete entry = %#v", f.Entries[3])
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	round, err := Parse(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Parse roundtrip error: %v", err)
	}
	if !reflect.DeepEqual(round.Entries, f.Entries) {
		t.Fatalf("roundtrip entries differ:\n%s", buf.String())
	}
	if round.Header.MsgStr != f.Header.MsgStr {
		t.Fatalf("roundtrip header = %q, want %q", round.Header.MsgStr, f.Header.MsgStr)
	}
}

func TestOccurrences(t *testing.T) {
	f, err := Parse(strings.NewReader(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	got := f.EntryByMsgID("Order %s confirmed").Occurrences()
	want := []Reference{
		{Source: "code:addons/sale/models/sale_order.py:0"},
		{Source: "addons/sale/models/sale_order.py", Line: 120},
		{Source: "addons/sale/wizard/x.py", Line: 7},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Occurrences() = %#v, want %#v", got, want)
	}

	ref := f.Entries[0].Occurrences()[0]
	if ref.Source != "model:mail.template,body_html:sale.email_template_edi_sale" || ref.Line != 0 {
		t.Fatalf("model reference = %#v", ref)
	}
	if ref.String() != ref.Source {
		t.Fatalf("String() = %q", ref.String())
	}
	if s := want[1].String(); s != "addons/sale/models/sale_order.py:120" {
		t.Fatalf("String() = %q", s)
	}
}

func TestSetFuzzyAndStats(t *testing.T) {
	f := NewFile()
	f.Entries = []*Entry{
		{MsgID: "t1", MsgStr: "translated"},
		{MsgID: "f1", MsgStr: "draft", Flags: []string{"fuzzy"}, PreviousMsgID: "f0"},
		{MsgID: "u1"},
		{MsgID: "p1", MsgIDPlural: "p1s", MsgStrPlural: map[int]string{0: "one", 1: "many"}},
		{MsgID: "p2", MsgIDPlural: "p2s", MsgStrPlural: map[int]string{0: "only one", 1: ""}},
		{MsgID: "old", MsgStr: "x", Obsolete: true},
	}

	total, translated, fuzzy, untranslated := f.Stats()
	if total != 5 || translated != 2 || fuzzy != 1 || untranslated != 2 {
		t.Fatalf("Stats = total=%d translated=%d fuzzy=%d untranslated=%d", total, translated, fuzzy, untranslated)
	}
	if len(f.FuzzyEntries()) != 1 || len(f.UntranslatedEntries()) != 2 {
		t.Fatalf("FuzzyEntries=%d UntranslatedEntries=%d", len(f.FuzzyEntries()), len(f.UntranslatedEntries()))
	}

	e := f.Entries[1]
	e.SetFuzzy(false)
	if e.IsFuzzy() || e.PreviousMsgID != "" {
		t.Fatalf("SetFuzzy(false) left flags=%v previous=%q", e.Flags, e.PreviousMsgID)
	}
	e.Flags = []string{"python-format"}
	e.SetFuzzy(true)
	e.SetFuzzy(true)
	if !reflect.DeepEqual(e.Flags, []string{"fuzzy", "python-format"}) {
		t.Fatalf("SetFuzzy(true) flags = %v", e.Flags)
	}
}

func TestHeaderHelpers(t *testing.T) {
	f := NewFile()
	f.Header.MsgStr = "Language: de\n"
	f.SetHeaderField("language", "fr")
	f.SetHeaderField("Plural-Forms", PluralFormsForLang("fr"))

	if got := f.Language(); got != "fr" {
		t.Fatalf("Language() = %q, want fr", got)
	}
	if got := f.Nplurals(); got != 2 {
		t.Fatalf("Nplurals() = %d, want 2", got)
	}

	f.Touch(time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), "potm")
	if got := f.HeaderField("PO-Revision-Date"); got != "2026-03-01 10:30+0000" {
		t.Fatalf("PO-Revision-Date = %q", got)
	}
	if got := f.HeaderField("Last-Translator"); got != "potm" {
		t.Fatalf("Last-Translator = %q", got)
	}

	ru := NewFile()
	ru.SetHeaderField("Language", "ru_RU")
	if got := ru.Nplurals(); got != 3 {
		t.Fatalf("Nplurals(ru_RU fallback) = %d, want 3", got)
	}
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fr.po")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f := NewFile()
	f.Entries = append(f.Entries, &Entry{MsgID: "Hello", MsgStr: "Bonjour"})
	if err := f.WriteFile(path); err != nil {
		t.Fatalf("File.WriteFile error: %v", err)
	}

	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile error: %v", err)
	}
	if e := got.EntryByMsgID("Hello"); e == nil || e.MsgStr != "Bonjour" {
		t.Fatalf("reloaded entry = %#v", e)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("mode = %o, want 600", info.Mode().Perm())
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".fr.po.*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestParseRejectsBadPluralIndex(t *testing.T) {
	_, err := Parse(strings.NewReader("msgid \"a\"\nmsgid_plural \"b\"\nmsgstr[x] \"c\"\n"))
	if err == nil {
		t.Fatal("expected error for invalid msgstr index")
	}
}
