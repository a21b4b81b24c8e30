package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/akretion/translation-scripts/deepl"
	"github.com/akretion/translation-scripts/lockfile"
	"github.com/akretion/translation-scripts/memory"
	po "github.com/akretion/translation-scripts/pofile"
	"github.com/akretion/translation-scripts/sheet"
)

// fakeTranslator upper-cases everything outside <x> markers so tests can
// see both what was sent and what came back.
type fakeTranslator struct {
	requests []deepl.TranslateRequest
	failOn   map[string]error
}

func (f *fakeTranslator) Translate(_ context.Context, req deepl.TranslateRequest) (string, error) {
	f.requests = append(f.requests, req)
	if err := f.failOn[req.Text]; err != nil {
		return "", err
	}
	var sb strings.Builder
	rest := req.Text
	for {
		i := strings.Index(rest, "<x>")
		if i < 0 {
			sb.WriteString(strings.ToUpper(rest))
			break
		}
		j := strings.Index(rest[i:], "</x>")
		sb.WriteString(strings.ToUpper(rest[:i]))
		sb.WriteString(rest[i : i+j+4])
		rest = rest[i+j+4:]
	}
	return sb.String(), nil
}

func (f *fakeTranslator) sent() []string {
	var out []string
	for _, r := range f.requests {
		out = append(out, r.Text)
	}
	return out
}

func catalog(entries ...*po.Entry) *po.File {
	f := po.NewFile()
	f.SetHeaderField("Language", "fr")
	f.Entries = entries
	return f
}

func TestRunMasksAndUnmasks(t *testing.T) {
	tmpl := &po.Entry{
		MsgID:      "Dear {{object.name}}, order %s",
		References: []string{"model:mail.template,body_html:sale.email_template"},
	}
	plain := &po.Entry{MsgID: "Hello %(name)s", References: []string{"addons/sale/models/sale.py:12"}}
	done := &po.Entry{MsgID: "Done", MsgStr: "Fait"}
	f := catalog(tmpl, plain, done)

	tr := &fakeTranslator{}
	report, err := Run(context.Background(), f, Options{
		Translator: tr,
		SourceLang: "EN",
		TargetLang: "FR",
		GlossaryID: "g-1",
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	wantSent := []string{
		"Dear <x>{{object.name}}</x>, order <x>%s</x>",
		"Hello <x>%(name)s</x>",
	}
	if diff := cmp.Diff(wantSent, tr.sent()); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
	if tr.requests[0].TagHandling != "html" || tr.requests[1].TagHandling != "xml" {
		t.Fatalf("tag handling = %q, %q", tr.requests[0].TagHandling, tr.requests[1].TagHandling)
	}
	for _, r := range tr.requests {
		if diff := cmp.Diff([]string{"x"}, r.IgnoreTags); diff != "" {
			t.Fatalf("ignore tags mismatch: %s", diff)
		}
		if r.GlossaryID != "g-1" || r.SourceLang != "EN" || r.TargetLang != "FR" {
			t.Fatalf("request = %+v", r)
		}
	}

	if tmpl.MsgStr != "DEAR {{object.name}}, ORDER %s" {
		t.Fatalf("template msgstr = %q", tmpl.MsgStr)
	}
	if plain.MsgStr != "HELLO %(name)s" {
		t.Fatalf("plain msgstr = %q", plain.MsgStr)
	}
	if done.MsgStr != "Fait" {
		t.Fatalf("translated entry changed: %q", done.MsgStr)
	}

	wantChars := len(wantSent[0]) + len(wantSent[1])
	if report.Translated != 2 || report.Characters != wantChars {
		t.Fatalf("report = %+v, want 2 translated and %d chars", report, wantChars)
	}
}

func TestRunSkipsBlankAndCollisions(t *testing.T) {
	f := catalog(
		&po.Entry{MsgID: "   "},
		&po.Entry{MsgID: "Use <x>tags</x>"},
		&po.Entry{MsgID: "Ok"},
	)
	tr := &fakeTranslator{}
	var errorsLogged int
	report, err := Run(context.Background(), f, Options{
		Translator: tr,
		TargetLang: "FR",
		OnError:    func(string, ...any) { errorsLogged++ },
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if diff := cmp.Diff([]string{"Ok"}, tr.sent()); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
	if report.Skipped != 2 || report.Translated != 1 {
		t.Fatalf("report = %+v", report)
	}
	if errorsLogged != 1 {
		t.Fatalf("errors logged = %d, want 1 (collision)", errorsLogged)
	}
}

func TestRunMemoryFirst(t *testing.T) {
	f := catalog(
		&po.Entry{MsgID: "Save"},
		&po.Entry{MsgID: "Quotation", MsgStr: "Offre", Flags: []string{"fuzzy"}},
		&po.Entry{MsgID: "Cancel"},
	)
	mem := memory.New([]sheet.Pair{
		{Source: "Save", Target: "Enregistrer"},
		{Source: "Quotation", Target: "Devis"},
	})
	tr := &fakeTranslator{}

	report, err := Run(context.Background(), f, Options{
		Memory:     mem,
		Translator: tr,
		TargetLang: "FR",
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.MemoryApplied != 2 || report.Translated != 1 {
		t.Fatalf("report = %+v", report)
	}
	if diff := cmp.Diff([]string{"Cancel"}, tr.sent()); diff != "" {
		t.Fatalf("sent mismatch (-want +got):\n%s", diff)
	}
	if q := f.EntryByMsgID("Quotation"); q.MsgStr != "Devis" || q.IsFuzzy() {
		t.Fatalf("Quotation = %q fuzzy=%v", q.MsgStr, q.IsFuzzy())
	}
}

func TestRunNoTranslatorOnlyMemory(t *testing.T) {
	f := catalog(&po.Entry{MsgID: "Save"}, &po.Entry{MsgID: "Cancel"})
	report, err := Run(context.Background(), f, Options{
		Memory: memory.New([]sheet.Pair{{Source: "Save", Target: "Enregistrer"}}),
	})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.MemoryApplied != 1 || report.Translated != 0 || !report.Changed() {
		t.Fatalf("report = %+v", report)
	}
}

func TestRunFuzzySelection(t *testing.T) {
	newFile := func() *po.File {
		return catalog(
			&po.Entry{MsgID: "fuzzy", MsgStr: "draft", Flags: []string{"fuzzy"}},
			&po.Entry{MsgID: "empty fuzzy", Flags: []string{"fuzzy"}},
			&po.Entry{MsgID: "done", MsgStr: "fait"},
			&po.Entry{MsgID: "new"},
		)
	}

	cases := []struct {
		name string
		opts Options
		want []string
	}{
		{"untranslated and fuzzy", Options{}, []string{"fuzzy", "empty fuzzy", "new"}},
		{"skip fuzzy drafts", Options{SkipFuzzy: true}, []string{"empty fuzzy", "new"}},
		{"retranslate", Options{RetranslateExisting: true}, []string{"fuzzy", "empty fuzzy", "done", "new"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &fakeTranslator{}
			tc.opts.Translator = tr
			if _, err := Run(context.Background(), newFile(), tc.opts); err != nil {
				t.Fatalf("Run error: %v", err)
			}
			if diff := cmp.Diff(tc.want, tr.sent()); diff != "" {
				t.Fatalf("sent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunMarkFuzzyAndLock(t *testing.T) {
	lock, err := lockfile.Load(t.TempDir())
	if err != nil {
		t.Fatalf("lockfile.Load: %v", err)
	}
	entry := &po.Entry{MsgID: "Invoice"}
	f := catalog(entry)
	opts := Options{
		TargetLang: "FR",
		MarkFuzzy:  true,
		Lock:       lock,
		LockTarget: "fr.po",
	}

	tr := &fakeTranslator{}
	opts.Translator = tr
	if _, err := Run(context.Background(), f, opts); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !entry.IsFuzzy() || entry.MsgStr != "INVOICE" {
		t.Fatalf("entry = %q fuzzy=%v", entry.MsgStr, entry.IsFuzzy())
	}

	// The unreviewed suggestion is not sent again.
	tr2 := &fakeTranslator{}
	opts.Translator = tr2
	report, err := Run(context.Background(), f, opts)
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if len(tr2.requests) != 0 || report.Skipped != 1 {
		t.Fatalf("second run sent %v, report %+v", tr2.sent(), report)
	}

	// Once a reviewer edits the text, the entry is fair game again.
	entry.MsgStr = "Facture"
	tr3 := &fakeTranslator{}
	opts.Translator = tr3
	if _, err := Run(context.Background(), f, opts); err != nil {
		t.Fatalf("third Run error: %v", err)
	}
	if len(tr3.requests) != 1 {
		t.Fatalf("third run sent %v", tr3.sent())
	}
}

func TestRunClearsFuzzyByDefault(t *testing.T) {
	e := &po.Entry{MsgID: "Invoice", MsgStr: "Facturation", Flags: []string{"fuzzy"}, PreviousMsgID: "Invoices"}
	if _, err := Run(context.Background(), catalog(e), Options{Translator: &fakeTranslator{}}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if e.IsFuzzy() || e.PreviousMsgID != "" || e.MsgStr != "INVOICE" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestRunPlural(t *testing.T) {
	e := &po.Entry{MsgID: "%d line", MsgIDPlural: "%d lines"}
	f := catalog(e)
	f.SetHeaderField("Plural-Forms", "nplurals=3; plural=(n%10==1 ? 0 : 1);")

	tr := &fakeTranslator{}
	if _, err := Run(context.Background(), f, Options{Translator: tr}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := map[int]string{0: "%d LINE", 1: "%d LINES", 2: "%d LINES"}
	if diff := cmp.Diff(want, e.MsgStrPlural); diff != "" {
		t.Fatalf("plural forms mismatch (-want +got):\n%s", diff)
	}
	if len(tr.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(tr.requests))
	}
}

func TestRunBudget(t *testing.T) {
	f := catalog(&po.Entry{MsgID: "12345"}, &po.Entry{MsgID: "67890"}, &po.Entry{MsgID: "abc"})
	tr := &fakeTranslator{}
	report, err := Run(context.Background(), f, Options{Translator: tr, MaxCharacters: 12})
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if report.Translated != 2 || report.Characters != 10 {
		t.Fatalf("report = %+v", report)
	}
	if f.Entries[0].MsgStr == "" || f.Entries[2].MsgStr != "" {
		t.Fatalf("partial work not kept as expected: %q %q", f.Entries[0].MsgStr, f.Entries[2].MsgStr)
	}
}

func TestRunDryRun(t *testing.T) {
	f := catalog(&po.Entry{MsgID: "Hello %s"}, &po.Entry{MsgID: "Bye"})
	report, err := Run(context.Background(), f, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := len("Hello <x>%s</x>") + len("Bye")
	if report.Translated != 2 || report.Characters != want {
		t.Fatalf("report = %+v, want %d chars", report, want)
	}
	for _, e := range f.Entries {
		if e.MsgStr != "" {
			t.Fatalf("dry run changed %q", e.MsgID)
		}
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("fatal errors abort", func(t *testing.T) {
		for _, fatal := range []error{deepl.ErrAuth, deepl.ErrQuotaExceeded} {
			tr := &fakeTranslator{failOn: map[string]error{"a": fatal}}
			f := catalog(&po.Entry{MsgID: "a"}, &po.Entry{MsgID: "b"})
			_, err := Run(context.Background(), f, Options{Translator: tr})
			if !errors.Is(err, fatal) {
				t.Fatalf("err = %v, want %v", err, fatal)
			}
			if len(tr.requests) != 1 {
				t.Fatalf("run continued after %v", fatal)
			}
		}
	})

	t.Run("other errors are collected", func(t *testing.T) {
		apiErr := &deepl.Error{StatusCode: 400, Message: "bad"}
		tr := &fakeTranslator{failOn: map[string]error{"a": apiErr, "c": fmt.Errorf("boom")}}
		f := catalog(&po.Entry{MsgID: "a"}, &po.Entry{MsgID: "b"}, &po.Entry{MsgID: "c"})
		report, err := Run(context.Background(), f, Options{Translator: tr})
		if err == nil {
			t.Fatal("expected aggregated error")
		}
		var got *deepl.Error
		if !errors.As(err, &got) || got.StatusCode != 400 {
			t.Fatalf("err = %v, want to unwrap to *deepl.Error", err)
		}
		if report.Failed != 2 || report.Translated != 1 {
			t.Fatalf("report = %+v", report)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, catalog(&po.Entry{MsgID: "a"}), Options{Translator: &fakeTranslator{}})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})
}
