package protect

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	po "github.com/akretion/translation-scripts/pofile"
)

func newTransformer(t *testing.T, cfg Config) *Transformer {
	t.Helper()
	tr, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v) error: %v", cfg, err)
	}
	return tr
}

// ---------------------------------------------------------------------------
// Mask
// ---------------------------------------------------------------------------

func TestMaskLeavesPlainTextUnchanged(t *testing.T) {
	tr := newTransformer(t, Config{})

	for _, text := range []string{
		"Hello world",
		"100% sure",
		"Save & close",
		"Only an opening {{ delimiter",
		"Only a closing }} delimiter",
		"Closing }} before opening {{",
		"Ünïcödé — 日本語",
	} {
		got, err := tr.Mask(text)
		if err != nil {
			t.Fatalf("Mask(%q) error: %v", text, err)
		}
		if got != text {
			t.Fatalf("Mask(%q) = %q, want unchanged", text, got)
		}
	}
}

func TestMaskWrapsPlaceholders(t *testing.T) {
	tr := newTransformer(t, Config{})

	tests := []struct {
		in   string
		want string
	}{
		{
			in:   "Hello %(name)s, you have %d items",
			want: "Hello <x>%(name)s</x>, you have <x>%d</x> items",
		},
		{in: "%s", want: "<x>%s</x>"},
		{in: "%s%d", want: "<x>%s</x><x>%d</x>"},
		{in: "Total: %.2f EUR", want: "Total: <x>%.2f</x> EUR"},
		{in: "100%% of %s", want: "100<x>%%</x> of <x>%s</x>"},
		{in: "literal %%s", want: "literal <x>%%</x>s"},
		{in: "%(count)d records", want: "<x>%(count)d</x> records"},
	}

	for _, tc := range tests {
		got, err := tr.Mask(tc.in)
		if err != nil {
			t.Fatalf("Mask(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Mask(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskWrapsTemplateExpression(t *testing.T) {
	tr := newTransformer(t, Config{})

	in := "Dear {{object.partner_id.name}}, your order is ready"
	want := "Dear <x>{{object.partner_id.name}}</x>, your order is ready"

	got, err := tr.Mask(in)
	if err != nil {
		t.Fatalf("Mask error: %v", err)
	}
	if got != want {
		t.Fatalf("Mask = %q, want %q", got, want)
	}
	if back := tr.Unmask(got); back != in {
		t.Fatalf("Unmask(Mask) = %q, want %q", back, in)
	}
}

func TestMaskTemplatePairs(t *testing.T) {
	in := "{{ a }} and {{ b }}"

	t.Run("all pairs by default", func(t *testing.T) {
		tr := newTransformer(t, Config{})
		got, _ := tr.Mask(in)
		if want := "<x>{{ a }}</x> and <x>{{ b }}</x>"; got != want {
			t.Fatalf("Mask = %q, want %q", got, want)
		}
	})

	t.Run("first pair only", func(t *testing.T) {
		tr := newTransformer(t, Config{FirstTemplateOnly: true})
		got, _ := tr.Mask(in)
		if want := "<x>{{ a }}</x> and {{ b }}"; got != want {
			t.Fatalf("Mask = %q, want %q", got, want)
		}
	})

	t.Run("placeholder inside expression", func(t *testing.T) {
		tr := newTransformer(t, Config{})
		got, _ := tr.Mask("{{ '%s' % name }}")
		if want := "<x>{{ '<x>%s</x>' % name }}</x>"; got != want {
			t.Fatalf("Mask = %q, want %q", got, want)
		}
	})

	t.Run("custom delimiters", func(t *testing.T) {
		tr := newTransformer(t, Config{TemplateOpen: "${", TemplateClose: "}"})
		got, _ := tr.Mask("Hi ${object.name}!")
		if want := "Hi <x>${object.name}</x>!"; got != want {
			t.Fatalf("Mask = %q, want %q", got, want)
		}
	})
}

func TestMaskRules(t *testing.T) {
	in := "%s {{ x }}"

	tr := newTransformer(t, Config{Rules: RulePlaceholder})
	if got, _ := tr.Mask(in); got != "<x>%s</x> {{ x }}" {
		t.Fatalf("placeholder-only Mask = %q", got)
	}

	tr = newTransformer(t, Config{Rules: RuleTemplate})
	if got, _ := tr.Mask(in); got != "%s <x>{{ x }}</x>" {
		t.Fatalf("template-only Mask = %q", got)
	}
}

func TestMaskEmptyString(t *testing.T) {
	tr := newTransformer(t, Config{})
	got, err := tr.Mask("")
	if err != nil || got != "" {
		t.Fatalf("Mask(\"\") = %q, %v; want empty, nil", got, err)
	}
}

func TestMaskRejectsMarkerCollision(t *testing.T) {
	tr := newTransformer(t, Config{})

	for _, text := range []string{"a <x>b</x> c", "dangling </x>", "<x>"} {
		if _, err := tr.Mask(text); !errors.Is(err, ErrMarkerCollision) {
			t.Fatalf("Mask(%q) err = %v, want ErrMarkerCollision", text, err)
		}
	}
}

func TestMaskPlaceholderCharactersUnchanged(t *testing.T) {
	tr := newTransformer(t, Config{})
	in := "Order %(name)s: %d lines, %5.1f%% done, %r"

	got, err := tr.Mask(in)
	if err != nil {
		t.Fatalf("Mask error: %v", err)
	}

	matches := placeholderPattern.FindAllString(in, -1)
	for _, m := range matches {
		if n := strings.Count(got, "<x>"+m+"</x>"); n < 1 {
			t.Fatalf("placeholder %q not wrapped exactly in %q", m, got)
		}
	}
	if strings.Count(got, "<x>") != len(matches) {
		t.Fatalf("got %d markers for %d placeholders in %q", strings.Count(got, "<x>"), len(matches), got)
	}
}

// ---------------------------------------------------------------------------
// Unmask
// ---------------------------------------------------------------------------

func TestRoundTripWithIdentityTranslator(t *testing.T) {
	tr := newTransformer(t, Config{})

	for _, text := range []string{
		"",
		"plain",
		"Hello %(name)s, you have %d items",
		"Dear {{object.partner_id.name}}, your order is ready",
		"<p>Hello {{ object.name }}</p><br/>%s",
		"{{ unterminated",
		"a%b%c%",
		"<x%s>",
	} {
		masked, err := tr.Mask(text)
		if err != nil {
			t.Fatalf("Mask(%q) error: %v", text, err)
		}
		if got := tr.Unmask(masked); got != text {
			t.Fatalf("Unmask(Mask(%q)) = %q", text, got)
		}
	}
}

func TestUnmaskIdempotent(t *testing.T) {
	tr := newTransformer(t, Config{})

	for _, x := range []string{
		"",
		"no markers",
		"<x>%s</x> bonjour",
		"<<x>x>",
		"<</x>/x>",
		"<x></x></x><x>",
	} {
		once := tr.Unmask(x)
		if twice := tr.Unmask(once); twice != once {
			t.Fatalf("Unmask not idempotent for %q: %q then %q", x, once, twice)
		}
	}
}

func TestUnmaskOnlyStripsMarkers(t *testing.T) {
	tr := newTransformer(t, Config{Tag: "z"})
	got := tr.Unmask("Bonjour <z>%(name)s</z>, <b>vous</b> avez <x>%d</x>")
	want := "Bonjour %(name)s, <b>vous</b> avez <x>%d</x>"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Unmask mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// Classify and config
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	tr := newTransformer(t, Config{})

	tests := []struct {
		name string
		refs []po.Reference
		want ContentType
	}{
		{name: "no references", want: ContentPlain},
		{
			name: "python source",
			refs: []po.Reference{{Source: "addons/sale/models/sale.py", Line: 12}},
			want: ContentPlain,
		},
		{
			name: "mail template body",
			refs: []po.Reference{
				{Source: "model:ir.model.fields,field_description:sale.field_x"},
				{Source: "model:mail.template,body_html:sale.email_template_edi_sale"},
			},
			want: ContentMarkup,
		},
		{
			name: "mail template subject",
			refs: []po.Reference{{Source: "model:mail.template,subject:sale.email_template_edi_sale"}},
			want: ContentPlain,
		},
	}

	for _, tc := range tests {
		if got := tr.Classify(tc.refs); got != tc.want {
			t.Fatalf("%s: Classify() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewValidatesTag(t *testing.T) {
	for _, tag := range []string{"p", "span", "X", "1a", "a b"} {
		if _, err := New(Config{Tag: tag}); err == nil {
			t.Fatalf("New(Tag=%q) should fail", tag)
		}
	}

	tr := newTransformer(t, Config{})
	if tr.Tag() != DefaultTag {
		t.Fatalf("Tag() = %q, want %q", tr.Tag(), DefaultTag)
	}
}
