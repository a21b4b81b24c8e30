// Package glossary keeps a named DeepL glossary in line with the
// terminology spreadsheet.
package glossary

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/akretion/translation-scripts/deepl"
	"github.com/akretion/translation-scripts/sheet"
)

// API is the subset of the DeepL client used here.
type API interface {
	ListGlossaries(ctx context.Context) ([]deepl.Glossary, error)
	CreateGlossary(ctx context.Context, name, sourceLang, targetLang, tsv string) (deepl.Glossary, error)
	DeleteGlossary(ctx context.Context, id string) error
	GlossaryEntries(ctx context.Context, id string) (string, error)
}

// Entry is one term pair.
type Entry struct {
	Source string
	Target string
}

// Entries is an ordered term list.
type Entries []Entry

// FromPairs builds entries from spreadsheet rows. Terms are trimmed, the
// first occurrence of a source wins, and rows containing a tab or a line
// break (which TSV cannot carry) are dropped.
func FromPairs(pairs []sheet.Pair) (entries Entries, dropped int) {
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		src := strings.TrimSpace(p.Source)
		dst := strings.TrimSpace(p.Target)
		if src == "" || dst == "" || strings.ContainsAny(src+dst, "\t\r\n") {
			dropped++
			continue
		}
		if seen[src] {
			dropped++
			continue
		}
		seen[src] = true
		entries = append(entries, Entry{Source: src, Target: dst})
	}
	return entries, dropped
}

// TSV renders entries in DeepL's upload format.
func (es Entries) TSV() string {
	var sb strings.Builder
	for i, e := range es {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.Source)
		sb.WriteByte('\t')
		sb.WriteString(e.Target)
	}
	return sb.String()
}

// ParseTSV reads DeepL's entries format. Malformed lines are ignored.
func ParseTSV(tsv string) Entries {
	var out Entries
	for _, line := range strings.Split(strings.ReplaceAll(tsv, "\r\n", "\n"), "\n") {
		src, dst, ok := strings.Cut(line, "\t")
		if !ok || src == "" {
			continue
		}
		out = append(out, Entry{Source: src, Target: dst})
	}
	return out
}

// Equal reports whether both lists hold the same pairs, in any order.
func (es Entries) Equal(other Entries) bool {
	if len(es) != len(other) {
		return false
	}
	a, b := es.sorted(), other.sorted()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (es Entries) sorted() Entries {
	out := append(Entries(nil), es...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// Lang converts a DeepL language code to the glossary form: "PT-BR" is "pt".
func Lang(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}

// Result describes what Sync did.
type Result struct {
	// ID is the glossary to use, empty when there are no entries.
	ID      string
	Reused  bool
	Created bool
	// Ready is false when DeepL still reports the glossary as building.
	Ready   bool
	Deleted int
	Entries int
}

// Find returns the glossaries named name for the language pair.
func Find(ctx context.Context, api API, name, sourceLang, targetLang string) ([]deepl.Glossary, error) {
	all, err := api.ListGlossaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing glossaries: %w", err)
	}
	src, dst := Lang(sourceLang), Lang(targetLang)

	var out []deepl.Glossary
	for _, g := range all {
		if g.Name == name && Lang(g.SourceLang) == src && Lang(g.TargetLang) == dst {
			out = append(out, g)
		}
	}
	return out, nil
}

// Sync makes sure exactly one glossary named name holds entries for the
// language pair. A glossary whose content already matches is reused;
// otherwise every same-named glossary of the pair is deleted and a new one
// is created. A new glossary that is not ready yet is listed once more
// before Sync returns. With no entries, stale glossaries are removed and
// Result.ID is empty.
func Sync(ctx context.Context, api API, name, sourceLang, targetLang string, entries Entries) (Result, error) {
	res := Result{Entries: len(entries)}

	existing, err := Find(ctx, api, name, sourceLang, targetLang)
	if err != nil {
		return res, err
	}

	if len(entries) > 0 {
		for _, g := range existing {
			if !g.Ready || g.EntryCount != len(entries) {
				continue
			}
			tsv, err := api.GlossaryEntries(ctx, g.ID)
			if err != nil {
				return res, fmt.Errorf("reading glossary %s: %w", g.ID, err)
			}
			if ParseTSV(tsv).Equal(entries) {
				res.ID = g.ID
				res.Reused = true
				res.Ready = true
				break
			}
		}
	}

	for _, g := range existing {
		if g.ID == res.ID {
			continue
		}
		if err := api.DeleteGlossary(ctx, g.ID); err != nil {
			return res, fmt.Errorf("deleting glossary %s: %w", g.ID, err)
		}
		res.Deleted++
	}

	if res.Reused || len(entries) == 0 {
		return res, nil
	}

	g, err := api.CreateGlossary(ctx, name, Lang(sourceLang), Lang(targetLang), entries.TSV())
	if err != nil {
		return res, fmt.Errorf("creating glossary %q: %w", name, err)
	}
	res.ID = g.ID
	res.Created = true
	res.Ready = g.Ready
	if !res.Ready {
		res.Ready = isReady(ctx, api, g.ID)
	}
	return res, nil
}

// isReady lists the glossaries once and reports the state of id. A failed
// listing counts as not ready.
func isReady(ctx context.Context, api API, id string) bool {
	all, err := api.ListGlossaries(ctx)
	if err != nil {
		return false
	}
	for _, g := range all {
		if g.ID == id {
			return g.Ready
		}
	}
	return false
}

// Delete removes every glossary named name for the pair and returns how
// many were deleted.
func Delete(ctx context.Context, api API, name, sourceLang, targetLang string) (int, error) {
	existing, err := Find(ctx, api, name, sourceLang, targetLang)
	if err != nil {
		return 0, err
	}
	for i, g := range existing {
		if err := api.DeleteGlossary(ctx, g.ID); err != nil {
			return i, fmt.Errorf("deleting glossary %s: %w", g.ID, err)
		}
	}
	return len(existing), nil
}
