// Package merge brings a catalog in line with its POT template before a
// translation run, the way msgmerge does without fuzzy matching.
package merge

import (
	"sort"

	po "github.com/akretion/translation-scripts/pofile"
)

// Stats counts what Merge did.
type Stats struct {
	Added     int
	Kept      int
	Obsoleted int
}

func key(e *po.Entry) string {
	if e.MsgCtxt != "" {
		return e.MsgCtxt + "\x04" + e.MsgID
	}
	return e.MsgID
}

// Merge returns catalog updated from template. Messages are matched on
// context and msgid and follow the template's order; translations and
// translator comments are kept, references and extracted comments come
// from the template. Messages the template no longer has become obsolete.
// A changed msgid_plural drops the plural translations and marks the
// entry fuzzy.
func Merge(catalog, template *po.File) (*po.File, Stats) {
	var stats Stats
	result := po.NewFile()
	result.Header = catalog.Header
	if d := template.HeaderField("POT-Creation-Date"); d != "" {
		result.SetHeaderField("POT-Creation-Date", d)
	}

	existing := make(map[string]*po.Entry, len(catalog.Entries))
	for _, e := range catalog.Entries {
		if !e.Obsolete && e.MsgID != "" {
			existing[key(e)] = e
		}
	}

	seen := make(map[string]bool, len(template.Entries))
	for _, t := range template.Entries {
		if t.MsgID == "" || t.Obsolete {
			continue
		}
		k := key(t)
		if seen[k] {
			continue
		}
		seen[k] = true

		merged := &po.Entry{
			ExtractedComments: t.ExtractedComments,
			References:        t.References,
			Flags:             mergeFlags(nil, t.Flags),
			MsgCtxt:           t.MsgCtxt,
			MsgID:             t.MsgID,
			MsgIDPlural:       t.MsgIDPlural,
		}
		old, ok := existing[k]
		if !ok {
			stats.Added++
			result.Entries = append(result.Entries, merged)
			continue
		}

		stats.Kept++
		merged.TranslatorComments = old.TranslatorComments
		merged.Flags = mergeFlags(old.Flags, t.Flags)
		merged.PreviousMsgID = old.PreviousMsgID
		merged.MsgStr = old.MsgStr
		merged.MsgStrPlural = old.MsgStrPlural
		if old.MsgIDPlural != t.MsgIDPlural {
			replural(merged, old)
		}
		result.Entries = append(result.Entries, merged)
	}

	for _, e := range catalog.Entries {
		if e.MsgID == "" {
			continue
		}
		if e.Obsolete {
			result.Entries = append(result.Entries, e)
			continue
		}
		if seen[key(e)] {
			continue
		}
		if e.MsgStr == "" && len(e.MsgStrPlural) == 0 {
			continue
		}
		stats.Obsoleted++
		gone := *e
		gone.Obsolete = true
		gone.References = nil
		result.Entries = append(result.Entries, &gone)
	}

	return result, stats
}

// replural adapts the translation of an entry whose msgid_plural changed:
// only the first form survives, and a surviving translation needs review.
func replural(merged, old *po.Entry) {
	first := old.MsgStr
	if old.MsgIDPlural != "" {
		first = old.MsgStrPlural[0]
	}
	merged.MsgStr, merged.MsgStrPlural = "", nil
	if merged.MsgIDPlural == "" {
		merged.MsgStr = first
	} else if first != "" {
		merged.MsgStrPlural = map[int]string{0: first}
	}
	if first != "" {
		merged.SetFuzzy(true)
	}
}

// mergeFlags keeps fuzzy from the catalog and format flags from the
// template, fuzzy first and the rest sorted.
func mergeFlags(catalogFlags, templateFlags []string) []string {
	set := make(map[string]bool)
	fuzzy := false
	for _, f := range catalogFlags {
		if f == "fuzzy" {
			fuzzy = true
		}
	}
	for _, f := range templateFlags {
		if f != "fuzzy" {
			set[f] = true
		}
	}

	var out []string
	if fuzzy {
		out = append(out, "fuzzy")
	}
	rest := make([]string, 0, len(set))
	for f := range set {
		rest = append(rest, f)
	}
	sort.Strings(rest)
	return append(out, rest...)
}
