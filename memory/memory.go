// Package memory applies exact matches from a translation memory to a
// catalog. Matching is byte-exact on msgid; no fuzzy matching is attempted.
package memory

import (
	po "github.com/akretion/translation-scripts/pofile"
	"github.com/akretion/translation-scripts/sheet"
)

// Memory maps source strings to their reviewed translation.
type Memory struct {
	targets map[string]string
	// Conflicts counts rows whose source was already present with a
	// different target. The first row wins.
	Conflicts int
}

// New builds a Memory from spreadsheet pairs.
func New(pairs []sheet.Pair) *Memory {
	m := &Memory{targets: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		if prev, ok := m.targets[p.Source]; ok {
			if prev != p.Target {
				m.Conflicts++
			}
			continue
		}
		m.targets[p.Source] = p.Target
	}
	return m
}

// Len returns the number of distinct sources.
func (m *Memory) Len() int {
	if m == nil {
		return 0
	}
	return len(m.targets)
}

// Lookup returns the translation stored for msgid.
func (m *Memory) Lookup(msgid string) (string, bool) {
	if m == nil {
		return "", false
	}
	t, ok := m.targets[msgid]
	return t, ok
}

// Options controls Apply.
type Options struct {
	// KeepExisting leaves already translated, non-fuzzy entries alone even
	// when the memory disagrees with them.
	KeepExisting bool
	// OnApply is called for every entry that was changed.
	OnApply func(e *po.Entry, previous string)
}

// Apply writes memory translations into the catalog and returns the number
// of entries changed. Plural entries are not touched since the memory holds
// a single form per source.
func (m *Memory) Apply(file *po.File, opts Options) int {
	if m.Len() == 0 {
		return 0
	}

	changed := 0
	for _, e := range file.Live() {
		if e.MsgIDPlural != "" {
			continue
		}
		target, ok := m.targets[e.MsgID]
		if !ok {
			continue
		}
		if e.MsgStr == target && !e.IsFuzzy() {
			continue
		}
		if opts.KeepExisting && e.IsTranslated() {
			continue
		}

		previous := e.MsgStr
		e.MsgStr = target
		e.SetFuzzy(false)
		changed++
		if opts.OnApply != nil {
			opts.OnApply(e, previous)
		}
	}
	return changed
}
