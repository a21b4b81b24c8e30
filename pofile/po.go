// Package pofile reads and writes gettext PO catalogs.
//
// Only what the translation run needs is modelled: entries with their
// comments, references, flags, context and (plural) strings. Obsolete
// "#~" entries are kept so a rewrite does not lose them.
package pofile

import (
	"strings"
	"time"
)

// Entry is a single message of a catalog.
type Entry struct {
	// TranslatorComments are "# " lines.
	TranslatorComments []string
	// ExtractedComments are "#." lines.
	ExtractedComments []string
	// References are raw "#:" lines; use Occurrences for parsed values.
	References []string
	// Flags are "#," values such as fuzzy or python-format.
	Flags []string
	// PreviousMsgID is the "#| msgid" of a fuzzy entry.
	PreviousMsgID string

	MsgCtxt      string
	MsgID        string
	MsgIDPlural  string
	MsgStr       string
	MsgStrPlural map[int]string

	// Obsolete marks "#~" entries.
	Obsolete bool
}

// IsTranslated reports whether the entry has a complete, non-fuzzy translation.
func (e *Entry) IsTranslated() bool {
	if e.MsgID == "" || e.IsFuzzy() {
		return false
	}
	if e.MsgIDPlural != "" {
		if len(e.MsgStrPlural) == 0 {
			return false
		}
		for _, v := range e.MsgStrPlural {
			if v == "" {
				return false
			}
		}
		return true
	}
	return e.MsgStr != ""
}

// IsFuzzy reports whether the entry carries the fuzzy flag.
func (e *Entry) IsFuzzy() bool {
	return e.HasFlag("fuzzy")
}

// SetFuzzy adds or removes the fuzzy flag. Clearing it also drops the
// previous msgid, which only makes sense on fuzzy entries.
func (e *Entry) SetFuzzy(fuzzy bool) {
	if fuzzy {
		if !e.IsFuzzy() {
			e.Flags = append([]string{"fuzzy"}, e.Flags...)
		}
		return
	}
	filtered := e.Flags[:0]
	for _, f := range e.Flags {
		if f != "fuzzy" {
			filtered = append(filtered, f)
		}
	}
	e.Flags = filtered
	e.PreviousMsgID = ""
}

// HasFlag checks if a specific flag is present.
func (e *Entry) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// File is a parsed catalog.
type File struct {
	// Header is the metadata entry (msgid "").
	Header  *Entry
	Entries []*Entry
}

// NewFile creates an empty catalog.
func NewFile() *File {
	return &File{
		Header:  &Entry{},
		Entries: make([]*Entry, 0),
	}
}

// HeaderField returns a header field value by name (case-insensitive).
func (f *File) HeaderField(name string) string {
	if f.Header == nil {
		return ""
	}
	for _, line := range strings.Split(f.Header.MsgStr, "\n") {
		if idx := strings.Index(line, ":"); idx > 0 {
			if strings.EqualFold(strings.TrimSpace(line[:idx]), name) {
				return strings.TrimSpace(line[idx+1:])
			}
		}
	}
	return ""
}

// SetHeaderField sets a header field value, appending it when missing.
func (f *File) SetHeaderField(name, value string) {
	if f.Header == nil {
		f.Header = &Entry{}
	}

	lines := strings.Split(f.Header.MsgStr, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, ":"); idx > 0 {
			if strings.EqualFold(strings.TrimSpace(line[:idx]), name) {
				lines[i] = name + ": " + value
				f.Header.MsgStr = strings.Join(lines, "\n")
				return
			}
		}
	}

	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = append(lines[:len(lines)-1], name+": "+value, "")
	} else {
		lines = append(lines, name+": "+value)
	}
	f.Header.MsgStr = strings.Join(lines, "\n")
}

// Language returns the catalog's Language header.
func (f *File) Language() string {
	return f.HeaderField("Language")
}

// Touch stamps PO-Revision-Date and, when given, Last-Translator.
func (f *File) Touch(now time.Time, translator string) {
	f.SetHeaderField("PO-Revision-Date", now.UTC().Format("2006-01-02 15:04-0700"))
	if translator != "" {
		f.SetHeaderField("Last-Translator", translator)
	}
}

// EntryByMsgID finds a live entry by its msgid.
func (f *File) EntryByMsgID(msgid string) *Entry {
	for _, e := range f.Entries {
		if e.MsgID == msgid && !e.Obsolete {
			return e
		}
	}
	return nil
}

// Live returns the non-obsolete message entries.
func (f *File) Live() []*Entry {
	var result []*Entry
	for _, e := range f.Entries {
		if e.MsgID != "" && !e.Obsolete {
			result = append(result, e)
		}
	}
	return result
}

// Stats returns translation statistics over live entries.
func (f *File) Stats() (total, translated, fuzzy, untranslated int) {
	for _, e := range f.Live() {
		total++
		switch {
		case e.IsFuzzy():
			fuzzy++
		case e.IsTranslated():
			translated++
		default:
			untranslated++
		}
	}
	return
}

// UntranslatedEntries returns entries that have no translation and are not fuzzy.
func (f *File) UntranslatedEntries() []*Entry {
	var result []*Entry
	for _, e := range f.Live() {
		if !e.IsTranslated() && !e.IsFuzzy() {
			result = append(result, e)
		}
	}
	return result
}

// FuzzyEntries returns entries marked as fuzzy.
func (f *File) FuzzyEntries() []*Entry {
	var result []*Entry
	for _, e := range f.Live() {
		if e.IsFuzzy() {
			result = append(result, e)
		}
	}
	return result
}
