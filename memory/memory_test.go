package memory

import (
	"testing"

	po "github.com/akretion/translation-scripts/pofile"
	"github.com/akretion/translation-scripts/sheet"
)

func newCatalog() *po.File {
	f := po.NewFile()
	f.Entries = []*po.Entry{
		{MsgID: "Save"},
		{MsgID: "Cancel", MsgStr: "Abandonner"},
		{MsgID: "Quotation", MsgStr: "Devis", Flags: []string{"fuzzy"}, PreviousMsgID: "Quote"},
		{MsgID: "Order", MsgStr: "Commande"},
		{MsgID: "%d item", MsgIDPlural: "%d items", MsgStrPlural: map[int]string{0: "", 1: ""}},
		{MsgID: "Gone", MsgStr: "Ancien", Obsolete: true},
		{MsgID: "Unknown"},
	}
	return f
}

var pairs = []sheet.Pair{
	{Source: "Save", Target: "Enregistrer"},
	{Source: "Cancel", Target: "Annuler"},
	{Source: "Quotation", Target: "Devis"},
	{Source: "Order", Target: "Commande"},
	{Source: "%d item", Target: "%d article"},
	{Source: "Gone", Target: "Parti"},
	{Source: "Save", Target: "Sauvegarder"},
	{Source: "Order", Target: "Commande"},
}

func TestNewFirstWins(t *testing.T) {
	m := New(pairs)

	if got, _ := m.Lookup("Save"); got != "Enregistrer" {
		t.Fatalf("Lookup(Save) = %q, want Enregistrer", got)
	}
	if m.Conflicts != 1 {
		t.Fatalf("Conflicts = %d, want 1", m.Conflicts)
	}
	if m.Len() != 6 {
		t.Fatalf("Len = %d, want 6", m.Len())
	}
	if _, ok := m.Lookup("save"); ok {
		t.Fatal("lookup must be case-sensitive")
	}
}

func TestApplyOverwrites(t *testing.T) {
	f := newCatalog()
	var seen []string
	n := New(pairs).Apply(f, Options{OnApply: func(e *po.Entry, _ string) {
		seen = append(seen, e.MsgID)
	}})

	if n != 3 {
		t.Fatalf("Apply = %d, want 3 (changed: %v)", n, seen)
	}
	if e := f.EntryByMsgID("Save"); e.MsgStr != "Enregistrer" {
		t.Fatalf("Save msgstr = %q", e.MsgStr)
	}
	if e := f.EntryByMsgID("Cancel"); e.MsgStr != "Annuler" {
		t.Fatalf("Cancel msgstr = %q, want overwrite", e.MsgStr)
	}
	q := f.EntryByMsgID("Quotation")
	if q.IsFuzzy() || q.PreviousMsgID != "" {
		t.Fatalf("Quotation still fuzzy: flags=%v previous=%q", q.Flags, q.PreviousMsgID)
	}
	if p := f.EntryByMsgID("%d item"); p.MsgStrPlural[0] != "" {
		t.Fatalf("plural entry touched: %v", p.MsgStrPlural)
	}
	if f.Entries[5].MsgStr != "Ancien" {
		t.Fatalf("obsolete entry touched: %q", f.Entries[5].MsgStr)
	}
}

func TestApplyKeepExisting(t *testing.T) {
	f := newCatalog()
	n := New(pairs).Apply(f, Options{KeepExisting: true})

	if n != 2 {
		t.Fatalf("Apply = %d, want 2", n)
	}
	if e := f.EntryByMsgID("Cancel"); e.MsgStr != "Abandonner" {
		t.Fatalf("Cancel msgstr = %q, want kept", e.MsgStr)
	}
	if e := f.EntryByMsgID("Quotation"); e.IsFuzzy() {
		t.Fatal("fuzzy entry must still be confirmed by the memory")
	}
}

func TestNilMemory(t *testing.T) {
	var m *Memory
	if _, ok := m.Lookup("Save"); ok {
		t.Fatal("nil memory lookup succeeded")
	}
	if n := m.Apply(newCatalog(), Options{}); n != 0 {
		t.Fatalf("nil memory Apply = %d", n)
	}
}
