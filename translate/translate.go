// Package translate runs one catalog update: the translation memory pass
// followed by the machine translation pass over what is still missing.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"

	"github.com/akretion/translation-scripts/deepl"
	"github.com/akretion/translation-scripts/lockfile"
	"github.com/akretion/translation-scripts/memory"
	po "github.com/akretion/translation-scripts/pofile"
	"github.com/akretion/translation-scripts/protect"
)

// ErrBudgetExceeded stops a run before a call that would go past
// Options.MaxCharacters. Work done so far is kept.
var ErrBudgetExceeded = errors.New("character budget exceeded")

// Translator is the machine translation service.
type Translator interface {
	Translate(ctx context.Context, req deepl.TranslateRequest) (string, error)
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options controls a run.
type Options struct {
	// Memory, when set, is applied before machine translation.
	Memory *memory.Memory
	// KeepExisting stops the memory from overwriting reviewed translations.
	KeepExisting bool

	// Translator is nil when the machine translation pass is disabled.
	Translator Translator
	// Protector masks placeholders and template expressions. Defaults to
	// a transformer with the default configuration.
	Protector *protect.Transformer
	// SourceLang and TargetLang are DeepL language codes.
	SourceLang string
	TargetLang string
	GlossaryID string
	Formality  string

	// SkipFuzzy leaves fuzzy entries that already carry a draft alone.
	SkipFuzzy bool
	// RetranslateExisting sends every entry, translated or not.
	RetranslateExisting bool
	// MarkFuzzy leaves machine translations flagged fuzzy for review.
	MarkFuzzy bool
	// MaxCharacters caps the characters sent during the run (0 = no cap).
	MaxCharacters int
	// DryRun counts what would be sent without calling the translator.
	DryRun bool

	// Lock records machine translations under LockTarget.
	Lock       *lockfile.LockFile
	LockTarget string

	// OnProgress is called after each entry of the machine translation pass.
	OnProgress func(done, total int)
	// OnLog emits log messages during the run.
	OnLog func(format string, args ...any)
	// OnError emits error messages during the run.
	OnError func(format string, args ...any)
	// Verbose enables per-entry logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) debug(format string, args ...any) {
	if o.Verbose {
		o.log(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveProtector() (*protect.Transformer, error) {
	if o.Protector != nil {
		return o.Protector, nil
	}
	return protect.New(protect.Config{})
}

// Report summarises a run.
type Report struct {
	// MemoryApplied is the number of entries filled by the memory.
	MemoryApplied int
	// Translated is the number of entries machine translated (or, in a
	// dry run, that would have been).
	Translated int
	// Skipped counts entries left alone: blank msgid, marker collision or
	// an unreviewed machine translation.
	Skipped int
	// Failed counts entries whose translation call failed.
	Failed int
	// Characters is the number of characters sent, markers included.
	Characters int
}

// Changed reports whether the catalog was modified.
func (r Report) Changed() bool {
	return r.MemoryApplied > 0 || r.Translated > 0
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run updates file in place. A context cancellation, ErrBudgetExceeded,
// deepl.ErrAuth or deepl.ErrQuotaExceeded ends the run early; other
// per-entry failures are collected and returned together at the end.
func Run(ctx context.Context, file *po.File, opts Options) (Report, error) {
	var report Report

	if opts.Memory != nil {
		report.MemoryApplied = opts.Memory.Apply(file, memory.Options{
			KeepExisting: opts.KeepExisting,
			OnApply: func(e *po.Entry, previous string) {
				if opts.Lock != nil {
					opts.Lock.Forget(opts.LockTarget, lockfile.POEntryKey(e.MsgID, e.MsgCtxt))
				}
				if previous != "" {
					opts.debug("  memory: %q (was %q)", truncate(e.MsgID, 60), truncate(previous, 60))
				}
			},
		})
		if report.MemoryApplied > 0 {
			opts.log("Translation memory filled %d entries", report.MemoryApplied)
		}
	}

	if opts.Translator == nil && !opts.DryRun {
		return report, nil
	}

	prot, err := opts.effectiveProtector()
	if err != nil {
		return report, err
	}

	entries := collectEntries(file, opts)
	if len(entries) == 0 {
		return report, nil
	}
	nplurals := file.Nplurals()

	var failures *multierror.Error
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		err := translateEntry(ctx, e, nplurals, prot, &opts, &report)
		switch {
		case err == nil:
		case errors.Is(err, errSkipped):
			report.Skipped++
		case errors.Is(err, ErrBudgetExceeded),
			errors.Is(err, deepl.ErrAuth),
			errors.Is(err, deepl.ErrQuotaExceeded),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return report, err
		default:
			report.Failed++
			opts.logError("Failed to translate %q: %v", truncate(e.MsgID, 60), err)
			failures = multierror.Append(failures, fmt.Errorf("%q: %w", truncate(e.MsgID, 60), err))
		}

		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(entries))
		}
	}

	if err := failures.ErrorOrNil(); err != nil {
		return report, fmt.Errorf("%d entries failed: %w", report.Failed, err)
	}
	return report, nil
}

var errSkipped = errors.New("skipped")

// translateEntry masks, sends, unmasks and applies one entry.
func translateEntry(ctx context.Context, e *po.Entry, nplurals int, prot *protect.Transformer, opts *Options, report *Report) error {
	if strings.TrimSpace(e.MsgID) == "" {
		return errSkipped
	}

	key := lockfile.POEntryKey(e.MsgID, e.MsgCtxt)
	content := lockfile.POEntryContent(e.MsgID, e.MsgIDPlural)
	if opts.Lock != nil && e.IsFuzzy() && !opts.RetranslateExisting &&
		opts.Lock.IsMachineOutput(opts.LockTarget, key, content, lockfile.POEntryOutput(e.MsgStr, e.MsgStrPlural)) {
		opts.debug("  awaiting review: %q", truncate(e.MsgID, 60))
		return errSkipped
	}

	sources := []string{e.MsgID}
	if e.MsgIDPlural != "" {
		sources = append(sources, e.MsgIDPlural)
	}

	masked := make([]string, len(sources))
	chars := 0
	for i, s := range sources {
		m, err := prot.Mask(s)
		if err != nil {
			opts.logError("Skipping %q: %v", truncate(e.MsgID, 60), err)
			return errSkipped
		}
		masked[i] = m
		chars += utf8.RuneCountInString(m)
	}

	if opts.MaxCharacters > 0 && report.Characters+chars > opts.MaxCharacters {
		return fmt.Errorf("%w: %d sent, next entry needs %d of %d", ErrBudgetExceeded, report.Characters, chars, opts.MaxCharacters)
	}

	if opts.DryRun {
		report.Characters += chars
		report.Translated++
		opts.debug("  would send %q (%d chars)", truncate(masked[0], 60), chars)
		return nil
	}

	tagHandling := "xml"
	if prot.Classify(e.Occurrences()) == protect.ContentMarkup {
		tagHandling = "html"
	}

	results := make([]string, len(masked))
	for i, m := range masked {
		out, err := opts.Translator.Translate(ctx, deepl.TranslateRequest{
			Text:        m,
			SourceLang:  opts.SourceLang,
			TargetLang:  opts.TargetLang,
			TagHandling: tagHandling,
			IgnoreTags:  []string{prot.Tag()},
			GlossaryID:  opts.GlossaryID,
			Formality:   opts.Formality,
		})
		if err != nil {
			return err
		}
		report.Characters += utf8.RuneCountInString(m)
		results[i] = prot.Unmask(out)
	}

	applyTranslation(e, results, nplurals)
	e.SetFuzzy(opts.MarkFuzzy)
	if opts.Lock != nil {
		opts.Lock.Update(opts.LockTarget, key, content, lockfile.POEntryOutput(e.MsgStr, e.MsgStrPlural))
	}
	report.Translated++
	opts.debug("  %q -> %q", truncate(e.MsgID, 60), truncate(results[0], 60))
	return nil
}

// collectEntries gathers entries that need machine translation: the
// untranslated and fuzzy ones, or every live entry when retranslating.
func collectEntries(file *po.File, opts Options) []*po.Entry {
	var toTranslate []*po.Entry
	for _, e := range file.Live() {
		switch {
		case opts.RetranslateExisting:
			toTranslate = append(toTranslate, e)
		case e.IsFuzzy() && opts.SkipFuzzy && hasDraft(e):
		case !e.IsTranslated():
			toTranslate = append(toTranslate, e)
		}
	}
	return toTranslate
}

// hasDraft reports whether any msgstr of the entry is filled in.
func hasDraft(e *po.Entry) bool {
	if e.MsgStr != "" {
		return true
	}
	for _, v := range e.MsgStrPlural {
		if v != "" {
			return true
		}
	}
	return false
}

// applyTranslation stores results on the entry. For plural entries the
// singular translation fills msgstr[0] and the plural one every other form.
func applyTranslation(e *po.Entry, results []string, nplurals int) {
	if e.MsgIDPlural == "" {
		e.MsgStr = results[0]
		return
	}
	if e.MsgStrPlural == nil {
		e.MsgStrPlural = make(map[int]string, nplurals)
	}
	e.MsgStrPlural[0] = results[0]
	for i := 1; i < nplurals; i++ {
		e.MsgStrPlural[i] = results[len(results)-1]
	}
}

// ---------------------------------------------------------------------------
// Saving
// ---------------------------------------------------------------------------

// Save stamps the revision header and writes the catalog.
func Save(file *po.File, path, translator string, opts Options) error {
	file.Touch(time.Now(), translator)
	if err := file.WriteFile(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	total, translated, fuzzy, _ := file.Stats()
	opts.log("Saved %s (%d/%d translated, %d fuzzy)", path, translated, total, fuzzy)
	return nil
}

// truncate truncates a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
