// potm updates gettext PO catalogs from a translation memory spreadsheet
// and fills the rest with DeepL machine translation.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/akretion/translation-scripts/config"
	"github.com/akretion/translation-scripts/deepl"
	"github.com/akretion/translation-scripts/glossary"
	"github.com/akretion/translation-scripts/i18n"
	"github.com/akretion/translation-scripts/langmeta"
	"github.com/akretion/translation-scripts/lockfile"
	"github.com/akretion/translation-scripts/memory"
	"github.com/akretion/translation-scripts/merge"
	po "github.com/akretion/translation-scripts/pofile"
	"github.com/akretion/translation-scripts/protect"
	"github.com/akretion/translation-scripts/settings"
	"github.com/akretion/translation-scripts/sheet"
	"github.com/akretion/translation-scripts/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	infoTag    = color.New(color.FgBlue).SprintFunc()
	successTag = color.New(color.FgGreen).SprintFunc()
	warnTag    = color.New(color.FgYellow, color.Bold).SprintFunc()
	errorTag   = color.New(color.FgRed).SprintFunc()
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, infoTag("[INFO]")+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, successTag("[OK]")+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, warnTag("[WARN]")+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, errorTag("[ERROR]")+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	configPath string
	apiKeyFlag string
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "potm",
		Short: i18n.T("Update PO catalogs from a translation memory and DeepL"),
		Long: i18n.T(`potm fills a gettext PO catalog in two passes.

First, entries whose msgid appears in the translation memory spreadsheet
get the reviewed translation from it. Then everything still missing is
sent to DeepL, with printf placeholders and template expressions wrapped
in ignored tags so they come back untouched.

Commands:
  translate   Update a catalog (memory, then machine translation)
  status      Show catalog statistics and what a run would send
  glossary    Manage the DeepL glossary built from the terminology tab
  usage       Show DeepL character usage
  auth        Manage the stored DeepL key`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", i18n.T("Config file (default: ./.potm.yaml)"))
	root.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", i18n.T("DeepL authentication key (or DEEPL_AUTH_KEY)"))

	root.AddCommand(
		newTranslateCmd(),
		newStatusCmd(),
		newGlossaryCmd(),
		newUsageCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("Show version information"),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("potm version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	path         string
	lang         string
	dryRun       bool
	noMemory     bool
	noMT         bool
	noFuzzy      bool
	retranslate  bool
	markFuzzy    bool
	maxChars     int
	memoryFile   string
	glossaryFile string
	template     string
	verbose      bool
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate FILE.po",
		Short: i18n.T("Update a catalog from the translation memory and DeepL"),
		Long: i18n.T(`Update one PO catalog.

The translation memory is applied first: exact msgid matches take the
reviewed translation and lose their fuzzy flag. Entries still untranslated
or fuzzy are then sent to DeepL with the glossary built from the terminology
tab. Fuzzy entries holding an unreviewed machine translation are left for
review; --no-fuzzy also leaves every other fuzzy draft alone.

Examples:
  potm translate i18n/fr.po
  potm translate i18n/pt_BR.po --mark-fuzzy
  potm translate i18n/de.po --no-mt --memory-file memory.csv
  potm translate i18n/es.po --dry-run`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.path = args[0]
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("no-fuzzy") {
				a.noFuzzy = cfg.Translate.SkipFuzzy
			}
			if !cmd.Flags().Changed("mark-fuzzy") {
				a.markFuzzy = cfg.Translate.MarkFuzzy
			}
			if !cmd.Flags().Changed("max-chars") {
				a.maxChars = cfg.DeepL.MaxCharacters
			}

			ctx, stop := interruptContext(cmd.Context())
			defer stop()
			return runTranslate(ctx, cfg, a)
		},
	}

	cmd.Flags().StringVar(&a.lang, "lang", "", i18n.T("Target language (default: config, then Language header, then file path)"))
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, i18n.T("Show what would be sent without calling DeepL or writing files"))
	cmd.Flags().BoolVar(&a.noMemory, "no-memory", false, i18n.T("Skip the translation memory pass"))
	cmd.Flags().BoolVar(&a.noMT, "no-mt", false, i18n.T("Skip the machine translation pass"))
	cmd.Flags().BoolVar(&a.noFuzzy, "no-fuzzy", false, i18n.T("Do not machine translate fuzzy entries that have a draft"))
	cmd.Flags().BoolVar(&a.retranslate, "retranslate", false, i18n.T("Machine translate every entry, translated or not"))
	cmd.Flags().BoolVar(&a.markFuzzy, "mark-fuzzy", false, i18n.T("Flag machine translations as fuzzy for review"))
	cmd.Flags().IntVar(&a.maxChars, "max-chars", 0, i18n.T("Stop before sending more than this many characters (0 = no limit)"))
	cmd.Flags().StringVar(&a.memoryFile, "memory-file", "", i18n.T("Read the translation memory from a local CSV file"))
	cmd.Flags().StringVar(&a.glossaryFile, "glossary-file", "", i18n.T("Read the glossary terms from a local CSV file"))
	cmd.Flags().StringVar(&a.template, "template", "", i18n.T("Merge the catalog with this POT template first"))
	cmd.Flags().BoolVarP(&a.verbose, "verbose", "v", false, i18n.T("Log every entry"))

	return cmd
}

func runTranslate(ctx context.Context, cfg *config.Config, a translateArgs) error {
	file, err := po.ParseFile(a.path)
	if err != nil {
		return err
	}

	if a.template != "" {
		pot, err := po.ParseFile(a.template)
		if err != nil {
			return err
		}
		var st merge.Stats
		file, st = merge.Merge(file, pot)
		logInfo(i18n.T("Template %s: %d new, %d kept, %d obsolete"), a.template, st.Added, st.Kept, st.Obsoleted)
	}

	lang := cfg.TargetLangFor(a.lang, file.Language(), a.path)
	if lang == "" {
		return fmt.Errorf(i18n.T("cannot tell the language of %s, use --lang"), a.path)
	}
	if file.Language() == "" {
		file.SetHeaderField("Language", lang)
	}
	meta := langmeta.Resolve(lang)
	logInfo(i18n.T("Catalog %s (%s %s): %d entries"), a.path, meta.Flag, meta.Name, len(file.Live()))

	opts := translate.Options{
		SkipFuzzy:           a.noFuzzy,
		RetranslateExisting: a.retranslate,
		MarkFuzzy:           a.markFuzzy,
		MaxCharacters:       a.maxChars,
		Formality:           cfg.DeepL.Formality,
		Verbose:             a.verbose,
		OnLog:               logInfo,
		OnError:             logWarning,
	}

	if !a.noMemory {
		mem, err := loadMemory(ctx, cfg, cfg.Memory, a.memoryFile, lang)
		if err != nil {
			return fmt.Errorf(i18n.T("translation memory: %w"), err)
		}
		opts.Memory = mem
		opts.KeepExisting = cfg.Memory.KeepExisting
	}

	if !a.noMT {
		if err := setupMachineTranslation(ctx, cfg, a, lang, &opts); err != nil {
			return err
		}
	}

	lock, err := loadLock(cfg, a.path)
	if err != nil {
		return err
	}
	opts.Lock = lock
	opts.LockTarget = lockTarget(lock, a.path)

	if a.dryRun {
		return dryRunTranslate(ctx, file, opts, !a.noMT)
	}

	if opts.Translator != nil {
		opts.OnProgress = progressReporter(a.path, a.verbose)
	}

	report, runErr := translate.Run(ctx, file, opts)

	if report.Changed() || a.template != "" {
		if err := translate.Save(file, a.path, cfg.Translator, opts); err != nil {
			return err
		}
	}
	removed := lock.Clean(opts.LockTarget, liveKeys(file))
	if report.Changed() || removed > 0 {
		if err := lock.Save(); err != nil {
			return err
		}
	}

	printReport(report)
	return translateOutcome(ctx, runErr)
}

// translateOutcome maps a run error to the command result: interrupts and
// budget stops keep the saved progress and succeed.
func translateOutcome(ctx context.Context, err error) error {
	switch {
	case err == nil:
		logSuccess("%s", i18n.T("Catalog up to date"))
		return nil
	case ctx.Err() != nil:
		logWarning("%s", i18n.T("Interrupted, partial progress saved"))
		return nil
	case errors.Is(err, translate.ErrBudgetExceeded):
		logWarning(i18n.T("Stopped: %v"), err)
		return nil
	case errors.Is(err, deepl.ErrAuth):
		return fmt.Errorf(i18n.T("DeepL rejected the key, run 'potm auth login': %w"), err)
	case errors.Is(err, deepl.ErrQuotaExceeded):
		return fmt.Errorf(i18n.T("DeepL quota exhausted, partial progress saved: %w"), err)
	}
	return err
}

// dryRunTranslate runs on the in-memory catalog only; neither the catalog
// nor the lock file is saved.
func dryRunTranslate(ctx context.Context, file *po.File, opts translate.Options, withMT bool) error {
	opts.Translator = nil
	opts.DryRun = withMT
	report, err := translate.Run(ctx, file, opts)
	logInfo(i18n.T("Memory matches: %d"), report.MemoryApplied)
	logInfo(i18n.T("Entries to machine translate: %d (%d characters)"), report.Translated, report.Characters)
	if report.Skipped > 0 {
		logInfo(i18n.T("Skipped: %d"), report.Skipped)
	}
	logSuccess("%s", i18n.T("Dry run: nothing was sent or written"))
	if err != nil && !errors.Is(err, translate.ErrBudgetExceeded) {
		return err
	}
	if err != nil {
		logWarning(i18n.T("Stopped: %v"), err)
	}
	return nil
}

func setupMachineTranslation(ctx context.Context, cfg *config.Config, a translateArgs, lang string, opts *translate.Options) error {
	src, err := deepl.SourceLang(cfg.SourceLang)
	if err != nil {
		return err
	}
	dst, err := deepl.TargetLang(lang)
	if err != nil {
		return err
	}
	opts.SourceLang, opts.TargetLang = src, dst

	prot, err := protect.New(cfg.ProtectConfig())
	if err != nil {
		return err
	}
	opts.Protector = prot

	if a.dryRun {
		return nil
	}

	client, err := newDeepLClient(cfg)
	if errors.Is(err, deepl.ErrNoKey) {
		logWarning("%s", i18n.T("No DeepL key configured, skipping machine translation (see 'potm auth login')"))
		return nil
	}
	if err != nil {
		return err
	}
	opts.Translator = client

	if cfg.Glossary.Configured() || a.glossaryFile != "" {
		res, err := syncGlossary(ctx, cfg, client, a.glossaryFile, lang)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, deepl.ErrAuth) {
				return err
			}
			logWarning(i18n.T("Glossary unavailable, translating without it: %v"), err)
			return nil
		}
		opts.GlossaryID = res.ID
	}
	return nil
}

// ---------------------------------------------------------------------------
// status
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "status FILE.po",
		Short: i18n.T("Show catalog statistics"),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return runStatus(cfg, args[0], lang)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", i18n.T("Target language"))
	return cmd
}

func runStatus(cfg *config.Config, path, lang string) error {
	file, err := po.ParseFile(path)
	if err != nil {
		return err
	}
	total, translated, fuzzy, untranslated := file.Stats()
	lang = cfg.TargetLangFor(lang, file.Language(), path)

	percent := 0
	if total > 0 {
		percent = translated * 100 / total
	}

	fmt.Fprintf(os.Stderr, "\n%s\n", color.BlueString(path))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	meta := langmeta.Resolve(lang)
	fmt.Fprintf(os.Stderr, "  %-16s %s\n", i18n.T("Language:"), strings.TrimSpace(valueOr(lang, "?")+" "+meta.Flag+" "+meta.Name))
	fmt.Fprintf(os.Stderr, "  %-16s %s\n", i18n.T("Progress:"), progressBar(percent, 30))
	fmt.Fprintf(os.Stderr, "  %-16s %d\n", i18n.T("Entries:"), total)
	fmt.Fprintf(os.Stderr, "  %-16s %d\n", i18n.T("Translated:"), translated)
	fmt.Fprintf(os.Stderr, "  %-16s %d\n", i18n.T("Fuzzy:"), fuzzy)
	fmt.Fprintf(os.Stderr, "  %-16s %d\n", i18n.T("Untranslated:"), untranslated)

	lock, err := loadLock(cfg, path)
	if err != nil {
		return err
	}
	target := lockTarget(lock, path)
	awaiting := 0
	pending := file.UntranslatedEntries()
	for _, e := range file.FuzzyEntries() {
		if lock.IsMachineOutput(target, lockfile.POEntryKey(e.MsgID, e.MsgCtxt),
			lockfile.POEntryContent(e.MsgID, e.MsgIDPlural), lockfile.POEntryOutput(e.MsgStr, e.MsgStrPlural)) {
			awaiting++
			continue
		}
		pending = append(pending, e)
	}
	fmt.Fprintf(os.Stderr, "  %-16s %d\n", i18n.T("Awaiting review:"), awaiting)

	prot, err := protect.New(cfg.ProtectConfig())
	if err != nil {
		return err
	}
	entries, chars := estimateCharacters(pending, prot)
	fmt.Fprintf(os.Stderr, "  %-16s %s\n", i18n.T("To send:"),
		fmt.Sprintf(i18n.N("%d entry", "%d entries", entries), entries)+fmt.Sprintf(" (%d)", chars))
	fmt.Fprintln(os.Stderr)
	return nil
}

// estimateCharacters counts the pending entries and the masked characters
// a default run would send for them.
func estimateCharacters(pending []*po.Entry, prot *protect.Transformer) (entries, chars int) {
	for _, e := range pending {
		if strings.TrimSpace(e.MsgID) == "" {
			continue
		}
		n := 0
		for _, s := range []string{e.MsgID, e.MsgIDPlural} {
			if s == "" {
				continue
			}
			m, err := prot.Mask(s)
			if err != nil {
				n = -1
				break
			}
			n += utf8.RuneCountInString(m)
		}
		if n < 0 {
			continue
		}
		entries++
		chars += n
	}
	return entries, chars
}

// progressBar renders a colored bar followed by the percentage.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	c := color.New(color.FgRed)
	switch {
	case percent >= 100:
		c = color.New(color.FgGreen)
	case percent >= 50:
		c = color.New(color.FgYellow)
	}
	return fmt.Sprintf("%s %3d%%", c.Sprint(bar), percent)
}

// ---------------------------------------------------------------------------
// glossary
// ---------------------------------------------------------------------------

func newGlossaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: i18n.T("Manage the DeepL glossary"),
		Long: i18n.T(`Manage the DeepL glossary built from the terminology tab.

The glossary is named after glossary.name in .potm.yaml and exists once
per language pair. 'translate' syncs it automatically.

Examples:
  potm glossary sync --lang fr
  potm glossary show --lang fr
  potm glossary delete --lang fr`),
	}
	cmd.AddCommand(
		newGlossarySyncCmd(),
		newGlossaryShowCmd(),
		newGlossaryDeleteCmd(),
	)
	return cmd
}

func newGlossarySyncCmd() *cobra.Command {
	var lang, file string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: i18n.T("Upload the terminology tab as a glossary"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, lang, err := glossarySetup(cmd.Context(), lang)
			if err != nil {
				return err
			}
			if !cfg.Glossary.Configured() && file == "" {
				return errors.New(i18n.T("no glossary source: set glossary.spreadsheet or glossary.file, or pass --file"))
			}
			_, err = syncGlossary(cmd.Context(), cfg, client, file, lang)
			return err
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", i18n.T("Target language"))
	cmd.Flags().StringVar(&file, "file", "", i18n.T("Read the terms from a local CSV file"))
	return cmd
}

func newGlossaryShowCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "show",
		Short: i18n.T("Print the current glossary entries"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, client, lang, err := glossarySetup(ctx, lang)
			if err != nil {
				return err
			}
			found, err := glossary.Find(ctx, client, cfg.Glossary.Name, cfg.SourceLang, lang)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				logInfo("%s", i18n.Tf("No glossary %q for %s → %s", cfg.Glossary.Name, glossary.Lang(cfg.SourceLang), glossary.Lang(lang)))
				return nil
			}
			for _, g := range found {
				logInfo("%s %s (%s → %s, %d, %s)", g.Name, g.ID, g.SourceLang, g.TargetLang, g.EntryCount, g.CreationTime.Format(time.DateOnly))
				tsv, err := client.GlossaryEntries(ctx, g.ID)
				if err != nil {
					return err
				}
				for _, e := range glossary.ParseTSV(tsv) {
					fmt.Printf("%s\t%s\n", e.Source, e.Target)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", i18n.T("Target language"))
	return cmd
}

func newGlossaryDeleteCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: i18n.T("Delete the glossary for a language pair"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, client, lang, err := glossarySetup(ctx, lang)
			if err != nil {
				return err
			}
			n, err := glossary.Delete(ctx, client, cfg.Glossary.Name, cfg.SourceLang, lang)
			if err != nil {
				return err
			}
			logSuccess(i18n.T("Deleted %d glossaries"), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", i18n.T("Target language"))
	return cmd
}

func glossarySetup(ctx context.Context, lang string) (*config.Config, *deepl.Client, string, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, "", err
	}
	if lang == "" {
		lang = cfg.TargetLang
	}
	if lang == "" {
		return nil, nil, "", errors.New(i18n.T("--lang is required"))
	}
	client, err := newDeepLClient(cfg)
	if err != nil {
		return nil, nil, "", err
	}
	return cfg, client, lang, nil
}

// syncGlossary reads the terminology source and brings the DeepL glossary
// in line with it.
func syncGlossary(ctx context.Context, cfg *config.Config, api glossary.API, overrideFile, lang string) (glossary.Result, error) {
	pairs, err := loadPairs(ctx, cfg, cfg.Glossary.Source, overrideFile, lang)
	if err != nil {
		return glossary.Result{}, err
	}
	entries, dropped := glossary.FromPairs(pairs)
	if dropped > 0 {
		logWarning(i18n.T("Glossary: %d rows dropped (blank, duplicate or multi-line)"), dropped)
	}

	res, err := glossary.Sync(ctx, api, cfg.Glossary.Name, cfg.SourceLang, lang, entries)
	if err != nil {
		return res, err
	}
	switch {
	case res.ID == "":
		logInfo(i18n.T("Glossary: no terms for %s"), lang)
	case res.Reused:
		logInfo(i18n.T("Glossary %s up to date (%d terms)"), res.ID, res.Entries)
	case res.Created:
		logSuccess(i18n.T("Glossary %s created (%d terms, %d replaced)"), res.ID, res.Entries, res.Deleted)
	}
	if res.Created && !res.Ready {
		logWarning(i18n.T("Glossary %s is not ready yet, DeepL may reject the first requests"), res.ID)
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// usage
// ---------------------------------------------------------------------------

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: i18n.T("Show DeepL character usage for the current period"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			client, err := newDeepLClient(cfg)
			if err != nil {
				return err
			}
			u, err := client.Usage(cmd.Context())
			if err != nil {
				return err
			}
			percent := 0
			if u.CharacterLimit > 0 {
				percent = int(u.CharacterCount * 100 / u.CharacterLimit)
			}
			fmt.Fprintf(os.Stderr, "  %-12s %s\n", i18n.T("Used:"), progressBar(percent, 30))
			fmt.Fprintf(os.Stderr, "  %-12s %d / %d\n", i18n.T("Characters:"), u.CharacterCount, u.CharacterLimit)
			fmt.Fprintf(os.Stderr, "  %-12s %d\n", i18n.T("Remaining:"), u.Remaining())
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: i18n.T("Manage the stored DeepL key"),
		Long: i18n.T(`Manage the DeepL authentication key.

Lookup order: --api-key, then DEEPL_AUTH_KEY (environment or .env), then
the key stored by 'potm auth login'.

Examples:
  potm auth login
  potm auth status
  potm auth logout`),
	}
	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
	)
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var (
		baseURL  string
		noVerify bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: i18n.T("Store a DeepL key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := apiKeyFlag
			if key == "" {
				var err error
				if key, err = promptKey(); err != nil {
					return err
				}
				if key == "" {
					return nil
				}
			}

			if !noVerify {
				client, err := deepl.New(key, deepl.WithBaseURL(baseURL), deepl.WithRetries(1, time.Second))
				if err != nil {
					return err
				}
				u, err := client.Usage(cmd.Context())
				if err != nil {
					return fmt.Errorf(i18n.T("verifying key: %w"), err)
				}
				logInfo(i18n.T("Key accepted, %d characters remaining"), u.Remaining())
			}

			if err := settings.SetAPIKey(settings.ServiceDeepL, key, baseURL); err != nil {
				return fmt.Errorf(i18n.T("saving key: %w"), err)
			}
			logSuccess(i18n.T("DeepL key saved to %s"), settings.FilePath())
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", i18n.T("API host for this key (default: chosen from the key)"))
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, i18n.T("Store the key without checking it"))
	return cmd
}

func promptKey() (string, error) {
	fmt.Fprintf(os.Stderr, "\n%s\n", color.BlueString("DeepL API key setup"))
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  %s %s\n\n", i18n.T("Get your key from:"), color.GreenString("https://www.deepl.com/your-account/keys"))

	existing := settings.GetAPIKey(settings.ServiceDeepL)
	if existing != "" {
		fmt.Fprintf(os.Stderr, "  %s %s\n", i18n.T("Current key:"), color.YellowString(settings.MaskKey(existing)))
		fmt.Fprint(os.Stderr, "  "+i18n.T("Enter new key to replace, or press Enter to keep: "))
	} else {
		fmt.Fprint(os.Stderr, "  "+i18n.T("Enter API key: "))
	}

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", errors.New(i18n.T("no input received"))
	}
	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		if existing != "" {
			logInfo("%s", i18n.T("Keeping existing key"))
			return "", nil
		}
		return "", errors.New(i18n.T("no API key provided"))
	}
	return key, nil
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: i18n.T("Remove the stored DeepL key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if settings.Get(settings.ServiceDeepL) == nil {
				logInfo("%s", i18n.T("No stored key"))
				return nil
			}
			if err := settings.Remove(settings.ServiceDeepL); err != nil {
				return err
			}
			logSuccess("%s", i18n.T("DeepL key removed"))
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: i18n.T("Show which DeepL key would be used"),
		Run: func(cmd *cobra.Command, args []string) {
			_ = config.LoadDotEnv(".")
			key, source := settings.ResolveAPIKey(settings.ServiceDeepL, apiKeyFlag, os.Getenv("DEEPL_AUTH_KEY"))
			if key == "" {
				fmt.Fprintf(os.Stderr, "  deepl: %s\n", color.RedString(i18n.T("not configured")))
				return
			}
			fmt.Fprintf(os.Stderr, "  deepl: %s (%s, %s)\n", color.GreenString(settings.MaskKey(key)), source, deepl.BaseURLForKey(key))
			if info := settings.Get(settings.ServiceDeepL); info != nil && source == settings.SourceStore && info.BaseURL != "" {
				fmt.Fprintf(os.Stderr, "         %s %s\n", i18n.T("endpoint:"), info.BaseURL)
			}
		},
	}
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func loadConfig(ctx context.Context) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := config.LoadDotEnv("."); err != nil {
		return nil, err
	}
	cfg, err := config.Load(ctx, configPath, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Path() != "" {
		logInfo(i18n.T("Using %s"), cfg.Path())
	}
	return cfg, nil
}

// interruptContext cancels on Ctrl-C so a run can save what it has done.
func interruptContext(parent context.Context) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			logWarning("%s", i18n.T("Interrupted, saving progress..."))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func newDeepLClient(cfg *config.Config) (*deepl.Client, error) {
	key, source := settings.ResolveAPIKey(settings.ServiceDeepL, apiKeyFlag, cfg.AuthKey)
	if key == "" {
		return nil, deepl.ErrNoKey
	}

	baseURL := cfg.DeepL.BaseURL
	if baseURL == "" && source == settings.SourceStore {
		if info := settings.Get(settings.ServiceDeepL); info != nil {
			baseURL = info.BaseURL
		}
	}
	return deepl.New(key,
		deepl.WithBaseURL(baseURL),
		deepl.WithTimeout(cfg.DeepL.Timeout),
		deepl.WithRetries(uint64(cfg.DeepL.MaxRetries), time.Second),
		deepl.WithRateLimit(cfg.DeepL.RateLimit),
		deepl.WithUserAgent("potm/"+version),
	)
}

func loadMemory(ctx context.Context, cfg *config.Config, src config.Source, overrideFile, lang string) (*memory.Memory, error) {
	if !src.Configured() && overrideFile == "" {
		return nil, nil
	}
	pairs, err := loadPairs(ctx, cfg, src, overrideFile, lang)
	if err != nil {
		return nil, err
	}
	mem := memory.New(pairs)
	logInfo(i18n.T("Translation memory: %d entries"), mem.Len())
	if mem.Conflicts > 0 {
		logWarning(i18n.T("Translation memory: %d conflicting rows ignored (first one wins)"), mem.Conflicts)
	}
	return mem, nil
}

// loadPairs reads a source/target column pair from a local CSV or the
// spreadsheet.
func loadPairs(ctx context.Context, cfg *config.Config, src config.Source, overrideFile, lang string) ([]sheet.Pair, error) {
	var (
		table *sheet.Table
		err   error
	)
	switch {
	case overrideFile != "":
		table, err = sheet.ReadFile(overrideFile)
	case src.File != "":
		table, err = sheet.ReadFile(cfg.Resolve(src.File))
	default:
		client := sheet.NewClient(sheet.WithBaseURL(cfg.SheetsURL))
		table, err = client.Fetch(ctx, src.Spreadsheet, src.GID)
	}
	if err != nil {
		return nil, err
	}

	srcCol, dstCol := src.Columns(cfg.SourceLang, lang)
	return pairsFor(table, srcCol, dstCol)
}

// pairsFor reads the pairs, falling back to the base language code for a
// column named after a regional locale ("fr_BE" reads "fr").
func pairsFor(table *sheet.Table, srcCol, dstCol string) ([]sheet.Pair, error) {
	pairs, err := table.Pairs(srcCol, dstCol)
	if !errors.Is(err, sheet.ErrMissingColumn) {
		return pairs, err
	}
	srcBase, dstBase := baseLang(srcCol), baseLang(dstCol)
	if srcBase == srcCol && dstBase == dstCol {
		return nil, err
	}
	return table.Pairs(srcBase, dstBase)
}

func baseLang(code string) string {
	if i := strings.IndexAny(code, "_-"); i > 0 {
		return code[:i]
	}
	return code
}

func loadLock(cfg *config.Config, poPath string) (*lockfile.LockFile, error) {
	if cfg.LockFile != "" {
		return lockfile.LoadFile(cfg.Resolve(cfg.LockFile))
	}
	return lockfile.Load(filepath.Dir(poPath))
}

// lockTarget names a catalog inside the lock file, relative to the lock
// file's directory.
func lockTarget(lock *lockfile.LockFile, poPath string) string {
	lockDir, err := filepath.Abs(filepath.Dir(lock.Path()))
	if err != nil {
		return lockfile.TargetKey(poPath)
	}
	abs, err := filepath.Abs(poPath)
	if err != nil {
		return lockfile.TargetKey(poPath)
	}
	rel, err := filepath.Rel(lockDir, abs)
	if err != nil {
		return lockfile.TargetKey(poPath)
	}
	return lockfile.TargetKey(rel)
}

func liveKeys(file *po.File) []string {
	live := file.Live()
	keys := make([]string, 0, len(live))
	for _, e := range live {
		keys = append(keys, lockfile.POEntryKey(e.MsgID, e.MsgCtxt))
	}
	return keys
}

// progressReporter draws a progress bar for the machine translation pass,
// or logs counts when every entry is logged anyway.
func progressReporter(path string, verbose bool) func(done, total int) {
	if verbose {
		return func(done, total int) { logInfo("  %d/%d", done, total) }
	}
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", filepath.Base(path))),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
			)
		}
		_ = bar.Set(done)
	}
}

func printReport(r translate.Report) {
	logInfo(i18n.T("Memory: %d, machine translated: %d, skipped: %d, failed: %d, characters sent: %d"),
		r.MemoryApplied, r.Translated, r.Skipped, r.Failed, r.Characters)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
