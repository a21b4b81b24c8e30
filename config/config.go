// Package config loads the .potm.yaml configuration file.
//
// Settings come from three layers, later ones winning: built-in defaults,
// the .potm.yaml file, then environment variables (a .env file in the
// working directory is loaded into the environment first).
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/akretion/translation-scripts/protect"
)

// FileName is the default config file name.
const FileName = ".potm.yaml"

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// Config is the top-level .potm.yaml structure.
type Config struct {
	// SourceLang is the language of msgids (default "en").
	SourceLang string `yaml:"source_lang,omitempty" env:"POTM_SOURCE_LANG,overwrite"`
	// TargetLang overrides the catalog's Language header.
	TargetLang string `yaml:"target_lang,omitempty" env:"POTM_TARGET_LANG,overwrite"`
	// LockFile is the lock file path, relative to the config file. Empty
	// means potm.lock next to each catalog.
	LockFile string `yaml:"lock_file,omitempty" env:"POTM_LOCK_FILE,overwrite"`
	// Translator is written to the Last-Translator header.
	Translator string `yaml:"translator,omitempty" env:"POTM_TRANSLATOR,overwrite"`
	// SheetsURL overrides the spreadsheet export host.
	SheetsURL string `yaml:"sheets_url,omitempty" env:"POTM_SHEETS_URL,overwrite"`

	Memory    Source    `yaml:"memory" env:",prefix=POTM_MEMORY_"`
	Glossary  Glossary  `yaml:"glossary" env:",prefix=POTM_GLOSSARY_"`
	DeepL     DeepL     `yaml:"deepl"`
	Protect   Protect   `yaml:"protect"`
	Translate Translate `yaml:"translate"`

	// AuthKey is only ever read from the environment.
	AuthKey string `yaml:"-" env:"DEEPL_AUTH_KEY,overwrite"`

	path string
}

// Source is a spreadsheet tab (or local CSV) with a source and a target column.
type Source struct {
	// Spreadsheet is the Google Sheets document ID.
	Spreadsheet string `yaml:"spreadsheet,omitempty" env:"SPREADSHEET,overwrite"`
	// GID selects the tab (default "0").
	GID string `yaml:"gid,omitempty" env:"GID,overwrite"`
	// File is a local CSV used instead of the spreadsheet.
	File string `yaml:"file,omitempty" env:"FILE,overwrite"`
	// SourceColumn defaults to the source language code.
	SourceColumn string `yaml:"source_column,omitempty"`
	// TargetColumn defaults to the target language code.
	TargetColumn string `yaml:"target_column,omitempty"`
	// KeepExisting stops the memory from overwriting translated entries.
	KeepExisting bool `yaml:"keep_existing,omitempty"`
}

// Configured reports whether the source points anywhere.
func (s Source) Configured() bool {
	return s.Spreadsheet != "" || s.File != ""
}

// Columns returns the column names for a language pair.
func (s Source) Columns(sourceLang, targetLang string) (string, string) {
	src, dst := s.SourceColumn, s.TargetColumn
	if src == "" {
		src = sourceLang
	}
	if dst == "" {
		dst = targetLang
	}
	return src, dst
}

// Glossary configures the terminology tab and the DeepL glossary built from it.
type Glossary struct {
	Source `yaml:",inline"`
	// Name of the DeepL glossary (default "potm").
	Name string `yaml:"name,omitempty" env:"NAME,overwrite"`
}

// DeepL configures the API client.
type DeepL struct {
	// BaseURL overrides the host picked from the key.
	BaseURL string `yaml:"base_url,omitempty" env:"POTM_DEEPL_URL,overwrite"`
	// Formality is passed to every request.
	Formality string `yaml:"formality,omitempty" env:"POTM_FORMALITY,overwrite"`
	// Timeout per request (default 60s).
	Timeout time.Duration `yaml:"timeout,omitempty" env:"POTM_DEEPL_TIMEOUT,overwrite"`
	// MaxRetries for 429, 5xx and network errors (default 4).
	MaxRetries int `yaml:"max_retries,omitempty" env:"POTM_DEEPL_RETRIES,overwrite"`
	// MaxCharacters caps the characters sent per run (0 = no cap).
	MaxCharacters int `yaml:"max_characters,omitempty" env:"POTM_MAX_CHARS,overwrite"`
	// RateLimit is the maximum number of requests per second (0 = none).
	RateLimit float64 `yaml:"rate_limit,omitempty" env:"POTM_DEEPL_RATE,overwrite"`
}

// Protect configures placeholder and template masking.
type Protect struct {
	Tag               string   `yaml:"tag,omitempty"`
	TemplateOpen      string   `yaml:"template_open,omitempty"`
	TemplateClose     string   `yaml:"template_close,omitempty"`
	FirstTemplateOnly bool     `yaml:"first_template_only,omitempty"`
	NoPlaceholders    bool     `yaml:"no_placeholders,omitempty"`
	NoTemplates       bool     `yaml:"no_templates,omitempty"`
	MarkupPrefixes    []string `yaml:"markup_prefixes,omitempty"`
}

// Translate holds the default run switches; command-line flags override them.
type Translate struct {
	SkipFuzzy bool `yaml:"skip_fuzzy,omitempty"`
	MarkFuzzy bool `yaml:"mark_fuzzy,omitempty"`
}

var validFormality = map[string]bool{
	"": true, "default": true, "more": true, "less": true, "prefer_more": true, "prefer_less": true,
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the config file at path, or FileName in the working
// directory when path is empty (a missing default file is not an error),
// then applies environment overrides from l (the process environment when
// nil), fills defaults and validates.
func Load(ctx context.Context, path string, l envconfig.Lookuper) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = FileName
	}

	cfg := &Config{path: path}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		cfg.path = ""
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if l == nil {
		l = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, cfg, l); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		if cfg.path != "" {
			return nil, fmt.Errorf("%s: %w", cfg.path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env from dir into the environment when present.
// Variables already set are kept.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SourceLang == "" {
		c.SourceLang = "en"
	}
	if c.Translator == "" {
		c.Translator = "potm"
	}
	if c.Memory.GID == "" {
		c.Memory.GID = "0"
	}
	if c.Glossary.Name == "" {
		c.Glossary.Name = "potm"
	}
	if c.Glossary.Spreadsheet == "" && c.Glossary.File == "" && c.Glossary.GID != "" {
		c.Glossary.Spreadsheet = c.Memory.Spreadsheet
	}
	if c.Glossary.GID == "" {
		c.Glossary.GID = "0"
	}
	if c.DeepL.Timeout == 0 {
		c.DeepL.Timeout = 60 * time.Second
	}
	if c.DeepL.MaxRetries == 0 {
		c.DeepL.MaxRetries = 4
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if !validFormality[c.DeepL.Formality] {
		return fmt.Errorf("deepl.formality %q is invalid (valid: default, more, less, prefer_more, prefer_less)", c.DeepL.Formality)
	}
	if c.DeepL.MaxCharacters < 0 {
		return fmt.Errorf("deepl.max_characters must not be negative")
	}
	if c.DeepL.RateLimit < 0 {
		return fmt.Errorf("deepl.rate_limit must not be negative")
	}
	if c.DeepL.MaxRetries < 0 {
		return fmt.Errorf("deepl.max_retries must not be negative")
	}
	if c.Protect.NoPlaceholders && c.Protect.NoTemplates {
		return fmt.Errorf("protect: at least one of placeholders or templates must stay enabled")
	}
	if _, err := protect.New(c.ProtectConfig()); err != nil {
		return fmt.Errorf("protect: %w", err)
	}
	if c.Memory.Spreadsheet != "" && c.Memory.File != "" {
		return fmt.Errorf("memory: spreadsheet and file are mutually exclusive")
	}
	if strings.ContainsAny(c.Glossary.Name, "\t\n") {
		return fmt.Errorf("glossary.name must be a single line")
	}
	return nil
}

// Path returns the file the config was read from, or "".
func (c *Config) Path() string {
	return c.path
}

// Resolve makes p relative to the config file's directory.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}

// ProtectConfig converts the protect section for the transformer.
func (c *Config) ProtectConfig() protect.Config {
	rules := protect.RuleAll
	if c.Protect.NoPlaceholders {
		rules &^= protect.RulePlaceholder
	}
	if c.Protect.NoTemplates {
		rules &^= protect.RuleTemplate
	}
	return protect.Config{
		Tag:               c.Protect.Tag,
		Rules:             rules,
		TemplateOpen:      c.Protect.TemplateOpen,
		TemplateClose:     c.Protect.TemplateClose,
		FirstTemplateOnly: c.Protect.FirstTemplateOnly,
		MarkupPrefixes:    c.Protect.MarkupPrefixes,
	}
}
