// Package deepl is a small client for the DeepL v2 REST API: text
// translation, glossaries and account usage.
package deepl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// FreeBaseURL serves keys ending in ":fx".
	FreeBaseURL = "https://api-free.deepl.com"
	// ProBaseURL serves every other key.
	ProBaseURL = "https://api.deepl.com"

	// StatusQuotaExceeded is DeepL's non-standard "quota exceeded" status.
	StatusQuotaExceeded = 456
)

// BaseURLForKey picks the API host matching the key's plan.
func BaseURLForKey(authKey string) string {
	if strings.HasSuffix(authKey, ":fx") {
		return FreeBaseURL
	}
	return ProBaseURL
}

// Client talks to DeepL.
type Client struct {
	http       *resty.Client
	maxRetries uint64
	backoff    time.Duration
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the host chosen from the key.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.http.SetBaseURL(strings.TrimRight(u, "/"))
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithRetries sets the retry count and the initial Fibonacci backoff used
// for 429, 5xx and network errors.
func WithRetries(n uint64, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.backoff = base
	}
}

// WithRateLimit spaces requests (retries included) to at most perSecond.
// Zero disables the limit.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.http.SetHeader("User-Agent", ua) }
}

// New creates a client for authKey.
func New(authKey string, opts ...Option) (*Client, error) {
	authKey = strings.TrimSpace(authKey)
	if authKey == "" {
		return nil, ErrNoKey
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(BaseURLForKey(authKey)).
			SetTimeout(60*time.Second).
			SetHeader("Authorization", "DeepL-Auth-Key "+authKey),
		maxRetries: 4,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Translation
// ---------------------------------------------------------------------------

// TranslateRequest is one text to translate.
type TranslateRequest struct {
	Text string
	// SourceLang and TargetLang are DeepL codes, see SourceLang and TargetLang.
	SourceLang string
	TargetLang string
	// TagHandling is "html", "xml" or empty.
	TagHandling string
	// IgnoreTags lists XML tags whose content must not be translated.
	IgnoreTags []string
	GlossaryID string
	// Formality is "default", "more", "less", "prefer_more" or "prefer_less".
	Formality string
}

// Translate sends one text and returns its translation.
func (c *Client) Translate(ctx context.Context, req TranslateRequest) (string, error) {
	if req.TargetLang == "" {
		return "", errors.New("deepl: target language is required")
	}
	if req.GlossaryID != "" && req.SourceLang == "" {
		return "", errors.New("deepl: a glossary requires a source language")
	}

	form := map[string]string{
		"text":                req.Text,
		"target_lang":         req.TargetLang,
		"preserve_formatting": "1",
	}
	if req.SourceLang != "" {
		form["source_lang"] = req.SourceLang
	}
	if req.TagHandling != "" {
		form["tag_handling"] = req.TagHandling
	}
	if len(req.IgnoreTags) > 0 {
		form["ignore_tags"] = strings.Join(req.IgnoreTags, ",")
	}
	if req.GlossaryID != "" {
		form["glossary_id"] = req.GlossaryID
	}
	if req.Formality != "" && req.Formality != "default" {
		form["formality"] = req.Formality
	}

	body, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetFormData(form).Post("/v2/translate")
	})
	if err != nil {
		return "", err
	}

	text := gjson.GetBytes(body, "translations.0.text")
	if !text.Exists() {
		return "", fmt.Errorf("deepl: unexpected translate response: %s", truncate(string(body), 200))
	}
	return text.String(), nil
}

// ---------------------------------------------------------------------------
// Glossaries
// ---------------------------------------------------------------------------

// Glossary describes a stored glossary.
type Glossary struct {
	ID           string
	Name         string
	Ready        bool
	SourceLang   string
	TargetLang   string
	EntryCount   int
	CreationTime time.Time
}

func glossaryFromJSON(v gjson.Result) Glossary {
	g := Glossary{
		ID:         v.Get("glossary_id").String(),
		Name:       v.Get("name").String(),
		Ready:      v.Get("ready").Bool(),
		SourceLang: v.Get("source_lang").String(),
		TargetLang: v.Get("target_lang").String(),
		EntryCount: int(v.Get("entry_count").Int()),
	}
	if ts := v.Get("creation_time").String(); ts != "" {
		g.CreationTime, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return g
}

// ListGlossaries returns all glossaries of the account.
func (c *Client) ListGlossaries(ctx context.Context) ([]Glossary, error) {
	body, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/v2/glossaries")
	})
	if err != nil {
		return nil, err
	}

	var out []Glossary
	gjson.GetBytes(body, "glossaries").ForEach(func(_, v gjson.Result) bool {
		out = append(out, glossaryFromJSON(v))
		return true
	})
	return out, nil
}

// CreateGlossary uploads tab-separated entries. Glossary languages are
// lowercase base codes ("en", "fr").
func (c *Client) CreateGlossary(ctx context.Context, name, sourceLang, targetLang, tsv string) (Glossary, error) {
	form := map[string]string{
		"name":           name,
		"source_lang":    strings.ToLower(sourceLang),
		"target_lang":    strings.ToLower(targetLang),
		"entries":        tsv,
		"entries_format": "tsv",
	}
	body, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetFormData(form).Post("/v2/glossaries")
	})
	if err != nil {
		return Glossary{}, err
	}

	g := glossaryFromJSON(gjson.ParseBytes(body))
	if g.ID == "" {
		return Glossary{}, fmt.Errorf("deepl: unexpected glossary response: %s", truncate(string(body), 200))
	}
	return g, nil
}

// DeleteGlossary removes a glossary.
func (c *Client) DeleteGlossary(ctx context.Context, id string) error {
	_, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", id).Delete("/v2/glossaries/{id}")
	})
	return err
}

// GlossaryEntries downloads the entries of a glossary as TSV.
func (c *Client) GlossaryEntries(ctx context.Context, id string) (string, error) {
	body, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", id).
			SetHeader("Accept", "text/tab-separated-values").
			Get("/v2/glossaries/{id}/entries")
	})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

// Usage is the account's character consumption for the current period.
type Usage struct {
	CharacterCount int64
	CharacterLimit int64
}

// Remaining returns the characters left before the quota is hit.
func (u Usage) Remaining() int64 {
	if u.CharacterLimit <= u.CharacterCount {
		return 0
	}
	return u.CharacterLimit - u.CharacterCount
}

// Usage queries the account usage.
func (c *Client) Usage(ctx context.Context) (Usage, error) {
	body, err := c.do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/v2/usage")
	})
	if err != nil {
		return Usage{}, err
	}
	res := gjson.ParseBytes(body)
	return Usage{
		CharacterCount: res.Get("character_count").Int(),
		CharacterLimit: res.Get("character_limit").Int(),
	}, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// do runs a request with retries and maps error statuses.
func (c *Client) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) ([]byte, error) {
	b := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(c.backoff))

	var body []byte
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		resp, err := send(c.http.R().SetContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("deepl: request failed: %w", err))
		}

		code := resp.StatusCode()
		switch {
		case code >= http.StatusOK && code < http.StatusMultipleChoices:
			body = resp.Body()
			return nil
		case code == http.StatusForbidden:
			return ErrAuth
		case code == StatusQuotaExceeded:
			return ErrQuotaExceeded
		}

		apiErr := &Error{StatusCode: code, Message: errorMessage(resp.Body())}
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return retry.RetryableError(apiErr)
		}
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		msg := gjson.GetBytes(body, "message").String()
		if detail := gjson.GetBytes(body, "detail").String(); detail != "" {
			msg = strings.TrimSpace(msg + ": " + detail)
		}
		if msg != "" {
			return msg
		}
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
