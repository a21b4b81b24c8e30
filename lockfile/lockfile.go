// Package lockfile implements potm.lock, a record of which catalog entries
// were filled by machine translation. For every such entry it keeps the MD5
// of the source text that was sent and of the text that came back, so a
// later run can tell an unreviewed machine suggestion (still our output)
// from one a translator has since edited.
//
// The lock file lives next to the catalog, or wherever the config points.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "potm.lock"

// Version is the lock file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Record is what was exchanged with the translator for one entry.
type Record struct {
	Source string `yaml:"source"`
	Output string `yaml:"output"`
}

// LockFile represents the potm.lock file structure.
type LockFile struct {
	Version int                          `yaml:"version"`
	Targets map[string]map[string]Record `yaml:"targets"` // catalog -> entry key -> record

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads potm.lock from dir.
func Load(dir string) (*LockFile, error) {
	return LoadFile(filepath.Join(dir, LockFileName))
}

// LoadFile reads a lock file. A missing file yields an empty lock.
func LoadFile(path string) (*LockFile, error) {
	lf := &LockFile{
		Version: Version,
		Targets: make(map[string]map[string]Record),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path
	if lf.Version > Version {
		return nil, fmt.Errorf("%s: unsupported lock file version %d", path, lf.Version)
	}
	if lf.Targets == nil {
		lf.Targets = make(map[string]map[string]Record)
	}
	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}
	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// TargetKey normalises a catalog path into a target name.
func TargetKey(filePath string) string {
	return filepath.ToSlash(filepath.Clean(filePath))
}

// IsChanged reports whether source differs from what was last sent for key,
// or was never sent.
func (lf *LockFile) IsChanged(target, key, source string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	rec, ok := lf.Targets[target][key]
	return !ok || rec.Source != Hash(source)
}

// IsMachineOutput reports whether output is still exactly what the
// translator returned for source.
func (lf *LockFile) IsMachineOutput(target, key, source, output string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	rec, ok := lf.Targets[target][key]
	return ok && rec.Source == Hash(source) && rec.Output == Hash(output)
}

// Update records a machine translation.
func (lf *LockFile) Update(target, key, source, output string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.Targets[target] == nil {
		lf.Targets[target] = make(map[string]Record)
	}
	lf.Targets[target][key] = Record{Source: Hash(source), Output: Hash(output)}
}

// Forget drops the record of key, e.g. after the translation memory took
// over the entry.
func (lf *LockFile) Forget(target, key string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.Targets[target], key)
}

// Clean removes records whose key is no longer in the catalog and returns
// how many were removed.
func (lf *LockFile) Clean(target string, currentKeys []string) int {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	existing := lf.Targets[target]
	if existing == nil {
		return 0
	}

	valid := make(map[string]bool, len(currentKeys))
	for _, k := range currentKeys {
		valid[k] = true
	}

	removed := 0
	for k := range existing {
		if !valid[k] {
			delete(existing, k)
			removed++
		}
	}
	if len(existing) == 0 {
		delete(lf.Targets, target)
	}
	return removed
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of targets and total records.
func (lf *LockFile) Stats() (targets, keys int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	targets = len(lf.Targets)
	for _, m := range lf.Targets {
		keys += len(m)
	}
	return
}

// TargetNames returns the sorted target keys.
func (lf *LockFile) TargetNames() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	names := make([]string, 0, len(lf.Targets))
	for t := range lf.Targets {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	targets, keys := lf.Stats()
	if targets == 0 {
		return "empty"
	}

	var parts []string
	for _, t := range lf.TargetNames() {
		parts = append(parts, fmt.Sprintf("%s: %d entries", t, len(lf.Targets[t])))
	}
	return fmt.Sprintf("%d catalogs, %d entries (%s)", targets, keys, strings.Join(parts, ", "))
}

// ---------------------------------------------------------------------------
// PO helpers
// ---------------------------------------------------------------------------

// POEntryKey builds a record key from a PO msgid and msgctxt.
// Format: "msgctxt|msgid" or just "msgid" if no context.
func POEntryKey(msgid, msgctxt string) string {
	if msgctxt != "" {
		return msgctxt + "|" + msgid
	}
	return msgid
}

// POEntryContent joins msgid and msgid_plural so a change in either is seen.
func POEntryContent(msgid, msgidPlural string) string {
	if msgidPlural != "" {
		return msgid + "\x00" + msgidPlural
	}
	return msgid
}

// POEntryOutput joins the translated forms of an entry in index order.
func POEntryOutput(msgstr string, plural map[int]string) string {
	if len(plural) == 0 {
		return msgstr
	}
	idx := make([]int, 0, len(plural))
	for i := range plural {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	forms := make([]string, len(idx))
	for i, k := range idx {
		forms[i] = plural[k]
	}
	return strings.Join(forms, "\x00")
}
