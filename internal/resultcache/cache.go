// Package resultcache holds the verification results shared across all
// concurrent probes of a run: domain → deliverable and address →
// exists. Entries are written once per run (first writer wins) and can
// be persisted to a flat JSON file between runs.
package resultcache

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// DefaultFile is the cache file name used when no path is configured.
const DefaultFile = "verimail_cache.json"

// fileFormat is the on-disk shape: exactly two top-level mappings.
type fileFormat struct {
	Domains map[string]bool `json:"domains"`
	Emails  map[string]bool `json:"emails"`
}

// Cache is the process-wide result cache. All access is serialized
// internally; a read-then-write sequence for one key cannot race with
// another probe for the same key.
type Cache struct {
	mu      sync.Mutex
	path    string
	domains map[string]bool
	emails  map[string]bool
}

// New creates an empty in-memory cache. An empty path disables
// persistence; Load and Persist become no-ops.
func New(path string) *Cache {
	return &Cache{
		path:    path,
		domains: make(map[string]bool),
		emails:  make(map[string]bool),
	}
}

// Load reads the cache file, replacing the in-memory state. A missing
// or unreadable file leaves the cache empty and returns the condition
// for reporting; it is never fatal to the caller.
func (c *Cache) Load() error {
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		// Corrupt file is treated as absent.
		return fmt.Errorf("decode cache file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f.Domains != nil {
		c.domains = f.Domains
	}
	if f.Emails != nil {
		c.emails = f.Emails
	}
	return nil
}

// Persist writes the current state to the cache file. Failures are
// returned for reporting and must not abort the run.
func (c *Cache) Persist() error {
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	f := fileFormat{
		Domains: make(map[string]bool, len(c.domains)),
		Emails:  make(map[string]bool, len(c.emails)),
	}
	for k, v := range c.domains {
		f.Domains[k] = v
	}
	for k, v := range c.emails {
		f.Emails[k] = v
	}
	c.mu.Unlock()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

// LookupDomain reports the cached deliverability verdict for a domain.
func (c *Cache) LookupDomain(domain string) (deliverable, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deliverable, ok = c.domains[domain]
	return deliverable, ok
}

// LookupEmail reports the cached existence verdict for an address.
func (c *Cache) LookupEmail(address string) (exists, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exists, ok = c.emails[address]
	return exists, ok
}

// RecordDomain stores the deliverability verdict unless one already
// exists (first writer wins). It returns the authoritative verdict and
// whether the call conflicted with an earlier, differing one.
func (c *Cache) RecordDomain(domain string, deliverable bool) (stored, conflict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.domains[domain]; ok {
		return prev, prev != deliverable
	}
	c.domains[domain] = deliverable
	return deliverable, false
}

// RecordEmail stores the existence verdict unless one already exists
// (first writer wins). It returns the authoritative verdict and
// whether the call conflicted with an earlier, differing one.
func (c *Cache) RecordEmail(address string, exists bool) (stored, conflict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.emails[address]; ok {
		return prev, prev != exists
	}
	c.emails[address] = exists
	return exists, false
}

// Len returns the number of domain and email entries (for diagnostics).
func (c *Cache) Len() (domains, emails int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.domains), len(c.emails)
}
