// Package cache is the on-disk artifact cache shared by the binary and
// snapshot provisioners.
//
// Keys encode the exact version or commit they hold, so an existing entry is
// always correct and never refreshed. Entries are filled in a staging
// directory and renamed into place, so a visible entry is always complete.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const stagingPrefix = ".staging-"

// staleStagingAge is how old a staging entry must be before New removes it.
// Younger entries may belong to a fill running in another process.
const staleStagingAge = 6 * time.Hour

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Artifact is a cache entry. Exists implies fully-extracted content at Path.
type Artifact struct {
	Key    string
	Path   string
	Exists bool
}

// StrictRunner runs a trusted local utility and returns its stdout.
type StrictRunner interface {
	RunStrict(ctx context.Context, name string, args ...string) (string, error)
}

// Cache is rooted at a single directory.
type Cache struct {
	dir   string
	group singleflight.Group
}

func New(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache: dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", abs, err)
	}
	c := &Cache{dir: abs}
	c.removeStaleStaging(time.Now().Add(-staleStagingAge))
	return c, nil
}

// removeStaleStaging deletes staging leftovers last modified before cutoff.
// They remain when a process exits while a fill is still running.
func (c *Cache) removeStaleStaging(cutoff time.Time) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		_ = os.RemoveAll(filepath.Join(c.dir, e.Name()))
	}
}

func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the deterministic location for key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key)
}

// Lookup reports whether key is present.
func (c *Cache) Lookup(key string) Artifact {
	p := c.Path(key)
	_, err := os.Stat(p)
	return Artifact{Key: key, Path: p, Exists: err == nil}
}

// Ensure returns the entry for key, calling fill to populate it on a miss.
// fill receives an empty staging directory; on success the directory is
// renamed to Path(key). The second return value is true on a cache hit.
//
// Calls for the same key within this process share one fill. Across
// processes the entry is written at most once: if another writer published
// the key first, the staged copy is discarded.
func (c *Cache) Ensure(ctx context.Context, key string, fill func(ctx context.Context, staging string) error) (Artifact, bool, error) {
	if !validKey.MatchString(key) {
		return Artifact{}, false, fmt.Errorf("cache: invalid key %q", key)
	}
	if a := c.Lookup(key); a.Exists {
		return a, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if a := c.Lookup(key); a.Exists {
			return a, nil
		}
		staging, err := os.MkdirTemp(c.dir, stagingPrefix+key+"-")
		if err != nil {
			return nil, fmt.Errorf("cache: create staging dir: %w", err)
		}
		defer func() { _ = os.RemoveAll(staging) }()

		if err := fill(ctx, staging); err != nil {
			return nil, err
		}
		if err := os.Rename(staging, c.Path(key)); err != nil {
			if a := c.Lookup(key); a.Exists {
				return a, nil
			}
			return nil, fmt.Errorf("cache: publish %s: %w", key, err)
		}
		return Artifact{Key: key, Path: c.Path(key), Exists: true}, nil
	})
	if err != nil {
		return Artifact{}, false, err
	}
	return v.(Artifact), false, nil
}

// DiskUsage returns the bytes used by the cache directory, measured with du.
func (c *Cache) DiskUsage(ctx context.Context, r StrictRunner) (int64, error) {
	out, err := r.RunStrict(ctx, "du", "-sk", c.dir)
	if err != nil {
		return 0, fmt.Errorf("cache: measure disk usage: %w", err)
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, fmt.Errorf("cache: unexpected du output %q", out)
	}
	kb, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: parse du output %q: %w", out, err)
	}
	return kb * 1024, nil
}
