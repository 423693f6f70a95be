package breakpoint

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// CanonicalLocation is a real-path-resolved source location. Ordering is
// primary by line ascending, secondary by case-insensitive byte comparison
// of path (spec.md §3).
type CanonicalLocation struct {
	Path string
	Line int32
}

// Less reports whether a sorts before b under the ordering spec.md §3
// defines.
func (a CanonicalLocation) Less(b CanonicalLocation) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return strings.ToLower(a.Path) < strings.ToLower(b.Path)
}

// CaseInsensitiveName wraps a UTF-8 string whose equality and order use
// case-insensitive byte comparison (spec.md §3).
type CaseInsensitiveName struct {
	Name string
}

func (n CaseInsensitiveName) key() string { return strings.ToLower(n.Name) }

// Less reports whether a sorts before b under case-insensitive comparison.
func (a CaseInsensitiveName) Less(b CaseInsensitiveName) bool {
	return a.key() < b.key()
}

// Equal reports case-insensitive equality.
func (a CaseInsensitiveName) Equal(b CaseInsensitiveName) bool {
	return a.key() == b.key()
}

// pathCanonicalizer memoizes file -> real-path lookups in a string->string
// cache (spec.md §3), and uses fsnotify to evict a memoized entry if the
// underlying file is later renamed or removed out from under a location
// breakpoint (SPEC_FULL.md DOMAIN STACK: fsnotify wiring).
type pathCanonicalizer struct {
	mu         sync.Mutex
	cache      map[string]string   // original file -> canonical path ("" = does not exist)
	byCanon    map[string][]string // canonical path -> original files that mapped to it
	watchedDir map[string]struct{}
	watcher    *fsnotify.Watcher
	log        *logrus.Entry
}

func newPathCanonicalizer(log *logrus.Entry) *pathCanonicalizer {
	c := &pathCanonicalizer{
		cache:      make(map[string]string),
		byCanon:    make(map[string][]string),
		watchedDir: make(map[string]struct{}),
		log:        log,
	}
	if w, err := fsnotify.NewWatcher(); err == nil {
		c.watcher = w
		go c.watchLoop()
	} else if log != nil {
		log.WithError(err).Warn("breakpoint: fsnotify unavailable, canonical-path cache will not self-invalidate")
	}
	return c
}

func (c *pathCanonicalizer) watchLoop() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				c.invalidate(ev.Name)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			if c.log != nil {
				c.log.WithError(err).Warn("breakpoint: fsnotify watcher error")
			}
		}
	}
}

func (c *pathCanonicalizer) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, orig := range c.byCanon[path] {
		delete(c.cache, orig)
	}
	delete(c.byCanon, path)
}

// Canonicalize resolves file to its real path, memoizing the result. ok is
// false when the file has no canonical path (does not exist), matching
// spec.md §4.3's "reject if canonical path is empty" edge case.
func (c *pathCanonicalizer) Canonicalize(file string) (path string, ok bool) {
	c.mu.Lock()
	if v, hit := c.cache[file]; hit {
		c.mu.Unlock()
		return v, v != ""
	}
	c.mu.Unlock()

	resolved := realPath(file)

	c.mu.Lock()
	c.cache[file] = resolved
	if resolved != "" {
		c.byCanon[resolved] = append(c.byCanon[resolved], file)
		c.watchDir(resolved)
	}
	c.mu.Unlock()
	return resolved, resolved != ""
}

func (c *pathCanonicalizer) watchDir(canonicalPath string) {
	if c.watcher == nil {
		return
	}
	dir := filepath.Dir(canonicalPath)
	if _, already := c.watchedDir[dir]; already {
		return
	}
	if err := c.watcher.Add(dir); err == nil {
		c.watchedDir[dir] = struct{}{}
	} else if c.log != nil {
		c.log.WithError(err).WithField("dir", dir).Warn("breakpoint: failed to watch directory for cache invalidation")
	}
}

// Close releases the fsnotify watcher, if one was started.
func (c *pathCanonicalizer) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Close()
}

// realPath resolves file to an absolute, symlink-free path, returning ""
// if the file does not exist (mirroring cmsys::SystemTools::GetRealPath's
// behavior of returning an empty string for an unresolvable path).
func realPath(file string) string {
	abs, err := filepath.Abs(file)
	if err != nil {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return ""
	}
	return resolved
}
