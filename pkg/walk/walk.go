// Package walk lists the filesystem entries a rule applies to.
package walk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/macropower/shelf/pkg/log"
)

// ErrInvalidTargets is returned for an unknown [Targets] value.
var ErrInvalidTargets = errors.New("invalid targets")

// Targets selects which kind of entry is produced.
type Targets string

const (
	// Files produces regular files and other non-directory entries.
	Files Targets = "files"
	// Dirs produces directories.
	Dirs Targets = "dirs"
)

// Validate returns an error if t is not a known value.
// The zero value is treated as [Files].
func (t Targets) Validate() error {
	switch t {
	case "", Files, Dirs:
		return nil
	}

	return fmt.Errorf("%w %q: must be %q or %q", ErrInvalidTargets, string(t), Files, Dirs)
}

// Entry is a filesystem entry found by a [Walker].
type Entry struct {
	// Path is the entry's path, joined to the location.
	Path string
	// RelativePath is the entry's path relative to the location.
	RelativePath string
	// Location is the walked location.
	Location string
	// Name is the last element of the path.
	Name string
	// IsDir is true for directories.
	IsDir bool
}

// NewEntry creates an [Entry] for a single path, outside of any walk.
func NewEntry(p string) (Entry, error) {
	p, err := ExpandHome(p)
	if err != nil {
		return Entry{}, err
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return Entry{}, fmt.Errorf("resolve %q: %w", p, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Entry{}, fmt.Errorf("stat: %w", err)
	}

	return Entry{
		Path:         abs,
		RelativePath: filepath.Base(abs),
		Location:     filepath.Dir(abs),
		Name:         filepath.Base(abs),
		IsDir:        info.IsDir(),
	}, nil
}

// Walker lists the entries under one location. The location cannot be
// escaped by symlinks, see [os.Root].
type Walker struct {
	root       *os.Root
	location   string
	targets    Targets
	exclude    []string
	maxDepth   uint
	subfolders bool
}

// Opt configures a [Walker].
type Opt func(*Walker)

// WithSubfolders enables recursion into subdirectories.
func WithSubfolders(subfolders bool) Opt {
	return func(w *Walker) {
		w.subfolders = subfolders
	}
}

// WithTargets sets the kind of entry produced.
func WithTargets(t Targets) Opt {
	return func(w *Walker) {
		if t != "" {
			w.targets = t
		}
	}
}

// WithMaxDepth limits recursion. 0 means no limit.
func WithMaxDepth(depth uint) Opt {
	return func(w *Walker) {
		w.maxDepth = depth
	}
}

// WithExclude skips entries whose name matches any of the given
// [path.Match] patterns. Excluded directories are not descended into.
func WithExclude(patterns ...string) Opt {
	return func(w *Walker) {
		w.exclude = append(w.exclude, patterns...)
	}
}

// New creates a new [Walker] for the given location.
// A leading "~" and environment variables in location are expanded.
func New(location string, opts ...Opt) (*Walker, error) {
	location, err := ExpandHome(location)
	if err != nil {
		return nil, err
	}

	location, err = filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", location, err)
	}

	w := &Walker{
		location: location,
		targets:  Files,
	}
	for _, opt := range opts {
		opt(w)
	}

	err = w.targets.Validate()
	if err != nil {
		return nil, err
	}

	for _, pattern := range w.exclude {
		_, err := path.Match(pattern, "")
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
	}

	w.root, err = os.OpenRoot(location)
	if err != nil {
		return nil, fmt.Errorf("open location %q: %w", location, err)
	}

	return w, nil
}

// Close closes the [Walker].
func (w *Walker) Close() error {
	return w.root.Close() //nolint:wrapcheck // Return the original error.
}

// Location returns the absolute walked location.
func (w *Walker) Location() string {
	return w.location
}

// Walk calls fn for each entry, in lexical order. Unreadable subdirectories
// are skipped with a warning. Walk stops at the first error returned by fn,
// or when ctx is done.
func (w *Walker) Walk(ctx context.Context, fn func(Entry) error) error {
	logger := log.WithContext(ctx)

	err := fs.WalkDir(w.root.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p != "." && d != nil && d.IsDir() {
				logger.WarnContext(ctx, "skipping unreadable directory",
					slog.String("location", w.location),
					slog.String("path", p),
					slog.Any("err", err),
				)

				return fs.SkipDir
			}

			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if p == "." {
			return nil
		}

		if w.excluded(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if d.IsDir() == (w.targets == Dirs) {
			err := fn(w.entry(p, d))
			if err != nil {
				return err
			}
		}

		if d.IsDir() && !w.descend(p) {
			return fs.SkipDir
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %q: %w", w.location, err)
	}

	return nil
}

// Dirs returns the location and every directory Walk would descend into.
func (w *Walker) Dirs(ctx context.Context) ([]string, error) {
	dirs := []string{w.location}
	if !w.subfolders {
		return dirs, nil
	}

	err := fs.WalkDir(w.root.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p != "." && d != nil && d.IsDir() {
				return fs.SkipDir
			}

			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if p == "." || !d.IsDir() {
			return nil
		}

		if w.excluded(d.Name()) {
			return fs.SkipDir
		}

		if w.maxDepth > 0 && depth(p) > w.maxDepth-1 {
			return fs.SkipDir
		}

		dirs = append(dirs, filepath.Join(w.location, filepath.FromSlash(p)))

		if !w.descend(p) {
			return fs.SkipDir
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", w.location, err)
	}

	return dirs, nil
}

// Contains reports whether p lies within the walked scope.
func (w *Walker) Contains(p string) bool {
	rel, err := filepath.Rel(w.location, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}

	d := depth(filepath.ToSlash(rel))
	if !w.subfolders {
		return d == 1
	}

	return w.maxDepth == 0 || d <= w.maxDepth
}

// EntryFor returns the [Entry] for the absolute path p. It returns false if
// p is outside the walked scope, is excluded, or is not of the walked
// [Targets].
func (w *Walker) EntryFor(p string) (Entry, bool, error) {
	if !w.Contains(p) {
		return Entry{}, false, nil
	}

	rel, err := filepath.Rel(w.location, p)
	if err != nil {
		return Entry{}, false, fmt.Errorf("resolve %q: %w", p, err)
	}

	for _, name := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.excluded(name) {
			return Entry{}, false, nil
		}
	}

	info, err := w.root.Stat(rel)
	if err != nil {
		return Entry{}, false, fmt.Errorf("stat: %w", err)
	}

	if info.IsDir() != (w.targets == Dirs) {
		return Entry{}, false, nil
	}

	return Entry{
		Path:         filepath.Join(w.location, rel),
		RelativePath: rel,
		Location:     w.location,
		Name:         info.Name(),
		IsDir:        info.IsDir(),
	}, true, nil
}

func (w *Walker) entry(p string, d fs.DirEntry) Entry {
	return Entry{
		Path:         filepath.Join(w.location, filepath.FromSlash(p)),
		RelativePath: filepath.FromSlash(p),
		Location:     w.location,
		Name:         d.Name(),
		IsDir:        d.IsDir(),
	}
}

func (w *Walker) descend(p string) bool {
	if !w.subfolders {
		return false
	}

	return w.maxDepth == 0 || depth(p) < w.maxDepth
}

func (w *Walker) excluded(name string) bool {
	for _, pattern := range w.exclude {
		if ok, _ := path.Match(pattern, name); ok { //nolint:errcheck // Validated in New.
			return true
		}
	}

	return false
}

func depth(p string) uint {
	return uint(strings.Count(p, "/") + 1) //nolint:gosec // G115: count is non-negative.
}

// ExpandHome expands environment variables and a leading "~" in p.
func ExpandHome(p string) (string, error) {
	p = os.ExpandEnv(p)
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}

	return filepath.Join(home, p[1:]), nil
}
