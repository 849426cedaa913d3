package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/build"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/incremental"
	"github.com/albertocavalcante/sitebuild/cmd/sitebuild/internal/sources"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// RebuildFunc runs one build. changed lists the source tags that triggered
// it and is empty for the initial build.
type RebuildFunc func(ctx context.Context, changed []string) (*build.Result, error)

// Config configures the watcher.
type Config struct {
	Sources  []sources.Source
	Rebuild  RebuildFunc
	Debounce time.Duration

	// InitialBuild runs a build once the watches are in place.
	InitialBuild bool

	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// Watcher watches source directories and rebuilds the site on changes.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	scanners  []*incremental.Scanner
	debouncer *Debouncer
	logger    *Logger

	ctx context.Context

	// buildMu serializes builds.
	buildMu sync.Mutex
}

// New creates a watcher for the given sources.
func New(cfg Config) (*Watcher, error) {
	if cfg.Rebuild == nil {
		return nil, errors.New("watch: no rebuild function")
	}

	scanners := make([]*incremental.Scanner, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		root, err := filepath.Abs(src.Dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", src.Dir, err)
		}
		scanners = append(scanners, incremental.NewScanner(incremental.ScanConfig{
			Source:   src.Name,
			Root:     root,
			Include:  src.Include,
			Exclude:  src.Exclude,
			Metadata: src.Metadata,
		}))
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		scanners:  scanners,
		logger: NewLogger(LoggerConfig{
			Writer:  cfg.Writer,
			Verbose: cfg.Verbose,
			NoColor: cfg.NoColor,
			JSON:    cfg.JSON,
		}),
	}, nil
}

// Logger returns the watch session logger.
func (w *Watcher) Logger() *Logger { return w.logger }

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx

	window := w.config.Debounce
	if window <= 0 {
		window = DefaultDebounce
	}
	w.debouncer = NewDebouncer(window, w.handleChanged)
	defer w.debouncer.Stop()

	dirs := make([]string, 0, len(w.scanners))
	tags := make([]string, 0, len(w.scanners))
	for _, sc := range w.scanners {
		if err := w.addRecursive(sc, sc.Root()); err != nil {
			return fmt.Errorf("failed to watch %s: %w", sc.Root(), err)
		}
		dirs = append(dirs, sc.Root())
		tags = append(tags, sc.Source())

		// Sidecars outside the source still trigger rebuilds.
		if meta := sc.MetadataFile(); meta != "" && !within(sc.Root(), meta) {
			if err := w.fsWatcher.Add(filepath.Dir(meta)); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", meta, err))
			}
		}
	}
	w.logger.Ready(dirs, tags)

	if w.config.InitialBuild {
		w.rebuild(nil)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// addRecursive watches dir and its subdirectories, skipping ignored ones.
func (w *Watcher) addRecursive(sc *incremental.Scanner, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != sc.Root() && sc.IgnoresDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %v\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288",
					ErrWatchLimitReached, path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
		}
		return nil
	})
}

func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left on device") ||
		strings.Contains(msg, "too many open files")
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			sc, rel, ok := w.locate(path)
			if !ok || w.ignored(sc, rel) {
				return
			}
			if err := w.addRecursive(sc, path); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
			}
			// Files moved in with the directory produce no events of their own.
			w.debouncer.Add(sc.Source())
			return
		}
	}

	var change ChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = ChangeAdded
	case event.Has(fsnotify.Write):
		change = ChangeModified
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		change = ChangeDeleted
	default:
		return
	}

	key, ok := w.classify(path)
	if !ok {
		return
	}
	w.logger.FileChanged(path, change)
	w.debouncer.Add(key)
}

// classify returns the source tag affected by a change to path. Paths that
// are neither assets nor metadata sidecars of a watched source are rejected.
func (w *Watcher) classify(path string) (string, bool) {
	for _, sc := range w.scanners {
		if meta := sc.MetadataFile(); meta != "" && filepath.Clean(path) == filepath.Clean(meta) {
			return sc.Source(), true
		}
	}

	sc, rel, ok := w.locate(path)
	if !ok || rel == "." {
		return "", false
	}
	if w.ignored(sc, filepath.Dir(rel)) {
		return "", false
	}
	if !sc.Matches(filepath.ToSlash(rel)) {
		return "", false
	}
	return sc.Source(), true
}

// locate finds the source whose root is the longest prefix of path.
func (w *Watcher) locate(path string) (*incremental.Scanner, string, bool) {
	var (
		best    *incremental.Scanner
		bestRel string
	)
	for _, sc := range w.scanners {
		if !within(sc.Root(), path) {
			continue
		}
		if best == nil || len(sc.Root()) > len(best.Root()) {
			rel, err := filepath.Rel(sc.Root(), path)
			if err != nil {
				continue
			}
			best, bestRel = sc, rel
		}
	}
	return best, bestRel, best != nil
}

// ignored reports whether any directory component of rel is skipped by sc.
func (w *Watcher) ignored(sc *incremental.Scanner, rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if sc.IgnoresDir(part) {
			return true
		}
	}
	return false
}

func (w *Watcher) handleChanged(tags []string) {
	if len(tags) == 0 {
		return
	}
	slices.Sort(tags)
	w.rebuild(tags)
}

func (w *Watcher) rebuild(tags []string) {
	w.buildMu.Lock()
	defer w.buildMu.Unlock()

	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return
	}

	w.logger.Rebuilding(tags)
	res, err := w.config.Rebuild(ctx, tags)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error(err)
		}
		return
	}
	w.logger.Rebuilt(res.Summary())
}

// Close releases the underlying OS watches.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
