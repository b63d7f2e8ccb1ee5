package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fulmenhq/folio/pkg/book"
	"github.com/fulmenhq/folio/pkg/discovery"
	"github.com/fulmenhq/folio/pkg/logger"
	"github.com/fulmenhq/folio/pkg/manifest"
)

// WatchSet is what a watcher observes for one manifest.
type WatchSet struct {
	// Trees are watched recursively: folder content roots.
	Trees []string
	// Dirs are watched without recursion: parents of file targets.
	Dirs []string
	// Ignored paths never trigger a build: output dirs and the manifest.
	Ignored []string
}

// NewWatchSet derives the watch roots of every entry in m.
func NewWatchSet(m *manifest.Manifest) WatchSet {
	ws := WatchSet{Ignored: []string{m.Path}}
	seen := map[string]bool{}
	for _, e := range m.Targets(false) {
		if out := e.OutDir; out != "" && !seen["out:"+out] {
			seen["out:"+out] = true
			ws.Ignored = append(ws.Ignored, out)
		}
		abs := discovery.Request{Path: e.Path, ManifestDir: m.Dir}.Resolve()
		if discovery.SourceType(e.SourceType, abs) != manifest.SourceFolder {
			dir := filepath.Dir(abs)
			if !seen["dir:"+dir] {
				seen["dir:"+dir] = true
				ws.Dirs = append(ws.Dirs, dir)
			}
			continue
		}
		root := abs
		if e.UseBookJSON {
			if meta, ok := book.Discover(abs); ok {
				root = meta.ContentRoot()
			}
		}
		if !seen["tree:"+root] {
			seen["tree:"+root] = true
			ws.Trees = append(ws.Trees, root)
		}
	}
	return ws
}

// Skip reports whether a change to path is ignored. Generated summaries
// are ignored so a rebuild does not trigger itself.
func (ws WatchSet) Skip(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || base == "node_modules" || strings.EqualFold(base, "SUMMARY.md") {
		return true
	}
	for _, ig := range ws.Ignored {
		if path == ig || strings.HasPrefix(path, ig+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Watcher feeds debounced batches of changed repo-relative paths to
// OnChange. OnChange runs on the watcher goroutine, so changes that
// arrive during a build are batched for the next call.
type Watcher struct {
	Root     string
	Debounce time.Duration
	Set      WatchSet
	OnChange func(ctx context.Context, changed []string)

	fsw *fsnotify.Watcher
}

// NewWatcher creates the underlying fsnotify watcher and registers the
// directories of set. Missing roots are logged and skipped.
func NewWatcher(root string, set WatchSet, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Watcher{Root: root, Debounce: debounce, Set: set, fsw: fsw}
	for _, d := range set.Dirs {
		w.add(d)
	}
	for _, t := range set.Trees {
		w.addTree(t)
	}
	return w, nil
}

func (w *Watcher) add(dir string) {
	if err := w.fsw.Add(dir); err != nil {
		logger.Warn("failed to watch directory", logger.String("path", dir), logger.Err(err))
		return
	}
	logger.Debug("watching directory", logger.String("path", dir))
}

func (w *Watcher) addTree(root string) {
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && w.Set.Skip(p) {
			return filepath.SkipDir
		}
		w.add(p)
		return nil
	})
	if err != nil {
		logger.Warn("failed to walk watch root", logger.String("root", root), logger.Err(err))
	}
}

// Watched returns the directories currently registered.
func (w *Watcher) Watched() []string {
	list := w.fsw.WatchList()
	sort.Strings(list)
	return list
}

// Run processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	pending := map[string]struct{}{}
	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.Set.Skip(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && w.underTree(ev.Name) {
					w.addTree(ev.Name)
				}
			}
			rel, err := filepath.Rel(w.Root, ev.Name)
			if err != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			timer.Reset(w.Debounce)
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logger.Err(err))

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			sort.Strings(changed)
			logger.Info("changes detected", logger.Int("count", len(changed)), logger.Strings("paths", changed))
			if w.OnChange != nil {
				w.OnChange(ctx, changed)
			}
		}
	}
}

func (w *Watcher) underTree(p string) bool {
	for _, t := range w.Set.Trees {
		if p == t || strings.HasPrefix(p, t+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Close releases the fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
