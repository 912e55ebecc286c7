package workingstate

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/templedb/templedb/internal/debug"
	"github.com/templedb/templedb/internal/scanner"
)

// Watcher re-runs detection whenever the workspace changes. Events are
// debounced so a burst of writes (an editor save, a git checkout)
// triggers one pass.
type Watcher struct {
	detector  *Detector
	projectID int64
	branchID  int64
	root      string
	debounce  time.Duration
	ignore    map[string]bool

	fsw     *fsnotify.Watcher
	results chan *Result
	errs    chan error
}

// Watch starts watching root and returns the running watcher. Results
// of each detection pass arrive on Results(); the watcher stops when
// ctx is cancelled or Close is called.
func Watch(ctx context.Context, detector *Detector, projectID, branchID int64, root string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		detector:  detector,
		projectID: projectID,
		branchID:  branchID,
		root:      root,
		debounce:  debounce,
		ignore:    scanner.DefaultIgnoreDirs(),
		fsw:       fsw,
		results:   make(chan *Result, 1),
		errs:      make(chan error, 1),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	go w.loop(ctx)
	return w, nil
}

// Results delivers one Result per completed detection pass.
func (w *Watcher) Results() <-chan *Result { return w.results }

// Errors delivers detection and watch errors. The stream is advisory;
// the watcher keeps running after an error.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignore[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.results)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// New directories must be added to the watch before their
			// contents produce events.
			if event.Op.Has(fsnotify.Create) {
				if base := filepath.Base(event.Name); !w.ignore[base] {
					_ = w.addRecursive(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		case <-fire:
			timer = nil
			fire = nil
			result, err := w.detector.Detect(ctx, w.projectID, w.branchID, w.root)
			if err != nil {
				w.reportError(err)
				continue
			}
			debug.Logf("watch: detected %d added, %d modified, %d deleted under %s",
				result.Added, result.Modified, result.Deleted, w.root)
			select {
			case w.results <- result:
			default:
				// Drop if the consumer is behind; the next pass
				// supersedes this one anyway.
			}
		}
	}
}

func (w *Watcher) reportError(err error) {
	select {
	case w.errs <- err:
	default:
	}
}
