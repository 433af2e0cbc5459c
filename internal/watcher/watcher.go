// Package watcher turns filesystem notifications under the watch root into
// change events carrying root-relative paths, and decides which of those
// changes are relevant to the preview bundle.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
)

// FileWatcher watches a directory tree recursively
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	ignore   map[string]bool
	filters  []FileFilter
	handlers []ChangeHandler
	logger   logging.Logger
	mutex    sync.RWMutex

	started   bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	loopDone  chan struct{}
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	// Path is relative to the watch root, slash separated.
	Path string
	Time time.Time
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a change should be delivered
type FileFilter func(path string) bool

// ChangeHandler handles file change events
type ChangeHandler func(event ChangeEvent) error

// NewFileWatcher creates a watcher for root. Directories named in ignore are
// never descended into.
func NewFileWatcher(root string, ignore []string, logger logging.Logger) (*FileWatcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWatcherFailed, "resolving watch root", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeWatcherFailed, "creating file watcher", err)
	}

	ignored := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ignored[name] = true
	}

	return &FileWatcher{
		watcher:  watcher,
		root:     absRoot,
		ignore:   ignored,
		filters:  make([]FileFilter, 0),
		handlers: make([]ChangeHandler, 0),
		logger:   logger.WithComponent("watcher"),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}, nil
}

// Root returns the absolute watch root.
func (fw *FileWatcher) Root() string {
	return fw.root
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive adds dir and all of its subdirectories, skipping hidden and
// ignored directories below the root.
func (fw *FileWatcher) AddRecursive(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return errors.NewIOError(errors.ErrCodeWatcherFailed, "resolving watch path", err)
	}

	return filepath.WalkDir(absDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// directories can vanish between the event and the walk
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != fw.root && fw.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return errors.NewIOError(errors.ErrCodeWatcherFailed, fmt.Sprintf("watching %s", path), err)
		}
		return nil
	})
}

func (fw *FileWatcher) skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || fw.ignore[name]
}

// Start runs the event loop until ctx is cancelled or the watcher is closed.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	if fw.started {
		return errors.NewInternalError(errors.ErrCodeWatcherFailed, "file watcher already started", nil)
	}
	fw.started = true

	go func() {
		defer close(fw.loopDone)
		fw.watchLoop(ctx)
	}()
	return nil
}

// Close stops the watcher and waits for the event loop to exit, so no handler
// runs after Close returns. Safe to call more than once, but not from a
// handler.
func (fw *FileWatcher) Close() error {
	fw.closeOnce.Do(func() {
		close(fw.done)
		fw.closeErr = fw.watcher.Close()

		fw.mutex.RLock()
		started := fw.started
		fw.mutex.RUnlock()
		if started {
			<-fw.loopDone
		}
	})
	return fw.closeErr
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !fw.skipDir(info.Name()) {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
			}
		}
	}

	rel, ok := fw.relative(event.Name)
	if !ok {
		return
	}

	fw.mutex.RLock()
	filters := fw.filters
	handlers := fw.handlers
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(rel) {
			return
		}
	}

	change := ChangeEvent{
		Type: eventType(event.Op),
		Path: rel,
		Time: time.Now(),
	}

	fw.logger.Debug(ctx, "File changed", "path", change.Path, "type", change.Type.String())

	for _, handler := range handlers {
		if err := handler(change); err != nil {
			fw.logger.Warn(ctx, err, "File watcher handler error", "path", change.Path)
		}
	}
}

// relative maps an absolute event path to a slash-separated path under root.
func (fw *FileWatcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(fw.root, name)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func eventType(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Write):
		return EventTypeModified
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}
