// Package daemon provides the background mirror that keeps the replica
// in step with the local record directories.
//
// The daemon:
// 1. Commits every collection once on startup
// 2. Watches the collection directories for record file changes
// 3. Re-commits changed collections after a debounce window
// 4. Periodically re-commits everything as a safety net
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gridsync/gridsync/internal/codec"
	"github.com/gridsync/gridsync/internal/record"
	"github.com/gridsync/gridsync/internal/sync"
)

// CommitObserver is notified after every commit attempt the daemon makes.
// Used to bridge daemon activity into the dashboard.
type CommitObserver func(key string, result *sync.CommitResult, err error)

// Config holds configuration for the daemon.
type Config struct {
	// Debounce is how long to wait after a file change before
	// committing, batching rapid updates together.
	Debounce time.Duration

	// FullSyncInterval is how often every collection is re-committed
	// regardless of observed changes.
	FullSyncInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:         500 * time.Millisecond,
		FullSyncInterval: 5 * time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates file watching and replica commits.
type Daemon struct {
	coord    *sync.Coordinator
	dataDir  string
	manifest *codec.Manifest
	config   *Config

	watcher  *fsnotify.Watcher
	dirToKey map[string]string

	changeQueue   map[string]time.Time // collection key -> queued at
	changeQueueMu gosync.Mutex

	observer CommitObserver

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a new Daemon instance.
//
// dataDir is the root holding one record directory per collection, laid
// out as declared in the manifest. Use Start() to begin mirroring.
func New(coord *sync.Coordinator, dataDir string, manifest *codec.Manifest, config *Config) (*Daemon, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("dataDir cannot be empty")
	}
	if manifest == nil || len(manifest.Collections) == 0 {
		return nil, fmt.Errorf("manifest declares no collections")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		coord:       coord,
		dataDir:     dataDir,
		manifest:    manifest,
		config:      config,
		watcher:     watcher,
		dirToKey:    make(map[string]string),
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// SetCommitObserver registers the observer notified after every commit
// attempt. Must be called before Start.
func (d *Daemon) SetCommitObserver(obs CommitObserver) {
	d.observer = obs
}

// Start begins the daemon's operation.
//
// This blocks until ctx is cancelled or startup fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Initial commit of everything
	d.CommitAll()

	// Watch every collection directory
	for _, key := range d.manifest.Keys() {
		spec := d.manifest.Collections[key]
		dir := filepath.Join(d.dataDir, spec.Dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create record directory %s: %w", dir, err)
		}
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		d.dirToKey[dir] = key
		d.config.Logger.Printf("Watching %s for collection %s", dir, key)
	}

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.fullSyncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// CommitAll commits every collection in the manifest. Individual
// collection failures are logged and do not stop the pass.
func (d *Daemon) CommitAll() {
	d.config.Logger.Println("Committing all collections")
	for _, key := range d.manifest.Keys() {
		if err := d.commitCollection(key); err != nil {
			d.config.Logger.Printf("Warning: failed to commit %s: %v", key, err)
		}
	}
}

// commitCollection reads the record directory for one collection and
// commits it to the replica.
func (d *Daemon) commitCollection(key string) error {
	spec, ok := d.manifest.Collections[key]
	if !ok {
		return fmt.Errorf("unknown collection %q", key)
	}

	cdc, err := spec.Codec()
	if err != nil {
		return fmt.Errorf("failed to build codec for %s: %w", key, err)
	}

	records, err := record.ReadAllRecordFiles(filepath.Join(d.dataDir, spec.Dir))
	if err != nil {
		return fmt.Errorf("failed to read records for %s: %w", key, err)
	}

	result, err := d.coord.Commit(d.ctx, sync.CommitRequest{
		Key:        key,
		Local:      records,
		Codec:      cdc,
		ReadRange:  spec.ReadRange,
		ClearRange: spec.ClearRange,
		WriteRange: spec.WriteRange,
	})
	if d.observer != nil {
		d.observer(key, result, err)
	}
	return err
}

// watchFileEvents monitors filesystem events and queues changed
// collections.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			key, ok := d.dirToKey[filepath.Dir(event.Name)]
			if !ok {
				continue
			}

			d.config.Logger.Printf("File event: %s %s (collection %s)", event.Op, event.Name, key)
			d.queueChange(key)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange marks a collection dirty with debouncing.
func (d *Daemon) queueChange(key string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[key] = time.Now()
}

// processChangeQueue commits collections whose debounce window elapsed.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges commits collections that have been quiet for a
// full debounce window.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	var due []string
	now := time.Now()
	for key, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.Debounce {
			continue
		}
		due = append(due, key)
		delete(d.changeQueue, key)
	}
	d.changeQueueMu.Unlock()

	for _, key := range due {
		d.config.Logger.Printf("Processing change: %s", key)
		if err := d.commitCollection(key); err != nil {
			d.config.Logger.Printf("Error committing %s: %v", key, err)
		}
	}
}

// fullSyncLoop periodically re-commits every collection.
func (d *Daemon) fullSyncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.FullSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.CommitAll()
		}
	}
}
