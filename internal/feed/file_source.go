package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/amterp/kanflow/internal/config"
	"github.com/amterp/kanflow/internal/util"
)

// FileOrigin is the origin of events produced by the filesystem watcher.
const FileOrigin = "fs"

const debounceDelay = 100 * time.Millisecond

// OwnWriteChecker reports paths this process wrote itself.
type OwnWriteChecker interface {
	OwnWrite(path string) bool
}

// FileSource watches the data directory of the file backend and turns
// edits made by other processes (another kanflow, an editor, git) into
// board events on a Bus.
type FileSource struct {
	watcher  *fsnotify.Watcher
	dataDir  string
	bus      *Bus
	own      OwnWriteChecker
	logger   *log.Logger
	delay    time.Duration
	mu       sync.Mutex
	debounce map[string]*time.Timer
	stopCh   chan struct{}
	running  bool
	stopped  bool // Once stopped, cannot restart
}

// NewFileSource creates a watcher over paths.DataRoot. own may be nil.
func NewFileSource(paths *config.Paths, bus *Bus, own OwnWriteChecker, logger *log.Logger) (*FileSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &FileSource{
		watcher:  watcher,
		dataDir:  paths.DataRoot(),
		bus:      bus,
		own:      own,
		logger:   logger,
		delay:    debounceDelay,
		debounce: make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching.
func (fs *FileSource) Start() error {
	fs.mu.Lock()
	if fs.running {
		fs.mu.Unlock()
		return nil
	}
	if fs.stopped {
		fs.mu.Unlock()
		return fmt.Errorf("file source cannot be restarted after stop")
	}
	fs.running = true
	fs.mu.Unlock()

	if err := fs.addWatchesRecursive(fs.dataDir); err != nil {
		return err
	}
	go fs.run()
	return nil
}

// Stop stops watching and cancels pending debounced events.
func (fs *FileSource) Stop() error {
	fs.mu.Lock()
	if !fs.running || fs.stopped {
		fs.mu.Unlock()
		return nil
	}
	fs.running = false
	fs.stopped = true
	for path, timer := range fs.debounce {
		timer.Stop()
		delete(fs.debounce, path)
	}
	fs.mu.Unlock()

	close(fs.stopCh)
	return fs.watcher.Close()
}

func (fs *FileSource) addWatchesRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Directory might not exist yet
		}
		if info.IsDir() {
			if err := fs.watcher.Add(path); err != nil {
				fs.logger.WithError(err).WithField("path", path).Warn("failed to watch directory")
			}
		}
		return nil
	})
}

func (fs *FileSource) run() {
	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			fs.handleEvent(event)
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.logger.WithError(err).Warn("file watcher error")
		case <-fs.stopCh:
			return
		}
	}
}

func (fs *FileSource) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = fs.addWatchesRecursive(event.Name)
		}
	}

	if fs.own != nil && fs.own.OwnWrite(event.Name) {
		return
	}

	// Coalesce bursts per board: a batch rewrites many item files at once
	ev, ok := fs.classify(event.Name)
	if !ok {
		return
	}
	fs.schedule(ev)
}

func (fs *FileSource) schedule(ev Event) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.stopped {
		return
	}
	if timer, exists := fs.debounce[ev.BoardID]; exists {
		timer.Stop()
	}
	fs.debounce[ev.BoardID] = time.AfterFunc(fs.delay, func() {
		fs.mu.Lock()
		delete(fs.debounce, ev.BoardID)
		stopped := fs.stopped
		fs.mu.Unlock()
		if stopped {
			return
		}
		ev.AtMillis = util.NowMillis()
		fs.bus.Dispatch(ev)
	})
}

// classify maps a path under the data directory to a board event:
//
//	boards/<board>/board.toml
//	boards/<board>/items/<item>.json
func (fs *FileSource) classify(path string) (Event, bool) {
	rel, err := filepath.Rel(fs.dataDir, path)
	if err != nil {
		return Event{}, false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 || parts[0] != config.BoardsDir {
		return Event{}, false
	}

	ev := Event{BoardID: parts[1], Origin: FileOrigin, Reason: ReasonExternal}
	switch {
	case len(parts) == 2:
		return ev, true // board directory created or removed
	case len(parts) == 3 && parts[2] == config.BoardFileName:
		return ev, true
	case len(parts) == 4 && parts[2] == config.ItemsDir && strings.HasSuffix(parts[3], config.ItemFileSuffix):
		ev.ItemIDs = []string{strings.TrimSuffix(parts[3], config.ItemFileSuffix)}
		return ev, true
	}
	return Event{}, false
}
