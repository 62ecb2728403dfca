package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/amterp/kanflow/internal/config"
	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/util"
	"github.com/amterp/kanflow/internal/version"
)

// ownWriteWindow is how long a path written by this process is reported
// by OwnWrite, long enough to outlive the watcher's debounce.
const ownWriteWindow = 2 * time.Second

// FileStore implements Backend on the filesystem: one board.toml per
// board holding its groups, and one JSON file per item.
type FileStore struct {
	paths  *config.Paths
	logger *log.Logger
	now    func() int64

	mu sync.Mutex // serializes writers within this process

	recentMu sync.Mutex
	recent   map[string]time.Time
}

// NewFileStore creates a file-backed store rooted at paths.
func NewFileStore(paths *config.Paths, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &FileStore{
		paths:  paths,
		logger: logger,
		now:    util.NowMillis,
		recent: make(map[string]time.Time),
	}
}

var _ Backend = (*FileStore)(nil)

// ListBoards returns every board with its groups. Directories without a
// board.toml are skipped.
func (s *FileStore) ListBoards(ctx context.Context) ([]*model.Board, error) {
	entries, err := os.ReadDir(s.paths.BoardsRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Board{}, nil
		}
		return nil, fmt.Errorf("failed to read boards directory: %w", err)
	}

	boards := []*model.Board{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		b, err := s.readBoard(entry.Name())
		if kanerr.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, nil
}

// LoadBoard reads a board and all its items. Malformed item files are
// logged and skipped.
func (s *FileStore) LoadBoard(ctx context.Context, boardID string) (*model.Board, error) {
	b, err := s.readBoard(boardID)
	if err != nil {
		return nil, err
	}
	items, err := s.readItems(boardID)
	if err != nil {
		return nil, err
	}
	b.Items = items
	return b, nil
}

// CreateBoard creates the board directory and writes its group list.
func (s *FileStore) CreateBoard(ctx context.Context, board *model.Board) error {
	if board.ID == "" || board.ID != filepath.Base(board.ID) || strings.HasPrefix(board.ID, ".") {
		return kanerr.InvalidField("board id", fmt.Sprintf("%q is not a valid directory name", board.ID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.paths.BoardFilePath(board.ID)); err == nil {
		return kanerr.BoardAlreadyExists(board.ID)
	}
	if err := os.MkdirAll(s.paths.ItemsDir(board.ID), 0755); err != nil {
		return fmt.Errorf("failed to create board directory: %w", err)
	}
	if err := s.writeBoard(board); err != nil {
		return fmt.Errorf("failed to write board file: %w", err)
	}
	for _, it := range board.Items {
		if err := s.writeItem(board.ID, it); err != nil {
			return err
		}
	}
	return nil
}

// CreateGroup appends a group to the board's group list.
func (s *FileStore) CreateGroup(ctx context.Context, boardID string, group model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.readBoard(boardID)
	if err != nil {
		return err
	}
	if err := validateNewGroup(b, group); err != nil {
		return err
	}
	b.Groups = append(b.Groups, group)
	if err := s.writeBoard(b); err != nil {
		return fmt.Errorf("failed to update board file: %w", err)
	}
	return nil
}

// CreateItem writes a new item file.
func (s *FileStore) CreateItem(ctx context.Context, boardID string, item *model.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.LoadBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if err := validateNewItem(b, item); err != nil {
		return err
	}
	return s.writeItem(boardID, item)
}

// ApplyBatch writes every changed item of the batch. All item files are
// staged first and only then renamed into place, so a failure while
// staging leaves every stored position untouched.
func (s *FileStore) ApplyBatch(ctx context.Context, batch model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.LoadBoard(ctx, batch.BoardID)
	if err != nil {
		return err
	}
	changed, err := resolveBatch(b, batch, s.now())
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	staged := make([]string, 0, len(changed))
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}
	for _, it := range changed {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		tmp, err := s.stageItem(batch.BoardID, it)
		if err != nil {
			cleanup()
			return err
		}
		staged = append(staged, tmp)
	}

	for i, it := range changed {
		path := s.paths.ItemPath(batch.BoardID, it.ID)
		s.markOwnWrite(path)
		if err := os.Rename(staged[i], path); err != nil {
			cleanup()
			return fmt.Errorf("failed to commit item %s: %w", it.ID, err)
		}
	}

	s.logger.WithFields(log.Fields{
		"board": batch.BoardID,
		"batch": batch.ID,
		"items": len(changed),
	}).Debug("file store applied batch")
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// OwnWrite reports whether path was written by this store recently, so
// the file watcher can ignore echoes of local moves.
func (s *FileStore) OwnWrite(path string) bool {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	now := time.Now()
	for p, at := range s.recent {
		if now.Sub(at) > ownWriteWindow {
			delete(s.recent, p)
		}
	}
	_, ok := s.recent[path]
	return ok
}

func (s *FileStore) markOwnWrite(path string) {
	s.recentMu.Lock()
	s.recent[path] = time.Now()
	s.recentMu.Unlock()
}

func (s *FileStore) readBoard(boardID string) (*model.Board, error) {
	path := s.paths.BoardFilePath(boardID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kanerr.BoardNotFound(boardID)
		}
		return nil, fmt.Errorf("failed to read board file: %w", err)
	}

	var b model.Board
	if err := toml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid board file %s: %w", path, err)
	}
	if err := version.BoardSchema.Check(path, b.Schema); err != nil {
		return nil, err
	}
	if b.ID == "" {
		b.ID = boardID
	}
	return &b, nil
}

func (s *FileStore) readItems(boardID string) ([]*model.Item, error) {
	dir := s.paths.ItemsDir(boardID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Item{}, nil
		}
		return nil, fmt.Errorf("failed to read items directory: %w", err)
	}

	items := []*model.Item{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, config.ItemFileSuffix) {
			continue
		}
		path := filepath.Join(dir, name)
		it, err := readItem(path)
		if err != nil {
			// Log warning but don't fail - allows partial reads
			s.logger.WithError(err).WithField("file", name).Warn("skipping malformed item file")
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func readItem(path string) (*model.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var it model.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := version.CheckItem(path, it.Version); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *FileStore) writeBoard(b *model.Board) error {
	out := *b
	out.Schema = version.BoardSchema.Current()

	path := s.paths.BoardFilePath(b.ID)
	s.markOwnWrite(path)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(out)
}

func (s *FileStore) writeItem(boardID string, it *model.Item) error {
	tmp, err := s.stageItem(boardID, it)
	if err != nil {
		return err
	}
	path := s.paths.ItemPath(boardID, it.ID)
	s.markOwnWrite(path)
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write item %s: %w", it.ID, err)
	}
	return nil
}

// stageItem writes an item to a hidden temp file next to its final path.
func (s *FileStore) stageItem(boardID string, it *model.Item) (string, error) {
	stamped := *it
	stamped.Version = version.CurrentItemVersion

	data, err := json.MarshalIndent(&stamped, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal item: %w", err)
	}
	dir := s.paths.ItemsDir(boardID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create items directory: %w", err)
	}
	tmp := filepath.Join(dir, "."+it.ID+config.ItemFileSuffix+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to stage item %s: %w", it.ID, err)
	}
	return tmp, nil
}
