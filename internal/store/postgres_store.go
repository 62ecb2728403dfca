package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/util"
)

const (
	listBoardsSQL      = `SELECT id, name FROM boards ORDER BY id`
	selectBoardSQL     = `SELECT id, name FROM boards WHERE id = $1`
	lockBoardSQL       = `SELECT id, name FROM boards WHERE id = $1 FOR UPDATE`
	selectGroupsSQL    = `SELECT id, title, order_hint, color, kind, accepts_incoming, accepts_outgoing, accepts_creation FROM board_groups WHERE board_id = $1 ORDER BY order_hint, id`
	selectItemsSQL     = `SELECT id, group_id, position, title, value, assignee, creator, created_at_millis, updated_at_millis, completed_at_millis FROM items WHERE board_id = $1 ORDER BY id`
	insertBoardSQL     = `INSERT INTO boards (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	insertGroupSQL     = `INSERT INTO board_groups (id, board_id, title, order_hint, color, kind, accepts_incoming, accepts_outgoing, accepts_creation) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	insertItemSQL      = `INSERT INTO items (id, board_id, group_id, position, title, value, assignee, creator, created_at_millis, updated_at_millis, completed_at_millis) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	recordBatchSQL     = `INSERT INTO applied_batches (id, board_id, actor, item_count) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`
	updateItemSQL      = `UPDATE items SET group_id = $1, position = $2, updated_at_millis = $3, completed_at_millis = $4 WHERE id = $5 AND board_id = $6`
	postgresPingPeriod = 5 * time.Second
)

// OpenPostgres opens a pgx-backed database handle and verifies it answers.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	pingCtx, cancel := context.WithTimeout(ctx, postgresPingPeriod)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// PostgresStore implements Backend on Postgres. Each batch runs in one
// transaction holding the board row lock, and batch IDs are recorded so a
// replayed batch is skipped inside the database too.
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
	now    func() int64
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, logger *log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &PostgresStore{db: db, logger: logger, now: util.NowMillis}
}

var _ Backend = (*PostgresStore)(nil)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) ListBoards(ctx context.Context) ([]*model.Board, error) {
	rows, err := s.db.QueryContext(ctx, listBoardsSQL)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	boards := []*model.Board{}
	for rows.Next() {
		b := &model.Board{}
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list boards: %w", err)
	}
	rows.Close()

	for _, b := range boards {
		groups, err := loadGroups(ctx, s.db, b.ID)
		if err != nil {
			return nil, err
		}
		b.Groups = groups
	}
	return boards, nil
}

func (s *PostgresStore) LoadBoard(ctx context.Context, boardID string) (*model.Board, error) {
	return loadBoard(ctx, s.db, selectBoardSQL, boardID)
}

func (s *PostgresStore) CreateBoard(ctx context.Context, board *model.Board) error {
	if board.ID == "" {
		return kanerr.InvalidField("board id", "must not be empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create board: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertBoardSQL, board.ID, board.Name)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return kanerr.BoardAlreadyExists(board.ID)
	}
	for _, g := range board.Groups {
		if err := insertGroup(ctx, tx, board.ID, g); err != nil {
			return err
		}
	}
	for _, it := range board.Items {
		if err := insertItem(ctx, tx, board.ID, it); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create board: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, boardID string, group model.Group) error {
	return s.withBoardTx(ctx, boardID, func(tx *sql.Tx, b *model.Board) error {
		if err := validateNewGroup(b, group); err != nil {
			return err
		}
		return insertGroup(ctx, tx, boardID, group)
	})
}

func (s *PostgresStore) CreateItem(ctx context.Context, boardID string, item *model.Item) error {
	return s.withBoardTx(ctx, boardID, func(tx *sql.Tx, b *model.Board) error {
		if err := validateNewItem(b, item); err != nil {
			return err
		}
		return insertItem(ctx, tx, boardID, item)
	})
}

// ApplyBatch records the batch ID first; when it was already recorded the
// transaction commits without touching any item.
func (s *PostgresStore) ApplyBatch(ctx context.Context, batch model.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, recordBatchSQL, batch.ID, batch.BoardID, batch.Actor, len(batch.Updates))
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.WithField("batch", batch.ID).Debug("batch already applied")
		return tx.Commit()
	}

	b, err := loadBoard(ctx, tx, lockBoardSQL, batch.BoardID)
	if err != nil {
		return err
	}
	changed, err := resolveBatch(b, batch, s.now())
	if err != nil {
		return err
	}
	for _, it := range changed {
		if _, err := tx.ExecContext(ctx, updateItemSQL, it.GroupID, it.Position, it.UpdatedAtMillis, it.CompletedAtMillis, it.ID, batch.BoardID); err != nil {
			return fmt.Errorf("update item %s: %w", it.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// DB returns the underlying database handle.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) withBoardTx(ctx context.Context, boardID string, fn func(*sql.Tx, *model.Board) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	b, err := loadBoard(ctx, tx, lockBoardSQL, boardID)
	if err != nil {
		return err
	}
	if err := fn(tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func loadBoard(ctx context.Context, q queryer, boardSQL, boardID string) (*model.Board, error) {
	b := &model.Board{}
	err := q.QueryRowContext(ctx, boardSQL, boardID).Scan(&b.ID, &b.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kanerr.BoardNotFound(boardID)
	}
	if err != nil {
		return nil, fmt.Errorf("load board %s: %w", boardID, err)
	}

	if b.Groups, err = loadGroups(ctx, q, boardID); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, selectItemsSQL, boardID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	b.Items = []*model.Item{}
	for rows.Next() {
		it := &model.Item{}
		if err := rows.Scan(&it.ID, &it.GroupID, &it.Position, &it.Title, &it.Value, &it.Assignee, &it.Creator,
			&it.CreatedAtMillis, &it.UpdatedAtMillis, &it.CompletedAtMillis); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		b.Items = append(b.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return b, nil
}

func loadGroups(ctx context.Context, q queryer, boardID string) ([]model.Group, error) {
	rows, err := q.QueryContext(ctx, selectGroupsSQL, boardID)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		var kind string
		if err := rows.Scan(&g.ID, &g.Title, &g.OrderHint, &g.Color, &kind,
			&g.Policy.AcceptsIncoming, &g.Policy.AcceptsOutgoing, &g.Policy.AcceptsCreation); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.Kind = model.GroupKind(kind)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	return groups, nil
}

func insertGroup(ctx context.Context, tx *sql.Tx, boardID string, g model.Group) error {
	kind := g.Kind
	if kind == "" {
		kind = model.GroupKindActive
	}
	if _, err := tx.ExecContext(ctx, insertGroupSQL, g.ID, boardID, g.Title, g.OrderHint, g.Color, string(kind),
		g.Policy.AcceptsIncoming, g.Policy.AcceptsOutgoing, g.Policy.AcceptsCreation); err != nil {
		return fmt.Errorf("insert group %s: %w", g.ID, err)
	}
	return nil
}

func insertItem(ctx context.Context, tx *sql.Tx, boardID string, it *model.Item) error {
	if _, err := tx.ExecContext(ctx, insertItemSQL, it.ID, boardID, it.GroupID, it.Position, it.Title, it.Value,
		it.Assignee, it.Creator, it.CreatedAtMillis, it.UpdatedAtMillis, it.CompletedAtMillis); err != nil {
		return fmt.Errorf("insert item %s: %w", it.ID, err)
	}
	return nil
}
