package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgresStore(db, nil)
	s.now = func() int64 { return 777 }
	return s, mock
}

var groupColumns = []string{"id", "title", "order_hint", "color", "kind", "accepts_incoming", "accepts_outgoing", "accepts_creation"}
var itemColumns = []string{"id", "group_id", "position", "title", "value", "assignee", "creator", "created_at_millis", "updated_at_millis", "completed_at_millis"}

func expectBoardLoad(mock sqlmock.Sqlmock, boardSQL string) {
	mock.ExpectQuery(boardSQL).WithArgs("sales").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("sales", "Sales"))
	mock.ExpectQuery(selectGroupsSQL).WithArgs("sales").
		WillReturnRows(sqlmock.NewRows(groupColumns).
			AddRow("lead", "Lead", 0, "#6b7280", "active", true, true, true).
			AddRow("won", "Won", 1, "#10b981", "won", true, true, false).
			AddRow("lost", "Lost", 2, "#ef4444", "lost", true, false, false))
	mock.ExpectQuery(selectItemsSQL).WithArgs("sales").
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow("d1", "lead", 0, "Acme", 1000, "", "ana", 1, 1, 0).
			AddRow("d2", "lead", 1, "Globex", 500, "", "ana", 2, 2, 0))
}

func TestPostgresStore_LoadBoard(t *testing.T) {
	s, mock := newMockStore(t)
	expectBoardLoad(mock, selectBoardSQL)

	b, err := s.LoadBoard(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, "Sales", b.Name)
	require.Len(t, b.Groups, 3)
	assert.Equal(t, model.GroupKindLost, b.Groups[2].Kind)
	assert.False(t, b.Groups[2].Policy.AcceptsOutgoing)
	require.Len(t, b.Items, 2)
	assert.Equal(t, int64(1000), b.Item("d1").Value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadBoardNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(selectBoardSQL).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := s.LoadBoard(context.Background(), "nope")
	assert.True(t, kanerr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyBatch(t *testing.T) {
	s, mock := newMockStore(t)
	batch := model.Batch{
		ID:         "batch-1",
		BoardID:    "sales",
		Actor:      "ana",
		CrossGroup: true,
		Updates: model.UpdateSet{
			{ItemID: "d2", GroupID: "lead", Position: 0},
			{ItemID: "d1", GroupID: "won", Position: 0},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(recordBatchSQL).WithArgs("batch-1", "sales", "ana", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	expectBoardLoad(mock, lockBoardSQL)
	mock.ExpectExec(updateItemSQL).WithArgs("lead", 0, int64(777), int64(0), "d2", "sales").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateItemSQL).WithArgs("won", 0, int64(777), int64(777), "d1", "sales").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.ApplyBatch(context.Background(), batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyBatchReplaySkipped(t *testing.T) {
	s, mock := newMockStore(t)
	batch := model.Batch{ID: "batch-1", BoardID: "sales", Actor: "ana", Updates: model.UpdateSet{{ItemID: "d1", GroupID: "won", Position: 0}}}

	mock.ExpectBegin()
	mock.ExpectExec(recordBatchSQL).WithArgs("batch-1", "sales", "ana", 1).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, s.ApplyBatch(context.Background(), batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyBatchFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	batch := model.Batch{
		ID:      "batch-2",
		BoardID: "sales",
		Actor:   "ana",
		Updates: model.UpdateSet{
			{ItemID: "d2", GroupID: "lead", Position: 0},
			{ItemID: "d1", GroupID: "lead", Position: 1},
		},
	}
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec(recordBatchSQL).WithArgs("batch-2", "sales", "ana", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	expectBoardLoad(mock, lockBoardSQL)
	mock.ExpectExec(updateItemSQL).WithArgs("lead", 0, int64(777), int64(0), "d2", "sales").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateItemSQL).WithArgs("lead", 1, int64(777), int64(0), "d1", "sales").WillReturnError(boom)
	mock.ExpectRollback()

	err := s.ApplyBatch(context.Background(), batch)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ApplyBatchUnknownItemRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	batch := model.Batch{ID: "batch-3", BoardID: "sales", Actor: "ana", Updates: model.UpdateSet{{ItemID: "ghost", GroupID: "lead", Position: 0}}}

	mock.ExpectBegin()
	mock.ExpectExec(recordBatchSQL).WithArgs("batch-3", "sales", "ana", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	expectBoardLoad(mock, lockBoardSQL)
	mock.ExpectRollback()

	err := s.ApplyBatch(context.Background(), batch)
	assert.True(t, kanerr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateBoard(t *testing.T) {
	s, mock := newMockStore(t)
	board := &model.Board{
		ID:     "tasks",
		Name:   "Tasks",
		Groups: []model.Group{{ID: "todo", Title: "Todo", Policy: model.DefaultPolicy(model.GroupKindActive)}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(insertBoardSQL).WithArgs("tasks", "Tasks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertGroupSQL).WithArgs("todo", "tasks", "Todo", 0, "", "active", true, true, true).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CreateBoard(context.Background(), board))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateBoardExists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(insertBoardSQL).WithArgs("tasks", "Tasks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.CreateBoard(context.Background(), &model.Board{ID: "tasks", Name: "Tasks"})
	assert.True(t, kanerr.IsAlreadyExists(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrations(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	migrations := fstest.MapFS{
		"0001_init.up.sql":   {Data: []byte("CREATE TABLE a (id TEXT)")},
		"0002_more.up.sql":   {Data: []byte("CREATE TABLE b (id TEXT)")},
		"0002_more.down.sql": {Data: []byte("DROP TABLE b")},
	}

	mock.ExpectExec(ensureMigrationsSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(isMigratedSQL).WithArgs("0001_init.up.sql").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(isMigratedSQL).WithArgs("0002_more.up.sql").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b (id TEXT)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(recordMigrationSQL).WithArgs("0002_more.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := ApplyMigrations(context.Background(), db, migrations)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_more.up.sql"}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	migrations := fstest.MapFS{
		"0001_init.up.sql": {Data: []byte("CREATE TABLE a (id TEXT)")},
		"0002_more.up.sql": {Data: []byte("CREATE TABLE b (id TEXT)")},
	}

	mock.ExpectExec(ensureMigrationsSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(isMigratedSQL).WithArgs("0001_init.up.sql").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(isMigratedSQL).WithArgs("0002_more.up.sql").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	pending, err := PendingMigrations(context.Background(), db, migrations)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.up.sql", "0002_more.up.sql"}, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_Embedded(t *testing.T) {
	data, err := Migrations().Open("0001_init.up.sql")
	require.NoError(t, err)
	data.Close()
}
