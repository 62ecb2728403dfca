package aggregate

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amterp/kanflow/internal/model"
)

func pipeline() *model.Board {
	return &model.Board{
		ID: "sales",
		Groups: []model.Group{
			{ID: "won", Title: "Won", OrderHint: 1, Kind: model.GroupKindWon},
			{ID: "lead", Title: "Lead", OrderHint: 0, Kind: model.GroupKindActive},
		},
		Items: []*model.Item{
			{ID: "d1", GroupID: "lead", Value: 1000},
			{ID: "d2", GroupID: "lead", Value: 250},
			{ID: "d3", GroupID: "won", Value: 5000},
			{ID: "stray", GroupID: "gone", Value: 1},
		},
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })
	return m, client
}

func TestCompute(t *testing.T) {
	totals := Compute(pipeline())

	require.Len(t, totals.Groups, 2)
	assert.Equal(t, "lead", totals.Groups[0].GroupID)
	assert.Equal(t, 2, totals.Groups[0].Count)
	assert.Equal(t, int64(1250), totals.Groups[0].ValueSum)
	assert.Equal(t, int64(5000), totals.Group("won").ValueSum)
	assert.Nil(t, totals.Group("gone"))
}

func TestService_CachesUntilInvalidated(t *testing.T) {
	m, client := newRedis(t)
	svc := NewService(client, time.Minute, nil)
	ctx := context.Background()

	board := pipeline()
	loads := 0
	load := func(context.Context) (*model.Board, error) {
		loads++
		return board, nil
	}

	first, err := svc.Totals(ctx, "sales", load)
	require.NoError(t, err)
	assert.True(t, m.Exists(keyPrefix+"sales"))

	// Cached totals ignore the changed snapshot
	board.Items[0].GroupID = "won"
	second, err := svc.Totals(ctx, "sales", load)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
	assert.Equal(t, first.Group("won").Count, second.Group("won").Count)

	require.NoError(t, svc.Invalidate(ctx, "sales"))
	third, err := svc.Totals(ctx, "sales", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, third.Group("won").Count)
	assert.Equal(t, int64(6000), third.Group("won").ValueSum)
}

func TestService_TTL(t *testing.T) {
	m, client := newRedis(t)
	svc := NewService(client, time.Minute, nil)

	_, err := svc.Totals(context.Background(), "sales", func(context.Context) (*model.Board, error) { return pipeline(), nil })
	require.NoError(t, err)
	assert.Equal(t, time.Minute, m.TTL(keyPrefix+"sales"))
}

func TestService_CorruptEntryRecomputed(t *testing.T) {
	m, client := newRedis(t)
	svc := NewService(client, time.Minute, nil)
	require.NoError(t, m.Set(keyPrefix+"sales", "{not json"))

	totals, err := svc.Totals(context.Background(), "sales", func(context.Context) (*model.Board, error) { return pipeline(), nil })
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Group("lead").Count)
}

func TestService_NoRedis(t *testing.T) {
	svc := NewService(nil, time.Minute, nil)
	loads := 0
	load := func(context.Context) (*model.Board, error) {
		loads++
		return pipeline(), nil
	}

	_, err := svc.Totals(context.Background(), "sales", load)
	require.NoError(t, err)
	_, err = svc.Totals(context.Background(), "sales", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
	assert.NoError(t, svc.Invalidate(context.Background(), "sales"))
}
