// Package aggregate computes per-group totals for a board and caches them
// in Redis until the next cross-group move invalidates them.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/amterp/kanflow/internal/metrics"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/util"
)

const keyPrefix = "kanflow:totals:"

// GroupTotal is the item count and summed value of one group.
type GroupTotal struct {
	GroupID  string          `json:"group_id"`
	Title    string          `json:"title"`
	Kind     model.GroupKind `json:"kind"`
	Count    int             `json:"count"`
	ValueSum int64           `json:"value_sum"`
}

// Totals holds the group totals of one board in display order.
type Totals struct {
	BoardID          string       `json:"board_id"`
	Groups           []GroupTotal `json:"groups"`
	ComputedAtMillis int64        `json:"computed_at_millis"`
}

// Group returns the totals for one group, or nil.
func (t *Totals) Group(groupID string) *GroupTotal {
	for i := range t.Groups {
		if t.Groups[i].GroupID == groupID {
			return &t.Groups[i]
		}
	}
	return nil
}

// Compute derives totals from a board snapshot.
func Compute(board *model.Board) Totals {
	index := make(map[string]int, len(board.Groups))
	totals := Totals{BoardID: board.ID, ComputedAtMillis: util.NowMillis()}
	for _, g := range board.SortedGroups() {
		index[g.ID] = len(totals.Groups)
		totals.Groups = append(totals.Groups, GroupTotal{GroupID: g.ID, Title: g.Title, Kind: g.Kind})
	}
	for _, it := range board.Items {
		i, ok := index[it.GroupID]
		if !ok {
			continue
		}
		totals.Groups[i].Count++
		totals.Groups[i].ValueSum += it.Value
	}
	return totals
}

// Service serves totals, caching them per board. A nil Redis client
// disables caching and every call computes from the snapshot.
type Service struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewService creates a totals service.
func NewService(client *redis.Client, ttl time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Service{redis: client, ttl: ttl, logger: logger}
}

// Totals returns the cached totals of a board, computing them from the
// snapshot returned by load on a miss. Redis errors fall back to computing.
func (s *Service) Totals(ctx context.Context, boardID string, load func(context.Context) (*model.Board, error)) (Totals, error) {
	if t, ok := s.fromCache(ctx, boardID); ok {
		metrics.RecordAggregateLookup(true)
		return t, nil
	}
	metrics.RecordAggregateLookup(false)

	board, err := load(ctx)
	if err != nil {
		return Totals{}, err
	}
	t := Compute(board)
	s.store(ctx, t)
	return t, nil
}

// Invalidate drops the cached totals of a board.
func (s *Service) Invalidate(ctx context.Context, boardID string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, key(boardID)).Err()
}

func (s *Service) fromCache(ctx context.Context, boardID string) (Totals, bool) {
	if s.redis == nil {
		return Totals{}, false
	}
	data, err := s.redis.Get(ctx, key(boardID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WithError(err).WithField("board", boardID).Warn("totals cache read failed")
			_ = s.redis.Del(ctx, key(boardID)).Err()
		}
		return Totals{}, false
	}
	var t Totals
	if err := json.Unmarshal(data, &t); err != nil {
		_ = s.redis.Del(ctx, key(boardID)).Err()
		return Totals{}, false
	}
	return t, true
}

func (s *Service) store(ctx context.Context, t Totals) {
	if s.redis == nil || s.ttl == 0 {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key(t.BoardID), data, s.ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("board", t.BoardID).Warn("totals cache write failed")
	}
}

func key(boardID string) string {
	return keyPrefix + boardID
}
