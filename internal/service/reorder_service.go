package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/amterp/kanflow/internal/aggregate"
	"github.com/amterp/kanflow/internal/cache"
	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/feed"
	"github.com/amterp/kanflow/internal/id"
	"github.com/amterp/kanflow/internal/metrics"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/reindex"
	"github.com/amterp/kanflow/internal/store"
	"github.com/amterp/kanflow/internal/util"
)

var tracer = otel.Tracer("kanflow.service")

// Status is the result class of a move.
type Status string

const (
	StatusApplied    Status = "applied"
	StatusNoop       Status = "noop"
	StatusRejected   Status = "rejected"
	StatusRolledBack Status = "rolled_back"
)

// Outcome reports what a move did.
type Outcome struct {
	Status    Status          `json:"status"`
	BatchID   string          `json:"batch_id,omitempty"`
	Updates   model.UpdateSet `json:"updates,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Celebrate bool            `json:"celebrate,omitempty"`
}

// ActorProvider resolves who is performing a move.
type ActorProvider interface {
	Current(ctx context.Context) (string, error)
}

// AggregateInvalidator drops cached group totals for a board.
type AggregateInvalidator interface {
	Invalidate(ctx context.Context, boardID string) error
}

// ReorderOptions wires a ReorderService. Backend and Actors are required.
type ReorderOptions struct {
	Backend     store.Backend
	BackendName string // Metrics label
	Actors      ActorProvider
	Aggregates  *aggregate.Service
	Feed        feed.Publisher // Cross-process change announcements, may be nil
	Notifier    Notifier
	Deduper     Deduper
	Celebrate   bool
	Origin      string // Identifies this process on the feed; generated when empty
	Logger      *log.Logger
}

// ReorderService owns the per-board caches and runs every move through
// policy check, reindexing, optimistic apply, persistence and settlement.
type ReorderService struct {
	backend     store.Backend
	backendName string
	actors      ActorProvider
	aggregates  *aggregate.Service
	invalidator AggregateInvalidator
	feed        feed.Publisher
	notifier    Notifier
	ownNotifier *AsyncNotifier
	deduper     Deduper
	celebrate   bool
	origin      string
	logger      *log.Logger

	mu      sync.Mutex
	boards  map[string]*cache.Store
	locks   *cache.ItemLocks
	loads   singleflight.Group
	changes *feed.Bus
}

// NewReorderService creates a reorder service.
func NewReorderService(opts ReorderOptions) *ReorderService {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	origin := opts.Origin
	if origin == "" {
		origin = uuid.NewString()
	}
	name := opts.BackendName
	if name == "" {
		name = "unknown"
	}
	s := &ReorderService{
		backend:     opts.Backend,
		backendName: name,
		actors:      opts.Actors,
		aggregates:  opts.Aggregates,
		feed:        opts.Feed,
		deduper:     opts.Deduper,
		celebrate:   opts.Celebrate,
		origin:      origin,
		logger:      logger,
		boards:      make(map[string]*cache.Store),
		locks:       cache.NewItemLocks(),
		changes:     feed.NewBus(),
	}
	if opts.Aggregates != nil {
		s.invalidator = opts.Aggregates
	}
	// Notices are delivered off the move path
	switch n := opts.Notifier.(type) {
	case nil:
	case *AsyncNotifier:
		s.notifier = n
	default:
		s.ownNotifier = NewAsyncNotifier(logger, n)
		s.notifier = s.ownNotifier
	}
	return s
}

// Close flushes notices queued by the service.
func (s *ReorderService) Close() {
	if s.ownNotifier != nil {
		s.ownNotifier.Close()
	}
}

// Origin identifies this process on the change feed.
func (s *ReorderService) Origin() string {
	return s.origin
}

// Subscribe registers a listener for changes visible through this service:
// local moves and creations, and refreshes after external changes.
func (s *ReorderService) Subscribe(sub feed.Subscriber) {
	s.changes.Subscribe(sub)
}

// Unsubscribe removes a listener.
func (s *ReorderService) Unsubscribe(sub feed.Subscriber) {
	s.changes.Unsubscribe(sub)
}

// Store returns the shared cache for a board, loading it from the backend
// on first use. Concurrent first loads share one backend call.
func (s *ReorderService) Store(ctx context.Context, boardID string) (*cache.Store, error) {
	s.mu.Lock()
	st, ok := s.boards[boardID]
	s.mu.Unlock()
	if ok {
		return st, nil
	}

	v, err, _ := s.loads.Do("load:"+boardID, func() (any, error) {
		s.mu.Lock()
		if st, ok := s.boards[boardID]; ok {
			s.mu.Unlock()
			return st, nil
		}
		s.mu.Unlock()

		board, err := s.backend.LoadBoard(ctx, boardID)
		if err != nil {
			return nil, err
		}
		st := cache.NewStore(board)

		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.boards[boardID]; ok {
			return existing, nil
		}
		s.boards[boardID] = st
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cache.Store), nil
}

// loaded returns the cache for a board only if it is already loaded.
func (s *ReorderService) loaded(boardID string) (*cache.Store, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.boards[boardID]
	return st, ok
}

// Board returns the latest snapshot of a board, optimistic moves included.
func (s *ReorderService) Board(ctx context.Context, boardID string) (*model.Board, error) {
	st, err := s.Store(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return st.Snapshot(), nil
}

// Totals returns per-group totals for a board.
func (s *ReorderService) Totals(ctx context.Context, boardID string) (aggregate.Totals, error) {
	load := func(ctx context.Context) (*model.Board, error) { return s.Board(ctx, boardID) }
	if s.aggregates == nil {
		board, err := load(ctx)
		if err != nil {
			return aggregate.Totals{}, err
		}
		return aggregate.Compute(board), nil
	}
	return s.aggregates.Totals(ctx, boardID, load)
}

// Move runs one drag-and-drop move end to end.
//
// A move refused by group policy, or naming an unknown item or group, is
// reported as StatusRejected with a nil error and changes nothing. A move
// that lands where the item already is reports StatusNoop. When the
// backend write fails the optimistic state is rolled back, a retryable
// notice is sent, and a *errors.PersistenceError is returned alongside
// StatusRolledBack. Moves of the same item run one after another.
func (s *ReorderService) Move(ctx context.Context, boardID string, intent model.MoveIntent) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "ReorderService.Move", trace.WithAttributes(
		attribute.String("board", boardID),
		attribute.String("item", intent.ItemID),
		attribute.String("destination", intent.DestinationGroupID),
	))
	defer span.End()

	actor, err := s.actors.Current(ctx)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}

	st, err := s.Store(ctx, boardID)
	if err != nil {
		return Outcome{}, err
	}

	unlock, err := s.locks.Lock(ctx, boardID+"/"+intent.ItemID)
	if err != nil {
		return Outcome{}, fmt.Errorf("waiting for previous move of %s: %w", intent.ItemID, err)
	}
	defer unlock()

	flight, err := st.Mutate(func(b *model.Board) (model.UpdateSet, error) {
		return reindex.Compute(b, intent)
	})
	if err != nil {
		if kanerr.IsInvalidMove(err) || kanerr.IsNotFound(err) {
			metrics.RecordMove(metrics.OutcomeRejected)
			span.SetAttributes(attribute.String("outcome", string(StatusRejected)))
			s.logger.WithFields(log.Fields{"board": boardID, "item": intent.ItemID}).WithError(err).Debug("move rejected")
			return Outcome{Status: StatusRejected, Reason: err.Error()}, nil
		}
		return Outcome{}, err
	}
	if flight == nil {
		metrics.RecordMove(metrics.OutcomeNoop)
		span.SetAttributes(attribute.String("outcome", string(StatusNoop)))
		return Outcome{Status: StatusNoop}, nil
	}
	metrics.FlightStarted()
	defer metrics.FlightSettled()
	s.dispatch(feed.Event{BoardID: boardID, ItemIDs: flight.Updates.ItemIDs(), Reason: feed.ReasonPending})

	src := flight.Before.Group(flight.Before.Item(intent.ItemID).GroupID)
	dst := flight.Before.Group(intent.DestinationGroupID)
	batch := model.Batch{
		ID:         id.Batch(),
		BoardID:    boardID,
		Actor:      actor,
		Updates:    flight.Updates,
		CrossGroup: src.ID != dst.ID,
	}
	span.SetAttributes(attribute.String("batch", batch.ID), attribute.Int("updates", len(batch.Updates)))

	// A batch already sent is not cancelled with the request
	if err := s.Reconcile(context.WithoutCancel(ctx), batch); err != nil {
		resync := st.Rollback(flight)
		s.dispatch(feed.Event{BoardID: boardID, ItemIDs: flight.Updates.ItemIDs(), Reason: feed.ReasonRolledBack})
		metrics.RecordMove(metrics.OutcomeRolledBack)
		span.SetStatus(codes.Error, "persistence failed")
		span.SetAttributes(attribute.String("outcome", string(StatusRolledBack)))

		s.logger.WithFields(log.Fields{
			"board": boardID,
			"item":  intent.ItemID,
			"batch": batch.ID,
		}).WithError(err).Warn("move rolled back")

		s.notify(Notice{
			Kind:       NoticeMoveFailed,
			BoardID:    boardID,
			ItemID:     intent.ItemID,
			ItemTitle:  flight.Before.Item(intent.ItemID).Title,
			GroupID:    dst.ID,
			GroupTitle: dst.Title,
			Actor:      actor,
			Message:    "Could not save the move; it was undone. Try again.",
			Retryable:  true,
		})
		if resync {
			s.resync(boardID, "stale")
		}
		return Outcome{Status: StatusRolledBack, BatchID: batch.ID, Reason: err.Error()},
			&kanerr.PersistenceError{BatchID: batch.ID, Err: err}
	}

	resync := st.Commit(flight)
	metrics.RecordMove(metrics.OutcomeApplied)
	span.SetAttributes(attribute.String("outcome", string(StatusApplied)))

	out := Outcome{Status: StatusApplied, BatchID: batch.ID, Updates: batch.Updates}
	if batch.CrossGroup {
		s.invalidateAggregates(ctx, boardID)
		if s.celebrate && dst.Kind.IsCompletion() && !src.Kind.IsCompletion() {
			out.Celebrate = true
			s.notify(Notice{
				Kind:       NoticeCelebrate,
				BoardID:    boardID,
				ItemID:     intent.ItemID,
				ItemTitle:  flight.Before.Item(intent.ItemID).Title,
				GroupID:    dst.ID,
				GroupTitle: dst.Title,
				GroupKind:  string(dst.Kind),
				Actor:      actor,
				Message:    fmt.Sprintf("%s moved to %s", flight.Before.Item(intent.ItemID).Title, dst.Title),
			})
		}
	}
	s.announce(ctx, feed.Event{BoardID: boardID, ItemIDs: batch.Updates.ItemIDs(), Reason: feed.ReasonMoved})

	if resync {
		s.resync(boardID, "stale")
	}
	return out, nil
}

// Reconcile persists one batch. A batch ID seen before is skipped, so
// delivering the same batch twice leaves the backend as one delivery
// would. Deduper errors never block the write.
func (s *ReorderService) Reconcile(ctx context.Context, batch model.Batch) error {
	ctx, span := tracer.Start(ctx, "ReorderService.Reconcile", trace.WithAttributes(
		attribute.String("board", batch.BoardID),
		attribute.String("batch", batch.ID),
		attribute.Bool("cross_group", batch.CrossGroup),
	))
	defer span.End()

	if s.deduper != nil && batch.ID != "" {
		added, err := s.deduper.Add(ctx, batch.BoardID, batch.ID)
		switch {
		case err != nil:
			s.logger.WithError(err).WithField("batch", batch.ID).Warn("deduper unavailable, applying batch anyway")
		case !added:
			metrics.RecordMove(metrics.OutcomeDuplicate)
			span.SetAttributes(attribute.Bool("duplicate", true))
			return nil
		}
	}

	metrics.ObserveBatch(len(batch.Updates))
	started := time.Now()
	err := s.backend.ApplyBatch(ctx, batch)
	metrics.ObserveReconcile(s.backendName, started, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.deduper != nil && batch.ID != "" {
			if rerr := s.deduper.Remove(ctx, batch.BoardID, batch.ID); rerr != nil {
				s.logger.WithError(rerr).WithField("batch", batch.ID).Warn("failed to forget batch after error")
			}
		}
		return err
	}
	return nil
}

// OnBoardChange handles change events from the feed.
func (s *ReorderService) OnBoardChange(ev feed.Event) {
	if err := s.OnExternalChange(context.Background(), ev); err != nil && !errors.Is(err, kanerr.ErrStaleSnapshot) {
		s.logger.WithError(err).WithField("board", ev.BoardID).Warn("refresh after external change failed")
	}
}

// OnExternalChange invalidates a board after a change made elsewhere.
// Events from this process and boards not loaded here are ignored. While
// a move is in flight the refresh is deferred and ErrStaleSnapshot is
// returned; the refresh then runs once the last move settles.
func (s *ReorderService) OnExternalChange(ctx context.Context, ev feed.Event) error {
	if ev.Origin == s.origin {
		return nil
	}
	st, ok := s.loaded(ev.BoardID)
	if !ok {
		return nil
	}
	if st.MarkStale() {
		s.logger.WithFields(log.Fields{"board": ev.BoardID, "origin": ev.Origin}).Debug("external change deferred until moves settle")
		return kanerr.ErrStaleSnapshot
	}
	s.invalidateAggregates(ctx, ev.BoardID)
	return s.refresh(ctx, ev.BoardID, "external")
}

// Refresh reloads a board from the backend. While moves are in flight the
// reload is deferred until they settle.
func (s *ReorderService) Refresh(ctx context.Context, boardID string) error {
	return s.refresh(ctx, boardID, "manual")
}

// refreshAttempts bounds reloads when moves keep settling while a board
// is being loaded.
const refreshAttempts = 3

func (s *ReorderService) refresh(ctx context.Context, boardID, reason string) error {
	_, err, _ := s.loads.Do("refresh:"+boardID, func() (any, error) {
		ctx, span := tracer.Start(ctx, "ReorderService.Refresh", trace.WithAttributes(
			attribute.String("board", boardID),
			attribute.String("reason", reason),
		))
		defer span.End()

		st, err := s.Store(ctx, boardID)
		if err != nil {
			return nil, err
		}

		for attempt := 1; attempt <= refreshAttempts; attempt++ {
			gen := st.Generation()
			board, err := s.backend.LoadBoard(ctx, boardID)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}

			switch st.ReplaceIf(board, gen) {
			case cache.Installed:
				metrics.RecordResync(reason)
				s.dispatch(feed.Event{BoardID: boardID, Reason: feed.ReasonRefresh})
				return nil, nil
			case cache.Deferred:
				span.SetAttributes(attribute.Bool("deferred", true))
				return nil, nil
			case cache.Outdated:
				s.logger.WithFields(log.Fields{"board": boardID, "attempt": attempt}).Debug("board changed while loading, reloading")
			}
		}
		span.SetAttributes(attribute.Bool("gave_up", true))
		s.logger.WithField("board", boardID).Warn("board kept changing during refresh, keeping cached state")
		return nil, nil
	})
	return err
}

// resync runs a deferred refresh without holding up the settling move.
func (s *ReorderService) resync(boardID, reason string) {
	go func() {
		if err := s.refresh(context.Background(), boardID, reason); err != nil {
			s.logger.WithError(err).WithField("board", boardID).Warn("deferred resync failed")
		}
	}()
}

// created records a server-confirmed creation in the cache, if loaded, and
// announces it.
func (s *ReorderService) created(ctx context.Context, boardID string, fn func(*model.Board), itemIDs []string) {
	if st, ok := s.loaded(boardID); ok {
		st.Update(fn)
	}
	s.invalidateAggregates(ctx, boardID)
	s.announce(ctx, feed.Event{BoardID: boardID, ItemIDs: itemIDs, Reason: feed.ReasonCreated})
}

func (s *ReorderService) announce(ctx context.Context, ev feed.Event) {
	ev = s.dispatch(ev)
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("board", ev.BoardID).Warn("failed to publish change")
	}
}

// dispatch tells this process's subscribers about a change without
// publishing it to other processes.
func (s *ReorderService) dispatch(ev feed.Event) feed.Event {
	ev.Origin = s.origin
	if ev.AtMillis == 0 {
		ev.AtMillis = util.NowMillis()
	}
	s.changes.Dispatch(ev)
	return ev
}

func (s *ReorderService) invalidateAggregates(ctx context.Context, boardID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, boardID); err != nil {
		s.logger.WithError(err).WithField("board", boardID).Warn("failed to invalidate totals")
	}
}

func (s *ReorderService) notify(n Notice) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(n)
}
