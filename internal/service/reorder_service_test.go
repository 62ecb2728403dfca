package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amterp/kanflow/internal/actor"
	"github.com/amterp/kanflow/internal/aggregate"
	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/feed"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/store"
	"github.com/amterp/kanflow/testutil"
)

type reorderFixture struct {
	svc     *ReorderService
	backend *store.MemoryStore
	notices chan Notice
	events  *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []feed.Event
}

func (l *eventLog) OnBoardChange(ev feed.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []feed.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]feed.Event, len(l.events))
	copy(out, l.events)
	return out
}

func newReorderFixture(t *testing.T, board *model.Board, mutate ...func(*ReorderOptions)) *reorderFixture {
	t.Helper()
	ctx := context.Background()

	backend := store.NewMemoryStore()
	require.NoError(t, backend.CreateBoard(ctx, board))

	notices := make(chan Notice, 16)
	opts := ReorderOptions{
		Backend:     backend,
		BackendName: "memory",
		Actors:      actor.Static("ana"),
		Notifier:    NotifierFunc(func(n Notice) { notices <- n }),
		Deduper:     NewMemoryDeduper(time.Minute),
		Celebrate:   true,
		Origin:      "self",
	}
	for _, m := range mutate {
		m(&opts)
	}
	svc := NewReorderService(opts)
	t.Cleanup(svc.Close)

	events := &eventLog{}
	svc.Subscribe(events)
	return &reorderFixture{svc: svc, backend: backend, notices: notices, events: events}
}

// holdFirstBatch blocks the first ApplyBatch until release is closed.
func (f *reorderFixture) holdFirstBatch() (entered chan string, release chan struct{}) {
	entered = make(chan string, 4)
	release = make(chan struct{})
	var calls int32
	f.backend.BeforeApply = func(ctx context.Context, b model.Batch) error {
		entered <- b.ID
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
		}
		return nil
	}
	return entered, release
}

func positions(b *model.Board, groupID string) []string {
	var ids []string
	for _, it := range b.GroupItems(groupID) {
		ids = append(ids, it.ID)
	}
	return ids
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
	var zero T
	return zero
}

func TestMove_SameGroupToFront(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()

	out, err := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "z", SourceGroupID: "A", DestinationGroupID: "A", DestinationIndex: 0})
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, model.UpdateSet{
		{ItemID: "z", GroupID: "A", Position: 0},
		{ItemID: "x", GroupID: "A", Position: 1},
		{ItemID: "y", GroupID: "A", Position: 2},
	}, out.Updates)
	assert.False(t, out.Celebrate)

	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x", "y"}, positions(snap, "A"))

	stored, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x", "y"}, positions(stored, "A"))

	applied := f.backend.Applied()
	require.Len(t, applied, 1)
	assert.False(t, applied[0].CrossGroup)
	assert.Equal(t, "ana", applied[0].Actor)
}

func TestMove_CrossGroup(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()

	out, err := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 1})
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, out.Status)
	assert.ElementsMatch(t, model.UpdateSet{
		{ItemID: "y", GroupID: "A", Position: 0},
		{ItemID: "z", GroupID: "A", Position: 1},
		{ItemID: "x", GroupID: "B", Position: 1},
	}, out.Updates)

	stored, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z"}, positions(stored, "A"))
	assert.Equal(t, []string{"w", "x"}, positions(stored, "B"))
	assert.True(t, f.backend.Applied()[0].CrossGroup)

	events := f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, feed.ReasonPending, events[0].Reason)
	assert.Equal(t, feed.ReasonMoved, events[1].Reason)
	for _, ev := range events {
		assert.Equal(t, "self", ev.Origin)
	}
}

func TestMove_SubscribersSeeOptimisticStateBeforeCommit(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	entered, release := f.holdFirstBatch()

	done := make(chan Outcome, 1)
	go func() {
		out, _ := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 0})
		done <- out
	}()
	waitFor(t, (<-chan string)(entered))

	events := f.events.all()
	require.Len(t, events, 1, "the pending change is announced while the batch is still in flight")
	assert.Equal(t, feed.ReasonPending, events[0].Reason)
	assert.Contains(t, events[0].ItemIDs, "x")

	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, "B", snap.Item("x").GroupID)

	close(release)
	assert.Equal(t, StatusApplied, waitFor(t, (<-chan Outcome)(done)).Status)
	events = f.events.all()
	require.Len(t, events, 2)
	assert.Equal(t, feed.ReasonMoved, events[1].Reason)
}

func TestMove_SameIndexIsNoop(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())

	out, err := f.svc.Move(context.Background(), "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "A", DestinationIndex: 0})
	require.NoError(t, err)

	assert.Equal(t, StatusNoop, out.Status)
	assert.Empty(t, out.Updates)
	assert.Empty(t, f.backend.Applied())
	assert.Empty(t, f.events.all())
}

func TestMove_LockedSourceRejected(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	before, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)

	out, err := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "c1", SourceGroupID: "C", DestinationGroupID: "D", DestinationIndex: 0})
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, out.Status)
	assert.Contains(t, out.Reason, "Frozen")
	assert.Empty(t, f.backend.Applied())

	after, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMove_UnknownItemOrGroupRejected(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()

	out, err := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "ghost", DestinationGroupID: "A"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)

	out, err = f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", DestinationGroupID: "nowhere"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Empty(t, f.backend.Applied())
}

func TestMove_UnknownBoard(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())

	_, err := f.svc.Move(context.Background(), "nope", model.MoveIntent{ItemID: "x", DestinationGroupID: "A"})
	assert.True(t, kanerr.IsNotFound(err))
}

func TestMove_RequiresActor(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard(), func(o *ReorderOptions) {
		o.Actors = actor.Static("")
	})

	_, err := f.svc.Move(context.Background(), "tasks", model.MoveIntent{ItemID: "z", DestinationGroupID: "A"})
	assert.ErrorIs(t, err, kanerr.ErrUnauthenticated)
	assert.Empty(t, f.backend.Applied())
}

func TestMove_PersistenceFailureRestoresSnapshot(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	boom := errors.New("backend unavailable")
	f.backend.BeforeApply = func(context.Context, model.Batch) error { return boom }

	before, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)

	out, err := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 0})
	require.Error(t, err)

	assert.Equal(t, StatusRolledBack, out.Status)
	assert.True(t, kanerr.IsPersistence(err))
	assert.ErrorIs(t, err, boom)
	var pe *kanerr.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, out.BatchID, pe.BatchID)

	after, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, before, after, "snapshot must revert verbatim")

	stored, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, positions(stored, "A"))

	n := waitFor(t, (<-chan Notice)(f.notices))
	assert.Equal(t, NoticeMoveFailed, n.Kind)
	assert.True(t, n.Retryable)
	assert.Equal(t, "x", n.ItemID)

	var reasons []feed.Reason
	for _, ev := range f.events.all() {
		reasons = append(reasons, ev.Reason)
	}
	assert.Equal(t, []feed.Reason{feed.ReasonPending, feed.ReasonRolledBack}, reasons)
}

func TestMove_SecondMoveOfSameItemSeesFirst(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	entered, release := f.holdFirstBatch()

	first := make(chan Outcome, 1)
	go func() {
		out, _ := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 0})
		first <- out
	}()
	waitFor(t, (<-chan string)(entered))

	// The rendered board still shows x in A; the store knows better
	second := make(chan Outcome, 1)
	go func() {
		out, _ := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 1})
		second <- out
	}()

	select {
	case id := <-entered:
		t.Fatalf("second move persisted batch %s before the first settled", id)
	case <-time.After(100 * time.Millisecond):
	}
	assert.True(t, f.svc.locks.Held("tasks/x"))

	close(release)
	assert.Equal(t, StatusApplied, waitFor(t, (<-chan Outcome)(first)).Status)
	out := waitFor(t, (<-chan Outcome)(second))

	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, model.UpdateSet{
		{ItemID: "w", GroupID: "B", Position: 0},
		{ItemID: "x", GroupID: "B", Position: 1},
	}, out.Updates)

	applied := f.backend.Applied()
	require.Len(t, applied, 2)
	assert.True(t, applied[0].CrossGroup)
	assert.False(t, applied[1].CrossGroup)

	stored, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"w", "x"}, positions(stored, "B"))
	assert.Equal(t, []string{"y", "z"}, positions(stored, "A"))
}

func TestMove_DifferentItemsReconcileConcurrently(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	entered, release := f.holdFirstBatch()

	first := make(chan Outcome, 1)
	go func() {
		out, _ := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 0})
		first <- out
	}()
	waitFor(t, (<-chan string)(entered))

	// y's move computes against x's optimistic state and completes while
	// x is still in flight
	out, err := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "y", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, model.UpdateSet{
		{ItemID: "z", GroupID: "A", Position: 0},
		{ItemID: "y", GroupID: "B", Position: 0},
		{ItemID: "x", GroupID: "B", Position: 1},
		{ItemID: "w", GroupID: "B", Position: 2},
	}, out.Updates)

	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x", "w"}, positions(snap, "B"))

	// x's batch lands last and overwrites y; the cache resyncs to match
	close(release)
	assert.Equal(t, StatusApplied, waitFor(t, (<-chan Outcome)(first)).Status)

	stored, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		snap, err := f.svc.Board(ctx, "tasks")
		return err == nil &&
			assert.ObjectsAreEqual(positions(stored, "A"), positions(snap, "A")) &&
			assert.ObjectsAreEqual(positions(stored, "B"), positions(snap, "B"))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMove_CancelledWhileWaitingForSameItem(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	entered, release := f.holdFirstBatch()
	defer close(release)

	go f.svc.Move(context.Background(), "tasks", model.MoveIntent{ItemID: "x", DestinationGroupID: "B", DestinationIndex: 0})
	waitFor(t, (<-chan string)(entered))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", DestinationGroupID: "A", DestinationIndex: 0})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMove_CelebratesCompletionAndInvalidatesTotals(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })

	aggregates := aggregate.NewService(client, time.Minute, nil)
	f := newReorderFixture(t, testutil.PipelineBoard(), func(o *ReorderOptions) {
		o.Aggregates = aggregates
	})
	ctx := context.Background()

	totals, err := f.svc.Totals(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Group("lead").Count)
	require.True(t, m.Exists("kanflow:totals:sales"))

	out, err := f.svc.Move(ctx, "sales", model.MoveIntent{ItemID: "d1", SourceGroupID: "lead", DestinationGroupID: "won", DestinationIndex: 0})
	require.NoError(t, err)
	assert.True(t, out.Celebrate)
	assert.False(t, m.Exists("kanflow:totals:sales"))

	n := waitFor(t, (<-chan Notice)(f.notices))
	assert.Equal(t, NoticeCelebrate, n.Kind)
	assert.Equal(t, "won", n.GroupID)
	assert.Equal(t, string(model.GroupKindWon), n.GroupKind)

	totals, err = f.svc.Totals(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Group("won").Count)
	assert.Equal(t, int64(6000), totals.Group("won").ValueSum)

	stored, err := f.backend.LoadBoard(ctx, "sales")
	require.NoError(t, err)
	assert.NotZero(t, stored.Item("d1").CompletedAtMillis)
}

func TestMove_NoCelebrationWhenDisabledOrReordering(t *testing.T) {
	f := newReorderFixture(t, testutil.PipelineBoard(), func(o *ReorderOptions) {
		o.Celebrate = false
	})
	ctx := context.Background()

	out, err := f.svc.Move(ctx, "sales", model.MoveIntent{ItemID: "d1", DestinationGroupID: "won", DestinationIndex: 1})
	require.NoError(t, err)
	assert.False(t, out.Celebrate)

	g := newReorderFixture(t, testutil.PipelineBoard())
	out, err = g.svc.Move(ctx, "sales", model.MoveIntent{ItemID: "d2", DestinationGroupID: "lead", DestinationIndex: 0})
	require.NoError(t, err)
	assert.False(t, out.Celebrate)

	select {
	case n := <-f.notices:
		t.Fatalf("unexpected notice %+v", n)
	case n := <-g.notices:
		t.Fatalf("unexpected notice %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReconcile_RepeatedBatchIsSkipped(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	batch := model.Batch{
		ID:      "batch-1",
		BoardID: "tasks",
		Actor:   "ana",
		Updates: model.UpdateSet{{ItemID: "z", GroupID: "A", Position: 0}, {ItemID: "x", GroupID: "A", Position: 1}, {ItemID: "y", GroupID: "A", Position: 2}},
	}

	require.NoError(t, f.svc.Reconcile(ctx, batch))
	once, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)

	require.NoError(t, f.svc.Reconcile(ctx, batch))
	twice, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Len(t, f.backend.Applied(), 1, "duplicate batch must not reach the backend")
}

func TestReconcile_WithoutDeduperStillIdempotent(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard(), func(o *ReorderOptions) {
		o.Deduper = nil
	})
	ctx := context.Background()
	batch := model.Batch{ID: "batch-1", BoardID: "tasks", Updates: model.UpdateSet{{ItemID: "x", GroupID: "B", Position: 1}, {ItemID: "y", GroupID: "A", Position: 0}, {ItemID: "z", GroupID: "A", Position: 1}}}

	require.NoError(t, f.svc.Reconcile(ctx, batch))
	once, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)
	require.NoError(t, f.svc.Reconcile(ctx, batch))
	twice, err := f.backend.LoadBoard(ctx, "tasks")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestReconcile_FailedBatchCanBeRetried(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	fail := true
	f.backend.BeforeApply = func(context.Context, model.Batch) error {
		if fail {
			return errors.New("flaky")
		}
		return nil
	}
	batch := model.Batch{ID: "batch-1", BoardID: "tasks", Updates: model.UpdateSet{{ItemID: "z", GroupID: "A", Position: 0}}}

	require.Error(t, f.svc.Reconcile(ctx, batch))
	fail = false
	require.NoError(t, f.svc.Reconcile(ctx, batch))
	assert.Len(t, f.backend.Applied(), 1)
}

func TestOnExternalChange_RefreshesImmediately(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	_, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)

	external := testutil.TaskBoard()
	external.Items = append(external.Items, testutil.TestItem("n1", "D", 0))
	f.backend.Put(external)

	require.NoError(t, f.svc.OnExternalChange(ctx, feed.Event{BoardID: "tasks", Origin: "other"}))

	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.NotNil(t, snap.Item("n1"))

	events := f.events.all()
	require.NotEmpty(t, events)
	assert.Equal(t, feed.ReasonRefresh, events[len(events)-1].Reason)
}

func TestOnExternalChange_KeepsMoveCommittedDuringLoad(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	_, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)

	loading := make(chan struct{})
	release := make(chan struct{})
	var loads int32
	f.backend.AfterLoad = func(context.Context, string) {
		if atomic.AddInt32(&loads, 1) == 1 {
			close(loading)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- f.svc.OnExternalChange(ctx, feed.Event{BoardID: "tasks", Origin: "other"})
	}()
	waitFor(t, (<-chan struct{})(loading))

	out, err := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 1})
	require.NoError(t, err)
	require.Equal(t, StatusApplied, out.Status)

	close(release)
	require.NoError(t, waitFor(t, (<-chan error)(done)))

	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, "B", snap.Item("x").GroupID, "a board read before the move must not replace it")
	assert.Equal(t, []string{"w", "x"}, positions(snap, "B"))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&loads), int32(2), "the outdated read should be loaded again")
}

func TestOnExternalChange_IgnoresOwnOriginAndUnloadedBoards(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()

	// Not loaded yet: nothing to invalidate
	require.NoError(t, f.svc.OnExternalChange(ctx, feed.Event{BoardID: "tasks", Origin: "other"}))

	_, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	external := testutil.TaskBoard()
	external.Items = append(external.Items, testutil.TestItem("n1", "D", 0))
	f.backend.Put(external)

	require.NoError(t, f.svc.OnExternalChange(ctx, feed.Event{BoardID: "tasks", Origin: "self"}))
	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Nil(t, snap.Item("n1"), "own events must not trigger a refresh")
}

func TestOnExternalChange_DeferredUntilMovesSettle(t *testing.T) {
	f := newReorderFixture(t, testutil.TaskBoard())
	ctx := context.Background()
	entered, release := f.holdFirstBatch()

	done := make(chan Outcome, 1)
	go func() {
		out, _ := f.svc.Move(ctx, "tasks", model.MoveIntent{ItemID: "x", SourceGroupID: "A", DestinationGroupID: "B", DestinationIndex: 0})
		done <- out
	}()
	waitFor(t, (<-chan string)(entered))

	external := testutil.TaskBoard()
	external.Items = append(external.Items, testutil.TestItem("n1", "D", 0))
	f.backend.Put(external)

	err := f.svc.OnExternalChange(ctx, feed.Event{BoardID: "tasks", Origin: "other"})
	assert.ErrorIs(t, err, kanerr.ErrStaleSnapshot)

	snap, err := f.svc.Board(ctx, "tasks")
	require.NoError(t, err)
	assert.Nil(t, snap.Item("n1"), "refresh must wait for the move to settle")
	assert.Equal(t, "B", snap.Item("x").GroupID, "optimistic state stays visible")

	close(release)
	assert.Equal(t, StatusApplied, waitFor(t, (<-chan Outcome)(done)).Status)

	assert.Eventually(t, func() bool {
		snap, err := f.svc.Board(ctx, "tasks")
		return err == nil && snap.Item("n1") != nil && snap.Item("x").GroupID == "B"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMove_PublishesToFeed(t *testing.T) {
	bus := feed.NewBus()
	remote := &eventLog{}
	bus.Subscribe(remote)

	f := newReorderFixture(t, testutil.TaskBoard(), func(o *ReorderOptions) {
		o.Feed = bus
	})
	bus.Subscribe(f.svc)

	_, err := f.svc.Move(context.Background(), "tasks", model.MoveIntent{ItemID: "z", DestinationGroupID: "A", DestinationIndex: 0})
	require.NoError(t, err)

	events := remote.all()
	require.Len(t, events, 1)
	assert.Equal(t, "self", events[0].Origin)
	assert.Equal(t, []string{"z", "x", "y"}, events[0].ItemIDs)
	assert.NotZero(t, events[0].AtMillis)
}

func TestTotals_WithoutCache(t *testing.T) {
	f := newReorderFixture(t, testutil.PipelineBoard())

	totals, err := f.svc.Totals(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), totals.Group("lead").ValueSum)
	assert.Equal(t, 0, totals.Group("lost").Count)
}
