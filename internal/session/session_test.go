package session

import (
	"reflect"
	"testing"

	kanerr "github.com/amterp/kanflow/internal/errors"
	"github.com/amterp/kanflow/internal/model"
)

type fixedBoard struct {
	board *model.Board
}

func (f *fixedBoard) Snapshot() *model.Board {
	return f.board.Clone()
}

func newBoard() *fixedBoard {
	open := model.DefaultPolicy(model.GroupKindActive)
	return &fixedBoard{board: &model.Board{
		ID: "b",
		Groups: []model.Group{
			{ID: "A", Title: "Todo", Policy: open},
			{ID: "C", Title: "Lost", Kind: model.GroupKindLost, Policy: model.DefaultPolicy(model.GroupKindLost)},
			{ID: "D", Title: "Next", Policy: open},
			{ID: "X", Title: "Closed", Policy: model.GroupPolicy{AcceptsOutgoing: true}},
		},
		Items: []*model.Item{
			{ID: "a1", GroupID: "A", Position: 0},
			{ID: "a2", GroupID: "A", Position: 1},
			{ID: "c1", GroupID: "C", Position: 0},
			{ID: "c2", GroupID: "C", Position: 1},
		},
	}}
}

func TestSession_DropProducesIntent(t *testing.T) {
	s := New(newBoard())

	if err := s.Start("a2"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != Dragging {
		t.Fatalf("State() = %v, want dragging", s.State())
	}
	item, group, index := s.Origin()
	if item != "a2" || group != "A" || index != 1 {
		t.Errorf("Origin() = %s %s %d", item, group, index)
	}

	res := s.End(&Destination{GroupID: "D", Index: 0})
	if res.State != Dropped {
		t.Fatalf("End() state = %v (%s), want dropped", res.State, res.Reason)
	}
	want := &model.MoveIntent{ItemID: "a2", SourceGroupID: "A", DestinationGroupID: "D", DestinationIndex: 0}
	if !reflect.DeepEqual(res.Intent, want) {
		t.Errorf("Intent = %+v, want %+v", res.Intent, want)
	}
	if s.State() != Idle || s.Last() != Dropped {
		t.Errorf("after drop: state %v, last %v", s.State(), s.Last())
	}
}

func TestSession_OutOfLockedGroupCancels(t *testing.T) {
	s := New(newBoard())

	if err := s.Start("c1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Over("D") {
		t.Error("Over(D) should be false for an item in a locked group")
	}

	res := s.End(&Destination{GroupID: "D", Index: 0})
	if res.State != Cancelled {
		t.Errorf("End() state = %v, want cancelled", res.State)
	}
	if res.Intent != nil {
		t.Errorf("cancelled drag produced an intent: %+v", res.Intent)
	}
	if s.State() != Idle || s.Last() != Cancelled {
		t.Errorf("after cancel: state %v, last %v", s.State(), s.Last())
	}
}

func TestSession_ReorderInsideLockedGroupDrops(t *testing.T) {
	s := New(newBoard())
	if err := s.Start("c2"); err != nil {
		t.Fatal(err)
	}
	if !s.Over("C") {
		t.Error("Over(C) should allow reordering within the locked group")
	}
	if res := s.End(&Destination{GroupID: "C", Index: 0}); res.State != Dropped {
		t.Errorf("End() state = %v (%s), want dropped", res.State, res.Reason)
	}
}

func TestSession_EndCancels(t *testing.T) {
	tests := []struct {
		name string
		dest *Destination
	}{
		{"no destination", nil},
		{"empty group", &Destination{}},
		{"closed destination", &Destination{GroupID: "X"}},
		{"unknown destination", &Destination{GroupID: "nowhere"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(newBoard())
			if err := s.Start("a1"); err != nil {
				t.Fatal(err)
			}
			res := s.End(tt.dest)
			if res.State != Cancelled || res.Intent != nil {
				t.Errorf("End() = %+v, want silent cancel", res)
			}
			if res.Reason == "" {
				t.Error("cancel should carry a reason")
			}
		})
	}
}

func TestSession_CancelAndIdleCalls(t *testing.T) {
	s := New(newBoard())

	if res := s.Cancel(); res.State != Idle {
		t.Errorf("Cancel() while idle = %v", res.State)
	}
	if res := s.End(&Destination{GroupID: "A"}); res.State != Idle || res.Intent != nil {
		t.Errorf("End() while idle = %+v", res)
	}
	if s.Over("A") {
		t.Error("Over() while idle should be false")
	}

	if err := s.Start("a1"); err != nil {
		t.Fatal(err)
	}
	if res := s.Cancel(); res.State != Cancelled {
		t.Errorf("Cancel() = %v, want cancelled", res.State)
	}
	if s.State() != Idle {
		t.Errorf("State() = %v, want idle", s.State())
	}
}

func TestSession_StartGuards(t *testing.T) {
	s := New(newBoard())

	if err := s.Start("ghost"); !kanerr.IsNotFound(err) {
		t.Errorf("Start(ghost) = %v, want not-found", err)
	}
	if s.State() != Idle {
		t.Error("failed start should stay idle")
	}

	if err := s.Start("a1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Start("a2"); err != ErrBusy {
		t.Errorf("second Start = %v, want ErrBusy", err)
	}
}

func TestSession_EndUsesLatestSnapshot(t *testing.T) {
	boards := newBoard()
	s := New(boards)

	if err := s.Start("a1"); err != nil {
		t.Fatal(err)
	}
	// Another client's move lands a1 in the locked group mid-drag
	boards.board.Item("a1").GroupID = "C"

	if res := s.End(&Destination{GroupID: "D"}); res.State != Cancelled {
		t.Errorf("End() = %v, want cancelled against the latest snapshot", res.State)
	}
}

func TestState_String(t *testing.T) {
	for st, want := range map[State]string{Idle: "idle", Dragging: "dragging", Dropped: "dropped", Cancelled: "cancelled", State(9): "unknown"} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}
