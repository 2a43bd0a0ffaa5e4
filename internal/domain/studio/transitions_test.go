package studio

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func stateWithNodes(status string, ids ...uuid.UUID) *ChapterStudioState {
	s := NewChapterStudioState(uuid.New(), time.Now().UTC())
	s.Status = status
	var nodes []StableNode
	for i, id := range ids {
		nodes = append(nodes, StableNode{NodeID: id, SlotID: string(rune('a' + i)), NodeType: NodeTypeText})
	}
	s.SetNodes(nodes)
	return s
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StudioStatusNotStarted, StudioStatusPopulated, true},
		{StudioStatusPopulated, StudioStatusEdited, true},
		{StudioStatusPopulated, StudioStatusFinalized, true},
		{StudioStatusEdited, StudioStatusFinalized, true},
		{StudioStatusEdited, StudioStatusPopulated, false},
		{StudioStatusFinalized, StudioStatusPopulated, false},
		{StudioStatusFinalized, StudioStatusEdited, false},
		{StudioStatusNotStarted, StudioStatusFinalized, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestMarkNodeEdited(t *testing.T) {
	n1, n2 := uuid.New(), uuid.New()
	s := stateWithNodes(StudioStatusPopulated, n1, n2)

	if MarkNodeEdited(s, uuid.New(), time.Now()) {
		t.Fatalf("unknown node must not change state")
	}
	if s.Status != StudioStatusPopulated {
		t.Fatalf("status changed for unknown node: %s", s.Status)
	}

	if !MarkNodeEdited(s, n1, time.Now()) {
		t.Fatalf("expected change")
	}
	if s.Status != StudioStatusEdited {
		t.Fatalf("status: want edited got %s", s.Status)
	}
	nodes := s.Nodes()
	if !nodes[0].UserEdited || nodes[1].UserEdited {
		t.Fatalf("edit flags: %+v", nodes)
	}

	if MarkNodeEdited(s, n1, time.Now()) {
		t.Fatalf("second edit of same node should be a no-op")
	}
}

func TestMarkNodeEdited_FinalizedStaysFinalized(t *testing.T) {
	n1 := uuid.New()
	s := stateWithNodes(StudioStatusFinalized, n1)
	MarkNodeEdited(s, n1, time.Now())
	if s.Status != StudioStatusFinalized {
		t.Fatalf("finalized chapter moved to %s", s.Status)
	}
}

func TestFinalize(t *testing.T) {
	s := stateWithNodes(StudioStatusNotStarted)
	if _, err := Finalize(s, time.Now()); !IsCode(err, CodeInvalidAction) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	s = stateWithNodes(StudioStatusEdited)
	changed, err := Finalize(s, time.Now())
	if err != nil || !changed || s.Status != StudioStatusFinalized || s.FinalizedAt == nil {
		t.Fatalf("finalize edited: changed=%v err=%v state=%+v", changed, err, s)
	}
	changed, err = Finalize(s, time.Now())
	if err != nil || changed {
		t.Fatalf("finalize twice: changed=%v err=%v", changed, err)
	}
}

func TestPromoteOnPopulate(t *testing.T) {
	s := stateWithNodes(StudioStatusNotStarted)
	PromoteOnPopulate(s, time.Now())
	if s.Status != StudioStatusPopulated || s.PopulatedAt == nil {
		t.Fatalf("not_started should become populated: %+v", s)
	}
	s.Status = StudioStatusEdited
	PromoteOnPopulate(s, time.Now())
	if s.Status != StudioStatusEdited {
		t.Fatalf("edited must not regress, got %s", s.Status)
	}
}
