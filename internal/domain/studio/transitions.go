package studio

import (
	"time"

	"github.com/google/uuid"
)

var allowedStudioTransitions = map[string][]string{
	StudioStatusNotStarted: {StudioStatusPopulated},
	StudioStatusPopulated:  {StudioStatusEdited, StudioStatusFinalized},
	StudioStatusEdited:     {StudioStatusFinalized},
	StudioStatusFinalized:  {},
}

func IsKnownStudioStatus(status string) bool {
	_, ok := allowedStudioTransitions[status]
	return ok
}

// CanTransition reports whether from -> to is a forward lifecycle step.
func CanTransition(from, to string) bool {
	for _, s := range allowedStudioTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// MarkNodeEdited flags a populated node as touched by the user and promotes
// populated -> edited. Nodes outside the inventory are ignored.
func MarkNodeEdited(s *ChapterStudioState, nodeID uuid.UUID, now time.Time) bool {
	if s == nil || nodeID == uuid.Nil {
		return false
	}
	nodes := s.Nodes()
	changed := false
	found := false
	for i := range nodes {
		if nodes[i].NodeID != nodeID {
			continue
		}
		found = true
		if !nodes[i].UserEdited {
			nodes[i].UserEdited = true
			changed = true
		}
	}
	if !found {
		return false
	}
	if changed {
		s.SetNodes(nodes)
	}
	if s.Status == StudioStatusPopulated {
		s.Status = StudioStatusEdited
		changed = true
	}
	if changed {
		s.UpdatedAt = now
	}
	return changed
}

// Finalize applies the explicit finalize action. Finalizing twice is a no-op.
func Finalize(s *ChapterStudioState, now time.Time) (bool, error) {
	if s == nil {
		return false, Errorf(CodeNotFound, "studio state not found")
	}
	if s.Status == StudioStatusFinalized {
		return false, nil
	}
	if !CanTransition(s.Status, StudioStatusFinalized) {
		return false, Errorf(CodeInvalidAction, "cannot finalize a chapter in status %s", s.Status)
	}
	s.Status = StudioStatusFinalized
	s.FinalizedAt = &now
	s.UpdatedAt = now
	return true, nil
}

// PromoteOnPopulate moves not_started -> populated. Other statuses are kept:
// population never moves a chapter backward.
func PromoteOnPopulate(s *ChapterStudioState, now time.Time) {
	if s == nil {
		return
	}
	if s.Status == "" || s.Status == StudioStatusNotStarted {
		s.Status = StudioStatusPopulated
	}
	s.PopulatedAt = &now
	s.UpdatedAt = now
}
