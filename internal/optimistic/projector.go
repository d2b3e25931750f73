package optimistic

import "quadrant/api/internal/store"

// Project folds pending speculative records onto the base collection in
// insertion order and returns the render-ready view. It is a pure function:
// the same base and the same ordered pending list always produce the same
// output, and neither input is mutated.
//
// A later record for the same entity wins visually because the fold is
// left-to-right; business correctness is still guarded by versions, not by
// this ordering. An update whose entity exists only in a prior pending
// create merges into that created entry, which falls out of the fold for
// free since the create already appended it to the working view.
func Project(base []store.Idea, pending []Record) []store.Idea {
	view := make([]store.Idea, len(base))
	copy(view, base)

	for _, record := range pending {
		switch record.Kind {
		case KindCreate:
			if record.Idea != nil {
				view = append(view, *record.Idea)
			}
		case KindUpdate, KindMove:
			view = mergeInto(view, record.EntityID, record.Patch)
		case KindDelete:
			view = removeFrom(view, record.EntityID)
		}
	}
	return view
}

func mergeInto(view []store.Idea, entityID string, patch store.IdeaPatch) []store.Idea {
	for i := range view {
		if view[i].ID == entityID {
			view[i] = patch.Merge(view[i])
			return view
		}
	}
	// Entity not in the working view; nothing to merge onto. The record will
	// be reverted by its owner once reconciliation fails.
	return view
}

func removeFrom(view []store.Idea, entityID string) []store.Idea {
	for i := range view {
		if view[i].ID == entityID {
			return append(view[:i:i], view[i+1:]...)
		}
	}
	return view
}
