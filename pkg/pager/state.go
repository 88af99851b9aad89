package pager

// state is the engine-owned pagination state. It is only touched by the
// engine loop and is replaced, never mutated in place.
type state struct {
	cursor      Cursor
	accumulated []Item
}

func newState(firstPage int) state {
	return state{
		cursor:      NextPage(firstPage),
		accumulated: []Item{},
	}
}

// requestFor builds the request for a trigger. It returns false when a
// load-more arrives after the last page, in which case nothing is fetched.
func (s state) requestFor(kind RequestKind, firstPage int) (Request, bool) {
	if kind == KindRefresh {
		return Request{Page: firstPage, Kind: KindRefresh}, true
	}
	page, ok := s.cursor.Page()
	if !ok {
		return Request{}, false
	}
	return Request{Page: page, Kind: KindLoadMore}, true
}

// apply folds a successful response into the state. The cursor is taken
// from the response before the items are merged.
func (s state) apply(resp Response) state {
	next := state{cursor: resp.Next}

	switch resp.Kind {
	case KindLoadMore:
		merged := make([]Item, 0, len(s.accumulated)+len(resp.Items))
		merged = append(merged, s.accumulated...)
		next.accumulated = append(merged, resp.Items...)
	default:
		next.accumulated = append(make([]Item, 0, len(resp.Items)), resp.Items...)
	}

	return next
}
