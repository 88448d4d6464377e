package consumer

// dedupWindow remembers the last n ingest IDs so exact duplicates from the
// origin can be skipped before the merge comparison. It is an optimization
// only; the view's offset/event-time rule is the correctness backstop.
type dedupWindow struct {
	seen  map[string]struct{}
	order []string
	next  int
}

func newDedupWindow(n int) *dedupWindow {
	if n <= 0 {
		return nil
	}
	return &dedupWindow{
		seen:  make(map[string]struct{}, n),
		order: make([]string, n),
	}
}

// Seen records id and reports whether it was already in the window.
// Events without an ingest ID are never deduplicated here.
func (d *dedupWindow) Seen(id string) bool {
	if d == nil || id == "" {
		return false
	}
	if _, ok := d.seen[id]; ok {
		return true
	}
	if evicted := d.order[d.next]; evicted != "" {
		delete(d.seen, evicted)
	}
	d.order[d.next] = id
	d.next = (d.next + 1) % len(d.order)
	d.seen[id] = struct{}{}
	return false
}
