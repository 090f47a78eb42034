package domain

// RefState describes how far a shelf reference has been materialized.
type RefState string

// Reference states. Loading covers both "about to fetch" and "fetching".
const (
	RefResolved   RefState = "resolved"   // referenced shelf is in the cache
	RefLoading    RefState = "loading"    // a fetch is in flight
	RefUnresolved RefState = "unresolved" // no fetch attempted (or the last one failed)
	RefMissing    RefState = "missing"    // backend reported the shelf gone
)

// ResolvedRef is the projection of a shelf reference.
type ResolvedRef struct {
	ShelfID string   `json:"shelf_id"`
	State   RefState `json:"state"`
	Shelf   *Shelf   `json:"shelf,omitempty"`
}

// ResolvedItem is a read-time projection of an Item. It is recomputed on demand
// and never stored.
type ResolvedItem struct {
	Key     int          `json:"key"`
	Content Content      `json:"content"`
	Ref     *ResolvedRef `json:"ref,omitempty"`
}

// ReorderStatus is the state of a shelf's pending reorder.
type ReorderStatus string

// Reorder statuses. Idle means no pending reorder exists.
const (
	ReorderIdle      ReorderStatus = "idle"
	ReorderEditing   ReorderStatus = "editing"
	ReorderSaving    ReorderStatus = "saving"
	ReorderCommitted ReorderStatus = "committed"
	ReorderFailed    ReorderStatus = "failed"
)

// PendingReorder is the owner's in-progress order for a shelf.
type PendingReorder struct {
	ShelfID   string        `json:"shelf_id"`
	Order     []int         `json:"order"`
	Status    ReorderStatus `json:"status"`
	LastError string        `json:"last_error,omitempty"`
}
