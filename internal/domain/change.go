package domain

// ShelfChanged is published by an origin after a shelf was written or deleted.
type ShelfChanged struct {
	ShelfID string `json:"shelf_id"`
	Deleted bool   `json:"deleted,omitempty"`
}
