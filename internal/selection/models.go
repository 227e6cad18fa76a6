package selection

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is an output destination for a selected photo.
type Category string

const (
	CategoryAlbum  Category = "album"
	CategoryCover  Category = "cover"
	CategoryPoster Category = "poster"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryAlbum, CategoryCover, CategoryPoster}

// ParseCategory validates a category name.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case CategoryAlbum, CategoryCover, CategoryPoster:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
}

// Limits holds the configured selection count per category.
type Limits struct {
	Album  int `json:"album"`
	Cover  int `json:"cover"`
	Poster int `json:"poster"`
}

// For returns the limit of a category.
func (l Limits) For(c Category) int {
	switch c {
	case CategoryAlbum:
		return l.Album
	case CategoryCover:
		return l.Cover
	case CategoryPoster:
		return l.Poster
	default:
		return 0
	}
}

// Validate rejects negative limits.
func (l Limits) Validate() error {
	for _, c := range Categories {
		if l.For(c) < 0 {
			return fmt.Errorf("%w: %s limit is negative", ErrInvalidLimits, c)
		}
	}
	return nil
}

// State of a customer's selection.
type State string

const (
	StateOpen      State = "open"
	StateSubmitted State = "submitted"
)

// Entry claims that one asset fulfils one category.
type Entry struct {
	AssetRef string   `json:"asset_ref"`
	Category Category `json:"category"`
}

// Selection is one customer's set of entries and its lock state.
type Selection struct {
	CustomerID uuid.UUID  `json:"customer_id"`
	State      State      `json:"state"`
	Entries    []Entry    `json:"entries"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Reason explains why a toggle was not applied.
type Reason string

const ReasonLimitReached Reason = "limit_reached"

// ToggleResult reports the outcome of a toggle.
type ToggleResult struct {
	Accepted bool     `json:"accepted"`
	Selected bool     `json:"selected"`
	Reason   Reason   `json:"reason,omitempty"`
	Category Category `json:"category"`
	Count    int      `json:"count"`
	Limit    int      `json:"limit"`
}

// Deviation describes a category whose count does not equal its limit.
type Deviation struct {
	Category Category `json:"category"`
	Selected int      `json:"selected"`
	Required int      `json:"required"`
}

// Summary is the read model shown to the customer.
type Summary struct {
	Selection
	Limits Limits           `json:"limits"`
	Counts map[Category]int `json:"counts"`
	Valid  bool             `json:"valid"`
}
