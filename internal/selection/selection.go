package selection

import (
	"time"
)

// Has reports whether the asset is selected for the category.
func (s *Selection) Has(assetRef string, c Category) bool {
	return s.indexOf(assetRef, c) >= 0
}

// Count returns the number of entries in a category.
func (s *Selection) Count(c Category) int {
	n := 0
	for _, e := range s.Entries {
		if e.Category == c {
			n++
		}
	}
	return n
}

// Counts returns the entry count of every category.
func (s *Selection) Counts() map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = 0
	}
	for _, e := range s.Entries {
		out[e.Category]++
	}
	return out
}

// AssetRefs returns the distinct selected asset refs in first-selected order.
func (s *Selection) AssetRefs() []string {
	seen := make(map[string]struct{}, len(s.Entries))
	refs := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		if _, ok := seen[e.AssetRef]; ok {
			continue
		}
		seen[e.AssetRef] = struct{}{}
		refs = append(refs, e.AssetRef)
	}
	return refs
}

// Toggle removes an existing (asset, category) entry or adds a missing one
// while the category is below its limit. Removal is unconditional. A full
// category yields Accepted=false with ReasonLimitReached and leaves the
// selection unchanged.
func (s *Selection) Toggle(assetRef string, c Category, limits Limits) (ToggleResult, error) {
	if s.State == StateSubmitted {
		return ToggleResult{}, ErrSelectionSubmitted
	}
	if _, err := ParseCategory(string(c)); err != nil {
		return ToggleResult{}, err
	}

	limit := limits.For(c)
	if idx := s.indexOf(assetRef, c); idx >= 0 {
		s.Entries = append(s.Entries[:idx], s.Entries[idx+1:]...)
		return ToggleResult{Accepted: true, Selected: false, Category: c, Count: s.Count(c), Limit: limit}, nil
	}

	count := s.Count(c)
	if count >= limit {
		return ToggleResult{Accepted: false, Reason: ReasonLimitReached, Category: c, Count: count, Limit: limit}, nil
	}

	s.Entries = append(s.Entries, Entry{AssetRef: assetRef, Category: c})
	return ToggleResult{Accepted: true, Selected: true, Category: c, Count: count + 1, Limit: limit}, nil
}

// Deviations lists every category whose count differs from its limit.
func (s *Selection) Deviations(limits Limits) []Deviation {
	counts := s.Counts()
	var out []Deviation
	for _, c := range Categories {
		if counts[c] != limits.For(c) {
			out = append(out, Deviation{Category: c, Selected: counts[c], Required: limits.For(c)})
		}
	}
	return out
}

// Submit locks the selection when every category count equals its limit.
func (s *Selection) Submit(limits Limits, now time.Time) error {
	if s.State == StateSubmitted {
		return ErrSelectionSubmitted
	}
	if devs := s.Deviations(limits); len(devs) > 0 {
		return &InvalidSubmissionError{Deviations: devs}
	}
	approvedAt := now.UTC()
	s.State = StateSubmitted
	s.ApprovedAt = &approvedAt
	return nil
}

func (s *Selection) clone() Selection {
	out := *s
	out.Entries = append([]Entry(nil), s.Entries...)
	if s.ApprovedAt != nil {
		t := *s.ApprovedAt
		out.ApprovedAt = &t
	}
	return out
}

func (s *Selection) indexOf(assetRef string, c Category) int {
	for i, e := range s.Entries {
		if e.AssetRef == assetRef && e.Category == c {
			return i
		}
	}
	return -1
}
