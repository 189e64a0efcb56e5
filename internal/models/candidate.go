package models

import "strings"

// Candidate represents a restaurant returned by the place provider.
// Candidates are treated as immutable within one search cycle.
type Candidate struct {
	// ID is the provider's place identifier.
	ID string

	// Name is the venue name.
	Name string

	// Address is the short address ("vicinity") reported by the provider.
	Address string

	// Rating is the 0.0-5.0 average rating, nil when the provider has none.
	Rating *float64

	// ReviewCount is the number of ratings behind Rating, nil when unknown.
	ReviewCount *int

	// PriceLevel is 0-4, nil when unknown.
	PriceLevel *int

	// IsOpenNow is nil when the provider does not report opening hours.
	IsOpenNow *bool

	// PhotoRef is the provider photo reference; empty means no photo.
	PhotoRef string
}

// HasPhoto reports whether the candidate carries a photo reference.
func (c Candidate) HasPhoto() bool {
	return c.PhotoRef != ""
}

// PriceLabel renders the price level as yen marks, or "価格不明" when unknown.
// Level 0 renders as a single mark.
func (c Candidate) PriceLabel() string {
	if c.PriceLevel == nil {
		return "価格不明"
	}
	n := *c.PriceLevel
	if n < 1 {
		n = 1
	}
	return strings.Repeat("¥", n)
}

// Location is a geographic coordinate.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Float64 returns a pointer to v. Used to build candidates in code.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
