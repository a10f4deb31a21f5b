package graph

import (
	"strings"
	"time"
)

// Category tags a task for display and filtering.
type Category string

const (
	CategoryFeature  Category = "feature"
	CategoryBug      Category = "bug"
	CategoryDesign   Category = "design"
	CategoryResearch Category = "research"
	CategoryOps      Category = "ops"
	CategoryDocs     Category = "docs"
)

var knownCategories = map[Category]struct{}{
	CategoryFeature:  {},
	CategoryBug:      {},
	CategoryDesign:   {},
	CategoryResearch: {},
	CategoryOps:      {},
	CategoryDocs:     {},
}

// NormalizeCategory lower-cases and trims a category. Unknown or empty values
// fall back to CategoryFeature.
func NormalizeCategory(raw string) Category {
	c := Category(strings.TrimSpace(strings.ToLower(raw)))
	if _, ok := knownCategories[c]; ok {
		return c
	}
	return CategoryFeature
}

// DurationPalette is the set of estimates offered when editing a task, in hours.
var DurationPalette = []float64{0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5, 5.5, 6, 6.5, 7, 7.5, 8}

type Task struct {
	ID            string    `json:"id"`
	Project       string    `json:"project"`
	Title         string    `json:"title"`
	Category      Category  `json:"category"`
	Completed     bool      `json:"completed"`
	DurationHours float64   `json:"duration_hours"`
	StartTime     string    `json:"start_time,omitempty"` // HH:MM, empty until scheduled
	Assignee      string    `json:"assignee,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Edge means To cannot start before From finishes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}
