package product

import (
	"sort"
	"strings"
)

// Merger defines the interface for merging item information from multiple sources.
type Merger interface {
	// Merge combines multiple EnricherResults into a single ItemMetadata.
	// Results are merged by priority (lower priority number = higher precedence).
	Merge(results []EnricherResult) *ItemMetadata
}

// PriorityMerger implements Merger using priority-based field selection.
// For each field, it uses the first non-empty value from the sorted results.
type PriorityMerger struct{}

// NewPriorityMerger creates a new PriorityMerger.
func NewPriorityMerger() *PriorityMerger {
	return &PriorityMerger{}
}

// Merge combines multiple EnricherResults into a single ItemMetadata.
// Results are sorted by priority (lower = higher precedence) and each field
// takes the first non-empty value. Categories are unioned.
func (m *PriorityMerger) Merge(results []EnricherResult) *ItemMetadata {
	if len(results) == 0 {
		return nil
	}

	sorted := make([]EnricherResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	merged := &ItemMetadata{}
	var sources []string

	for _, result := range sorted {
		d := result.Data
		if d == nil {
			continue
		}
		if result.Source != "" {
			sources = append(sources, result.Source)
		}

		firstString(&merged.Title, d.Title)
		firstString(&merged.Publisher, d.Publisher)
		firstString(&merged.CoverURL, d.CoverURL)
		firstString(&merged.Description, d.Description)
		firstString(&merged.ISSN, d.ISSN)
		firstString(&merged.IssueNumber, d.IssueNumber)
		firstString(&merged.IssueTitle, d.IssueTitle)
		firstString(&merged.IssueDate, d.IssueDate)

		if merged.Type == "" {
			merged.Type = d.Type
		}
		if merged.Year == 0 {
			merged.Year = d.Year
		}
		if merged.InferredMonth == 0 {
			merged.InferredMonth = d.InferredMonth
		}
		if merged.InferredYear == 0 {
			merged.InferredYear = d.InferredYear
		}
		if merged.ListPrice == nil && d.ListPrice != nil && d.ListPrice.IsPositive() {
			merged.ListPrice = d.ListPrice
		}

		// Authors - prefer first non-empty list
		if len(merged.Authors) == 0 && len(d.Authors) > 0 {
			merged.Authors = d.Authors
		}

		// Categories - merge all unique values
		if len(d.Categories) > 0 {
			merged.Categories = mergeStringSlices(merged.Categories, d.Categories)
		}
	}

	merged.Source = strings.Join(sources, ",")
	return merged
}

func firstString(dst *string, v string) {
	if *dst == "" && strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// mergeStringSlices merges two string slices, removing duplicates.
func mergeStringSlices(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	return result
}
