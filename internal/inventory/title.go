package inventory

import (
	"strconv"
	"strings"
	"time"

	"github.com/lepinkainen/shelfscan/internal/enrichment/product"
)

// TitleSeparator joins the parts of a magazine display title.
const TitleSeparator = " - "

// MagazineTitle composes "Publication - Issue title - Issue N - Date" from
// the non-empty parts. The date is the issue date when known, else
// "Month YYYY" from the inferred month and year, else the year alone.
func MagazineTitle(meta *product.ItemMetadata) string {
	if meta == nil {
		return ""
	}

	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	add(meta.Title)
	add(meta.IssueTitle)
	if n := strings.TrimSpace(meta.IssueNumber); n != "" {
		add("Issue " + strings.TrimPrefix(strings.TrimPrefix(n, "#"), "Issue "))
	}
	add(dateFragment(meta))

	return strings.Join(parts, TitleSeparator)
}

func dateFragment(meta *product.ItemMetadata) string {
	if d := strings.TrimSpace(meta.IssueDate); d != "" {
		return d
	}
	if meta.InferredYear <= 0 {
		return ""
	}
	year := strconv.Itoa(meta.InferredYear)
	if m := meta.InferredMonth; m >= 1 && m <= 12 {
		return time.Month(m).String() + " " + year
	}
	return year
}
