package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lepinkainen/shelfscan/internal/inventory"
	"github.com/lepinkainen/shelfscan/internal/pricing"
	"github.com/lepinkainen/shelfscan/internal/scan"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("247"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("254"))
	priceStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("178"))

	quoteBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

func renderOutcome(o scan.Outcome) string {
	switch o.Status {
	case scan.StatusDuplicate:
		return mutedStyle.Render("= duplicate ") + o.Code.Digits
	case scan.StatusDispatched:
		return mutedStyle.Render("… queued    ") + o.Code.Digits
	}
	if o.Result == nil {
		return o.Code.Digits
	}

	m := o.Result.Merge
	verb := okStyle.Render("+ added     ")
	if !m.Created {
		verb = okStyle.Render("↑ updated   ")
	}
	return fmt.Sprintf("%s%s %s %s",
		verb,
		o.Code.Digits,
		titleStyle.Render(m.Record.Title),
		mutedStyle.Render(fmt.Sprintf("(qty %d)", m.Quantity)),
	)
}

func renderScanError(code string, err error) string {
	return errStyle.Render("✗ failed    ") + code + " " + mutedStyle.Render(err.Error())
}

func renderQuote(label string, q pricing.Quote) string {
	lines := []string{
		titleStyle.Render(label),
		priceStyle.Render(q.Price.StringFixed(2)) + " " + mutedStyle.Render("via "+q.Source),
	}

	if s := q.Analytics; !s.Empty() {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf(
			"%d listings  min %s  p25 %s  median %s  p75 %s  max %s",
			s.Count, s.Min.StringFixed(2), s.P25.StringFixed(2), s.Median.StringFixed(2),
			s.P75.StringFixed(2), s.Max.StringFixed(2),
		)))
	}
	for _, note := range q.Notes {
		lines = append(lines, warnStyle.Render("• "+note))
	}

	return quoteBox.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderItems(records []inventory.Record) string {
	if len(records) == 0 {
		return mutedStyle.Render("No items.")
	}

	var sb strings.Builder
	header := fmt.Sprintf("%-20s %-9s %4s %9s  %s", "CODE", "TYPE", "QTY", "PRICE", "TITLE")
	sb.WriteString(titleStyle.Render(header))
	sb.WriteString("\n")
	for _, rec := range records {
		code := rec.CanonicalCode
		if code == "" {
			code = rec.Barcode
		}
		price := "-"
		if rec.SuggestedPrice != nil {
			price = rec.SuggestedPrice.StringFixed(2)
		}
		fmt.Fprintf(&sb, "%-20s %-9s %4d %9s  %s\n", code, rec.Type, rec.Quantity, price, rec.Title)
	}
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%d items", len(records))))
	return sb.String()
}
