package plot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kjstillabower/tropicnights/internal/models"
)

// Cell geometry for the calendar heatmap, in SVG user units.
const (
	cellSize   = 12
	cellGap    = 3
	leftGutter = 34 // room for weekday labels
	topGutter  = 18 // room for month labels
)

const (
	colorTropical    = "#d62d20"
	colorNotTropical = "#d4d4d4"
)

var weekdayLabels = [7]string{"Mon", "", "Wed", "", "Fri", "", "Sun"}

// Render turns a daily classification series into a self-contained HTML
// fragment: one SVG calendar heatmap per year with a per-year total annotation,
// followed by a summary table of annual totals. The fragment is meant to be
// embedded in a page, not served as a standalone document.
//
// Output is deterministic for a given input, so cached copies compare
// byte-identical to a re-render.
func Render(cityName string, days []models.DailyClassification, summaries []models.AnnualSummary) string {
	var b strings.Builder

	b.WriteString(`<div class="tropical-nights-plot">` + "\n")
	fmt.Fprintf(&b, `<h2>Tropical Nights in %s</h2>`+"\n", html.EscapeString(cityName))

	byYear := splitByYear(days)
	for _, summary := range summaries {
		fmt.Fprintf(&b, `<p class="year-annotation"><strong>%d: %d Tropical Nights</strong></p>`+"\n",
			summary.Year, summary.TropicalNights)
		renderYearSVG(&b, summary.Year, byYear[summary.Year])
	}

	renderSummaryTable(&b, summaries)
	b.WriteString(`</div>` + "\n")
	return b.String()
}

// splitByYear groups the series by calendar year, preserving order.
func splitByYear(days []models.DailyClassification) map[int][]models.DailyClassification {
	byYear := make(map[int][]models.DailyClassification)
	for _, d := range days {
		year := d.Date.Year()
		byYear[year] = append(byYear[year], d)
	}
	return byYear
}

// renderYearSVG draws one calendar year as a week-column grid, Monday row
// first. Only days present in the series get a cell; unobserved days leave a
// hole in the grid.
func renderYearSVG(b *strings.Builder, year int, days []models.DailyClassification) {
	gridStart := weekStart(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC))
	yearEnd := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	weeks := int(yearEnd.Sub(gridStart).Hours()/24/7) + 1

	width := leftGutter + weeks*(cellSize+cellGap)
	height := topGutter + 7*(cellSize+cellGap)
	fmt.Fprintf(b, `<svg class="year-heatmap" width="%d" height="%d" viewBox="0 0 %d %d" role="img" aria-label="Tropical nights %d">`+"\n",
		width, height, width, height, year)

	for row, label := range weekdayLabels {
		if label == "" {
			continue
		}
		y := topGutter + row*(cellSize+cellGap) + cellSize - 2
		fmt.Fprintf(b, `<text x="0" y="%d" font-size="9" fill="#767676">%s</text>`+"\n", y, label)
	}

	lastMonth := time.Month(0)
	for _, d := range days {
		day := d.Date.UTC()
		week := int(day.Sub(gridStart).Hours() / 24 / 7)
		row := weekdayRow(day.Weekday())
		x := leftGutter + week*(cellSize+cellGap)
		y := topGutter + row*(cellSize+cellGap)

		if m := day.Month(); m != lastMonth {
			fmt.Fprintf(b, `<text x="%d" y="10" font-size="9" fill="#767676">%s</text>`+"\n", x, m.String()[:3])
			lastMonth = m
		}

		color := colorNotTropical
		state := "not tropical"
		if d.TropicalNight {
			color = colorTropical
			state = "tropical"
		}
		fmt.Fprintf(b, `<rect x="%d" y="%d" width="%d" height="%d" rx="2" fill="%s"><title>%s: %s</title></rect>`+"\n",
			x, y, cellSize, cellSize, color, day.Format("2006-01-02"), state)
	}

	b.WriteString(`</svg>` + "\n")
}

// renderSummaryTable writes the textual annual totals table.
func renderSummaryTable(b *strings.Builder, summaries []models.AnnualSummary) {
	b.WriteString(`<table class="annual-summary">` + "\n")
	b.WriteString(`<caption>Total Tropical Nights by Year</caption>` + "\n")
	b.WriteString(`<thead><tr><th>Year</th><th>Tropical Nights</th></tr></thead>` + "\n")
	b.WriteString(`<tbody>` + "\n")
	for _, s := range summaries {
		fmt.Fprintf(b, `<tr><td>%d</td><td>%d</td></tr>`+"\n", s.Year, s.TropicalNights)
	}
	b.WriteString(`</tbody>` + "\n")
	b.WriteString(`</table>` + "\n")
}

// weekStart returns the Monday at or before t.
func weekStart(t time.Time) time.Time {
	return t.AddDate(0, 0, -weekdayRow(t.Weekday()))
}

// weekdayRow maps time.Weekday to a Monday-first row index 0..6.
func weekdayRow(w time.Weekday) int {
	return (int(w) + 6) % 7
}
