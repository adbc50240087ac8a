package tropical

import (
	"sort"
	"time"

	"github.com/kjstillabower/tropicnights/internal/models"
)

// Threshold is the minimum temperature (°C) a day must never drop below to
// count as a tropical night.
const Threshold = 20.0

// Classify buckets hourly observations into UTC calendar days and classifies
// each day: tropical when the minimum observed temperature is >= Threshold.
// Days with zero observations are absent from the result; they are never
// defaulted to a classification. The result is ordered by date ascending.
func Classify(observations []models.HourlyObservation) []models.DailyClassification {
	if len(observations) == 0 {
		return nil
	}

	// day (midnight UTC) -> minimum temperature seen that day
	minByDay := make(map[time.Time]float64)
	for _, obs := range observations {
		ts := obs.Timestamp.UTC()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if cur, ok := minByDay[day]; !ok || obs.Temperature < cur {
			minByDay[day] = obs.Temperature
		}
	}

	days := make([]models.DailyClassification, 0, len(minByDay))
	for day, min := range minByDay {
		days = append(days, models.DailyClassification{
			Date:          day,
			TropicalNight: min >= Threshold,
		})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.Before(days[j].Date)
	})
	return days
}

// Summarize counts tropical nights per calendar year. Years are ordered
// ascending. Years that appear in the series with zero tropical nights are
// included with a zero count.
func Summarize(days []models.DailyClassification) []models.AnnualSummary {
	if len(days) == 0 {
		return nil
	}

	countByYear := make(map[int]int)
	for _, d := range days {
		year := d.Date.Year()
		if _, ok := countByYear[year]; !ok {
			countByYear[year] = 0
		}
		if d.TropicalNight {
			countByYear[year]++
		}
	}

	summaries := make([]models.AnnualSummary, 0, len(countByYear))
	for year, count := range countByYear {
		summaries = append(summaries, models.AnnualSummary{Year: year, TropicalNights: count})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Year < summaries[j].Year
	})
	return summaries
}
