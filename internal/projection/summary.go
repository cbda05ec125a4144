package projection

import (
	"slices"
	"strings"

	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/enrollment"
	"github.com/identmakers/roots-dashboard/internal/models"
	"github.com/identmakers/roots-dashboard/internal/presence"
)

// DefaultRecentDays is how many date buckets the dashboard shows.
const DefaultRecentDays = 7

// Summary holds the headline counters.
type Summary struct {
	Students      int `json:"students"`
	Staff         int `json:"staff"`
	Total         int `json:"total_enrollment"`
	Organizations int `json:"unique_organizations"`
	Online        int `json:"online_organizations"`
}

// Summarize computes the headline counters.
func Summarize(snap aggregation.Snapshot, online presence.Result) Summary {
	return Summary{
		Students:      snap.Students,
		Staff:         snap.Staff,
		Total:         snap.Total(),
		Organizations: len(snap.Organizations),
		Online:        online.Count,
	}
}

// DateRow is one day of enrollment activity.
type DateRow struct {
	Date     string `json:"date"`
	Label    string `json:"label"`
	Students int    `json:"students"`
	Staff    int    `json:"staff"`
	Total    int    `json:"total"`
}

// RecentDates returns the n most recent date buckets, newest first.
// n <= 0 returns every bucket.
func RecentDates(snap aggregation.Snapshot, n int) []DateRow {
	buckets := slices.Clone(snap.DateBuckets)
	// ISO dates order lexically.
	slices.SortFunc(buckets, func(a, b models.DateBucket) int { return strings.Compare(b.Date, a.Date) })
	if n > 0 && len(buckets) > n {
		buckets = buckets[:n]
	}

	rows := make([]DateRow, 0, len(buckets))
	for _, b := range buckets {
		row := DateRow{Date: b.Date, Students: b.Students, Staff: b.Staff, Total: b.Total()}
		if d, err := enrollment.ParseDate(b.Date); err == nil {
			row.Label = d.Time().Format("02 Jan")
		}
		rows = append(rows, row)
	}
	return rows
}
