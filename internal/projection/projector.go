// Package projection turns aggregation snapshots and presence results into the
// ordered rows the dashboard displays. Every function here is pure and safe to
// call at any rate.
package projection

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/identmakers/roots-dashboard/internal/aggregation"
	"github.com/identmakers/roots-dashboard/internal/presence"
)

// SortMode selects the organization ordering.
type SortMode string

const (
	SortNameAsc   SortMode = "az"
	SortNameDesc  SortMode = "za"
	SortTotalDesc SortMode = "high"
	SortTotalAsc  SortMode = "low"
)

// ParseSortMode maps a user supplied value to a SortMode, defaulting to name ascending.
func ParseSortMode(s string) SortMode {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SortNameAsc, SortNameDesc, SortTotalDesc, SortTotalAsc:
		return m
	default:
		return SortNameAsc
	}
}

// Query is the filter and sort applied to the organization list.
type Query struct {
	Search string   `form:"search" json:"search"`
	Sort   SortMode `form:"sort" json:"sort"`
}

// Row is one organization as displayed.
type Row struct {
	Name     string `json:"name"`
	Key      string `json:"normalized"`
	Students int    `json:"students"`
	Staff    int    `json:"staff"`
	Total    int    `json:"total"`
	Online   bool   `json:"online"`
}

// View is the projected organization list. OnlineInView counts the rows of the
// filtered list that are online and OnlineNames lists them in row order.
type View struct {
	Rows         []Row    `json:"rows"`
	OnlineInView int      `json:"online_in_view"`
	OnlineNames  []string `json:"online_names"`
}

// Project filters the snapshot's organizations by a case-insensitive substring
// of the display name and sorts them. Sorting is stable, so equal totals keep
// the snapshot's relative order.
func Project(snap aggregation.Snapshot, online presence.Result, q Query) View {
	search := strings.ToLower(q.Search)
	rows := make([]Row, 0, len(snap.Organizations))
	for _, a := range snap.Organizations {
		if search != "" && !strings.Contains(strings.ToLower(a.Name), search) {
			continue
		}
		rows = append(rows, Row{
			Name:     a.Name,
			Key:      a.NormalizedKey,
			Students: a.Students,
			Staff:    a.Staff,
			Total:    a.Total(),
			Online:   online.IsOnlineKey(a.NormalizedKey),
		})
	}

	sortRows(rows, ParseSortMode(string(q.Sort)))

	v := View{Rows: rows, OnlineNames: []string{}}
	for _, r := range rows {
		if r.Online {
			v.OnlineNames = append(v.OnlineNames, r.Name)
		}
	}
	v.OnlineInView = len(v.OnlineNames)
	return v
}

func sortRows(rows []Row, mode SortMode) {
	switch mode {
	case SortNameDesc:
		c := newCollator()
		slices.SortStableFunc(rows, func(a, b Row) int { return c.CompareString(b.Name, a.Name) })
	case SortTotalDesc:
		slices.SortStableFunc(rows, func(a, b Row) int { return cmp.Compare(b.Total, a.Total) })
	case SortTotalAsc:
		slices.SortStableFunc(rows, func(a, b Row) int { return cmp.Compare(a.Total, b.Total) })
	default:
		c := newCollator()
		slices.SortStableFunc(rows, func(a, b Row) int { return c.CompareString(a.Name, b.Name) })
	}
}

// newCollator returns an English collator. Collators are not safe for
// concurrent use, so each projection gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.English)
}

// SortedOnline returns the online organization names in collation order.
func SortedOnline(res presence.Result) []string {
	names := slices.Clone(res.Online)
	if names == nil {
		names = []string{}
	}
	c := newCollator()
	slices.SortStableFunc(names, c.CompareString)
	return names
}
