package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/example/routebook/internal/route/domain"
)

// FilterAll disables the type or difficulty filter.
const FilterAll = "all"

// SortKey selects the result ordering. Unknown keys keep catalog order.
type SortKey string

const (
	SortNone     SortKey = ""
	SortLikes    SortKey = "likes"
	SortDistance SortKey = "distance"
	SortNearMe   SortKey = "nearMe"
)

// StatusLocationUnavailable is reported when proximity sorting was requested
// without a user location. Results keep their filtered order.
const StatusLocationUnavailable = "location unavailable; results are not sorted by proximity"

// Query holds the transient search, filter and sort parameters.
// Empty Type or Difficulty behaves like FilterAll.
type Query struct {
	Search     string
	Type       string
	Difficulty string
	Sort       SortKey
	Location   *domain.GeoPoint
}

// Result is the filtered and ordered view. Status is set when the requested
// ordering could not be applied.
type Result struct {
	Routes []domain.Route
	Status string
}

// Apply filters and sorts routes without modifying the input slice.
func Apply(routes []domain.Route, q Query) Result {
	term := strings.ToLower(q.Search)
	out := make([]domain.Route, 0, len(routes))
	for _, r := range routes {
		if !strings.Contains(strings.ToLower(r.Name), term) {
			continue
		}
		if !matchesFilter(q.Type, r.Type) {
			continue
		}
		if !matchesFilter(q.Difficulty, string(r.Difficulty())) {
			continue
		}
		out = append(out, r)
	}

	var status string
	switch q.Sort {
	case SortLikes:
		slices.SortStableFunc(out, func(a, b domain.Route) int {
			return cmp.Compare(b.Likes, a.Likes)
		})
	case SortDistance:
		slices.SortStableFunc(out, func(a, b domain.Route) int {
			return cmp.Compare(a.DistanceKM, b.DistanceKM)
		})
	case SortNearMe:
		if q.Location == nil {
			status = StatusLocationUnavailable
			break
		}
		origin := *q.Location
		slices.SortStableFunc(out, func(a, b domain.Route) int {
			return cmp.Compare(origin.DistanceKM(a.Location()), origin.DistanceKM(b.Location()))
		})
	}
	return Result{Routes: out, Status: status}
}

func matchesFilter(filter, value string) bool {
	return filter == "" || filter == FilterAll || filter == value
}
