package lines

import (
	"slices"
	"strings"

	"github.com/rotabus/rotabus/internal/backend"
)

// Flatten returns one Vehicle per entry of every line's vs list, in payload order.
// Lines without vehicles contribute nothing.
func Flatten(resp *backend.PositionsResponse) []Vehicle {
	if resp == nil {
		return nil
	}

	n := 0
	for _, l := range resp.Lines {
		n += len(l.Vehicles)
	}

	out := make([]Vehicle, 0, n)
	for _, l := range resp.Lines {
		for _, v := range l.Vehicles {
			out = append(out, Vehicle{
				Destination: l.Destination,
				Origin:      l.Origin,
				CapturedAt:  v.CapturedAt,
				Prefix:      v.Prefix.String(),
				LineCode:    l.Code,
				Accessible:  v.Accessible,
				Lat:         v.Lat,
				Lng:         v.Lng,
			})
		}
	}
	return out
}

// Filter keeps the vehicles whose destination, origin or prefix contains q,
// ignoring case. q is matched as typed, spaces included; an empty q keeps everything.
func Filter(vehicles []Vehicle, q string) []Vehicle {
	if q == "" {
		return vehicles
	}
	q = strings.ToLower(q)

	out := make([]Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if strings.Contains(strings.ToLower(v.Destination), q) ||
			strings.Contains(strings.ToLower(v.Origin), q) ||
			strings.Contains(strings.ToLower(v.Prefix), q) {
			out = append(out, v)
		}
	}
	return out
}

// NormalizePageSize returns size when it is an allowed page size, else DefaultPageSize.
func NormalizePageSize(size int) int {
	if slices.Contains(AllowedPageSizes, size) {
		return size
	}
	return DefaultPageSize
}

// Paginate returns the requested page. The page is clamped to [1, TotalPages] and
// TotalPages is at least 1, so an empty list yields page 1 of 1 with no items.
func Paginate(vehicles []Vehicle, page, size int) Page {
	size = NormalizePageSize(size)

	totalPages := max(1, (len(vehicles)+size-1)/size)
	page = min(max(page, 1), totalPages)

	start := (page - 1) * size
	end := min(start+size, len(vehicles))

	items := make([]Vehicle, 0, end-start)
	items = append(items, vehicles[start:end]...)

	return Page{
		Items:      items,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
		TotalItems: len(vehicles),
	}
}
