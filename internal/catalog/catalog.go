package catalog

import (
	"errors"
	"sort"
	"strings"
)

// ErrCityNotInCatalog is returned when a stored city name has no entry in the
// static coordinate table. Saved city rows are never validated at write time,
// so lookups against the catalog can and do fail.
var ErrCityNotInCatalog = errors.New("city not in catalog")

// Coordinates is a geographic point the weather source can be queried for.
type Coordinates struct {
	Lat float64
	Lon float64
}

// cities maps lowercase city names to coordinates. The set is intentionally
// small and closed; it bounds the cache key space.
var cities = map[string]Coordinates{
	"amsterdam": {52.3676, 4.9041},
	"athens":    {37.9838, 23.7275},
	"barcelona": {41.3874, 2.1686},
	"berlin":    {52.52, 13.405},
	"hamburg":   {53.5511, 9.9937},
	"lisbon":    {38.7223, -9.1393},
	"london":    {51.5072, -0.1276},
	"madrid":    {40.4168, -3.7038},
	"munich":    {48.1351, 11.582},
	"paris":     {48.8566, 2.3522},
	"rome":      {41.9028, 12.4964},
	"vienna":    {48.2082, 16.3738},
	"zurich":    {47.3769, 8.5417},
}

// Lookup resolves a city name to coordinates. Matching is case-insensitive on
// the trimmed name. Unknown names return ErrCityNotInCatalog.
func Lookup(name string) (Coordinates, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	coords, ok := cities[key]
	if !ok {
		return Coordinates{}, ErrCityNotInCatalog
	}
	return coords, nil
}

// Names returns all catalog city names in alphabetical order. Used by the
// cities page to suggest supported cities.
func Names() []string {
	out := make([]string, 0, len(cities))
	for name := range cities {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
