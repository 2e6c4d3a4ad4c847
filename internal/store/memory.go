package store

import (
	"errors"
	"strings"

	"github.com/i474232898/aqi-service/internal/airquality"
)

var (
	// ErrNotFound is returned when the catalog has no city with the given name.
	ErrNotFound = errors.New("city not found")
)

// CityCatalog is an immutable in-memory list of the cities the dashboard
// offers. Lookups are case-insensitive on the city name.
type CityCatalog struct {
	cities []airquality.City

	// key: lower-cased city name, value: index into cities
	index map[string]int
}

// NewCityCatalog copies cities into a new catalog. Later duplicates of a
// name are ignored.
func NewCityCatalog(cities []airquality.City) *CityCatalog {
	c := &CityCatalog{
		cities: make([]airquality.City, 0, len(cities)),
		index:  make(map[string]int, len(cities)),
	}
	for _, city := range cities {
		key := cityKey(city.Name)
		if _, dup := c.index[key]; dup {
			continue
		}
		c.index[key] = len(c.cities)
		c.cities = append(c.cities, city)
	}
	return c
}

// List returns the cities in catalog order.
func (c *CityCatalog) List() []airquality.City {
	out := make([]airquality.City, len(c.cities))
	copy(out, c.cities)
	return out
}

// Lookup returns the city with the given name.
func (c *CityCatalog) Lookup(name string) (airquality.City, error) {
	i, ok := c.index[cityKey(name)]
	if !ok {
		return airquality.City{}, ErrNotFound
	}
	return c.cities[i], nil
}

func cityKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
